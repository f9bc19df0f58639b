package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/information-sharing-networks/nfce-downloader/internal/crypto"
)

var (
	certPassword string
	certOutDir   string
)

var certCmd = &cobra.Command{
	Use:   "cert <file.pfx>",
	Short: "Convert a PKCS#12 certificate to PEM files",
	Long: `Convert a taxpayer's PKCS#12 (.pfx/.p12) certificate into cert.pem, key.pem and chain.pem.

The password can be passed with --password or NFCE_CERT_PASSWORD.

Example:
  nfce-cli cert empresa.pfx --out ./certs`,
	Args: cobra.ExactArgs(1),
	RunE: runCert,
}

func init() {
	certCmd.Flags().StringVar(&certPassword, "password", "", "certificate password")
	certCmd.Flags().StringVar(&certOutDir, "out", ".", "directory for the PEM files")
}

// CertReport describes the converted certificate
type CertReport struct {
	Subject    string    `json:"subject"`
	NotAfter   time.Time `json:"notAfter"`
	Expired    bool      `json:"expired"`
	ChainCerts int       `json:"chainCerts"`
	Files      []string  `json:"files"`
}

func runCert(cmd *cobra.Command, args []string) error {
	_, material, err := readPFX(args[0], resolvePassword(certPassword))
	if err != nil {
		return err
	}

	if err := os.MkdirAll(certOutDir, 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", certOutDir, err)
	}
	if err := material.WritePEMFiles(certOutDir); err != nil {
		return err
	}

	files := []string{
		filepath.Join(certOutDir, crypto.CertificateFileName),
		filepath.Join(certOutDir, crypto.PrivateKeyFileName),
	}
	if len(material.ChainPEM) > 0 {
		files = append(files, filepath.Join(certOutDir, crypto.ChainFileName))
	}

	return printJSON(cmd, CertReport{
		Subject:    material.Subject,
		NotAfter:   material.NotAfter,
		Expired:    material.Expired(time.Now()),
		ChainCerts: len(material.ChainPEM),
		Files:      files,
	})
}
