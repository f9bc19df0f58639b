package crypto

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
)

// CertificateMaterial is the PEM form of a taxpayer's digital certificate.
//
// CertificatePEM holds exactly one certificate, PrivateKeyPEM one PKCS#8 key and ChainPEM
// zero or more CA certificates. Subject and NotAfter describe the leaf.
type CertificateMaterial struct {
	CertificatePEM string
	PrivateKeyPEM  string
	ChainPEM       []string
	Subject        string
	NotAfter       time.Time
}

// LogValue keeps key material out of logs
func (m *CertificateMaterial) LogValue() slog.Value {
	if m == nil {
		return slog.StringValue("<nil>")
	}
	return slog.GroupValue(
		slog.String("subject", m.Subject),
		slog.Time("not_after", m.NotAfter),
		slog.Int("chain_length", len(m.ChainPEM)),
	)
}

// Expired reports whether the leaf certificate is past its validity at now
func (m *CertificateMaterial) Expired(now time.Time) bool {
	return now.After(m.NotAfter)
}

// TLSCertificate builds the client certificate presented in mutual-TLS handshakes.
// The CA chain is sent after the leaf.
func (m *CertificateMaterial) TLSCertificate() (tls.Certificate, error) {
	certPEM := m.CertificatePEM + strings.Join(m.ChainPEM, "")

	cert, err := tls.X509KeyPair([]byte(certPEM), []byte(m.PrivateKeyPEM))
	if err != nil {
		return tls.Certificate{}, nfce.WrapCertificateError(err, "certificate and private key do not form a valid pair")
	}
	return cert, nil
}

// Output file names used by WritePEMFiles
const (
	CertificateFileName = "cert.pem"
	PrivateKeyFileName  = "key.pem"
	ChainFileName       = "chain.pem"
)

// WritePEMFiles saves the material as cert.pem, key.pem and (when there is a chain) chain.pem.
//
// Parameters:
//   - baseDir: The base directory to scope file access (e.g., "./certs"). It must exist.
func (m *CertificateMaterial) WritePEMFiles(baseDir string) error {
	root, err := os.OpenRoot(baseDir)
	if err != nil {
		return nfce.WrapInternalError(err, fmt.Sprintf("failed to open directory %s", baseDir))
	}
	defer root.Close()

	files := []struct {
		name    string
		content string
		perm    os.FileMode
	}{
		{CertificateFileName, m.CertificatePEM, 0644},
		{PrivateKeyFileName, m.PrivateKeyPEM, 0600},
	}
	if len(m.ChainPEM) > 0 {
		files = append(files, struct {
			name    string
			content string
			perm    os.FileMode
		}{ChainFileName, strings.Join(m.ChainPEM, ""), 0644})
	}

	for _, f := range files {
		if err := root.WriteFile(f.name, []byte(f.content), f.perm); err != nil {
			return nfce.WrapInternalError(err, fmt.Sprintf("failed to write %s", f.name))
		}
	}
	return nil
}
