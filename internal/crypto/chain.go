package crypto

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
)

// EncodeCertificatePEM returns the PEM encoding of a single certificate
func EncodeCertificatePEM(cert *x509.Certificate) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}))
}

// ParseCertificateChain parses one or more X.509 certificates from PEM-encoded data.
// The certificates are returned in the order they appear in the PEM data.
// Non-certificate blocks (keys, parameters) are skipped.
//
// Returns an error if no certificates are found or parsing fails
func ParseCertificateChain(pemData []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	var block *pem.Block
	remaining := pemData

	for {
		block, remaining = pem.Decode(remaining)
		if block == nil {
			break
		}

		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, nfce.WrapCertificateError(err, "failed to parse certificate")
		}

		certs = append(certs, cert)
	}

	if len(certs) == 0 {
		return nil, nfce.NewCertificateError("no certificates found in PEM data")
	}

	return certs, nil
}

// ReadCertChainFromPEMFile loads a certificate bundle from a PEM file.
// The certificates are returned in the order they appear in the file.
//
// Parameters:
//   - path: The file path (e.g., "./certs/icp-brasil.pem")
func ReadCertChainFromPEMFile(path string) ([]*x509.Certificate, error) {
	dir := filepath.Dir(path)
	filename := filepath.Base(path)

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, nfce.WrapInternalError(err, fmt.Sprintf("failed to open directory %s", dir))
	}
	defer root.Close()

	pemData, err := root.ReadFile(filename)
	if err != nil {
		return nil, nfce.WrapInternalError(err, fmt.Sprintf("failed to read %s", path))
	}

	return ParseCertificateChain(pemData)
}

// LoadRootCAs returns the system cert pool extended with the certificates in bundlePath.
// An empty bundlePath returns the system pool unchanged.
func LoadRootCAs(bundlePath string) (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if bundlePath == "" {
		return pool, nil
	}

	certs, err := ReadCertChainFromPEMFile(bundlePath)
	if err != nil {
		return nil, err
	}
	for _, cert := range certs {
		pool.AddCert(cert)
	}

	return pool, nil
}
