package crypto

import (
	"crypto/x509"
	"encoding/pem"
	"errors"

	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
	"software.sslmate.com/src/go-pkcs12"
)

// TransformPKCS12 decodes a PKCS#12 container and returns its certificate, private key and CA chain as PEM.
//
// Both plain and password-shrouded key bags are accepted.
// The password is used only for this call and is not retained.
//
// Returns an error with code nfce.ErrCodeCertificate when:
//   - the container is empty or corrupt
//   - the password is wrong
//   - the container has no certificate or no private key
func TransformPKCS12(pfxData []byte, password string) (*CertificateMaterial, error) {
	if len(pfxData) == 0 {
		return nil, nfce.NewCertificateError("certificate file is empty")
	}

	privateKey, leaf, caCerts, err := pkcs12.DecodeChain(pfxData, password)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return nil, nfce.WrapCertificateError(err, "incorrect certificate password")
		}
		return nil, nfce.WrapCertificateError(err, "failed to decode PKCS#12 certificate")
	}
	if leaf == nil {
		return nil, nfce.NewCertificateError("no certificate found in PKCS#12 container")
	}
	if privateKey == nil {
		return nil, nfce.NewCertificateError("no private key found in PKCS#12 container")
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, nfce.WrapCertificateError(err, "unsupported private key in PKCS#12 container")
	}

	chain := make([]string, 0, len(caCerts))
	for _, ca := range caCerts {
		chain = append(chain, EncodeCertificatePEM(ca))
	}

	return &CertificateMaterial{
		CertificatePEM: EncodeCertificatePEM(leaf),
		PrivateKeyPEM:  string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})),
		ChainPEM:       chain,
		Subject:        leaf.Subject.CommonName,
		NotAfter:       leaf.NotAfter,
	}, nil
}
