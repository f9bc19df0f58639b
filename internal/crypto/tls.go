package crypto

import (
	"crypto/tls"
	"crypto/x509"
)

// TLSOptions controls how the authority's server certificate is trusted
type TLSOptions struct {
	// InsecureSkipVerify disables server certificate verification.
	// Several state authorities serve certificates issued by ICP-Brasil roots that are absent from system trust stores.
	InsecureSkipVerify bool

	// RootCAs is used when InsecureSkipVerify is false (nil = system roots)
	RootCAs *x509.CertPool
}

// NewClientTLSConfig returns a TLS configuration presenting the material as the client certificate.
//
// Renegotiation is allowed because some authority endpoints renegotiate to request the client certificate.
func NewClientTLSConfig(m *CertificateMaterial, opts TLSOptions) (*tls.Config, error) {
	cert, err := m.TLSCertificate()
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		RootCAs:            opts.RootCAs,
		InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec
		Renegotiation:      tls.RenegotiateFreelyAsClient,
		MinVersion:         tls.VersionTLS12,
	}, nil
}
