package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"

	"software.sslmate.com/src/go-pkcs12"
)

// PKCS12Bundle is a generated taxpayer certificate signed by a throwaway CA
type PKCS12Bundle struct {
	PFX  []byte
	Leaf *x509.Certificate
	CA   *x509.Certificate
	Key  *ecdsa.PrivateKey
}

// NewPKCS12 generates a CA, a leaf certificate for commonName signed by it, and encodes
// key, leaf and CA as a password protected PKCS#12 container.
func NewPKCS12(commonName, password string) (*PKCS12Bundle, error) {
	return newBundle(commonName, func(key *ecdsa.PrivateKey, leaf, ca *x509.Certificate) ([]byte, error) {
		return pkcs12.Modern.Encode(key, leaf, []*x509.Certificate{ca}, password)
	})
}

// NewPasswordlessPKCS12 is like NewPKCS12 but stores the private key in a plain (unshrouded) key bag
// and needs the empty password.
func NewPasswordlessPKCS12(commonName string) (*PKCS12Bundle, error) {
	return newBundle(commonName, func(key *ecdsa.PrivateKey, leaf, ca *x509.Certificate) ([]byte, error) {
		return pkcs12.Passwordless.Encode(key, leaf, []*x509.Certificate{ca}, "")
	})
}

type encodeFunc func(key *ecdsa.PrivateKey, leaf, ca *x509.Certificate) ([]byte, error)

func newBundle(commonName string, encode encodeFunc) (*PKCS12Bundle, error) {
	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CA key: %w", err)
	}
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test AC Raiz"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create CA certificate: %w", err)
	}
	ca, err := x509.ParseCertificate(caDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate leaf key: %w", err)
	}
	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(12 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, ca, &leafKey.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create leaf certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(leafDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse leaf certificate: %w", err)
	}

	pfx, err := encode(leafKey, leaf, ca)
	if err != nil {
		return nil, fmt.Errorf("failed to encode PKCS#12: %w", err)
	}

	return &PKCS12Bundle{PFX: pfx, Leaf: leaf, CA: ca, Key: leafKey}, nil
}

// NewTrustStore encodes certificates without any private key
func NewTrustStore(certs []*x509.Certificate, password string) ([]byte, error) {
	return pkcs12.Modern.EncodeTrustStore(certs, password)
}
