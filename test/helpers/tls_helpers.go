// Package helpers provides common test utilities for the key
// management sidecar tests.
package helpers

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// TestCertificates holds the certificate material tests need: a CA, a
// server certificate for a simulated identity endpoint, and an RSA
// signing certificate for a service principal.
type TestCertificates struct {
	CAKey     *rsa.PrivateKey
	CACert    *x509.Certificate
	CACertPEM []byte

	EndpointKey     *rsa.PrivateKey
	EndpointCert    *x509.Certificate
	EndpointCertPEM []byte
	EndpointKeyPEM  []byte

	SigningKey     *rsa.PrivateKey
	SigningCert    *x509.Certificate
	SigningCertPEM []byte
	SigningKeyPEM  []byte
}

// GenerateTestCertificates generates the CA, endpoint and signing
// certificates.
func GenerateTestCertificates() (*TestCertificates, error) {
	tc := &TestCertificates{}

	if err := tc.generateCA(); err != nil {
		return nil, fmt.Errorf("failed to generate CA: %w", err)
	}
	if err := tc.generateEndpointCert(); err != nil {
		return nil, fmt.Errorf("failed to generate endpoint certificate: %w", err)
	}
	if err := tc.generateSigningCert(); err != nil {
		return nil, fmt.Errorf("failed to generate signing certificate: %w", err)
	}

	return tc, nil
}

// generateCA generates the root CA.
func (tc *TestCertificates) generateCA() error {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("failed to generate CA key: %w", err)
	}
	tc.CAKey = key

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"AVKMS Test CA"},
			CommonName:   "AVKMS Test Root CA",
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		MaxPathLen:            1,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("failed to create CA certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("failed to parse CA certificate: %w", err)
	}
	tc.CACert = cert
	tc.CACertPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	return nil
}

// generateEndpointCert generates a server certificate for a simulated
// identity endpoint on localhost, signed by the CA.
func (tc *TestCertificates) generateEndpointCert() error {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("failed to generate endpoint key: %w", err)
	}
	tc.EndpointKey = key

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"AVKMS Test"},
			CommonName:   "localhost",
		},
		NotBefore:   time.Now().Add(-time.Hour),
		NotAfter:    time.Now().Add(24 * time.Hour),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:    []string{"localhost"},
		IPAddresses: []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, tc.CACert, &key.PublicKey, tc.CAKey)
	if err != nil {
		return fmt.Errorf("failed to create endpoint certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("failed to parse endpoint certificate: %w", err)
	}
	tc.EndpointCert = cert
	tc.EndpointCertPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	tc.EndpointKeyPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	return nil
}

// generateSigningCert generates an RSA certificate a service principal
// can sign client assertions with.
func (tc *TestCertificates) generateSigningCert() error {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("failed to generate signing key: %w", err)
	}
	tc.SigningKey = key

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"AVKMS Test"},
			CommonName:   "service-principal",
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("failed to create signing certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("failed to parse signing certificate: %w", err)
	}
	tc.SigningCert = cert
	tc.SigningCertPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	tc.SigningKeyPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	return nil
}

// WriteTrustStore writes the CA certificate to dir and returns the
// path, usable as a credential truststore.
func (tc *TestCertificates) WriteTrustStore(dir string) (string, error) {
	path := filepath.Join(dir, "ca.pem")
	if err := os.WriteFile(path, tc.CACertPEM, 0600); err != nil {
		return "", fmt.Errorf("failed to write truststore: %w", err)
	}
	return path, nil
}

// WriteSigningPair writes the signing certificate and key as separate
// PEM files and returns their paths.
func (tc *TestCertificates) WriteSigningPair(dir string) (certFile, keyFile string, err error) {
	certFile = filepath.Join(dir, "sp.crt")
	keyFile = filepath.Join(dir, "sp.key")
	if err := os.WriteFile(certFile, tc.SigningCertPEM, 0600); err != nil {
		return "", "", fmt.Errorf("failed to write signing certificate: %w", err)
	}
	if err := os.WriteFile(keyFile, tc.SigningKeyPEM, 0600); err != nil {
		return "", "", fmt.Errorf("failed to write signing key: %w", err)
	}
	return certFile, keyFile, nil
}

// WriteSigningBundle writes the signing certificate and key as one
// combined PEM bundle and returns the path.
func (tc *TestCertificates) WriteSigningBundle(dir string) (string, error) {
	path := filepath.Join(dir, "sp.pem")
	bundle := append(append([]byte{}, tc.SigningCertPEM...), tc.SigningKeyPEM...)
	if err := os.WriteFile(path, bundle, 0600); err != nil {
		return "", fmt.Errorf("failed to write signing bundle: %w", err)
	}
	return path, nil
}

// EndpointTLSConfig returns a TLS config serving the endpoint
// certificate.
func (tc *TestCertificates) EndpointTLSConfig() (*tls.Config, error) {
	cert, err := tls.X509KeyPair(tc.EndpointCertPEM, tc.EndpointKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to load endpoint key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ClientTLSConfig returns a TLS config trusting the CA.
func (tc *TestCertificates) ClientTLSConfig() *tls.Config {
	pool := x509.NewCertPool()
	pool.AddCert(tc.CACert)
	return &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}
}
