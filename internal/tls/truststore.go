package tls

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// LoadTrustStore loads a CA certificate pool from a PEM file.
func LoadTrustStore(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- trust store path from trusted config
	if err != nil {
		return nil, NewCertificateErrorWithCause(path, "failed to read trust store", err)
	}

	pool, err := TrustStoreFromPEM(data)
	if err != nil {
		return nil, NewCertificateErrorWithCause(path, "failed to parse trust store", err)
	}

	return pool, nil
}

// TrustStoreFromPEM builds a CA certificate pool from PEM data.
func TrustStoreFromPEM(data []byte) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("%w: no CA certificates in PEM data", ErrTrustStoreInvalid)
	}
	return pool, nil
}

// SystemTrustStore returns a copy of the system certificate pool.
func SystemTrustStore() (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		return nil, WrapError(err, "failed to load system trust store")
	}
	return pool, nil
}

// ParsePEMCertificates parses PEM-encoded certificates.
func ParsePEMCertificates(pemData []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate

	for len(pemData) > 0 {
		var block *pem.Block
		block, pemData = pem.Decode(pemData)
		if block == nil {
			break
		}

		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, NewCertificateErrorWithCause("", "failed to parse certificate", err)
		}

		certs = append(certs, cert)
	}

	if len(certs) == 0 {
		return nil, NewCertificateError("", "no certificates found in PEM data")
	}

	return certs, nil
}
