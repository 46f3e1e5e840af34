package tls

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// generateTestCertificate generates a self-signed certificate and key in
// PEM form for the given common name.
func generateTestCertificate(t *testing.T, commonName string) (certPEM, keyPEM []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{"Test Org"},
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}

// generateCAPEM generates a self-signed CA certificate in PEM form.
func generateCAPEM(t *testing.T) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:   "Test CA",
			Organization: []string{"Test Org"},
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
}

// writeCertificateFiles writes a certificate and key pair to a temp directory.
func writeCertificateFiles(t *testing.T, commonName string) (certFile, keyFile, tempDir string) {
	t.Helper()

	tempDir = t.TempDir()
	certPEM, keyPEM := generateTestCertificate(t, commonName)

	certFile = filepath.Join(tempDir, "client.crt")
	keyFile = filepath.Join(tempDir, "client.key")

	require.NoError(t, os.WriteFile(certFile, certPEM, 0600))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0600))

	return certFile, keyFile, tempDir
}

func TestClientCertificateConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *ClientCertificateConfig
		wantErr bool
	}{
		{
			name:    "nil config",
			config:  nil,
			wantErr: true,
		},
		{
			name:    "bundle only",
			config:  &ClientCertificateConfig{Bundle: "/etc/avkms/sp.pem"},
			wantErr: false,
		},
		{
			name: "bundle conflicts with pair",
			config: &ClientCertificateConfig{
				Bundle:   "/etc/avkms/sp.pem",
				CertFile: "/etc/avkms/sp.crt",
			},
			wantErr: true,
		},
		{
			name: "pair",
			config: &ClientCertificateConfig{
				CertFile: "/etc/avkms/sp.crt",
				KeyFile:  "/etc/avkms/sp.key",
			},
			wantErr: false,
		},
		{
			name:    "pair missing key",
			config:  &ClientCertificateConfig{CertFile: "/etc/avkms/sp.crt"},
			wantErr: true,
		},
		{
			name:    "pair missing cert",
			config:  &ClientCertificateConfig{KeyFile: "/etc/avkms/sp.key"},
			wantErr: true,
		},
		{
			name: "inline",
			config: &ClientCertificateConfig{
				CertData: "cert",
				KeyData:  "key",
			},
			wantErr: false,
		},
		{
			name:    "inline missing key",
			config:  &ClientCertificateConfig{CertData: "cert"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewClientCertificateSource_Pair(t *testing.T) {
	certFile, keyFile, _ := writeCertificateFiles(t, "sp.example.com")

	source, err := NewClientCertificateSource(&ClientCertificateConfig{
		CertFile: certFile,
		KeyFile:  keyFile,
	})
	require.NoError(t, err)
	defer source.Close()

	cert, err := source.Certificate()
	require.NoError(t, err)
	assert.NotNil(t, cert)

	leaf, err := source.Leaf()
	require.NoError(t, err)
	assert.Equal(t, "sp.example.com", leaf.Subject.CommonName)
}

func TestNewClientCertificateSource_Inline(t *testing.T) {
	certPEM, keyPEM := generateTestCertificate(t, "inline.example.com")

	source, err := NewClientCertificateSource(&ClientCertificateConfig{
		CertData: string(certPEM),
		KeyData:  string(keyPEM),
	})
	require.NoError(t, err)
	defer source.Close()

	leaf, err := source.Leaf()
	require.NoError(t, err)
	assert.Equal(t, "inline.example.com", leaf.Subject.CommonName)
}

func TestNewClientCertificateSource_MissingFiles(t *testing.T) {
	_, err := NewClientCertificateSource(&ClientCertificateConfig{
		CertFile: "/nonexistent/client.crt",
		KeyFile:  "/nonexistent/client.key",
	})
	assert.Error(t, err)
}

func TestNewClientCertificateSource_NilConfig(t *testing.T) {
	_, err := NewClientCertificateSource(nil)
	assert.Error(t, err)
}

func TestLoadCertificateFromBundle_CombinedPEM(t *testing.T) {
	certPEM, keyPEM := generateTestCertificate(t, "bundle.example.com")

	bundleFile := filepath.Join(t.TempDir(), "sp.pem")
	require.NoError(t, os.WriteFile(bundleFile, append(certPEM, keyPEM...), 0600))

	cert, err := LoadCertificateFromBundle(bundleFile, "")
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)
	assert.Equal(t, "bundle.example.com", cert.Leaf.Subject.CommonName)
}

func TestLoadCertificateFromBundle_KeyFirst(t *testing.T) {
	certPEM, keyPEM := generateTestCertificate(t, "bundle.example.com")

	bundleFile := filepath.Join(t.TempDir(), "sp.pem")
	require.NoError(t, os.WriteFile(bundleFile, append(keyPEM, certPEM...), 0600))

	cert, err := LoadCertificateFromBundle(bundleFile, "")
	require.NoError(t, err)
	assert.Equal(t, "bundle.example.com", cert.Leaf.Subject.CommonName)
}

func TestLoadCertificateFromBundle_MissingKey(t *testing.T) {
	certPEM, _ := generateTestCertificate(t, "bundle.example.com")

	bundleFile := filepath.Join(t.TempDir(), "sp.pem")
	require.NoError(t, os.WriteFile(bundleFile, certPEM, 0600))

	_, err := LoadCertificateFromBundle(bundleFile, "")
	assert.Error(t, err)
}

func TestLoadCertificateFromBundle_NotFound(t *testing.T) {
	_, err := LoadCertificateFromBundle("/nonexistent/sp.pem", "")
	assert.Error(t, err)
}

func TestLoadCertificateFromBundle_InvalidData(t *testing.T) {
	bundleFile := filepath.Join(t.TempDir(), "sp.p12")
	require.NoError(t, os.WriteFile(bundleFile, []byte("not a certificate bundle"), 0600))

	_, err := LoadCertificateFromBundle(bundleFile, "")
	assert.Error(t, err)
}

func TestClientCertificateSource_Reload(t *testing.T) {
	certFile, keyFile, tempDir := writeCertificateFiles(t, "original.example.com")

	source, err := NewClientCertificateSource(&ClientCertificateConfig{
		CertFile:       certFile,
		KeyFile:        keyFile,
		ReloadInterval: time.Second,
	}, WithSourceDebounce(20*time.Millisecond))
	require.NoError(t, err)
	defer source.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, source.Start(ctx))

	// Rotate the certificate on disk
	newCertPEM, newKeyPEM := generateTestCertificate(t, "rotated.example.com")
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "client.key"), newKeyPEM, 0600))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "client.crt"), newCertPEM, 0600))

	require.Eventually(t, func() bool {
		leaf, err := source.Leaf()
		return err == nil && leaf.Subject.CommonName == "rotated.example.com"
	}, 3*time.Second, 50*time.Millisecond, "certificate should be reloaded after rotation")
}

func TestClientCertificateSource_StartWithoutReloadInterval(t *testing.T) {
	certFile, keyFile, _ := writeCertificateFiles(t, "static.example.com")

	source, err := NewClientCertificateSource(&ClientCertificateConfig{
		CertFile: certFile,
		KeyFile:  keyFile,
	})
	require.NoError(t, err)
	defer source.Close()

	// Hot-reload disabled, Start is a no-op
	require.NoError(t, source.Start(context.Background()))
}

func TestClientCertificateSource_Close(t *testing.T) {
	certFile, keyFile, _ := writeCertificateFiles(t, "closing.example.com")

	source, err := NewClientCertificateSource(&ClientCertificateConfig{
		CertFile: certFile,
		KeyFile:  keyFile,
	})
	require.NoError(t, err)

	require.NoError(t, source.Close())
	require.NoError(t, source.Close())

	_, err = source.Certificate()
	assert.ErrorIs(t, err, ErrSourceClosed)
}

func TestCertificateEventType_String(t *testing.T) {
	tests := []struct {
		eventType CertificateEventType
		expected  string
	}{
		{CertificateEventLoaded, "loaded"},
		{CertificateEventReloaded, "reloaded"},
		{CertificateEventExpiring, "expiring"},
		{CertificateEventError, "error"},
		{CertificateEventType(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.eventType.String())
		})
	}
}

func TestValidateCertificateKeyPair(t *testing.T) {
	certPEM, keyPEM := generateTestCertificate(t, "match.example.com")
	_, otherKeyPEM := generateTestCertificate(t, "other.example.com")

	assert.NoError(t, ValidateCertificateKeyPair(certPEM, keyPEM))
	assert.Error(t, ValidateCertificateKeyPair(certPEM, otherKeyPEM))
}

func TestClientCertificateConfig_Clone(t *testing.T) {
	config := &ClientCertificateConfig{
		Bundle:         "/etc/avkms/sp.p12",
		Password:       "secret",
		ReloadInterval: time.Minute,
	}

	clone := config.Clone()
	require.NotNil(t, clone)
	assert.Equal(t, config, clone)

	clone.Bundle = "/other/path.p12"
	assert.NotEqual(t, config.Bundle, clone.Bundle)

	var nilConfig *ClientCertificateConfig
	assert.Nil(t, nilConfig.Clone())
}
