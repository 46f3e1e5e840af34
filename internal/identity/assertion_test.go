package identity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // G505: validating the SHA-1 x5t thumbprint
	stdtls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// generateRSACertificate generates a self-signed RSA certificate
// suitable for signing client assertions.
func generateRSACertificate(t *testing.T, commonName string) (_ *stdtls.Certificate, certPEM, keyPEM []byte) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
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

	leaf, err := x509.ParseCertificate(certDER)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	cert := &stdtls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
		Leaf:        leaf,
	}
	return cert, certPEM, keyPEM
}

// writeRSACertificateFiles writes an RSA certificate and key pair to a
// temp directory and returns the paths.
func writeRSACertificateFiles(t *testing.T, commonName string) (certFile, keyFile string, cert *stdtls.Certificate) {
	t.Helper()

	cert, certPEM, keyPEM := generateRSACertificate(t, commonName)

	dir := t.TempDir()
	certFile = filepath.Join(dir, "sp.crt")
	keyFile = filepath.Join(dir, "sp.key")
	require.NoError(t, os.WriteFile(certFile, certPEM, 0600))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0600))

	return certFile, keyFile, cert
}

func TestBuildClientAssertion(t *testing.T) {
	t.Parallel()

	const clientID = "a1b2c3d4-client"
	const audience = "https://login.example.net:443/tenant/oauth2/v2.0/token"

	cert, _, _ := generateRSACertificate(t, "sp-signing")

	assertion, err := buildClientAssertion(cert, clientID, audience)
	require.NoError(t, err)

	// The signature must verify against the certificate's public key
	// and the registered claims must bind the assertion to the client
	// and the token endpoint.
	pub := cert.PrivateKey.(*rsa.PrivateKey).Public()
	token, err := jwt.Parse([]byte(assertion),
		jwt.WithKey(jwa.RS256, pub),
		jwt.WithValidate(true),
		jwt.WithAudience(audience),
	)
	require.NoError(t, err)

	assert.Equal(t, clientID, token.Issuer())
	assert.Equal(t, clientID, token.Subject())
	assert.NotEmpty(t, token.JwtID())
	assert.WithinDuration(t, time.Now().Add(assertionLifetime), token.Expiration(), time.Minute)
	assert.False(t, token.NotBefore().After(time.Now()))
}

func TestBuildClientAssertion_Header(t *testing.T) {
	t.Parallel()

	cert, _, _ := generateRSACertificate(t, "sp-signing")

	assertion, err := buildClientAssertion(cert, "client", "https://aud")
	require.NoError(t, err)

	msg, err := jws.Parse([]byte(assertion))
	require.NoError(t, err)
	require.Len(t, msg.Signatures(), 1)

	headers := msg.Signatures()[0].ProtectedHeaders()
	assert.Equal(t, jwa.RS256, headers.Algorithm())
	assert.Equal(t, "JWT", headers.Type())

	//nolint:gosec // G401: validating the SHA-1 x5t thumbprint
	thumbprint := sha1.Sum(cert.Leaf.Raw)
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(thumbprint[:]), headers.X509CertThumbprint())
}

func TestBuildClientAssertion_UniqueJTI(t *testing.T) {
	t.Parallel()

	cert, _, _ := generateRSACertificate(t, "sp-signing")

	first, err := buildClientAssertion(cert, "client", "https://aud")
	require.NoError(t, err)
	second, err := buildClientAssertion(cert, "client", "https://aud")
	require.NoError(t, err)

	parse := func(raw string) string {
		token, perr := jwt.Parse([]byte(raw), jwt.WithVerify(false), jwt.WithValidate(false))
		require.NoError(t, perr)
		return token.JwtID()
	}
	assert.NotEqual(t, parse(first), parse(second))
}

func TestBuildClientAssertion_NonRSAKey(t *testing.T) {
	t.Parallel()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "ec-signing"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(certDER)
	require.NoError(t, err)

	cert := &stdtls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
		Leaf:        leaf,
	}

	_, err = buildClientAssertion(cert, "client", "https://aud")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigInvalid)
	assert.Contains(t, err.Error(), "RSA")
}

func TestBuildClientAssertion_MissingLeaf(t *testing.T) {
	t.Parallel()

	_, err := buildClientAssertion(&stdtls.Certificate{}, "client", "https://aud")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigInvalid)
}

func TestBuildClientAssertion_LeafParsedWhenAbsent(t *testing.T) {
	t.Parallel()

	cert, _, _ := generateRSACertificate(t, "sp-signing")
	cert.Leaf = nil

	assertion, err := buildClientAssertion(cert, "client", "https://aud")
	require.NoError(t, err)
	assert.NotEmpty(t, assertion)
}
