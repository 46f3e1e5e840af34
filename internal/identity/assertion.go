package identity

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // G505: x5t thumbprints are defined over SHA-1
	"crypto/sha256"
	stdtls "crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// clientAssertionType is the assertion type parameter of the
// client-credentials grant with a JWT client assertion.
const clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// assertionLifetime bounds the validity window of a signed assertion.
// The identity provider rejects assertions with excessive lifetimes,
// so the window stays short; each refresh signs a fresh assertion.
const assertionLifetime = 10 * time.Minute

// buildClientAssertion signs a JWT proving possession of the client
// certificate's private key. The header carries the certificate's
// SHA-1 thumbprint as x5t; the claims bind the assertion to the token
// endpoint (aud) and the application (iss, sub).
func buildClientAssertion(cert *stdtls.Certificate, clientID, audience string) (string, error) {
	leaf := cert.Leaf
	if leaf == nil {
		if len(cert.Certificate) == 0 {
			return "", NewConfigurationError("client_certificate", "certificate has no leaf")
		}
		parsed, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return "", NewConfigurationErrorWithCause("client_certificate", "failed to parse leaf certificate", err)
		}
		leaf = parsed
	}

	key, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return "", NewConfigurationError("client_certificate",
			fmt.Sprintf("unsupported private key type %T, RSA required", cert.PrivateKey))
	}

	//nolint:gosec // G401: x5t thumbprints are defined over SHA-1
	thumbprint := sha1.Sum(leaf.Raw)

	header := map[string]interface{}{
		"alg": "RS256",
		"typ": "JWT",
		"x5t": base64.RawURLEncoding.EncodeToString(thumbprint[:]),
	}

	now := time.Now()
	claims := map[string]interface{}{
		"aud": audience,
		"iss": clientID,
		"sub": clientID,
		"jti": uuid.New().String(),
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(assertionLifetime).Unix(),
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("failed to marshal assertion header: %w", err)
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal assertion claims: %w", err)
	}

	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) +
		"." + base64.RawURLEncoding.EncodeToString(claimsJSON)

	digest := sha256.Sum256([]byte(signingInput))
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign client assertion: %w", err)
	}

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(signature), nil
}
