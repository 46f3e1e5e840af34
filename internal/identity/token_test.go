package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccessToken_IsExpired(t *testing.T) {
	t.Parallel()

	valid := &AccessToken{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}
	assert.False(t, valid.IsExpired())

	expired := &AccessToken{Token: "tok", ExpiresAt: time.Now().Add(-time.Second)}
	assert.True(t, expired.IsExpired())

	var nilToken *AccessToken
	assert.True(t, nilToken.IsExpired())

	empty := &AccessToken{ExpiresAt: time.Now().Add(time.Hour)}
	assert.True(t, empty.IsExpired())
}

func TestAccessToken_ExpiresWithin(t *testing.T) {
	t.Parallel()

	token := &AccessToken{Token: "tok", ExpiresAt: time.Now().Add(10 * time.Minute)}

	assert.False(t, token.ExpiresWithin(time.Minute))
	assert.True(t, token.ExpiresWithin(11*time.Minute))
}

func TestAccessToken_TTL(t *testing.T) {
	t.Parallel()

	token := &AccessToken{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}
	ttl := token.TTL()
	assert.Greater(t, ttl, 59*time.Minute)
	assert.LessOrEqual(t, ttl, time.Hour)

	expired := &AccessToken{Token: "tok", ExpiresAt: time.Now().Add(-time.Minute)}
	assert.Equal(t, time.Duration(0), expired.TTL())

	var nilToken *AccessToken
	assert.Equal(t, time.Duration(0), nilToken.TTL())
}

func TestResourceScope_String(t *testing.T) {
	t.Parallel()

	scope := ResourceScope("https://vault.example.net/.default")
	assert.Equal(t, "https://vault.example.net/.default", scope.String())
}
