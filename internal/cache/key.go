package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// TokenKey builds the cache key for an access token held by the named
// credential for a resource scope. The key is stable across replicas so
// that any instance can reuse a token acquired by a peer.
func TokenKey(credential, resource string) string {
	return "token:" + SanitizeKey(credential) + ":" + SanitizeKey(resource)
}

// HashKey hashes a key to a fixed length.
func HashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// SanitizeKey removes or replaces characters that might cause issues in cache keys.
func SanitizeKey(key string) string {
	replacer := strings.NewReplacer(
		" ", "_",
		"\n", "",
		"\r", "",
		"\t", "",
	)
	return replacer.Replace(key)
}
