package server

import (
	"sort"
	"sync"
	"time"

	"github.com/vyrodovalexey/avkms/internal/identity"
	"github.com/vyrodovalexey/avkms/internal/keyprovider"
)

// Entry is one named credential exposed through the API.
type Entry struct {
	// Credential is the configured credential name clients select
	// with the credential query parameter.
	Credential string

	// Provider mints tokens for the credential's vault resource.
	Provider keyprovider.KeyProvider

	// VaultURL is the vault endpoint the provider serves.
	VaultURL string

	// Scope is the default resource scope tokens are requested for.
	Scope identity.ResourceScope

	// RefreshBuffer is how long before expiry cached tokens stop
	// being served for this credential.
	RefreshBuffer time.Duration
}

func (e *Entry) refreshBuffer() time.Duration {
	if e.RefreshBuffer > 0 {
		return e.RefreshBuffer
	}
	return identity.DefaultRefreshBuffer
}

// CredentialSet is the live set of credentials the API serves. The
// config watcher replaces the whole set on reload, so lookups and
// replacement are safe to run concurrently.
type CredentialSet struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	names   []string
}

// NewCredentialSet creates an empty credential set.
func NewCredentialSet() *CredentialSet {
	return &CredentialSet{
		entries: make(map[string]*Entry),
	}
}

// Replace swaps the entire set of entries and returns the displaced
// ones so the caller can release their providers. Entries with
// duplicate names keep the last occurrence.
func (s *CredentialSet) Replace(entries []Entry) []*Entry {
	next := make(map[string]*Entry, len(entries))
	for i := range entries {
		e := entries[i]
		next[e.Credential] = &e
	}

	names := make([]string, 0, len(next))
	for name := range next {
		names = append(names, name)
	}
	sort.Strings(names)

	s.mu.Lock()
	prev := s.entries
	s.entries = next
	s.names = names
	s.mu.Unlock()

	displaced := make([]*Entry, 0, len(prev))
	for _, name := range sortedKeys(prev) {
		displaced = append(displaced, prev[name])
	}
	return displaced
}

func sortedKeys(entries map[string]*Entry) []string {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the entry for a credential name.
func (s *CredentialSet) Lookup(name string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	return e, ok
}

// Single returns the only entry when exactly one credential is
// configured.
func (s *CredentialSet) Single() (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.names) != 1 {
		return nil, false
	}
	return s.entries[s.names[0]], true
}

// Names returns the configured credential names in sorted order.
func (s *CredentialSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.names))
	copy(names, s.names)
	return names
}

// Len returns the number of configured credentials.
func (s *CredentialSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names)
}
