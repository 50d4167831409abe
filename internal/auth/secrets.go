package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"sync"
)

// secretBytes is the entropy of a minted ephemeral secret.
const secretBytes = 32

// SecretStore holds the current ephemeral secret of each player in memory.
// A player has at most one secret; minting a new one invalidates the old.
// All methods are safe for concurrent use.
type SecretStore struct {
	mu      sync.Mutex
	secrets map[string]string // username → secret
}

// NewSecretStore creates an empty SecretStore.
func NewSecretStore() *SecretStore {
	return &SecretStore{secrets: make(map[string]string)}
}

// Mint generates a fresh secret for username, replacing any previous one.
//
// Postcondition: Returns a URL-safe secret that Verify accepts until the next Mint
// for the same username.
func (s *SecretStore) Mint(username string) (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)

	s.mu.Lock()
	s.secrets[username] = secret
	s.mu.Unlock()
	return secret, nil
}

// Verify reports whether presented is the current secret of username.
func (s *SecretStore) Verify(username, presented string) bool {
	if presented == "" {
		return false
	}
	s.mu.Lock()
	current, ok := s.secrets[username]
	s.mu.Unlock()
	return ok && subtle.ConstantTimeCompare([]byte(current), []byte(presented)) == 1
}
