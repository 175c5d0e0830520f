package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/arklim/session-guard/internal/core/port"
	"github.com/arklim/session-guard/internal/repository"
)

// CredentialStore keeps the session bearer token in process memory.
type CredentialStore struct {
	mu    sync.RWMutex
	token string
}

// NewCredentialStore constructs a store seeded with token, which may be empty.
func NewCredentialStore(token string) *CredentialStore {
	return &CredentialStore{token: strings.TrimSpace(token)}
}

// Token returns the stored credential or repository.ErrNoCredential.
func (s *CredentialStore) Token(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", repository.ErrNoCredential
	}
	return s.token, nil
}

// SetToken replaces the credential, typically after a fresh login.
func (s *CredentialStore) SetToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = strings.TrimSpace(token)
	return nil
}

// Clear drops the credential.
func (s *CredentialStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

var _ port.CredentialStore = (*CredentialStore)(nil)
