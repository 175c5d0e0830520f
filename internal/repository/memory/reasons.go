package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/arklim/session-guard/internal/core/port"
)

// ReasonStore is the in-process single-read logout reason store used when Redis is disabled.
type ReasonStore struct {
	mu        sync.Mutex
	reason    string
	expiresAt time.Time
	now       func() time.Time
}

// NewReasonStore constructs an empty store.
func NewReasonStore() *ReasonStore {
	return &ReasonStore{now: time.Now}
}

// WithNow overrides the clock, primarily for deterministic testing.
func (s *ReasonStore) WithNow(now func() time.Time) *ReasonStore {
	if now != nil {
		s.now = now
	}
	return s
}

// Put stores reason until ttl elapses or it is read.
func (s *ReasonStore) Put(_ context.Context, reason string, ttl time.Duration) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("reason is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reason = reason
	s.expiresAt = s.now().Add(ttl)
	return nil
}

// Take returns the reason once and clears it.
func (s *ReasonStore) Take(_ context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reason := s.reason
	expired := !s.now().Before(s.expiresAt)
	s.reason = ""
	s.expiresAt = time.Time{}

	if reason == "" || expired {
		return "", false, nil
	}
	return reason, true, nil
}

var _ port.ReasonStore = (*ReasonStore)(nil)
