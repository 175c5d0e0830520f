package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/session-guard/internal/core/port"
)

const defaultReasonPrefix = "guard:logout_reason"

// ReasonStore keeps the logout reason of one session in Redis until it is read once.
type ReasonStore struct {
	client    *red.Client
	prefix    string
	sessionID string
}

// NewReasonStore constructs a Redis-backed single-read reason store scoped to sessionID.
func NewReasonStore(client *red.Client, keyPrefix, sessionID string) *ReasonStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultReasonPrefix
	}

	return &ReasonStore{client: client, prefix: prefix, sessionID: strings.TrimSpace(sessionID)}
}

// Put stores reason with the supplied TTL, replacing any unread reason.
func (s *ReasonStore) Put(ctx context.Context, reason string, ttl time.Duration) error {
	key := s.key()
	if key == "" {
		return fmt.Errorf("session id is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	value := strings.TrimSpace(reason)
	if value == "" {
		return fmt.Errorf("reason is required")
	}

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set logout reason: %w", err)
	}

	return nil
}

// Take returns the stored reason and deletes it atomically.
func (s *ReasonStore) Take(ctx context.Context) (string, bool, error) {
	key := s.key()
	if key == "" {
		return "", false, fmt.Errorf("session id is required")
	}

	value, err := s.client.GetDel(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis getdel logout reason: %w", err)
	}

	return value, true, nil
}

func (s *ReasonStore) key() string {
	if s.sessionID == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", s.prefix, s.sessionID)
}

var _ port.ReasonStore = (*ReasonStore)(nil)
