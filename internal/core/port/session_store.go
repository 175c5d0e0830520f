package port

import (
	"context"
	"time"
)

// CredentialStore holds the local session credential.
type CredentialStore interface {
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// ReasonStore keeps the logout reason for the next unauthenticated view.
// Take returns the stored reason once; later calls report ok=false.
type ReasonStore interface {
	Put(ctx context.Context, reason string, ttl time.Duration) error
	Take(ctx context.Context) (reason string, ok bool, err error)
}

// Navigator performs the hard navigation to the login entry point.
type Navigator interface {
	Navigate(ctx context.Context, target string) error
}
