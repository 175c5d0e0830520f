package security

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialClaims mirrors the access token claims issued by the identity backend.
type CredentialClaims struct {
	UserID    string `json:"uid"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// CredentialInfo is what the guard can learn from a credential without verifying it.
type CredentialInfo struct {
	Subject   string
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

// InspectCredential decodes a JWT credential without verifying its signature. The
// backend remains the authority; the result only drives local decisions such as
// skipping requests with an expired token. ok is false for opaque tokens.
func InspectCredential(token string) (CredentialInfo, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return CredentialInfo{}, false
	}

	claims := CredentialClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return CredentialInfo{}, false
	}

	info := CredentialInfo{
		Subject:   claims.Subject,
		UserID:    strings.TrimSpace(claims.UserID),
		SessionID: strings.TrimSpace(claims.SessionID),
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, true
}

// Expired reports whether the credential carried an expiry that has passed at now.
func (i CredentialInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}
