package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/session-guard/internal/core/domain"
	"github.com/arklim/session-guard/internal/infra/config"
	"github.com/arklim/session-guard/internal/repository/memory"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, token string) *PermissionsClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewPermissionsClient(config.BackendSettings{
		BaseURL: server.URL,
		Timeout: time.Second,
	}, memory.NewCredentialStore(token), zaptest.NewLogger(t))
}

func TestFetchSnapshotDecodesRights(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/permissions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer opaque-token" {
			t.Errorf("unexpected authorization header %q", got)
		}
		_, _ = w.Write([]byte(`{"canDonate":false,"canViewHistory":true,"canViewNotification":null,"unknownRight":true}`))
	}, "opaque-token")

	payload, err := client.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot returned error: %v", err)
	}

	if v := payload[domain.RightCanDonate]; v == nil || *v {
		t.Fatalf("expected canDonate=false, got %v", v)
	}
	if v := payload[domain.RightCanViewHistory]; v == nil || !*v {
		t.Fatalf("expected canViewHistory=true, got %v", v)
	}
	if v, ok := payload[domain.RightCanViewNotification]; !ok || v != nil {
		t.Fatalf("expected canViewNotification to be present and null")
	}
	if len(payload) != 3 {
		t.Fatalf("expected unknown rights to be ignored, got %d entries", len(payload))
	}
}

func TestFetchSnapshotMalformedValueIsNull(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"canDonate":"yes"}`))
	}, "opaque-token")

	payload, err := client.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot returned error: %v", err)
	}
	if v, ok := payload[domain.RightCanDonate]; !ok || v != nil {
		t.Fatalf("expected malformed value to decode as null, got %v", v)
	}
}

func TestFetchSnapshotClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "plain 401", status: http.StatusUnauthorized, body: `{"error":"invalid token"}`, want: domain.ErrUnauthenticated},
		{name: "401 with database marker", status: http.StatusUnauthorized, body: `{"error":"Access denied for user 'app'@'db' (using password: YES)"}`, want: domain.ErrStoreUnreachable},
		{name: "403 with store marker", status: http.StatusForbidden, body: `database unavailable`, want: domain.ErrStoreUnreachable},
		{name: "403 without marker", status: http.StatusForbidden, body: `nope`, want: domain.ErrTransient},
		{name: "server error", status: http.StatusBadGateway, body: `upstream down`, want: domain.ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, "opaque-token")

			_, err := client.FetchSnapshot(context.Background())
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestFetchSnapshotInvalidJSONIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}, "opaque-token")

	if _, err := client.FetchSnapshot(context.Background()); !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestFetchSnapshotWithoutCredential(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, "")

	if _, err := client.FetchSnapshot(context.Background()); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated error, got %v", err)
	}
	if called {
		t.Fatalf("expected no request without a credential")
	}
}

func TestFetchSnapshotExpiredJWT(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "donor-1",
		ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("expected no request with an expired credential")
	}, signed).WithNow(func() time.Time { return now })

	if _, err := client.FetchSnapshot(context.Background()); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated error, got %v", err)
	}
}

func TestFetchSnapshotTransportError(t *testing.T) {
	client := NewPermissionsClient(config.BackendSettings{
		BaseURL: "http://127.0.0.1:1",
		Timeout: 200 * time.Millisecond,
	}, memory.NewCredentialStore("opaque-token"), zaptest.NewLogger(t))

	if _, err := client.FetchSnapshot(context.Background()); !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestNotifyLogout(t *testing.T) {
	var received struct {
		Reason string `json:"reason"`
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/logout" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}, "opaque-token")

	if err := client.NotifyLogout(context.Background(), "rights revoked"); err != nil {
		t.Fatalf("NotifyLogout returned error: %v", err)
	}
	if received.Reason != "rights revoked" {
		t.Fatalf("expected reason to be forwarded, got %q", received.Reason)
	}
}

func TestNotifyLogoutServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, "opaque-token")

	if err := client.NotifyLogout(context.Background(), ""); err == nil {
		t.Fatalf("expected error for 500 response")
	}
}

func TestFetchSnapshotRecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"canDonate":true}`))
	}, "opaque-token")

	if _, err := client.FetchSnapshot(context.Background()); err != nil {
		t.Fatalf("FetchSnapshot returned error: %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "permissions.fetch" {
		t.Fatalf("unexpected span name %q", spans[0].Name())
	}
}
