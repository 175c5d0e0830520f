package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/session-guard/internal/core/domain"
	"github.com/arklim/session-guard/internal/core/port"
	"github.com/arklim/session-guard/internal/infra/config"
	"github.com/arklim/session-guard/internal/infra/logger"
	"github.com/arklim/session-guard/internal/infra/security"
	"github.com/arklim/session-guard/internal/repository"
)

const (
	tracerName = "github.com/arklim/session-guard/internal/transport/http/client"

	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

// storeDeniedMarkers identify authorization-store failures in 401/403 bodies.
var storeDeniedMarkers = []string{
	"access denied",
	"access_denied",
	"er_access_denied",
	"database",
	"permission store",
}

// PermissionsClient talks to the donation backend on behalf of the signed-in user.
type PermissionsClient struct {
	baseURL         string
	permissionsPath string
	logoutPath      string
	http            *http.Client
	credentials     port.CredentialStore
	logger          *zap.Logger
	tracer          trace.Tracer
	now             func() time.Time
}

// NewPermissionsClient constructs a backend client from configuration.
func NewPermissionsClient(cfg config.BackendSettings, credentials port.CredentialStore, log *zap.Logger) *PermissionsClient {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &PermissionsClient{
		baseURL:         strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		permissionsPath: pathOrDefault(cfg.PermissionsPath, "/permissions"),
		logoutPath:      pathOrDefault(cfg.LogoutPath, "/logout"),
		http:            &http.Client{Timeout: timeout},
		credentials:     credentials,
		logger:          log,
		tracer:          otel.Tracer(tracerName),
		now:             time.Now,
	}
}

// WithHTTPClient swaps the underlying HTTP client, primarily for tests.
func (c *PermissionsClient) WithHTTPClient(hc *http.Client) *PermissionsClient {
	if hc != nil {
		c.http = hc
	}
	return c
}

// WithNow overrides the clock used for credential expiry checks.
func (c *PermissionsClient) WithNow(now func() time.Time) *PermissionsClient {
	if now != nil {
		c.now = now
	}
	return c
}

// FetchSnapshot retrieves the caller's current rights.
func (c *PermissionsClient) FetchSnapshot(ctx context.Context) (domain.SnapshotPayload, error) {
	ctx, span := c.tracer.Start(ctx, "permissions.fetch")
	defer span.End()

	token, err := c.credential(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "unauthenticated")
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.permissionsPath, nil)
	if err != nil {
		return nil, domain.NewFetchError(domain.FetchErrorTransient, 0, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return nil, domain.NewFetchError(domain.FetchErrorTransient, 0, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		fetchErr := classifyResponse(resp)
		span.SetStatus(codes.Error, string(fetchErr.Kind))
		c.logger.Debug("permissions request rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("kind", string(fetchErr.Kind)),
		)
		return nil, fetchErr
	}

	payload, err := decodeSnapshot(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode error")
		return nil, domain.NewFetchError(domain.FetchErrorTransient, resp.StatusCode, err)
	}

	return payload, nil
}

// NotifyLogout informs the backend that the session is closing.
func (c *PermissionsClient) NotifyLogout(ctx context.Context, reason string) error {
	ctx, span := c.tracer.Start(ctx, "permissions.logout")
	defer span.End()

	token, err := c.credentials.Token(ctx)
	if err != nil {
		return fmt.Errorf("logout notification skipped: %w", err)
	}

	body, err := json.Marshal(struct {
		Reason string `json:"reason,omitempty"`
	}{Reason: reason})
	if err != nil {
		return fmt.Errorf("marshal logout notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.logoutPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build logout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("send logout notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusUnauthorized {
		return fmt.Errorf("logout notification rejected with status %d", resp.StatusCode)
	}
	return nil
}

func (c *PermissionsClient) credential(ctx context.Context) (string, error) {
	token, err := c.credentials.Token(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNoCredential) {
			return "", domain.NewFetchError(domain.FetchErrorUnauthenticated, 0, err)
		}
		return "", domain.NewFetchError(domain.FetchErrorTransient, 0, err)
	}
	if token == "" {
		return "", domain.NewFetchError(domain.FetchErrorUnauthenticated, 0, repository.ErrNoCredential)
	}

	if info, ok := security.InspectCredential(token); ok && info.Expired(c.now()) {
		c.logger.Debug("credential expired",
			zap.String("credential", logger.MaskString(token)),
			zap.Time("expires_at", info.ExpiresAt),
		)
		return "", domain.NewFetchError(domain.FetchErrorUnauthenticated, 0, jwt.ErrTokenExpired)
	}
	return token, nil
}

func classifyResponse(resp *http.Response) *domain.FetchError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := strings.ToLower(string(body))

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		if hasStoreDeniedMarker(message) {
			return domain.NewFetchError(domain.FetchErrorStoreUnreachable, resp.StatusCode, fmt.Errorf("authorization store denied access: %s", strings.TrimSpace(string(body))))
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return domain.NewFetchError(domain.FetchErrorUnauthenticated, resp.StatusCode, errors.New("credential rejected"))
		}
	}
	return domain.NewFetchError(domain.FetchErrorTransient, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode))
}

func hasStoreDeniedMarker(message string) bool {
	for _, marker := range storeDeniedMarkers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}

// decodeSnapshot reads the rights object. Values that are not booleans are kept as null.
func decodeSnapshot(r io.Reader) (domain.SnapshotPayload, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode permissions: %w", err)
	}
	if raw == nil {
		return nil, errors.New("decode permissions: empty body")
	}

	payload := make(domain.SnapshotPayload, len(raw))
	for name, value := range raw {
		right, ok := domain.ParseRight(name)
		if !ok {
			continue
		}
		var granted *bool
		if err := json.Unmarshal(value, &granted); err != nil {
			granted = nil
		}
		payload[right] = granted
	}
	return payload, nil
}

func pathOrDefault(path, fallback string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return fallback
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

var (
	_ port.SnapshotFetcher = (*PermissionsClient)(nil)
	_ port.LogoutNotifier  = (*PermissionsClient)(nil)
)
