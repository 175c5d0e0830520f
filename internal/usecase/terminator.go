package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/session-guard/internal/core/domain"
	"github.com/arklim/session-guard/internal/core/port"
)

const (
	// DefaultLoginPath is the login entry point navigated to after termination.
	DefaultLoginPath = "/login"
	// DefaultReasonTTL bounds how long an unread logout reason is kept.
	DefaultReasonTTL = 5 * time.Minute

	notifyTimeout = 5 * time.Second
)

// LocalStateClearer drops one piece of in-memory session state.
type LocalStateClearer interface {
	Clear()
}

// SessionTerminatorDeps groups the collaborators of the terminator. Only Credentials is required.
type SessionTerminatorDeps struct {
	Credentials port.CredentialStore
	Reasons     port.ReasonStore
	Navigator   port.Navigator
	Logout      port.LogoutNotifier
	Events      port.EventPublisher
	Local       []LocalStateClearer
}

// SessionTerminator is the single exit path of a guarded session.
type SessionTerminator struct {
	deps      SessionTerminatorDeps
	sessionID string
	loginPath string
	reasonTTL time.Duration
	logger    *zap.Logger
	metrics   GuardMetrics
	now       func() time.Time

	once   sync.Once
	done   chan struct{}
	mu     sync.RWMutex
	result *domain.Termination
	halts  []func()
}

// NewSessionTerminator constructs a terminator for the session identified by sessionID.
func NewSessionTerminator(deps SessionTerminatorDeps, sessionID string) *SessionTerminator {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &SessionTerminator{
		deps:      deps,
		sessionID: sessionID,
		loginPath: DefaultLoginPath,
		reasonTTL: DefaultReasonTTL,
		logger:    zap.NewNop(),
		metrics:   nopMetrics{},
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// WithLogger attaches a structured logger.
func (t *SessionTerminator) WithLogger(logger *zap.Logger) *SessionTerminator {
	if logger != nil {
		t.logger = logger
	}
	return t
}

// WithMetrics wires telemetry observers.
func (t *SessionTerminator) WithMetrics(metrics GuardMetrics) *SessionTerminator {
	if metrics != nil {
		t.metrics = metrics
	}
	return t
}

// WithLoginPath overrides the navigation target.
func (t *SessionTerminator) WithLoginPath(path string) *SessionTerminator {
	if path = strings.TrimSpace(path); path != "" {
		t.loginPath = path
	}
	return t
}

// WithReasonTTL overrides how long the reason survives unread.
func (t *SessionTerminator) WithReasonTTL(ttl time.Duration) *SessionTerminator {
	if ttl > 0 {
		t.reasonTTL = ttl
	}
	return t
}

// WithNow overrides the clock, primarily for deterministic testing.
func (t *SessionTerminator) WithNow(now func() time.Time) *SessionTerminator {
	if now != nil {
		t.now = now
	}
	return t
}

// WithNavigator sets the component asked to show the login entry point.
func (t *SessionTerminator) WithNavigator(navigator port.Navigator) *SessionTerminator {
	if navigator != nil {
		t.deps.Navigator = navigator
	}
	return t
}

// AddLocalState registers additional state dropped on termination.
func (t *SessionTerminator) AddLocalState(clearers ...LocalStateClearer) *SessionTerminator {
	t.deps.Local = append(t.deps.Local, clearers...)
	return t
}

// onTerminate registers fn to run first on termination, before any state is cleared.
func (t *SessionTerminator) onTerminate(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.halts = append(t.halts, fn)
}

// SessionID identifies the guarded session.
func (t *SessionTerminator) SessionID() string {
	return t.sessionID
}

// Done is closed once the session has been terminated.
func (t *SessionTerminator) Done() <-chan struct{} {
	return t.done
}

// Result returns the termination record, if any.
func (t *SessionTerminator) Result() (domain.Termination, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.result == nil {
		return domain.Termination{}, false
	}
	return *t.result, true
}

// Terminate ends the session with a plain reason. Later calls are no-ops.
func (t *SessionTerminator) Terminate(ctx context.Context, reason string) {
	t.TerminateWith(ctx, domain.Termination{Reason: reason, Cause: domain.TerminationCauseManual})
}

// TerminateWith ends the session described by termination. It never fails; every step is best effort.
func (t *SessionTerminator) TerminateWith(ctx context.Context, termination domain.Termination) {
	t.once.Do(func() {
		t.terminate(context.WithoutCancel(ctx), termination)
	})
}

func (t *SessionTerminator) terminate(ctx context.Context, termination domain.Termination) {
	t.mu.RLock()
	halts := append([]func(){}, t.halts...)
	t.mu.RUnlock()
	for _, halt := range halts {
		halt()
	}

	if termination.TerminatedAt.IsZero() {
		termination.TerminatedAt = t.now().UTC()
	}
	termination.Reason = strings.TrimSpace(termination.Reason)
	if termination.Reason == "" {
		termination.Reason = termination.Report.Reason()
	}

	log := t.logger.With(
		zap.String("session_id", t.sessionID),
		zap.String("cause", string(termination.Cause)),
	)
	log.Warn("terminating session",
		zap.String("reason", termination.Reason),
		zap.Strings("revoked_rights", termination.Report.Names()),
		zap.Bool("store_unreachable", termination.Report.StoreUnreachable),
	)

	if t.deps.Reasons != nil && termination.Reason != "" {
		if err := t.deps.Reasons.Put(ctx, termination.Reason, t.reasonTTL); err != nil {
			log.Warn("failed to persist logout reason", zap.Error(err))
		}
	}

	if t.deps.Logout != nil {
		notifyCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
		if err := t.deps.Logout.NotifyLogout(notifyCtx, termination.Reason); err != nil {
			log.Warn("failed to notify backend logout", zap.Error(err))
		}
		cancel()
	}

	if t.deps.Credentials != nil {
		if err := t.deps.Credentials.Clear(ctx); err != nil {
			log.Warn("failed to clear credentials", zap.Error(err))
		}
	}
	for _, local := range t.deps.Local {
		if local != nil {
			local.Clear()
		}
	}

	if t.deps.Events != nil {
		event := domain.SessionTerminatedEvent{
			EventID:          uuid.NewString(),
			SessionID:        t.sessionID,
			Reason:           termination.Reason,
			RevokedRights:    termination.Report.Rights,
			StoreUnreachable: termination.Report.StoreUnreachable,
			TerminatedAt:     termination.TerminatedAt,
			Metadata:         map[string]any{"cause": string(termination.Cause)},
		}
		if err := t.deps.Events.PublishSessionTerminated(ctx, event); err != nil {
			log.Warn("failed to publish session terminated event", zap.Error(err))
		}
	}

	t.mu.Lock()
	t.result = &termination
	t.mu.Unlock()
	t.metrics.IncTermination(termination.Cause)

	if t.deps.Navigator != nil {
		if err := t.deps.Navigator.Navigate(ctx, t.loginPath); err != nil {
			log.Warn("failed to navigate to login", zap.Error(err))
		}
	}

	close(t.done)
}
