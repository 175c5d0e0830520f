package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/session-guard/internal/core/domain"
)

type countingClearer struct {
	mu     sync.Mutex
	clears int
}

func (c *countingClearer) Clear() {
	c.mu.Lock()
	c.clears++
	c.mu.Unlock()
}

type terminatorFixture struct {
	credentials *stubCredentials
	reasons     *stubReasons
	navigator   *stubNavigator
	logout      *stubLogout
	events      *stubEvents
	local       *countingClearer
	metrics     *stubMetrics
	terminator  *SessionTerminator
}

func newTerminatorFixture(t *testing.T) *terminatorFixture {
	t.Helper()
	f := &terminatorFixture{
		credentials: &stubCredentials{token: "opaque-token"},
		reasons:     &stubReasons{},
		navigator:   &stubNavigator{},
		logout:      &stubLogout{},
		events:      &stubEvents{},
		local:       &countingClearer{},
		metrics:     newStubMetrics(),
	}
	f.terminator = NewSessionTerminator(SessionTerminatorDeps{
		Credentials: f.credentials,
		Reasons:     f.reasons,
		Navigator:   f.navigator,
		Logout:      f.logout,
		Events:      f.events,
	}, "session-1").
		WithLogger(zaptest.NewLogger(t)).
		WithMetrics(f.metrics).
		AddLocalState(f.local)
	return f
}

func TestSessionTerminatorTerminatesOnce(t *testing.T) {
	f := newTerminatorFixture(t)
	report := domain.NewRevocationReport([]domain.Right{domain.RightCanDonate}, false)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.terminator.TerminateWith(context.Background(), domain.Termination{
				Report: report,
				Cause:  domain.TerminationCauseRevocation,
			})
		}()
	}
	wg.Wait()

	if f.credentials.Clears() != 1 {
		t.Fatalf("expected credentials cleared once, got %d", f.credentials.Clears())
	}
	if targets := f.navigator.Targets(); len(targets) != 1 || targets[0] != DefaultLoginPath {
		t.Fatalf("expected a single navigation to login, got %v", targets)
	}
	if f.reasons.puts != 1 {
		t.Fatalf("expected reason stored once, got %d", f.reasons.puts)
	}
	if f.local.clears != 1 {
		t.Fatalf("expected local state cleared once, got %d", f.local.clears)
	}
	if f.metrics.terminations[domain.TerminationCauseRevocation] != 1 {
		t.Fatalf("expected one termination metric")
	}

	select {
	case <-f.terminator.Done():
	default:
		t.Fatalf("expected Done to be closed")
	}
	result, ok := f.terminator.Result()
	if !ok || result.Cause != domain.TerminationCauseRevocation {
		t.Fatalf("unexpected result %+v", result)
	}
	if !strings.Contains(result.Reason, "donating") {
		t.Fatalf("expected reason rendered from the report, got %q", result.Reason)
	}
}

func TestSessionTerminatorReasonIsReadOnce(t *testing.T) {
	f := newTerminatorFixture(t)
	f.terminator.TerminateWith(context.Background(), domain.Termination{
		Report: domain.StoreUnreachableReport(),
		Cause:  domain.TerminationCauseStoreUnreachable,
	})

	reason, ok, _ := f.reasons.Take(context.Background())
	if !ok || reason != domain.StoreRevokedReason {
		t.Fatalf("expected store message, got %q", reason)
	}
	if _, ok, _ := f.reasons.Take(context.Background()); ok {
		t.Fatalf("expected reason to be consumed by the first read")
	}
	if len(f.logout.reasons) != 1 || f.logout.reasons[0] != domain.StoreRevokedReason {
		t.Fatalf("expected backend to be notified with the reason, got %v", f.logout.reasons)
	}
}

func TestSessionTerminatorPublishesEvent(t *testing.T) {
	f := newTerminatorFixture(t)
	at := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	f.terminator.WithNow(func() time.Time { return at })

	f.terminator.TerminateWith(context.Background(), domain.Termination{
		Report: domain.NewRevocationReport([]domain.Right{domain.RightCanViewHistory}, false),
		Cause:  domain.TerminationCauseRevocation,
	})

	events := f.events.Events()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	event := events[0]
	if event.SessionID != "session-1" || event.EventID == "" {
		t.Fatalf("unexpected event identity %+v", event)
	}
	if !event.TerminatedAt.Equal(at) {
		t.Fatalf("unexpected termination time %v", event.TerminatedAt)
	}
	if len(event.RevokedRights) != 1 || event.RevokedRights[0] != domain.RightCanViewHistory {
		t.Fatalf("unexpected revoked rights %v", event.RevokedRights)
	}
	if event.Metadata["cause"] != string(domain.TerminationCauseRevocation) {
		t.Fatalf("expected cause metadata, got %v", event.Metadata)
	}
}

func TestSessionTerminatorBestEffort(t *testing.T) {
	f := newTerminatorFixture(t)
	f.logout.err = errors.New("backend down")
	f.reasons.err = errors.New("redis down")

	f.terminator.Terminate(context.Background(), "signed out")

	if f.credentials.Clears() != 1 {
		t.Fatalf("expected credentials cleared despite failures")
	}
	if len(f.navigator.Targets()) != 1 {
		t.Fatalf("expected navigation despite failures")
	}
	result, _ := f.terminator.Result()
	if result.Cause != domain.TerminationCauseManual || result.Reason != "signed out" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestSessionTerminatorCustomLoginPath(t *testing.T) {
	f := newTerminatorFixture(t)
	f.terminator.WithLoginPath("/auth/login")
	f.terminator.Terminate(context.Background(), "")

	if targets := f.navigator.Targets(); len(targets) != 1 || targets[0] != "/auth/login" {
		t.Fatalf("unexpected navigation %v", targets)
	}
	if f.reasons.puts != 0 {
		t.Fatalf("expected empty reason not to be stored")
	}
}

func TestSessionTerminatorGeneratesSessionID(t *testing.T) {
	terminator := NewSessionTerminator(SessionTerminatorDeps{}, " ")
	if terminator.SessionID() == "" {
		t.Fatalf("expected generated session id")
	}
	terminator.Terminate(context.Background(), "bye")
	if _, ok := terminator.Result(); !ok {
		t.Fatalf("expected termination without optional collaborators")
	}
}
