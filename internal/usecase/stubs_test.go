package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arklim/session-guard/internal/core/domain"
)

type fetchResult struct {
	payload domain.SnapshotPayload
	err     error
}

// scriptedFetcher replays script in order and then keeps returning fallback.
type scriptedFetcher struct {
	mu       sync.Mutex
	script   []fetchResult
	fallback fetchResult
	calls    int
	gate     chan struct{}
}

func newScriptedFetcher(fallback fetchResult, script ...fetchResult) *scriptedFetcher {
	return &scriptedFetcher{script: script, fallback: fallback}
}

func (f *scriptedFetcher) FetchSnapshot(_ context.Context) (domain.SnapshotPayload, error) {
	f.mu.Lock()
	f.calls++
	result := f.fallback
	if len(f.script) > 0 {
		result = f.script[0]
		f.script = f.script[1:]
	}
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return result.payload, result.err
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *scriptedFetcher) setFallback(result fetchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallback = result
}

func granted(values map[domain.Right]bool) fetchResult {
	payload := make(domain.SnapshotPayload, len(values))
	for r, v := range values {
		v := v
		payload[r] = &v
	}
	return fetchResult{payload: payload}
}

func allTrue() fetchResult {
	return granted(map[domain.Right]bool{
		domain.RightCanDonate:           true,
		domain.RightCanViewHistory:      true,
		domain.RightCanViewNotification: true,
	})
}

func donateDenied() fetchResult {
	return granted(map[domain.Right]bool{
		domain.RightCanDonate:           false,
		domain.RightCanViewHistory:      true,
		domain.RightCanViewNotification: true,
	})
}

func failure(kind domain.FetchErrorKind) fetchResult {
	return fetchResult{err: domain.NewFetchError(kind, 0, errors.New("boom"))}
}

type stubCredentials struct {
	mu     sync.Mutex
	token  string
	clears int
}

func (s *stubCredentials) Token(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *stubCredentials) SetToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *stubCredentials) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.clears++
	return nil
}

func (s *stubCredentials) Clears() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}

type stubNavigator struct {
	mu      sync.Mutex
	targets []string
}

func (s *stubNavigator) Navigate(_ context.Context, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = append(s.targets, target)
	return nil
}

func (s *stubNavigator) Targets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.targets))
	copy(out, s.targets)
	return out
}

type stubLogout struct {
	mu      sync.Mutex
	reasons []string
	err     error
}

func (s *stubLogout) NotifyLogout(_ context.Context, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reasons = append(s.reasons, reason)
	return s.err
}

type stubEvents struct {
	mu     sync.Mutex
	events []domain.SessionTerminatedEvent
}

func (s *stubEvents) PublishSessionTerminated(_ context.Context, event domain.SessionTerminatedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *stubEvents) Events() []domain.SessionTerminatedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SessionTerminatedEvent, len(s.events))
	copy(out, s.events)
	return out
}

type stubReasons struct {
	mu     sync.Mutex
	reason string
	puts   int
	err    error
}

func (s *stubReasons) Put(_ context.Context, reason string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.err != nil {
		return s.err
	}
	s.reason = reason
	return nil
}

func (s *stubReasons) Take(context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reason := s.reason
	s.reason = ""
	return reason, reason != "", nil
}

type stubMetrics struct {
	mu            sync.Mutex
	checks        map[string]int
	failures      map[domain.FetchErrorKind]int
	confirmations map[string]int
	terminations  map[domain.TerminationCause]int
	consecutive   int
}

func newStubMetrics() *stubMetrics {
	return &stubMetrics{
		checks:        make(map[string]int),
		failures:      make(map[domain.FetchErrorKind]int),
		confirmations: make(map[string]int),
		terminations:  make(map[domain.TerminationCause]int),
	}
}

func (s *stubMetrics) IncCheck(outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[outcome]++
}

func (s *stubMetrics) IncFetchFailure(kind domain.FetchErrorKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[kind]++
}

func (s *stubMetrics) IncConfirmation(outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmations[outcome]++
}

func (s *stubMetrics) IncTermination(cause domain.TerminationCause) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminations[cause]++
}

func (s *stubMetrics) SetConsecutiveFailures(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutive = n
}

func (s *stubMetrics) Confirmations(outcome string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmations[outcome]
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}
