package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/session-guard/internal/core/domain"
)

const (
	// DefaultPollInterval is the cadence of permission checks.
	DefaultPollInterval = 30 * time.Second
	// DefaultCountdown is how long the revocation dialog waits before terminating on its own.
	DefaultCountdown = 3 * time.Second
)

var (
	// ErrSchedulerNotRunning is returned by CheckNow when the scheduler is stopped.
	ErrSchedulerNotRunning = errors.New("scheduler: not running")
	// ErrCycleInFlight is returned by CheckNow when another cycle is unresolved.
	ErrCycleInFlight = errors.New("scheduler: check already in flight")
)

// SchedulerState is the lifecycle state of the polling loop.
type SchedulerState string

const (
	StateStopped    SchedulerState = "stopped"
	StateIdle       SchedulerState = "idle"
	StateChecking   SchedulerState = "checking"
	StateConfirming SchedulerState = "confirming"
	StateTerminated SchedulerState = "terminated"
)

// PollingSchedulerOptions configures cadence and the revocation countdown.
type PollingSchedulerOptions struct {
	Interval  time.Duration
	Countdown time.Duration
}

// PollingScheduler drives periodic permission checks for one session. It is the handle
// through which the session's polling is started, paused, resumed and stopped.
type PollingScheduler struct {
	cache      *SnapshotCache
	detector   *RevocationDetector
	confirmer  *ConfirmationProtocol
	classifier *ErrorClassifier
	terminator *SessionTerminator

	interval  time.Duration
	countdown time.Duration
	logger    *zap.Logger
	metrics   GuardMetrics
	now       func() time.Time

	mu         sync.Mutex
	state      SchedulerState
	running    bool
	revoked    bool
	generation uint64
	cancel     context.CancelFunc
	busy       bool
	busyGen    uint64

	paused atomic.Bool

	notices    chan domain.RevocationNotice
	noticeOnce sync.Once
}

// NewPollingScheduler wires the polling loop around its collaborators.
func NewPollingScheduler(cache *SnapshotCache, detector *RevocationDetector, confirmer *ConfirmationProtocol, classifier *ErrorClassifier, terminator *SessionTerminator, opts PollingSchedulerOptions) *PollingScheduler {
	s := &PollingScheduler{
		cache:      cache,
		detector:   detector,
		confirmer:  confirmer,
		classifier: classifier,
		terminator: terminator,
		interval:   opts.Interval,
		countdown:  opts.Countdown,
		logger:     zap.NewNop(),
		metrics:    nopMetrics{},
		now:        time.Now,
		state:      StateStopped,
		notices:    make(chan domain.RevocationNotice, 1),
	}
	if s.interval <= 0 {
		s.interval = DefaultPollInterval
	}
	if s.countdown <= 0 {
		s.countdown = DefaultCountdown
	}
	if terminator != nil {
		terminator.onTerminate(s.halt)
	}
	return s
}

// WithLogger attaches a structured logger.
func (s *PollingScheduler) WithLogger(logger *zap.Logger) *PollingScheduler {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithMetrics wires telemetry observers.
func (s *PollingScheduler) WithMetrics(metrics GuardMetrics) *PollingScheduler {
	if metrics != nil {
		s.metrics = metrics
	}
	return s
}

// Notices delivers at most one revocation notice per session and is then closed.
func (s *PollingScheduler) Notices() <-chan domain.RevocationNotice {
	return s.notices
}

// State reports the current lifecycle state.
func (s *PollingScheduler) State() SchedulerState {
	if s.terminator != nil {
		if _, ok := s.terminator.Result(); ok {
			return StateTerminated
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ErrorState reports the failure streak and the pause flag.
func (s *PollingScheduler) ErrorState() domain.ErrorState {
	return domain.ErrorState{
		ConsecutiveFailures: s.classifier.ConsecutiveFailures(),
		Paused:              s.paused.Load(),
	}
}

// Start runs one check immediately and then one per interval until Stop or ctx ends.
func (s *PollingScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("permission polling already running")
		return
	}
	if s.revoked {
		s.mu.Unlock()
		s.logger.Warn("permission polling not started: session revoked")
		return
	}
	s.running = true
	s.generation++
	gen := s.generation
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StateIdle
	s.mu.Unlock()

	s.logger.Info("permission polling started", zap.Duration("interval", s.interval))
	go s.loop(runCtx, gen)
}

// Stop cancels the timer and suppresses every pending action of the current cycle.
// Requests already dispatched are left to finish on their own.
func (s *PollingScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.state = StateStopped
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.logger.Info("permission polling stopped")
}

// Pause keeps the timer ticking but skips network work until Resume.
func (s *PollingScheduler) Pause() {
	if !s.paused.Swap(true) {
		s.logger.Info("permission polling paused")
	}
}

// Resume re-enables checks on the next tick.
func (s *PollingScheduler) Resume() {
	if s.paused.Swap(false) {
		s.logger.Info("permission polling resumed")
	}
}

// CheckNow runs one full cycle synchronously.
func (s *PollingScheduler) CheckNow(ctx context.Context) error {
	s.mu.Lock()
	running, gen := s.running, s.generation
	s.mu.Unlock()
	if !running {
		return ErrSchedulerNotRunning
	}
	if !s.acquire(gen) {
		return ErrCycleInFlight
	}
	defer s.release(gen)
	s.runCycle(ctx, gen)
	return nil
}

func (s *PollingScheduler) loop(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx, gen)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, gen)
		}
	}
}

func (s *PollingScheduler) tick(ctx context.Context, gen uint64) {
	if s.paused.Load() {
		s.metrics.IncCheck(CheckOutcomeSkipped)
		return
	}
	if !s.acquire(gen) {
		s.logger.Debug("permission check skipped: previous cycle unresolved")
		s.metrics.IncCheck(CheckOutcomeSkipped)
		return
	}
	go func() {
		defer s.release(gen)
		s.runCycle(ctx, gen)
	}()
}

func (s *PollingScheduler) runCycle(ctx context.Context, gen uint64) {
	log := s.logger.With(zap.String("cycle_id", uuid.NewString()))
	if !s.transition(gen, StateChecking) {
		return
	}

	snapshot, err := s.cache.Fetch(ctx)
	if !s.active(ctx, gen) {
		return
	}
	if err != nil {
		verdict := s.classifier.Handle(ctx, err)
		if !s.active(ctx, gen) {
			return
		}
		if verdict.Terminate {
			s.revoke(gen, domain.StoreUnreachableReport(), verdict.Cause)
			return
		}
		if !verdict.Recovered {
			s.metrics.IncCheck(CheckOutcomeFailed)
			s.transition(gen, StateIdle)
			return
		}
		snapshot = verdict.Snapshot
	} else {
		s.classifier.RecordSuccess()
	}

	var (
		report domain.RevocationReport
		anchor domain.PermissionSnapshot
	)
	if !s.guarded(ctx, gen, func() { report, anchor = s.detector.Detect(snapshot) }) {
		return
	}
	if report.IsEmpty() {
		s.metrics.IncCheck(CheckOutcomeOK)
		s.transition(gen, StateIdle)
		return
	}

	s.metrics.IncCheck(CheckOutcomeTentative)
	log.Info("tentative revocation detected, confirming", zap.Strings("rights", report.Names()))
	if !s.transition(gen, StateConfirming) {
		return
	}

	result, err := s.confirmer.Confirm(ctx, anchor, report)
	if !s.active(ctx, gen) {
		return
	}
	if err != nil {
		s.metrics.IncConfirmation(ConfirmationFailed)
		verdict := s.classifier.Handle(ctx, err)
		if !s.active(ctx, gen) {
			return
		}
		if verdict.Terminate {
			s.revoke(gen, domain.StoreUnreachableReport(), verdict.Cause)
			return
		}
		if !verdict.Recovered {
			s.transition(gen, StateIdle)
			return
		}
		result = s.confirmer.Evaluate(anchor, report, verdict.Snapshot)
	} else {
		s.classifier.RecordSuccess()
	}

	if !result.Confirmed {
		if !s.guarded(ctx, gen, func() { s.detector.Reset(result.Snapshot) }) {
			return
		}
		s.metrics.IncConfirmation(ConfirmationRetracted)
		log.Info("tentative revocation retracted", zap.Strings("rights", report.Names()))
		s.transition(gen, StateIdle)
		return
	}

	s.metrics.IncConfirmation(ConfirmationConfirmed)
	log.Warn("revocation confirmed", zap.Strings("rights", result.Report.Names()))
	s.revoke(gen, result.Report, domain.TerminationCauseRevocation)
}

// revoke stops polling, hands the notice to the dialog and arms the countdown.
func (s *PollingScheduler) revoke(gen uint64, report domain.RevocationReport, cause domain.TerminationCause) {
	s.mu.Lock()
	if !s.running || s.generation != gen {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.revoked = true
	s.state = StateStopped
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	termination := domain.Termination{Reason: report.Reason(), Report: report, Cause: cause}

	ack := make(chan struct{})
	var ackOnce sync.Once
	notice := domain.NewRevocationNotice(report, s.now().UTC(), func() {
		ackOnce.Do(func() { close(ack) })
	})
	s.noticeOnce.Do(func() {
		s.notices <- notice
		close(s.notices)
	})

	go func() {
		timer := time.NewTimer(s.countdown)
		defer timer.Stop()
		select {
		case <-ack:
		case <-timer.C:
		case <-s.terminator.Done():
			return
		}
		s.terminator.TerminateWith(context.Background(), termination)
	}()
}

// halt ends polling for good. The terminator calls it before any session state is cleared.
func (s *PollingScheduler) halt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked = true
	s.state = StateTerminated
	if !s.running {
		return
	}
	s.running = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.logger.Info("permission polling stopped: session terminated")
}

// guarded runs fn while holding the lock, and only if gen is still the live generation.
func (s *PollingScheduler) guarded(ctx context.Context, gen uint64, fn func()) bool {
	if ctx.Err() != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.generation != gen {
		return false
	}
	fn()
	return true
}

func (s *PollingScheduler) acquire(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy && s.busyGen == gen {
		return false
	}
	s.busy, s.busyGen = true, gen
	return true
}

func (s *PollingScheduler) release(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busyGen == gen {
		s.busy = false
	}
}

func (s *PollingScheduler) active(ctx context.Context, gen uint64) bool {
	if ctx.Err() != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.generation == gen
}

func (s *PollingScheduler) transition(gen uint64, next SchedulerState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.generation != gen {
		return false
	}
	s.state = next
	return true
}
