package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/session-guard/internal/core/domain"
)

const (
	// DefaultFailureThreshold is the number of consecutive transient failures treated as revocation.
	DefaultFailureThreshold = 3
	// DefaultStoreRetryDelay precedes the single retry after a store-unreachable failure.
	DefaultStoreRetryDelay = 2 * time.Second
)

// Verdict is the classifier's decision for one failed fetch.
type Verdict struct {
	// Terminate requests a store-unreachable session termination.
	Terminate bool
	// Cause explains a termination.
	Cause domain.TerminationCause
	// Recovered is set when the store-unreachable retry succeeded; Snapshot holds its result.
	Recovered bool
	Snapshot  domain.PermissionSnapshot
}

// ErrorClassifier turns fetch failures into keep-polling or terminate decisions.
type ErrorClassifier struct {
	cache      *SnapshotCache
	threshold  int
	retryDelay time.Duration
	logger     *zap.Logger
	metrics    GuardMetrics

	mu       sync.Mutex
	failures int
}

// ErrorClassifierOptions configures the classifier.
type ErrorClassifierOptions struct {
	Threshold  int
	RetryDelay time.Duration
}

// NewErrorClassifier constructs a classifier that retries through cache.
func NewErrorClassifier(cache *SnapshotCache, opts ErrorClassifierOptions) *ErrorClassifier {
	c := &ErrorClassifier{
		cache:      cache,
		threshold:  opts.Threshold,
		retryDelay: opts.RetryDelay,
		logger:     zap.NewNop(),
		metrics:    nopMetrics{},
	}
	if c.threshold <= 0 {
		c.threshold = DefaultFailureThreshold
	}
	if c.retryDelay <= 0 {
		c.retryDelay = DefaultStoreRetryDelay
	}
	return c
}

// WithLogger attaches a structured logger.
func (c *ErrorClassifier) WithLogger(logger *zap.Logger) *ErrorClassifier {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithMetrics wires telemetry observers.
func (c *ErrorClassifier) WithMetrics(metrics GuardMetrics) *ErrorClassifier {
	if metrics != nil {
		c.metrics = metrics
	}
	return c
}

// ConsecutiveFailures returns the current failure streak.
func (c *ErrorClassifier) ConsecutiveFailures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

// RecordSuccess resets the failure streak.
func (c *ErrorClassifier) RecordSuccess() {
	c.mu.Lock()
	c.failures = 0
	c.mu.Unlock()
	c.metrics.SetConsecutiveFailures(0)
}

// Reset clears all state, used across login cycles.
func (c *ErrorClassifier) Reset() {
	c.RecordSuccess()
}

// Clear drops the failure streak when the session ends.
func (c *ErrorClassifier) Clear() {
	c.Reset()
}

// Handle classifies err and decides whether the session must end.
func (c *ErrorClassifier) Handle(ctx context.Context, err error) Verdict {
	kind := domain.ClassifyFetchError(err)
	c.metrics.IncFetchFailure(kind)

	switch kind {
	case domain.FetchErrorUnauthenticated:
		c.logger.Debug("permissions check skipped: no credential", zap.Error(err))
		return Verdict{}
	case domain.FetchErrorStoreUnreachable:
		return c.handleStoreUnreachable(ctx, err)
	default:
		return c.handleTransient(err)
	}
}

func (c *ErrorClassifier) handleStoreUnreachable(ctx context.Context, err error) Verdict {
	c.logger.Warn("authorization store unreachable, retrying once", zap.Error(err), zap.Duration("delay", c.retryDelay))
	if sleepErr := sleepContext(ctx, c.retryDelay); sleepErr != nil {
		return Verdict{}
	}

	snapshot, retryErr := c.cache.Fetch(ctx)
	if retryErr == nil {
		c.RecordSuccess()
		return Verdict{Recovered: true, Snapshot: snapshot}
	}

	kind := domain.ClassifyFetchError(retryErr)
	c.metrics.IncFetchFailure(kind)
	if kind == domain.FetchErrorUnauthenticated {
		return Verdict{}
	}

	c.logger.Warn("authorization store still unreachable after retry", zap.Error(retryErr))
	return Verdict{Terminate: true, Cause: domain.TerminationCauseStoreUnreachable}
}

func (c *ErrorClassifier) handleTransient(err error) Verdict {
	c.mu.Lock()
	c.failures++
	failures := c.failures
	c.mu.Unlock()
	c.metrics.SetConsecutiveFailures(failures)

	if failures >= c.threshold {
		c.logger.Warn("permissions unverifiable, failing closed",
			zap.Int("consecutive_failures", failures),
			zap.Error(err),
		)
		return Verdict{Terminate: true, Cause: domain.TerminationCauseFailureThreshold}
	}

	c.logger.Info("permissions check failed",
		zap.Int("consecutive_failures", failures),
		zap.Int("threshold", c.threshold),
		zap.Error(err),
	)
	return Verdict{}
}
