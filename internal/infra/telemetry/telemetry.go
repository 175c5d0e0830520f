package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arklim/session-guard/internal/core/domain"
	"github.com/arklim/session-guard/internal/usecase"
)

// GuardMetricsOptions configures the guard collectors.
type GuardMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
	Subsystem  string
}

// GuardMetrics exposes Prometheus collectors for the permission polling loop.
type GuardMetrics struct {
	Checks              *prometheus.CounterVec
	FetchFailures       *prometheus.CounterVec
	Confirmations       *prometheus.CounterVec
	Terminations        *prometheus.CounterVec
	ConsecutiveFailures prometheus.Gauge
}

// NewGuardMetrics constructs the collectors and registers them with the provided registerer.
func NewGuardMetrics(opts GuardMetricsOptions) (*GuardMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "guard"
	}

	subsystem := opts.Subsystem
	if subsystem == "" {
		subsystem = "session"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	checks, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "checks_total",
		Help:      "Permission checks partitioned by outcome.",
	}, "outcome")
	if err != nil {
		return nil, err
	}

	failures, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "fetch_failures_total",
		Help:      "Failed permission fetches partitioned by classification.",
	}, "kind")
	if err != nil {
		return nil, err
	}

	confirmations, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "confirmations_total",
		Help:      "Revocation confirmation cycles partitioned by outcome.",
	}, "outcome")
	if err != nil {
		return nil, err
	}

	terminations, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "terminations_total",
		Help:      "Forced session terminations partitioned by cause.",
	}, "cause")
	if err != nil {
		return nil, err
	}

	consecutive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "consecutive_failures",
		Help:      "Current streak of failed permission fetches.",
	})
	if err := reg.Register(consecutive); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(prometheus.Gauge); ok {
				consecutive = existing
			} else {
				return nil, fmt.Errorf("existing consecutive failures collector has unexpected type %T", already.ExistingCollector)
			}
		} else {
			return nil, fmt.Errorf("register consecutive failures collector: %w", err)
		}
	}

	return &GuardMetrics{
		Checks:              checks,
		FetchFailures:       failures,
		Confirmations:       confirmations,
		Terminations:        terminations,
		ConsecutiveFailures: consecutive,
	}, nil
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, label string) (*prometheus.CounterVec, error) {
	vec := prometheus.NewCounterVec(opts, []string{label})
	if err := reg.Register(vec); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("existing %s collector has unexpected type %T", opts.Name, already.ExistingCollector)
		}
		return nil, fmt.Errorf("register %s collector: %w", opts.Name, err)
	}
	return vec, nil
}

func (m *GuardMetrics) IncCheck(outcome string) {
	m.Checks.WithLabelValues(outcome).Inc()
}

func (m *GuardMetrics) IncFetchFailure(kind domain.FetchErrorKind) {
	m.FetchFailures.WithLabelValues(string(kind)).Inc()
}

func (m *GuardMetrics) IncConfirmation(outcome string) {
	m.Confirmations.WithLabelValues(outcome).Inc()
}

func (m *GuardMetrics) IncTermination(cause domain.TerminationCause) {
	m.Terminations.WithLabelValues(string(cause)).Inc()
}

func (m *GuardMetrics) SetConsecutiveFailures(n int) {
	m.ConsecutiveFailures.Set(float64(n))
}

var _ usecase.GuardMetrics = (*GuardMetrics)(nil)
