package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/session-guard/internal/core/port"
	"github.com/arklim/session-guard/internal/infra/config"
	kafkainfra "github.com/arklim/session-guard/internal/infra/kafka"
	"github.com/arklim/session-guard/internal/infra/logger"
	redisinfra "github.com/arklim/session-guard/internal/infra/redis"
	"github.com/arklim/session-guard/internal/infra/security"
	"github.com/arklim/session-guard/internal/infra/telemetry"
	"github.com/arklim/session-guard/internal/repository/memory"
	redisrepo "github.com/arklim/session-guard/internal/repository/redis"
	"github.com/arklim/session-guard/internal/transport/http/client"
	"github.com/arklim/session-guard/internal/transport/http/handlers"
	"github.com/arklim/session-guard/internal/transport/http/middleware"
	"github.com/arklim/session-guard/internal/transport/http/routes"
	"github.com/arklim/session-guard/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	tracer     *telemetry.TracerProvider
	redis      *redisinfra.Client
	producer   *kafkainfra.Producer
	scheduler  *usecase.PollingScheduler
	terminator *usecase.SessionTerminator
	session    *handlers.SessionHandler
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	if err := a.wire(ctx); err != nil {
		a.close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *Application) wire(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.tracer = tracer

	guardMetrics, err := telemetry.NewGuardMetrics(telemetry.GuardMetricsOptions{})
	if err != nil {
		return fmt.Errorf("init guard metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}

	sessionID := strings.TrimSpace(cfg.Guard.SessionID)
	if sessionID == "" {
		if info, ok := security.InspectCredential(cfg.Backend.Token); ok {
			sessionID = info.SessionID
		}
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	log = log.With(zap.String("session_id", sessionID))
	a.logger = log

	var reasons port.ReasonStore
	var cacheChecker routes.CacheChecker
	if cfg.Redis.Enabled {
		redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		a.redis = redisClient
		cacheChecker = redisClient
		reasons = redisrepo.NewReasonStore(redisClient.Client(), cfg.Redis.ReasonPrefix, sessionID)
	} else {
		log.Info("redis disabled, keeping logout reason in memory")
		reasons = memory.NewReasonStore()
	}

	var events port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, cfg.App.Name, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			events = kafkainfra.NewStubPublisher(log)
		} else {
			a.producer = producer
			events = kafkainfra.NewEventPublisher(producer, cfg.App, log)
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		events = kafkainfra.NewStubPublisher(log)
	}

	credentials := memory.NewCredentialStore(cfg.Backend.Token)
	backend := client.NewPermissionsClient(cfg.Backend, credentials, log)

	cache := usecase.NewSnapshotCache(backend, cfg.Guard.CacheTTL).WithLogger(log)
	detector := usecase.NewRevocationDetector().WithLogger(log)
	classifier := usecase.NewErrorClassifier(cache, usecase.ErrorClassifierOptions{
		Threshold:  cfg.Guard.FailureThreshold,
		RetryDelay: cfg.Guard.StoreRetryDelay,
	}).WithLogger(log).WithMetrics(guardMetrics)
	confirmer := usecase.NewConfirmationProtocol(cache, cfg.Guard.ConfirmDelay).WithLogger(log)

	a.terminator = usecase.NewSessionTerminator(usecase.SessionTerminatorDeps{
		Credentials: credentials,
		Reasons:     reasons,
		Logout:      backend,
		Events:      events,
		Local:       []usecase.LocalStateClearer{cache, detector, classifier},
	}, sessionID).
		WithLogger(log).
		WithMetrics(guardMetrics).
		WithLoginPath(cfg.Guard.LoginPath).
		WithReasonTTL(cfg.Guard.ReasonTTL)

	a.scheduler = usecase.NewPollingScheduler(cache, detector, confirmer, classifier, a.terminator, usecase.PollingSchedulerOptions{
		Interval:  cfg.Guard.PollInterval,
		Countdown: cfg.Guard.Countdown,
	}).WithLogger(log).WithMetrics(guardMetrics)

	a.session = handlers.NewSessionHandler(a.scheduler, a.terminator, cache, reasons)
	a.terminator.WithNavigator(a.session)

	a.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		SessionID:   sessionID,
		Session:     a.session,
		HTTPMetrics: httpMetrics,
		Cache:       cacheChecker,
	})

	return nil
}

// Run serves the control API and polls permissions until ctx is cancelled. A terminated
// session stops polling but keeps the API up so the shell can follow the redirect.
func (a *Application) Run(ctx context.Context) error {
	defer a.close(context.Background())

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting session guard",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	go a.relayNotices()
	a.scheduler.Start(ctx)

	terminated := a.terminator.Done()
	for {
		select {
		case <-ctx.Done():
			a.scheduler.Stop()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown server: %w", err)
			}
			return nil
		case err := <-serverErrCh:
			a.scheduler.Stop()
			return err
		case <-terminated:
			a.scheduler.Stop()
			result, _ := a.terminator.Result()
			a.logger.Info("session terminated, polling stopped",
				zap.String("cause", string(result.Cause)),
				zap.String("reason", result.Reason),
			)
			terminated = nil
		}
	}
}

func (a *Application) relayNotices() {
	for notice := range a.scheduler.Notices() {
		a.logger.Warn("revocation notice issued",
			zap.Any("rights", notice.ReportedRights),
			zap.Bool("store_unreachable", notice.StoreUnreachable),
		)
		a.session.ShowNotice(notice)
	}
}

func (a *Application) close(ctx context.Context) {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("failed to close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Warn("failed to shut down tracer", zap.Error(err))
	}
	_ = a.logger.Sync()
}
