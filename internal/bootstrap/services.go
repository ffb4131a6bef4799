package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/recruitpro/recruitpro-jobs/config"
	redisadapter "github.com/recruitpro/recruitpro-jobs/internal/adapters/redis"
	"github.com/recruitpro/recruitpro-jobs/internal/ai"
	"github.com/recruitpro/recruitpro-jobs/internal/data"
	"github.com/recruitpro/recruitpro-jobs/internal/domain/job"
	"github.com/recruitpro/recruitpro-jobs/internal/jobs"
	"github.com/recruitpro/recruitpro-jobs/internal/observability/statsd"
	"github.com/recruitpro/recruitpro-jobs/internal/queue"
	"github.com/recruitpro/recruitpro-jobs/internal/service"
	"github.com/recruitpro/recruitpro-jobs/internal/worker"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs          *service.JobService
	Reaper        *service.ReaperService
	Worker        *worker.Runner
	Queue         *queue.Queue
	Registry      *queue.Registry
	Broker        *job.Broker
	Repo          *data.JobRepo
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink   *statsd.Client
	MetricsConfig config.ObservabilityMetricsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient *redis.Client
	Logger      *slog.Logger
}

// buildObservability configures the metrics sink.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  "recruitpro",
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:   metricsSink,
		MetricsConfig: cfg.Metrics,
	}
}

// buildGenerator builds the AI text generator when a provider is
// configured. A nil generator is valid: handlers that depend on it
// fail or fall back at run time.
func buildGenerator(cfg config.AIConfig, logger *slog.Logger) ai.TextGenerator {
	if !cfg.Enabled() {
		if logger != nil {
			logger.Info("no AI provider configured, generation handlers run degraded")
		}
		return nil
	}

	client, err := ai.NewGeminiClient(ai.GeminiOptions{
		APIKey:     cfg.GeminiAPIKey,
		Model:      cfg.GeminiModel,
		HTTPClient: &http.Client{Timeout: cfg.RequestTimeout},
		Logger:     logger,
	})
	if err != nil {
		if logger != nil {
			logger.Error("failed to initialise gemini client", "error", err)
		}
		return nil
	}
	return client
}

// buildPublisher composes the in-process broker with the optional Redis
// fan-out. Both are fire-and-forget.
func buildPublisher(broker *job.Broker, redisClient *redis.Client, logger *slog.Logger) job.Publisher {
	if redisClient == nil {
		return broker
	}
	return job.Multi{broker, redisadapter.NewEventPublisher(redisClient, logger)}
}

// NewServices wires repositories, the queue, handlers, and services.
func NewServices(deps *ServiceDeps) ServiceContainer {
	if deps == nil {
		return ServiceContainer{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := deps.Config
	if cfg == nil {
		cfg = &config.AppConfig{}
		cfg.Sanitize()
	}

	observability := buildObservability(logger, cfg.Observability)

	repo := data.NewJobRepo(deps.DB, data.RepoConfig{Logger: logger})
	jobQueue := queue.New(cfg.Worker.QueueCapacity)
	registry := queue.NewRegistry()
	broker := job.NewBroker()

	runner := worker.MustNewRunner(worker.RunnerOptions{
		Queue:        jobQueue,
		Registry:     registry,
		Logger:       logger,
		PollInterval: cfg.Worker.PollInterval,
		Metrics:      observability.MetricsSink,
	})

	jobService := service.MustNewJobService(service.JobServiceOptions{
		Repo:     repo,
		Queue:    jobQueue,
		Registry: registry,
		Worker:   runner,
		Logger:   logger,
		Metrics:  observability.MetricsSink,
	})

	handlerDeps := &jobs.Deps{
		Repo:      repo,
		Publisher: buildPublisher(broker, deps.RedisClient, logger),
		Logger:    logger,
	}
	generator := buildGenerator(cfg.AI, logger)

	registry.Register(jobs.NewEchoHandler(handlerDeps))
	registry.Register(jobs.NewScreeningHandler(handlerDeps, generator, jobService))
	registry.Register(jobs.NewOutreachHandler(handlerDeps, generator))
	registry.Register(jobs.NewJobDescriptionHandler(handlerDeps, generator))
	registry.Register(jobs.NewSalaryHandler(handlerDeps, generator))

	reaperService := service.MustNewReaperService(service.ReaperServiceOptions{
		Repo:    repo,
		Config:  cfg.Reaper,
		Logger:  logger,
		Metrics: observability.MetricsSink,
	})

	return ServiceContainer{
		Jobs:          jobService,
		Reaper:        reaperService,
		Worker:        runner,
		Queue:         jobQueue,
		Registry:      registry,
		Broker:        broker,
		Repo:          repo,
		Observability: observability,
	}
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	DB       *sql.DB
	Logger   *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		DB:       deps.cfg.DB,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)

	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newWorkerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeWorker,
		name: "job worker",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}

			// Reconcile jobs left pending by a previous process before
			// consuming new ones.
			workerCfg := config.WorkerConfig{}
			if deps.cfg.Config != nil {
				workerCfg = deps.cfg.Config.Worker
			}
			requeued, err := deps.cfg.Services.Jobs.RequeuePending(ctx, workerCfg.RequeueMinAge, workerCfg.RequeueLimit)
			if err != nil {
				deps.logger.WarnContext(ctx, "requeue pending jobs failed", "error", err)
			} else if requeued > 0 {
				deps.logger.InfoContext(ctx, "requeued pending jobs", "count", requeued)
			}

			// Ongoing reconciliation, woken by pg_notify: covers jobs
			// created by a separate HTTP-only process.
			var waiter service.PendingWaiter
			if repo := deps.cfg.Services.Repo; repo != nil && repo.DB != nil {
				waiter = repo
			}
			go func() {
				_ = deps.cfg.Services.Jobs.RunRequeueLoop(ctx, waiter,
					workerCfg.RequeueMinAge, workerCfg.RequeueLimit)
			}()

			return deps.cfg.Services.Worker.Run(ctx)
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			return deps.cfg.Services.Reaper.Run(ctx)
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newWorkerBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	ctx := context.Background()
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	// Start all enabled services
	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		ctx:          serviceCtx,
		cancel:       cancel,
		errCh:        errCh,
		httpServer:   result.HTTPServer,
		httpShutdown: cfg.Config.HTTP.ShutdownTimeout,
		services:     cfg.Services,
		logger:       logger,
		backgrounds:  result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	modes := []config.ServiceMode{
		config.ServiceModeHTTP,
		config.ServiceModeWorker,
		config.ServiceModeReaper,
	}

	count := 0
	for _, mode := range modes {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx          context.Context
	cancel       context.CancelFunc
	errCh        <-chan error
	httpServer   *http.Server
	httpShutdown time.Duration
	services     ServiceContainer
	logger       *slog.Logger
	backgrounds  []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
//
// Order matters: the HTTP server stops accepting submissions first, then
// the queue is closed so the worker drains what is buffered, then the
// broker releases its event stream subscribers.
func gracefulStop(cfg shutdownConfig) error {
	if cfg.httpServer != nil {
		// The service context is already cancelled at this point; drain
		// from a fresh context so in-flight requests get the configured
		// window instead of being cut off immediately.
		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: context.Background(),
			Server:  cfg.httpServer,
			Broker:  cfg.services.Broker,
			Logger:  cfg.logger,
			Timeout: cfg.httpShutdown,
		}); err != nil {
			return err
		}
	}

	if cfg.services.Queue != nil {
		cfg.services.Queue.Close()
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	if cfg.services.Broker != nil {
		cfg.services.Broker.StopAll()
	}

	if sink := cfg.services.Observability.MetricsSink; sink != nil {
		if err := sink.Close(); err != nil {
			cfg.logger.Warn("close metrics sink failed", "error", err)
		}
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
