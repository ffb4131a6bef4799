package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker runs the job queue worker.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReaper runs the job reaper for cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeWorker,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeWorker, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, worker, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains job worker service configuration.
type WorkerConfig struct {
	// QueueCapacity is the buffered capacity of the in-memory job queue.
	QueueCapacity int `env:"WORKER_QUEUE_CAPACITY" envDefault:"1024"`

	// PollInterval bounds each queue wait so the worker re-checks shutdown.
	PollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"500ms"`

	// RequeueMinAge is the minimum age a pending job must reach before the
	// startup reconciliation pass re-enqueues it. Keeps jobs submitted
	// during startup from being enqueued twice.
	RequeueMinAge time.Duration `env:"WORKER_REQUEUE_MIN_AGE" envDefault:"5s"`

	// RequeueLimit caps how many pending jobs the startup pass re-enqueues.
	RequeueLimit int `env:"WORKER_REQUEUE_LIMIT" envDefault:"500"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.QueueCapacity < 1 {
		w.QueueCapacity = 1
	}
	if w.PollInterval <= 0 {
		w.PollInterval = 500 * time.Millisecond
	}
	if w.RequeueMinAge < 0 {
		w.RequeueMinAge = 0
	}
	if w.RequeueLimit < 1 {
		w.RequeueLimit = 1
	}
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// RunningMaxAge is the maximum age for running jobs before they are
	// marked as failed. Jobs stuck in running longer than this are assumed
	// to have lost their worker.
	RunningMaxAge time.Duration `env:"REAPER_RUNNING_MAX_AGE" envDefault:"30m"`

	// PendingMaxAge is the maximum age for pending jobs before they are marked as failed.
	PendingMaxAge time.Duration `env:"REAPER_PENDING_MAX_AGE" envDefault:"24h"`

	// RetentionMaxAge is the maximum age for terminal (completed or failed)
	// jobs before deletion.
	RetentionMaxAge time.Duration `env:"REAPER_RETENTION_MAX_AGE" envDefault:"720h"` // 30 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.RunningMaxAge < 1*time.Minute {
		r.RunningMaxAge = 1 * time.Minute
	}
	if r.PendingMaxAge < 5*time.Minute {
		r.PendingMaxAge = 5 * time.Minute
	}
	if r.RetentionMaxAge < 1*time.Hour {
		r.RetentionMaxAge = 1 * time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}

// AIConfig contains text generation provider configuration.
type AIConfig struct {
	// GeminiAPIKey authenticates against the Gemini API. When empty, AI
	// handlers run with a nil generator and fail (or fall back) at run time.
	GeminiAPIKey string `env:"GEMINI_API_KEY" envDefault:""`

	// GeminiModel selects the model used for text generation.
	GeminiModel string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`

	// RequestTimeout bounds a single generation call.
	RequestTimeout time.Duration `env:"AI_REQUEST_TIMEOUT" envDefault:"60s"`
}

// Sanitize applies guardrails to AI configuration values.
func (a *AIConfig) Sanitize() {
	a.GeminiAPIKey = strings.TrimSpace(a.GeminiAPIKey)
	if a.RequestTimeout <= 0 {
		a.RequestTimeout = 60 * time.Second
	}
}

// Enabled reports whether a text generation provider is configured.
func (a *AIConfig) Enabled() bool {
	return a.GeminiAPIKey != ""
}
