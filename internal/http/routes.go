package httpx

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/recruitpro/recruitpro-jobs/internal/domain/job"
	"github.com/recruitpro/recruitpro-jobs/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs *service.JobService
	// Broker is optional; without it the event stream endpoint reports
	// unavailable.
	Broker *job.Broker
	// DB is optional; without it readiness degrades to liveness.
	DB     *sql.DB
	Logger *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	jobHandlers := &JobHandlers{Svc: services.Jobs}
	eventHandlers := &EventHandlers{Broker: services.Broker, Logger: services.Logger}

	mux.HandleFunc("POST /api/jobs", jobHandlers.CreateJob)
	mux.HandleFunc("GET /api/jobs/{id}", jobHandlers.GetJob)
	mux.HandleFunc("GET /api/jobs/{id}/status", jobHandlers.GetStatus)
	mux.HandleFunc("GET /api/queue/stats", jobHandlers.QueueStats)
	mux.HandleFunc("GET /api/events", eventHandlers.Stream)

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readyHandler(services.DB))

	return mux
}
