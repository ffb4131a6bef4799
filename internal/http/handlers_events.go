package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/recruitpro/recruitpro-jobs/internal/domain/job"
	"github.com/recruitpro/recruitpro-jobs/internal/domain/model"
)

// keepAliveInterval is how often the event stream emits an SSE comment so
// intermediaries do not time out an idle connection.
const keepAliveInterval = 30 * time.Second

// EventHandlers streams terminal job events over Server-Sent Events.
//
// The stream carries the same at-most-once guarantee as the broker it
// subscribes to: events published before the subscription or while the
// client is too far behind are not replayed. Clients that need a job's
// outcome must poll its record.
type EventHandlers struct {
	Broker *job.Broker
	Logger *slog.Logger
}

// Stream handles GET requests for the job event stream. An optional
// "type" query parameter restricts the stream to one job type.
func (h *EventHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	if h.Broker == nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusServiceUnavailable,
			ErrCode: "events_unavailable",
			Err:     errors.New("event stream is not enabled"),
		})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "streaming_unsupported",
			Err:     errors.New("response writer does not support streaming"),
		})
		return
	}

	jobType := model.JobType(r.URL.Query().Get("type"))
	unsub, events := h.Broker.Subscribe(jobType)
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case ev, open := <-events:
			if !open {
				// Broker shut down; end the stream cleanly.
				return
			}
			if err := writeSSEEvent(w, ev); err != nil {
				h.logger().Debug("event stream write failed, dropping client", "error", err)
				return
			}
			flusher.Flush()

		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func writeSSEEvent(w http.ResponseWriter, ev job.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
	return err
}
