package jobs

import (
	"context"
	"encoding/json"

	"github.com/recruitpro/recruitpro-jobs/internal/domain/model"
	"github.com/recruitpro/recruitpro-jobs/internal/queue"
)

// EchoHandler completes a job with its own payload as the result. Used
// for smoke tests and end-to-end pipeline checks.
type EchoHandler struct {
	deps *Deps
}

// NewEchoHandler constructs the echo handler.
func NewEchoHandler(deps *Deps) *EchoHandler {
	return &EchoHandler{deps: deps}
}

// Type implements queue.Handler.
func (h *EchoHandler) Type() model.JobType { return model.JobTypeEcho }

// Run implements queue.Handler.
func (h *EchoHandler) Run(ctx context.Context, item queue.Item) error {
	return exec(ctx, h.deps, item, func(context.Context) (json.RawMessage, error) {
		return item.Payload, nil
	})
}
