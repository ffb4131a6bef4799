package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/recruitpro/recruitpro-jobs/internal/ai"
	"github.com/recruitpro/recruitpro-jobs/internal/domain/model"
	apperrors "github.com/recruitpro/recruitpro-jobs/internal/errors"
	"github.com/recruitpro/recruitpro-jobs/internal/queue"
)

const outreachSystemPrompt = "You are a recruiter writing a short, warm first-contact " +
	"email. Return only the email body, no subject line, under 150 words."

// OutreachPayload is the input for an outreach_email job.
type OutreachPayload struct {
	CandidateID   string `json:"candidate_id"`
	CandidateName string `json:"candidate_name"`
	PositionTitle string `json:"position_title"`
	// Highlights is free-form context about the candidate, often the
	// screening summary when this job was chained.
	Highlights string `json:"highlights,omitempty"`
}

// OutreachResult is the stored result of an outreach_email job.
type OutreachResult struct {
	CandidateID string `json:"candidate_id"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
}

// OutreachHandler drafts a first-contact email for a candidate.
type OutreachHandler struct {
	deps *Deps
	gen  ai.TextGenerator
}

// NewOutreachHandler constructs the outreach handler.
func NewOutreachHandler(deps *Deps, gen ai.TextGenerator) *OutreachHandler {
	return &OutreachHandler{deps: deps, gen: gen}
}

// Type implements queue.Handler.
func (h *OutreachHandler) Type() model.JobType { return model.JobTypeOutreachEmail }

// Run implements queue.Handler.
func (h *OutreachHandler) Run(ctx context.Context, item queue.Item) error {
	return exec(ctx, h.deps, item, func(ctx context.Context) (json.RawMessage, error) {
		var p OutreachPayload
		if err := decodePayload(item, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.CandidateID) == "" {
			return nil, apperrors.ValidationField("candidate_id", "candidate_id is required")
		}
		if strings.TrimSpace(p.PositionTitle) == "" {
			return nil, apperrors.ValidationField("position_title", "position_title is required")
		}

		body, err := generateText(ctx, h.gen, ai.GenerateRequest{
			System: outreachSystemPrompt,
			Prompt: outreachPrompt(p),
		})
		if err != nil {
			return nil, fmt.Errorf("generate outreach email: %w", err)
		}

		return json.Marshal(OutreachResult{
			CandidateID: p.CandidateID,
			Subject:     fmt.Sprintf("Opportunity: %s", p.PositionTitle),
			Body:        body,
		})
	})
}

func outreachPrompt(p OutreachPayload) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write an outreach email to %s about the %s role.\n",
		p.CandidateName, p.PositionTitle)
	if p.Highlights != "" {
		fmt.Fprintf(&sb, "\nWhat we know about them:\n%s\n", p.Highlights)
	}
	return sb.String()
}
