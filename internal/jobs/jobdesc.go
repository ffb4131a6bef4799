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

const jobDescriptionSystemPrompt = "You are an HR copywriter. Produce a structured job " +
	"description with sections for the role, responsibilities, and requirements. " +
	"Plain text, no markdown headers."

// JobDescriptionPayload is the input for a job_description job.
type JobDescriptionPayload struct {
	PositionTitle string   `json:"position_title"`
	Department    string   `json:"department,omitempty"`
	Location      string   `json:"location,omitempty"`
	Seniority     string   `json:"seniority,omitempty"`
	Skills        []string `json:"skills,omitempty"`
}

// JobDescriptionResult is the stored result of a job_description job.
type JobDescriptionResult struct {
	PositionTitle string `json:"position_title"`
	Description   string `json:"description"`
}

// JobDescriptionHandler drafts a posting for an open position.
type JobDescriptionHandler struct {
	deps *Deps
	gen  ai.TextGenerator
}

// NewJobDescriptionHandler constructs the job description handler.
func NewJobDescriptionHandler(deps *Deps, gen ai.TextGenerator) *JobDescriptionHandler {
	return &JobDescriptionHandler{deps: deps, gen: gen}
}

// Type implements queue.Handler.
func (h *JobDescriptionHandler) Type() model.JobType { return model.JobTypeJobDescription }

// Run implements queue.Handler.
func (h *JobDescriptionHandler) Run(ctx context.Context, item queue.Item) error {
	return exec(ctx, h.deps, item, func(ctx context.Context) (json.RawMessage, error) {
		var p JobDescriptionPayload
		if err := decodePayload(item, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.PositionTitle) == "" {
			return nil, apperrors.ValidationField("position_title", "position_title is required")
		}

		description, err := generateText(ctx, h.gen, ai.GenerateRequest{
			System: jobDescriptionSystemPrompt,
			Prompt: jobDescriptionPrompt(p),
		})
		if err != nil {
			return nil, fmt.Errorf("generate job description: %w", err)
		}

		return json.Marshal(JobDescriptionResult{
			PositionTitle: p.PositionTitle,
			Description:   description,
		})
	})
}

func jobDescriptionPrompt(p JobDescriptionPayload) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Position: %s\n", p.PositionTitle)
	if p.Department != "" {
		fmt.Fprintf(&sb, "Department: %s\n", p.Department)
	}
	if p.Location != "" {
		fmt.Fprintf(&sb, "Location: %s\n", p.Location)
	}
	if p.Seniority != "" {
		fmt.Fprintf(&sb, "Seniority: %s\n", p.Seniority)
	}
	if len(p.Skills) > 0 {
		fmt.Fprintf(&sb, "Key skills: %s\n", strings.Join(p.Skills, ", "))
	}
	sb.WriteString("\nWrite the job description.")
	return sb.String()
}
