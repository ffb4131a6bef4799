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

const screeningSystemPrompt = "You are a recruiting assistant. Summarize candidates " +
	"factually in at most five sentences. Do not invent qualifications."

// ScreeningPayload is the input for a screening_summary job.
type ScreeningPayload struct {
	CandidateID   string `json:"candidate_id"`
	CandidateName string `json:"candidate_name"`
	PositionTitle string `json:"position_title"`
	ResumeText    string `json:"resume_text"`
	// DraftOutreach chains an outreach_email job on completion.
	DraftOutreach bool `json:"draft_outreach,omitempty"`
}

// ScreeningResult is the stored result of a screening_summary job.
type ScreeningResult struct {
	CandidateID string `json:"candidate_id"`
	Summary     string `json:"summary"`
	// OutreachJobID is set when a follow-on outreach job was enqueued.
	OutreachJobID string `json:"outreach_job_id,omitempty"`
}

// ScreeningHandler summarizes a candidate's resume against a position
// and optionally chains an outreach email draft.
type ScreeningHandler struct {
	deps    *Deps
	gen     ai.TextGenerator
	creator Creator
}

// NewScreeningHandler constructs the screening handler. creator may be
// nil, in which case draft_outreach requests are ignored.
func NewScreeningHandler(deps *Deps, gen ai.TextGenerator, creator Creator) *ScreeningHandler {
	return &ScreeningHandler{deps: deps, gen: gen, creator: creator}
}

// Type implements queue.Handler.
func (h *ScreeningHandler) Type() model.JobType { return model.JobTypeScreeningSummary }

// Run implements queue.Handler.
func (h *ScreeningHandler) Run(ctx context.Context, item queue.Item) error {
	return exec(ctx, h.deps, item, func(ctx context.Context) (json.RawMessage, error) {
		var p ScreeningPayload
		if err := decodePayload(item, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.CandidateID) == "" {
			return nil, apperrors.ValidationField("candidate_id", "candidate_id is required")
		}
		if strings.TrimSpace(p.ResumeText) == "" {
			return nil, apperrors.ValidationField("resume_text", "resume_text is required")
		}

		summary, err := generateText(ctx, h.gen, ai.GenerateRequest{
			System: screeningSystemPrompt,
			Prompt: screeningPrompt(p),
		})
		if err != nil {
			return nil, fmt.Errorf("generate screening summary: %w", err)
		}

		res := ScreeningResult{CandidateID: p.CandidateID, Summary: summary}

		// The chained job is created before this record goes terminal;
		// if the chain fails the summary still completes.
		if p.DraftOutreach && h.creator != nil {
			if followID, chainErr := h.chainOutreach(ctx, p, summary); chainErr != nil {
				h.deps.logger().WarnContext(ctx, "outreach chaining failed",
					"job_id", item.JobID, "candidate_id", p.CandidateID, "error", chainErr)
			} else {
				res.OutreachJobID = followID
			}
		}

		return json.Marshal(res)
	})
}

func (h *ScreeningHandler) chainOutreach(ctx context.Context, p ScreeningPayload, summary string) (string, error) {
	payload, err := json.Marshal(OutreachPayload{
		CandidateID:   p.CandidateID,
		CandidateName: p.CandidateName,
		PositionTitle: p.PositionTitle,
		Highlights:    summary,
	})
	if err != nil {
		return "", err
	}
	rec, err := h.creator.CreateJob(ctx, &model.CreateJobRequest{
		Type:    model.JobTypeOutreachEmail,
		Payload: payload,
	})
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

func screeningPrompt(p ScreeningPayload) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Candidate: %s\n", p.CandidateName)
	if p.PositionTitle != "" {
		fmt.Fprintf(&sb, "Position: %s\n", p.PositionTitle)
	}
	fmt.Fprintf(&sb, "\nResume:\n%s\n", p.ResumeText)
	sb.WriteString("\nSummarize this candidate's fit for the position.")
	return sb.String()
}
