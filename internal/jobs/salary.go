package jobs

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/recruitpro/recruitpro-jobs/internal/ai"
	"github.com/recruitpro/recruitpro-jobs/internal/domain/model"
	apperrors "github.com/recruitpro/recruitpro-jobs/internal/errors"
	"github.com/recruitpro/recruitpro-jobs/internal/queue"
)

const salarySystemPrompt = "You are a compensation analyst. Respond with a single JSON " +
	`object of the shape {"currency":"USD","min":0,"max":0,"median":0} and nothing else.`

// SalaryPayload is the input for a salary_estimate job.
type SalaryPayload struct {
	PositionTitle string `json:"position_title"`
	Seniority     string `json:"seniority,omitempty"`
	Location      string `json:"location,omitempty"`
}

// SalaryResult is the stored result of a salary_estimate job. Source is
// "model" for generator-backed estimates and "heuristic" for the
// built-in fallback band.
type SalaryResult struct {
	Currency string  `json:"currency"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Median   float64 `json:"median"`
	Source   string  `json:"source"`
}

// SalaryHandler estimates a compensation band for a position. Generator
// failures degrade to a deterministic heuristic rather than failing the
// job, so estimates stay available when the provider is down.
type SalaryHandler struct {
	deps *Deps
	gen  ai.TextGenerator
}

// NewSalaryHandler constructs the salary handler.
func NewSalaryHandler(deps *Deps, gen ai.TextGenerator) *SalaryHandler {
	return &SalaryHandler{deps: deps, gen: gen}
}

// Type implements queue.Handler.
func (h *SalaryHandler) Type() model.JobType { return model.JobTypeSalaryEstimate }

// Run implements queue.Handler.
func (h *SalaryHandler) Run(ctx context.Context, item queue.Item) error {
	return exec(ctx, h.deps, item, func(ctx context.Context) (json.RawMessage, error) {
		var p SalaryPayload
		if err := decodePayload(item, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.PositionTitle) == "" {
			return nil, apperrors.ValidationField("position_title", "position_title is required")
		}

		res := h.estimate(ctx, p)
		return json.Marshal(res)
	})
}

func (h *SalaryHandler) estimate(ctx context.Context, p SalaryPayload) SalaryResult {
	if h.gen != nil {
		if res, err := h.modelEstimate(ctx, p); err == nil {
			return res
		} else {
			h.deps.logger().WarnContext(ctx, "salary model estimate failed, using heuristic",
				"position_title", p.PositionTitle, "error", err)
		}
	}
	return heuristicEstimate(p)
}

func (h *SalaryHandler) modelEstimate(ctx context.Context, p SalaryPayload) (SalaryResult, error) {
	prompt := "Estimate the annual salary band for: " + p.PositionTitle
	if p.Seniority != "" {
		prompt += ", " + p.Seniority
	}
	if p.Location != "" {
		prompt += ", located in " + p.Location
	}

	text, err := h.gen.Generate(ctx, ai.GenerateRequest{
		System:      salarySystemPrompt,
		Prompt:      prompt,
		Temperature: 0.2,
	})
	if err != nil {
		return SalaryResult{}, err
	}

	var res SalaryResult
	if err := json.Unmarshal([]byte(extractJSONObject(text)), &res); err != nil {
		return SalaryResult{}, apperrors.Wrap(err, apperrors.ErrCodeValidation, "parse salary estimate")
	}
	if res.Min <= 0 || res.Max < res.Min {
		return SalaryResult{}, apperrors.Validation("salary estimate band is not plausible")
	}
	if res.Currency == "" {
		res.Currency = "USD"
	}
	if res.Median == 0 {
		res.Median = (res.Min + res.Max) / 2
	}
	res.Source = "model"
	return res, nil
}

// Base bands by title family, in USD. Multipliers adjust for seniority
// and market. Intentionally coarse; the model path is the real answer.
var salaryFamilies = []struct {
	keyword string
	base    float64
}{
	{"engineer", 120000},
	{"developer", 115000},
	{"designer", 95000},
	{"manager", 130000},
	{"recruiter", 75000},
	{"analyst", 85000},
	{"scientist", 135000},
}

var seniorityMultipliers = map[string]float64{
	"intern":    0.45,
	"junior":    0.7,
	"mid":       1.0,
	"senior":    1.3,
	"staff":     1.55,
	"principal": 1.8,
	"lead":      1.45,
	"director":  1.9,
}

// seniorityOrder fixes the scan order for title-embedded seniority so a
// title matching several keywords always resolves the same way.
var seniorityOrder = []string{
	"principal", "director", "staff", "senior", "lead", "mid", "junior", "intern",
}

var locationMultipliers = map[string]float64{
	"san francisco": 1.35,
	"new york":      1.3,
	"seattle":       1.25,
	"austin":        1.1,
	"london":        1.15,
	"berlin":        1.0,
	"remote":        1.05,
}

func heuristicEstimate(p SalaryPayload) SalaryResult {
	base := 90000.0
	title := strings.ToLower(p.PositionTitle)
	for _, fam := range salaryFamilies {
		if strings.Contains(title, fam.keyword) {
			base = fam.base
			break
		}
	}

	mult := 1.0
	seniority := strings.ToLower(strings.TrimSpace(p.Seniority))
	if m, ok := seniorityMultipliers[seniority]; ok {
		mult *= m
	} else {
		for _, key := range seniorityOrder {
			if strings.Contains(title, key) {
				mult *= seniorityMultipliers[key]
				break
			}
		}
	}
	if m, ok := locationMultipliers[strings.ToLower(strings.TrimSpace(p.Location))]; ok {
		mult *= m
	}

	median := roundToHundreds(base * mult)
	return SalaryResult{
		Currency: "USD",
		Min:      roundToHundreds(median * 0.85),
		Max:      roundToHundreds(median * 1.15),
		Median:   median,
		Source:   "heuristic",
	}
}

func roundToHundreds(v float64) float64 {
	return math.Round(v/100) * 100
}

// extractJSONObject strips markdown fences and surrounding prose so a
// chatty model response still parses.
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
