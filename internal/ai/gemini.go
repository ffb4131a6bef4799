// Package ai defines the text-generation port used by job handlers and
// its Gemini-backed implementation.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/recruitpro/recruitpro-jobs/internal/errors"
)

// GenerateRequest describes a single text-generation call.
type GenerateRequest struct {
	// System primes the model with role instructions; optional.
	System string
	// Prompt is the user content; required.
	Prompt string
	// Temperature in [0,2]; zero value means provider default.
	Temperature float64
	// MaxOutputTokens caps the response length; zero means provider default.
	MaxOutputTokens int
}

// TextGenerator is the narrow port job handlers depend on. Keeping it to
// a single call lets tests swap in a canned generator and keeps prompt
// construction in the handlers, out of the transport client.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GeneratorFunc adapts a function to TextGenerator.
type GeneratorFunc func(ctx context.Context, req GenerateRequest) (string, error)

// Generate implements TextGenerator.
func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return f(ctx, req)
}

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	defaultGeminiModel   = "gemini-2.0-flash"

	// maxResponseBodyBytes bounds how much of a provider response is read.
	maxResponseBodyBytes = 1 << 20 // 1MB
)

// GeminiOptions configures the Gemini client.
type GeminiOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// GeminiClient implements TextGenerator against the Gemini
// generateContent REST API.
type GeminiClient struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

var _ TextGenerator = (*GeminiClient)(nil)

// NewGeminiClient validates options and constructs a Gemini client.
func NewGeminiClient(opts GeminiOptions) (*GeminiClient, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}

	model := opts.Model
	if model == "" {
		model = defaultGeminiModel
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &GeminiClient{
		apiKey:  opts.APIKey,
		model:   model,
		baseURL: baseURL,
		http:    hc,
		logger:  logger.With("component", "gemini"),
	}, nil
}

// Wire types for the generateContent endpoint.

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiGenerateRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate calls the generateContent endpoint and returns the first
// candidate's concatenated text.
func (c *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", apperrors.Validation("prompt is required")
	}

	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "gemini request failed")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read gemini response: %w", err)
	}

	var parsed geminiGenerateResponse
	if unmarshalErr := json.Unmarshal(data, &parsed); unmarshalErr != nil {
		return "", fmt.Errorf("decode gemini response (status %d): %w", resp.StatusCode, unmarshalErr)
	}

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("gemini returned status %d", resp.StatusCode)
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		c.logger.WarnContext(ctx, "gemini call failed", "status", resp.StatusCode, "message", msg)
		return "", apperrors.Unavailable(msg)
	}

	return extractText(parsed)
}

func (c *GeminiClient) buildRequest(req GenerateRequest) geminiGenerateRequest {
	out := geminiGenerateRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}},
		},
	}
	if req.System != "" {
		out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	if req.Temperature > 0 || req.MaxOutputTokens > 0 {
		cfg := &geminiGenerationConfig{MaxOutputTokens: req.MaxOutputTokens}
		if req.Temperature > 0 {
			t := req.Temperature
			cfg.Temperature = &t
		}
		out.GenerationConfig = cfg
	}
	return out
}

func extractText(resp geminiGenerateResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", apperrors.Unavailable("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", apperrors.Unavailable("gemini returned an empty response")
	}
	return text, nil
}
