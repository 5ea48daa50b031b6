package aiprov

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini is a synchronous-only provider. It has no batch API, so the
// orchestrator uses it for the single-item retry path.
type Gemini struct {
	Model string
}

// NewGemini returns a Gemini provider for the given model.
func NewGemini(model string) *Gemini {
	return &Gemini{Model: model}
}

func (g *Gemini) Name() string         { return "gemini" }
func (g *Gemini) SupportsBatch() bool  { return false }
func (g *Gemini) SupportsImages() bool { return true }

// GenerateText runs one synchronous generation, attaching the image when
// the request has one.
func (g *Gemini) GenerateText(ctx context.Context, req Request) (*Result, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, &APIError{Kind: FailureAuth, Message: "GEMINI_API_KEY environment variable not set"}
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(g.Model)

	parts := []genai.Part{genai.Text(req.Prompt)}
	if req.ImagePath != "" {
		data, err := os.ReadFile(req.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read image %s: %w", req.ImagePath, err)
		}
		parts = append(parts, genai.ImageData("jpeg", data))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return nil, &APIError{Kind: FailureUnknown, Message: "no candidates returned from Gemini"}
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, &APIError{Kind: FailureUnknown, Message: "empty content returned from Gemini"}
	}
	txt, ok := candidate.Content.Parts[0].(genai.Text)
	if !ok {
		return nil, &APIError{Kind: FailureUnknown, Message: "unexpected response format from Gemini"}
	}

	result := &Result{CustomID: req.CustomID, Content: string(txt)}
	if resp.UsageMetadata != nil {
		result.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return result, nil
}

// CreateBatchJob is not available for Gemini.
func (g *Gemini) CreateBatchJob(ctx context.Context, requests []Request) (string, error) {
	return "", fmt.Errorf("gemini: %w", ErrUnsupported)
}

// GetBatchJob is not available for Gemini.
func (g *Gemini) GetBatchJob(ctx context.Context, jobID string) (*Job, error) {
	return nil, fmt.Errorf("gemini: %w", ErrUnsupported)
}

// CancelBatchJob is not available for Gemini.
func (g *Gemini) CancelBatchJob(ctx context.Context, jobID string) error {
	return fmt.Errorf("gemini: %w", ErrUnsupported)
}

// JobsCreatedOn is not available for Gemini.
func (g *Gemini) JobsCreatedOn(ctx context.Context, day time.Time) (int, error) {
	return 0, fmt.Errorf("gemini: %w", ErrUnsupported)
}
