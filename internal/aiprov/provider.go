// Package aiprov abstracts the remote AI services used for metadata
// generation: an asynchronous batch API plus a synchronous single-item
// path used for retries.
package aiprov

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Request is one prompt, optionally paired with a single image, correlated
// to its asynchronous result by CustomID.
type Request struct {
	CustomID  string
	Prompt    string
	ImagePath string
}

// Usage is the provider-reported token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is one per-item response from a batch job or a sync call.
type Result struct {
	CustomID string
	Content  string
	Usage    Usage
}

// JobStatus is the lifecycle status of a batch job as reported by the
// provider.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobExpired   JobStatus = "expired"
	JobCancelled JobStatus = "cancelled"
)

// Job is a snapshot of a batch job. Results are populated only once the
// job is completed.
type Job struct {
	ID      string
	Status  JobStatus
	Results []Result
	Usage   Usage
}

// Provider is the contract the orchestrator drives. Implementations are
// treated as unreliable and slow: callers classify every failure and never
// assume success.
type Provider interface {
	Name() string
	SupportsBatch() bool
	SupportsImages() bool

	CreateBatchJob(ctx context.Context, requests []Request) (string, error)
	GetBatchJob(ctx context.Context, jobID string) (*Job, error)
	CancelBatchJob(ctx context.Context, jobID string) error
	GenerateText(ctx context.Context, req Request) (*Result, error)

	// JobsCreatedOn counts batch jobs the provider already has for a UTC
	// day. Returns ErrUnsupported when the provider has no job listing.
	JobsCreatedOn(ctx context.Context, day time.Time) (int, error)
}

// ErrUnsupported marks an operation the provider does not implement.
var ErrUnsupported = errors.New("operation not supported by provider")

// FailureKind classifies provider failures for the orchestrator's
// per-kind handling.
type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailureNetwork
	FailureRateLimit
	FailureAuth
	FailurePayloadTooLarge
)

func (k FailureKind) String() string {
	switch k {
	case FailureNetwork:
		return "network"
	case FailureRateLimit:
		return "rate_limit"
	case FailureAuth:
		return "auth"
	case FailurePayloadTooLarge:
		return "payload_too_large"
	default:
		return "unknown"
	}
}

// APIError is a provider failure with an already-determined kind.
type APIError struct {
	Kind       FailureKind
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider error (%s, status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider error (%s): %s", e.Kind, e.Message)
}

// apiErrorFromStatus builds an APIError from an HTTP status and body.
func apiErrorFromStatus(status int, body string) *APIError {
	kind := FailureUnknown
	switch {
	case status == 401 || status == 403:
		kind = FailureAuth
	case status == 429:
		kind = FailureRateLimit
	case status == 413:
		kind = FailurePayloadTooLarge
	case status >= 500:
		kind = FailureNetwork
	default:
		kind = classifyMessage(body)
	}
	return &APIError{Kind: kind, StatusCode: status, Message: body}
}

// Classify maps an arbitrary error from a provider call to a FailureKind.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureUnknown
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureNetwork
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureNetwork
	}
	return classifyMessage(err.Error())
}

// classifyMessage falls back to substring heuristics for providers that
// only surface a message.
func classifyMessage(msg string) FailureKind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "rate_limit") || strings.Contains(lower, "too many requests"):
		return FailureRateLimit
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key") || strings.Contains(lower, "authentication"):
		return FailureAuth
	case strings.Contains(lower, "too large") || strings.Contains(lower, "maximum size") || strings.Contains(lower, "payload size") || strings.Contains(lower, "exceeds the limit"):
		return FailurePayloadTooLarge
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "connection") || strings.Contains(lower, "network") || strings.Contains(lower, "temporarily unavailable"):
		return FailureNetwork
	default:
		return FailureUnknown
	}
}
