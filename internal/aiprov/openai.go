package aiprov

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI is the batch-capable provider backed by the OpenAI Batch API.
type OpenAI struct {
	Model   string
	BaseURL string
	Client  *http.Client
}

// NewOpenAI returns an OpenAI provider for the given model.
func NewOpenAI(model string) *OpenAI {
	return &OpenAI{
		Model:   model,
		BaseURL: defaultOpenAIBaseURL,
		Client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (o *OpenAI) Name() string         { return "openai" }
func (o *OpenAI) SupportsBatch() bool  { return true }
func (o *OpenAI) SupportsImages() bool { return true }

func (o *OpenAI) apiKey() (string, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return "", &APIError{Kind: FailureAuth, Message: "OPENAI_API_KEY environment variable not set"}
	}
	return apiKey, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatBody struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

// buildChatBody renders one request as a chat-completions body, embedding
// the image as a base64 data URL when present.
func buildChatBody(model string, req Request) (*chatBody, error) {
	var content any = req.Prompt
	if req.ImagePath != "" {
		payload, err := EncodeImageBase64(req.ImagePath)
		if err != nil {
			return nil, err
		}
		content = []map[string]any{
			{"type": "text", "text": req.Prompt},
			{"type": "image_url", "image_url": map[string]string{"url": "data:image/jpeg;base64," + payload}},
		}
	}
	return &chatBody{
		Model:     model,
		Messages:  []chatMessage{{Role: "user", Content: content}},
		MaxTokens: 1000,
	}, nil
}

// CreateBatchJob uploads the requests as a JSONL batch input file and
// creates a batch job over it. Returns the provider job id.
func (o *OpenAI) CreateBatchJob(ctx context.Context, requests []Request) (string, error) {
	apiKey, err := o.apiKey()
	if err != nil {
		return "", err
	}

	var jsonl bytes.Buffer
	for _, req := range requests {
		body, err := buildChatBody(o.Model, req)
		if err != nil {
			return "", fmt.Errorf("failed to build request for %s: %w", req.CustomID, err)
		}
		line, err := json.Marshal(map[string]any{
			"custom_id": req.CustomID,
			"method":    "POST",
			"url":       "/v1/chat/completions",
			"body":      body,
		})
		if err != nil {
			return "", fmt.Errorf("failed to marshal batch line: %w", err)
		}
		jsonl.Write(line)
		jsonl.WriteByte('\n')
	}

	fileID, err := o.uploadBatchFile(ctx, apiKey, jsonl.Bytes())
	if err != nil {
		return "", err
	}

	requestBody, err := json.Marshal(map[string]string{
		"input_file_id":     fileID,
		"endpoint":          "/v1/chat/completions",
		"completion_window": "24h",
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal batch create body: %w", err)
	}

	var response struct {
		ID string `json:"id"`
	}
	if err := o.doJSON(ctx, apiKey, "POST", "/batches", bytes.NewReader(requestBody), "application/json", &response); err != nil {
		return "", err
	}
	if response.ID == "" {
		return "", &APIError{Kind: FailureUnknown, Message: "batch create returned no id"}
	}
	return response.ID, nil
}

// uploadBatchFile pushes the JSONL payload to the files endpoint with
// purpose=batch and returns the file id.
func (o *OpenAI) uploadBatchFile(ctx context.Context, apiKey string, jsonl []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("purpose", "batch"); err != nil {
		return "", fmt.Errorf("failed to write multipart field: %w", err)
	}
	part, err := mw.CreateFormFile("file", "batch_input.jsonl")
	if err != nil {
		return "", fmt.Errorf("failed to create multipart file: %w", err)
	}
	if _, err := part.Write(jsonl); err != nil {
		return "", fmt.Errorf("failed to write multipart payload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish multipart payload: %w", err)
	}

	var response struct {
		ID string `json:"id"`
	}
	if err := o.doJSON(ctx, apiKey, "POST", "/files", &buf, mw.FormDataContentType(), &response); err != nil {
		return "", err
	}
	if response.ID == "" {
		return "", &APIError{Kind: FailureUnknown, Message: "file upload returned no id"}
	}
	return response.ID, nil
}

// GetBatchJob fetches the current job snapshot, downloading and parsing
// per-item results once the job is completed.
func (o *OpenAI) GetBatchJob(ctx context.Context, jobID string) (*Job, error) {
	apiKey, err := o.apiKey()
	if err != nil {
		return nil, err
	}

	var response struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		OutputFileID string `json:"output_file_id"`
		ErrorFileID  string `json:"error_file_id"`
	}
	if err := o.doJSON(ctx, apiKey, "GET", "/batches/"+jobID, nil, "", &response); err != nil {
		return nil, err
	}

	job := &Job{ID: response.ID, Status: mapBatchStatus(response.Status)}
	if job.Status != JobCompleted || response.OutputFileID == "" {
		return job, nil
	}

	content, err := o.downloadFile(ctx, apiKey, response.OutputFileID)
	if err != nil {
		return nil, err
	}
	results, usage, err := parseBatchResults(content)
	if err != nil {
		return nil, err
	}
	job.Results = results
	job.Usage = usage
	return job, nil
}

func mapBatchStatus(s string) JobStatus {
	switch s {
	case "completed":
		return JobCompleted
	case "failed":
		return JobFailed
	case "expired":
		return JobExpired
	case "cancelled", "cancelling":
		return JobCancelled
	default:
		// validating, in_progress, finalizing
		return JobPending
	}
}

// parseBatchResults decodes the output JSONL. Items whose embedded status
// is non-200 are omitted so the orchestrator treats them as missing.
func parseBatchResults(content []byte) ([]Result, Usage, error) {
	var results []Result
	var totals Usage

	scanner := bufio.NewScanner(bytes.NewReader(content))
	const maxLine = 10 * 1024 * 1024
	scanner.Buffer(make([]byte, maxLine), maxLine)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var item struct {
			CustomID string `json:"custom_id"`
			Response struct {
				StatusCode int `json:"status_code"`
				Body       struct {
					Choices []struct {
						Message struct {
							Content string `json:"content"`
						} `json:"message"`
					} `json:"choices"`
					Usage Usage `json:"usage"`
				} `json:"body"`
			} `json:"response"`
		}
		if err := json.Unmarshal(line, &item); err != nil {
			return nil, totals, fmt.Errorf("failed to parse batch result line: %w", err)
		}
		if item.Response.StatusCode != http.StatusOK || len(item.Response.Body.Choices) == 0 {
			continue
		}
		results = append(results, Result{
			CustomID: item.CustomID,
			Content:  item.Response.Body.Choices[0].Message.Content,
			Usage:    item.Response.Body.Usage,
		})
		totals.PromptTokens += item.Response.Body.Usage.PromptTokens
		totals.CompletionTokens += item.Response.Body.Usage.CompletionTokens
		totals.TotalTokens += item.Response.Body.Usage.TotalTokens
	}
	if err := scanner.Err(); err != nil {
		return nil, totals, fmt.Errorf("failed to read batch results: %w", err)
	}
	return results, totals, nil
}

func (o *OpenAI) downloadFile(ctx context.Context, apiKey, fileID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", o.BaseURL+"/files/"+fileID+"/content", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiErrorFromStatus(resp.StatusCode, string(body))
	}
	return body, nil
}

// CancelBatchJob asks the provider to cancel an in-flight job.
func (o *OpenAI) CancelBatchJob(ctx context.Context, jobID string) error {
	apiKey, err := o.apiKey()
	if err != nil {
		return err
	}
	var response struct {
		Status string `json:"status"`
	}
	return o.doJSON(ctx, apiKey, "POST", "/batches/"+jobID+"/cancel", strings.NewReader("{}"), "application/json", &response)
}

// GenerateText runs a single synchronous chat completion.
func (o *OpenAI) GenerateText(ctx context.Context, req Request) (*Result, error) {
	apiKey, err := o.apiKey()
	if err != nil {
		return nil, err
	}

	body, err := buildChatBody(o.Model, req)
	if err != nil {
		return nil, err
	}
	requestBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage Usage `json:"usage"`
	}
	if err := o.doJSON(ctx, apiKey, "POST", "/chat/completions", bytes.NewReader(requestBody), "application/json", &response); err != nil {
		return nil, err
	}
	if len(response.Choices) == 0 {
		return nil, &APIError{Kind: FailureUnknown, Message: "no choices returned from OpenAI"}
	}
	return &Result{
		CustomID: req.CustomID,
		Content:  response.Choices[0].Message.Content,
		Usage:    response.Usage,
	}, nil
}

// JobsCreatedOn counts batch jobs created on a UTC day via the job
// listing. Used as the authoritative daily-quota source when reachable.
func (o *OpenAI) JobsCreatedOn(ctx context.Context, day time.Time) (int, error) {
	apiKey, err := o.apiKey()
	if err != nil {
		return 0, err
	}

	dayStart := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	var response struct {
		Data []struct {
			ID        string `json:"id"`
			CreatedAt int64  `json:"created_at"`
		} `json:"data"`
	}
	if err := o.doJSON(ctx, apiKey, "GET", "/batches?limit=100", nil, "", &response); err != nil {
		return 0, err
	}

	count := 0
	for _, job := range response.Data {
		created := time.Unix(job.CreatedAt, 0).UTC()
		if !created.Before(dayStart) && created.Before(dayEnd) {
			count++
		}
	}
	return count, nil
}

// doJSON performs one API call and decodes the JSON response into out.
func (o *OpenAI) doJSON(ctx context.Context, apiKey, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, o.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := o.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return apiErrorFromStatus(resp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}
