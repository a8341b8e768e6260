// Package processor calls the external task processor used by agents that have
// no webhook of their own.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/agenthire/internal/domain"
)

const maxOutputBytes = 1 << 20

type processRequest struct {
	JobID      string          `json:"job_id"`
	AgentID    string          `json:"agent_id"`
	SkillID    string          `json:"skill_id"`
	ServiceKey string          `json:"service_key"`
	Input      json.RawMessage `json:"input"`
}

type processResponse struct {
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error,omitempty"`
}

// HTTPProcessor posts a job to the processor and returns its output. The
// caller bounds the call through ctx.
type HTTPProcessor struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewHTTPProcessor creates a processor client for url.
func NewHTTPProcessor(url string, logger *slog.Logger) *HTTPProcessor {
	return &HTTPProcessor{
		url:    url,
		client: &http.Client{},
		logger: logger,
	}
}

// Process runs job and returns the produced output.
func (p *HTTPProcessor) Process(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	input := job.Input
	if len(input) == 0 {
		input = json.RawMessage("null")
	}
	body, err := json.Marshal(processRequest{
		JobID:      job.ID,
		AgentID:    job.AgentID,
		SkillID:    job.SkillID,
		ServiceKey: job.ServiceKey,
		Input:      input,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal process request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create process request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("task processor request failed: %w", err)
	}
	defer resp.Body.Close()

	var result processResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxOutputBytes)).Decode(&result); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("task processor responded %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to decode process response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || result.Error != "" {
		return nil, fmt.Errorf("task processor responded %d: %s", resp.StatusCode, result.Error)
	}
	if len(result.Output) == 0 || string(result.Output) == "null" {
		return nil, fmt.Errorf("task processor returned no output")
	}

	p.logger.Debug("Task processed",
		slog.String("job_id", job.ID),
		slog.Int("output_bytes", len(result.Output)),
	)
	return result.Output, nil
}
