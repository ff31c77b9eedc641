// internal/genai/client.go
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrGenerationTimeout = errors.New("GENERATION_TIMEOUT")
	ErrGenerationFailed  = errors.New("GENERATION_FAILED")
)

// Generator is the external text-generation capability consumed by the
// intent classifier and the answer synthesizer.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Request carries one generation call.
type Request struct {
	Prompt      string                 `json:"prompt"`
	MaxTokens   int                    `json:"max_tokens,omitempty"`
	Temperature float64                `json:"temperature"`
	Constraints map[string]interface{} `json:"constraints,omitempty"`
}

// Logger interface definition
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Config struct {
	BaseURL    string
	APIKey     string
	MaxRetries int
}

// Client calls the generation API over HTTP with bounded retries and
// exponential backoff. Per-call deadlines come from the caller's context.
type Client struct {
	config *Config
	client *http.Client
	logger Logger
}

func NewClient(config *Config, log Logger) *Client {
	return &Client{
		config: config,
		// No client-level timeout; the context carries the deadline.
		client: &http.Client{},
		logger: log.With(map[string]interface{}{
			"component": "genai",
		}),
	}
}

func (c *Client) Generate(ctx context.Context, genReq Request) (string, error) {
	body, _ := json.Marshal(genReq)

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ErrGenerationTimeout
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL+"/api/ai/generate", bytes.NewBuffer(body))
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}

		resp, lastErr = c.client.Do(req)

		// If the context expired during the request, report timeout immediately.
		if ctx.Err() != nil ||
			errors.Is(lastErr, context.DeadlineExceeded) ||
			errors.Is(lastErr, context.Canceled) {
			return "", ErrGenerationTimeout
		}

		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}
	}

	if lastErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", ErrGenerationTimeout
		}
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, lastErr)
	}

	if resp == nil {
		return "", fmt.Errorf("%w: no successful response after retries", ErrGenerationFailed)
	}
	defer resp.Body.Close()

	var apiResponse struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return "", fmt.Errorf("%w: decode error: %v", ErrGenerationFailed, err)
	}

	if strings.TrimSpace(apiResponse.Text) == "" {
		return "", fmt.Errorf("%w: empty generation", ErrGenerationFailed)
	}

	return apiResponse.Text, nil
}
