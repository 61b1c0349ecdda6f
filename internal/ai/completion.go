// Package ai wraps the external text-completion and knowledge-search
// services the creator tools are built on. Both are collaborators this
// system consumes, not owns: the completion client degrades to a caller
// supplied fallback string and the knowledge client fails silent.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultModel       = "gpt-4o-mini"
	defaultTemperature = 0.7
)

// Message is one role-tagged entry in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes a completion call.
type Request struct {
	Messages    []Message
	Temperature float64
	JSONObject  bool // ask the model to return a JSON object
}

// Config holds completion service configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client calls the chat-completion service.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

type upstreamRequest struct {
	Model          string    `json:"model"`
	Messages       []Message `json:"messages"`
	Temperature    float64   `json:"temperature"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type upstreamResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends the conversation and returns the completion text.
// Rate limits and 5xx responses are retried with exponential backoff;
// 4xx responses fail immediately.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("completion service not configured")
	}

	payload := upstreamRequest{
		Model:       c.cfg.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
	}
	if payload.Temperature == 0 {
		payload.Temperature = defaultTemperature
	}
	if req.JSONObject {
		payload.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var content string
	backoff := retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("completion request: %w", err))
		}
		defer resp.Body.Close()

		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

		var parsed upstreamResponse
		if err := json.Unmarshal(raw, &parsed); err != nil && resp.StatusCode == http.StatusOK {
			return fmt.Errorf("decode completion response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			msg := "completion service error"
			if parsed.Error != nil && parsed.Error.Message != "" {
				msg = parsed.Error.Message
			}
			err := fmt.Errorf("completion service: %s (status %d)", msg, resp.StatusCode)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return retry.RetryableError(err)
			}
			return err
		}

		if len(parsed.Choices) == 0 {
			return fmt.Errorf("completion response has no choices")
		}
		content = parsed.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

// CompleteOrFallback returns the completion, or the fallback string when
// the service is unavailable. Callers rendering to users go through this
// so upstream failures never surface as errors.
func (c *Client) CompleteOrFallback(ctx context.Context, req Request, fallback string) string {
	content, err := c.Complete(ctx, req)
	if err != nil {
		c.logger.Warn("completion failed, using fallback", "error", err)
		return fallback
	}
	return content
}
