package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultKnowledgeLimit = 4
	maxKnowledgeLimit     = 8
)

// Fragment is one ranked text chunk from the knowledge base.
type Fragment struct {
	Content    string  `json:"content"`
	Source     string  `json:"source,omitempty"`
	Similarity float64 `json:"similarity,omitempty"`
}

// KnowledgeConfig holds similarity-search service configuration.
type KnowledgeConfig struct {
	BaseURL string
	APIKey  string
}

// KnowledgeClient queries the similarity-search service. Results only
// enrich prompts, so every failure collapses to an empty result.
type KnowledgeClient struct {
	cfg        KnowledgeConfig
	httpClient *http.Client
	logger     *slog.Logger
}

func NewKnowledgeClient(cfg KnowledgeConfig, logger *slog.Logger) *KnowledgeClient {
	return &KnowledgeClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Configured reports whether the service endpoint is set.
func (c *KnowledgeClient) Configured() bool {
	return c.cfg.BaseURL != ""
}

type knowledgeRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type knowledgeResponse struct {
	Chunks []Fragment `json:"chunks"`
}

// Query returns up to limit ranked fragments for the query. The limit is
// clamped to [1, 8] with a default of 4. Any failure yields an empty slice.
func (c *KnowledgeClient) Query(ctx context.Context, query string, limit int) []Fragment {
	if query == "" || !c.Configured() {
		return nil
	}
	if limit <= 0 {
		limit = defaultKnowledgeLimit
	}
	if limit > maxKnowledgeLimit {
		limit = maxKnowledgeLimit
	}

	body, err := json.Marshal(knowledgeRequest{Query: query, Limit: limit})
	if err != nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("knowledge query failed", "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("knowledge query rejected", "status", resp.StatusCode)
		return nil
	}

	var parsed knowledgeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.logger.Debug("knowledge response undecodable", "error", err)
		return nil
	}
	return parsed.Chunks
}
