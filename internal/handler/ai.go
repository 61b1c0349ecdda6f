package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/creatorhub/creatorhub/internal/ai"
)

// AIHandler proxies the browser-facing AI endpoints so the upstream API
// key never reaches the client.
type AIHandler struct {
	completions *ai.Client
	knowledge   *ai.KnowledgeClient
	logger      *slog.Logger
}

func NewAIHandler(completions *ai.Client, knowledge *ai.KnowledgeClient, logger *slog.Logger) *AIHandler {
	return &AIHandler{completions: completions, knowledge: knowledge, logger: logger}
}

type chatRequest struct {
	Messages    []ai.Message `json:"messages"`
	Temperature float64      `json:"temperature"`
	JSONObject  bool         `json:"json_object"`
}

// Chat handles POST /api/ai/chat.
func (h *AIHandler) Chat(w http.ResponseWriter, r *http.Request) {
	if !h.completions.Configured() {
		errorJSON(w, http.StatusInternalServerError, "AI service is not configured")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Messages) == 0 {
		errorJSON(w, http.StatusBadRequest, "messages are required")
		return
	}
	for _, m := range req.Messages {
		if m.Role == "" || m.Content == "" {
			errorJSON(w, http.StatusBadRequest, "each message needs a role and content")
			return
		}
	}

	content, err := h.completions.Complete(r.Context(), ai.Request{
		Messages:    req.Messages,
		Temperature: req.Temperature,
		JSONObject:  req.JSONObject,
	})
	if err != nil {
		h.logger.Error("completion failed", "error", err)
		errorJSON(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"content": content})
}

type knowledgeQueryRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// Knowledge handles POST /api/knowledge/query. The search is an
// enrichment: empty queries and upstream failures both yield an empty
// chunk list with a 200, never an error the client has to handle.
func (h *AIHandler) Knowledge(w http.ResponseWriter, r *http.Request) {
	var req knowledgeQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	chunks := h.knowledge.Query(r.Context(), req.Query, req.Limit)
	if chunks == nil {
		chunks = []ai.Fragment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks": chunks})
}
