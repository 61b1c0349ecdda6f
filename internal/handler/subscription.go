package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/creatorhub/creatorhub/internal/store"
)

// SubscriptionHandler serves the client-facing subscription read and
// identity-link endpoints.
type SubscriptionHandler struct {
	subs   *store.SubscriptionStore
	logger *slog.Logger
}

func NewSubscriptionHandler(subs *store.SubscriptionStore, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs, logger: logger}
}

type accessResponse struct {
	Status string `json:"status"`
	Plan   string `json:"plan"`
	UserID string `json:"user_id"`
}

// Lookup handles GET /api/subscriptions?email=. Only the three fields a
// client needs for gating leave the server; raw payloads stay internal.
func (h *SubscriptionHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		errorJSON(w, http.StatusBadRequest, "email is required")
		return
	}

	sub, err := h.subs.GetByEmail(email)
	if err != nil {
		h.logger.Error("subscription lookup failed", "error", err)
		errorJSON(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if sub == nil {
		errorJSON(w, http.StatusNotFound, "no subscription for email")
		return
	}

	resp := accessResponse{Status: sub.Status}
	if sub.Plan != nil {
		resp.Plan = *sub.Plan
	}
	if sub.UserID != nil {
		resp.UserID = *sub.UserID
	}
	writeJSON(w, http.StatusOK, resp)
}

type linkRequest struct {
	Email  string `json:"email"`
	UserID string `json:"user_id"`
}

// Link handles POST /api/subscriptions/link. The store only fills an
// empty user_id, so replayed or conflicting link requests are harmless.
func (h *SubscriptionHandler) Link(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Email == "" || req.UserID == "" {
		errorJSON(w, http.StatusBadRequest, "email and user_id are required")
		return
	}

	if err := h.subs.LinkUserID(req.Email, req.UserID); err != nil {
		h.logger.Error("user link failed", "error", err)
		errorJSON(w, http.StatusInternalServerError, "link failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
