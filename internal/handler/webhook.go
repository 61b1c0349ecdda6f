package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/creatorhub/creatorhub/internal/payload"
	"github.com/creatorhub/creatorhub/internal/realtime"
	"github.com/creatorhub/creatorhub/internal/store"
	"github.com/creatorhub/creatorhub/internal/webhook"
)

// maxWebhookBody bounds the request body; provider payloads are a few KB.
const maxWebhookBody = 1 << 20

// WebhookHandler ingests payment-provider events and reconciles the
// subscription store. Every response is JSON, including errors, because
// some providers log the body verbatim into their delivery dashboard.
type WebhookHandler struct {
	verifier *webhook.Verifier
	subs     *store.SubscriptionStore
	hub      *realtime.Hub
	logger   *slog.Logger
}

func NewWebhookHandler(v *webhook.Verifier, subs *store.SubscriptionStore, hub *realtime.Hub, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{verifier: v, subs: subs, hub: hub, logger: logger}
}

// Payment handles POST /webhooks/payment. The pipeline order is fixed:
// method, store presence, authorization, email extraction, persistence.
// Earlier failures must short-circuit before any state is touched.
func (h *WebhookHandler) Payment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		errorJSON(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if h.subs == nil {
		errorJSON(w, http.StatusInternalServerError, "Missing database configuration")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	// Parsing is best-effort: a malformed body still goes through
	// authorization, and only then fails email extraction with a 400.
	var parsed any = map[string]any{}
	raw := "{}"
	if len(body) > 0 {
		var v any
		if err := json.Unmarshal(body, &v); err == nil {
			parsed = v
			raw = string(body)
		}
	}

	if !h.verifier.Authorized(body, credentials(r, parsed)) {
		h.logger.Warn("webhook rejected", "reason", "invalid credential")
		errorJSON(w, http.StatusUnauthorized, "Invalid webhook token")
		return
	}

	email := payload.ExtractEmail(parsed)
	if email == "" {
		errorJSON(w, http.StatusBadRequest, "Email not found in payload")
		return
	}

	eventName := payload.ExtractEventName(parsed)
	status := payload.DeriveStatus(eventName, parsed)

	params := store.UpsertParams{
		Email:  email,
		Status: status,
		Raw:    raw,
	}
	if plan := payload.ExtractPlan(parsed); plan != "" {
		params.Plan = &plan
	}
	if eventName != "" {
		params.LastEvent = &eventName
	}
	params.CurrentPeriodEnd = payload.ExtractPeriodEnd(parsed)

	sub, err := h.subs.Upsert(params)
	if err != nil {
		h.logger.Error("webhook upsert failed", "error", err)
		errorJSON(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info("webhook processed",
		"event", eventName, "status", sub.Status)

	if h.hub != nil {
		plan := ""
		if sub.Plan != nil {
			plan = *sub.Plan
		}
		h.hub.Broadcast(realtime.StatusChanged(sub.Email, sub.Status, plan))
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// credentials gathers every candidate credential form off the request.
func credentials(r *http.Request, parsed any) webhook.Credentials {
	creds := webhook.Credentials{
		HeaderToken: r.Header.Get("X-Webhook-Token"),
		Signature:   r.Header.Get("X-Webhook-Signature"),
		QueryToken:  r.URL.Query().Get("token"),
	}
	if creds.HeaderToken == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			creds.HeaderToken = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if m, ok := parsed.(map[string]any); ok {
		for _, key := range []string{"token", "webhook_token"} {
			if s, ok := m[key].(string); ok && s != "" {
				creds.BodyToken = s
				break
			}
		}
	}
	return creds
}
