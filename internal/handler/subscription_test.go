package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/creatorhub/creatorhub/internal/database"
	"github.com/creatorhub/creatorhub/internal/store"
)

func newSubscriptionHandler(t *testing.T) (*SubscriptionHandler, *store.SubscriptionStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	subs := store.NewSubscriptionStore(db)
	return NewSubscriptionHandler(subs, slog.Default()), subs
}

func seedSubscription(t *testing.T, subs *store.SubscriptionStore, email, status, plan string) {
	t.Helper()
	params := store.UpsertParams{Email: email, Status: status, Raw: "{}"}
	if plan != "" {
		params.Plan = &plan
	}
	if _, err := subs.Upsert(params); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestLookupFound(t *testing.T) {
	h, subs := newSubscriptionHandler(t)
	seedSubscription(t, subs, "a@b.com", "active", "Pro")

	req := httptest.NewRequest(http.MethodGet, "/api/subscriptions?email=a@b.com", nil)
	rec := httptest.NewRecorder()
	h.Lookup(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp accessResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Status != "active" || resp.Plan != "Pro" || resp.UserID != "" {
		t.Errorf("response = %+v", resp)
	}
}

func TestLookupCaseInsensitive(t *testing.T) {
	h, subs := newSubscriptionHandler(t)
	seedSubscription(t, subs, "a@b.com", "active", "")

	req := httptest.NewRequest(http.MethodGet, "/api/subscriptions?email=A%40B.com", nil)
	rec := httptest.NewRecorder()
	h.Lookup(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, email matching must be case-insensitive", rec.Code)
	}
}

func TestLookupMissingEmailParam(t *testing.T) {
	h, _ := newSubscriptionHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/subscriptions", nil)
	rec := httptest.NewRecorder()
	h.Lookup(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestLookupNotFound(t *testing.T) {
	h, _ := newSubscriptionHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/subscriptions?email=nobody@b.com", nil)
	rec := httptest.NewRecorder()
	h.Lookup(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestLookupNeverExposesRawPayload(t *testing.T) {
	h, subs := newSubscriptionHandler(t)
	if _, err := subs.Upsert(store.UpsertParams{
		Email:  "a@b.com",
		Status: "active",
		Raw:    `{"card_last4":"4242"}`,
	}); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/subscriptions?email=a@b.com", nil)
	rec := httptest.NewRecorder()
	h.Lookup(rec, req)

	if strings.Contains(rec.Body.String(), "4242") {
		t.Error("raw provider payload leaked through the read endpoint")
	}
}

func TestLinkSetsUserID(t *testing.T) {
	h, subs := newSubscriptionHandler(t)
	seedSubscription(t, subs, "a@b.com", "active", "")

	req := httptest.NewRequest(http.MethodPost, "/api/subscriptions/link",
		strings.NewReader(`{"email":"a@b.com","user_id":"user-1"}`))
	rec := httptest.NewRecorder()
	h.Link(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	sub, _ := subs.GetByEmail("a@b.com")
	if sub.UserID == nil || *sub.UserID != "user-1" {
		t.Errorf("user_id = %v", sub.UserID)
	}
}

func TestLinkDoesNotOverwrite(t *testing.T) {
	h, subs := newSubscriptionHandler(t)
	seedSubscription(t, subs, "a@b.com", "active", "")
	if err := subs.LinkUserID("a@b.com", "original"); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/subscriptions/link",
		strings.NewReader(`{"email":"a@b.com","user_id":"intruder"}`))
	rec := httptest.NewRecorder()
	h.Link(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	sub, _ := subs.GetByEmail("a@b.com")
	if sub.UserID == nil || *sub.UserID != "original" {
		t.Errorf("user_id = %v, an existing link must never change", sub.UserID)
	}
}

func TestLinkValidation(t *testing.T) {
	h, _ := newSubscriptionHandler(t)

	for _, body := range []string{"not json", `{"email":"a@b.com"}`, `{"user_id":"u"}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/subscriptions/link", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.Link(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestLookupReflectsLatestEvent(t *testing.T) {
	h, subs := newSubscriptionHandler(t)
	seedSubscription(t, subs, "a@b.com", "active", "Pro")

	time.Sleep(time.Millisecond)
	seedSubscription(t, subs, "a@b.com", "canceled", "")

	req := httptest.NewRequest(http.MethodGet, "/api/subscriptions?email=a@b.com", nil)
	rec := httptest.NewRecorder()
	h.Lookup(rec, req)

	var resp accessResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Status != "canceled" {
		t.Errorf("status = %q, want the later event to win", resp.Status)
	}
}
