package ai

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func completionServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestCompleteSuccess(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-123" {
			t.Errorf("auth header = %q", got)
		}
		var req upstreamRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 1 || req.Messages[0].Content != "hello" {
			t.Errorf("messages = %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "hi there"}},
			},
		})
	})

	c := NewClient(Config{APIKey: "key-123", BaseURL: srv.URL}, slog.Default())
	got, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != "hi there" {
		t.Errorf("content = %q", got)
	}
}

func TestCompleteJSONObjectFlag(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req upstreamRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Error("response_format json_object not forwarded")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "{}"}},
			},
		})
	})

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, slog.Default())
	if _, err := c.Complete(context.Background(), Request{
		Messages:   []Message{{Role: "user", Content: "x"}},
		JSONObject: true,
	}); err != nil {
		t.Fatalf("complete: %v", err)
	}
}

func TestCompleteRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "recovered"}},
			},
		})
	})

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, slog.Default())
	got, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "x"}},
	})
	if err != nil {
		t.Fatalf("complete after retry: %v", err)
	}
	if got != "recovered" {
		t.Errorf("content = %q", got)
	}
	if calls.Load() != 2 {
		t.Errorf("upstream calls = %d, want 2", calls.Load())
	}
}

func TestCompleteClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "bad prompt"},
		})
	})

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, slog.Default())
	if _, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "x"}},
	}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("4xx must not be retried, calls = %d", calls.Load())
	}
}

func TestCompleteOrFallback(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, slog.Default())
	got := c.CompleteOrFallback(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "x"}},
	}, "try again later")
	if got != "try again later" {
		t.Errorf("fallback = %q", got)
	}
}

func TestCompleteUnconfigured(t *testing.T) {
	c := NewClient(Config{}, slog.Default())
	if c.Configured() {
		t.Error("client without key should report unconfigured")
	}
	if _, err := c.Complete(context.Background(), Request{}); err == nil {
		t.Fatal("expected error when unconfigured")
	}
}
