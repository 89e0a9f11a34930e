package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestClientGenerateContent(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("unexpected auth header %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"closest\":[1]}"}}],"usage":{"total_tokens":12}}`))
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "secret", BaseURL: srv.URL, Model: "gpt-test"}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := c.GenerateContent(context.Background(), "system", "message")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"closest":[1]}` {
		t.Fatalf("unexpected content %q", out)
	}
	if got["model"] != "gpt-test" {
		t.Fatalf("unexpected model %v", got["model"])
	}
	format, _ := got["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Fatalf("expected json mode, got %v", got["response_format"])
	}
	messages, _ := got["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected system and user message, got %v", got["messages"])
	}
}

func TestClientReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(strings.Repeat("slow down ", 100)))
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "secret", BaseURL: srv.URL}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = c.GenerateContent(context.Background(), "s", "m")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "openai HTTP 429") {
		t.Fatalf("unexpected error %v", err)
	}
	if len(err.Error()) > 400 {
		t.Fatalf("error detail must be truncated, got %d chars", len(err.Error()))
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{APIKey: "  "}, nil); err == nil {
		t.Fatalf("expected error without api key")
	}
}
