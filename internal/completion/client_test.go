package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestCompleteSendsChatRequest(t *testing.T) {
	var captured openai.ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key-123" {
			t.Errorf("unexpected authorization header %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Photosynthesis converts light."}}]}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL + "/v1/", APIKey: "key-123", Model: "test-model", Temperature: 0.7})
	text, err := client.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "You are REE."},
		{Role: RoleUser, Content: "Explain photosynthesis"},
	})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if text != "Photosynthesis converts light." {
		t.Fatalf("unexpected text %q", text)
	}
	if captured.Model != "test-model" || captured.Temperature != float32(0.7) || len(captured.Messages) != 2 {
		t.Fatalf("unexpected request %#v", captured)
	}
}

func TestCompleteWithoutChoicesIsUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	_, err := NewClient(ClientConfig{BaseURL: server.URL, APIKey: "k"}).Complete(context.Background(), nil)
	if !errors.Is(err, ErrUpstream) || !errors.Is(err, ErrNoChoices) {
		t.Fatalf("expected no-choices upstream error, got %v", err)
	}
}

func TestCompleteFailuresWrapUpstream(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer server.Close()

	_, err := NewClient(ClientConfig{BaseURL: server.URL, APIKey: "k"}).Complete(context.Background(), nil)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}

	_, err = NewClient(ClientConfig{BaseURL: server.URL}).Complete(context.Background(), nil)
	if !errors.Is(err, ErrUpstream) || !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected missing key upstream error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected no request without an api key, got %d calls", calls)
	}
}

func TestCompleteServerErrorIsNotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("bad gateway"))
	}))
	defer server.Close()

	_, err := NewClient(ClientConfig{BaseURL: server.URL, APIKey: "k"}).Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}
