package llm

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

type countingProvider struct {
	name  string
	calls int
	fail  int // number of leading calls that fail
}

func (p *countingProvider) Name() string     { return p.name }
func (p *countingProvider) Models() []string { return []string{p.name + "-model"} }

func (p *countingProvider) ChatCompletion(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	p.calls++
	if p.calls <= p.fail {
		return nil, errors.New("upstream unavailable")
	}
	return &ChatResponse{Provider: p.name, Model: req.Model, Content: "ok"}, nil
}

func TestGateway_SingleAttemptByDefault(t *testing.T) {
	p := &countingProvider{name: "openai", fail: 1}
	gw := NewGatewayWithProviders("openai", 0, p)

	_, err := gw.Chat(context.Background(), ChatRequest{Model: "m"})
	if err == nil {
		t.Fatal("expected error")
	}
	if p.calls != 1 {
		t.Errorf("calls = %d, want 1", p.calls)
	}
}

func TestGateway_RetriesWhenConfigured(t *testing.T) {
	p := &countingProvider{name: "openai", fail: 1}
	gw := NewGatewayWithProviders("openai", 1, p)

	resp, err := gw.Chat(context.Background(), ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "ok" || p.calls != 2 {
		t.Errorf("content=%q calls=%d", resp.Content, p.calls)
	}
}

func TestGateway_UnknownProvider(t *testing.T) {
	gw := NewGatewayWithProviders("openai", 0)
	if _, err := gw.Chat(context.Background(), ChatRequest{Provider: "nope"}); err == nil {
		t.Fatal("expected error for unconfigured provider")
	}
}

func TestGateway_ListModels(t *testing.T) {
	gw := NewGatewayWithProviders("a", 0, &countingProvider{name: "a"}, &countingProvider{name: "b"})
	if got := len(gw.ListModels()); got != 2 {
		t.Errorf("ListModels returned %d entries, want 2", got)
	}
}

func TestOpenAIProvider_ChatCompletion(t *testing.T) {
	var gotReq struct {
		Model       string    `json:"model"`
		Messages    []Message `json:"messages"`
		Temperature float64   `json:"temperature"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":    "chatcmpl-1",
			"model": "llama-3.3-70b-versatile",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": "Hello!"}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"prompt_tokens": 1000, "completion_tokens": 1000, "total_tokens": 2000},
		})
	}))
	defer server.Close()

	p := NewOpenAIProvider("test-key", server.URL)
	resp, err := p.ChatCompletion(context.Background(), ChatRequest{
		Model:       "llama-3.3-70b-versatile",
		Messages:    []Message{{Role: RoleSystem, Content: "coach"}, {Role: RoleUser, Content: "hi"}},
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}

	if resp.Content != "Hello!" {
		t.Errorf("Content = %q", resp.Content)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[1].Content != "hi" {
		t.Errorf("forwarded messages = %+v", gotReq.Messages)
	}
	if math.Abs(gotReq.Temperature-0.7) > 1e-6 {
		t.Errorf("temperature = %v", gotReq.Temperature)
	}
	if math.Abs(resp.CostUSD-(0.00059+0.00079)) > 1e-9 {
		t.Errorf("CostUSD = %v", resp.CostUSD)
	}
}

func TestCalculateCost_UnknownModel(t *testing.T) {
	if got := CalculateCost("local-model", 500, 500); got != 0 {
		t.Errorf("CalculateCost = %v, want 0", got)
	}
}
