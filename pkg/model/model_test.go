package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOpenAICompleteWire(t *testing.T) {
	var got openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(openaiResponse{
			Choices: []openaiChoice{{Message: Message{Role: RoleAssistant, Content: `{"thoughts":[]}`}}},
			Usage:   openaiUsage{PromptTokens: 42, CompletionTokens: 7},
		})
	}))
	defer server.Close()

	p, err := NewOpenAIReasoner(Config{Provider: ProviderOpenAI, Model: "gpt-4o-mini", APIKey: "test-key", Host: server.URL})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := p.Complete(context.Background(), Request{
		System:       "You plan trips.",
		Messages:     []Message{{Role: RoleUser, Content: "plan my day"}},
		ResponseJSON: true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if resp.Content != `{"thoughts":[]}` || resp.TokensIn != 42 || resp.TokensOut != 7 {
		t.Errorf("response = %+v", resp)
	}
	if got.Model != "gpt-4o-mini" {
		t.Errorf("wire model = %q", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != RoleSystem {
		t.Errorf("wire messages = %+v, want system prompt first", got.Messages)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v, want json_object", got.ResponseFormat)
	}
}

func TestOpenAICompleteSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	p, _ := NewOpenAIReasoner(Config{Provider: ProviderOpenAI, Model: "gpt-4o-mini", APIKey: "nope", Host: server.URL})
	_, err := p.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "bad key") {
		t.Errorf("error %q does not carry the API message", err)
	}
}

func TestOpenAIStreamComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`data: {"choices":[{"delta":{"content":"Bel"}}]}`,
			``,
			`data: {"choices":[{"delta":{"content":"ém"}}]}`,
			``,
			`data: [DONE]`,
		}
		w.Write([]byte(strings.Join(chunks, "\n") + "\n"))
	}))
	defer server.Close()

	p, _ := NewOpenAIReasoner(Config{Provider: ProviderOpenAI, Model: "gpt-4o-mini", APIKey: "k", Host: server.URL})
	ch, err := p.StreamComplete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatal(err)
	}

	var text strings.Builder
	sawDone := false
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("chunk error: %v", chunk.Err)
		}
		if chunk.Done {
			sawDone = true
		}
		text.WriteString(chunk.Text)
	}
	if text.String() != "Belém" {
		t.Errorf("streamed text = %q", text.String())
	}
	if !sawDone {
		t.Error("missing terminal Done chunk")
	}
}

func TestAnthropicCompleteWire(t *testing.T) {
	var got anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" || r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing anthropic headers")
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicContent{{Type: "text", Text: "Start in Alfama."}},
			Usage:   anthropicUsage{InputTokens: 10, OutputTokens: 5},
		})
	}))
	defer server.Close()

	p, err := NewAnthropicReasoner(Config{Provider: ProviderAnthropic, Model: "claude-sonnet-4-20250514", APIKey: "test-key", Host: server.URL})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := p.Complete(context.Background(), Request{
		System:   "You plan trips.",
		Messages: []Message{{Role: RoleUser, Content: "plan my day"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Start in Alfama." || resp.TokensIn != 10 || resp.TokensOut != 5 {
		t.Errorf("response = %+v", resp)
	}
	if got.System != "You plan trips." {
		t.Errorf("wire system = %q, want top-level system field", got.System)
	}
}

func TestAnthropicRequiresAPIKey(t *testing.T) {
	if _, err := NewAnthropicReasoner(Config{Provider: ProviderAnthropic, Model: "claude-sonnet-4-20250514"}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestOllamaCompleteWire(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var got ollamaRequest
		json.NewDecoder(r.Body).Decode(&got)
		if got.Stream {
			t.Error("stream = true on blocking call")
		}
		if got.Format != "json" {
			t.Errorf("format = %q, want json", got.Format)
		}
		json.NewEncoder(w).Encode(ollamaResponse{
			Message:         Message{Role: RoleAssistant, Content: "{}"},
			Done:            true,
			PromptEvalCount: 12,
			EvalCount:       3,
		})
	}))
	defer server.Close()

	p, _ := NewOllamaReasoner(Config{Provider: ProviderOllama, Model: "llama3.2", Host: server.URL})
	resp, err := p.Complete(context.Background(), Request{
		Messages:     []Message{{Role: RoleUser, Content: "plan"}},
		ResponseJSON: true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "{}" || resp.TokensIn != 12 || resp.TokensOut != 3 {
		t.Errorf("response = %+v", resp)
	}
}

func TestOllamaStreamComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lines := []string{
			`{"message":{"role":"assistant","content":"Day "},"done":false}`,
			`{"message":{"role":"assistant","content":"one"},"done":false}`,
			`{"message":{"role":"assistant","content":""},"done":true}`,
		}
		w.Write([]byte(strings.Join(lines, "\n") + "\n"))
	}))
	defer server.Close()

	p, _ := NewOllamaReasoner(Config{Provider: ProviderOllama, Model: "llama3.2", Host: server.URL})
	ch, err := p.StreamComplete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatal(err)
	}

	var text strings.Builder
	sawDone := false
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("chunk error: %v", chunk.Err)
		}
		if chunk.Done {
			sawDone = true
		}
		text.WriteString(chunk.Text)
	}
	if text.String() != "Day one" || !sawDone {
		t.Errorf("streamed %q done=%v", text.String(), sawDone)
	}
}

func TestCompleteHonorsContextCancellation(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	p, _ := NewOpenAIReasoner(Config{Provider: ProviderOpenAI, Model: "gpt-4o-mini", APIKey: "k", Host: server.URL})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := p.Complete(ctx, Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
		errCh <- err
	}()

	<-started
	cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected error after cancellation")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Complete did not return after cancellation")
	}
}

func TestRegistrySelection(t *testing.T) {
	if _, err := New(Config{Provider: "mystery"}); err == nil {
		t.Error("unknown provider accepted")
	}
	if _, err := New(Config{Provider: ProviderGemini}); err == nil {
		t.Error("gemini without api key accepted")
	}

	r, err := New(Config{Provider: ProviderOllama})
	if err != nil {
		t.Fatalf("ollama construction: %v", err)
	}
	if r.Model() != "llama3.2" {
		t.Errorf("default ollama model = %q", r.Model())
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Provider: ProviderOpenAI}
	cfg.SetDefaults()
	if cfg.Model != "gpt-4o-mini" || cfg.Host != "https://api.openai.com/v1" {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.TimeoutSeconds != 60 || cfg.PromptTokenBudget != 6000 {
		t.Errorf("timing defaults = %+v", cfg)
	}
}

func TestTokenCounterProperties(t *testing.T) {
	tc := NewTokenCounter("gpt-4o-mini")

	if got := tc.Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d", got)
	}
	short := tc.Count("plan a day trip")
	long := tc.Count("plan a day trip to Sintra with lunch in Cascais and sunset in Belém")
	if long <= short {
		t.Errorf("longer text counted %d <= shorter %d", long, short)
	}
}

func TestFitWithinLimitKeepsRecent(t *testing.T) {
	tc := NewTokenCounter("gpt-4o-mini")
	messages := []Message{
		{Role: RoleUser, Content: strings.Repeat("old turn ", 50)},
		{Role: RoleAssistant, Content: strings.Repeat("older reply ", 50)},
		{Role: RoleUser, Content: "latest question"},
	}

	fitted := tc.FitWithinLimit(messages, 30)
	if len(fitted) == 0 {
		t.Fatal("nothing fitted")
	}
	if fitted[len(fitted)-1].Content != "latest question" {
		t.Error("most recent message was dropped")
	}
	if len(fitted) == len(messages) {
		t.Error("budget of 30 tokens should not fit every message")
	}
}

func TestTruncateRespectsBudget(t *testing.T) {
	tc := NewTokenCounter("gpt-4o-mini")
	text := strings.Repeat("Lisbon is built on seven hills. ", 40)

	cut := tc.Truncate(text, 20)
	if tc.Count(cut) > 20 {
		t.Errorf("truncated text still counts %d tokens", tc.Count(cut))
	}
	if !strings.HasPrefix(text, cut) {
		t.Error("truncation must return a prefix")
	}
	if tc.Truncate("short", 100) != "short" {
		t.Error("text within budget must pass through unchanged")
	}
}
