package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/periplo-ai/periplo/pkg/httpclient"
	"github.com/periplo-ai/periplo/pkg/observability"
)

const anthropicVersion = "2023-06-01"

// AnthropicReasoner talks to the Anthropic messages API.
type AnthropicReasoner struct {
	cfg  Config
	http *httpclient.Client
}

type anthropicRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream"`
	System      string    `json:"system,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
	Error      *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage *anthropicUsage `json:"usage,omitempty"`
	Error *anthropicError `json:"error,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewAnthropicReasoner builds a reasoner from cfg.
func NewAnthropicReasoner(cfg Config) (*AnthropicReasoner, error) {
	cfg.SetDefaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	return &AnthropicReasoner{
		cfg: cfg,
		http: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{
				Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
			}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithHeaderParser(httpclient.ParseAnthropicHeaders),
		),
	}, nil
}

func (p *AnthropicReasoner) Model() string { return p.cfg.Model }

func (p *AnthropicReasoner) Close() error { return nil }

func (p *AnthropicReasoner) buildRequest(req Request, stream bool) anthropicRequest {
	out := anthropicRequest{
		Model:       p.cfg.Model,
		Messages:    req.Messages,
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.temperature(),
		Stream:      stream,
		System:      req.System,
	}
	if req.Temperature > 0 {
		out.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = 2000
	}
	// The messages API has no JSON response switch; steer via prompt.
	if req.ResponseJSON && out.System != "" {
		out.System += "\nRespond with a single JSON document and nothing else."
	}
	return out
}

func (p *AnthropicReasoner) post(ctx context.Context, body anthropicRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Host+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	// Do may return both a response and an error on exhausted retries;
	// prefer the API error in the body over the transport error.
	resp, err := p.http.Do(req)
	if resp != nil && resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var wrapper struct {
			Error anthropicError `json:"error"`
		}
		if json.Unmarshal(raw, &wrapper) == nil && wrapper.Error.Message != "" {
			return nil, fmt.Errorf("anthropic api status %d: %s (%s)", resp.StatusCode, wrapper.Error.Message, wrapper.Error.Type)
		}
		return nil, fmt.Errorf("anthropic api status %d: %s", resp.StatusCode, string(raw))
	}
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("no response received")
	}
	return resp, nil
}

// Complete performs one blocking completion.
func (p *AnthropicReasoner) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	tracer := observability.GetTracer("periplo.reasoner")
	ctx, span := tracer.Start(ctx, "reasoner.complete",
		trace.WithAttributes(
			attribute.String("reasoner.provider", "anthropic"),
			attribute.String("reasoner.model", p.cfg.Model),
		),
	)
	defer span.End()

	resp, err := p.post(ctx, p.buildRequest(req, false))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordReasonerCall(ctx, p.cfg.Model, time.Since(start), 0, 0, err)
		return nil, err
	}
	defer resp.Body.Close()

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		err = fmt.Errorf("decode response: %w", err)
		span.RecordError(err)
		observability.RecordReasonerCall(ctx, p.cfg.Model, time.Since(start), 0, 0, err)
		return nil, err
	}
	if parsed.Error != nil {
		err := fmt.Errorf("anthropic api error: %s", parsed.Error.Message)
		span.RecordError(err)
		span.SetStatus(codes.Error, parsed.Error.Message)
		observability.RecordReasonerCall(ctx, p.cfg.Model, time.Since(start), 0, 0, err)
		return nil, err
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	span.SetAttributes(
		attribute.Int("reasoner.tokens_in", parsed.Usage.InputTokens),
		attribute.Int("reasoner.tokens_out", parsed.Usage.OutputTokens),
	)
	span.SetStatus(codes.Ok, "")
	observability.RecordReasonerCall(ctx, p.cfg.Model, time.Since(start),
		parsed.Usage.InputTokens, parsed.Usage.OutputTokens, nil)

	return &Response{
		Content:   text.String(),
		TokensIn:  parsed.Usage.InputTokens,
		TokensOut: parsed.Usage.OutputTokens,
	}, nil
}

// StreamComplete streams a completion; text arrives in
// content_block_delta events.
func (p *AnthropicReasoner) StreamComplete(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	out := make(chan StreamChunk, 16)
	go func() {
		defer close(out)

		resp, err := p.post(ctx, p.buildRequest(req, true))
		if err != nil {
			out <- StreamChunk{Err: err}
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var event anthropicStreamEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
				continue
			}
			switch event.Type {
			case "content_block_delta":
				if event.Delta.Text != "" {
					select {
					case out <- StreamChunk{Text: event.Delta.Text}:
					case <-ctx.Done():
						select {
						case out <- StreamChunk{Err: ctx.Err()}:
						default:
						}
						return
					}
				}
			case "message_stop":
				out <- StreamChunk{Done: true}
				return
			case "error":
				if event.Error != nil {
					out <- StreamChunk{Err: fmt.Errorf("anthropic api error: %s", event.Error.Message)}
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			out <- StreamChunk{Err: fmt.Errorf("read stream: %w", err)}
			return
		}
		out <- StreamChunk{Done: true}
	}()
	return out, nil
}

var _ Reasoner = (*AnthropicReasoner)(nil)
