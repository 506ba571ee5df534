package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/periplo-ai/periplo/pkg/httpclient"
	"github.com/periplo-ai/periplo/pkg/observability"
)

// OllamaReasoner talks to a local Ollama server over its native chat API.
// Responses stream as newline-delimited JSON.
type OllamaReasoner struct {
	cfg  Config
	http *httpclient.Client
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
	Error           string  `json:"error,omitempty"`
}

// NewOllamaReasoner builds a reasoner from cfg. No API key is needed.
func NewOllamaReasoner(cfg Config) (*OllamaReasoner, error) {
	cfg.SetDefaults()
	return &OllamaReasoner{
		cfg: cfg,
		http: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{
				Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
			}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
		),
	}, nil
}

func (p *OllamaReasoner) Model() string { return p.cfg.Model }

func (p *OllamaReasoner) Close() error { return nil }

func (p *OllamaReasoner) buildRequest(req Request, stream bool) ollamaRequest {
	messages := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: req.System})
	}
	messages = append(messages, req.Messages...)

	temperature := p.cfg.temperature()
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	maxTokens := p.cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	out := ollamaRequest{
		Model:    p.cfg.Model,
		Messages: messages,
		Stream:   stream,
		Options:  &ollamaOptions{Temperature: temperature, NumPredict: maxTokens},
	}
	if req.ResponseJSON {
		out.Format = "json"
	}
	return out
}

func (p *OllamaReasoner) post(ctx context.Context, body ollamaRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Host+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}
	req.Header.Set("Content-Type", "application/json")

	// Do may return both a response and an error on exhausted retries;
	// prefer the API error in the body over the transport error.
	resp, err := p.http.Do(req)
	if resp != nil && resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama api status %d: %s", resp.StatusCode, string(raw))
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
func (p *OllamaReasoner) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	tracer := observability.GetTracer("periplo.reasoner")
	ctx, span := tracer.Start(ctx, "reasoner.complete",
		trace.WithAttributes(
			attribute.String("reasoner.provider", "ollama"),
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

	var parsed ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		err = fmt.Errorf("decode response: %w", err)
		span.RecordError(err)
		observability.RecordReasonerCall(ctx, p.cfg.Model, time.Since(start), 0, 0, err)
		return nil, err
	}
	if parsed.Error != "" {
		err := fmt.Errorf("ollama api error: %s", parsed.Error)
		span.RecordError(err)
		span.SetStatus(codes.Error, parsed.Error)
		observability.RecordReasonerCall(ctx, p.cfg.Model, time.Since(start), 0, 0, err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	observability.RecordReasonerCall(ctx, p.cfg.Model, time.Since(start),
		parsed.PromptEvalCount, parsed.EvalCount, nil)

	return &Response{
		Content:   parsed.Message.Content,
		TokensIn:  parsed.PromptEvalCount,
		TokensOut: parsed.EvalCount,
	}, nil
}

// StreamComplete streams newline-delimited JSON chunks.
func (p *OllamaReasoner) StreamComplete(ctx context.Context, req Request) (<-chan StreamChunk, error) {
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
			var chunk ollamaResponse
			if err := json.Unmarshal(scanner.Bytes(), &chunk); err != nil {
				continue
			}
			if chunk.Error != "" {
				out <- StreamChunk{Err: fmt.Errorf("ollama api error: %s", chunk.Error)}
				return
			}
			if chunk.Message.Content != "" {
				select {
				case out <- StreamChunk{Text: chunk.Message.Content}:
				case <-ctx.Done():
					select {
					case out <- StreamChunk{Err: ctx.Err()}:
					default:
					}
					return
				}
			}
			if chunk.Done {
				out <- StreamChunk{Done: true}
				return
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

var _ Reasoner = (*OllamaReasoner)(nil)
