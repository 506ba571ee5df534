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

// OpenAIReasoner talks to the OpenAI chat completions API. Any endpoint
// speaking the same wire format (Azure, vLLM, LM Studio) works through
// the Host setting.
type OpenAIReasoner struct {
	cfg  Config
	http *httpclient.Client
}

type openaiRequest struct {
	Model          string                `json:"model"`
	Messages       []Message             `json:"messages"`
	MaxTokens      *int                  `json:"max_tokens,omitempty"`
	Temperature    float64               `json:"temperature"`
	Stream         bool                  `json:"stream"`
	ResponseFormat *openaiResponseFormat `json:"response_format,omitempty"`
}

type openaiResponseFormat struct {
	Type string `json:"type"`
}

type openaiResponse struct {
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
	Error   *openaiError   `json:"error,omitempty"`
}

type openaiChoice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type openaiStreamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *openaiError `json:"error,omitempty"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openaiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// NewOpenAIReasoner builds a reasoner from cfg. Host and model defaults
// are filled by cfg.SetDefaults.
func NewOpenAIReasoner(cfg Config) (*OpenAIReasoner, error) {
	cfg.SetDefaults()
	return &OpenAIReasoner{
		cfg: cfg,
		http: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{
				Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
			}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
		),
	}, nil
}

func (p *OpenAIReasoner) Model() string { return p.cfg.Model }

func (p *OpenAIReasoner) Close() error { return nil }

func (p *OpenAIReasoner) buildRequest(req Request, stream bool) openaiRequest {
	messages := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: req.System})
	}
	messages = append(messages, req.Messages...)

	out := openaiRequest{
		Model:       p.cfg.Model,
		Messages:    messages,
		Temperature: p.cfg.temperature(),
		Stream:      stream,
	}
	if req.Temperature > 0 {
		out.Temperature = req.Temperature
	}
	maxTokens := p.cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens > 0 {
		out.MaxTokens = &maxTokens
	}
	if req.ResponseJSON {
		out.ResponseFormat = &openaiResponseFormat{Type: "json_object"}
	}
	return out
}

func (p *OpenAIReasoner) post(ctx context.Context, body openaiRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Host+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	// Do may return both a response and an error on exhausted retries;
	// prefer the API error in the body over the transport error.
	resp, err := p.http.Do(req)
	if resp != nil && resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var wrapper struct {
			Error openaiError `json:"error"`
		}
		if json.Unmarshal(raw, &wrapper) == nil && wrapper.Error.Message != "" {
			return nil, fmt.Errorf("openai api status %d: %s (type %s)", resp.StatusCode, wrapper.Error.Message, wrapper.Error.Type)
		}
		return nil, fmt.Errorf("openai api status %d: %s", resp.StatusCode, string(raw))
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
func (p *OpenAIReasoner) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	tracer := observability.GetTracer("periplo.reasoner")
	ctx, span := tracer.Start(ctx, "reasoner.complete",
		trace.WithAttributes(
			attribute.String("reasoner.provider", "openai"),
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

	var parsed openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		err = fmt.Errorf("decode response: %w", err)
		span.RecordError(err)
		observability.RecordReasonerCall(ctx, p.cfg.Model, time.Since(start), 0, 0, err)
		return nil, err
	}
	if parsed.Error != nil {
		err := fmt.Errorf("openai api error: %s", parsed.Error.Message)
		span.RecordError(err)
		span.SetStatus(codes.Error, parsed.Error.Message)
		observability.RecordReasonerCall(ctx, p.cfg.Model, time.Since(start), 0, 0, err)
		return nil, err
	}
	if len(parsed.Choices) == 0 {
		err := fmt.Errorf("openai returned no choices")
		span.RecordError(err)
		observability.RecordReasonerCall(ctx, p.cfg.Model, time.Since(start), 0, 0, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("reasoner.tokens_in", parsed.Usage.PromptTokens),
		attribute.Int("reasoner.tokens_out", parsed.Usage.CompletionTokens),
	)
	span.SetStatus(codes.Ok, "")
	observability.RecordReasonerCall(ctx, p.cfg.Model, time.Since(start),
		parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens, nil)

	return &Response{
		Content:   parsed.Choices[0].Message.Content,
		TokensIn:  parsed.Usage.PromptTokens,
		TokensOut: parsed.Usage.CompletionTokens,
	}, nil
}

// StreamComplete streams a completion over server-sent events.
func (p *OpenAIReasoner) StreamComplete(ctx context.Context, req Request) (<-chan StreamChunk, error) {
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
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				out <- StreamChunk{Done: true}
				return
			}
			var chunk openaiStreamResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if chunk.Error != nil {
				out <- StreamChunk{Err: fmt.Errorf("openai api error: %s", chunk.Error.Message)}
				return
			}
			for _, c := range chunk.Choices {
				if c.Delta.Content != "" {
					select {
					case out <- StreamChunk{Text: c.Delta.Content}:
					case <-ctx.Done():
						select {
						case out <- StreamChunk{Err: ctx.Err()}:
						default:
						}
						return
					}
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

var _ Reasoner = (*OpenAIReasoner)(nil)
