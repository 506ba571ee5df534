package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/periplo-ai/periplo/pkg/observability"
)

// GeminiReasoner talks to Google Gemini through the official genai SDK.
type GeminiReasoner struct {
	cfg    Config
	client *genai.Client
}

// NewGeminiReasoner builds a reasoner from cfg. Client construction does
// not need a caller context; per-call contexts bound the requests.
func NewGeminiReasoner(cfg Config) (*GeminiReasoner, error) {
	cfg.SetDefaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiReasoner{cfg: cfg, client: client}, nil
}

func (p *GeminiReasoner) Model() string { return p.cfg.Model }

func (p *GeminiReasoner) Close() error { return nil }

func (p *GeminiReasoner) buildRequest(req Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range req.Messages {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}

	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{
			Role:  "user",
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	temperature := p.cfg.temperature()
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	cfg.Temperature = genai.Ptr(float32(temperature))

	maxTokens := p.cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}
	if req.ResponseJSON {
		cfg.ResponseMIMEType = "application/json"
	}
	return contents, cfg
}

// Complete performs one blocking completion.
func (p *GeminiReasoner) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	tracer := observability.GetTracer("periplo.reasoner")
	ctx, span := tracer.Start(ctx, "reasoner.complete",
		trace.WithAttributes(
			attribute.String("reasoner.provider", "gemini"),
			attribute.String("reasoner.model", p.cfg.Model),
		),
	)
	defer span.End()

	contents, genCfg := p.buildRequest(req)
	resp, err := p.client.Models.GenerateContent(ctx, p.cfg.Model, contents, genCfg)
	if err != nil {
		err = fmt.Errorf("gemini generation failed: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordReasonerCall(ctx, p.cfg.Model, time.Since(start), 0, 0, err)
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		err := fmt.Errorf("gemini returned no candidates")
		span.RecordError(err)
		observability.RecordReasonerCall(ctx, p.cfg.Model, time.Since(start), 0, 0, err)
		return nil, err
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" && !part.Thought {
			text.WriteString(part.Text)
		}
	}

	out := &Response{Content: text.String()}
	if resp.UsageMetadata != nil {
		out.TokensIn = int(resp.UsageMetadata.PromptTokenCount)
		out.TokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	span.SetAttributes(
		attribute.Int("reasoner.tokens_in", out.TokensIn),
		attribute.Int("reasoner.tokens_out", out.TokensOut),
	)
	span.SetStatus(codes.Ok, "")
	observability.RecordReasonerCall(ctx, p.cfg.Model, time.Since(start), out.TokensIn, out.TokensOut, nil)
	return out, nil
}

// StreamComplete streams a completion through the SDK's iterator.
func (p *GeminiReasoner) StreamComplete(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	out := make(chan StreamChunk, 16)
	go func() {
		defer close(out)

		contents, genCfg := p.buildRequest(req)
		for resp, err := range p.client.Models.GenerateContentStream(ctx, p.cfg.Model, contents, genCfg) {
			if err != nil {
				out <- StreamChunk{Err: fmt.Errorf("gemini streaming failed: %w", err)}
				return
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}
			for _, part := range resp.Candidates[0].Content.Parts {
				if part.Text == "" || part.Thought {
					continue
				}
				select {
				case out <- StreamChunk{Text: part.Text}:
				case <-ctx.Done():
					select {
					case out <- StreamChunk{Err: ctx.Err()}:
					default:
					}
					return
				}
			}
		}
		out <- StreamChunk{Done: true}
	}()
	return out, nil
}

var _ Reasoner = (*GeminiReasoner)(nil)
