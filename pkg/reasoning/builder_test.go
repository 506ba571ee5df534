package reasoning

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/periplo-ai/periplo/pkg/extract"
	"github.com/periplo-ai/periplo/pkg/model"
	"github.com/periplo-ai/periplo/pkg/travel"
)

type stubReasoner struct {
	content string
	err     error
	lastReq model.Request
	calls   int
}

func (s *stubReasoner) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &model.Response{Content: s.content, TokensIn: 100, TokensOut: 50}, nil
}

func (s *stubReasoner) StreamComplete(ctx context.Context, req model.Request) (<-chan model.StreamChunk, error) {
	return nil, errors.New("streaming not stubbed")
}

func (s *stubReasoner) Model() string { return "stub" }
func (s *stubReasoner) Close() error  { return nil }

func extractFixture(t *testing.T, text string) extract.Extracted {
	t.Helper()
	return extract.New(nil).Extract(text)
}

func TestBuildFromModelOutput(t *testing.T) {
	stub := &stubReasoner{content: `The plan:
{"thoughts":[
  {"step":3,"thought":"Understand the request","keywords":["three days"],"api_needs":[],"reasoning":"scope first"},
  {"step":9,"thought":"Gather sights in Alfama","keywords":["sights"],"api_needs":["POI","Weather","teleport"],"reasoning":"need ground truth"}
]}`}

	b := NewBuilder(stub, "Lisbon")
	ex := extractFixture(t, "3 days in Alfama")

	thoughts := b.Build(context.Background(), "3 days in Alfama", ex)

	if len(thoughts) != 2 {
		t.Fatalf("thoughts = %d, want 2", len(thoughts))
	}
	if thoughts[0].Step != 1 || thoughts[1].Step != 2 {
		t.Errorf("steps not renumbered: %d, %d", thoughts[0].Step, thoughts[1].Step)
	}

	second := thoughts[1]
	if !second.Needs(travel.ServicePOI) || !second.Needs(travel.ServiceWeather) {
		t.Errorf("services = %v, want poi and weather", second.Services)
	}
	if len(second.Services) != 2 {
		t.Errorf("unknown api_needs not dropped: %v", second.Services)
	}

	found := false
	for _, k := range second.Keywords {
		if k == "Alfama" {
			found = true
		}
	}
	if !found {
		t.Errorf("extractor location not merged into keywords: %v", second.Keywords)
	}

	if !stub.lastReq.ResponseJSON {
		t.Error("request did not ask for a JSON response")
	}
	if !strings.Contains(stub.lastReq.System, "thoughts") {
		t.Error("system prompt does not carry the contract")
	}
	if !strings.Contains(stub.lastReq.Messages[0].Content, "3 days in Alfama") {
		t.Error("user prompt does not carry the utterance")
	}
}

func TestBuildFallsBackOnCompletionError(t *testing.T) {
	stub := &stubReasoner{err: errors.New("upstream down")}
	b := NewBuilder(stub, "Lisbon")
	ex := extractFixture(t, "a quiet day in Belém")

	thoughts := b.Build(context.Background(), "a quiet day in Belém", ex)

	if stub.calls != 1 {
		t.Fatalf("calls = %d, want 1", stub.calls)
	}
	assertRuleChain(t, thoughts, ex)
}

func TestBuildFallsBackOnGarbage(t *testing.T) {
	stub := &stubReasoner{content: "I would rather discuss the weather in general terms."}
	b := NewBuilder(stub, "Lisbon")
	ex := extractFixture(t, "a quiet day in Belém")

	assertRuleChain(t, b.Build(context.Background(), "a quiet day in Belém", ex), ex)
}

func TestBuildFallsBackOnEmptyChain(t *testing.T) {
	stub := &stubReasoner{content: `{"thoughts":[]}`}
	b := NewBuilder(stub, "Lisbon")
	ex := extractFixture(t, "a quiet day in Belém")

	assertRuleChain(t, b.Build(context.Background(), "a quiet day in Belém", ex), ex)
}

func TestBuildWithoutReasoner(t *testing.T) {
	b := NewBuilder(nil, "Lisbon")
	ex := extractFixture(t, "a quiet day in Belém")

	assertRuleChain(t, b.Build(context.Background(), "a quiet day in Belém", ex), ex)
}

func assertRuleChain(t *testing.T, thoughts []Thought, ex extract.Extracted) {
	t.Helper()
	if len(thoughts) < 3 {
		t.Fatalf("rule chain has %d steps, want at least 3", len(thoughts))
	}
	for i, th := range thoughts {
		if th.Step != i+1 {
			t.Errorf("step %d numbered %d", i, th.Step)
		}
		if th.TS.IsZero() {
			t.Errorf("step %d has zero timestamp", i+1)
		}
	}
	if len(thoughts[0].Services) != 0 {
		t.Errorf("framing step requests services: %v", thoughts[0].Services)
	}
	if !thoughts[1].Needs(travel.ServicePOI) {
		t.Errorf("second step services = %v, want poi", thoughts[1].Services)
	}
	if !thoughts[2].Needs(travel.ServiceWeather) {
		t.Errorf("third step services = %v, want weather", thoughts[2].Services)
	}
}

func TestFallbackAddsLegStepForRoute(t *testing.T) {
	ex := extractFixture(t, "from Alfama to Belém over 2 days")

	thoughts := Fallback("Lisbon", ex)
	if len(thoughts) != 4 {
		t.Fatalf("steps = %d, want 4 with a route present", len(thoughts))
	}
	last := thoughts[3]
	if !last.Needs(travel.ServiceNavigation) || !last.Needs(travel.ServiceTraffic) {
		t.Errorf("leg step services = %v", last.Services)
	}
}

func TestFallbackTwoLocationsWithoutRoute(t *testing.T) {
	ex := extractFixture(t, "see Alfama and Baixa in one day")

	thoughts := Fallback("Lisbon", ex)
	if len(thoughts) != 4 {
		t.Fatalf("steps = %d, want 4 with two locations", len(thoughts))
	}
	if !thoughts[3].Needs(travel.ServiceNavigation) {
		t.Errorf("leg step services = %v", thoughts[3].Services)
	}
}

func TestFallbackSingleLocationSkipsLegStep(t *testing.T) {
	ex := extractFixture(t, "a lazy day in Chiado")

	thoughts := Fallback("Lisbon", ex)
	if len(thoughts) != 3 {
		t.Fatalf("steps = %d, want 3 with a single location", len(thoughts))
	}
	if kinds := ServicesOf(thoughts); len(kinds) != 2 {
		t.Errorf("services union = %v, want poi and weather only", kinds)
	}
}

func TestFallbackNoLocationsUsesRegion(t *testing.T) {
	ex := extractFixture(t, "plan me something nice for tomorrow")

	thoughts := Fallback("Lisbon", ex)
	if len(thoughts) != 3 {
		t.Fatalf("steps = %d, want 3", len(thoughts))
	}
	poiStep := thoughts[1]
	found := false
	for _, k := range poiStep.Keywords {
		if k == "Lisbon" {
			found = true
		}
	}
	if !found {
		t.Errorf("default keywords = %v, want the region", poiStep.Keywords)
	}
}
