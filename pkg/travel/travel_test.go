package travel

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestParseServiceKind(t *testing.T) {
	cases := []struct {
		in   string
		want ServiceKind
		ok   bool
	}{
		{"weather", ServiceWeather, true},
		{"POI", ServicePOI, true},
		{"  input_hints ", ServiceInputHints, true},
		{"Crowd", ServiceCrowd, true},
		{"geocode", "", false},
		{"", "", false},
		{"weather_forecast", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseServiceKind(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseServiceKind(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestProviderFor(t *testing.T) {
	want := map[ServiceKind]Provider{
		ServiceWeather:    ProviderWeather,
		ServicePOI:        ProviderPOI,
		ServiceNavigation: ProviderNavigation,
		ServiceTraffic:    ProviderTraffic,
		ServiceCrowd:      ProviderPOI,
		ServiceInputHints: ProviderHints,
	}
	for kind, p := range want {
		if got := ProviderFor(kind); got != p {
			t.Errorf("ProviderFor(%s) = %s, want %s", kind, got, p)
		}
		if !ProviderFor(kind).Valid() {
			t.Errorf("ProviderFor(%s) returned invalid provider", kind)
		}
	}
}

func TestCallSpecID(t *testing.T) {
	a := CallSpec{Kind: ServiceWeather, Key: "alfama", Priority: 2}
	b := CallSpec{Kind: ServiceWeather, Key: "alfama", Params: map[string]string{"days": "3"}, Priority: 9}
	c := CallSpec{Kind: ServicePOI, Key: "alfama"}

	if a.ID() != b.ID() {
		t.Errorf("specs differing only in params/priority must share an ID: %q vs %q", a.ID(), b.ID())
	}
	if a.ID() == c.ID() {
		t.Errorf("specs with different kinds must not share an ID: %q", a.ID())
	}
}

func TestResultBundleCanonical(t *testing.T) {
	bundle := ResultBundle{}
	for _, key := range []string{"chiado", "alfama", "belem"} {
		spec := CallSpec{Kind: ServicePOI, Key: key}
		bundle.Add(Ok(spec, POIPayload{Keyword: key}))
	}
	bundle.Add(Fail(CallSpec{Kind: ServiceWeather, Key: "lisbon"}, E(ErrUpstream, "boom")))
	bundle.Canonical()

	keys := make([]string, 0, 3)
	for _, r := range bundle[ServicePOI] {
		keys = append(keys, r.Key)
	}
	want := []string{"alfama", "belem", "chiado"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("canonical order = %v, want %v", keys, want)
		}
	}

	if bundle.Size() != 4 {
		t.Errorf("Size() = %d, want 4", bundle.Size())
	}
	if !bundle.AllFailed(ServiceWeather) {
		t.Errorf("AllFailed(weather) = false, want true")
	}
	if bundle.AllFailed(ServicePOI) {
		t.Errorf("AllFailed(poi) = true, want false")
	}
	if bundle.AllFailed(ServiceTraffic) {
		t.Errorf("AllFailed on an unrequested kind must be false")
	}
	if got := len(bundle.OKResults(ServicePOI)); got != 3 {
		t.Errorf("OKResults(poi) = %d results, want 3", got)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"taxonomy passthrough", E(ErrUpstream, "status 400"), ErrUpstream},
		{"wrapped taxonomy", fmt.Errorf("call failed: %w", E(ErrParse, "bad json")), ErrParse},
		{"context canceled", context.Canceled, ErrCanceled},
		{"wrapped canceled", fmt.Errorf("x: %w", context.Canceled), ErrCanceled},
		{"deadline", context.DeadlineExceeded, ErrTimeout},
		{"plain error", errors.New("connection refused"), ErrTransport},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err).Kind; got != tc.want {
				t.Errorf("Classify kind = %s, want %s", got, tc.want)
			}
		})
	}

	if Classify(nil) != nil {
		t.Errorf("Classify(nil) must be nil")
	}
	if !IsCanceled(fmt.Errorf("op: %w", context.Canceled)) {
		t.Errorf("IsCanceled must see through wrapping")
	}
}

func TestErrorIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", E(ErrTimeout, "spec exceeded 10s"))
	if !errors.Is(err, &Error{Kind: ErrTimeout}) {
		t.Errorf("errors.Is should match on kind")
	}
	if errors.Is(err, &Error{Kind: ErrUpstream}) {
		t.Errorf("errors.Is must not match a different kind")
	}
}

func TestAborts(t *testing.T) {
	aborting := map[ErrorKind]bool{
		ErrInvalidInput: true,
		ErrCanceled:     true,
		ErrInternal:     true,
		ErrTimeout:      false,
		ErrUpstream:     false,
		ErrTransport:    false,
		ErrParse:        false,
		ErrRateLimited:  false,
	}
	for kind, want := range aborting {
		if got := kind.Aborts(); got != want {
			t.Errorf("%s.Aborts() = %v, want %v", kind, got, want)
		}
	}
}

func TestWithProvider(t *testing.T) {
	base := E(ErrUpstream, "status 500")
	attributed := base.WithProvider(ProviderPOI)
	if attributed.Provider != ProviderPOI {
		t.Errorf("WithProvider did not set provider")
	}
	if base.Provider != "" {
		t.Errorf("WithProvider must not mutate the original")
	}
}
