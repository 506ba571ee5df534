// Package travel defines the domain vocabulary shared by the reasoning and
// orchestration core: service kinds, upstream provider identities, call
// specs, results, and the error taxonomy.
//
// The package is a leaf. Everything above it (extractors, planner,
// collector, composer) imports these types; nothing here imports back.
package travel

import (
	"fmt"
	"sort"
	"strings"
)

// ServiceKind identifies one class of upstream data the planner can request.
type ServiceKind string

const (
	ServiceWeather    ServiceKind = "weather"
	ServicePOI        ServiceKind = "poi"
	ServiceNavigation ServiceKind = "navigation"
	ServiceTraffic    ServiceKind = "traffic"
	ServiceCrowd      ServiceKind = "crowd"
	ServiceInputHints ServiceKind = "input_hints"
)

// ServiceKinds lists every kind in priority-neutral declaration order.
func ServiceKinds() []ServiceKind {
	return []ServiceKind{
		ServiceWeather,
		ServicePOI,
		ServiceNavigation,
		ServiceTraffic,
		ServiceCrowd,
		ServiceInputHints,
	}
}

// ParseServiceKind resolves a kind from its wire name. The lookup is closed:
// unknown names return false.
func ParseServiceKind(s string) (ServiceKind, bool) {
	k := ServiceKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case ServiceWeather, ServicePOI, ServiceNavigation, ServiceTraffic, ServiceCrowd, ServiceInputHints:
		return k, true
	}
	return "", false
}

func (k ServiceKind) String() string { return string(k) }

// Valid reports whether k is a member of the closed enum.
func (k ServiceKind) Valid() bool {
	_, ok := ParseServiceKind(string(k))
	return ok
}

// Provider identifies one rate-limited upstream account. Several kinds may
// share a provider; geocode exists only as a sub-call budget for
// navigation-style lookups.
type Provider string

const (
	ProviderWeather    Provider = "weather"
	ProviderPOI        Provider = "poi"
	ProviderNavigation Provider = "navigation"
	ProviderTraffic    Provider = "traffic"
	ProviderGeocode    Provider = "geocode"
	ProviderHints      Provider = "hints"
)

// Providers lists every provider identity.
func Providers() []Provider {
	return []Provider{
		ProviderWeather,
		ProviderPOI,
		ProviderNavigation,
		ProviderTraffic,
		ProviderGeocode,
		ProviderHints,
	}
}

func (p Provider) String() string { return string(p) }

// Valid reports whether p is a member of the closed enum.
func (p Provider) Valid() bool {
	switch p {
	case ProviderWeather, ProviderPOI, ProviderNavigation, ProviderTraffic, ProviderGeocode, ProviderHints:
		return true
	}
	return false
}

// ProviderFor maps a service kind to the provider bucket its calls consume.
// Crowd data rides on the POI provider; there is no dedicated crowd vendor.
func ProviderFor(kind ServiceKind) Provider {
	switch kind {
	case ServiceWeather:
		return ProviderWeather
	case ServicePOI, ServiceCrowd:
		return ProviderPOI
	case ServiceNavigation:
		return ProviderNavigation
	case ServiceTraffic:
		return ProviderTraffic
	case ServiceInputHints:
		return ProviderHints
	default:
		return ProviderPOI
	}
}

// CallSpec is one upstream call request. Two specs are equal, for
// deduplication purposes, iff Kind and Key match; Params carry the
// kind-specific arguments and Priority orders scheduling, not correctness.
type CallSpec struct {
	Kind     ServiceKind       `json:"kind"`
	Key      string            `json:"key"`
	Params   map[string]string `json:"params,omitempty"`
	Priority int               `json:"priority"`
}

// ID returns the dedup identity of the spec.
func (s CallSpec) ID() string {
	return string(s.Kind) + "/" + s.Key
}

// Param returns the named parameter or def when absent.
func (s CallSpec) Param(name, def string) string {
	if v, ok := s.Params[name]; ok && v != "" {
		return v
	}
	return def
}

func (s CallSpec) String() string {
	return fmt.Sprintf("%s(key=%s, prio=%d)", s.Kind, s.Key, s.Priority)
}

// ServiceResult is the outcome of exactly one dispatched CallSpec. Either
// Payload or Err is set, never both.
type ServiceResult struct {
	Kind    ServiceKind `json:"kind"`
	Key     string      `json:"key"`
	Payload Payload     `json:"payload,omitempty"`
	Err     *Error      `json:"error,omitempty"`
}

// Ok builds a success result for spec.
func Ok(spec CallSpec, payload Payload) ServiceResult {
	return ServiceResult{Kind: spec.Kind, Key: spec.Key, Payload: payload}
}

// Fail builds a failure result for spec. A nil err is recorded as Internal.
func Fail(spec CallSpec, err *Error) ServiceResult {
	if err == nil {
		err = E(ErrInternal, "failure recorded without an error")
	}
	return ServiceResult{Kind: spec.Kind, Key: spec.Key, Err: err}
}

// OK reports whether the result carries a payload.
func (r ServiceResult) OK() bool { return r.Err == nil }

// ResultBundle collects the results of one turn, keyed by service kind.
// Arrival order is not meaningful; Canonical establishes the order tests
// and the composer rely on.
type ResultBundle map[ServiceKind][]ServiceResult

// Add appends a result under its kind.
func (b ResultBundle) Add(r ServiceResult) {
	b[r.Kind] = append(b[r.Kind], r)
}

// Canonical sorts every per-kind list by key so downstream consumers see a
// deterministic order regardless of completion interleaving.
func (b ResultBundle) Canonical() {
	for _, results := range b {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Key < results[j].Key
		})
	}
}

// OKResults returns the successful results for kind, in stored order.
func (b ResultBundle) OKResults(kind ServiceKind) []ServiceResult {
	var out []ServiceResult
	for _, r := range b[kind] {
		if r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// AllFailed reports whether kind was requested and produced no success.
// A kind that was never requested is not "failed".
func (b ResultBundle) AllFailed(kind ServiceKind) bool {
	results := b[kind]
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if r.OK() {
			return false
		}
	}
	return true
}

// Size returns the total number of results across all kinds.
func (b ResultBundle) Size() int {
	n := 0
	for _, results := range b {
		n += len(results)
	}
	return n
}
