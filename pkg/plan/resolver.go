// Package plan turns a thought chain and extractor output into the set of
// upstream calls a turn needs. Resolution is pure: same inputs, same plan,
// no duplicates.
package plan

import (
	"sort"
	"strconv"
	"strings"

	"github.com/periplo-ai/periplo/pkg/extract"
	"github.com/periplo-ai/periplo/pkg/reasoning"
	"github.com/periplo-ai/periplo/pkg/travel"
)

// Scheduling priorities. Hints are nice-to-have, feasibility data matters
// most, and the collector dispatches high values first.
const (
	priorityHints      = 1
	priorityWeather    = 2
	priorityPOI        = 3
	priorityCrowd      = 3
	priorityNavigation = 4
	priorityTraffic    = 5
)

// defaultHintBudget caps lookups for unverified location candidates.
const defaultHintBudget = 3

// Plan is the resolved set of upstream calls plus flags describing how the
// targets were chosen.
type Plan struct {
	Specs []travel.CallSpec `json:"specs"`

	// RouteInferred is set when the legs were derived from location order
	// rather than an explicit "from A to B".
	RouteInferred bool `json:"route_inferred,omitempty"`

	// DefaultsUsed is set when no location was named and POI and Weather
	// target the region instead.
	DefaultsUsed bool `json:"defaults_used,omitempty"`
}

// Kinds returns the distinct service kinds in the plan, in spec order.
func (p Plan) Kinds() []travel.ServiceKind {
	var out []travel.ServiceKind
	seen := map[travel.ServiceKind]bool{}
	for _, s := range p.Specs {
		if !seen[s.Kind] {
			seen[s.Kind] = true
			out = append(out, s.Kind)
		}
	}
	return out
}

// CountByKind returns how many specs target kind.
func (p Plan) CountByKind(kind travel.ServiceKind) int {
	n := 0
	for _, s := range p.Specs {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

// Resolver builds plans for one region.
type Resolver struct {
	region     string
	hintBudget int
}

// NewResolver wires a resolver. An empty region falls back to Lisbon,
// matching the bundled gazetteer.
func NewResolver(region string) *Resolver {
	if region == "" {
		region = "Lisbon"
	}
	return &Resolver{region: region, hintBudget: defaultHintBudget}
}

// Resolve applies the planning rules to the thought chain and extractor
// output. Weather is always planned, POI always has at least one target,
// navigation and traffic appear only when legs exist, and hint lookups are
// budgeted by extractor weight.
func (r *Resolver) Resolve(thoughts []reasoning.Thought, ex extract.Extracted) Plan {
	kw := ex.Keywords

	wanted := map[travel.ServiceKind]bool{}
	for _, kind := range reasoning.ServicesOf(thoughts) {
		wanted[kind] = true
	}

	if kw.Days >= 1 {
		wanted[travel.ServiceWeather] = true
	}
	wanted[travel.ServicePOI] = true

	legs := r.legs(kw)
	if len(legs) > 0 {
		wanted[travel.ServiceNavigation] = true
		wanted[travel.ServiceTraffic] = true
	} else {
		delete(wanted, travel.ServiceNavigation)
		delete(wanted, travel.ServiceTraffic)
	}

	unverified := kw.UnverifiedLocations()
	if len(unverified) > 0 {
		wanted[travel.ServiceInputHints] = true
	} else {
		delete(wanted, travel.ServiceInputHints)
	}

	targets := locationTargets(kw)
	p := Plan{
		RouteInferred: kw.Route == nil && len(legs) > 0,
		DefaultsUsed:  len(targets) == 0,
	}
	if len(targets) == 0 {
		targets = []string{r.region}
	}

	dedup := map[string]bool{}
	add := func(spec travel.CallSpec) {
		if dedup[spec.ID()] {
			return
		}
		dedup[spec.ID()] = true
		p.Specs = append(p.Specs, spec)
	}

	if wanted[travel.ServiceWeather] {
		// One spec per target and day, so a 3-day trip gets a daily
		// forecast even when only the region is targeted.
		for _, target := range targets {
			for day := 1; day <= kw.Days; day++ {
				add(travel.CallSpec{
					Kind:     travel.ServiceWeather,
					Key:      normKey(target) + "/d" + strconv.Itoa(day),
					Priority: priorityWeather,
					Params: map[string]string{
						"city": target,
						"day":  strconv.Itoa(day),
					},
				})
			}
		}
	}

	if wanted[travel.ServicePOI] {
		keyword := poiKeyword(kw)
		for _, target := range targets {
			params := map[string]string{
				"region":  r.region,
				"area":    target,
				"keyword": keyword,
			}
			// Mood and avoidance bias the search, so a romantic request
			// does not come back with the usual tourist funnel.
			if moods := ex.Context.Emotion.Moods; len(moods) > 0 {
				params["mood"] = string(moods[0])
			}
			if avoid := ex.Context.Emotion.Avoid; len(avoid) > 0 {
				parts := make([]string, len(avoid))
				for i, a := range avoid {
					parts[i] = string(a)
				}
				params["avoid"] = strings.Join(parts, ",")
			}
			add(travel.CallSpec{
				Kind:     travel.ServicePOI,
				Key:      normKey(target),
				Priority: priorityPOI,
				Params:   params,
			})
		}
	}

	if wanted[travel.ServiceCrowd] {
		for _, target := range targets {
			add(travel.CallSpec{
				Kind:     travel.ServiceCrowd,
				Key:      normKey(target),
				Priority: priorityCrowd,
				Params:   map[string]string{"place": target},
			})
		}
	}

	if wanted[travel.ServiceNavigation] {
		for _, leg := range legs {
			add(travel.CallSpec{
				Kind:     travel.ServiceNavigation,
				Key:      normKey(leg[0]) + "->" + normKey(leg[1]),
				Priority: priorityNavigation,
				Params: map[string]string{
					"origin":      leg[0],
					"destination": leg[1],
					"mode":        travelMode(ex.Context),
					"region":      r.region,
				},
			})
		}
	}

	if wanted[travel.ServiceTraffic] {
		for _, leg := range legs {
			add(travel.CallSpec{
				Kind:     travel.ServiceTraffic,
				Key:      normKey(leg[1]),
				Priority: priorityTraffic,
				Params: map[string]string{
					"area":   leg[1],
					"region": r.region,
				},
			})
		}
	}

	if wanted[travel.ServiceInputHints] {
		for _, cand := range rankCandidates(unverified, kw.Weights, r.hintBudget) {
			add(travel.CallSpec{
				Kind:     travel.ServiceInputHints,
				Key:      normKey(cand),
				Priority: priorityHints,
				Params: map[string]string{
					"keyword": cand,
					"region":  r.region,
				},
			})
		}
	}

	sortSpecs(p.Specs)
	return p
}

// legs returns the consecutive location pairs to route. An explicit route
// reorders the sequence so its start leads and its end closes; the legs
// are then the consecutive pairs of that sequence.
func (r *Resolver) legs(kw extract.Keywords) [][2]string {
	targets := locationTargets(kw)
	if kw.Route != nil {
		targets = orderForRoute(targets, kw.Route)
	}

	var legs [][2]string
	seen := map[string]bool{}
	for i := 0; i+1 < len(targets); i++ {
		from, to := targets[i], targets[i+1]
		if normKey(from) == normKey(to) {
			continue
		}
		id := normKey(from) + "->" + normKey(to)
		if seen[id] {
			continue
		}
		seen[id] = true
		legs = append(legs, [2]string{from, to})
	}
	return legs
}

// orderForRoute moves the route start to the front of the sequence and the
// route end to the back, keeping everything else in mention order.
func orderForRoute(targets []string, route *extract.Route) []string {
	startKey, endKey := normKey(route.Start), normKey(route.End)
	var head, middle, tail []string
	for _, t := range targets {
		switch normKey(t) {
		case startKey:
			head = append(head, t)
		case endKey:
			tail = append(tail, t)
		default:
			middle = append(middle, t)
		}
	}
	out := append(head, middle...)
	return append(out, tail...)
}

// locationTargets returns distinct location names in appearance order.
func locationTargets(kw extract.Keywords) []string {
	var out []string
	seen := map[string]bool{}
	for _, loc := range kw.Locations {
		key := normKey(loc.Name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, loc.Name)
	}
	return out
}

// poiKeyword picks the search term for POI lookups: the first activity
// class when one was mined, otherwise a generic sightseeing term.
func poiKeyword(kw extract.Keywords) string {
	if len(kw.Activities) > 0 {
		return string(kw.Activities[0])
	}
	return "attractions"
}

// travelMode maps preferences onto a routing mode.
func travelMode(tc extract.TravelContext) string {
	switch {
	case tc.HasPreference(extract.PrefWalking):
		return "walking"
	case tc.HasPreference(extract.PrefPublicTransport):
		return "transit"
	default:
		return "driving"
	}
}

// rankCandidates orders unverified candidates by extractor weight, ties by
// name, and cuts to the budget.
func rankCandidates(candidates []string, weights map[string]float64, budget int) []string {
	ranked := append([]string(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		wi, wj := weights[ranked[i]], weights[ranked[j]]
		if wi != wj {
			return wi > wj
		}
		return ranked[i] < ranked[j]
	})
	if len(ranked) > budget {
		ranked = ranked[:budget]
	}
	return ranked
}

// sortSpecs fixes the dispatch order: highest priority first, then key,
// then kind, so the plan is reproducible for identical input.
func sortSpecs(specs []travel.CallSpec) {
	sort.SliceStable(specs, func(i, j int) bool {
		if specs[i].Priority != specs[j].Priority {
			return specs[i].Priority > specs[j].Priority
		}
		if specs[i].Key != specs[j].Key {
			return specs[i].Key < specs[j].Key
		}
		return specs[i].Kind < specs[j].Kind
	})
}

// normKey canonicalises a target name for use as a cache key.
func normKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(name))), " ")
}
