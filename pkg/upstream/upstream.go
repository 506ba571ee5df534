// Package upstream defines the client contracts for the external data
// providers and the dispatcher that routes a CallSpec to the right one.
// The collector depends on the dispatcher alone; concrete vendors live in
// the subpackages and are injected at wiring time.
package upstream

import (
	"context"

	"github.com/periplo-ai/periplo/pkg/travel"
)

// Acquirer meters upstream HTTP calls. Every request a client initiates,
// including geocode sub-calls, takes one token from the named provider's
// bucket before the connection is opened.
type Acquirer interface {
	Acquire(ctx context.Context, p travel.Provider) error
}

// POIQuery carries one place search. Mood and Avoid bias the query string;
// Area narrows it below region level.
type POIQuery struct {
	Keyword string
	Area    string
	Region  string
	Mood    string
	Avoid   []string
}

// WeatherClient fetches the forecast for one city and trip day (1-based).
type WeatherClient interface {
	Forecast(ctx context.Context, city string, day int) (travel.WeatherPayload, error)
}

// POIClient searches points of interest.
type POIClient interface {
	Search(ctx context.Context, q POIQuery) (travel.POIPayload, error)
}

// NavigationClient plans a route between two named places.
type NavigationClient interface {
	Route(ctx context.Context, origin, destination, mode string) (travel.NavigationPayload, error)
}

// TrafficClient reports congestion around a named area.
type TrafficClient interface {
	Status(ctx context.Context, area string) (travel.TrafficPayload, error)
}

// CrowdClient estimates how busy a place is. No bundled vendor implements
// it; the slot exists so one can be registered without core changes.
type CrowdClient interface {
	Estimate(ctx context.Context, place string) (travel.CrowdPayload, error)
}

// HintsClient suggests resolutions for an unrecognised location keyword.
type HintsClient interface {
	Suggest(ctx context.Context, keyword string) (travel.HintsPayload, error)
}
