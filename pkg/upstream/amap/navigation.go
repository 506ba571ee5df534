package amap

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/periplo-ai/periplo/pkg/travel"
)

type directionStep struct {
	Instruction flexString `json:"instruction"`
	Status      flexString `json:"traffic_status"`
}

type directionResponse struct {
	amapStatus
	Route struct {
		Paths []struct {
			Distance flexString      `json:"distance"`
			Duration flexString      `json:"duration"`
			Strategy flexString      `json:"strategy"`
			Steps    []directionStep `json:"steps"`
		} `json:"paths"`
		Transits []struct {
			Distance flexString `json:"distance"`
			Duration flexString `json:"duration"`
			Cost     flexString `json:"cost"`
		} `json:"transits"`
	} `json:"route"`
}

// Route geocodes both endpoints, then asks the direction endpoint that
// matches mode. Each geocode is metered separately from the direction
// request itself.
func (c *Client) Route(ctx context.Context, origin, destination, mode string) (travel.NavigationPayload, error) {
	from, err := c.geocode(ctx, origin)
	if err != nil {
		return travel.NavigationPayload{}, err
	}
	to, err := c.geocode(ctx, destination)
	if err != nil {
		return travel.NavigationPayload{}, err
	}

	query := url.Values{}
	query.Set("origin", formatLatLng(from))
	query.Set("destination", formatLatLng(to))

	var path string
	switch mode {
	case "walking":
		path = "/v3/direction/walking"
	case "transit":
		path = "/v3/direction/transit/integrated"
		if c.cfg.City != "" {
			query.Set("city", c.cfg.City)
		}
	default:
		mode = "driving"
		path = "/v3/direction/driving"
		query.Set("extensions", "all")
	}

	var resp directionResponse
	if err := c.getJSON(ctx, travel.ProviderNavigation, path, query, &resp); err != nil {
		return travel.NavigationPayload{}, fmt.Errorf("route %s to %s: %w", origin, destination, err)
	}
	if err := resp.check(); err != nil {
		return travel.NavigationPayload{}, err
	}

	out := travel.NavigationPayload{Origin: origin, Destination: destination, Mode: mode}
	for _, p := range resp.Route.Paths {
		out.Routes = append(out.Routes, travel.RouteCandidate{
			DistanceMeters: int(p.Distance.float()),
			Duration:       time.Duration(p.Duration.float()) * time.Second,
			Description:    string(p.Strategy),
			Congestion:     worstStepStatus(p.Steps),
		})
	}
	for _, t := range resp.Route.Transits {
		desc := "public transit"
		if t.Cost != "" {
			desc = "public transit, fare " + string(t.Cost)
		}
		out.Routes = append(out.Routes, travel.RouteCandidate{
			DistanceMeters: int(t.Distance.float()),
			Duration:       time.Duration(t.Duration.float()) * time.Second,
			Description:    desc,
		})
	}
	if len(out.Routes) == 0 {
		return travel.NavigationPayload{}, travel.Ef(travel.ErrUpstream, "route: no path from %q to %q", origin, destination)
	}
	return out, nil
}

// worstStepStatus folds per-step traffic statuses into one label. Amap
// labels each step 畅通/缓行/拥堵/严重拥堵; the worst step dominates.
func worstStepStatus(steps []directionStep) string {
	rank := map[string]int{"畅通": 1, "缓行": 2, "拥堵": 3, "严重拥堵": 4}
	worst := 0
	for _, s := range steps {
		if r := rank[strings.TrimSpace(string(s.Status))]; r > worst {
			worst = r
		}
	}
	switch worst {
	case 1:
		return "clear"
	case 2:
		return "slow"
	case 3:
		return "congested"
	case 4:
		return "blocked"
	default:
		return ""
	}
}
