package amap

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/periplo-ai/periplo/pkg/travel"
)

// rectangleHalfSpan is the half-width, in degrees, of the traffic query
// box centred on the geocoded area. Amap caps the diagonal at 10km; 0.01
// degrees keeps the box near 2km across.
const rectangleHalfSpan = 0.01

type trafficResponse struct {
	amapStatus
	TrafficInfo struct {
		Description flexString `json:"description"`
		Evaluation  struct {
			Status   flexString `json:"status"`
			Expedite flexString `json:"expedite"`
		} `json:"evaluation"`
	} `json:"trafficinfo"`
}

// Status geocodes the area, then queries live road conditions for a small
// rectangle around it.
func (c *Client) Status(ctx context.Context, area string) (travel.TrafficPayload, error) {
	center, err := c.geocode(ctx, area)
	if err != nil {
		return travel.TrafficPayload{}, err
	}

	query := url.Values{}
	query.Set("rectangle", rectangle(center))
	query.Set("extensions", "all")

	var resp trafficResponse
	if err := c.getJSON(ctx, travel.ProviderTraffic, "/v3/traffic/status/rectangle", query, &resp); err != nil {
		return travel.TrafficPayload{}, fmt.Errorf("traffic %q: %w", area, err)
	}
	if err := resp.check(); err != nil {
		return travel.TrafficPayload{}, err
	}

	return travel.TrafficPayload{
		Area:        area,
		Level:       trafficLevel(string(resp.TrafficInfo.Evaluation.Status)),
		Description: string(resp.TrafficInfo.Description),
		Timestamp:   time.Now().UTC(),
	}, nil
}

// rectangle renders "lng1,lat1;lng2,lat2" corners around a center point.
func rectangle(center travel.LatLng) string {
	lo := travel.LatLng{Lat: center.Lat - rectangleHalfSpan, Lng: center.Lng - rectangleHalfSpan}
	hi := travel.LatLng{Lat: center.Lat + rectangleHalfSpan, Lng: center.Lng + rectangleHalfSpan}
	return formatLatLng(lo) + ";" + formatLatLng(hi)
}

func trafficLevel(status string) string {
	switch status {
	case "1":
		return "clear"
	case "2":
		return "slow"
	case "3":
		return "congested"
	case "4":
		return "blocked"
	default:
		return "unknown"
	}
}
