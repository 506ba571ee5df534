package amap

import (
	"context"
	"fmt"
	"net/url"

	"github.com/periplo-ai/periplo/pkg/travel"
)

type tipsResponse struct {
	amapStatus
	Tips []struct {
		Name     flexString `json:"name"`
		District flexString `json:"district"`
		Location flexString `json:"location"`
	} `json:"tips"`
}

// Suggest queries /v3/assistant/inputtips for an unverified place name.
// Tips without a usable name are dropped; empty hint lists are a valid
// answer, not an error.
func (c *Client) Suggest(ctx context.Context, keyword string) (travel.HintsPayload, error) {
	query := url.Values{}
	query.Set("keywords", keyword)
	if c.cfg.City != "" {
		query.Set("city", c.cfg.City)
		query.Set("citylimit", "true")
	}

	var resp tipsResponse
	if err := c.getJSON(ctx, travel.ProviderHints, "/v3/assistant/inputtips", query, &resp); err != nil {
		return travel.HintsPayload{}, fmt.Errorf("input tips %q: %w", keyword, err)
	}
	if err := resp.check(); err != nil {
		return travel.HintsPayload{}, err
	}

	out := travel.HintsPayload{Keyword: keyword}
	for _, tip := range resp.Tips {
		if tip.Name == "" {
			continue
		}
		hint := travel.LocationHint{
			Name:     string(tip.Name),
			District: string(tip.District),
		}
		if point, ok := parseLatLng(string(tip.Location)); ok {
			hint.Location = &point
		}
		out.Hints = append(out.Hints, hint)
	}
	return out, nil
}
