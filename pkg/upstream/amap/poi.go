package amap

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/periplo-ai/periplo/pkg/travel"
	"github.com/periplo-ai/periplo/pkg/upstream"
)

type poiResponse struct {
	amapStatus
	POIs []struct {
		ID       flexString `json:"id"`
		Name     flexString `json:"name"`
		Type     flexString `json:"type"`
		Address  flexString `json:"address"`
		Location flexString `json:"location"`
		BizExt   struct {
			Rating   flexString `json:"rating"`
			Cost     flexString `json:"cost"`
			OpenTime flexString `json:"opentime2"`
		} `json:"biz_ext"`
		IndoorMap flexString `json:"indoor_map"`
	} `json:"pois"`
}

// Search queries /v3/place/text. The mood terms join the keyword so the
// vendor's relevance ranking leans the same way the traveller does; avoid
// terms are filtered out of the result set by name and category match.
func (c *Client) Search(ctx context.Context, q upstream.POIQuery) (travel.POIPayload, error) {
	keywords := q.Keyword
	if q.Mood != "" {
		keywords = q.Mood + " " + keywords
	}

	city := q.Area
	if city == "" {
		city = q.Region
	}
	if city == "" {
		city = c.cfg.City
	}

	query := url.Values{}
	query.Set("keywords", keywords)
	if city != "" {
		query.Set("city", city)
		query.Set("citylimit", "true")
	}
	query.Set("offset", "10")
	query.Set("extensions", "all")

	var resp poiResponse
	if err := c.getJSON(ctx, travel.ProviderPOI, "/v3/place/text", query, &resp); err != nil {
		return travel.POIPayload{}, fmt.Errorf("poi search %q: %w", q.Keyword, err)
	}
	if err := resp.check(); err != nil {
		return travel.POIPayload{}, err
	}

	out := travel.POIPayload{Keyword: q.Keyword, Region: q.Region}
	for _, p := range resp.POIs {
		if avoided(string(p.Name), string(p.Type), q.Avoid) {
			continue
		}
		poi := travel.POI{
			ID:       string(p.ID),
			Name:     string(p.Name),
			Address:  string(p.Address),
			Category: string(p.Type),
			Rating:   p.BizExt.Rating.float(),
			Price:    p.BizExt.Cost.float(),
			Hours:    string(p.BizExt.OpenTime),
		}
		if point, ok := parseLatLng(string(p.Location)); ok {
			poi.Location = &point
		}
		switch p.IndoorMap {
		case "1":
			indoor := true
			poi.Indoor = &indoor
		case "0":
			indoor := false
			poi.Indoor = &indoor
		}
		out.POIs = append(out.POIs, poi)
	}
	return out, nil
}

func avoided(name, category string, avoid []string) bool {
	for _, term := range avoid {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		if strings.Contains(strings.ToLower(name), strings.ToLower(term)) ||
			strings.Contains(strings.ToLower(category), strings.ToLower(term)) {
			return true
		}
	}
	return false
}
