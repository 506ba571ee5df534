// Package amap implements the POI, navigation, traffic, and input-hint
// clients on the Amap (Gaode) Web Service API family. One Client serves
// all four contracts; geocode lookups it performs on the side are metered
// under the geocode provider bucket.
package amap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/periplo-ai/periplo/pkg/httpclient"
	"github.com/periplo-ai/periplo/pkg/travel"
	"github.com/periplo-ai/periplo/pkg/upstream"
)

const defaultHost = "https://restapi.amap.com"

// Config holds the Amap account and request settings.
type Config struct {
	Key  string `yaml:"key" json:"key,omitempty" jsonschema:"description=Amap web service API key"`
	Host string `yaml:"host" json:"host,omitempty"`

	// City scopes searches and tip lookups; Amap accepts a name, adcode,
	// or citycode.
	City string `yaml:"city" json:"city,omitempty"`

	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds,omitempty" jsonschema:"minimum=1,default=10"`
	MaxRetries     int `yaml:"max_retries" json:"max_retries,omitempty" jsonschema:"minimum=0,default=2"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Host == "" {
		c.Host = defaultHost
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 10
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 2
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Key == "" {
		return fmt.Errorf("amap: key is required")
	}
	return nil
}

// Client talks to the Amap endpoints. Safe for concurrent use.
type Client struct {
	cfg   Config
	http  *httpclient.Client
	limit upstream.Acquirer

	mu       sync.RWMutex
	geocache map[string]travel.LatLng
}

// NewClient builds a client. limit may be nil, which disables metering
// (tests only; production wiring always passes the limiter).
func NewClient(cfg Config, limit upstream.Acquirer) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		cfg: cfg,
		http: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
		),
		limit:    limit,
		geocache: make(map[string]travel.LatLng),
	}, nil
}

var (
	_ upstream.POIClient        = (*Client)(nil)
	_ upstream.NavigationClient = (*Client)(nil)
	_ upstream.TrafficClient    = (*Client)(nil)
	_ upstream.HintsClient      = (*Client)(nil)
)

// getJSON meters one request against provider's bucket, then performs it.
func (c *Client) getJSON(ctx context.Context, provider travel.Provider, path string, query url.Values, out any) error {
	if c.limit != nil {
		if err := c.limit.Acquire(ctx, provider); err != nil {
			return err
		}
	}
	query.Set("key", c.cfg.Key)
	query.Set("output", "json")
	return c.http.GetJSON(ctx, c.cfg.Host+path+"?"+query.Encode(), out)
}

// amapStatus is the envelope every Amap response carries. Status "1" means
// success; anything else is an API-level refusal described by info.
type amapStatus struct {
	Status   string `json:"status"`
	Info     string `json:"info"`
	Infocode string `json:"infocode"`
}

func (s amapStatus) check() error {
	if s.Status == "1" {
		return nil
	}
	return travel.Ef(travel.ErrUpstream, "amap %s: %s", s.Infocode, s.Info)
}

// flexString tolerates the Amap habit of sending "[]" where a string field
// is empty. Non-string JSON decodes to the empty string.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = ""
	return nil
}

func (f flexString) float() float64 {
	v, err := strconv.ParseFloat(string(f), 64)
	if err != nil {
		return 0
	}
	return v
}

// parseLatLng decodes Amap's "lng,lat" location strings.
func parseLatLng(s string) (travel.LatLng, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return travel.LatLng{}, false
	}
	lng, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lat, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return travel.LatLng{}, false
	}
	return travel.LatLng{Lat: lat, Lng: lng}, true
}

func formatLatLng(p travel.LatLng) string {
	return strconv.FormatFloat(p.Lng, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lat, 'f', 6, 64)
}

type geocodeResponse struct {
	amapStatus
	Geocodes []struct {
		Location         flexString `json:"location"`
		FormattedAddress flexString `json:"formatted_address"`
	} `json:"geocodes"`
}

// geocode resolves a place name to coordinates, against the geocode
// bucket. Results are cached for the process lifetime; the vocabulary of
// one region is small and stable.
func (c *Client) geocode(ctx context.Context, address string) (travel.LatLng, error) {
	key := strings.ToLower(strings.TrimSpace(address))

	c.mu.RLock()
	cached, ok := c.geocache[key]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	q := url.Values{}
	q.Set("address", address)
	if c.cfg.City != "" {
		q.Set("city", c.cfg.City)
	}

	var resp geocodeResponse
	if err := c.getJSON(ctx, travel.ProviderGeocode, "/v3/geocode/geo", q, &resp); err != nil {
		return travel.LatLng{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	if err := resp.check(); err != nil {
		return travel.LatLng{}, err
	}
	if len(resp.Geocodes) == 0 {
		return travel.LatLng{}, travel.Ef(travel.ErrUpstream, "geocode: no match for %q", address)
	}
	point, ok := parseLatLng(string(resp.Geocodes[0].Location))
	if !ok {
		return travel.LatLng{}, travel.Ef(travel.ErrParse, "geocode: bad location %q", resp.Geocodes[0].Location)
	}

	c.mu.Lock()
	c.geocache[key] = point
	c.mu.Unlock()
	return point, nil
}
