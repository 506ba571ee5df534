// Package qweather implements the weather client on the QWeather
// developer API. Forecasts are addressed by QWeather location id, so every
// city passes through the geo lookup endpoint first; ids are cached for
// the process lifetime.
package qweather

import (
	"context"
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

const (
	defaultHost    = "https://devapi.qweather.com"
	defaultGeoHost = "https://geoapi.qweather.com"
)

// Config holds the QWeather account and endpoint settings.
type Config struct {
	Key     string `yaml:"key" json:"key,omitempty" jsonschema:"description=QWeather API key"`
	Host    string `yaml:"host" json:"host,omitempty"`
	GeoHost string `yaml:"geo_host" json:"geo_host,omitempty"`

	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds,omitempty" jsonschema:"minimum=1,default=10"`
	MaxRetries     int `yaml:"max_retries" json:"max_retries,omitempty" jsonschema:"minimum=0,default=2"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Host == "" {
		c.Host = defaultHost
	}
	if c.GeoHost == "" {
		c.GeoHost = defaultGeoHost
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
		return fmt.Errorf("qweather: key is required")
	}
	return nil
}

// Client talks to the QWeather endpoints. Safe for concurrent use.
type Client struct {
	cfg   Config
	http  *httpclient.Client
	limit upstream.Acquirer

	mu  sync.RWMutex
	ids map[string]string
}

// NewClient builds a client. limit may be nil, which disables metering.
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
		limit: limit,
		ids:   make(map[string]string),
	}, nil
}

var _ upstream.WeatherClient = (*Client)(nil)

func (c *Client) getJSON(ctx context.Context, provider travel.Provider, host, path string, query url.Values, out any) error {
	if c.limit != nil {
		if err := c.limit.Acquire(ctx, provider); err != nil {
			return err
		}
	}
	query.Set("key", c.cfg.Key)
	return c.http.GetJSON(ctx, host+path+"?"+query.Encode(), out)
}

// qwStatus is the code every QWeather response carries. "200" means
// success; other codes are documented API refusals.
type qwStatus struct {
	Code string `json:"code"`
}

func (s qwStatus) check() error {
	if s.Code == "200" {
		return nil
	}
	return travel.Ef(travel.ErrUpstream, "qweather code %s", s.Code)
}

type lookupResponse struct {
	qwStatus
	Location []struct {
		Name string `json:"name"`
		ID   string `json:"id"`
	} `json:"location"`
}

// locationID resolves a city name to a QWeather location id, against the
// geocode bucket.
func (c *Client) locationID(ctx context.Context, city string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(city))

	c.mu.RLock()
	id, ok := c.ids[key]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	q := url.Values{}
	q.Set("location", city)

	var resp lookupResponse
	if err := c.getJSON(ctx, travel.ProviderGeocode, c.cfg.GeoHost, "/geo/v2/city/lookup", q, &resp); err != nil {
		return "", fmt.Errorf("city lookup %q: %w", city, err)
	}
	if err := resp.check(); err != nil {
		return "", err
	}
	if len(resp.Location) == 0 {
		return "", travel.Ef(travel.ErrUpstream, "city lookup: no match for %q", city)
	}
	id = resp.Location[0].ID

	c.mu.Lock()
	c.ids[key] = id
	c.mu.Unlock()
	return id, nil
}

type forecastResponse struct {
	qwStatus
	Daily []struct {
		FxDate       string `json:"fxDate"`
		TempMax      string `json:"tempMax"`
		TempMin      string `json:"tempMin"`
		TextDay      string `json:"textDay"`
		WindDirDay   string `json:"windDirDay"`
		WindScaleDay string `json:"windScaleDay"`
		Humidity     string `json:"humidity"`
		Precip       string `json:"precip"`
	} `json:"daily"`
}

// Forecast returns the forecast for one day of the trip, day 1 being the
// first day. The 3-day product covers most requests; longer trips switch
// to the 7-day endpoint, which is the furthest the developer plan sees.
func (c *Client) Forecast(ctx context.Context, city string, day int) (travel.WeatherPayload, error) {
	if day < 1 {
		day = 1
	}

	id, err := c.locationID(ctx, city)
	if err != nil {
		return travel.WeatherPayload{}, err
	}

	path := "/v7/weather/3d"
	if day > 3 {
		path = "/v7/weather/7d"
	}

	q := url.Values{}
	q.Set("location", id)

	var resp forecastResponse
	if err := c.getJSON(ctx, travel.ProviderWeather, c.cfg.Host, path, q, &resp); err != nil {
		return travel.WeatherPayload{}, fmt.Errorf("forecast %q day %d: %w", city, day, err)
	}
	if err := resp.check(); err != nil {
		return travel.WeatherPayload{}, err
	}
	if day > len(resp.Daily) {
		return travel.WeatherPayload{}, travel.Ef(travel.ErrUpstream,
			"forecast %q: day %d beyond %d-day horizon", city, day, len(resp.Daily))
	}

	d := resp.Daily[day-1]
	return travel.WeatherPayload{
		City: city,
		Daily: []travel.DailyForecast{{
			Date:          d.FxDate,
			Text:          d.TextDay,
			TempNightC:    floatField(d.TempMin),
			TempDayC:      floatField(d.TempMax),
			Wind:          windLabel(d.WindDirDay, d.WindScaleDay),
			Humidity:      intField(d.Humidity),
			Precipitation: floatField(d.Precip),
		}},
	}, nil
}

func windLabel(dir, scale string) string {
	switch {
	case dir == "" && scale == "":
		return ""
	case scale == "":
		return dir
	case dir == "":
		return "force " + scale
	}
	return dir + " force " + scale
}

func floatField(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func intField(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return v
}
