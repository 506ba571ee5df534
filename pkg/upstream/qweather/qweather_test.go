package qweather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/periplo-ai/periplo/pkg/travel"
	"github.com/periplo-ai/periplo/pkg/upstream"
)

type countingAcquirer struct {
	mu     sync.Mutex
	counts map[travel.Provider]int
}

func (a *countingAcquirer) Acquire(_ context.Context, p travel.Provider) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.counts == nil {
		a.counts = make(map[travel.Provider]int)
	}
	a.counts[p]++
	return nil
}

func (a *countingAcquirer) count(p travel.Provider) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts[p]
}

const lisbonLookup = `{"code":"200","location":[{"name":"Lisbon","id":"PT1010100"}]}`

const threeDayBody = `{
	"code": "200",
	"daily": [
		{"fxDate":"2026-08-24","tempMax":"31","tempMin":"19","textDay":"Sunny",
		 "windDirDay":"NW","windScaleDay":"3-4","humidity":"62","precip":"0.0"},
		{"fxDate":"2026-08-25","tempMax":"29","tempMin":"18","textDay":"Cloudy",
		 "windDirDay":"N","windScaleDay":"2-3","humidity":"70","precip":"1.2"},
		{"fxDate":"2026-08-26","tempMax":"27","tempMin":"17","textDay":"Showers",
		 "windDirDay":"","windScaleDay":"","humidity":"81","precip":"6.5"}
	]
}`

func newTestClient(t *testing.T, handler http.Handler, limit upstream.Acquirer) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{Key: "test-key", Host: server.URL, GeoHost: server.URL}, limit)
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key is required")
}

func TestForecastWire(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		switch r.URL.Path {
		case "/geo/v2/city/lookup":
			assert.Equal(t, "Lisbon", r.URL.Query().Get("location"))
			w.Write([]byte(lisbonLookup))
		case "/v7/weather/3d":
			assert.Equal(t, "PT1010100", r.URL.Query().Get("location"))
			w.Write([]byte(threeDayBody))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	client := newTestClient(t, handler, nil)
	payload, err := client.Forecast(context.Background(), "Lisbon", 2)
	require.NoError(t, err)

	assert.Equal(t, "Lisbon", payload.City)
	require.Len(t, payload.Daily, 1, "one spec covers one day")

	d := payload.Daily[0]
	assert.Equal(t, "2026-08-25", d.Date)
	assert.Equal(t, "Cloudy", d.Text)
	assert.InDelta(t, 29, d.TempDayC, 0.001)
	assert.InDelta(t, 18, d.TempNightC, 0.001)
	assert.Equal(t, "N force 2-3", d.Wind)
	assert.Equal(t, 70, d.Humidity)
	assert.InDelta(t, 1.2, d.Precipitation, 0.001)
}

func TestForecastSwitchesToSevenDayHorizon(t *testing.T) {
	var weatherPath string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/geo/v2/city/lookup":
			w.Write([]byte(lisbonLookup))
		default:
			weatherPath = r.URL.Path
			w.Write([]byte(`{
				"code": "200",
				"daily": [
					{"fxDate":"d1"},{"fxDate":"d2"},{"fxDate":"d3"},
					{"fxDate":"d4"},{"fxDate":"d5","textDay":"Windy"},
					{"fxDate":"d6"},{"fxDate":"d7"}
				]
			}`))
		}
	})

	client := newTestClient(t, handler, nil)
	payload, err := client.Forecast(context.Background(), "Lisbon", 5)
	require.NoError(t, err)

	assert.Equal(t, "/v7/weather/7d", weatherPath)
	require.Len(t, payload.Daily, 1)
	assert.Equal(t, "d5", payload.Daily[0].Date)
	assert.Equal(t, "Windy", payload.Daily[0].Text)
}

func TestForecastBeyondHorizon(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/geo/v2/city/lookup":
			w.Write([]byte(lisbonLookup))
		default:
			w.Write([]byte(`{"code":"200","daily":[{"fxDate":"d1"}]}`))
		}
	})

	client := newTestClient(t, handler, nil)
	_, err := client.Forecast(context.Background(), "Lisbon", 9)
	require.Error(t, err)
	assert.Equal(t, travel.ErrUpstream, travel.KindOf(err))
	assert.Contains(t, err.Error(), "horizon")
}

func TestForecastCachesCityLookups(t *testing.T) {
	hits := map[string]int{}
	var mu sync.Mutex
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()
		switch r.URL.Path {
		case "/geo/v2/city/lookup":
			w.Write([]byte(lisbonLookup))
		default:
			w.Write([]byte(threeDayBody))
		}
	})

	limit := &countingAcquirer{}
	client := newTestClient(t, handler, limit)

	_, err := client.Forecast(context.Background(), "Lisbon", 1)
	require.NoError(t, err)
	_, err = client.Forecast(context.Background(), "lisbon", 2)
	require.NoError(t, err)

	assert.Equal(t, 1, hits["/geo/v2/city/lookup"], "repeat lookups must hit the cache")
	assert.Equal(t, 2, hits["/v7/weather/3d"])
	assert.Equal(t, 1, limit.count(travel.ProviderGeocode))
	assert.Equal(t, 2, limit.count(travel.ProviderWeather))
}

func TestForecastUnknownCity(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"200","location":[]}`))
	})

	client := newTestClient(t, handler, nil)
	_, err := client.Forecast(context.Background(), "Atlantis", 1)
	require.Error(t, err)
	assert.Equal(t, travel.ErrUpstream, travel.KindOf(err))
	assert.Contains(t, err.Error(), "Atlantis")
}

func TestForecastSurfacesAPIRefusal(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"402"}`))
	})

	client := newTestClient(t, handler, nil)
	_, err := client.Forecast(context.Background(), "Lisbon", 1)
	require.Error(t, err)
	assert.Equal(t, travel.ErrUpstream, travel.KindOf(err))
	assert.Contains(t, err.Error(), "402")
}

func TestWindLabel(t *testing.T) {
	assert.Equal(t, "NW force 3-4", windLabel("NW", "3-4"))
	assert.Equal(t, "NW", windLabel("NW", ""))
	assert.Equal(t, "force 3-4", windLabel("", "3-4"))
	assert.Empty(t, windLabel("", ""))
}
