package amap

import (
	"context"
	"encoding/json"
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

func newCountingAcquirer() *countingAcquirer {
	return &countingAcquirer{counts: make(map[travel.Provider]int)}
}

func (a *countingAcquirer) Acquire(_ context.Context, p travel.Provider) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counts[p]++
	return nil
}

func (a *countingAcquirer) count(p travel.Provider) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts[p]
}

func newTestClient(t *testing.T, handler http.Handler, limit upstream.Acquirer) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{Key: "test-key", Host: server.URL, City: "Lisbon"}, limit)
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key is required")
}

func TestSearchWire(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/place/text", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "romantic viewpoint", r.URL.Query().Get("keywords"))
		assert.Equal(t, "Alfama", r.URL.Query().Get("city"))
		assert.Equal(t, "true", r.URL.Query().Get("citylimit"))

		w.Write([]byte(`{
			"status": "1", "info": "OK", "infocode": "10000",
			"pois": [
				{
					"id": "B001", "name": "Miradouro de Santa Luzia",
					"type": "Scenic Spot", "address": "Largo Santa Luzia",
					"location": "-9.130000,38.712000",
					"biz_ext": {"rating": "4.7", "cost": "[]", "opentime2": "08:00-22:00"},
					"indoor_map": "0"
				},
				{
					"id": "B002", "name": "Crowded Plaza Bar",
					"type": "Bar", "address": "[]",
					"location": "[]",
					"biz_ext": {"rating": [], "cost": []},
					"indoor_map": "1"
				}
			]
		}`))
	})

	client := newTestClient(t, handler, nil)
	payload, err := client.Search(context.Background(), upstream.POIQuery{
		Keyword: "viewpoint",
		Area:    "Alfama",
		Region:  "Lisbon",
		Mood:    "romantic",
		Avoid:   []string{"crowded"},
	})
	require.NoError(t, err)

	assert.Equal(t, "viewpoint", payload.Keyword)
	assert.Equal(t, "Lisbon", payload.Region)
	require.Len(t, payload.POIs, 1, "avoided names must be filtered out")

	poi := payload.POIs[0]
	assert.Equal(t, "Miradouro de Santa Luzia", poi.Name)
	assert.Equal(t, "Scenic Spot", poi.Category)
	assert.InDelta(t, 4.7, poi.Rating, 0.001)
	assert.Zero(t, poi.Price, "array-valued cost decodes as absent")
	assert.Equal(t, "08:00-22:00", poi.Hours)
	require.NotNil(t, poi.Location)
	assert.InDelta(t, 38.712, poi.Location.Lat, 0.0001)
	assert.InDelta(t, -9.13, poi.Location.Lng, 0.0001)
	require.NotNil(t, poi.Indoor)
	assert.False(t, *poi.Indoor)
}

func TestSearchSurfacesAPIRefusal(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "0", "info": "INVALID_USER_KEY", "infocode": "10001"}`))
	})

	client := newTestClient(t, handler, nil)
	_, err := client.Search(context.Background(), upstream.POIQuery{Keyword: "museum"})
	require.Error(t, err)
	assert.Equal(t, travel.ErrUpstream, travel.KindOf(err))
	assert.Contains(t, err.Error(), "INVALID_USER_KEY")
	assert.Contains(t, err.Error(), "10001")
}

func geocodeAndDirectionsHandler(t *testing.T, directionPath string, directionBody string) (http.Handler, map[string]int) {
	t.Helper()
	hits := map[string]int{}
	var mu sync.Mutex
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()

		switch r.URL.Path {
		case "/v3/geocode/geo":
			switch r.URL.Query().Get("address") {
			case "Alfama":
				w.Write([]byte(`{"status":"1","info":"OK","infocode":"10000","geocodes":[{"location":"-9.1300,38.7120"}]}`))
			case "Belém":
				w.Write([]byte(`{"status":"1","info":"OK","infocode":"10000","geocodes":[{"location":"-9.2060,38.6970"}]}`))
			default:
				w.Write([]byte(`{"status":"1","info":"OK","infocode":"10000","geocodes":[]}`))
			}
		case directionPath:
			w.Write([]byte(directionBody))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	return handler, hits
}

func TestRouteDriving(t *testing.T) {
	body := `{
		"status":"1","info":"OK","infocode":"10000",
		"route":{"paths":[
			{"distance":"6200","duration":"1080","strategy":"fastest",
			 "steps":[{"instruction":"head west","traffic_status":"畅通"},
			          {"instruction":"riverfront","traffic_status":"缓行"}]},
			{"distance":"7100","duration":"1260","strategy":"avoid tolls","steps":[]}
		]}
	}`
	handler, hits := geocodeAndDirectionsHandler(t, "/v3/direction/driving", body)

	limit := newCountingAcquirer()
	client := newTestClient(t, handler, limit)

	payload, err := client.Route(context.Background(), "Alfama", "Belém", "driving")
	require.NoError(t, err)

	assert.Equal(t, "Alfama", payload.Origin)
	assert.Equal(t, "Belém", payload.Destination)
	assert.Equal(t, "driving", payload.Mode)
	require.Len(t, payload.Routes, 2)
	assert.Equal(t, 6200, payload.Routes[0].DistanceMeters)
	assert.Equal(t, 18*60.0, payload.Routes[0].Duration.Seconds())
	assert.Equal(t, "fastest", payload.Routes[0].Description)
	assert.Equal(t, "slow", payload.Routes[0].Congestion, "worst step wins")
	assert.Empty(t, payload.Routes[1].Congestion)

	assert.Equal(t, 2, hits["/v3/geocode/geo"])
	assert.Equal(t, 1, hits["/v3/direction/driving"])
	assert.Equal(t, 2, limit.count(travel.ProviderGeocode))
	assert.Equal(t, 1, limit.count(travel.ProviderNavigation))
}

func TestRouteTransit(t *testing.T) {
	body := `{
		"status":"1","info":"OK","infocode":"10000",
		"route":{"transits":[{"distance":"8000","duration":"1500","cost":"1.65"}]}
	}`
	handler, _ := geocodeAndDirectionsHandler(t, "/v3/direction/transit/integrated", body)

	client := newTestClient(t, handler, nil)
	payload, err := client.Route(context.Background(), "Alfama", "Belém", "transit")
	require.NoError(t, err)

	require.Len(t, payload.Routes, 1)
	assert.Equal(t, 8000, payload.Routes[0].DistanceMeters)
	assert.Contains(t, payload.Routes[0].Description, "1.65")
}

func TestRouteCachesGeocodes(t *testing.T) {
	body := `{
		"status":"1","info":"OK","infocode":"10000",
		"route":{"paths":[{"distance":"100","duration":"60","strategy":"","steps":[]}]}
	}`
	handler, hits := geocodeAndDirectionsHandler(t, "/v3/direction/driving", body)

	client := newTestClient(t, handler, nil)
	_, err := client.Route(context.Background(), "Alfama", "Belém", "driving")
	require.NoError(t, err)
	_, err = client.Route(context.Background(), "Alfama", "Belém", "driving")
	require.NoError(t, err)

	assert.Equal(t, 2, hits["/v3/geocode/geo"], "repeat lookups must hit the cache")
	assert.Equal(t, 2, hits["/v3/direction/driving"])
}

func TestRouteUnknownOrigin(t *testing.T) {
	handler, _ := geocodeAndDirectionsHandler(t, "/v3/direction/driving", `{}`)
	client := newTestClient(t, handler, nil)

	_, err := client.Route(context.Background(), "Atlantis", "Belém", "driving")
	require.Error(t, err)
	assert.Equal(t, travel.ErrUpstream, travel.KindOf(err))
	assert.Contains(t, err.Error(), "Atlantis")
}

func TestStatusRectangle(t *testing.T) {
	var rect string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v3/geocode/geo":
			w.Write([]byte(`{"status":"1","info":"OK","infocode":"10000","geocodes":[{"location":"-9.1300,38.7120"}]}`))
		case "/v3/traffic/status/rectangle":
			rect = r.URL.Query().Get("rectangle")
			w.Write([]byte(`{
				"status":"1","info":"OK","infocode":"10000",
				"trafficinfo":{"description":"evening slowdown near the tram line",
				               "evaluation":{"status":"2","expedite":"61%"}}
			}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	client := newTestClient(t, handler, nil)
	payload, err := client.Status(context.Background(), "Alfama")
	require.NoError(t, err)

	assert.Equal(t, "Alfama", payload.Area)
	assert.Equal(t, "slow", payload.Level)
	assert.Contains(t, payload.Description, "tram line")
	assert.False(t, payload.Timestamp.IsZero())
	assert.Equal(t, "-9.140000,38.702000;-9.120000,38.722000", rect)
}

func TestTrafficLevelMapping(t *testing.T) {
	cases := map[string]string{
		"1": "clear", "2": "slow", "3": "congested", "4": "blocked",
		"0": "unknown", "": "unknown",
	}
	for status, want := range cases {
		assert.Equal(t, want, trafficLevel(status), "status %q", status)
	}
}

func TestSuggestWire(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/assistant/inputtips", r.URL.Path)
		assert.Equal(t, "spice market", r.URL.Query().Get("keywords"))
		assert.Equal(t, "Lisbon", r.URL.Query().Get("city"))

		w.Write([]byte(`{
			"status":"1","info":"OK","infocode":"10000",
			"tips":[
				{"name":"Mercado de Especiarias","district":"Mouraria","location":"-9.1360,38.7180"},
				{"name":[],"district":"","location":""},
				{"name":"Spice Lane Deli","district":"Baixa","location":"[]"}
			]
		}`))
	})

	client := newTestClient(t, handler, nil)
	payload, err := client.Suggest(context.Background(), "spice market")
	require.NoError(t, err)

	assert.Equal(t, "spice market", payload.Keyword)
	require.Len(t, payload.Hints, 2, "nameless tips are dropped")
	assert.Equal(t, "Mercado de Especiarias", payload.Hints[0].Name)
	assert.Equal(t, "Mouraria", payload.Hints[0].District)
	require.NotNil(t, payload.Hints[0].Location)
	assert.Nil(t, payload.Hints[1].Location, "array-valued location decodes as absent")
}

func TestFlexString(t *testing.T) {
	var s struct {
		A flexString `json:"a"`
		B flexString `json:"b"`
		C flexString `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"4.5","b":[],"c":null}`), &s))
	assert.Equal(t, flexString("4.5"), s.A)
	assert.Empty(t, s.B)
	assert.Empty(t, s.C)
	assert.InDelta(t, 4.5, s.A.float(), 0.001)
	assert.Zero(t, s.B.float())
}

func TestParseLatLng(t *testing.T) {
	point, ok := parseLatLng("-9.1300,38.7120")
	require.True(t, ok)
	assert.InDelta(t, 38.712, point.Lat, 0.0001)
	assert.InDelta(t, -9.13, point.Lng, 0.0001)

	_, ok = parseLatLng("")
	assert.False(t, ok)
	_, ok = parseLatLng("not,numbers")
	assert.False(t, ok)
	_, ok = parseLatLng("1,2,3")
	assert.False(t, ok)
}
