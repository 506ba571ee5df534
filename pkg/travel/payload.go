package travel

import "time"

// Payload is the structured body of a successful ServiceResult. Each
// ServiceKind has exactly one payload type; the collector never handles raw
// transport strings.
type Payload interface {
	PayloadKind() ServiceKind
}

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DailyForecast is one day of a weather forecast.
type DailyForecast struct {
	Date          string  `json:"date"`
	Text          string  `json:"text"`
	TempNightC    float64 `json:"temp_night_c"`
	TempDayC      float64 `json:"temp_day_c"`
	Wind          string  `json:"wind"`
	Humidity      int     `json:"humidity"`
	Precipitation float64 `json:"precipitation_mm"`
}

// WeatherPayload carries the multi-day forecast for one city or district.
type WeatherPayload struct {
	City  string          `json:"city"`
	Daily []DailyForecast `json:"daily"`
}

func (WeatherPayload) PayloadKind() ServiceKind { return ServiceWeather }

// POI is one point of interest. Rating is 0 when the vendor reports none;
// Indoor is nil when unknown.
type POI struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Address  string  `json:"address,omitempty"`
	Category string  `json:"category,omitempty"`
	Rating   float64 `json:"rating,omitempty"`
	Price    float64 `json:"price,omitempty"`
	Hours    string  `json:"hours,omitempty"`
	Location *LatLng `json:"location,omitempty"`
	Indoor   *bool   `json:"indoor,omitempty"`
}

// POIPayload carries the points of interest matched by one search.
type POIPayload struct {
	Keyword string `json:"keyword"`
	Region  string `json:"region"`
	POIs    []POI  `json:"pois"`
}

func (POIPayload) PayloadKind() ServiceKind { return ServicePOI }

// RouteCandidate is one way of travelling a segment.
type RouteCandidate struct {
	DistanceMeters int           `json:"distance_m"`
	Duration       time.Duration `json:"duration"`
	Description    string        `json:"description,omitempty"`
	Congestion     string        `json:"congestion,omitempty"`
}

// NavigationPayload carries the candidate routes for one origin/destination
// pair.
type NavigationPayload struct {
	Origin      string           `json:"origin"`
	Destination string           `json:"destination"`
	Mode        string           `json:"mode"`
	Routes      []RouteCandidate `json:"routes"`
}

func (NavigationPayload) PayloadKind() ServiceKind { return ServiceNavigation }

// TrafficPayload carries the live congestion status for an area.
type TrafficPayload struct {
	Area        string    `json:"area"`
	Level       string    `json:"level"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func (TrafficPayload) PayloadKind() ServiceKind { return ServiceTraffic }

// CrowdPayload carries a crowd-level estimate for one place. No bundled
// provider produces it; the type exists so a vendor client can be plugged
// in without touching the core.
type CrowdPayload struct {
	Place       string `json:"place"`
	Level       string `json:"level"`
	Description string `json:"description,omitempty"`
}

func (CrowdPayload) PayloadKind() ServiceKind { return ServiceCrowd }

// LocationHint is one suggested resolution of an unverified location
// candidate.
type LocationHint struct {
	Name     string  `json:"name"`
	District string  `json:"district,omitempty"`
	Location *LatLng `json:"location,omitempty"`
}

// HintsPayload carries the suggestions for one unverified keyword.
type HintsPayload struct {
	Keyword string         `json:"keyword"`
	Hints   []LocationHint `json:"hints"`
}

func (HintsPayload) PayloadKind() ServiceKind { return ServiceInputHints }

var (
	_ Payload = WeatherPayload{}
	_ Payload = POIPayload{}
	_ Payload = NavigationPayload{}
	_ Payload = TrafficPayload{}
	_ Payload = CrowdPayload{}
	_ Payload = HintsPayload{}
)
