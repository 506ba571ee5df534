// Package compose fuses the collected upstream data with the mined
// context and turns it into the user-visible answer. Analysis is pure
// rules; only the final prose generation touches the model, and a
// deterministic fallback stands in when the model is absent or fails.
package compose

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/periplo-ai/periplo/pkg/extract"
	"github.com/periplo-ai/periplo/pkg/travel"
)

// DefaultTopPOIs is how many ranked places one location analysis keeps.
const DefaultTopPOIs = 5

// WeatherAssessment is the rule-scored weather picture for one location.
type WeatherAssessment struct {
	Score   int    `json:"score"`
	Outdoor bool   `json:"outdoor_suitable"`
	Summary string `json:"summary"`

	Daily []travel.DailyForecast `json:"daily,omitempty"`
}

// ScoredPOI is one place with its composite suitability score.
type ScoredPOI struct {
	travel.POI
	Score int `json:"score"`
}

// LocationAnalysis fuses weather, places, and crowd data for one target.
type LocationAnalysis struct {
	Location string             `json:"location"`
	Weather  *WeatherAssessment `json:"weather,omitempty"`
	TopPOIs  []ScoredPOI        `json:"top_pois,omitempty"`
	Tips     []string           `json:"overall_tips,omitempty"`
}

// Analyzer scores locations from a result bundle. Stateless and
// deterministic: equal inputs give equal analyses.
type Analyzer struct {
	region string
	topK   int
}

// NewAnalyzer builds an analyzer for the region. topK caps the ranked
// POI list, zero meaning DefaultTopPOIs.
func NewAnalyzer(region string, topK int) *Analyzer {
	if region == "" {
		region = "Lisbon"
	}
	if topK <= 0 {
		topK = DefaultTopPOIs
	}
	return &Analyzer{region: region, topK: topK}
}

// Analyze produces one LocationAnalysis per target location. Targets come
// from the verified locations of the utterance, or the region when none
// were named.
func (a *Analyzer) Analyze(ex extract.Extracted, bundle travel.ResultBundle) []LocationAnalysis {
	targets := ex.Keywords.VerifiedLocations()
	if len(targets) == 0 {
		targets = []string{a.region}
	}

	analyses := make([]LocationAnalysis, 0, len(targets))
	for _, target := range targets {
		analyses = append(analyses, a.analyzeLocation(target, ex.Context, bundle))
	}
	return analyses
}

func (a *Analyzer) analyzeLocation(target string, tc extract.TravelContext, bundle travel.ResultBundle) LocationAnalysis {
	analysis := LocationAnalysis{Location: target}

	daily := weatherDaysFor(bundle, target)
	if len(daily) > 0 {
		assessment := assessWeather(daily)
		analysis.Weather = &assessment
	}

	outdoorOK := analysis.Weather == nil || analysis.Weather.Outdoor
	pois := poisFor(bundle, target)
	analysis.TopPOIs = rankPOIs(pois, tc, outdoorOK, a.topK)

	analysis.Tips = a.tips(analysis, crowdFor(bundle, target))
	return analysis
}

func (a *Analyzer) tips(analysis LocationAnalysis, crowd *travel.CrowdPayload) []string {
	var tips []string

	switch {
	case analysis.Weather == nil:
		tips = append(tips, fmt.Sprintf("No forecast available for %s.", analysis.Location))
	case analysis.Weather.Outdoor:
		tips = append(tips, fmt.Sprintf("%s. Good conditions for being outside.", analysis.Weather.Summary))
	default:
		tips = append(tips, fmt.Sprintf("%s. Favour indoor plans.", analysis.Weather.Summary))
	}

	if len(analysis.TopPOIs) == 0 {
		tips = append(tips, fmt.Sprintf("No place data for %s.", analysis.Location))
	}
	if crowd != nil && crowd.Level != "" {
		tips = append(tips, fmt.Sprintf("Crowd level at %s: %s.", analysis.Location, crowd.Level))
	}
	return tips
}

// conditionClass buckets forecast text for scoring. Order reflects
// severity; the worst day of a trip drives the class.
type conditionClass int

const (
	condUnknown conditionClass = iota
	condSunny
	condCloudy
	condRain
	condSnow
	condExtreme
)

var conditionMarkers = []struct {
	class conditionClass
	terms []string
}{
	{condExtreme, []string{"storm", "thunder", "typhoon", "hurricane", "hail", "tornado", "blizzard"}},
	{condSnow, []string{"snow", "sleet", "flurr"}},
	{condRain, []string{"rain", "shower", "drizzle"}},
	{condCloudy, []string{"cloud", "overcast", "fog", "mist"}},
	{condSunny, []string{"sun", "clear", "fair", "bright"}},
}

func classifyCondition(text string) conditionClass {
	lower := strings.ToLower(text)
	for _, marker := range conditionMarkers {
		for _, term := range marker.terms {
			if strings.Contains(lower, term) {
				return marker.class
			}
		}
	}
	return condUnknown
}

func (c conditionClass) label() string {
	switch c {
	case condSunny:
		return "sunny"
	case condCloudy:
		return "cloudy"
	case condRain:
		return "rainy"
	case condSnow:
		return "snowy"
	case condExtreme:
		return "severe weather"
	default:
		return "mixed conditions"
	}
}

func (c conditionClass) baseScore() int {
	switch c {
	case condSunny:
		return 90
	case condCloudy:
		return 75
	case condRain:
		return 40
	case condSnow:
		return 30
	case condExtreme:
		return 10
	default:
		return 60
	}
}

// assessWeather scores a forecast on [0, 100]. The worst condition class
// across the days sets the base; the average temperature shifts it for
// the cold (≤5°C) and scorching (≥33°C) brackets and rewards the
// temperate band.
func assessWeather(daily []travel.DailyForecast) WeatherAssessment {
	worst := condUnknown
	var tempSum float64
	minTemp, maxTemp := math.Inf(1), math.Inf(-1)

	for _, d := range daily {
		if class := classifyCondition(d.Text); class > worst {
			worst = class
		}
		avg := (d.TempDayC + d.TempNightC) / 2
		tempSum += avg
		minTemp = math.Min(minTemp, d.TempNightC)
		maxTemp = math.Max(maxTemp, d.TempDayC)
	}
	avgTemp := tempSum / float64(len(daily))

	score := worst.baseScore()
	switch {
	case avgTemp <= 5 || avgTemp >= 33:
		score -= 25
	case avgTemp >= 18 && avgTemp <= 28:
		score += 10
	}
	score = clampScore(score)

	outdoor := score >= 60 && worst <= condCloudy

	return WeatherAssessment{
		Score:   score,
		Outdoor: outdoor,
		Summary: fmt.Sprintf("%s, %.0f to %.0f°C", titleFirst(worst.label()), minTemp, maxTemp),
		Daily:   daily,
	}
}

// rankPOIs scores every place and keeps the top k. Components: rating at
// weight 0.6, indoor/outdoor fit with the forecast, preference match, and
// budget fit. Ties break by rating, then name.
func rankPOIs(pois []travel.POI, tc extract.TravelContext, outdoorOK bool, k int) []ScoredPOI {
	scored := make([]ScoredPOI, 0, len(pois))
	for _, poi := range pois {
		scored = append(scored, ScoredPOI{POI: poi, Score: scorePOI(poi, tc, outdoorOK)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Rating != scored[j].Rating {
			return scored[i].Rating > scored[j].Rating
		}
		return scored[i].Name < scored[j].Name
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

func scorePOI(poi travel.POI, tc extract.TravelContext, outdoorOK bool) int {
	rating := poi.Rating
	if rating < 0 {
		rating = 0
	}
	if rating > 5 {
		rating = 5
	}

	score := rating / 5 * 60
	score += float64(fitComponent(poi.Indoor, outdoorOK))
	score += float64(preferenceComponent(poi, tc))
	score += float64(budgetComponent(poi.Price, tc.Budget.Level))
	return clampScore(int(math.Round(score)))
}

// fitComponent rewards places matching the forecast: outdoor places in
// outdoor weather, indoor places otherwise. Unknown placement earns half
// credit rather than a penalty.
func fitComponent(indoor *bool, outdoorOK bool) int {
	if indoor == nil {
		return 8
	}
	if *indoor != outdoorOK {
		return 15
	}
	return 0
}

var desireTerms = map[extract.Desire][]string{
	extract.DesireHistory:      {"museum", "castle", "monument", "palace", "historic", "church", "tower", "ruin"},
	extract.DesireCulture:      {"museum", "gallery", "theatre", "theater", "cultural"},
	extract.DesireLocalCulture: {"museum", "gallery", "heritage", "historic"},
	extract.DesireLocalLife:    {"market", "street", "quarter", "neighbourhood", "neighborhood"},
	extract.DesireCuisine:      {"restaurant", "food", "cafe", "café", "tavern", "market"},
	extract.DesireExperience:   {"tour", "cruise", "workshop", "experience"},
}

var moodTerms = map[extract.Mood][]string{
	extract.MoodRomantic: {"viewpoint", "miradouro", "garden", "river", "sunset"},
	extract.MoodArtistic: {"gallery", "art", "studio"},
	extract.MoodQuiet:    {"garden", "park", "chapel", "library"},
	extract.MoodLively:   {"bar", "club", "square", "plaza"},
}

// preferenceComponent rewards a place whose name or category matches the
// traveller's desires, moods, or indoor/outdoor flags.
func preferenceComponent(poi travel.POI, tc extract.TravelContext) int {
	haystack := strings.ToLower(poi.Name + " " + poi.Category)

	for _, desire := range tc.Emotion.Desires {
		for _, term := range desireTerms[desire] {
			if strings.Contains(haystack, term) {
				return 15
			}
		}
	}
	for _, mood := range tc.Emotion.Moods {
		for _, term := range moodTerms[mood] {
			if strings.Contains(haystack, term) {
				return 15
			}
		}
	}
	if poi.Indoor != nil {
		if tc.HasPreference(extract.PrefIndoor) && *poi.Indoor {
			return 15
		}
		if tc.HasPreference(extract.PrefOutdoor) && !*poi.Indoor {
			return 15
		}
	}
	return 0
}

// budgetComponent checks the place's typical cost against the traveller's
// bracket. Unknown cost is neutral.
func budgetComponent(price float64, level extract.BudgetLevel) int {
	if price <= 0 {
		return 5
	}
	ceiling := map[extract.BudgetLevel]float64{
		extract.BudgetLow:        30,
		extract.BudgetMedium:     80,
		extract.BudgetMediumHigh: 200,
	}[level]
	if ceiling == 0 || price <= ceiling {
		return 10
	}
	return 0
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func titleFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func normKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// weatherDaysFor gathers the per-day forecasts collected for one target,
// in key order, which is day order for trips inside the forecast horizon.
func weatherDaysFor(bundle travel.ResultBundle, target string) []travel.DailyForecast {
	var daily []travel.DailyForecast
	for _, r := range bundle.OKResults(travel.ServiceWeather) {
		payload, ok := r.Payload.(travel.WeatherPayload)
		if !ok || normKey(payload.City) != normKey(target) {
			continue
		}
		daily = append(daily, payload.Daily...)
	}
	return daily
}

func poisFor(bundle travel.ResultBundle, target string) []travel.POI {
	var pois []travel.POI
	for _, r := range bundle.OKResults(travel.ServicePOI) {
		if r.Key != normKey(target) {
			continue
		}
		if payload, ok := r.Payload.(travel.POIPayload); ok {
			pois = append(pois, payload.POIs...)
		}
	}
	return pois
}

func crowdFor(bundle travel.ResultBundle, target string) *travel.CrowdPayload {
	for _, r := range bundle.OKResults(travel.ServiceCrowd) {
		if r.Key != normKey(target) {
			continue
		}
		if payload, ok := r.Payload.(travel.CrowdPayload); ok {
			return &payload
		}
	}
	return nil
}
