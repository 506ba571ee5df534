package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// ActivityClass is the closed set of recognisable activity intents.
type ActivityClass string

const (
	ActivityShopping      ActivityClass = "shopping"
	ActivityCuisine       ActivityClass = "cuisine"
	ActivityCulture       ActivityClass = "culture"
	ActivityEntertainment ActivityClass = "entertainment"
	ActivityNature        ActivityClass = "nature"
	ActivityBusiness      ActivityClass = "business"
	ActivityFamily        ActivityClass = "family"
	ActivityLeisure       ActivityClass = "leisure"
	ActivitySightseeing   ActivityClass = "sightseeing"
)

// TimeOfDay tags a part of the day the user called out.
type TimeOfDay string

const (
	TimeMorning TimeOfDay = "morning"
	TimeEvening TimeOfDay = "evening"
	TimeNight   TimeOfDay = "night"
)

// Location is one mined place reference. Verified locations resolved
// through the gazetteer; unverified ones only matched a location-shaped
// pattern and need input hints before use.
type Location struct {
	Name     string `json:"name"`
	Verified bool   `json:"verified"`
}

// Route is an explicit origin/destination pair mined from the utterance.
type Route struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Keywords is the full output of the keyword extractor. Weights carries a
// deterministic priority per mined term, used to budget hint lookups.
type Keywords struct {
	Locations  []Location         `json:"locations,omitempty"`
	Activities []ActivityClass    `json:"activities,omitempty"`
	Days       int                `json:"days"`
	Route      *Route             `json:"route,omitempty"`
	TimesOfDay []TimeOfDay        `json:"times_of_day,omitempty"`
	Weights    map[string]float64 `json:"weights,omitempty"`
}

// VerifiedLocations returns the names of gazetteer-verified locations in
// appearance order.
func (k Keywords) VerifiedLocations() []string {
	var out []string
	for _, loc := range k.Locations {
		if loc.Verified {
			out = append(out, loc.Name)
		}
	}
	return out
}

// UnverifiedLocations returns candidate names in appearance order.
func (k Keywords) UnverifiedLocations() []string {
	var out []string
	for _, loc := range k.Locations {
		if !loc.Verified {
			out = append(out, loc.Name)
		}
	}
	return out
}

// KeywordExtractor mines locations, activities, duration, routes and
// time-of-day tags from one utterance. Instances are immutable after
// construction and safe for concurrent use.
type KeywordExtractor struct {
	gaz *Gazetteer

	// DefaultDays is used when no duration is mentioned; MaxDays caps
	// whatever is parsed.
	DefaultDays int
	MaxDays     int
}

// NewKeywordExtractor builds an extractor over the given vocabulary.
func NewKeywordExtractor(gaz *Gazetteer) *KeywordExtractor {
	if gaz == nil {
		gaz = DefaultGazetteer()
	}
	return &KeywordExtractor{gaz: gaz, DefaultDays: 1, MaxDays: 7}
}

// Region returns the extractor's region name.
func (e *KeywordExtractor) Region() string { return e.gaz.Region }

var (
	candidateRe = regexp.MustCompile(`(?i)\b((?:[\p{L}][\p{L}'’-]*\s+){1,3}(?:district|park|garden|square|market|museum|palace|castle|tower|beach|viewpoint|monastery|cathedral|quarter|hill|centre|center))\b`)
	routeRe     = regexp.MustCompile(`(?i)\bfrom\s+([^,.;:!?\n]+?)\s+to\s+([^,.;:!?\n]+)`)
	daysRe      = regexp.MustCompile(`\b(\d+)\s+(?:day|days|night|nights)\b`)
)

// phraseStopwords delimit candidate phrases; scanning backwards from the
// suffix word stops at the first of these, so "explore the riverside
// district" yields "riverside district".
var phraseStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "this": true, "that": true,
	"some": true, "any": true, "my": true, "our": true, "your": true,
	"in": true, "at": true, "to": true, "from": true, "near": true,
	"visit": true, "see": true, "around": true, "and": true, "or": true,
	"explore": true, "find": true, "show": true, "recommend": true,
	"suggest": true, "nice": true, "good": true, "great": true,
}

var spelledDays = []struct {
	term string
	days int
}{
	{"one", 1}, {"two", 2}, {"three", 3}, {"four", 4},
	{"five", 5}, {"six", 6}, {"seven", 7},
}

var activityTable = []struct {
	class ActivityClass
	terms []string
}{
	{ActivityShopping, []string{"shopping", "shop", "shops", "mall", "boutique", "boutiques", "souvenir", "souvenirs"}},
	{ActivityCuisine, []string{"food", "restaurant", "restaurants", "eat", "eating", "dining", "cuisine", "seafood", "tapas", "wine", "culinary", "brunch", "cafe", "cafes", "pastry", "pastries"}},
	{ActivityCulture, []string{"museum", "museums", "gallery", "galleries", "history", "historical", "historic", "culture", "cultural", "heritage", "fado", "monastery", "cathedral"}},
	{ActivityEntertainment, []string{"nightlife", "bar", "bars", "club", "clubs", "concert", "concerts", "show", "shows", "entertainment", "music"}},
	{ActivityNature, []string{"nature", "park", "parks", "garden", "gardens", "hike", "hiking", "beach", "beaches", "ocean", "river", "outdoors", "trail", "trails"}},
	{ActivityBusiness, []string{"business", "conference", "meeting", "meetings", "work"}},
	{ActivityFamily, []string{"family", "kids", "children", "playground", "zoo", "aquarium"}},
	{ActivityLeisure, []string{"relax", "relaxing", "leisure", "spa", "stroll", "chill", "unwind"}},
	{ActivitySightseeing, []string{"sightseeing", "sights", "viewpoint", "viewpoints", "landmark", "landmarks", "tour", "tours", "attractions", "explore"}},
}

var timeOfDayTable = []struct {
	tag   TimeOfDay
	terms []string
}{
	{TimeMorning, []string{"morning", "mornings", "sunrise", "breakfast"}},
	{TimeEvening, []string{"evening", "evenings", "sunset", "dusk"}},
	{TimeNight, []string{"night", "nights", "nightlife", "midnight"}},
}

// Extract mines text. It never errors; an unintelligible utterance yields
// defaults (one day, no locations).
func (e *KeywordExtractor) Extract(text string) Keywords {
	normalized := normalizeText(text)
	kw := Keywords{Days: e.days(normalized)}

	kw.Locations = e.locations(text, normalized)
	kw.Activities = matchActivities(normalized)
	kw.TimesOfDay = matchTimesOfDay(normalized)

	if route, ok := e.route(text); ok {
		kw.Route = &route
		kw.Locations = mergeRouteLocations(kw.Locations, route, e.gaz)
	}

	kw.Weights = e.weights(kw)
	return kw
}

// locations resolves gazetteer mentions first, then location-shaped
// candidates that the vocabulary cannot verify, ordered by appearance.
func (e *KeywordExtractor) locations(text, normalized string) []Location {
	type hit struct {
		loc   Location
		index int
	}
	var hits []hit
	seen := map[string]bool{}

	for _, ent := range e.gaz.matchTerms() {
		idx := phraseIndex(normalized, ent.term)
		if idx < 0 || seen[ent.canonical] {
			continue
		}
		seen[ent.canonical] = true
		hits = append(hits, hit{loc: Location{Name: ent.canonical, Verified: true}, index: idx})
	}

	for _, m := range candidateRe.FindAllStringSubmatchIndex(text, -1) {
		phrase := text[m[2]:m[3]]
		if _, ok := e.gaz.ResolveIn(phrase); ok {
			continue
		}
		name := trimCandidate(phrase, 2)
		if name == "" {
			continue
		}
		key := normalizeText(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		idx := phraseIndex(normalized, key)
		if idx < 0 {
			idx = m[2]
		}
		hits = append(hits, hit{loc: Location{Name: name}, index: idx})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].index < hits[j].index })

	out := make([]Location, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.loc)
	}
	return out
}

func (e *KeywordExtractor) days(normalized string) int {
	days := 0
	if m := daysRe.FindStringSubmatch(normalized); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			days = n
		}
	}
	if days == 0 {
		for _, sd := range spelledDays {
			if containsPhrase(normalized, sd.term+" day") || containsPhrase(normalized, sd.term+" days") ||
				containsPhrase(normalized, sd.term+" night") || containsPhrase(normalized, sd.term+" nights") {
				days = sd.days
				break
			}
		}
	}
	if days == 0 {
		switch {
		case containsPhrase(normalized, "weekend"):
			days = 2
		case containsPhrase(normalized, "week"):
			days = 7
		}
	}

	maxDays := e.MaxDays
	if maxDays <= 0 {
		maxDays = 7
	}
	if days <= 0 {
		if e.DefaultDays > 0 {
			return min(e.DefaultDays, maxDays)
		}
		return 1
	}
	return min(days, maxDays)
}

func (e *KeywordExtractor) route(text string) (Route, bool) {
	m := routeRe.FindStringSubmatch(text)
	if m == nil {
		return Route{}, false
	}
	start := e.resolveEndpoint(m[1])
	end := e.resolveEndpoint(m[2])
	if start == "" || end == "" || start == end {
		return Route{}, false
	}
	return Route{Start: start, End: end}, true
}

// resolveEndpoint reduces a captured route side to a place name: known
// places resolve canonically, the rest is trimmed of trailing question
// clauses and leading stopwords.
func (e *KeywordExtractor) resolveEndpoint(phrase string) string {
	if canonical, ok := e.gaz.ResolveIn(phrase); ok {
		return canonical
	}
	lower := strings.ToLower(phrase)
	for _, cut := range []string{" how ", " what ", " where ", " can ", " should ", " please", " and "} {
		if i := strings.Index(lower, cut); i >= 0 {
			phrase = phrase[:i]
			lower = lower[:i]
		}
	}
	return trimCandidate(phrase, 1)
}

func mergeRouteLocations(locs []Location, route Route, gaz *Gazetteer) []Location {
	for _, name := range []string{route.Start, route.End} {
		found := false
		for _, loc := range locs {
			if loc.Name == name {
				found = true
				break
			}
		}
		if !found {
			locs = append(locs, Location{Name: name, Verified: gaz.Contains(name)})
		}
	}
	return locs
}

func matchActivities(normalized string) []ActivityClass {
	type hit struct {
		class ActivityClass
		index int
	}
	var hits []hit
	for _, row := range activityTable {
		best := -1
		for _, term := range row.terms {
			if idx := phraseIndex(normalized, term); idx >= 0 && (best < 0 || idx < best) {
				best = idx
			}
		}
		if best >= 0 {
			hits = append(hits, hit{class: row.class, index: best})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].index < hits[j].index })

	out := make([]ActivityClass, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.class)
	}
	return out
}

func matchTimesOfDay(normalized string) []TimeOfDay {
	var out []TimeOfDay
	for _, row := range timeOfDayTable {
		for _, term := range row.terms {
			if containsPhrase(normalized, term) {
				out = append(out, row.tag)
				break
			}
		}
	}
	return out
}

// weights assigns each mined term a deterministic priority. Verified
// locations outrank candidates, candidates outrank activities, earlier
// mentions outrank later ones, and route endpoints get a bonus.
func (e *KeywordExtractor) weights(kw Keywords) map[string]float64 {
	weights := make(map[string]float64)

	vi, ui := 0, 0
	for _, loc := range kw.Locations {
		if loc.Verified {
			weights[loc.Name] = 1.0 - 0.05*float64(vi)
			vi++
		} else {
			weights[loc.Name] = 0.7 - 0.05*float64(ui)
			ui++
		}
	}
	for i, act := range kw.Activities {
		weights[string(act)] = 0.5 - 0.05*float64(i)
	}
	if kw.Route != nil {
		weights[kw.Route.Start] += 0.2
		weights[kw.Route.End] += 0.2
	}
	for term, w := range weights {
		if w < 0.1 {
			weights[term] = 0.1
		}
	}
	return weights
}

// trimCandidate reduces a candidate phrase to the contiguous non-stopword
// run ending at its last word. A phrase reduced below minWords is noise.
func trimCandidate(phrase string, minWords int) string {
	words := strings.Fields(strings.TrimSpace(phrase))
	start := len(words) - 1
	for start > 0 && !phraseStopwords[strings.ToLower(words[start-1])] {
		start--
	}
	words = words[start:]
	if len(words) < minWords {
		return ""
	}
	return strings.Join(words, " ")
}

// normalizeText lowercases and strips punctuation so phrase matching can
// rely on single spaces as token boundaries.
func normalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// containsPhrase matches phrase on token boundaries inside normalized
// text.
func containsPhrase(normalized, phrase string) bool {
	return phraseIndex(normalized, phrase) >= 0
}

// phraseIndex returns the byte offset of phrase in normalized text, or -1.
func phraseIndex(normalized, phrase string) int {
	padded := " " + normalized + " "
	idx := strings.Index(padded, " "+phrase+" ")
	if idx < 0 {
		return -1
	}
	return idx
}

