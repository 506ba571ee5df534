package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// CompanionType classifies who the user travels with. Absence of any
// companion signal yields CompanionUnknown, never CompanionSolo.
type CompanionType string

const (
	CompanionUnknown    CompanionType = "unknown"
	CompanionSolo       CompanionType = "solo"
	CompanionRomantic   CompanionType = "romantic"
	CompanionFamily     CompanionType = "family"
	CompanionFriends    CompanionType = "friends"
	CompanionColleagues CompanionType = "colleagues"
)

// FamilyMember is one role inside a family party.
type FamilyMember string

const (
	MemberParent FamilyMember = "parent"
	MemberChild  FamilyMember = "child"
	MemberBaby   FamilyMember = "baby"
	MemberElder  FamilyMember = "elder"
)

// CompanionDetail records one matched companion term.
type CompanionDetail struct {
	Term string        `json:"term"`
	Type CompanionType `json:"type"`
}

// Companions is the accumulated companion picture for a turn. Type is the
// highest-priority matched category (family outranks romantic outranks
// friends outranks colleagues outranks solo); Details keeps every hit.
type Companions struct {
	Type         CompanionType     `json:"type"`
	PartnerLabel string            `json:"partner_label,omitempty"`
	Members      []FamilyMember    `json:"members,omitempty"`
	Size         int               `json:"size,omitempty"`
	Details      []CompanionDetail `json:"details,omitempty"`
}

// Known reports whether any companion signal was detected.
func (c Companions) Known() bool { return c.Type != CompanionUnknown }

// Mood, Avoidance and Desire are the three closed affect vocabularies.
type (
	Mood      string
	Avoidance string
	Desire    string
)

const (
	MoodRomantic  Mood = "romantic"
	MoodCozy      Mood = "cozy"
	MoodQuiet     Mood = "quiet"
	MoodLively    Mood = "lively"
	MoodArtistic  Mood = "artistic"
	MoodAuthentic Mood = "authentic"
	MoodUpscale   Mood = "upscale"
	MoodSimple    Mood = "simple"
	MoodUnique    Mood = "unique"

	AvoidCrowded    Avoidance = "crowded"
	AvoidCommercial Avoidance = "commercial"
	AvoidViral      Avoidance = "viral"

	DesireLocalCulture Desire = "local_culture"
	DesireLocalLife    Desire = "local_life"
	DesireHistory      Desire = "history"
	DesireCulture      Desire = "culture"
	DesireCuisine      Desire = "cuisine"
	DesireExperience   Desire = "experience"
)

// EmotionalContext carries the mined affect sets. Any of the three may be
// empty.
type EmotionalContext struct {
	Moods   []Mood      `json:"moods,omitempty"`
	Avoid   []Avoidance `json:"avoid,omitempty"`
	Desires []Desire    `json:"desires,omitempty"`
}

// Avoids reports whether a is in the avoid set.
func (e EmotionalContext) Avoids(a Avoidance) bool {
	for _, got := range e.Avoid {
		if got == a {
			return true
		}
	}
	return false
}

// HasMood reports whether m is in the mood set.
func (e EmotionalContext) HasMood(m Mood) bool {
	for _, got := range e.Moods {
		if got == m {
			return true
		}
	}
	return false
}

// BudgetLevel buckets spending power.
type BudgetLevel string

const (
	BudgetLow        BudgetLevel = "low"
	BudgetMedium     BudgetLevel = "medium"
	BudgetMediumHigh BudgetLevel = "medium_high"
	BudgetHigh       BudgetLevel = "high"
)

// BudgetConstraint marks whether a stated amount is a floor or a ceiling.
type BudgetConstraint string

const (
	ConstraintMin BudgetConstraint = "min"
	ConstraintMax BudgetConstraint = "max"
)

// Budget is the mined spending picture. Level is always set; Amount and
// Constraint only when the utterance stated them.
type Budget struct {
	Amount     int              `json:"amount,omitempty"`
	Level      BudgetLevel      `json:"level"`
	Constraint BudgetConstraint `json:"constraint,omitempty"`
}

// LevelForAmount buckets an amount in local currency units.
func LevelForAmount(amount int) BudgetLevel {
	switch {
	case amount < 500:
		return BudgetLow
	case amount < 2000:
		return BudgetMedium
	case amount < 10000:
		return BudgetMediumHigh
	default:
		return BudgetHigh
	}
}

// Preference is one logistical flag mined from the utterance.
type Preference string

const (
	PrefIndoor          Preference = "indoor"
	PrefOutdoor         Preference = "outdoor"
	PrefVegetarian      Preference = "vegetarian"
	PrefVegan           Preference = "vegan"
	PrefHalal           Preference = "halal"
	PrefAccessible      Preference = "accessible"
	PrefPetFriendly     Preference = "pet_friendly"
	PrefKidFriendly     Preference = "kid_friendly"
	PrefPublicTransport Preference = "public_transport"
	PrefWalking         Preference = "walking"
	PrefPhotography     Preference = "photography"
)

// TravelContext is the full output of the context extractor.
type TravelContext struct {
	Companions  Companions       `json:"companions"`
	Emotion     EmotionalContext `json:"emotion"`
	Budget      Budget           `json:"budget"`
	Preferences []Preference     `json:"preferences,omitempty"`
}

// HasPreference reports whether p was mined.
func (t TravelContext) HasPreference(p Preference) bool {
	for _, got := range t.Preferences {
		if got == p {
			return true
		}
	}
	return false
}

// companionTable maps terms to their category; family terms additionally
// carry the member role they contribute.
var companionTable = []struct {
	term   string
	ctype  CompanionType
	member FamilyMember
}{
	{"girlfriend", CompanionRomantic, ""},
	{"boyfriend", CompanionRomantic, ""},
	{"wife", CompanionRomantic, ""},
	{"husband", CompanionRomantic, ""},
	{"partner", CompanionRomantic, ""},
	{"fiancee", CompanionRomantic, ""},
	{"fiance", CompanionRomantic, ""},

	{"family", CompanionFamily, ""},
	{"kids", CompanionFamily, MemberChild},
	{"kid", CompanionFamily, MemberChild},
	{"children", CompanionFamily, MemberChild},
	{"child", CompanionFamily, MemberChild},
	{"son", CompanionFamily, MemberChild},
	{"daughter", CompanionFamily, MemberChild},
	{"baby", CompanionFamily, MemberBaby},
	{"toddler", CompanionFamily, MemberBaby},
	{"parents", CompanionFamily, MemberParent},
	{"mother", CompanionFamily, MemberParent},
	{"mom", CompanionFamily, MemberParent},
	{"father", CompanionFamily, MemberParent},
	{"dad", CompanionFamily, MemberParent},
	{"grandparents", CompanionFamily, MemberElder},
	{"grandmother", CompanionFamily, MemberElder},
	{"grandma", CompanionFamily, MemberElder},
	{"grandfather", CompanionFamily, MemberElder},
	{"grandpa", CompanionFamily, MemberElder},
	{"elderly", CompanionFamily, MemberElder},

	{"friends", CompanionFriends, ""},
	{"friend", CompanionFriends, ""},
	{"buddies", CompanionFriends, ""},
	{"buddy", CompanionFriends, ""},
	{"mates", CompanionFriends, ""},

	{"colleagues", CompanionColleagues, ""},
	{"colleague", CompanionColleagues, ""},
	{"coworkers", CompanionColleagues, ""},
	{"coworker", CompanionColleagues, ""},
	{"team", CompanionColleagues, ""},

	{"alone", CompanionSolo, ""},
	{"solo", CompanionSolo, ""},
	{"by myself", CompanionSolo, ""},
	{"on my own", CompanionSolo, ""},
}

// companionPriority ranks categories when multiple match.
var companionPriority = map[CompanionType]int{
	CompanionFamily:     5,
	CompanionRomantic:   4,
	CompanionFriends:    3,
	CompanionColleagues: 2,
	CompanionSolo:       1,
}

var moodTable = []struct {
	mood  Mood
	terms []string
}{
	{MoodRomantic, []string{"romantic", "romance", "anniversary", "honeymoon", "date night"}},
	{MoodCozy, []string{"cozy", "cosy", "intimate", "snug"}},
	{MoodQuiet, []string{"quiet", "peaceful", "calm", "tranquil", "serene"}},
	{MoodLively, []string{"lively", "vibrant", "energetic", "buzzing", "festive"}},
	{MoodArtistic, []string{"artistic", "arty", "creative", "design"}},
	{MoodAuthentic, []string{"authentic", "genuine", "traditional"}},
	{MoodUpscale, []string{"upscale", "luxury", "luxurious", "fancy", "high end", "premium", "exclusive"}},
	{MoodSimple, []string{"simple", "casual", "low key", "laid back", "modest"}},
	{MoodUnique, []string{"unique", "unusual", "offbeat", "quirky", "hidden gem", "hidden gems"}},
}

var avoidTable = []struct {
	avoid Avoidance
	terms []string
}{
	{AvoidCrowded, []string{"crowded", "crowds", "packed", "overcrowded"}},
	{AvoidCommercial, []string{"commercial", "commercialized", "touristy", "tourist trap", "tourist traps", "tacky"}},
	{AvoidViral, []string{"viral", "instagram famous", "instagrammable", "internet famous"}},
}

var desireTable = []struct {
	desire Desire
	terms  []string
}{
	{DesireLocalCulture, []string{"local culture"}},
	{DesireLocalLife, []string{"local life", "like a local", "everyday life", "locals go"}},
	{DesireHistory, []string{"history", "historical", "historic"}},
	{DesireCulture, []string{"culture", "cultural"}},
	{DesireCuisine, []string{"cuisine", "gastronomy", "food culture", "food scene"}},
	{DesireExperience, []string{"experience", "experiences", "immersive"}},
}

var preferenceTable = []struct {
	pref  Preference
	terms []string
}{
	{PrefIndoor, []string{"indoor", "indoors", "air conditioned", "rainy day"}},
	{PrefOutdoor, []string{"outdoor", "outdoors", "open air", "fresh air"}},
	{PrefVegetarian, []string{"vegetarian", "veggie"}},
	{PrefVegan, []string{"vegan"}},
	{PrefHalal, []string{"halal"}},
	{PrefAccessible, []string{"wheelchair", "accessible", "stroller"}},
	{PrefPetFriendly, []string{"pet friendly", "dog friendly", "with my dog"}},
	{PrefKidFriendly, []string{"kid friendly", "child friendly", "family friendly"}},
	{PrefPublicTransport, []string{"public transport", "metro", "tram", "by bus"}},
	{PrefWalking, []string{"walking", "on foot", "walkable", "walking distance"}},
	{PrefPhotography, []string{"photography", "photos", "photogenic", "photo spots"}},
}

var levelTable = []struct {
	level BudgetLevel
	terms []string
}{
	{BudgetHigh, []string{"luxury", "luxurious", "high end", "splurge", "no expense spared", "five star"}},
	{BudgetMediumHigh, []string{"premium", "comfortable budget", "upscale"}},
	{BudgetMedium, []string{"moderate", "mid range", "reasonable"}},
	{BudgetLow, []string{"cheap", "economy", "budget friendly", "backpacker", "frugal", "shoestring", "affordable"}},
}

var (
	currencyAmountRe = regexp.MustCompile(`(?i)[€$£]\s*(\d+(?:[.,]\d+)?)\s*(k|万)?`)
	anchoredAmountRe = regexp.MustCompile(`(?i)\b(?:budget|cost|price)\D{0,16}?(\d+(?:[.,]\d+)?)\s*(k|万)?`)
	suffixedAmountRe = regexp.MustCompile(`(?i)\b(\d+(?:[.,]\d+)?)\s*(k|万)?\s*(?:euros?|eur|dollars?|usd|bucks|yuan|rmb)\b`)

	// durationTailRe rejects captures like "budget 3 day tour" where the
	// number counts time or people, not money.
	durationTailRe = regexp.MustCompile(`(?i)^\s*(?:day|days|night|nights|week|weeks|hour|hours|people|person)\b`)
)

var maxConstraintTerms = []string{"under", "below", "at most", "no more than", "up to", "within", "max"}
var minConstraintTerms = []string{"at least", "minimum", "more than", "starting from", "or more"}

// ContextExtractor mines companions, affect, budget and preferences from
// one utterance. Pure and safe for concurrent use.
type ContextExtractor struct{}

// NewContextExtractor returns a ready extractor.
func NewContextExtractor() *ContextExtractor { return &ContextExtractor{} }

// Extract mines text. It never errors; empty structures are the floor.
func (e *ContextExtractor) Extract(text string) TravelContext {
	normalized := normalizeText(text)
	return TravelContext{
		Companions:  extractCompanions(normalized),
		Emotion:     extractEmotion(normalized),
		Budget:      extractBudget(text, normalized),
		Preferences: extractPreferences(normalized),
	}
}

func extractCompanions(normalized string) Companions {
	out := Companions{Type: CompanionUnknown}
	for _, row := range companionTable {
		if !containsPhrase(normalized, row.term) {
			continue
		}
		out.Details = append(out.Details, CompanionDetail{Term: row.term, Type: row.ctype})
		if companionPriority[row.ctype] > companionPriority[out.Type] {
			out.Type = row.ctype
		}
		if row.ctype == CompanionRomantic && out.PartnerLabel == "" {
			out.PartnerLabel = row.term
		}
		if row.member != "" {
			out.Members = append(out.Members, row.member)
		}
	}
	out.Size = companionSize(out)
	return out
}

// companionSize derives a party size including the user. Plural terms
// imply at least two companions.
func companionSize(c Companions) int {
	switch c.Type {
	case CompanionSolo:
		return 1
	case CompanionRomantic:
		return 2
	case CompanionFamily:
		if n := len(c.Members); n > 1 {
			return n + 1
		}
		return 3
	case CompanionFriends, CompanionColleagues:
		for _, d := range c.Details {
			if d.Type == c.Type && strings.HasSuffix(d.Term, "s") {
				return 3
			}
		}
		return 2
	default:
		return 0
	}
}

func extractEmotion(normalized string) EmotionalContext {
	var out EmotionalContext
	for _, row := range moodTable {
		for _, term := range row.terms {
			if containsPhrase(normalized, term) {
				out.Moods = append(out.Moods, row.mood)
				break
			}
		}
	}
	for _, row := range avoidTable {
		for _, term := range row.terms {
			if containsPhrase(normalized, term) {
				out.Avoid = append(out.Avoid, row.avoid)
				break
			}
		}
	}
	for _, row := range desireTable {
		for _, term := range row.terms {
			if containsPhrase(normalized, term) {
				out.Desires = append(out.Desires, row.desire)
				break
			}
		}
	}
	return out
}

// extractBudget captures an amount from currency-marked, keyword-anchored
// or unit-suffixed numbers, in that order, then derives the level. An
// explicit qualitative term always wins the level.
func extractBudget(text, normalized string) Budget {
	out := Budget{Level: BudgetMedium}

	for _, re := range []*regexp.Regexp{currencyAmountRe, anchoredAmountRe, suffixedAmountRe} {
		m := re.FindStringSubmatchIndex(text)
		if m == nil || durationTailRe.MatchString(text[m[1]:]) {
			continue
		}
		suffix := ""
		if m[4] >= 0 {
			suffix = text[m[4]:m[5]]
		}
		if amount, ok := parseAmount(text[m[2]:m[3]], suffix); ok {
			out.Amount = amount
			out.Level = LevelForAmount(amount)
			break
		}
	}

	if out.Amount > 0 {
		for _, term := range maxConstraintTerms {
			if containsPhrase(normalized, term) {
				out.Constraint = ConstraintMax
				break
			}
		}
		if out.Constraint == "" {
			for _, term := range minConstraintTerms {
				if containsPhrase(normalized, term) {
					out.Constraint = ConstraintMin
					break
				}
			}
		}
	}

	for _, row := range levelTable {
		for _, term := range row.terms {
			if containsPhrase(normalized, term) {
				out.Level = row.level
				return out
			}
		}
	}
	return out
}

func parseAmount(num, suffix string) (int, bool) {
	num = strings.ReplaceAll(num, ",", ".")
	f, err := strconv.ParseFloat(num, 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	switch strings.ToLower(suffix) {
	case "k":
		f *= 1000
	case "万":
		f *= 10000
	}
	return int(math.Round(f)), true
}

func extractPreferences(normalized string) []Preference {
	var out []Preference
	for _, row := range preferenceTable {
		for _, term := range row.terms {
			if containsPhrase(normalized, term) {
				out = append(out, row.pref)
				break
			}
		}
	}
	return out
}
