package compose

import (
	"fmt"
	"strings"
	"time"

	"github.com/periplo-ai/periplo/pkg/travel"
)

// BuildDigest renders the bundle and analyses as compact prompt text. The
// layout is deterministic: analyses in given order, kinds in fixed order,
// results in the bundle's canonical order. The composer truncates the
// digest to its token budget before prompting.
func BuildDigest(bundle travel.ResultBundle, analyses []LocationAnalysis) string {
	var b strings.Builder

	writeAnalyses(&b, analyses)
	writeRoutes(&b, bundle)
	writeTraffic(&b, bundle)
	writeCrowds(&b, bundle)
	writeHints(&b, bundle)
	writeGaps(&b, bundle)

	return strings.TrimRight(b.String(), "\n")
}

func writeAnalyses(b *strings.Builder, analyses []LocationAnalysis) {
	for _, a := range analyses {
		fmt.Fprintf(b, "## %s\n", a.Location)

		if w := a.Weather; w != nil {
			outdoor := "favour indoor"
			if w.Outdoor {
				outdoor = "outdoor friendly"
			}
			fmt.Fprintf(b, "weather: %s, score %d/100, %s\n", w.Summary, w.Score, outdoor)
			for _, d := range w.Daily {
				fmt.Fprintf(b, "  %s: %s, %.0f to %.0f°C", d.Date, d.Text, d.TempNightC, d.TempDayC)
				if d.Wind != "" {
					fmt.Fprintf(b, ", wind %s", d.Wind)
				}
				if d.Humidity > 0 {
					fmt.Fprintf(b, ", humidity %d%%", d.Humidity)
				}
				if d.Precipitation > 0 {
					fmt.Fprintf(b, ", precip %.1fmm", d.Precipitation)
				}
				b.WriteString("\n")
			}
		}

		for i, poi := range a.TopPOIs {
			fmt.Fprintf(b, "place %d: %s", i+1, poi.Name)
			if poi.Category != "" {
				fmt.Fprintf(b, " [%s]", poi.Category)
			}
			if poi.Rating > 0 {
				fmt.Fprintf(b, ", rating %.1f", poi.Rating)
			}
			if poi.Price > 0 {
				fmt.Fprintf(b, ", ~%.0f", poi.Price)
			}
			fmt.Fprintf(b, ", score %d", poi.Score)
			if poi.Hours != "" {
				fmt.Fprintf(b, ", open %s", poi.Hours)
			}
			b.WriteString("\n")
		}

		for _, tip := range a.Tips {
			fmt.Fprintf(b, "tip: %s\n", tip)
		}
	}
}

func writeRoutes(b *strings.Builder, bundle travel.ResultBundle) {
	results := bundle.OKResults(travel.ServiceNavigation)
	if len(results) == 0 {
		return
	}
	b.WriteString("## routes\n")
	for _, r := range results {
		payload, ok := r.Payload.(travel.NavigationPayload)
		if !ok {
			continue
		}
		for _, route := range payload.Routes {
			fmt.Fprintf(b, "%s to %s (%s): %.1f km, %d min",
				payload.Origin, payload.Destination, payload.Mode,
				float64(route.DistanceMeters)/1000, int(route.Duration.Round(time.Minute).Minutes()))
			if route.Description != "" {
				fmt.Fprintf(b, ", %s", route.Description)
			}
			if route.Congestion != "" {
				fmt.Fprintf(b, ", traffic %s", route.Congestion)
			}
			b.WriteString("\n")
		}
	}
}

func writeTraffic(b *strings.Builder, bundle travel.ResultBundle) {
	results := bundle.OKResults(travel.ServiceTraffic)
	if len(results) == 0 {
		return
	}
	b.WriteString("## traffic\n")
	for _, r := range results {
		payload, ok := r.Payload.(travel.TrafficPayload)
		if !ok {
			continue
		}
		fmt.Fprintf(b, "%s: %s", payload.Area, payload.Level)
		if payload.Description != "" {
			fmt.Fprintf(b, ", %s", payload.Description)
		}
		b.WriteString("\n")
	}
}

func writeCrowds(b *strings.Builder, bundle travel.ResultBundle) {
	results := bundle.OKResults(travel.ServiceCrowd)
	if len(results) == 0 {
		return
	}
	b.WriteString("## crowds\n")
	for _, r := range results {
		payload, ok := r.Payload.(travel.CrowdPayload)
		if !ok {
			continue
		}
		fmt.Fprintf(b, "%s: %s", payload.Place, payload.Level)
		if payload.Description != "" {
			fmt.Fprintf(b, ", %s", payload.Description)
		}
		b.WriteString("\n")
	}
}

func writeHints(b *strings.Builder, bundle travel.ResultBundle) {
	results := bundle.OKResults(travel.ServiceInputHints)
	if len(results) == 0 {
		return
	}
	b.WriteString("## place suggestions\n")
	for _, r := range results {
		payload, ok := r.Payload.(travel.HintsPayload)
		if !ok || len(payload.Hints) == 0 {
			continue
		}
		names := make([]string, 0, len(payload.Hints))
		for _, hint := range payload.Hints {
			name := hint.Name
			if hint.District != "" {
				name += " (" + hint.District + ")"
			}
			names = append(names, name)
		}
		fmt.Fprintf(b, "%q may mean: %s\n", payload.Keyword, strings.Join(names, "; "))
	}
}

func writeGaps(b *strings.Builder, bundle travel.ResultBundle) {
	gaps := Gaps(bundle)
	if len(gaps) == 0 {
		return
	}
	b.WriteString("## unavailable\n")
	for _, gap := range gaps {
		fmt.Fprintf(b, "%s\n", gap)
	}
}

var kindLabels = map[travel.ServiceKind]string{
	travel.ServiceWeather:    "weather forecasts",
	travel.ServicePOI:        "place data",
	travel.ServiceNavigation: "route data",
	travel.ServiceTraffic:    "live traffic",
	travel.ServiceCrowd:      "crowd levels",
	travel.ServiceInputHints: "place suggestions",
}

// Gaps lists the requested kinds that produced no usable result, with the
// dominant failure reason. The composer repeats these verbatim so the
// answer admits what it could not check.
func Gaps(bundle travel.ResultBundle) []string {
	var gaps []string
	for _, kind := range travel.ServiceKinds() {
		if !bundle.AllFailed(kind) {
			continue
		}
		reason := travel.ErrUpstream
		if len(bundle[kind]) > 0 && bundle[kind][0].Err != nil {
			reason = bundle[kind][0].Err.Kind
		}
		gaps = append(gaps, fmt.Sprintf("%s could not be fetched (%s)", kindLabels[kind], reason))
	}
	return gaps
}
