// Package extract holds the deterministic text-mining half of the core:
// keyword extraction (locations, activities, duration, routes, time-of-day)
// and context extraction (companions, mood, budget, preferences). Both
// extractors are pure: same text in, same structures out, no I/O.
package extract

import (
	"fmt"
	"sort"
	"strings"
)

// Gazetteer is the two-tier location vocabulary for one region. Canonical
// holds the closed set of place identifiers; Aliases maps landmark names
// and common shorthand onto canonical entries.
type Gazetteer struct {
	Region    string            `yaml:"region" json:"region"`
	Canonical []string          `yaml:"places" json:"places"`
	Aliases   map[string]string `yaml:"aliases" json:"aliases,omitempty"`
}

// DefaultGazetteer returns the built-in vocabulary for the Lisbon region.
// Accented and plain spellings are both present so matching needs no
// unicode folding.
func DefaultGazetteer() *Gazetteer {
	return &Gazetteer{
		Region: "Lisbon",
		Canonical: []string{
			"Alfama",
			"Baixa",
			"Chiado",
			"Bairro Alto",
			"Belém",
			"Alcântara",
			"Parque das Nações",
			"Mouraria",
			"Graça",
			"Estrela",
			"Avenida da Liberdade",
			"Cais do Sodré",
			"Sintra",
			"Cascais",
		},
		Aliases: map[string]string{
			"belem":                "Belém",
			"belem tower":          "Belém",
			"belém tower":          "Belém",
			"jeronimos":            "Belém",
			"jeronimos monastery":  "Belém",
			"jerónimos":            "Belém",
			"alcantara":            "Alcântara",
			"lx factory":           "Alcântara",
			"parque das nacoes":    "Parque das Nações",
			"oceanarium":           "Parque das Nações",
			"oceanario":            "Parque das Nações",
			"expo":                 "Parque das Nações",
			"graca":                "Graça",
			"old town":             "Alfama",
			"fado district":        "Alfama",
			"castle of sao jorge":  "Alfama",
			"sao jorge castle":     "Alfama",
			"st george's castle":   "Alfama",
			"cais do sodre":        "Cais do Sodré",
			"time out market":      "Cais do Sodré",
			"pink street":          "Cais do Sodré",
			"avenida":              "Avenida da Liberdade",
			"liberty avenue":       "Avenida da Liberdade",
			"pena palace":          "Sintra",
			"quinta da regaleira":  "Sintra",
			"boca do inferno":      "Cascais",
			"guincho":              "Cascais",
			"guincho beach":        "Cascais",
			"bica":                 "Chiado",
			"carmo convent":        "Chiado",
			"santa justa lift":     "Baixa",
			"rossio":               "Baixa",
			"praca do comercio":    "Baixa",
			"commerce square":      "Baixa",
			"miradouro da senhora": "Graça",
		},
	}
}

// Validate checks internal consistency: no empty entries, aliases must
// point at canonical places.
func (g *Gazetteer) Validate() error {
	if g.Region == "" {
		return fmt.Errorf("gazetteer region is required")
	}
	if len(g.Canonical) == 0 {
		return fmt.Errorf("gazetteer must declare at least one canonical place")
	}
	canon := make(map[string]bool, len(g.Canonical))
	for _, place := range g.Canonical {
		if strings.TrimSpace(place) == "" {
			return fmt.Errorf("gazetteer contains an empty canonical place")
		}
		canon[place] = true
	}
	for alias, target := range g.Aliases {
		if strings.TrimSpace(alias) == "" {
			return fmt.Errorf("gazetteer contains an empty alias")
		}
		if !canon[target] {
			return fmt.Errorf("alias %q points at unknown place %q", alias, target)
		}
	}
	return nil
}

// entry is one matchable term with its canonical resolution.
type entry struct {
	term      string // normalized
	canonical string
}

// matchTerms returns all matchable terms, longest first so multi-word
// names win over their substrings, with lexicographic order as tiebreak
// for determinism.
func (g *Gazetteer) matchTerms() []entry {
	entries := make([]entry, 0, len(g.Canonical)+len(g.Aliases))
	for _, place := range g.Canonical {
		entries = append(entries, entry{term: normalizeText(place), canonical: place})
	}
	aliases := make([]string, 0, len(g.Aliases))
	for alias := range g.Aliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		entries = append(entries, entry{term: normalizeText(alias), canonical: g.Aliases[alias]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if len(entries[i].term) != len(entries[j].term) {
			return len(entries[i].term) > len(entries[j].term)
		}
		return entries[i].term < entries[j].term
	})
	return entries
}

// ResolveIn finds the best-known place mentioned inside phrase, preferring
// the longest match. Returns false when nothing in the vocabulary appears.
func (g *Gazetteer) ResolveIn(phrase string) (string, bool) {
	normalized := normalizeText(phrase)
	for _, e := range g.matchTerms() {
		if containsPhrase(normalized, e.term) {
			return e.canonical, true
		}
	}
	return "", false
}

// Contains reports whether name is a canonical place.
func (g *Gazetteer) Contains(name string) bool {
	for _, place := range g.Canonical {
		if place == name {
			return true
		}
	}
	return false
}
