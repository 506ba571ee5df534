// Package reasoning builds the ordered thought chain that drives a turn:
// what to figure out, in which order, and which upstream data each step
// needs. A configured model produces the chain when it can; a rule-based
// fallback produces it when the model fails, so the pipeline never stalls
// on a bad completion.
package reasoning

import (
	"strings"
	"time"

	"github.com/periplo-ai/periplo/pkg/travel"
)

// Thought is one step of the reasoning chain. Step values are contiguous
// starting at 1 within a chain; Services names the data kinds the step
// depends on.
type Thought struct {
	Step      int                  `json:"step"`
	Text      string               `json:"text"`
	Keywords  []string             `json:"keywords,omitempty"`
	Services  []travel.ServiceKind `json:"services,omitempty"`
	Rationale string               `json:"rationale,omitempty"`
	TS        time.Time            `json:"ts"`
}

// Needs reports whether the thought depends on kind.
func (t Thought) Needs(kind travel.ServiceKind) bool {
	for _, k := range t.Services {
		if k == kind {
			return true
		}
	}
	return false
}

// ServicesOf unions the service sets of a chain in first-seen order.
func ServicesOf(thoughts []Thought) []travel.ServiceKind {
	var out []travel.ServiceKind
	for _, t := range thoughts {
		for _, k := range t.Services {
			out = appendKindOnce(out, k)
		}
	}
	return out
}

// renumber rewrites Step so the chain counts 1..n regardless of what the
// model emitted.
func renumber(thoughts []Thought) {
	for i := range thoughts {
		thoughts[i].Step = i + 1
	}
}

func appendKindOnce(kinds []travel.ServiceKind, kind travel.ServiceKind) []travel.ServiceKind {
	for _, k := range kinds {
		if k == kind {
			return kinds
		}
	}
	return append(kinds, kind)
}

func appendTermOnce(terms []string, term string) []string {
	for _, t := range terms {
		if strings.EqualFold(t, term) {
			return terms
		}
	}
	return append(terms, term)
}
