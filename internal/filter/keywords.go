package filter

import (
	"strings"

	"github.com/civicsignal/billwatch/internal/bill"
	"github.com/civicsignal/billwatch/internal/metrics"
)

// Topic keyword lists curated for municipal operational relevance. A single
// case-insensitive substring hit over title+status admits the bill; this gate
// is deterministic and runs before any engine call, purely to bound the
// volume of expensive analysis.
var topicKeywords = map[string][]string{
	"governance-elections": {
		"municipal", "city council", "town meeting", "charter", "election",
		"ballot", "open meeting", "public records", "home rule",
	},
	"finance-taxation": {
		"property tax", "levy", "local aid", "appropriation", "assessment",
		"excise", "bond", "fiscal", "revenue sharing", "budget",
	},
	"land-use": {
		"zoning", "land use", "subdivision", "permitting", "housing",
		"eminent domain", "historic district", "wetlands",
	},
	"public-works": {
		"water", "sewer", "stormwater", "road", "bridge", "solid waste",
		"public works", "utility", "broadband",
	},
	"procurement": {
		"procurement", "public bidding", "contract award", "prevailing wage",
		"public construction",
	},
	"labor-administration": {
		"collective bargaining", "pension", "retirement system", "civil service",
		"municipal employee", "workers' compensation",
	},
}

// KeywordGate is the stage-1 lexical admission gate.
type KeywordGate struct {
	keywords []string
}

func NewKeywordGate() *KeywordGate {
	var all []string
	for _, words := range topicKeywords {
		all = append(all, words...)
	}
	return &KeywordGate{keywords: all}
}

// NewKeywordGateWithTerms builds a gate from a caller-supplied list, for
// deployments tracking a narrower topic slice.
func NewKeywordGateWithTerms(terms []string) *KeywordGate {
	return &KeywordGate{keywords: terms}
}

// Admit reports whether any curated keyword appears in the bill's title or
// status text.
func (g *KeywordGate) Admit(snap bill.Snapshot) bool {
	haystack := strings.ToLower(snap.Title + " " + snap.Status)
	for _, kw := range g.keywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			metrics.FilterDecisions.WithLabelValues("keyword", "pass").Inc()
			return true
		}
	}
	metrics.FilterDecisions.WithLabelValues("keyword", "reject").Inc()
	return false
}

// TriggerGate is the alternate admission policy: instead of topical
// relevance it watches action text for specific procedural trigger phrases.
// Same identity/dedup substrate, different gate.
type TriggerGate struct {
	phrases []string
}

// DefaultTriggerPhrases are the procedural milestones worth a per-action brief.
func DefaultTriggerPhrases() []string {
	return []string{
		"reported favorably",
		"governor signed",
		"signed by the governor",
		"public hearing scheduled",
		"enacted",
		"passed to be engrossed",
	}
}

func NewTriggerGate(phrases []string) *TriggerGate {
	if len(phrases) == 0 {
		phrases = DefaultTriggerPhrases()
	}
	return &TriggerGate{phrases: phrases}
}

// Admit reports whether the action text contains any trigger phrase.
func (g *TriggerGate) Admit(action bill.Action) bool {
	text := strings.ToLower(action.Text)
	for _, p := range g.phrases {
		if strings.Contains(text, strings.ToLower(p)) {
			metrics.FilterDecisions.WithLabelValues("trigger", "pass").Inc()
			return true
		}
	}
	metrics.FilterDecisions.WithLabelValues("trigger", "reject").Inc()
	return false
}
