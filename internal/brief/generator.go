package brief

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/civicsignal/billwatch/internal/bill"
	"github.com/civicsignal/billwatch/internal/engine"
)

const analysisSchemaPrompt = `Required JSON schema:
{
  "summary": "string (40-600 chars) — what the bill does, in plain language",
  "why_it_matters": "string (40-1200 chars) — operational consequences for a city or town",
  "who_should_care": ["mayor | city-council | city-manager | city-clerk | finance-director | city-attorney | public-works-director | planning-director | hr-director | procurement-officer (1-6 entries)"],
  "what_to_do": "monitor | prepare | act",
  "recommended_next_steps": ["string (1-8 entries, each 10-300 chars)"],
  "urgency": "low | medium | high",
  "action_types": ["budgeting | taxation | elections | procurement | land-use | public-safety | personnel | infrastructure | reporting-compliance | governance (1-5 entries)"],
  "confidence": "low | medium | high",
  "model_notes": "string — caveats or ambiguities, may be empty",
  "citations": ["string — bill sections or actions relied on, may be empty"]
}`

// Generator turns a snapshot (or one triggering action) into a validated
// impact brief via the analysis engine.
type Generator struct {
	exec *engine.Executor
	now  func() time.Time
}

func NewGenerator(exec *engine.Executor) *Generator {
	return &Generator{exec: exec, now: time.Now}
}

// FromSnapshot analyzes the whole bill holistically: metadata, the complete
// chronological action history, and the bill text (status text when no full
// text was extracted).
func (g *Generator) FromSnapshot(ctx context.Context, snap bill.Snapshot) (bill.Brief, error) {
	source := analysisSource(snap)
	prompt := fmt.Sprintf(
		"Produce a municipal impact brief for this bill.\n\n%s\n\nBill %s: %s\nCurrent status: %s\n\nAction history (chronological):\n%s\nBill text:\n%s",
		analysisSchemaPrompt,
		snap.Identifier,
		snap.Title,
		snap.Status,
		historyLines(snap.Actions),
		source,
	)
	return g.generate(ctx, snap, "", prompt, source)
}

// FromAction analyzes a single triggering action rather than the whole bill,
// for trigger-phrase deployments.
func (g *Generator) FromAction(ctx context.Context, cand bill.Snapshot, itemID string, action bill.Action) (bill.Brief, error) {
	source := analysisSource(cand)
	prompt := fmt.Sprintf(
		"Produce a municipal impact brief focused on one legislative action.\n\n%s\n\nBill %s: %s\nCurrent status: %s\n\nTriggering action (%s, %s): %s\n\nBill text:\n%s",
		analysisSchemaPrompt,
		cand.Identifier,
		cand.Title,
		cand.Status,
		action.Date,
		action.Branch,
		action.Text,
		source,
	)
	return g.generate(ctx, cand, itemID, prompt, source+action.Text)
}

func (g *Generator) generate(ctx context.Context, snap bill.Snapshot, itemID, prompt, source string) (bill.Brief, error) {
	var analysis bill.Analysis
	err := g.exec.Run(ctx, "brief", prompt, &analysis, func() error {
		return validateAnalysis(&analysis)
	})
	if err != nil {
		return bill.Brief{}, err
	}

	sum := sha256.Sum256([]byte(source))
	return bill.Brief{
		BriefID:        uuid.NewString(),
		BillIdentifier: snap.Identifier,
		BillTitle:      snap.Title,
		ItemID:         itemID,
		SourceHash:     hex.EncodeToString(sum[:]),
		CreatedAt:      g.now(),
		Analysis:       analysis,
	}, nil
}

// analysisSource is the text actually analyzed; briefs record its hash so any
// two briefs can be checked for having analyzed byte-identical input.
func analysisSource(snap bill.Snapshot) string {
	if strings.TrimSpace(snap.FullText) != "" {
		return snap.FullText
	}
	return snap.Status
}

func historyLines(actions []bill.Action) string {
	var b strings.Builder
	for _, a := range actions {
		fmt.Fprintf(&b, "- %s [%s] %s\n", a.Date, a.Branch, a.Text)
	}
	if b.Len() == 0 {
		b.WriteString("- (no recorded actions)\n")
	}
	return b.String()
}

// validateAnalysis enforces the closed vocabularies. Scalar enums out of
// vocabulary reject the response outright; unknown entries in the role and
// action-type lists are dropped, and an empty audience after dropping is a
// rejection. Nothing out-of-vocabulary is ever persisted.
func validateAnalysis(a *bill.Analysis) error {
	if !between(len(strings.TrimSpace(a.Summary)), 40, 600) {
		return fmt.Errorf("summary length")
	}
	if !between(len(strings.TrimSpace(a.WhyItMatters)), 40, 1200) {
		return fmt.Errorf("why_it_matters length")
	}
	if !a.WhatToDo.Valid() {
		return fmt.Errorf("invalid what_to_do %q", a.WhatToDo)
	}
	if !a.Urgency.Valid() {
		return fmt.Errorf("invalid urgency %q", a.Urgency)
	}
	if !a.Confidence.Valid() {
		return fmt.Errorf("invalid confidence %q", a.Confidence)
	}

	var roles []bill.Role
	for _, r := range a.WhoShouldCare {
		if r.Valid() {
			roles = append(roles, r)
		}
	}
	if len(roles) == 0 || len(roles) > 6 {
		return fmt.Errorf("who_should_care needs 1-6 known roles")
	}
	a.WhoShouldCare = roles

	var kinds []bill.ActionType
	for _, k := range a.ActionTypes {
		if k.Valid() {
			kinds = append(kinds, k)
		}
	}
	if len(kinds) == 0 || len(kinds) > 5 {
		return fmt.Errorf("action_types needs 1-5 known tags")
	}
	a.ActionTypes = kinds

	if len(a.RecommendedNextSteps) < 1 || len(a.RecommendedNextSteps) > 8 {
		return fmt.Errorf("recommended_next_steps count")
	}
	for _, s := range a.RecommendedNextSteps {
		if !between(len(strings.TrimSpace(s)), 10, 300) {
			return fmt.Errorf("recommended_next_steps entry length")
		}
	}
	return nil
}

func between(v, min, max int) bool {
	return v >= min && v <= max
}
