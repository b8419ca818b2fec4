package filter

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/civicsignal/billwatch/internal/bill"
	"github.com/civicsignal/billwatch/internal/engine"
	"github.com/civicsignal/billwatch/internal/metrics"
)

const relevanceSchemaPrompt = `Required JSON schema:
{
  "relevant": "boolean — does this bill operationally affect municipal government (budgets, obligations, powers, deadlines)?",
  "confidence": "low | medium | high",
  "reason": "string (min 10 chars)"
}`

// SemanticGate is the stage-2 admission gate: a narrow yes/no/confidence
// question to the analysis engine. A low-confidence positive is a reject.
//
// The gate fails open: if the engine call itself errors, the bill passes
// through to full analysis. Silently dropping a municipally relevant bill is
// worse than one wasted analysis call.
type SemanticGate struct {
	exec *engine.Executor
	log  zerolog.Logger
}

func NewSemanticGate(exec *engine.Executor, log zerolog.Logger) *SemanticGate {
	return &SemanticGate{exec: exec, log: log}
}

// Admit asks the engine whether the bill operationally affects municipal
// government. It returns the judgment when one was obtained, for run records.
func (g *SemanticGate) Admit(ctx context.Context, snap bill.Snapshot) (bool, *bill.RelevanceJudgment) {
	prompt := fmt.Sprintf(
		"Relevance check. Answer only whether this bill operationally affects municipal government operations.\n\n%s\n\nBill %s: %s\nCurrent status: %s",
		relevanceSchemaPrompt,
		snap.Identifier,
		snap.Title,
		snap.Status,
	)

	var judgment bill.RelevanceJudgment
	err := g.exec.Run(ctx, "relevance", prompt, &judgment, func() error {
		if !judgment.Confidence.Valid() {
			return fmt.Errorf("invalid confidence %q", judgment.Confidence)
		}
		if len(strings.TrimSpace(judgment.Reason)) < 10 {
			return fmt.Errorf("reason too short")
		}
		return nil
	})
	if err != nil {
		g.log.Warn().Err(err).Str("bill", snap.Identifier).
			Msg("semantic gate errored, failing open")
		metrics.FilterDecisions.WithLabelValues("semantic", "fail_open").Inc()
		return true, nil
	}

	pass := judgment.Relevant && judgment.Confidence != bill.ConfidenceLow
	if pass {
		metrics.FilterDecisions.WithLabelValues("semantic", "pass").Inc()
	} else {
		metrics.FilterDecisions.WithLabelValues("semantic", "reject").Inc()
	}
	return pass, &judgment
}
