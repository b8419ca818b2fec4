package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/civicsignal/billwatch/internal/bill"
	"github.com/civicsignal/billwatch/internal/change"
	"github.com/civicsignal/billwatch/internal/fetch"
	"github.com/civicsignal/billwatch/internal/metrics"
	"github.com/civicsignal/billwatch/internal/store"
)

// Mode selects the admission policy for a deployment.
type Mode string

const (
	// ModeTopical runs the keyword and semantic gates and produces one
	// consolidated brief per changed, relevant bill.
	ModeTopical Mode = "topical"
	// ModeTrigger watches action text for procedural trigger phrases and
	// produces one brief per qualifying action. No keyword or semantic gate.
	ModeTrigger Mode = "trigger"
)

type Fetcher interface {
	Fetch(ctx context.Context, identifier string) (fetch.Page, error)
	FetchFullText(ctx context.Context, identifier string) (string, error)
}

type Parser interface {
	Parse(pageHTML []byte, sourceURL string) (bill.Snapshot, error)
	AttachFullText(snap *bill.Snapshot, raw string)
}

type Detector interface {
	Classify(ctx context.Context, snap bill.Snapshot) ([]change.Candidate, error)
}

type KeywordAdmitter interface {
	Admit(snap bill.Snapshot) bool
}

type SemanticAdmitter interface {
	Admit(ctx context.Context, snap bill.Snapshot) (bool, *bill.RelevanceJudgment)
}

type TriggerAdmitter interface {
	Admit(action bill.Action) bool
}

type BriefMaker interface {
	FromSnapshot(ctx context.Context, snap bill.Snapshot) (bill.Brief, error)
	FromAction(ctx context.Context, snap bill.Snapshot, itemID string, action bill.Action) (bill.Brief, error)
}

type Storage interface {
	SaveSnapshot(ctx context.Context, session string, snap bill.Snapshot, now time.Time) (int64, bool, error)
	HasHistoryRow(ctx context.Context, identifier, actionDate, actionText string) (bool, error)
	InsertBrief(ctx context.Context, b bill.Brief) error
	SaveRun(ctx context.Context, rec bill.RunRecord) (int64, error)
}

// ProgressFn receives periodic run progress snapshots.
type ProgressFn func(stage string, stats bill.RunStats)

type Config struct {
	Mode       Mode
	Session    string
	BatchSize  int
	BatchPause time.Duration
	Now        func() time.Time
}

// RunResult is what the entry point hands back to callers. Success means
// zero errors observed; callers must inspect Errors to know which candidates
// remain unresolved.
type RunResult struct {
	RunID   int64
	Stats   bill.RunStats
	Briefs  []bill.Brief
	Errors  []bill.RunError
	Success bool
}

// Coordinator drives one pipeline pass over a candidate set: bounded
// concurrent batches, per-candidate failure isolation, aggregate statistics,
// and a persisted run record.
type Coordinator struct {
	fetcher  Fetcher
	parser   Parser
	detector Detector
	keyword  KeywordAdmitter
	semantic SemanticAdmitter
	trigger  TriggerAdmitter
	briefs   BriefMaker
	storage  Storage
	cfg      Config
	log      zerolog.Logger
	tracer   trace.Tracer

	mu    sync.Mutex
	stats bill.RunStats
	errs  []bill.RunError
	made  []bill.Brief
}

func NewCoordinator(
	fetcher Fetcher,
	parser Parser,
	detector Detector,
	keyword KeywordAdmitter,
	semantic SemanticAdmitter,
	trigger TriggerAdmitter,
	briefs BriefMaker,
	storage Storage,
	cfg Config,
	log zerolog.Logger,
) *Coordinator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.BatchPause <= 0 {
		cfg.BatchPause = 500 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeTopical
	}
	return &Coordinator{
		fetcher:  fetcher,
		parser:   parser,
		detector: detector,
		keyword:  keyword,
		semantic: semantic,
		trigger:  trigger,
		briefs:   briefs,
		storage:  storage,
		cfg:      cfg,
		log:      log,
		tracer:   otel.Tracer("billwatch/pipeline"),
	}
}

// Run executes one pass. The run record is persisted even when individual
// candidates failed; the run itself still counts as completed.
func (c *Coordinator) Run(ctx context.Context, candidates []string, progress ProgressFn) (RunResult, error) {
	if len(candidates) == 0 {
		return RunResult{}, errors.New("candidate list is empty")
	}
	started := c.cfg.Now()

	ctx, span := c.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.Int("candidates", len(candidates))))
	defer span.End()

	c.mu.Lock()
	c.stats = bill.RunStats{}
	c.errs = nil
	c.made = nil
	c.mu.Unlock()

	// Same bill twice in one run would race its own writes; dedupe up front.
	deduped := dedupe(candidates)

	for start := 0; start < len(deduped); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(deduped) {
			end = len(deduped)
		}

		var wg sync.WaitGroup
		for _, id := range deduped[start:end] {
			wg.Add(1)
			go func(identifier string) {
				defer wg.Done()
				c.processOne(ctx, identifier)
			}(id)
		}
		wg.Wait()

		if progress != nil {
			progress(fmt.Sprintf("batch %d/%d", end, len(deduped)), c.snapshotStats())
		}
		if end < len(deduped) {
			time.Sleep(c.cfg.BatchPause)
		}
	}

	c.mu.Lock()
	stats := c.stats
	stats.Errors = len(c.errs)
	runErrs := append([]bill.RunError(nil), c.errs...)
	briefs := append([]bill.Brief(nil), c.made...)
	c.mu.Unlock()

	rec := bill.RunRecord{
		StartedAt:   started,
		CompletedAt: c.cfg.Now(),
		Status:      "completed",
		Stats:       stats,
		Errors:      runErrs,
	}
	runID, err := c.storage.SaveRun(ctx, rec)
	if err != nil {
		c.log.Error().Err(err).Msg("run record not persisted")
	}

	return RunResult{
		RunID:   runID,
		Stats:   stats,
		Briefs:  briefs,
		Errors:  runErrs,
		Success: len(runErrs) == 0,
	}, nil
}

// processOne runs the full per-candidate flow. Every failure is recorded and
// swallowed; one bad bill must never abort the run.
func (c *Coordinator) processOne(ctx context.Context, identifier string) {
	ctx, span := c.tracer.Start(ctx, "pipeline.candidate",
		trace.WithAttributes(attribute.String("identifier", identifier)))
	defer span.End()

	c.count(func(s *bill.RunStats) { s.Checked++ })
	metrics.CandidatesChecked.Inc()

	page, err := c.fetcher.Fetch(ctx, identifier)
	if errors.Is(err, fetch.ErrNotFound) {
		c.log.Debug().Str("bill", identifier).Msg("not found, skipping")
		return
	}
	if err != nil {
		c.recordError(identifier, "fetch", err)
		return
	}

	snap, err := c.parser.Parse(page.HTML, page.URL)
	if err != nil {
		c.recordError(identifier, "normalize", err)
		return
	}
	c.count(func(s *bill.RunStats) { s.Found++ })

	if text, err := c.fetcher.FetchFullText(ctx, snap.Identifier); err == nil && text != "" {
		c.parser.AttachFullText(&snap, text)
	}

	switch c.cfg.Mode {
	case ModeTrigger:
		c.processTrigger(ctx, identifier, snap)
	default:
		c.processTopical(ctx, identifier, snap)
	}
}

// processTopical: whole-bill change check, keyword gate, semantic gate, one
// consolidated brief over the complete history.
func (c *Coordinator) processTopical(ctx context.Context, identifier string, snap bill.Snapshot) {
	// The change check must precede persistence: once history rows are
	// written, every row exists and the bill would always read as settled.
	changed, err := change.BillChanged(ctx, c.storage, snap)
	if err != nil {
		c.recordError(identifier, "detect", err)
		return
	}

	// Advance per-action seen-state even in whole-bill mode so a later
	// switch to trigger mode starts from settled state.
	cands, err := c.detector.Classify(ctx, snap)
	if err != nil {
		c.recordError(identifier, "detect", err)
		return
	}
	for _, cand := range cands {
		if cand.Disposition == change.DispositionUpdated {
			c.count(func(s *bill.RunStats) { s.Updated++ })
		}
	}

	if _, _, err := c.storage.SaveSnapshot(ctx, c.cfg.Session, snap, c.cfg.Now()); err != nil {
		c.recordError(identifier, "persist", err)
		return
	}

	if !changed {
		return
	}
	if !c.keyword.Admit(snap) {
		return
	}
	c.count(func(s *bill.RunStats) { s.KeywordPassed++ })

	pass, _ := c.semantic.Admit(ctx, snap)
	if !pass {
		return
	}
	c.count(func(s *bill.RunStats) { s.SemanticPassed++ })

	b, err := c.briefs.FromSnapshot(ctx, snap)
	if err != nil {
		c.recordError(identifier, "analyze", err)
		return
	}
	c.persistBrief(ctx, identifier, b)
}

// processTrigger: per-action dedup plus trigger-phrase admission, one brief
// per qualifying new or updated action.
func (c *Coordinator) processTrigger(ctx context.Context, identifier string, snap bill.Snapshot) {
	cands, err := c.detector.Classify(ctx, snap)
	if err != nil {
		c.recordError(identifier, "detect", err)
		return
	}

	if _, _, err := c.storage.SaveSnapshot(ctx, c.cfg.Session, snap, c.cfg.Now()); err != nil {
		c.recordError(identifier, "persist", err)
		return
	}

	for _, cand := range cands {
		if cand.Disposition == change.DispositionUpdated {
			c.count(func(s *bill.RunStats) { s.Updated++ })
		}
		if !c.trigger.Admit(cand.Action) {
			continue
		}
		c.count(func(s *bill.RunStats) { s.KeywordPassed++ })

		b, err := c.briefs.FromAction(ctx, snap, cand.ItemID, cand.Action)
		if err != nil {
			c.recordError(identifier, "analyze", err)
			continue
		}
		c.persistBrief(ctx, identifier, b)
	}
}

func (c *Coordinator) persistBrief(ctx context.Context, identifier string, b bill.Brief) {
	if err := c.storage.InsertBrief(ctx, b); err != nil {
		c.recordError(identifier, "persist", err)
		return
	}
	metrics.BriefsCreated.Inc()
	c.mu.Lock()
	c.stats.BriefsCreated++
	c.made = append(c.made, b)
	c.mu.Unlock()
	c.log.Info().Str("bill", identifier).Str("brief", b.BriefID).
		Str("urgency", string(b.Analysis.Urgency)).Msg("brief created")
}

func (c *Coordinator) recordError(identifier, stage string, err error) {
	metrics.CandidateErrors.WithLabelValues(stage).Inc()
	c.log.Warn().Err(err).Str("bill", identifier).Str("stage", stage).Msg("candidate failed")
	c.mu.Lock()
	c.errs = append(c.errs, bill.RunError{Identifier: identifier, Stage: stage, Message: err.Error()})
	c.mu.Unlock()
}

func (c *Coordinator) count(fn func(*bill.RunStats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}

func (c *Coordinator) snapshotStats() bill.RunStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Errors = len(c.errs)
	return s
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

var _ Storage = (*store.Store)(nil)
