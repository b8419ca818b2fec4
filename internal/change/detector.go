package change

import (
	"context"
	"fmt"
	"time"

	"github.com/civicsignal/billwatch/internal/bill"
)

// Disposition classifies one observed action against prior state.
type Disposition string

const (
	DispositionNew       Disposition = "new"
	DispositionUnchanged Disposition = "unchanged"
	DispositionUpdated   Disposition = "updated"
)

// Candidate is a non-unchanged action emitted for downstream filtering.
type Candidate struct {
	ItemID      string
	ContentHash string
	Disposition Disposition
	Action      bill.Action
	Snapshot    bill.Snapshot
}

// SeenStore persists per-item content hashes. The detector is the only
// component that mutates it.
type SeenStore interface {
	GetSeen(ctx context.Context, itemID string) (bill.SeenState, bool, error)
	UpsertSeen(ctx context.Context, state bill.SeenState) error
}

// HistoryReader answers whether an action row is already persisted verbatim.
type HistoryReader interface {
	HasHistoryRow(ctx context.Context, identifier, actionDate, actionText string) (bool, error)
}

// Config controls when accepted candidates are marked seen.
//
// MarkSeenOnAccept advances seen-state the moment an action enters the
// candidate set, before any downstream analysis runs. A later analysis
// failure therefore will not re-trigger the same action on future passes:
// at-most-once processing, trading complete coverage for zero duplicate
// briefs. Set false to mark seen only via SettleCandidate after a successful
// brief.
type Config struct {
	MarkSeenOnAccept bool
	Now              func() time.Time
}

func DefaultConfig() Config {
	return Config{MarkSeenOnAccept: true, Now: time.Now}
}

type Detector struct {
	seen SeenStore
	cfg  Config
}

func NewDetector(seen SeenStore, cfg Config) *Detector {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Detector{seen: seen, cfg: cfg}
}

// Classify compares every action in the snapshot against seen-state and
// returns only the new/updated ones. Unchanged actions are dropped with no
// side effect.
func (d *Detector) Classify(ctx context.Context, snap bill.Snapshot) ([]Candidate, error) {
	var out []Candidate
	for _, action := range snap.Actions {
		itemID := Fingerprint(snap.Identifier, action.Date, action.Text)
		hash := ContentHash(action.Text)

		prev, found, err := d.seen.GetSeen(ctx, itemID)
		if err != nil {
			return nil, fmt.Errorf("seen lookup %s: %w", itemID, err)
		}
		if found && prev.ContentHash == hash {
			continue
		}

		disp := DispositionNew
		if found {
			disp = DispositionUpdated
		}
		cand := Candidate{
			ItemID:      itemID,
			ContentHash: hash,
			Disposition: disp,
			Action:      action,
			Snapshot:    snap,
		}
		if d.cfg.MarkSeenOnAccept {
			if err := d.markSeen(ctx, cand); err != nil {
				return nil, err
			}
		}
		out = append(out, cand)
	}
	return out, nil
}

// SettleCandidate marks a candidate seen after downstream processing, for
// deployments running with MarkSeenOnAccept=false.
func (d *Detector) SettleCandidate(ctx context.Context, cand Candidate) error {
	return d.markSeen(ctx, cand)
}

func (d *Detector) markSeen(ctx context.Context, cand Candidate) error {
	state := bill.SeenState{
		ItemID:      cand.ItemID,
		ContentHash: cand.ContentHash,
		LastSeenAt:  d.cfg.Now(),
	}
	if err := d.seen.UpsertSeen(ctx, state); err != nil {
		return fmt.Errorf("seen upsert %s: %w", cand.ItemID, err)
	}
	return nil
}

// BillChanged reports whether a bill needs whole-bill re-analysis: true
// unless every published action row already exists verbatim in persisted
// history. Whole-bill analysis is holistic, so any absent row re-triggers the
// complete history, not just the delta.
func BillChanged(ctx context.Context, history HistoryReader, snap bill.Snapshot) (bool, error) {
	if len(snap.Actions) == 0 {
		return false, nil
	}
	for _, action := range snap.Actions {
		have, err := history.HasHistoryRow(ctx, snap.Identifier, action.Date, action.Text)
		if err != nil {
			return false, fmt.Errorf("history lookup %s: %w", snap.Identifier, err)
		}
		if !have {
			return true, nil
		}
	}
	return false, nil
}
