package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/civicsignal/billwatch/internal/bill"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testSnapshot() bill.Snapshot {
	return bill.Snapshot{
		Identifier: "H1",
		Title:      "An Act relative to municipal finance",
		Status:     "Referred to the committee on Municipalities",
		SourceURL:  "https://example.test/H1",
		Actions: []bill.Action{
			{Date: "1/1/2025", Branch: "House", Text: "Referred to the committee on Municipalities"},
		},
	}
}

func TestSaveSnapshotInsertAndIdempotentHistory(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	billID, changed, err := st.SaveSnapshot(ctx, "194th", testSnapshot(), now)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if billID == 0 || !changed {
		t.Fatalf("first save: id=%d changed=%v", billID, changed)
	}

	// Identical re-observation: same history rows, no duplicates, unchanged.
	id2, changed, err := st.SaveSnapshot(ctx, "194th", testSnapshot(), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("save again: %v", err)
	}
	if id2 != billID {
		t.Fatalf("bill id drifted: %d vs %d", id2, billID)
	}
	if changed {
		t.Fatal("identical snapshot must not report change")
	}
	n, err := st.CountHistory(ctx, "H1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("history rows = %d, want 1", n)
	}

	// A new action row accumulates without touching the old one.
	grown := testSnapshot()
	grown.Actions = append(grown.Actions, bill.Action{Date: "2/3/2025", Branch: "Senate", Text: "Reported favorably"})
	if _, _, err := st.SaveSnapshot(ctx, "194th", grown, now.Add(2*time.Hour)); err != nil {
		t.Fatalf("save grown: %v", err)
	}
	if n, _ = st.CountHistory(ctx, "H1"); n != 2 {
		t.Fatalf("history rows = %d, want 2", n)
	}
}

func TestSaveSnapshotTimestampSemantics(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	t2 := t0.Add(2 * time.Hour)

	if _, _, err := st.SaveSnapshot(ctx, "194th", testSnapshot(), t0); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Unchanged observation advances last_checked_at only.
	if _, _, err := st.SaveSnapshot(ctx, "194th", testSnapshot(), t1); err != nil {
		t.Fatalf("save: %v", err)
	}
	rec, found, err := st.GetBill(ctx, "H1")
	if err != nil || !found {
		t.Fatalf("get: %v found=%v", err, found)
	}
	if !rec.LastCheckedAt.Equal(t1) {
		t.Fatalf("last_checked_at = %v, want %v", rec.LastCheckedAt, t1)
	}
	if !rec.LastUpdatedAt.Equal(t0) {
		t.Fatalf("last_updated_at = %v, want %v", rec.LastUpdatedAt, t0)
	}

	// A status change advances both.
	moved := testSnapshot()
	moved.Status = "Reported favorably"
	_, changed, err := st.SaveSnapshot(ctx, "194th", moved, t2)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !changed {
		t.Fatal("status change must report changed")
	}
	rec, _, _ = st.GetBill(ctx, "H1")
	if !rec.LastUpdatedAt.Equal(t2) {
		t.Fatalf("last_updated_at = %v, want %v", rec.LastUpdatedAt, t2)
	}
	if rec.Status != "Reported favorably" {
		t.Fatalf("status = %q", rec.Status)
	}
}

func TestHasHistoryRow(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if _, _, err := st.SaveSnapshot(ctx, "194th", testSnapshot(), time.Now()); err != nil {
		t.Fatalf("save: %v", err)
	}

	have, err := st.HasHistoryRow(ctx, "H1", "1/1/2025", "Referred to the committee on Municipalities")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !have {
		t.Fatal("persisted row not found")
	}
	have, err = st.HasHistoryRow(ctx, "H1", "2/3/2025", "Reported favorably")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if have {
		t.Fatal("absent row reported present")
	}
}

func TestSeenStateRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, found, err := st.GetSeen(ctx, "item-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Fatal("unseen item reported present")
	}

	first := bill.SeenState{ItemID: "item-1", ContentHash: "aaa", LastSeenAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	if err := st.UpsertSeen(ctx, first); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second := first
	second.ContentHash = "bbb"
	if err := st.UpsertSeen(ctx, second); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	state, found, err := st.GetSeen(ctx, "item-1")
	if err != nil || !found {
		t.Fatalf("get: %v found=%v", err, found)
	}
	if state.ContentHash != "bbb" {
		t.Fatalf("upsert did not replace: %q", state.ContentHash)
	}
}

func TestBriefRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	b := bill.Brief{
		BriefID:        "brief-1",
		BillIdentifier: "H1",
		BillTitle:      "An Act relative to municipal finance",
		SourceHash:     "deadbeef",
		CreatedAt:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Analysis: bill.Analysis{
			Summary:              "Requires quarterly budget reporting by every city and town.",
			WhyItMatters:         "Adds a recurring compliance task for municipal finance offices.",
			WhoShouldCare:        []bill.Role{bill.RoleFinanceDirector},
			WhatToDo:             bill.DirectivePrepare,
			RecommendedNextSteps: []string{"Review the quarterly close timeline."},
			Urgency:              bill.UrgencyMedium,
			ActionTypes:          []bill.ActionType{bill.ActionBudgeting},
			Confidence:           bill.ConfidenceHigh,
		},
	}
	if err := st.InsertBrief(ctx, b); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, found, err := st.GetBrief(ctx, "brief-1")
	if err != nil || !found {
		t.Fatalf("get: %v found=%v", err, found)
	}
	if got.Analysis.WhatToDo != bill.DirectivePrepare || got.Analysis.Urgency != bill.UrgencyMedium {
		t.Fatalf("analysis did not round trip: %+v", got.Analysis)
	}
	if !got.CreatedAt.Equal(b.CreatedAt) {
		t.Fatalf("created_at = %v", got.CreatedAt)
	}

	// Duplicate IDs violate the unique constraint.
	if err := st.InsertBrief(ctx, b); err == nil {
		t.Fatal("duplicate brief id must fail")
	}

	_, found, err = st.GetBrief(ctx, "missing")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if found {
		t.Fatal("missing brief reported present")
	}
}

func TestListBriefsNewestFirst(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "new"} {
		b := bill.Brief{
			BriefID:        id,
			BillIdentifier: "H1",
			SourceHash:     "hash",
			CreatedAt:      base.Add(time.Duration(i) * time.Hour),
		}
		if err := st.InsertBrief(ctx, b); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	briefs, err := st.ListBriefs(ctx, "H1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(briefs) != 2 || briefs[0].BriefID != "new" {
		t.Fatalf("unexpected order: %+v", briefs)
	}
}

func TestSaveRun(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	rec := bill.RunRecord{
		StartedAt:   time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		CompletedAt: time.Date(2025, 6, 1, 10, 5, 0, 0, time.UTC),
		Status:      "completed",
		Stats:       bill.RunStats{Checked: 3, Found: 2, BriefsCreated: 1, Errors: 1},
		Errors:      []bill.RunError{{Identifier: "H9", Stage: "fetch", Message: "boom"}},
	}
	id, err := st.SaveRun(ctx, rec)
	if err != nil {
		t.Fatalf("save run: %v", err)
	}
	if id == 0 {
		t.Fatal("run id not assigned")
	}
}
