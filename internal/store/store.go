package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/civicsignal/billwatch/internal/bill"
)

// PersistenceError aborts the candidate's transaction but never the run.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persist %s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

const schema = `
CREATE TABLE IF NOT EXISTS bills (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	identifier      TEXT NOT NULL UNIQUE,
	session         TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL DEFAULT '',
	url             TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT '',
	last_checked_at TEXT NOT NULL,
	last_updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bill_history (
	bill_id     INTEGER NOT NULL REFERENCES bills(id),
	action_date TEXT NOT NULL,
	branch      TEXT NOT NULL DEFAULT '',
	action_text TEXT NOT NULL,
	UNIQUE (bill_id, action_date, action_text)
);

CREATE TABLE IF NOT EXISTS seen_state (
	item_id      TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL,
	last_seen_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS briefs (
	brief_id        TEXT NOT NULL UNIQUE,
	bill_identifier TEXT NOT NULL,
	bill_title      TEXT NOT NULL DEFAULT '',
	item_id         TEXT NOT NULL DEFAULT '',
	source_hash     TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	analysis        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at   TEXT NOT NULL,
	completed_at TEXT NOT NULL,
	status       TEXT NOT NULL,
	stats        TEXT NOT NULL,
	errors       TEXT NOT NULL DEFAULT '[]'
);
`

// Store is SQLite-backed persistence for bills, action history, seen-state,
// briefs, and run records.
type Store struct {
	db *sqlx.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveSnapshot upserts the bill row and inserts any new history rows in one
// transaction. lastUpdatedAt only advances when title, url, or status
// actually changed; lastCheckedAt advances on every observation. History
// inserts are idempotent via the unique constraint.
func (s *Store) SaveSnapshot(ctx context.Context, session string, snap bill.Snapshot, now time.Time) (int64, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, false, &PersistenceError{Op: "begin", Err: err}
	}
	defer tx.Rollback()

	billID, changed, err := upsertBill(ctx, tx, session, snap, now)
	if err != nil {
		return 0, false, &PersistenceError{Op: "bill upsert", Err: err}
	}
	for _, a := range snap.Actions {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO bill_history (bill_id, action_date, branch, action_text) VALUES (?, ?, ?, ?)`,
			billID, a.Date, a.Branch, a.Text,
		); err != nil {
			return 0, false, &PersistenceError{Op: "history insert", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, false, &PersistenceError{Op: "commit", Err: err}
	}
	return billID, changed, nil
}

func upsertBill(ctx context.Context, tx *sqlx.Tx, session string, snap bill.Snapshot, now time.Time) (int64, bool, error) {
	var existing bill.Record
	var checked, updated string
	err := tx.QueryRowxContext(ctx,
		`SELECT id, title, url, status, last_checked_at, last_updated_at FROM bills WHERE identifier = ?`,
		snap.Identifier,
	).Scan(&existing.ID, &existing.Title, &existing.URL, &existing.Status, &checked, &updated)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			`INSERT INTO bills (identifier, session, title, url, status, last_checked_at, last_updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			snap.Identifier, session, snap.Title, snap.SourceURL, snap.Status,
			timeToString(now), timeToString(now),
		)
		if err != nil {
			return 0, false, err
		}
		id, err := res.LastInsertId()
		return id, true, err
	case err != nil:
		return 0, false, err
	}

	changed := existing.Title != snap.Title || existing.URL != snap.SourceURL || existing.Status != snap.Status
	lastUpdated := updated
	if changed {
		lastUpdated = timeToString(now)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE bills SET title = ?, url = ?, status = ?, last_checked_at = ?, last_updated_at = ? WHERE id = ?`,
		snap.Title, snap.SourceURL, snap.Status, timeToString(now), lastUpdated, existing.ID,
	)
	return existing.ID, changed, err
}

// GetBill returns the persisted row for one identifier.
func (s *Store) GetBill(ctx context.Context, identifier string) (bill.Record, bool, error) {
	var rec bill.Record
	var checked, updated string
	err := s.db.QueryRowxContext(ctx,
		`SELECT id, identifier, session, title, url, status, last_checked_at, last_updated_at FROM bills WHERE identifier = ?`,
		identifier,
	).Scan(&rec.ID, &rec.Identifier, &rec.Session, &rec.Title, &rec.URL, &rec.Status, &checked, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return bill.Record{}, false, nil
	}
	if err != nil {
		return bill.Record{}, false, &PersistenceError{Op: "bill get", Err: err}
	}
	rec.LastCheckedAt, _ = time.Parse(time.RFC3339Nano, checked)
	rec.LastUpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return rec, true, nil
}

// HasHistoryRow reports whether the exact action row is already persisted.
func (s *Store) HasHistoryRow(ctx context.Context, identifier, actionDate, actionText string) (bool, error) {
	var n int
	err := s.db.QueryRowxContext(ctx,
		`SELECT COUNT(*) FROM bill_history h JOIN bills b ON b.id = h.bill_id
		 WHERE b.identifier = ? AND h.action_date = ? AND h.action_text = ?`,
		identifier, actionDate, actionText,
	).Scan(&n)
	if err != nil {
		return false, &PersistenceError{Op: "history lookup", Err: err}
	}
	return n > 0, nil
}

// CountHistory returns the number of persisted action rows for one bill.
func (s *Store) CountHistory(ctx context.Context, identifier string) (int, error) {
	var n int
	err := s.db.QueryRowxContext(ctx,
		`SELECT COUNT(*) FROM bill_history h JOIN bills b ON b.id = h.bill_id WHERE b.identifier = ?`,
		identifier,
	).Scan(&n)
	if err != nil {
		return 0, &PersistenceError{Op: "history count", Err: err}
	}
	return n, nil
}

func (s *Store) GetSeen(ctx context.Context, itemID string) (bill.SeenState, bool, error) {
	var state bill.SeenState
	var seenAt string
	err := s.db.QueryRowxContext(ctx,
		`SELECT item_id, content_hash, last_seen_at FROM seen_state WHERE item_id = ?`, itemID,
	).Scan(&state.ItemID, &state.ContentHash, &seenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return bill.SeenState{}, false, nil
	}
	if err != nil {
		return bill.SeenState{}, false, &PersistenceError{Op: "seen get", Err: err}
	}
	state.LastSeenAt, _ = time.Parse(time.RFC3339Nano, seenAt)
	return state, true, nil
}

func (s *Store) UpsertSeen(ctx context.Context, state bill.SeenState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO seen_state (item_id, content_hash, last_seen_at) VALUES (?, ?, ?)`,
		state.ItemID, state.ContentHash, timeToString(state.LastSeenAt),
	)
	if err != nil {
		return &PersistenceError{Op: "seen upsert", Err: err}
	}
	return nil
}

// InsertBrief stores an immutable brief in its own transaction, independent
// of the bill/history write.
func (s *Store) InsertBrief(ctx context.Context, b bill.Brief) error {
	analysis, err := json.Marshal(b.Analysis)
	if err != nil {
		return &PersistenceError{Op: "brief marshal", Err: err}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO briefs (brief_id, bill_identifier, bill_title, item_id, source_hash, created_at, analysis)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.BriefID, b.BillIdentifier, b.BillTitle, b.ItemID, b.SourceHash,
		timeToString(b.CreatedAt), string(analysis),
	)
	if err != nil {
		return &PersistenceError{Op: "brief insert", Err: err}
	}
	return nil
}

// GetBrief loads one brief by ID.
func (s *Store) GetBrief(ctx context.Context, briefID string) (bill.Brief, bool, error) {
	row := s.db.QueryRowxContext(ctx,
		`SELECT brief_id, bill_identifier, bill_title, item_id, source_hash, created_at, analysis
		 FROM briefs WHERE brief_id = ?`, briefID)
	b, err := scanBrief(row)
	if errors.Is(err, sql.ErrNoRows) {
		return bill.Brief{}, false, nil
	}
	if err != nil {
		return bill.Brief{}, false, &PersistenceError{Op: "brief get", Err: err}
	}
	return b, true, nil
}

// ListBriefs returns briefs for one bill, newest first.
func (s *Store) ListBriefs(ctx context.Context, identifier string) ([]bill.Brief, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT brief_id, bill_identifier, bill_title, item_id, source_hash, created_at, analysis
		 FROM briefs WHERE bill_identifier = ? ORDER BY created_at DESC`, identifier)
	if err != nil {
		return nil, &PersistenceError{Op: "brief list", Err: err}
	}
	defer rows.Close()

	var out []bill.Brief
	for rows.Next() {
		b, err := scanBrief(rows)
		if err != nil {
			return nil, &PersistenceError{Op: "brief scan", Err: err}
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBrief(row rowScanner) (bill.Brief, error) {
	var b bill.Brief
	var createdAt, analysis string
	if err := row.Scan(&b.BriefID, &b.BillIdentifier, &b.BillTitle, &b.ItemID, &b.SourceHash, &createdAt, &analysis); err != nil {
		return bill.Brief{}, err
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if err := json.Unmarshal([]byte(analysis), &b.Analysis); err != nil {
		return bill.Brief{}, err
	}
	return b, nil
}

// SaveRun persists the run record regardless of per-candidate failures.
func (s *Store) SaveRun(ctx context.Context, rec bill.RunRecord) (int64, error) {
	stats, err := json.Marshal(rec.Stats)
	if err != nil {
		return 0, &PersistenceError{Op: "run marshal", Err: err}
	}
	errList, err := json.Marshal(rec.Errors)
	if err != nil {
		return 0, &PersistenceError{Op: "run marshal", Err: err}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (started_at, completed_at, status, stats, errors) VALUES (?, ?, ?, ?, ?)`,
		timeToString(rec.StartedAt), timeToString(rec.CompletedAt), rec.Status, string(stats), string(errList),
	)
	if err != nil {
		return 0, &PersistenceError{Op: "run insert", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &PersistenceError{Op: "run id", Err: err}
	}
	return id, nil
}

func timeToString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
