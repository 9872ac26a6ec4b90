package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/saltyscope/internal/domain/model"
	"github.com/okian/saltyscope/pkg/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS state (
    key        TEXT PRIMARY KEY,
    value      TEXT    NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    match_id    TEXT    NOT NULL,
    decided_at  INTEGER NOT NULL,
    slot1       TEXT    NOT NULL DEFAULT '',
    slot2       TEXT    NOT NULL DEFAULT '',
    mode        TEXT    NOT NULL,
    tier        TEXT    NOT NULL DEFAULT '',
    target      INTEGER NOT NULL DEFAULT 0,
    target_name TEXT    NOT NULL DEFAULT '',
    amount      INTEGER NOT NULL DEFAULT 0,
    balance     INTEGER NOT NULL DEFAULT 0,
    placed      INTEGER NOT NULL DEFAULT 0,
    reason      TEXT    NOT NULL,
    rationale   TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_decisions_at ON decisions(decided_at DESC);
`

const (
	keyPolicy   = "policy"
	keySnapshot = "snapshot"

	defaultRetention  = 30 * 24 * time.Hour
	defaultMaxHistory = 500
)

// SQLiteStore implements Store on a single SQLite file (pure Go driver).
type SQLiteStore struct {
	db         *sql.DB
	retention  time.Duration
	maxHistory int
	now        func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path. ":memory:" works for tests.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("repository: open %q: %w", path, err)
	}
	// single writer; also keeps ":memory:" on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: apply schema: %w", err)
	}

	s := &SQLiteStore{
		db:         db,
		retention:  defaultRetention,
		maxHistory: defaultMaxHistory,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.prune(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) prune(ctx context.Context) error {
	cutoff := s.now().Add(-s.retention).UnixNano()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM decisions WHERE decided_at < ?`, cutoff); err != nil {
		return fmt.Errorf("repository: prune decisions: %w", err)
	}
	return nil
}

func (s *SQLiteStore) put(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("repository: encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), s.now().UnixNano())
	if err != nil {
		metrics.RecordErrorByComponent("repository", "write")
		return fmt.Errorf("repository: save %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) get(ctx context.Context, key string, v any) error {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		metrics.RecordErrorByComponent("repository", "read")
		return fmt.Errorf("repository: load %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("repository: decode %s: %w", key, err)
	}
	return nil
}

// LoadPolicy returns the saved policy.
func (s *SQLiteStore) LoadPolicy(ctx context.Context) (model.Policy, error) {
	var p model.Policy
	if err := s.get(ctx, keyPolicy, &p); err != nil {
		return model.Policy{}, err
	}
	return p, nil
}

// SavePolicy replaces the saved policy.
func (s *SQLiteStore) SavePolicy(ctx context.Context, p model.Policy) error {
	return s.put(ctx, keyPolicy, p)
}

// LastSnapshot returns the latest saved snapshot.
func (s *SQLiteStore) LastSnapshot(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	if err := s.get(ctx, keySnapshot, &snap); err != nil {
		return model.Snapshot{}, err
	}
	return snap, nil
}

// SaveSnapshot replaces the saved snapshot.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	return s.put(ctx, keySnapshot, snap)
}

// RecordDecision appends one decision to the history.
func (s *SQLiteStore) RecordDecision(ctx context.Context, r model.DecisionRecord) error {
	at := r.At
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decisions
		 (match_id, decided_at, slot1, slot2, mode, tier, target, target_name, amount, balance, placed, reason, rationale)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.MatchID, at.UnixNano(), r.Slot1, r.Slot2, r.Mode.String(), r.Tier,
		int(r.Target), r.TargetName, r.Amount, r.Balance, boolToInt(r.Placed),
		r.Reason.String(), r.Rationale)
	if err != nil {
		metrics.RecordErrorByComponent("repository", "write")
		return fmt.Errorf("repository: record decision: %w", err)
	}
	return nil
}

// History returns up to limit decisions, newest first.
func (s *SQLiteStore) History(ctx context.Context, limit int) ([]model.DecisionRecord, error) {
	if limit <= 0 || limit > s.maxHistory {
		return nil, fmt.Errorf("%w: %d (1..%d)", ErrInvalidLimit, limit, s.maxHistory)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT match_id, decided_at, slot1, slot2, mode, tier, target, target_name,
		        amount, balance, placed, reason, rationale
		   FROM decisions ORDER BY decided_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		metrics.RecordErrorByComponent("repository", "read")
		return nil, fmt.Errorf("repository: query history: %w", err)
	}
	defer rows.Close()

	var out []model.DecisionRecord
	for rows.Next() {
		var (
			r              model.DecisionRecord
			at             int64
			mode, reason   string
			target, placed int
		)
		if err := rows.Scan(&r.MatchID, &at, &r.Slot1, &r.Slot2, &mode, &r.Tier, &target,
			&r.TargetName, &r.Amount, &r.Balance, &placed, &reason, &r.Rationale); err != nil {
			return nil, fmt.Errorf("repository: scan history: %w", err)
		}
		r.At = time.Unix(0, at).UTC()
		r.Mode = parseMode(mode)
		r.Target = model.Slot(target)
		r.Placed = placed != 0
		r.Reason = model.ParseReason(reason)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: iterate history: %w", err)
	}
	return out, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func parseMode(s string) model.EventMode {
	var m model.EventMode
	_ = m.UnmarshalJSON([]byte(`"` + s + `"`))
	return m
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
