package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"eventocc/internal/civil"
	appLog "eventocc/internal/log"
	"eventocc/internal/model"
)

var ErrNotFound = errors.New("storage: not found")

// Storage persists rules and their materialized occurrences. Occurrence rows
// are never deleted.
type Storage struct {
	db  *sql.DB
	now func() time.Time
}

func New(dbPath string) (*Storage, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection keeps ":memory:" databases coherent and serializes
	// writers for file databases.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS rules (
			id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS occurrences (
			rule_id TEXT NOT NULL REFERENCES rules(id),
			date TEXT NOT NULL,
			start_time TEXT NOT NULL DEFAULT '',
			end_time TEXT NOT NULL DEFAULT '',
			timezone TEXT NOT NULL DEFAULT '',
			max_capacity INTEGER,
			state TEXT NOT NULL DEFAULT 'SCHEDULED',
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (rule_id, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_occurrences_date ON occurrences(date)`,
		// State set through SetOccurrenceState; re-expansion keeps it.
		`ALTER TABLE occurrences ADD COLUMN operator_state TEXT`,
		`UPDATE occurrences SET operator_state = state WHERE state = 'SOLD_OUT' AND operator_state IS NULL`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// Ignore "duplicate column" errors for ALTER TABLE
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("exec migration: %w", err)
			}
		}
	}
	return nil
}

// SaveRule inserts or replaces a rule definition.
func (s *Storage) SaveRule(ctx context.Context, rule model.RecurrenceRule) error {
	if rule.ID == "" {
		return errors.New("rule id is required")
	}
	payload, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("marshal rule: %w", err)
	}
	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rules (id, payload, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		rule.ID, string(payload), now, now)
	if err != nil {
		return fmt.Errorf("save rule %s: %w", rule.ID, err)
	}
	return nil
}

func (s *Storage) GetRule(ctx context.Context, id string) (model.RecurrenceRule, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM rules WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RecurrenceRule{}, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.RecurrenceRule{}, fmt.Errorf("get rule %s: %w", id, err)
	}
	var rule model.RecurrenceRule
	if err := json.Unmarshal([]byte(payload), &rule); err != nil {
		return model.RecurrenceRule{}, fmt.Errorf("decode rule %s: %w", id, err)
	}
	return rule, nil
}

func (s *Storage) ListRules(ctx context.Context) ([]model.RecurrenceRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	rules := make([]model.RecurrenceRule, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rule model.RecurrenceRule
		if err := json.Unmarshal([]byte(payload), &rule); err != nil {
			return nil, fmt.Errorf("decode rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ReplaceOccurrences stores the result of a fresh expansion for a rule.
//
// Dates present in both the old and new sets take the new times. Their state
// follows the new expansion when it cancels the date; otherwise a state set
// through SetOccurrenceState (CANCELLED or SOLD_OUT) is kept. Previously
// stored dates missing from the new set are flagged CANCELLED rather than
// deleted.
func (s *Storage) ReplaceOccurrences(ctx context.Context, ruleID string, occs []model.Occurrence) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := s.now().UTC()
	keep := make(map[string]struct{}, len(occs))
	for _, occ := range occs {
		keep[occ.Date.String()] = struct{}{}
		var capacity sql.NullInt64
		if occ.MaxCapacity != nil {
			capacity = sql.NullInt64{Int64: int64(*occ.MaxCapacity), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO occurrences (rule_id, date, start_time, end_time, timezone, max_capacity, state, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(rule_id, date) DO UPDATE SET
				start_time = excluded.start_time,
				end_time = excluded.end_time,
				timezone = excluded.timezone,
				max_capacity = excluded.max_capacity,
				state = CASE
					WHEN excluded.state = 'CANCELLED' THEN 'CANCELLED'
					WHEN occurrences.operator_state IS NOT NULL THEN occurrences.operator_state
					ELSE excluded.state
				END,
				updated_at = excluded.updated_at`,
			ruleID, occ.Date.String(), occ.StartTime, occ.EndTime, occ.Timezone, capacity, string(occ.State), now)
		if err != nil {
			return fmt.Errorf("upsert occurrence %s/%s: %w", ruleID, occ.Date, err)
		}
	}

	existing, err := s.occurrenceDates(ctx, tx, ruleID)
	if err != nil {
		return err
	}
	dropped := 0
	for _, d := range existing {
		if _, ok := keep[d]; ok {
			continue
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE occurrences SET state = 'CANCELLED', updated_at = ? WHERE rule_id = ? AND date = ? AND state != 'CANCELLED'`,
			now, ruleID, d)
		if err != nil {
			return fmt.Errorf("cancel stale occurrence %s/%s: %w", ruleID, d, err)
		}
		dropped++
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	appLog.Debug("occurrences stored", "rule_id", ruleID, "count", len(occs), "stale", dropped)
	return nil
}

func (s *Storage) occurrenceDates(ctx context.Context, tx *sql.Tx, ruleID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT date FROM occurrences WHERE rule_id = ?`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("list occurrence dates: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListOccurrences returns every stored occurrence of a rule, oldest first.
func (s *Storage) ListOccurrences(ctx context.Context, ruleID string) ([]model.Occurrence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, start_time, end_time, timezone, max_capacity, state
		FROM occurrences WHERE rule_id = ? ORDER BY date`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("list occurrences: %w", err)
	}
	defer rows.Close()

	out := make([]model.Occurrence, 0)
	for rows.Next() {
		var (
			date, state string
			capacity    sql.NullInt64
			occ         model.Occurrence
		)
		if err := rows.Scan(&date, &occ.StartTime, &occ.EndTime, &occ.Timezone, &capacity, &state); err != nil {
			return nil, err
		}
		if occ.Date, err = civil.ParseISO(date); err != nil {
			return nil, fmt.Errorf("stored occurrence date %q: %w", date, err)
		}
		occ.State = model.State(state)
		if capacity.Valid {
			c := int(capacity.Int64)
			occ.MaxCapacity = &c
		}
		out = append(out, occ)
	}
	return out, rows.Err()
}

// SetOccurrenceState applies an operations transition (cancel, sell out,
// reopen) to one stored occurrence. Cancel and sell out stick across
// re-expansion; reopening hands the state back to the rule.
func (s *Storage) SetOccurrenceState(ctx context.Context, ruleID string, d civil.Date, state model.State) error {
	var operator sql.NullString
	if state != model.StateScheduled {
		operator = sql.NullString{String: string(state), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE occurrences SET state = ?, operator_state = ?, updated_at = ? WHERE rule_id = ? AND date = ?`,
		string(state), operator, s.now().UTC(), ruleID, d.String())
	if err != nil {
		return fmt.Errorf("set occurrence state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("occurrence %s/%s: %w", ruleID, d, ErrNotFound)
	}
	return nil
}
