package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/fitdesk/enrollkit/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Drafts ---

func (s *LibSQLStore) SaveDraft(ctx context.Context, snap *DraftSnapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO drafts (wizard_id, definition, mode, branch_id, record_id, step_index, fields, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(wizard_id) DO UPDATE SET
			step_index=excluded.step_index, fields=excluded.fields, updated_at=excluded.updated_at`,
		snap.WizardID, snap.Definition, string(snap.Mode), nullStr(snap.BranchID),
		nullStr(snap.RecordID), snap.StepIndex, snap.Fields, timeOrNow(snap.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetDraft(ctx context.Context, wizardID string) (*DraftSnapshot, error) {
	snap := &DraftSnapshot{}
	var mode string
	var branchID, recordID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT wizard_id, definition, mode, branch_id, record_id, step_index, fields, updated_at
		 FROM drafts WHERE wizard_id = ?`, wizardID,
	).Scan(&snap.WizardID, &snap.Definition, &mode, &branchID, &recordID,
		&snap.StepIndex, &snap.Fields, &snap.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("draft", wizardID)
	}
	if err != nil {
		return nil, err
	}
	snap.Mode = schema.Mode(mode)
	snap.BranchID = branchID.String
	snap.RecordID = recordID.String
	return snap, nil
}

func (s *LibSQLStore) DeleteDraft(ctx context.Context, wizardID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE wizard_id = ?`, wizardID)
	return err
}

func (s *LibSQLStore) ListDrafts(ctx context.Context) ([]*DraftSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT wizard_id, definition, mode, branch_id, record_id, step_index, fields, updated_at
		 FROM drafts ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []*DraftSnapshot
	for rows.Next() {
		snap := &DraftSnapshot{}
		var mode string
		var branchID, recordID sql.NullString
		if err := rows.Scan(&snap.WizardID, &snap.Definition, &mode, &branchID, &recordID,
			&snap.StepIndex, &snap.Fields, &snap.UpdatedAt); err != nil {
			return nil, err
		}
		snap.Mode = schema.Mode(mode)
		snap.BranchID = branchID.String
		snap.RecordID = recordID.String
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// --- Events ---

func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Get next sequence number for this wizard
	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE wizard_id = ?`, event.WizardID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	payload, err := nullableJSON(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	ts := timeOrNow(event.Timestamp)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (wizard_id, step_id, slot, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.WizardID, nullStr(event.StepID), nullStr(event.Slot), event.Type, payload, ts, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

func (s *LibSQLStore) GetEvents(ctx context.Context, wizardID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, wizard_id, step_id, slot, event_type, payload, timestamp, sequence
		 FROM events WHERE wizard_id = ? AND sequence > ? ORDER BY sequence ASC`,
		wizardID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var stepID, slot, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.WizardID, &stepID, &slot, &e.Type, &payload,
			&e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.StepID = stepID.String
		e.Slot = slot.String
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal event payload: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Temp handles ---

func (s *LibSQLStore) RecordTempHandle(ctx context.Context, h *TempHandle) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO temp_handles (temp_id, wizard_id, slot, url, name, issued_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(temp_id) DO NOTHING`,
		h.TempID, h.WizardID, h.Slot, nullStr(h.URL), nullStr(h.Name), timeOrNow(h.IssuedAt),
	)
	return err
}

func (s *LibSQLStore) ClaimTempHandles(ctx context.Context, tempIDs []string) error {
	if len(tempIDs) == 0 {
		return nil
	}
	query := fmt.Sprintf(
		`UPDATE temp_handles SET claimed_at = CURRENT_TIMESTAMP WHERE temp_id IN (%s)`,
		placeholders(len(tempIDs)))
	_, err := s.db.ExecContext(ctx, query, toAnySlice(tempIDs)...)
	return err
}

func (s *LibSQLStore) UnclaimedTempHandles(ctx context.Context, issuedBefore time.Time) ([]*TempHandle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT temp_id, wizard_id, slot, url, name, issued_at, claimed_at
		 FROM temp_handles WHERE claimed_at IS NULL AND issued_at < ?
		 ORDER BY issued_at ASC`, issuedBefore,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var handles []*TempHandle
	for rows.Next() {
		h := &TempHandle{}
		var url, name sql.NullString
		var claimed sql.NullTime
		if err := rows.Scan(&h.TempID, &h.WizardID, &h.Slot, &url, &name, &h.IssuedAt, &claimed); err != nil {
			return nil, err
		}
		h.URL = url.String
		h.Name = name.String
		if claimed.Valid {
			h.ClaimedAt = &claimed.Time
		}
		handles = append(handles, h)
	}
	return handles, rows.Err()
}

func (s *LibSQLStore) DeleteTempHandles(ctx context.Context, tempIDs []string) error {
	if len(tempIDs) == 0 {
		return nil
	}
	query := fmt.Sprintf(
		`DELETE FROM temp_handles WHERE temp_id IN (%s)`, placeholders(len(tempIDs)))
	_, err := s.db.ExecContext(ctx, query, toAnySlice(tempIDs)...)
	return err
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.EnrollError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableJSON(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toAnySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

var _ Store = (*LibSQLStore)(nil)
