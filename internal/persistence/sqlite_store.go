package persistence

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename ("001_init.sql" is 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

// LoadState returns the stored payload for key. ok is false when nothing is stored.
func (s *SQLiteStore) LoadState(ctx context.Context, key string) (payload []byte, ok bool, err error) {
	var raw string
	err = s.db.QueryRowContext(ctx, `SELECT payload FROM app_state WHERE storage_key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load state %s: %w", key, err)
	}
	return []byte(raw), true, nil
}

// SaveState replaces the payload stored under key.
func (s *SQLiteStore) SaveState(ctx context.Context, key string, payload []byte) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO app_state (storage_key, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(storage_key) DO UPDATE SET
			payload=excluded.payload,
			updated_at=excluded.updated_at`,
		key,
		string(payload),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save state %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM app_state WHERE storage_key = ?`, key); err != nil {
		return fmt.Errorf("delete state %s: %w", key, err)
	}
	return nil
}

// RecordDecision stores d, replacing an earlier decision on the same item.
func (s *SQLiteStore) RecordDecision(ctx context.Context, d Decision) error {
	if strings.TrimSpace(d.ItemID) == "" {
		return fmt.Errorf("item id is required")
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO feedback_decisions (workflow_id, item_id, feedback_type, decision, modified_text, notes, decided_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(workflow_id, item_id) DO UPDATE SET
			feedback_type=excluded.feedback_type,
			decision=excluded.decision,
			modified_text=excluded.modified_text,
			notes=excluded.notes,
			decided_at=excluded.decided_at`,
		d.WorkflowID,
		d.ItemID,
		d.FeedbackType,
		d.Decision,
		d.ModifiedText,
		d.Notes,
		d.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("record decision %s: %w", d.ItemID, err)
	}
	return nil
}

// RecordDecisions stores a batch in one transaction.
func (s *SQLiteStore) RecordDecisions(ctx context.Context, ds []Decision) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin decisions batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, d := range ds {
		if d.DecidedAt.IsZero() {
			d.DecidedAt = now
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO feedback_decisions (workflow_id, item_id, feedback_type, decision, modified_text, notes, decided_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(workflow_id, item_id) DO UPDATE SET
				feedback_type=excluded.feedback_type,
				decision=excluded.decision,
				modified_text=excluded.modified_text,
				notes=excluded.notes,
				decided_at=excluded.decided_at`,
			d.WorkflowID, d.ItemID, d.FeedbackType, d.Decision, d.ModifiedText, d.Notes, d.DecidedAt,
		); err != nil {
			return fmt.Errorf("record decision %s: %w", d.ItemID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) LoadDecisions(ctx context.Context, workflowID string) ([]Decision, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT workflow_id, item_id, feedback_type, decision, modified_text, notes, decided_at
		 FROM feedback_decisions
		 WHERE workflow_id = ?
		 ORDER BY decided_at ASC, item_id ASC`,
		workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("load decisions: %w", err)
	}
	defer rows.Close()

	ret := make([]Decision, 0)
	for rows.Next() {
		var d Decision
		if err := rows.Scan(&d.WorkflowID, &d.ItemID, &d.FeedbackType, &d.Decision, &d.ModifiedText, &d.Notes, &d.DecidedAt); err != nil {
			return nil, err
		}
		ret = append(ret, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// ClearDecisions drops every stored decision.
func (s *SQLiteStore) ClearDecisions(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM feedback_decisions`); err != nil {
		return fmt.Errorf("clear decisions: %w", err)
	}
	return nil
}
