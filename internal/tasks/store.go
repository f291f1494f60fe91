package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"dayplan/internal/model"
)

const currentVersion = 1

// ErrNotFound is returned when a task id does not exist in the store.
var ErrNotFound = errors.New("task not found")

// Store is the SQLite-backed task store. The timeline core only reads
// from it; mutation happens through the API handlers.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewMemory creates an in-memory store for testing.
func NewMemory() (*Store, error) {
	return New(":memory:")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version >= currentVersion {
		return nil
	}

	if version < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}

	_, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	return err
}

func (s *Store) migrateV1() error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS tasks (
		id                 TEXT PRIMARY KEY,
		title              TEXT NOT NULL,
		completed          INTEGER NOT NULL DEFAULT 0,
		source             TEXT NOT NULL DEFAULT 'Local',
		parent_event_id    TEXT,
		time_spent_seconds INTEGER NOT NULL DEFAULT 0,
		is_active          INTEGER NOT NULL DEFAULT 0,
		created_at         TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_event_id);
	`
	_, err := s.db.Exec(ddl)
	return err
}

// List returns all tasks in insertion order. The order matters: the
// resolver schedules standalone tasks FIFO.
func (s *Store) List(ctx context.Context) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, completed, source, COALESCE(parent_event_id, ''), time_spent_seconds, is_active
		FROM tasks ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		var t model.Task
		var completed, active int
		if err := rows.Scan(&t.ID, &t.Title, &completed, &t.Source, &t.ParentEventID, &t.TimeSpentSeconds, &active); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Completed = completed != 0
		t.IsActive = active != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

// Get returns a single task by id.
func (s *Store) Get(ctx context.Context, id string) (model.Task, error) {
	var t model.Task
	var completed, active int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, completed, source, COALESCE(parent_event_id, ''), time_spent_seconds, is_active
		FROM tasks WHERE id = ?`, id).
		Scan(&t.ID, &t.Title, &completed, &t.Source, &t.ParentEventID, &t.TimeSpentSeconds, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, ErrNotFound
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("get task: %w", err)
	}
	t.Completed = completed != 0
	t.IsActive = active != 0
	return t, nil
}

// Create inserts a new task, assigning a fresh id when none is given,
// and returns the stored record.
func (s *Store) Create(ctx context.Context, t model.Task) (model.Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Source == "" {
		t.Source = model.TaskSourceLocal
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, completed, source, parent_event_id, time_spent_seconds, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, boolInt(t.Completed), string(t.Source), nullable(t.ParentEventID), t.TimeSpentSeconds, boolInt(t.IsActive))
	if err != nil {
		return model.Task{}, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// Update rewrites a task's mutable fields.
func (s *Store) Update(ctx context.Context, t model.Task) (model.Task, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET title = ?, completed = ?, source = ?, parent_event_id = ?, time_spent_seconds = ?, is_active = ?
		WHERE id = ?`,
		t.Title, boolInt(t.Completed), string(t.Source), nullable(t.ParentEventID), t.TimeSpentSeconds, boolInt(t.IsActive), t.ID)
	if err != nil {
		return model.Task{}, fmt.Errorf("update task: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return model.Task{}, ErrNotFound
	}
	return t, nil
}

// AddTimeSpent accumulates seconds onto a task's time-spent counter.
func (s *Store) AddTimeSpent(ctx context.Context, id string, seconds int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET time_spent_seconds = time_spent_seconds + ? WHERE id = ?`, seconds, id)
	if err != nil {
		return fmt.Errorf("add time spent: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a task by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullable maps an empty string onto SQL NULL so parent_event_id stays
// NULL for standalone tasks.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
