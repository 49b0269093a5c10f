// Package mission implements the directive queue between the manager
// bot and its subordinates. Directives live in a shared SQLite table;
// a dispatcher claims pending rows for its bot and drives them through
// the agent loop.
package mission

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Directive lifecycle. Transitions are one-way:
// pending -> processing -> completed or failed.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Task is one directive row.
type Task struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Target    string    `json:"target"`
	Command   string    `json:"command"`
	Payload   string    `json:"payload,omitempty"`
	Status    string    `json:"status"`
	Result    string    `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store handles directive persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a mission store with SQLite backend.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// NewStoreWithDB creates a mission store using an existing database
// connection.
func NewStoreWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bot_directives (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender TEXT NOT NULL,
		target TEXT NOT NULL,
		command TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		result TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_directives_target_status ON bot_directives(target, status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateTask queues a new pending directive for target.
func (s *Store) CreateTask(ctx context.Context, sender, target, command, payload string) (*Task, error) {
	if sender == "" || target == "" {
		return nil, fmt.Errorf("sender and target are required")
	}
	if command == "" {
		return nil, fmt.Errorf("command is required")
	}

	now := time.Now().UTC()
	ts := now.Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_directives (sender, target, command, payload, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sender, target, command, payload, StatusPending, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("insert directive: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return &Task{
		ID:        id,
		Sender:    sender,
		Target:    target,
		Command:   command,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// FetchPendingTasks atomically claims every pending directive for
// target, moving it to processing, and returns the claimed tasks
// oldest first. The claim is a single conditional update, so two
// dispatchers polling the same target can never claim the same row.
func (s *Store) FetchPendingTasks(ctx context.Context, target string) ([]*Task, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	rows, err := s.db.QueryContext(ctx, `
		UPDATE bot_directives
		SET status = ?, updated_at = ?
		WHERE status = ? AND target = ?
		RETURNING id, sender, target, command, payload, status, result, created_at, updated_at
	`, StatusProcessing, now, StatusPending, target)
	if err != nil {
		return nil, fmt.Errorf("claim directives: %w", err)
	}
	defer rows.Close()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}

	// RETURNING does not guarantee order.
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

// CompleteTask marks a processing directive as completed with its
// result. Directives in any other state are rejected; terminal states
// are immutable.
func (s *Store) CompleteTask(ctx context.Context, id int64, result string) error {
	return s.finishTask(ctx, id, StatusCompleted, result)
}

// FailTask marks a processing directive as failed with the error text.
func (s *Store) FailTask(ctx context.Context, id int64, errText string) error {
	return s.finishTask(ctx, id, StatusFailed, errText)
}

func (s *Store) finishTask(ctx context.Context, id int64, status, result string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bot_directives
		SET status = ?, result = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, status, result, time.Now().UTC().Format(time.RFC3339Nano), id, StatusProcessing)
	if err != nil {
		return fmt.Errorf("update directive: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("directive %d is not processing", id)
	}
	return nil
}

// GetTask loads one directive by id.
func (s *Store) GetTask(ctx context.Context, id int64) (*Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender, target, command, payload, status, result, created_at, updated_at
		FROM bot_directives WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load directive: %w", err)
	}
	defer rows.Close()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("directive %d not found", id)
	}
	return tasks[0], nil
}

func scanTasks(rows *sql.Rows) ([]*Task, error) {
	var tasks []*Task
	for rows.Next() {
		var t Task
		var createdAt, updatedAt string
		if err := rows.Scan(&t.ID, &t.Sender, &t.Target, &t.Command, &t.Payload,
			&t.Status, &t.Result, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan directive: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			t.CreatedAt = ts
		}
		if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
			t.UpdatedAt = ts
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}
