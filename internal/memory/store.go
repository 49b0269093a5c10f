// Package memory provides long-term memory storage for the agent.
// Records are remembered with an optional tag, recalled by substring
// search, and optionally pinned so they ride along in every system
// prompt as core memory.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Record is one remembered piece of information.
type Record struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	Tag       string    `json:"tag,omitempty"`    // Free-form grouping label
	Source    string    `json:"source,omitempty"` // Document this was imported from
	Pinned    bool      `json:"pinned"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats summarizes the store contents.
type Stats struct {
	Total  int `json:"total"`
	Pinned int `json:"pinned"`
}

// Store manages memory persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a memory store using the given database path.
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

// NewStoreWithDB creates a memory store using an existing database connection.
func NewStoreWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content TEXT NOT NULL,
			tag TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			pinned INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_memories_tag ON memories(tag);
		CREATE INDEX IF NOT EXISTS idx_memories_source ON memories(source);
		CREATE INDEX IF NOT EXISTS idx_memories_pinned ON memories(pinned);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Remember stores a new memory and returns its id. Ids are assigned
// monotonically by the database.
func (s *Store) Remember(ctx context.Context, content, tag string) (int64, error) {
	if strings.TrimSpace(content) == "" {
		return 0, fmt.Errorf("empty content")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (content, tag, created_at)
		VALUES (?, ?, ?)
	`, content, tag, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("insert memory: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// RememberImported stores a memory attributed to a source document.
// Used by the markdown importer so re-imports can be made clean.
func (s *Store) RememberImported(ctx context.Context, content, tag, source string) (int64, error) {
	if strings.TrimSpace(content) == "" {
		return 0, fmt.Errorf("empty content")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (content, tag, source, created_at)
		VALUES (?, ?, ?, ?)
	`, content, tag, source, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("insert memory: %w", err)
	}
	return res.LastInsertId()
}

// Recall searches memories by substring match against content and tag,
// newest first, returning at most k records. An empty or whitespace
// query recalls nothing.
func (s *Store) Recall(ctx context.Context, query string, k int) ([]Record, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if k <= 0 {
		return nil, nil
	}

	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, tag, source, pinned, created_at
		FROM memories
		WHERE content LIKE ? ESCAPE '\' OR tag LIKE ? ESCAPE '\'
		ORDER BY id DESC
		LIMIT ?
	`, pattern, pattern, k)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// CoreMemory returns all pinned records, oldest first, for inclusion
// in the system prompt.
func (s *Store) CoreMemory(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, tag, source, pinned, created_at
		FROM memories
		WHERE pinned = 1
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load core memory: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Pin marks a record as core memory. Unknown ids are an error.
func (s *Store) Pin(ctx context.Context, id int64, pinned bool) error {
	val := 0
	if pinned {
		val = 1
	}
	res, err := s.db.ExecContext(ctx, `UPDATE memories SET pinned = ? WHERE id = ?`, val, id)
	if err != nil {
		return fmt.Errorf("pin memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("memory %d not found", id)
	}
	return nil
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("memory %d not found", id)
	}
	return nil
}

// DeleteBySource removes every record imported from the given source
// document. Returns the number of records removed.
func (s *Store) DeleteBySource(ctx context.Context, source string) (int64, error) {
	if source == "" {
		return 0, fmt.Errorf("empty source")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE source = ?`, source)
	if err != nil {
		return 0, fmt.Errorf("delete by source: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns counts for diagnostics.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(pinned), 0) FROM memories
	`).Scan(&st.Total, &st.Pinned)
	if err != nil {
		return Stats{}, fmt.Errorf("count memories: %w", err)
	}
	return st, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		var pinned int
		var createdAt string
		if err := rows.Scan(&r.ID, &r.Content, &r.Tag, &r.Source, &pinned, &createdAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		r.Pinned = pinned != 0
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			r.CreatedAt = t
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
