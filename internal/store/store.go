// Package store persists workspace bindings in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"todosync/backend"
)

const schema = `
CREATE TABLE IF NOT EXISTS bindings (
    path TEXT PRIMARY KEY,
    database_id TEXT NOT NULL,
    project_name TEXT NOT NULL,
    status_options TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bindings_pair ON bindings(database_id, project_name);
`

// Store is the SQLite-backed binding store. Paths are stored cleaned, so
// "/a/b/" and "/a/b" address the same binding.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the binding database at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open binding database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize binding schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetTrackedProjects returns every binding ordered by path.
func (s *Store) GetTrackedProjects(ctx context.Context) ([]backend.TrackedProject, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, database_id, project_name, status_options FROM bindings ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list bindings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []backend.TrackedProject
	for rows.Next() {
		p, err := scanBinding(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// FindProject returns the binding for path, or nil when the path is unbound.
func (s *Store) FindProject(ctx context.Context, path string) (*backend.TrackedProject, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT path, database_id, project_name, status_options FROM bindings WHERE path = ?`,
		filepath.Clean(path))
	p, err := scanBinding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// AddOrUpdateProject inserts the binding or replaces the one at the same path.
func (s *Store) AddOrUpdateProject(ctx context.Context, p backend.TrackedProject) error {
	if p.Path == "" || p.DatabaseID == "" {
		return fmt.Errorf("binding requires a path and a database id")
	}

	var options interface{}
	if p.StatusOptions != nil {
		data, err := json.Marshal(p.StatusOptions)
		if err != nil {
			return fmt.Errorf("failed to encode status options: %w", err)
		}
		options = string(data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bindings (path, database_id, project_name, status_options, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			database_id = excluded.database_id,
			project_name = excluded.project_name,
			status_options = excluded.status_options,
			updated_at = excluded.updated_at
	`, filepath.Clean(p.Path), p.DatabaseID, p.ProjectName, options, now, now)
	if err != nil {
		return fmt.Errorf("failed to save binding: %w", err)
	}
	return nil
}

// RemoveProjectByPath deletes the binding at path and reports whether one existed.
func (s *Store) RemoveProjectByPath(ctx context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM bindings WHERE path = ?`, filepath.Clean(path))
	if err != nil {
		return false, fmt.Errorf("failed to remove binding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBinding(row scanner) (backend.TrackedProject, error) {
	var p backend.TrackedProject
	var options sql.NullString
	if err := row.Scan(&p.Path, &p.DatabaseID, &p.ProjectName, &options); err != nil {
		return p, err
	}
	if options.Valid && options.String != "" {
		if err := json.Unmarshal([]byte(options.String), &p.StatusOptions); err != nil {
			return p, fmt.Errorf("corrupt status options for %s: %w", p.Path, err)
		}
	}
	return p, nil
}
