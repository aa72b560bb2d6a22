// Package dotfiles implements the dotfile store: named text files kept
// with revision history in SQLite, plus a small JSON metadata blob
// recording when each file was last saved.
package dotfiles

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	_ "modernc.org/sqlite"

	"github.com/stellarlinkco/webmux/internal/wire"
)

// Store wraps a SQLite database holding every dotfile's current
// content plus its revision history.
type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn+"?_pragma=journal_mode(wal)")
	if err != nil {
		return nil, fmt.Errorf("open dotfiles db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping dotfiles db: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate dotfiles db: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS dotfiles (
			path TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			updated_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS dotfile_revisions (
			path TEXT NOT NULL,
			content TEXT NOT NULL,
			saved_at TEXT NOT NULL
		);
	`)
	return err
}

// List returns every stored dotfile's current content.
func (s *Store) List() []wire.Dotfile {
	rows, err := s.db.Query(`SELECT path, content FROM dotfiles ORDER BY path`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []wire.Dotfile
	for rows.Next() {
		var d wire.Dotfile
		if err := rows.Scan(&d.Path, &d.Content); err != nil {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Save upserts path's content, appending the previous content (if any)
// to the revision history before overwriting it, and stamps the
// metadata blob's lastSavedAt field.
func (s *Store) Save(path, content string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var prevContent string
	err = tx.QueryRow(`SELECT content FROM dotfiles WHERE path = ?`, path).Scan(&prevContent)
	if err == nil {
		if _, err := tx.Exec(
			`INSERT INTO dotfile_revisions (path, content, saved_at) VALUES (?, ?, ?)`,
			path, prevContent, time.Now().UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("archive previous revision: %w", err)
		}
	} else if err != sql.ErrNoRows {
		return fmt.Errorf("check existing dotfile: %w", err)
	}

	metadata, err := sjson.Set("{}", "lastSavedAt", time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("build metadata: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO dotfiles (path, content, metadata, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET content = excluded.content, metadata = excluded.metadata, updated_at = excluded.updated_at`,
		path, content, metadata, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save dotfile: %w", err)
	}
	return tx.Commit()
}

// Delete removes path and its revision history.
func (s *Store) Delete(path string) error {
	res, err := s.db.Exec(`DELETE FROM dotfiles WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("delete dotfile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("dotfile %q not found", path)
	}
	if _, err := s.db.Exec(`DELETE FROM dotfile_revisions WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete revision history: %w", err)
	}
	return nil
}

// Revisions returns every archived revision's content for path, oldest
// first.
func (s *Store) Revisions(path string) ([]string, error) {
	rows, err := s.db.Query(`SELECT content FROM dotfile_revisions WHERE path = ? ORDER BY saved_at`, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			continue
		}
		out = append(out, content)
	}
	return out, nil
}

// LastSavedAt reports a dotfile's metadata-recorded save time, as
// stored by Save.
func (s *Store) LastSavedAt(path string) (string, error) {
	var metadata string
	err := s.db.QueryRow(`SELECT metadata FROM dotfiles WHERE path = ?`, path).Scan(&metadata)
	if err != nil {
		return "", err
	}
	return gjson.Get(metadata, "lastSavedAt").String(), nil
}
