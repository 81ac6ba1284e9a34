package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/amosWeiskopf/portalcrawl/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS pages (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	url           TEXT NOT NULL,
	title         TEXT NOT NULL,
	title_error   TEXT,
	content       TEXT NOT NULL,
	content_error TEXT,
	links         TEXT NOT NULL,
	snapshot      TEXT,
	crawled_at    DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);
CREATE TABLE IF NOT EXISTS discovered_urls (
	id  INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL
);
`

// SQLite stores page records and discovered URLs in a single database
// file. Every Append is its own statement, so each row is committed before
// Append returns.
type SQLite struct {
	path string
	db   *sql.DB
}

// NewSQLite returns a database sink for path. The file is opened on Reset.
func NewSQLite(path string) *SQLite {
	return &SQLite{path: path}
}

// Reset opens the database, creates the schema and removes rows from any
// earlier run.
func (s *SQLite) Reset() error {
	ctx := context.Background()
	if s.db == nil {
		if dir := filepath.Dir(s.path); dir != "" {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return &PersistenceError{Path: s.path, Op: "reset", Err: err}
			}
		}
		db, err := sql.Open("sqlite", s.path+"?mode=rwc")
		if err != nil {
			return &PersistenceError{Path: s.path, Op: "open", Err: err}
		}
		db.SetMaxOpenConns(1) // SQLite only supports one writer
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(time.Hour)
		s.db = db
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return &PersistenceError{Path: s.path, Op: "reset", Err: fmt.Errorf("create tables: %w", err)}
	}
	for _, table := range []string{"pages", "discovered_urls"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return &PersistenceError{Path: s.path, Op: "reset", Err: err}
		}
	}
	return nil
}

// Append inserts one page record.
func (s *SQLite) Append(rec models.PageRecord) error {
	if s.db == nil {
		return &PersistenceError{Path: s.path, Op: "append", Err: errNotReset}
	}
	links := rec.Links
	if links == nil {
		links = []string{}
	}
	linksJSON, err := json.Marshal(links)
	if err != nil {
		return &PersistenceError{Path: s.path, Op: "encode", Err: err}
	}

	_, err = s.db.ExecContext(context.Background(), `
		INSERT INTO pages (run_id, seq, url, title, title_error, content, content_error, links, snapshot, crawled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.RunID,
		rec.Seq,
		rec.URL,
		rec.TitleText(),
		nullable(rec.Title),
		rec.ContentText(),
		nullable(rec.Content),
		string(linksJSON),
		sql.NullString{String: rec.Snapshot, Valid: rec.Snapshot != ""},
		rec.CrawledAt.UTC(),
	)
	if err != nil {
		return &PersistenceError{Path: s.path, Op: "append", Err: err}
	}
	return nil
}

func nullable(f models.Field) sql.NullString {
	return sql.NullString{String: f.Reason, Valid: f.Failed}
}

// URLSink returns a sink that records discovered URLs in the same
// database. Its Reset and Close are no-ops; the owning SQLite sink handles
// both.
func (s *SQLite) URLSink() URLSink {
	return sqliteURLs{s}
}

// Close closes the database.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	db := s.db
	s.db = nil
	if err := db.Close(); err != nil {
		return &PersistenceError{Path: s.path, Op: "close", Err: err}
	}
	return nil
}

type sqliteURLs struct {
	s *SQLite
}

func (u sqliteURLs) Reset() error { return nil }
func (u sqliteURLs) Close() error { return nil }

func (u sqliteURLs) Append(url string) error {
	if u.s.db == nil {
		return &PersistenceError{Path: u.s.path, Op: "append", Err: errNotReset}
	}
	if _, err := u.s.db.ExecContext(context.Background(), "INSERT INTO discovered_urls (url) VALUES (?)", url); err != nil {
		return &PersistenceError{Path: u.s.path, Op: "append", Err: err}
	}
	return nil
}
