// Package cache keeps the index of downloaded archives in a sqlite database
// so repeated loads reuse local copies.
package cache

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned by Lookup for URLs that were never recorded
var ErrNotFound = errors.New("cache entry not found")

// Entry describes one downloaded file
type Entry struct {
	URL       string
	Path      string
	Size      int64
	SHA256    string
	ETag      string
	FetchedAt time.Time
}

// Valid reports whether the file still exists with the recorded size
func (e Entry) Valid() bool {
	info, err := os.Stat(e.Path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() == e.Size
}

// Index is the persistent url -> file mapping
type Index struct {
	db *sql.DB
}

// Pragmas applied to every pooled connection. Concurrent writers wait up to
// busy_timeout for the lock.
var pragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
}

// dsn adds the connection pragmas to path in the form modernc.org/sqlite reads
func dsn(path string) string {
	q := make([]string, 0, len(pragmas))
	for _, p := range pragmas {
		q = append(q, "_pragma="+p)
	}
	return path + "?" + strings.Join(q, "&")
}

// Open opens (creating if needed) the index at path and migrates it to the
// latest schema.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache index: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Index{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	// Note: m is not closed here because that would close db.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[cache migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// Lookup returns the entry recorded for url
func (ix *Index) Lookup(url string) (Entry, error) {
	row := ix.db.QueryRow(`SELECT url, path, size, sha256, etag, fetched_at FROM downloads WHERE url = ?`, url)

	var e Entry
	if err := row.Scan(&e.URL, &e.Path, &e.Size, &e.SHA256, &e.ETag, &e.FetchedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, url)
		}
		return Entry{}, fmt.Errorf("failed to query cache index: %w", err)
	}
	return e, nil
}

// Put records or replaces the entry for e.URL
func (ix *Index) Put(e Entry) error {
	if e.FetchedAt.IsZero() {
		e.FetchedAt = time.Now()
	}
	_, err := ix.db.Exec(`
		INSERT INTO downloads (url, path, size, sha256, etag, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			path = excluded.path,
			size = excluded.size,
			sha256 = excluded.sha256,
			etag = excluded.etag,
			fetched_at = excluded.fetched_at`,
		e.URL, e.Path, e.Size, e.SHA256, e.ETag, e.FetchedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", e.URL, err)
	}
	return nil
}

// Delete forgets the entry for url; missing entries are not an error
func (ix *Index) Delete(url string) error {
	if _, err := ix.db.Exec(`DELETE FROM downloads WHERE url = ?`, url); err != nil {
		return fmt.Errorf("failed to delete %s: %w", url, err)
	}
	return nil
}

// List returns every entry ordered by URL
func (ix *Index) List() ([]Entry, error) {
	rows, err := ix.db.Query(`SELECT url, path, size, sha256, etag, fetched_at FROM downloads ORDER BY url`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache index: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.URL, &e.Path, &e.Size, &e.SHA256, &e.ETag, &e.FetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database
func (ix *Index) Close() error {
	return ix.db.Close()
}
