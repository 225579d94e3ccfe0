package library

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - pre-migration
// 1 - initial schema with kara_id index
const currentSchemaVersion = 1

// Record is one conversion run.
type Record struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Source    string    `json:"source"`
	KaraID    string    `json:"kara_id,omitempty"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	SongDir   string    `json:"song_dir,omitempty"`

	BPM      float64 `json:"bpm"`
	GapMS    int64   `json:"gap_ms"`
	Lines    int     `json:"lines"`
	Notes    int     `json:"notes"`
	Rests    int     `json:"rests"`
	Repairs  int     `json:"repairs"`
	Warnings int     `json:"warnings"`
}

// Library provides durable storage for the conversion ledger.
// Uses SQLite with WAL mode for concurrent read access.
type Library struct {
	db  *sql.DB
	ids IDGenerator
}

// Option configures a Library.
type Option func(*Library)

// WithIDGenerator swaps the record ID source. Tests use this for
// deterministic IDs.
func WithIDGenerator(g IDGenerator) Option {
	return func(l *Library) {
		l.ids = g
	}
}

// Open creates or opens the ledger database at path. Applies required
// pragmas and migrations automatically; idempotent, safe to call on an
// existing ledger.
func Open(path string, opts ...Option) (*Library, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to ledger: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY errors.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	l := &Library{db: db, ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Close closes the database connection.
func (l *Library) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return runMigrations(db)
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		// v1 is the baseline; schema.sql creates everything with
		// IF NOT EXISTS, so there is nothing incremental to do yet.
		version = 1
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Add inserts a conversion record and returns it with ID and CreatedAt
// filled in. A record arriving with an ID already set is written as-is;
// re-adding it is a no-op (ON CONFLICT DO NOTHING), so retried runs do not
// duplicate history.
func (l *Library) Add(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = l.ids.Generate()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.CreatedAt = rec.CreatedAt.UTC().Truncate(time.Second)

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO conversions
		(id, created_at, source, kara_id, title, artist, song_dir,
		 bpm, gap_ms, lines, notes, rests, repairs, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.CreatedAt.Format(time.RFC3339),
		rec.Source,
		rec.KaraID,
		rec.Title,
		rec.Artist,
		rec.SongDir,
		rec.BPM,
		rec.GapMS,
		rec.Lines,
		rec.Notes,
		rec.Rests,
		rec.Repairs,
		rec.Warnings,
	)
	if err != nil {
		return Record{}, fmt.Errorf("write conversion: %w", err)
	}
	return rec, nil
}

// Recent returns the newest records, newest first. UUIDv7 IDs sort by
// creation time, so the ordering never consults created_at. A limit at or
// below zero means 20.
//
// Returns an empty slice (not nil) when the ledger is empty.
func (l *Library) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, created_at, source, kara_id, title, artist, song_dir,
		       bpm, gap_ms, lines, notes, rests, repairs, warnings
		FROM conversions
		ORDER BY id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversions: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversions: %w", err)
	}
	return records, nil
}

// Find retrieves a single record by ID. Returns sql.ErrNoRows if absent.
func (l *Library) Find(ctx context.Context, id string) (Record, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, created_at, source, kara_id, title, artist, song_dir,
		       bpm, gap_ms, lines, notes, rests, repairs, warnings
		FROM conversions
		WHERE id = ?
	`, id)
	return scanRecord(row)
}

// ForKara returns every conversion of one catalogue song, newest first.
// The convert command uses it to tell the user they have been here before.
func (l *Library) ForKara(ctx context.Context, karaID string) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, created_at, source, kara_id, title, artist, song_dir,
		       bpm, gap_ms, lines, notes, rests, repairs, warnings
		FROM conversions
		WHERE kara_id = ?
		ORDER BY id COLLATE BINARY DESC
	`, karaID)
	if err != nil {
		return nil, fmt.Errorf("query conversions for kara %s: %w", karaID, err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversions: %w", err)
	}
	return records, nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		rec     Record
		created string
	)
	err := s.Scan(
		&rec.ID,
		&created,
		&rec.Source,
		&rec.KaraID,
		&rec.Title,
		&rec.Artist,
		&rec.SongDir,
		&rec.BPM,
		&rec.GapMS,
		&rec.Lines,
		&rec.Notes,
		&rec.Rests,
		&rec.Repairs,
		&rec.Warnings,
	)
	if err != nil {
		return Record{}, err
	}

	rec.CreatedAt, err = time.Parse(time.RFC3339, created)
	if err != nil {
		return Record{}, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	return rec, nil
}
