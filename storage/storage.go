package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("not found")

// ImageRecord is a cached runway image for a season.
type ImageRecord struct {
	Season   int
	URL      string
	Queen    string
	Category string
	PostedAt time.Time
}

// SeasonStats summarizes what is cached for a season.
type SeasonStats struct {
	Images     int
	Categories int
	Queens     int
}

// DB wraps the SQLite database connection and provides storage operations.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer; serialize through one connection.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, now: time.Now}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runway_images (
		season INTEGER NOT NULL,
		url TEXT NOT NULL,
		queen TEXT,
		category TEXT,
		posted_at DATETIME NOT NULL,
		PRIMARY KEY (season, url)
	);

	CREATE TABLE IF NOT EXISTS queens (
		season INTEGER NOT NULL,
		name TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (season, name)
	);

	CREATE INDEX IF NOT EXISTS idx_queens_position ON queens(season, position);

	CREATE TABLE IF NOT EXISTS leases (
		key TEXT PRIMARY KEY,
		holder TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// CachedURLs returns the set of image URLs already recorded for a season.
func (db *DB) CachedURLs(ctx context.Context, season int) (map[string]struct{}, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT url FROM runway_images WHERE season = ?`, season)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	urls := make(map[string]struct{})
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls[u] = struct{}{}
	}
	return urls, rows.Err()
}

// InsertImages records new images. Rows already present are left untouched.
func (db *DB) InsertImages(ctx context.Context, records []ImageRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR IGNORE INTO runway_images (season, url, queen, category, posted_at)
	VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := db.now()
	for _, r := range records {
		postedAt := r.PostedAt
		if postedAt.IsZero() {
			postedAt = now
		}
		if _, err := stmt.ExecContext(ctx, r.Season, r.URL, nullString(r.Queen), nullString(r.Category), postedAt); err != nil {
			return fmt.Errorf("insert %s: %w", r.URL, err)
		}
	}

	return tx.Commit()
}

// Images returns every cached image for a season in insertion order.
func (db *DB) Images(ctx context.Context, season int) ([]ImageRecord, error) {
	query := `
	SELECT season, url, queen, category, posted_at
	FROM runway_images WHERE season = ? ORDER BY rowid
	`
	rows, err := db.conn.QueryContext(ctx, query, season)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ImageRecord
	for rows.Next() {
		var r ImageRecord
		var queen, category sql.NullString
		if err := rows.Scan(&r.Season, &r.URL, &queen, &category, &r.PostedAt); err != nil {
			return nil, err
		}
		r.Queen = queen.String
		r.Category = category.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// KnownNames returns the queens of a season in the order they were added.
func (db *DB) KnownNames(ctx context.Context, season int) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT name FROM queens WHERE season = ? ORDER BY position`, season)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// AddQueens appends names to a season's known-name list. Names already
// present keep their original position.
func (db *DB) AddQueens(ctx context.Context, season int, names ...string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var next int
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), -1) + 1 FROM queens WHERE season = ?`, season).Scan(&next)
	if err != nil {
		return fmt.Errorf("next position: %w", err)
	}

	for _, name := range names {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO queens (season, name, position) VALUES (?, ?, ?)`,
			season, name, next)
		if err != nil {
			return fmt.Errorf("insert queen %q: %w", name, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			next++
		}
	}

	return tx.Commit()
}

// Stats returns counts of cached images, distinct categories and attributed
// queens for a season.
func (db *DB) Stats(ctx context.Context, season int) (SeasonStats, error) {
	query := `
	SELECT COUNT(*), COUNT(DISTINCT COALESCE(category, '')), COUNT(DISTINCT queen)
	FROM runway_images WHERE season = ?
	`
	var s SeasonStats
	err := db.conn.QueryRowContext(ctx, query, season).Scan(&s.Images, &s.Categories, &s.Queens)
	return s, err
}

// AcquireLease takes the named lease for ttl unless another holder has an
// unexpired claim. It reports whether the lease was acquired.
func (db *DB) AcquireLease(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	now := db.now()
	query := `
	INSERT INTO leases (key, holder, expires_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		holder = excluded.holder,
		expires_at = excluded.expires_at
	WHERE leases.expires_at <= ? OR leases.holder = excluded.holder
	`
	res, err := db.conn.ExecContext(ctx, query, key, holder, now.Add(ttl).UnixNano(), now.UnixNano())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReleaseLease drops the lease if holder still owns it.
func (db *DB) ReleaseLease(ctx context.Context, key, holder string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM leases WHERE key = ? AND holder = ?`, key, holder)
	return err
}

// LeaseHolder returns the current holder of key.
func (db *DB) LeaseHolder(ctx context.Context, key string) (string, error) {
	var holder string
	err := db.conn.QueryRowContext(ctx, `SELECT holder FROM leases WHERE key = ?`, key).Scan(&holder)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return holder, err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
