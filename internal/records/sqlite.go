package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/capes/internal/apperr"
	"github.com/starford/capes/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS superheroes (
	id                 TEXT PRIMARY KEY,
	nickname           TEXT NOT NULL,
	real_name          TEXT NOT NULL,
	origin_description TEXT NOT NULL,
	superpowers        TEXT NOT NULL DEFAULT '[]',
	catch_phrase       TEXT NOT NULL,
	images             TEXT NOT NULL DEFAULT '[]',
	created_at         INTEGER NOT NULL,
	updated_at         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_superheroes_created ON superheroes(created_at DESC, id DESC);
`

const selectCols = `SELECT id, nickname, real_name, origin_description, superpowers, catch_phrase, images, created_at, updated_at FROM superheroes`

// SQLite is a Store backed by a single SQLite database file. Timestamps are
// stored as Unix nanoseconds so ordering is exact.
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the SQLite database and applies the schema.
func OpenSQLite(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("records: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("records: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("records: apply schema: %w", err)
	}
	return newSQLite(conn), nil
}

func newSQLite(conn *sql.DB) *SQLite {
	return &SQLite{conn: conn}
}

// Close closes the underlying database connection.
func (db *SQLite) Close() error {
	return db.conn.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHero(row rowScanner) (*models.Superhero, error) {
	var (
		h                   models.Superhero
		powers, images      string
		createdNs, updateNs int64
	)
	if err := row.Scan(&h.ID, &h.Nickname, &h.RealName, &h.OriginDescription,
		&powers, &h.CatchPhrase, &images, &createdNs, &updateNs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(powers), &h.Superpowers); err != nil {
		return nil, fmt.Errorf("records: decode superpowers: %w", err)
	}
	if err := json.Unmarshal([]byte(images), &h.Images); err != nil {
		return nil, fmt.Errorf("records: decode images: %w", err)
	}
	h.CreatedAt = time.Unix(0, createdNs).UTC()
	h.UpdatedAt = time.Unix(0, updateNs).UTC()
	h.Normalize()
	return &h, nil
}

func encodeList(list []string) string {
	if list == nil {
		list = []string{}
	}
	b, _ := json.Marshal(list)
	return string(b)
}

// Create inserts a new record with a fresh UUID.
func (db *SQLite) Create(ctx context.Context, h models.Superhero) (*models.Superhero, error) {
	now := time.Now().UTC()
	h.ID = uuid.NewString()
	h.CreatedAt = now
	h.UpdatedAt = now
	h.Normalize()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO superheroes (id, nickname, real_name, origin_description, superpowers, catch_phrase, images, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.Nickname, h.RealName, h.OriginDescription, encodeList(h.Superpowers),
		h.CatchPhrase, encodeList(h.Images), now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("records: insert: %w", err)
	}
	return &h, nil
}

// Get returns the record with the given id.
func (db *SQLite) Get(ctx context.Context, id string) (*models.Superhero, error) {
	h, err := scanHero(db.conn.QueryRowContext(ctx, selectCols+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("records: get: %w", err)
	}
	return h, nil
}

// Update replaces the descriptive fields and appends images within a transaction.
func (db *SQLite) Update(ctx context.Context, id string, f models.Fields, images []string) (*models.Superhero, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("records: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	h, err := scanHero(tx.QueryRowContext(ctx, selectCols+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("records: load for update: %w", err)
	}

	h.Apply(f)
	h.Images = append(h.Images, images...)
	h.UpdatedAt = time.Now().UTC()
	h.Normalize()

	_, err = tx.ExecContext(ctx, `
		UPDATE superheroes SET
			nickname           = ?,
			real_name          = ?,
			origin_description = ?,
			superpowers        = ?,
			catch_phrase       = ?,
			images             = ?,
			updated_at         = ?
		WHERE id = ?`,
		h.Nickname, h.RealName, h.OriginDescription, encodeList(h.Superpowers),
		h.CatchPhrase, encodeList(h.Images), h.UpdatedAt.UnixNano(), id)
	if err != nil {
		return nil, fmt.Errorf("records: update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("records: commit: %w", err)
	}
	return h, nil
}

// RemoveImage filters url out of the record's images within a transaction.
func (db *SQLite) RemoveImage(ctx context.Context, id, url string) ([]string, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("records: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var raw string
	if err := tx.QueryRowContext(ctx, `SELECT images FROM superheroes WHERE id = ?`, id).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("records: load images: %w", err)
	}
	var images []string
	if err := json.Unmarshal([]byte(raw), &images); err != nil {
		return nil, fmt.Errorf("records: decode images: %w", err)
	}
	images = models.WithoutImage(images, url)

	if _, err := tx.ExecContext(ctx, `UPDATE superheroes SET images = ?, updated_at = ? WHERE id = ?`,
		encodeList(images), time.Now().UTC().UnixNano(), id); err != nil {
		return nil, fmt.Errorf("records: update images: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("records: commit: %w", err)
	}
	return images, nil
}

// Delete removes a record by id.
func (db *SQLite) Delete(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM superheroes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("records: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("records: rows affected: %w", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// List returns one window of records, newest first.
func (db *SQLite) List(ctx context.Context, skip, limit int) ([]models.Superhero, error) {
	rows, err := db.conn.QueryContext(ctx,
		selectCols+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("records: list: %w", err)
	}
	defer rows.Close()

	out := []models.Superhero{}
	for rows.Next() {
		h, err := scanHero(rows)
		if err != nil {
			return nil, fmt.Errorf("records: scan: %w", err)
		}
		out = append(out, *h)
	}
	return out, rows.Err()
}

// Count returns the number of stored records.
func (db *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM superheroes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("records: count: %w", err)
	}
	return n, nil
}
