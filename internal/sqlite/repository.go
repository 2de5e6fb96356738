package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pavel-fokin/media-drop/internal/files"
	_ "modernc.org/sqlite"
)

// Repository implements files.Persister using SQLite
type Repository struct {
	db *sql.DB
}

var _ files.Persister = (*Repository)(nil)

// NewRepository creates a new SQLite repository
func NewRepository(dbPath string) (*Repository, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// saves are serialised by the store; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db}

	// Initialize database schema
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// initSchema creates and migrates the necessary database tables
func (r *Repository) initSchema() error {
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		original_name TEXT NOT NULL,
		size INTEGER NOT NULL,
		mime_type TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		expiry_minutes REAL NOT NULL,
		expires_at DATETIME NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		deleted INTEGER NOT NULL DEFAULT 0,
		deleted_at DATETIME
	);`
	if _, err := r.db.Exec(createTableQuery); err != nil {
		return fmt.Errorf("failed to create files table: %w", err)
	}

	// Add the updated_at column, ignoring the error if it already exists.
	alterTableQuery := `ALTER TABLE files ADD COLUMN updated_at DATETIME;`
	if _, err := r.db.Exec(alterTableQuery); err != nil {
		if !strings.Contains(err.Error(), "duplicate column name") {
			return fmt.Errorf("failed to add updated_at column: %w", err)
		}
	}

	createIndexesQuery := `
	CREATE INDEX IF NOT EXISTS idx_files_expires_at ON files(expires_at);
	CREATE INDEX IF NOT EXISTS idx_files_created_at ON files(created_at);
	`
	if _, err := r.db.Exec(createIndexesQuery); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// Load retrieves all records in creation order
func (r *Repository) Load() ([]files.Record, error) {
	query := `
	SELECT id, original_name, size, mime_type, created_at, updated_at,
		expiry_minutes, expires_at, metadata, deleted, deleted_at
	FROM files
	ORDER BY created_at, rowid
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var records []files.Record
	for rows.Next() {
		var (
			rec       files.Record
			updatedAt sql.NullTime
			deletedAt sql.NullTime
			metadata  string
		)
		err := rows.Scan(
			&rec.ID,
			&rec.OriginalName,
			&rec.Size,
			&rec.MimeType,
			&rec.CreatedAt,
			&updatedAt,
			&rec.ExpiryMinutes,
			&rec.ExpiresAt,
			&metadata,
			&rec.Deleted,
			&deletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file row: %w", err)
		}
		if updatedAt.Valid {
			rec.UpdatedAt = &updatedAt.Time
		}
		if deletedAt.Valid {
			rec.DeletedAt = &deletedAt.Time
		}
		// unreadable metadata is left nil for normalisation to reset
		_ = json.Unmarshal([]byte(metadata), &rec.Metadata)

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating file rows: %w", err)
	}

	return records, nil
}

// Save upserts every record in one transaction. Records are never removed
// from the set, so rows are never deleted.
func (r *Repository) Save(records []files.Record) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
	INSERT INTO files (id, original_name, size, mime_type, created_at, updated_at,
		expiry_minutes, expires_at, metadata, deleted, deleted_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		updated_at = excluded.updated_at,
		expiry_minutes = excluded.expiry_minutes,
		expires_at = excluded.expires_at,
		metadata = excluded.metadata,
		deleted = excluded.deleted,
		deleted_at = excluded.deleted_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		metadata, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata of %s: %w", rec.ID, err)
		}
		if _, err := stmt.Exec(
			rec.ID,
			rec.OriginalName,
			rec.Size,
			rec.MimeType,
			rec.CreatedAt.UTC(),
			nullTime(rec.UpdatedAt),
			rec.ExpiryMinutes,
			rec.ExpiresAt.UTC(),
			string(metadata),
			rec.Deleted,
			nullTime(rec.DeletedAt),
		); err != nil {
			return fmt.Errorf("failed to save file record %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
