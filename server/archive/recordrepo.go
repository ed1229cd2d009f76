package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// RecordQuery filters the upload index.
type RecordQuery struct {
	Source string // empty = all sources
	Limit  int    // 0 = default of 50
}

// RecordRepository is the upload index: one row per ingested file.
type RecordRepository interface {
	// Add stores a new upload record.
	Add(ctx context.Context, record *UploadRecord) error

	// Query retrieves records matching the query, newest first.
	Query(ctx context.Context, query RecordQuery) ([]*UploadRecord, error)

	// Count returns the total number of records.
	Count(ctx context.Context) (int, error)
}

// SQLiteRecordRepository implements RecordRepository using SQLite.
type SQLiteRecordRepository struct {
	db *sql.DB
}

// NewSQLiteRecordRepository creates a new SQLite-based RecordRepository.
func NewSQLiteRecordRepository(db *sql.DB) (*SQLiteRecordRepository, error) {
	repo := &SQLiteRecordRepository{db: db}
	if err := repo.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return repo, nil
}

// createTables ensures that the required tables exist.
func (r *SQLiteRecordRepository) createTables() error {
	createUploadsTable := `
	CREATE TABLE IF NOT EXISTS uploads (
		id TEXT PRIMARY KEY,
		file_name TEXT NOT NULL,
		rel_path TEXT NOT NULL,
		source TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		received_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_uploads_received_at ON uploads(received_at);
	CREATE INDEX IF NOT EXISTS idx_uploads_source ON uploads(source);`

	_, err := r.db.Exec(createUploadsTable)
	return err
}

// Add stores a new upload record.
func (r *SQLiteRecordRepository) Add(ctx context.Context, record *UploadRecord) error {
	query := `
	INSERT INTO uploads (id, file_name, rel_path, source, timestamp, size_bytes, received_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.FileName,
		record.RelPath,
		record.Source,
		timeToString(record.Timestamp),
		record.SizeBytes,
		timeToString(record.ReceivedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to add upload record: %w", err)
	}
	return nil
}

// Query retrieves records matching the query, newest first.
func (r *SQLiteRecordRepository) Query(ctx context.Context, query RecordQuery) ([]*UploadRecord, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = 50
	}

	sqlQuery := `
	SELECT id, file_name, rel_path, source, timestamp, size_bytes, received_at
	FROM uploads`
	args := []any{}

	if query.Source != "" {
		sqlQuery += " WHERE source = ?"
		args = append(args, query.Source)
	}
	sqlQuery += " ORDER BY received_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query upload records: %w", err)
	}
	defer rows.Close()

	var records []*UploadRecord
	for rows.Next() {
		record := &UploadRecord{}
		var timestampStr, receivedAtStr string
		if err := rows.Scan(
			&record.ID, &record.FileName, &record.RelPath, &record.Source,
			&timestampStr, &record.SizeBytes, &receivedAtStr,
		); err != nil {
			return nil, fmt.Errorf("failed to scan upload record: %w", err)
		}

		if record.Timestamp, err = stringToTime(timestampStr); err != nil {
			return nil, fmt.Errorf("failed to parse timestamp: %w", err)
		}
		if record.ReceivedAt, err = stringToTime(receivedAtStr); err != nil {
			return nil, fmt.Errorf("failed to parse received_at: %w", err)
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

// Count returns the total number of records.
func (r *SQLiteRecordRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM uploads").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count upload records: %w", err)
	}
	return count, nil
}

// timeToString converts a time.Time to RFC3339Nano for database storage.
func timeToString(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// stringToTime converts an RFC3339Nano string from the database to time.Time.
func stringToTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// NewInMemoryDB creates a new in-memory SQLite database for testing.
func NewInMemoryDB() (*sql.DB, error) {
	return sql.Open("sqlite3", ":memory:")
}
