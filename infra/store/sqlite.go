package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/sunledger/core/ledger"
)

// SQLiteStore keeps day records as JSON documents in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS ledger_records (
        kind TEXT NOT NULL,
        key TEXT NOT NULL,
        updated INTEGER NOT NULL,
        record TEXT NOT NULL,
        PRIMARY KEY (kind, key)
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Exists reports whether a record is stored under kind and key.
func (s *SQLiteStore) Exists(ctx context.Context, kind, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM ledger_records WHERE kind = ? AND key = ?`, kind, key).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Read returns the stored record.
func (s *SQLiteStore) Read(ctx context.Context, kind, key string) (ledger.DayRecord, error) {
	var rec ledger.DayRecord
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM ledger_records WHERE kind = ? AND key = ?`, kind, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("%s/%s: %w", kind, key, ledger.ErrNotFound)
	}
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return rec, fmt.Errorf("unmarshal record: %w", err)
	}
	return rec, nil
}

// Write inserts or replaces the record.
func (s *SQLiteStore) Write(ctx context.Context, kind, key string, rec ledger.DayRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ledger_records (kind, key, updated, record) VALUES (?, ?, ?, ?)
         ON CONFLICT(kind, key) DO UPDATE SET updated = excluded.updated, record = excluded.record`,
		kind, key, time.Now().Unix(), string(b))
	return err
}

// Keys lists the keys stored for kind in ascending order.
func (s *SQLiteStore) Keys(ctx context.Context, kind string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM ledger_records WHERE kind = ? ORDER BY key`, kind)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
