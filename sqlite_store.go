package logbuffer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is an alternate SegmentedStore backed by a single SQLite
// database file instead of rolling segment files. Each record is a plain
// (idx, ts, type, payload) row; appends run in a transaction that checks the
// next index is contiguous before inserting, and Iter streams rows back over
// a channel.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens or creates a SQLite database at dsn and ensures its
// schema and PRAGMAs are set.
func OpenSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA wal_autocheckpoint=1000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}
	schema := `
CREATE TABLE IF NOT EXISTS records (
  idx     INTEGER PRIMARY KEY,
  ts      INTEGER NOT NULL,
  typeTag INTEGER NOT NULL,
  payload BLOB NOT NULL
);
`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Append assigns the next index to frame and inserts it, rejecting frame if
// it is malformed and rejecting the call entirely if the store's row count
// does not already agree on the next index (defends against concurrent use
// outside of LogBuffer's writer lock).
func (s *SQLiteStore) Append(frame []byte) (uint64, error) {
	rec, err := DecodeRecord(0, frame)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, fmt.Errorf("begin append tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count uint64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO records(idx, ts, typeTag, payload) VALUES(?, ?, ?, ?)`,
		count, rec.Timestamp, rec.Type, rec.Payload); err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append tx: %w", err)
	}
	return count, nil
}

// Read returns the framed bytes at index, or ok == false if no row with
// that index exists.
func (s *SQLiteStore) Read(index uint64) ([]byte, bool, error) {
	var timestampMs int64
	var typeTag uint64
	var payload []byte
	err := s.db.QueryRow(`SELECT ts, typeTag, payload FROM records WHERE idx=?`, index).
		Scan(&timestampMs, &typeTag, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read record %d: %w", index, err)
	}
	return EncodeRecord(typeTag, timestampMs, payload), true, nil
}

// WriteIndex returns the next index that will be assigned, equivalently the
// current row count.
func (s *SQLiteStore) WriteIndex() (uint64, error) {
	var count uint64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

// Iter streams frames starting at fromIndex in ascending index order over a
// channel, cancellable via the returned stop function.
func (s *SQLiteStore) Iter(fromIndex uint64) (<-chan Record, func() error, error) {
	ctx, cancel := context.WithCancel(context.Background())
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, ts, typeTag, payload FROM records WHERE idx >= ? ORDER BY idx ASC`, fromIndex)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("query records from %d: %w", fromIndex, err)
	}
	out := make(chan Record, 64)
	go func() {
		defer close(out)
		defer rows.Close()
		defer cancel()
		for rows.Next() {
			var idx uint64
			var ts int64
			var typeTag uint64
			var payload []byte
			if err := rows.Scan(&idx, &ts, &typeTag, &payload); err != nil {
				return
			}
			out <- Record{Index: idx, Type: typeTag, Timestamp: ts, Payload: payload}
		}
	}()
	return out, func() error { cancel(); return nil }, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
