// SPDX-License-Identifier: Apache-2.0

// Package recordstore implements the durable, concurrent-safe table of
// last-successful-compile records (spec.md §4.2, §6 "Record Store on-disk
// layout"). The reference backend is SQLite via the pure-Go modernc.org/sqlite
// driver, accessed through database/sql.
package recordstore

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/relicforge/rescompserver/pkg/resourceid"
)

// Record is the persisted evidence that a resource has been compiled
// successfully at least once (spec.md §3, CompiledRecord).
type Record struct {
	ID                 resourceid.ID
	CompilerVersion    int32
	FileTimestamp      uint64
	SourceTimestampHash uint64
}

// UnavailableError wraps any I/O or schema failure talking to the store.
// Per spec.md §7, callers must treat such failures as "record unknown" for
// subsequent freshness decisions, while the server logs and continues.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("record store unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Cause() error { return e.Err }

func (e *UnavailableError) Unwrap() error { return e.Err }

// Store is a durable key-value table keyed by (path, type) -> Record. All
// operations may be invoked concurrently from multiple goroutines; writes
// are serialized with mu, reads are allowed to proceed concurrently with
// each other (spec.md §4.2 "Concurrency").
type Store struct {
	mu sync.RWMutex
	db *sql.DB
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS CompiledResources (
	ResourcePath        TEXT NOT NULL,
	ResourceType        INTEGER NOT NULL,
	CompilerVersion     INTEGER NOT NULL,
	FileTimestamp       INTEGER NOT NULL,
	SourceTimestampHash INTEGER NOT NULL,
	PRIMARY KEY (ResourcePath, ResourceType)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_compiled_resources_path ON CompiledResources (ResourcePath);
`

// Open creates the on-disk schema if absent and returns a ready Store.
// A StoreUnavailable-equivalent *UnavailableError is returned on any I/O
// or schema failure.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &UnavailableError{Op: "open", Err: err}
	}
	// A single row must be written atomically and durably; one writer
	// connection keeps SQLite's own locking simple and matches the
	// "single mutex is acceptable" guidance in spec.md §4.2.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, &UnavailableError{Op: "create schema", Err: err}
	}

	return &Store{db: db}, nil
}

// Clean drops all records and closes the store (spec.md §4.2, "clean").
func Clean(path string) error {
	s, err := Open(path)
	if err != nil {
		return err
	}
	defer s.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DROP TABLE IF EXISTS CompiledResources`); err != nil {
		return &UnavailableError{Op: "clean", Err: err}
	}
	return nil
}

// Get returns the record for id, or (Record{}, false, nil) if no row
// exists. It must not fail merely because the row is missing.
func (s *Store) Get(id resourceid.ID) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT CompilerVersion, FileTimestamp, SourceTimestampHash
		   FROM CompiledResources
		  WHERE ResourcePath = ? AND ResourceType = ?`,
		lowerPathOf(id), typeOrdinal(id),
	)

	var rec Record
	rec.ID = id
	if err := row.Scan(&rec.CompilerVersion, &rec.FileTimestamp, &rec.SourceTimestampHash); err != nil {
		if err == sql.ErrNoRows {
			return Record{}, false, nil
		}
		return Record{}, false, &UnavailableError{Op: "get", Err: err}
	}
	return rec, true, nil
}

// Put upserts record, replacing any existing row for the same key
// (spec.md §4.2 "put"; §6 primary key (ResourcePath, ResourceType)).
func (s *Store) Put(record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO CompiledResources
		   (ResourcePath, ResourceType, CompilerVersion, FileTimestamp, SourceTimestampHash)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (ResourcePath, ResourceType) DO UPDATE SET
		   CompilerVersion = excluded.CompilerVersion,
		   FileTimestamp = excluded.FileTimestamp,
		   SourceTimestampHash = excluded.SourceTimestampHash`,
		lowerPathOf(record.ID), typeOrdinal(record.ID),
		record.CompilerVersion, record.FileTimestamp, record.SourceTimestampHash,
	)
	if err != nil {
		return &UnavailableError{Op: "put", Err: err}
	}
	return nil
}

// Close is idempotent; subsequent calls are no-ops.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// lowerPathOf folds id's display path to lower case before storage, so
// key equality matches resourceid.ID.Equal (spec.md §3: "Equality and
// hashing fold path to lower case").
func lowerPathOf(id resourceid.ID) string {
	return strings.ToLower(id.Path())
}

func typeOrdinal(id resourceid.ID) int64 {
	t := id.Type()
	return int64(t[0])<<24 | int64(t[1])<<16 | int64(t[2])<<8 | int64(t[3])
}
