// Package store persists invitations, relationships and sweep bookkeeping in
// sqlite. Reads and conditional writes are available both on the Store and on
// a Tx so that state transitions compose with ledger postings.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/LoveLedger/LoveLedger/internal/apperr"
	"github.com/LoveLedger/LoveLedger/internal/ledger"
)

// Store owns the database handle.
type Store struct {
	conn
	db *sql.DB
}

// Tx is a write transaction. It exposes the same queries as Store.
type Tx struct {
	conn
	tx *sql.Tx
}

// SQL returns the underlying transaction for ledger postings.
func (t *Tx) SQL() *sql.Tx { return t.tx }

type conn struct {
	q ledger.DBTX
}

// Open opens (or creates) the sqlite database at dbPath and applies the schema.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	dsn := "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store db: %w", err)
	}
	s, err := New(context.Background(), db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened database and applies the schema.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	if err := ledger.EnsureSchema(ctx, db); err != nil {
		return nil, err
	}
	// Best-effort migration for databases created before expiry timestamps.
	_, _ = db.ExecContext(ctx, `ALTER TABLE invitations ADD COLUMN expired_at INTEGER`)
	return &Store{conn: conn{q: db}, db: db}, nil
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return apperr.Store("ping store", s.db.PingContext(ctx))
}

// WithTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Store("begin transaction", err)
	}
	if err := fn(&Tx{conn: conn{q: sqlTx}, tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return apperr.Store("commit transaction", err)
	}
	return nil
}

func millis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
