// Package sqlstore keeps cache buckets in one SQL table.
//
// Each row holds one bucket: its key and a JSON object of hash -> text.
// Read-merge-write of a bucket runs inside a transaction that owns the
// row exclusively for its duration: SQLite starts write transactions
// with BEGIN IMMEDIATE, PostgreSQL takes a transaction-scoped advisory
// lock on the bucket key. Both work across processes.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect selects driver-specific SQL.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

const table = "translation_cache_buckets"

// Store is a SQL-backed bucket store.
type Store struct {
	db      *sql.DB
	dialect Dialect
	sq      sq.StatementBuilderType
}

// OpenSQLite opens (creating if needed) a SQLite database file.
func OpenSQLite(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("make db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return open(db, SQLite)
}

// OpenPostgres connects through the pgx stdlib driver.
func OpenPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return open(db, Postgres)
}

// New wraps an existing handle. The table is created if missing.
func New(db *sql.DB, dialect Dialect) (*Store, error) {
	return open(db, dialect)
}

func open(db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{db: db, dialect: dialect, sq: sq.StatementBuilder}
	if dialect == Postgres {
		s.sq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS ` + table + ` (
        bucket_key TEXT PRIMARY KEY,
        payload    TEXT NOT NULL,
        updated_at TEXT NOT NULL
    )`
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Dialect reports which SQL flavor the store speaks.
func (s *Store) Dialect() Dialect { return s.dialect }

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) read(ctx context.Context, q queryer, key string) (map[string]string, bool, error) {
	sqlStr, args, err := s.sq.Select("payload").From(table).Where(sq.Eq{"bucket_key": key}).ToSql()
	if err != nil {
		return nil, false, err
	}
	var payload string
	if err := q.QueryRowContext(ctx, sqlStr, args...).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("select bucket: %w", err)
	}
	bucket := map[string]string{}
	if err := json.Unmarshal([]byte(payload), &bucket); err != nil {
		return nil, false, fmt.Errorf("decode bucket %s: %w", key, err)
	}
	return bucket, true, nil
}

func (s *Store) Get(ctx context.Context, key string) (map[string]string, bool, error) {
	return s.read(ctx, s.db, key)
}

// lock makes tx the only writer of key until it ends. SQLite already
// holds the database write lock from BEGIN IMMEDIATE.
func (s *Store) lock(ctx context.Context, tx *sql.Tx, key string) error {
	if s.dialect != Postgres {
		return nil
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
		return fmt.Errorf("lock bucket %s: %w", key, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, key string, fn func(map[string]string)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := s.lock(ctx, tx, key); err != nil {
		return err
	}
	bucket, ok, err := s.read(ctx, tx, key)
	if err != nil {
		return err
	}
	if !ok {
		bucket = map[string]string{}
	}
	fn(bucket)

	payload, err := json.Marshal(bucket)
	if err != nil {
		return fmt.Errorf("encode bucket: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	sqlStr, args, err := s.sq.
		Insert(table).
		Columns("bucket_key", "payload", "updated_at").
		Values(key, string(payload), now).
		Suffix("ON CONFLICT(bucket_key) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("upsert bucket: %w", err)
	}
	return tx.Commit()
}

func (s *Store) Reset(ctx context.Context, key string) (bool, error) {
	sqlStr, args, err := s.sq.
		Update(table).
		Set("payload", "{}").
		Set("updated_at", time.Now().UTC().Format(time.RFC3339)).
		Where(sq.Eq{"bucket_key": key}).
		Where(sq.NotEq{"payload": "{}"}).
		ToSql()
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return false, fmt.Errorf("reset bucket: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
