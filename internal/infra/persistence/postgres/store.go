// Package postgres provides a Postgres-backed persistent claims store that
// mirrors the in-memory semantics, snapshotting state to a JSONB table after
// every committed transaction.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"claimstack/internal/claims"
	"claimstack/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the service interface.
var _ claims.Store = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// Default DSN allows local development without configuration; override via env.
	defaultDSN = "postgres://localhost/claimstack?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// OverrideSQLOpen replaces the database opener and returns a restore
// function. Tests use it to run against a stub driver.
func OverrideSQLOpen(fn func(driverName, dsn string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}

// Store persists state to Postgres while reusing the in-memory implementation
// for transactions.
type Store struct {
	*claims.MemoryStore
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN), ensures the snapshot table exists, and hydrates the
// in-memory store from any existing snapshot.
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureStateTable(ctx, db); err != nil {
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := claims.NewMemoryStore()
	mem.ImportState(snapshot)
	return &Store{MemoryStore: mem, db: db}, nil
}

// RunInTransaction applies fn within a transaction, then snapshots to
// Postgres if successful.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx *claims.Transaction) error) ([]domain.Change, error) {
	changes, err := s.MemoryStore.RunInTransaction(ctx, fn)
	if err != nil {
		return changes, err
	}
	if err := s.persist(ctx); err != nil {
		return changes, err
	}
	return changes, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

func ensureStateTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure state table: %w", err)
	}
	return nil
}

var postgresBuckets = []string{"claims", "items", "attachments"}

func loadSnapshot(ctx context.Context, db *sql.DB) (claims.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return claims.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot claims.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return claims.Snapshot{}, fmt.Errorf("scan state: %w", err)
		}
		switch bucket {
		case "claims":
			if err := json.Unmarshal(payload, &snapshot.Claims); err != nil {
				return claims.Snapshot{}, fmt.Errorf("decode claims: %w", err)
			}
		case "items":
			if err := json.Unmarshal(payload, &snapshot.Items); err != nil {
				return claims.Snapshot{}, fmt.Errorf("decode items: %w", err)
			}
		case "attachments":
			if err := json.Unmarshal(payload, &snapshot.Attachments); err != nil {
				return claims.Snapshot{}, fmt.Errorf("decode attachments: %w", err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return claims.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, nil
}

func (s *Store) persist(ctx context.Context) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range postgresBuckets {
		var data []byte
		switch bucket {
		case "claims":
			data, err = json.Marshal(snapshot.Claims)
		case "items":
			data, err = json.Marshal(snapshot.Items)
		case "attachments":
			data, err = json.Marshal(snapshot.Attachments)
		}
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}
