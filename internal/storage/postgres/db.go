// Package postgres implements the storage ports on PostgreSQL through the
// pgx database/sql driver. Stores pick up the transaction from the context
// (pkg/platform/tx), so the same store values serve both transactional and
// plain reads.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"veto/internal/storage"
	dErrors "veto/pkg/domain-errors"
	"veto/pkg/platform/sentinel"
	txcontext "veto/pkg/platform/tx"
)

const (
	defaultTxTimeout = 5 * time.Second

	pgUniqueViolation = "23505"
	pgFKViolation     = "23503"
	pgCheckViolation  = "23514"
)

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// DB implements storage.Database on PostgreSQL.
type DB struct {
	db      *sql.DB
	stores  storage.Stores
	timeout time.Duration
}

type Option func(*DB)

// WithTxTimeout overrides the default transaction timeout.
func WithTxTimeout(d time.Duration) Option {
	return func(db *DB) {
		db.timeout = d
	}
}

func New(db *sql.DB, opts ...Option) *DB {
	d := &DB{
		db: db,
		stores: storage.Stores{
			Orgs:     &OrganizationStore{db: db},
			Data:     &DataStore{db: db},
			Pointers: &PointerStore{db: db},
			Receipts: &ReceiptStore{db: db},
			Audit:    &AuditStore{db: db},
		},
		timeout: defaultTxTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *DB) Stores() storage.Stores {
	return d.stores
}

// RunInTx runs fn in a READ COMMITTED transaction. Row locks taken through
// PointerStore.FindForUpdate serialize work on a pointer.
func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, s storage.Stores) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx, d.stores)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	tx, err := d.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx), d.stores); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// classify converts constraint violations to sentinel errors.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, sentinel.ErrConflict)
		case pgFKViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, sentinel.ErrNotFound)
		case pgCheckViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, sentinel.ErrInvalidState)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
