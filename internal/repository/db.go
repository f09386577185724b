package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/capitalpath/ledger-service/internal/domain"
)

type scanner interface {
	Scan(dest ...any) error
}

// DB wraps the sql pool and owns the transactional boundary for
// money-moving operations. Every transaction it opens carries a bounded
// lock_timeout so contended rows surface as a retryable error instead of a
// hung request.
type DB struct {
	pool          *sql.DB
	lockTimeoutMS int
}

func NewDB(pool *sql.DB, lockTimeoutMS int) *DB {
	return &DB{pool: pool, lockTimeoutMS: lockTimeoutMS}
}

func (d *DB) Conn() *sql.DB {
	return d.pool
}

// BeginLedgerTx opens a transaction for a balance mutation. lock_timeout is
// scoped to the transaction via SET LOCAL.
func (d *DB) BeginLedgerTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := d.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("BeginLedgerTx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.lockTimeoutMS)); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("BeginLedgerTx: lock_timeout: %w", err)
	}
	return tx, nil
}

const (
	pqLockNotAvailable = "55P03"
	pqDeadlockDetected = "40P01"
	pqUniqueViolation  = "23505"
)

// translateErr maps Postgres error classes onto domain sentinels: lock
// waits and deadlocks are retryable Busy, unique violations are conflicts.
func translateErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqLockNotAvailable, pqDeadlockDetected:
			return fmt.Errorf("%v: %w", err, domain.ErrBusy)
		case pqUniqueViolation:
			return fmt.Errorf("%v: %w", err, domain.ErrAlreadyProcessed)
		}
	}
	return err
}
