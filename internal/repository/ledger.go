package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/capitalpath/ledger-service/internal/domain"
)

const ledgerColumns = `id, account_id, entry_type, status, amount,
	balance_before, balance_after, counterpart_id, transfer_id, actor_id,
	description, request_id, created_at, processed_at`

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Append writes one entry inside the caller's transaction. The log is
// append-only: there is no update path in this repository.
func (r *LedgerRepository) Append(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (
			id, account_id, entry_type, status, amount,
			balance_before, balance_after, counterpart_id, transfer_id, actor_id,
			description, request_id, created_at, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		entry.ID, entry.AccountID, entry.EntryType, entry.Status, entry.Amount,
		entry.BalanceBefore, entry.BalanceAfter, entry.CounterpartID, entry.TransferID, entry.ActorID,
		entry.Description, entry.RequestID, entry.CreatedAt, entry.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("Append: %w", translateErr(err))
	}
	return nil
}

type LedgerFilter struct {
	EntryType domain.EntryType
	Status    domain.EntryStatus
	Limit     int
	Offset    int
}

// ListForAccount pages entries newest first. The offset cursor keeps the
// sequence restartable for history views and reconciliation audits.
func (r *LedgerRepository) ListForAccount(ctx context.Context, accountID uuid.UUID, f LedgerFilter) ([]domain.LedgerEntry, int, error) {
	where := `WHERE account_id = $1`
	args := []any{accountID}
	if f.EntryType != "" {
		args = append(args, f.EntryType)
		where += ` AND entry_type = $` + strconv.Itoa(len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where += ` AND status = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListForAccount: count: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries `+where+
			` ORDER BY created_at DESC, id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListForAccount: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListForAccount: scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListForAccount: rows: %w", err)
	}
	return entries, total, nil
}

func (r *LedgerRepository) GetByTransferID(ctx context.Context, transferID uuid.UUID) ([]domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE transfer_id = $1 ORDER BY created_at`, transferID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByTransferID: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByTransferID: scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByTransferID: rows: %w", err)
	}
	return entries, nil
}

// SumSignedForAccount computes Σ(signed completed entries) for the
// reconciliation invariant: the result must always equal accounts.balance.
func (r *LedgerRepository) SumSignedForAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var sum int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(
			CASE
				WHEN entry_type IN ('deposit', 'transfer_in', 'admin_credit') THEN amount
				WHEN entry_type IN ('withdrawal', 'transfer_out', 'admin_debit', 'investment_buy') THEN -amount
				ELSE 0
			END), 0)
		FROM ledger_entries
		WHERE account_id = $1 AND status = 'completed'`, accountID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("SumSignedForAccount: %w", err)
	}
	return sum, nil
}

func scanLedgerEntry(s scanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := s.Scan(
		&e.ID, &e.AccountID, &e.EntryType, &e.Status, &e.Amount,
		&e.BalanceBefore, &e.BalanceAfter, &e.CounterpartID, &e.TransferID, &e.ActorID,
		&e.Description, &e.RequestID, &e.CreatedAt, &e.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
