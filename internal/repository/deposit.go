package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/capitalpath/ledger-service/internal/domain"
)

const depositColumns = `id, account_id, amount, source_bank_name, source_bank_last4,
	destination_number, status, admin_notes, processed_by, request_id,
	created_at, processed_at`

type DepositRepository struct {
	db *sql.DB
}

func NewDepositRepository(db *sql.DB) *DepositRepository {
	return &DepositRepository{db: db}
}

func (r *DepositRepository) Create(ctx context.Context, req *domain.DepositRequest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO deposit_requests (
			id, account_id, amount, source_bank_name, source_bank_last4,
			destination_number, status, admin_notes, processed_by, request_id,
			created_at, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		req.ID, req.AccountID, req.Amount, req.SourceBankName, req.SourceBankLast4,
		req.DestinationNum, req.Status, req.AdminNotes, req.ProcessedBy, req.RequestID,
		req.CreatedAt, req.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", translateErr(err))
	}
	return nil
}

func (r *DepositRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.DepositRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+depositColumns+` FROM deposit_requests WHERE id = $1`, id,
	)
	d, err := scanDepositRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return d, nil
}

func (r *DepositRepository) ListByStatus(ctx context.Context, status domain.DepositStatus, limit, offset int) ([]domain.DepositRequest, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deposit_requests WHERE status = $1`, status,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListByStatus: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+depositColumns+` FROM deposit_requests
		WHERE status = $1 ORDER BY created_at LIMIT $2 OFFSET $3`,
		status, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByStatus: %w", err)
	}
	defer rows.Close()

	var reqs []domain.DepositRequest
	for rows.Next() {
		d, err := scanDepositRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListByStatus: scan: %w", err)
		}
		reqs = append(reqs, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListByStatus: rows: %w", err)
	}
	return reqs, total, nil
}

func (r *DepositRepository) ListForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.DepositRequest, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deposit_requests WHERE account_id = $1`, accountID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListForAccount: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+depositColumns+` FROM deposit_requests
		WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListForAccount: %w", err)
	}
	defer rows.Close()

	var reqs []domain.DepositRequest
	for rows.Next() {
		d, err := scanDepositRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListForAccount: scan: %w", err)
		}
		reqs = append(reqs, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListForAccount: rows: %w", err)
	}
	return reqs, total, nil
}

// MarkProcessed flips pending to a terminal status exactly once. A second
// call matches zero rows and reports ErrAlreadyProcessed, which is the
// double-approval guard.
func (r *DepositRepository) MarkProcessed(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.DepositStatus, adminID uuid.UUID, notes string, processedAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE deposit_requests
		SET status = $1, processed_by = $2, admin_notes = $3, processed_at = $4
		WHERE id = $5 AND status = 'pending'`,
		status, adminID, notes, processedAt, id,
	)
	if err != nil {
		return fmt.Errorf("MarkProcessed: %w", translateErr(err))
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkProcessed: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("MarkProcessed: %w", domain.ErrAlreadyProcessed)
	}
	return nil
}

func scanDepositRequest(s scanner) (*domain.DepositRequest, error) {
	var d domain.DepositRequest
	err := s.Scan(
		&d.ID, &d.AccountID, &d.Amount, &d.SourceBankName, &d.SourceBankLast4,
		&d.DestinationNum, &d.Status, &d.AdminNotes, &d.ProcessedBy, &d.RequestID,
		&d.CreatedAt, &d.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
