package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/capitalpath/ledger-service/internal/domain"
)

const accountColumns = `id, email, name, password_hash, role, balance, version,
	account_number, status, kyc_status, created_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (
			id, email, name, password_hash, role, balance, version,
			account_number, status, kyc_status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		account.ID, account.Email, account.Name, account.PasswordHash, account.Role,
		account.Balance, account.Version, account.AccountNumber,
		account.Status, account.KYCStatus, account.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", translateErr(err))
	}
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByEmail: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByEmail: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) GetByAccountNumber(ctx context.Context, number string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, number,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByAccountNumber: %w", domain.ErrUnknownDestination)
		}
		return nil, fmt.Errorf("GetByAccountNumber: %w", err)
	}
	return a, nil
}

// GetForUpdate locks the account row for the duration of tx. Lock waits
// beyond the transaction's lock_timeout come back as ErrBusy.
func (r *AccountRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", translateErr(err))
	}
	return a, nil
}

// UpdateBalance applies an already-computed balance under the optimistic
// version check. Callers must hold the row lock and pass version+1.
func (r *AccountRepository) UpdateBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance int64, newVersion int64) error {
	if newBalance < 0 {
		return fmt.Errorf("UpdateBalance: %w", domain.ErrInsufficientFunds)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $1, version = $2 WHERE id = $3 AND version = $4`,
		newBalance, newVersion, id, newVersion-1,
	)
	if err != nil {
		return fmt.Errorf("UpdateBalance: %w", translateErr(err))
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateBalance: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateBalance: %w", domain.ErrVersionConflict)
	}
	return nil
}

func (r *AccountRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.AccountStatus) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET status = $1 WHERE id = $2`, status, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", translateErr(err))
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrAccountNotFound)
	}
	return nil
}

// TransitionKYC flips kyc_status only when the current value matches one of
// the allowed source states, so concurrent decisions cannot both apply.
func (r *AccountRepository) TransitionKYC(ctx context.Context, id uuid.UUID, from []domain.KYCStatus, to domain.KYCStatus) error {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET kyc_status = $1 WHERE id = $2 AND kyc_status = ANY($3)`,
		to, id, pq.Array(states),
	)
	if err != nil {
		return fmt.Errorf("TransitionKYC: %w", translateErr(err))
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("TransitionKYC: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("TransitionKYC: %w", domain.ErrAlreadyProcessed)
	}
	return nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	err := s.Scan(
		&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Role,
		&a.Balance, &a.Version, &a.AccountNumber,
		&a.Status, &a.KYCStatus, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
