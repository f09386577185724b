package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/capitalpath/ledger-service/internal/domain"
)

const investmentColumns = `id, account_id, category, asset_name, symbol,
	cost_basis, adjustment, quantity, purchase_price, current_price,
	status, created_at, updated_at`

type InvestmentRepository struct {
	db *sql.DB
}

func NewInvestmentRepository(db *sql.DB) *InvestmentRepository {
	return &InvestmentRepository{db: db}
}

func (r *InvestmentRepository) Create(ctx context.Context, tx *sql.Tx, inv *domain.Investment) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO investments (
			id, account_id, category, asset_name, symbol,
			cost_basis, adjustment, quantity, purchase_price, current_price,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		inv.ID, inv.AccountID, inv.Category, inv.AssetName, inv.Symbol,
		inv.CostBasis, inv.Adjustment, inv.Quantity, inv.PurchasePrice, inv.CurrentPrice,
		inv.Status, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", translateErr(err))
	}
	return nil
}

func (r *InvestmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Investment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+investmentColumns+` FROM investments WHERE id = $1`, id,
	)
	inv, err := scanInvestment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return inv, nil
}

func (r *InvestmentRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Investment, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+investmentColumns+` FROM investments WHERE id = $1 FOR UPDATE`, id,
	)
	inv, err := scanInvestment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", translateErr(err))
	}
	return inv, nil
}

func (r *InvestmentRepository) ListForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Investment, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM investments WHERE account_id = $1`, accountID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListForAccount: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+investmentColumns+` FROM investments
		WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListForAccount: %w", err)
	}
	defer rows.Close()

	var invs []domain.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListForAccount: scan: %w", err)
		}
		invs = append(invs, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListForAccount: rows: %w", err)
	}
	return invs, total, nil
}

func (r *InvestmentRepository) UpdateCurrentPrice(ctx context.Context, id uuid.UUID, price decimal.Decimal, updatedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE investments SET current_price = $1, updated_at = $2 WHERE id = $3`,
		price, updatedAt, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateCurrentPrice: %w", translateErr(err))
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateCurrentPrice: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateCurrentPrice: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *InvestmentRepository) UpdateAdjustment(ctx context.Context, tx *sql.Tx, id uuid.UUID, newAdjustment int64, updatedAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE investments SET adjustment = $1, updated_at = $2 WHERE id = $3`,
		newAdjustment, updatedAt, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateAdjustment: %w", translateErr(err))
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateAdjustment: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateAdjustment: %w", domain.ErrNotFound)
	}
	return nil
}

// TransitionStatus moves an active position to a terminal status exactly
// once, mirroring the deposit-request guard.
func (r *InvestmentRepository) TransitionStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, to domain.InvestmentStatus, updatedAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE investments SET status = $1, updated_at = $2
		WHERE id = $3 AND status = 'active'`,
		to, updatedAt, id,
	)
	if err != nil {
		return fmt.Errorf("TransitionStatus: %w", translateErr(err))
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("TransitionStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("TransitionStatus: %w", domain.ErrInvestmentClosed)
	}
	return nil
}

func scanInvestment(s scanner) (*domain.Investment, error) {
	var inv domain.Investment
	var quantity, purchasePrice, currentPrice decimal.NullDecimal
	err := s.Scan(
		&inv.ID, &inv.AccountID, &inv.Category, &inv.AssetName, &inv.Symbol,
		&inv.CostBasis, &inv.Adjustment, &quantity, &purchasePrice, &currentPrice,
		&inv.Status, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if quantity.Valid {
		inv.Quantity = &quantity.Decimal
	}
	if purchasePrice.Valid {
		inv.PurchasePrice = &purchasePrice.Decimal
	}
	if currentPrice.Valid {
		inv.CurrentPrice = &currentPrice.Decimal
	}
	return &inv, nil
}
