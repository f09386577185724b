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

const cardColumns = `id, account_id, card_type, network, credit_limit,
	available_credit, status, created_at, updated_at`

const cardRequestColumns = `id, account_id, card_type, network, status,
	admin_notes, processed_by, card_id, created_at, processed_at`

type CardRepository struct {
	db *sql.DB
}

func NewCardRepository(db *sql.DB) *CardRepository {
	return &CardRepository{db: db}
}

func (r *CardRepository) CreateCard(ctx context.Context, tx *sql.Tx, card *domain.CreditCard) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO credit_cards (
			id, account_id, card_type, network, credit_limit,
			available_credit, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		card.ID, card.AccountID, card.CardType, card.Network, card.CreditLimit,
		card.AvailableCredit, card.Status, card.CreatedAt, card.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("CreateCard: %w", translateErr(err))
	}
	return nil
}

func (r *CardRepository) GetCardByID(ctx context.Context, id uuid.UUID) (*domain.CreditCard, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM credit_cards WHERE id = $1`, id,
	)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetCardByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetCardByID: %w", err)
	}
	return c, nil
}

func (r *CardRepository) GetCardForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.CreditCard, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM credit_cards WHERE id = $1 FOR UPDATE`, id,
	)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetCardForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetCardForUpdate: %w", translateErr(err))
	}
	return c, nil
}

func (r *CardRepository) ListCardsForAccount(ctx context.Context, accountID uuid.UUID) ([]domain.CreditCard, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+cardColumns+` FROM credit_cards
		WHERE account_id = $1 ORDER BY created_at`, accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListCardsForAccount: %w", err)
	}
	defer rows.Close()

	var cards []domain.CreditCard
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("ListCardsForAccount: scan: %w", err)
		}
		cards = append(cards, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListCardsForAccount: rows: %w", err)
	}
	return cards, nil
}

func (r *CardRepository) UpdateCreditLine(ctx context.Context, tx *sql.Tx, id uuid.UUID, cardType domain.CardType, creditLimit, availableCredit int64, updatedAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE credit_cards
		SET card_type = $1, credit_limit = $2, available_credit = $3, updated_at = $4
		WHERE id = $5`,
		cardType, creditLimit, availableCredit, updatedAt, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateCreditLine: %w", translateErr(err))
	}
	return checkOneRow(res, "UpdateCreditLine")
}

func (r *CardRepository) UpdateNetwork(ctx context.Context, id uuid.UUID, network domain.CardNetwork, updatedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE credit_cards SET network = $1, updated_at = $2 WHERE id = $3`,
		network, updatedAt, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateNetwork: %w", translateErr(err))
	}
	return checkOneRow(res, "UpdateNetwork")
}

func (r *CardRepository) UpdateCardStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.CardStatus, updatedAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE credit_cards SET status = $1, updated_at = $2 WHERE id = $3`,
		status, updatedAt, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateCardStatus: %w", translateErr(err))
	}
	return checkOneRow(res, "UpdateCardStatus")
}

func (r *CardRepository) UpdateAvailableCredit(ctx context.Context, tx *sql.Tx, id uuid.UUID, available int64, updatedAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE credit_cards SET available_credit = $1, updated_at = $2 WHERE id = $3`,
		available, updatedAt, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateAvailableCredit: %w", translateErr(err))
	}
	return checkOneRow(res, "UpdateAvailableCredit")
}

// DeactivateForAccount cascades an account deactivation onto its cards,
// inside the same transaction that flips the account status.
func (r *CardRepository) DeactivateForAccount(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, updatedAt time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE credit_cards SET status = 'deactivated', updated_at = $1
		WHERE account_id = $2 AND status = 'active'`,
		updatedAt, accountID,
	)
	if err != nil {
		return fmt.Errorf("DeactivateForAccount: %w", translateErr(err))
	}
	return nil
}

func (r *CardRepository) CreateRequest(ctx context.Context, req *domain.CardRequest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO card_requests (
			id, account_id, card_type, network, status,
			admin_notes, processed_by, card_id, created_at, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		req.ID, req.AccountID, req.CardType, req.Network, req.Status,
		req.AdminNotes, req.ProcessedBy, req.CardID, req.CreatedAt, req.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("CreateRequest: %w", translateErr(err))
	}
	return nil
}

func (r *CardRepository) GetRequestByID(ctx context.Context, id uuid.UUID) (*domain.CardRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+cardRequestColumns+` FROM card_requests WHERE id = $1`, id,
	)
	req, err := scanCardRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetRequestByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetRequestByID: %w", err)
	}
	return req, nil
}

func (r *CardRepository) ListRequestsByStatus(ctx context.Context, status domain.CardRequestStatus) ([]domain.CardRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+cardRequestColumns+` FROM card_requests
		WHERE status = $1 ORDER BY created_at`, status,
	)
	if err != nil {
		return nil, fmt.Errorf("ListRequestsByStatus: %w", err)
	}
	defer rows.Close()

	var reqs []domain.CardRequest
	for rows.Next() {
		req, err := scanCardRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("ListRequestsByStatus: scan: %w", err)
		}
		reqs = append(reqs, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListRequestsByStatus: rows: %w", err)
	}
	return reqs, nil
}

// MarkRequestProcessed resolves a pending card request exactly once,
// recording the issued card id on approval.
func (r *CardRepository) MarkRequestProcessed(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.CardRequestStatus, adminID uuid.UUID, notes string, cardID *uuid.UUID, processedAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE card_requests
		SET status = $1, processed_by = $2, admin_notes = $3, card_id = $4, processed_at = $5
		WHERE id = $6 AND status = 'pending'`,
		status, adminID, notes, cardID, processedAt, id,
	)
	if err != nil {
		return fmt.Errorf("MarkRequestProcessed: %w", translateErr(err))
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkRequestProcessed: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("MarkRequestProcessed: %w", domain.ErrAlreadyProcessed)
	}
	return nil
}

func checkOneRow(res sql.Result, op string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

func scanCard(s scanner) (*domain.CreditCard, error) {
	var c domain.CreditCard
	err := s.Scan(
		&c.ID, &c.AccountID, &c.CardType, &c.Network, &c.CreditLimit,
		&c.AvailableCredit, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanCardRequest(s scanner) (*domain.CardRequest, error) {
	var req domain.CardRequest
	err := s.Scan(
		&req.ID, &req.AccountID, &req.CardType, &req.Network, &req.Status,
		&req.AdminNotes, &req.ProcessedBy, &req.CardID, &req.CreatedAt, &req.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}
