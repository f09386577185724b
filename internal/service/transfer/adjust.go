package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/capitalpath/ledger-service/internal/domain"
	"github.com/capitalpath/ledger-service/internal/logging"
	"github.com/capitalpath/ledger-service/internal/money"
	"github.com/capitalpath/ledger-service/internal/notify"
)

type AdjustAction string

const (
	AdjustActionCredit AdjustAction = "credit"
	AdjustActionDebit  AdjustAction = "debit"
)

type AdjustRequest struct {
	AccountID uuid.UUID
	Action    AdjustAction
	Amount    int64
	Reason    string
	AdminID   uuid.UUID
	RequestID string
}

// AdminAdjust applies a direct admin credit or debit. It deliberately skips
// the active/KYC gates (admin override) but a debit still may not take the
// balance below zero. The entry carries the acting admin and reason, both
// visible to the user.
func (s *Service) AdminAdjust(ctx context.Context, req AdjustRequest) (int64, error) {
	if req.Amount <= 0 {
		return 0, fmt.Errorf("AdminAdjust: %w", domain.ErrInvalidAmount)
	}
	if req.Action != AdjustActionCredit && req.Action != AdjustActionDebit {
		return 0, fmt.Errorf("AdminAdjust: %w", domain.ErrInvalidRequest)
	}

	tx, err := s.db.BeginLedgerTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("AdminAdjust: %w", err)
	}
	defer tx.Rollback()

	acct, err := s.accounts.GetForUpdate(ctx, tx, req.AccountID)
	if err != nil {
		return 0, fmt.Errorf("AdminAdjust: %w", err)
	}

	entryType := domain.EntryTypeAdminCredit
	if req.Action == AdjustActionDebit {
		entryType = domain.EntryTypeAdminDebit
		if acct.Balance < req.Amount {
			return 0, fmt.Errorf("AdminAdjust: %w", domain.ErrInsufficientFunds)
		}
	}

	now := time.Now().UTC()
	entry := completedEntry(acct.ID, entryType, req.Amount, acct.Balance, now)
	entry.ActorID = &req.AdminID
	entry.Description = req.Reason
	if req.RequestID != "" {
		entry.RequestID = &req.RequestID
	}
	if err := s.ledger.Append(ctx, tx, entry); err != nil {
		return 0, fmt.Errorf("AdminAdjust: entry: %w", err)
	}

	newBalance := entry.BalanceAfter
	if err := s.accounts.UpdateBalance(ctx, tx, acct.ID, newBalance, acct.Version+1); err != nil {
		return 0, fmt.Errorf("AdminAdjust: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("AdminAdjust: commit: %w", err)
	}

	logging.FromContext(ctx).Info("admin balance adjustment",
		"account_id", acct.ID,
		"action", req.Action,
		"amount", req.Amount,
		"admin_id", req.AdminID,
		"reason", req.Reason,
	)

	s.publishEvent(ctx, notify.Event{
		Type:      notify.EventBalanceAdjusted,
		AccountID: acct.ID,
		ActorID:   &req.AdminID,
		Reason:    req.Reason,
		Data: map[string]any{
			"action": string(req.Action),
			"amount": money.FormatAmount(req.Amount),
		},
		OccurredAt: now,
	})

	return newBalance, nil
}
