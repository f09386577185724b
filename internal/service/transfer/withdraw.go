package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/capitalpath/ledger-service/internal/domain"
	"github.com/capitalpath/ledger-service/internal/logging"
)

type WithdrawRequest struct {
	AccountID uuid.UUID
	Amount    int64
	Method    string
	RequestID string
}

// Withdraw debits the account and appends a completed withdrawal entry.
// No external payout rail is modeled; the entry completes immediately.
func (s *Service) Withdraw(ctx context.Context, req WithdrawRequest) (int64, error) {
	if req.Amount <= 0 {
		return 0, fmt.Errorf("Withdraw: %w", domain.ErrInvalidAmount)
	}

	tx, err := s.db.BeginLedgerTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("Withdraw: %w", err)
	}
	defer tx.Rollback()

	acct, err := s.accounts.GetForUpdate(ctx, tx, req.AccountID)
	if err != nil {
		return 0, fmt.Errorf("Withdraw: %w", err)
	}

	if err := verifyAccountActive(acct, "account"); err != nil {
		return 0, fmt.Errorf("Withdraw: %w", err)
	}
	if acct.Balance < req.Amount {
		return 0, fmt.Errorf("Withdraw: %w", domain.ErrInsufficientFunds)
	}

	now := time.Now().UTC()
	entry := completedEntry(acct.ID, domain.EntryTypeWithdrawal, req.Amount, acct.Balance, now)
	entry.Description = fmt.Sprintf("withdrawal via %s", req.Method)
	if req.RequestID != "" {
		entry.RequestID = &req.RequestID
	}
	if err := s.ledger.Append(ctx, tx, entry); err != nil {
		return 0, fmt.Errorf("Withdraw: entry: %w", err)
	}

	newBalance := acct.Balance - req.Amount
	if err := s.accounts.UpdateBalance(ctx, tx, acct.ID, newBalance, acct.Version+1); err != nil {
		return 0, fmt.Errorf("Withdraw: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("Withdraw: commit: %w", err)
	}

	logging.FromContext(ctx).Info("withdrawal completed",
		"account_id", acct.ID,
		"amount", req.Amount,
		"method", req.Method,
	)

	return newBalance, nil
}
