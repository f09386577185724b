package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/capitalpath/ledger-service/internal/domain"
	"github.com/capitalpath/ledger-service/internal/logging"
	"github.com/capitalpath/ledger-service/internal/money"
	"github.com/capitalpath/ledger-service/internal/notify"
)

type Request struct {
	SourceAccountID uuid.UUID
	// Destination is an account number or the recipient's email address.
	Destination string
	Amount      int64
	Description string
	RequestID   string
}

type Result struct {
	TransferID      uuid.UUID
	NewBalance      int64
	RecipientName   string
	RecipientNumber string
}

// Transfer moves Amount from the source account to the account owning
// Destination. Debit, credit, and the linked transfer_out/transfer_in
// pair commit together or not at all. Self-transfers by number are the
// deposit workflow's job and are rejected here.
func (s *Service) Transfer(ctx context.Context, req Request) (*Result, error) {
	log := logging.FromContext(ctx)

	if req.Amount <= 0 {
		return nil, fmt.Errorf("Transfer: %w", domain.ErrInvalidAmount)
	}

	dest, err := s.resolveDestination(ctx, req.Destination)
	if err != nil {
		return nil, fmt.Errorf("Transfer: %w", err)
	}
	if dest.ID == req.SourceAccountID {
		return nil, fmt.Errorf("Transfer: %w", domain.ErrSelfTransfer)
	}

	tx, err := s.db.BeginLedgerTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("Transfer: %w", err)
	}
	defer tx.Rollback()

	locked, err := lockAccountsInOrder(ctx, tx, s.accounts, req.SourceAccountID, dest.ID)
	if err != nil {
		return nil, fmt.Errorf("Transfer: %w", err)
	}
	source, recipient := locked[req.SourceAccountID], locked[dest.ID]

	if err := verifyAccountActive(source, "source"); err != nil {
		return nil, fmt.Errorf("Transfer: %w", err)
	}
	if err := verifyAccountActive(recipient, "recipient"); err != nil {
		return nil, fmt.Errorf("Transfer: %w", err)
	}
	if source.Balance < req.Amount {
		return nil, fmt.Errorf("Transfer: %w", domain.ErrInsufficientFunds)
	}

	now := time.Now().UTC()
	transferID := uuid.New()

	out := completedEntry(source.ID, domain.EntryTypeTransferOut, req.Amount, source.Balance, now)
	out.CounterpartID = &recipient.ID
	out.TransferID = &transferID
	out.Description = req.Description
	if req.RequestID != "" {
		out.RequestID = &req.RequestID
	}
	if err := s.ledger.Append(ctx, tx, out); err != nil {
		return nil, fmt.Errorf("Transfer: out entry: %w", err)
	}

	in := completedEntry(recipient.ID, domain.EntryTypeTransferIn, req.Amount, recipient.Balance, now)
	in.CounterpartID = &source.ID
	in.TransferID = &transferID
	in.Description = req.Description
	if req.RequestID != "" {
		in.RequestID = &req.RequestID
	}
	if err := s.ledger.Append(ctx, tx, in); err != nil {
		return nil, fmt.Errorf("Transfer: in entry: %w", err)
	}

	if err := s.accounts.UpdateBalance(ctx, tx, source.ID, source.Balance-req.Amount, source.Version+1); err != nil {
		return nil, fmt.Errorf("Transfer: debit source: %w", err)
	}
	if err := s.accounts.UpdateBalance(ctx, tx, recipient.ID, recipient.Balance+req.Amount, recipient.Version+1); err != nil {
		return nil, fmt.Errorf("Transfer: credit recipient: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Transfer: commit: %w", err)
	}

	log.Info("transfer completed",
		"transfer_id", transferID,
		"source_account", source.ID,
		"recipient_account", recipient.ID,
		"amount", req.Amount,
	)

	s.publishEvent(ctx, notify.Event{
		Type:      notify.EventTransferReceived,
		AccountID: recipient.ID,
		Data: map[string]any{
			"transfer_id": transferID,
			"amount":      money.FormatAmount(req.Amount),
			"sender":      source.Name,
			"description": req.Description,
		},
		OccurredAt: now,
	})

	return &Result{
		TransferID:      transferID,
		NewBalance:      source.Balance - req.Amount,
		RecipientName:   recipient.Name,
		RecipientNumber: recipient.AccountNumber,
	}, nil
}

func (s *Service) resolveDestination(ctx context.Context, dest string) (*domain.Account, error) {
	if strings.Contains(dest, "@") {
		acct, err := s.accounts.GetByEmail(ctx, strings.ToLower(dest))
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("resolveDestination: %w", domain.ErrUnknownDestination)
		}
		return acct, err
	}
	return s.accounts.GetByAccountNumber(ctx, dest)
}
