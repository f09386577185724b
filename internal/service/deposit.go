package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/capitalpath/ledger-service/internal/domain"
	"github.com/capitalpath/ledger-service/internal/logging"
	"github.com/capitalpath/ledger-service/internal/money"
	"github.com/capitalpath/ledger-service/internal/notify"
	"github.com/capitalpath/ledger-service/internal/repository"
	"github.com/capitalpath/ledger-service/internal/service/transfer"
)

type depositRepo interface {
	Create(ctx context.Context, req *domain.DepositRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.DepositRequest, error)
	ListByStatus(ctx context.Context, status domain.DepositStatus, limit, offset int) ([]domain.DepositRequest, int, error)
	ListForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.DepositRequest, int, error)
	MarkProcessed(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.DepositStatus, adminID uuid.UUID, notes string, processedAt time.Time) error
}

type depositAccountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	UpdateBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance int64, newVersion int64) error
}

type depositLedgerRepo interface {
	Append(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error
}

type transferEngine interface {
	Transfer(ctx context.Context, req transfer.Request) (*transfer.Result, error)
}

// DepositService routes incoming deposits. A deposit aimed at the
// requester's own account number becomes a pending request that an admin
// must approve before any balance moves. A deposit aimed at someone else's
// number is really a transfer and settles instantly through the engine.
type DepositService struct {
	deposits  depositRepo
	accounts  depositAccountRepo
	ledger    depositLedgerRepo
	transfers transferEngine
	db        *repository.DB
	notifier  notify.Publisher
}

func NewDepositService(deposits depositRepo, accounts depositAccountRepo, ledger depositLedgerRepo, transfers transferEngine, db *repository.DB, notifier notify.Publisher) *DepositService {
	return &DepositService{
		deposits:  deposits,
		accounts:  accounts,
		ledger:    ledger,
		transfers: transfers,
		db:        db,
		notifier:  notifier,
	}
}

type CreateDepositRequest struct {
	AccountID         uuid.UUID
	Amount            int64
	DestinationNumber string
	SourceBankName    string
	SourceBankLast4   string
	Description       string
	RequestID         string
}

type DepositOutcome struct {
	RequiresApproval bool
	DepositID        *uuid.UUID
	TransferID       *uuid.UUID
	NewBalance       *int64
	RecipientName    string
	RecipientNumber  string
}

func (s *DepositService) Create(ctx context.Context, req CreateDepositRequest) (*DepositOutcome, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("Create deposit: %w", domain.ErrInvalidAmount)
	}

	requester, err := s.accounts.GetByID(ctx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("Create deposit: %w", err)
	}
	if !requester.IsActive() {
		return nil, fmt.Errorf("Create deposit: %w", domain.ErrAccountDeactivated)
	}

	if req.DestinationNumber != requester.AccountNumber {
		result, err := s.transfers.Transfer(ctx, transfer.Request{
			SourceAccountID: requester.ID,
			Destination:     req.DestinationNumber,
			Amount:          req.Amount,
			Description:     req.Description,
			RequestID:       req.RequestID,
		})
		if err != nil {
			return nil, fmt.Errorf("Create deposit: %w", err)
		}
		return &DepositOutcome{
			TransferID:      &result.TransferID,
			NewBalance:      &result.NewBalance,
			RecipientName:   result.RecipientName,
			RecipientNumber: result.RecipientNumber,
		}, nil
	}

	deposit := &domain.DepositRequest{
		ID:              uuid.New(),
		AccountID:       requester.ID,
		Amount:          req.Amount,
		SourceBankName:  req.SourceBankName,
		SourceBankLast4: req.SourceBankLast4,
		DestinationNum:  req.DestinationNumber,
		Status:          domain.DepositStatusPending,
		CreatedAt:       time.Now().UTC(),
	}
	if req.RequestID != "" {
		deposit.RequestID = &req.RequestID
	}

	if err := s.deposits.Create(ctx, deposit); err != nil {
		return nil, fmt.Errorf("Create deposit: %w", err)
	}

	logging.FromContext(ctx).Info("deposit request queued",
		"deposit_id", deposit.ID,
		"account_id", requester.ID,
		"amount", req.Amount,
	)

	s.publishEvent(ctx, notify.Event{
		Type:      notify.EventDepositRequested,
		AccountID: requester.ID,
		Data: map[string]any{
			"deposit_id": deposit.ID,
			"amount":     money.FormatAmount(req.Amount),
		},
		OccurredAt: deposit.CreatedAt,
	})

	return &DepositOutcome{RequiresApproval: true, DepositID: &deposit.ID}, nil
}

// Approve settles a pending deposit: flip the request, credit the account,
// and append the deposit entry, all in one transaction. The status flip is
// guarded so a concurrent or repeated approval credits nothing.
func (s *DepositService) Approve(ctx context.Context, depositID, adminID uuid.UUID, notes string) (*domain.DepositRequest, error) {
	deposit, err := s.deposits.GetByID(ctx, depositID)
	if err != nil {
		return nil, fmt.Errorf("Approve deposit: %w", err)
	}
	if deposit.Status != domain.DepositStatusPending {
		return nil, fmt.Errorf("Approve deposit: %w", domain.ErrAlreadyProcessed)
	}

	tx, err := s.db.BeginLedgerTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("Approve deposit: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if err := s.deposits.MarkProcessed(ctx, tx, deposit.ID, domain.DepositStatusApproved, adminID, notes, now); err != nil {
		return nil, fmt.Errorf("Approve deposit: %w", err)
	}

	acct, err := s.accounts.GetForUpdate(ctx, tx, deposit.AccountID)
	if err != nil {
		return nil, fmt.Errorf("Approve deposit: %w", err)
	}

	entry := &domain.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     acct.ID,
		EntryType:     domain.EntryTypeDeposit,
		Status:        domain.EntryStatusCompleted,
		Amount:        deposit.Amount,
		BalanceBefore: acct.Balance,
		BalanceAfter:  acct.Balance + deposit.Amount,
		ActorID:       &adminID,
		Description:   fmt.Sprintf("deposit from %s ****%s", deposit.SourceBankName, deposit.SourceBankLast4),
		RequestID:     deposit.RequestID,
		CreatedAt:     now,
		ProcessedAt:   &now,
	}
	if err := s.ledger.Append(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("Approve deposit: entry: %w", err)
	}

	if err := s.accounts.UpdateBalance(ctx, tx, acct.ID, entry.BalanceAfter, acct.Version+1); err != nil {
		return nil, fmt.Errorf("Approve deposit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Approve deposit: commit: %w", err)
	}

	logging.FromContext(ctx).Info("deposit approved",
		"deposit_id", deposit.ID,
		"account_id", acct.ID,
		"amount", deposit.Amount,
		"admin_id", adminID,
	)

	s.publishEvent(ctx, notify.Event{
		Type:      notify.EventDepositApproved,
		AccountID: acct.ID,
		ActorID:   &adminID,
		Reason:    notes,
		Data: map[string]any{
			"deposit_id": deposit.ID,
			"amount":     money.FormatAmount(deposit.Amount),
		},
		OccurredAt: now,
	})

	deposit.Status = domain.DepositStatusApproved
	deposit.AdminNotes = notes
	deposit.ProcessedBy = &adminID
	deposit.ProcessedAt = &now
	return deposit, nil
}

// Reject resolves a pending deposit without touching the balance.
func (s *DepositService) Reject(ctx context.Context, depositID, adminID uuid.UUID, notes string) (*domain.DepositRequest, error) {
	deposit, err := s.deposits.GetByID(ctx, depositID)
	if err != nil {
		return nil, fmt.Errorf("Reject deposit: %w", err)
	}

	tx, err := s.db.BeginLedgerTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("Reject deposit: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if err := s.deposits.MarkProcessed(ctx, tx, deposit.ID, domain.DepositStatusRejected, adminID, notes, now); err != nil {
		return nil, fmt.Errorf("Reject deposit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Reject deposit: commit: %w", err)
	}

	s.publishEvent(ctx, notify.Event{
		Type:      notify.EventDepositRejected,
		AccountID: deposit.AccountID,
		ActorID:   &adminID,
		Reason:    notes,
		Data: map[string]any{
			"deposit_id": deposit.ID,
			"amount":     money.FormatAmount(deposit.Amount),
		},
		OccurredAt: now,
	})

	deposit.Status = domain.DepositStatusRejected
	deposit.AdminNotes = notes
	deposit.ProcessedBy = &adminID
	deposit.ProcessedAt = &now
	return deposit, nil
}

func (s *DepositService) ListByStatus(ctx context.Context, status domain.DepositStatus, limit, offset int) ([]domain.DepositRequest, int, error) {
	deposits, total, err := s.deposits.ListByStatus(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByStatus: %w", err)
	}
	return deposits, total, nil
}

func (s *DepositService) ListForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.DepositRequest, int, error) {
	deposits, total, err := s.deposits.ListForAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ListForAccount: %w", err)
	}
	return deposits, total, nil
}

func (s *DepositService) publishEvent(ctx context.Context, event notify.Event) {
	if err := s.notifier.Publish(ctx, event); err != nil {
		logging.FromContext(ctx).Error("notification publish failed",
			"event_type", event.Type,
			"account_id", event.AccountID,
			"error", err,
		)
	}
}
