package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/capitalpath/ledger-service/internal/domain"
	"github.com/capitalpath/ledger-service/internal/logging"
	"github.com/capitalpath/ledger-service/internal/notify"
	"github.com/capitalpath/ledger-service/internal/repository"
)

type accountRepo interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.AccountStatus) error
	TransitionKYC(ctx context.Context, id uuid.UUID, from []domain.KYCStatus, to domain.KYCStatus) error
}

type cardDeactivator interface {
	DeactivateForAccount(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, updatedAt time.Time) error
}

type ledgerAuditor interface {
	ListForAccount(ctx context.Context, accountID uuid.UUID, f repository.LedgerFilter) ([]domain.LedgerEntry, int, error)
	SumSignedForAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
}

type AccountService struct {
	accounts accountRepo
	cards    cardDeactivator
	ledger   ledgerAuditor
	db       *repository.DB
	notifier notify.Publisher
}

func NewAccountService(accounts accountRepo, cards cardDeactivator, ledger ledgerAuditor, db *repository.DB, notifier notify.Publisher) *AccountService {
	return &AccountService{
		accounts: accounts,
		cards:    cards,
		ledger:   ledger,
		db:       db,
		notifier: notifier,
	}
}

// Signup creates the account with a zero balance and a freshly assigned
// account number. The number is the routing identifier for transfers and
// deposits and never changes afterwards.
func (s *AccountService) Signup(ctx context.Context, email, name, password string) (*domain.Account, error) {
	log := logging.FromContext(ctx)

	_, err := s.accounts.GetByEmail(ctx, email)
	if err == nil {
		return nil, fmt.Errorf("Signup: %w", domain.ErrEmailTaken)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("Signup: check existing: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("Signup: hash password: %w", err)
	}

	number, err := GenerateAccountNumber()
	if err != nil {
		return nil, fmt.Errorf("Signup: %w", err)
	}

	account := &domain.Account{
		ID:            uuid.New(),
		Email:         strings.ToLower(email),
		Name:          name,
		PasswordHash:  string(hash),
		Role:          domain.RoleUser,
		Balance:       0,
		Version:       1,
		AccountNumber: number,
		Status:        domain.AccountStatusActive,
		KYCStatus:     domain.KYCStatusNotSubmitted,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("Signup: %w", err)
	}

	log.Info("account created",
		"account_id", account.ID,
		"account_number", account.AccountNumber,
	)

	return account, nil
}

func (s *AccountService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return a, nil
}

func (s *AccountService) ListLedger(ctx context.Context, accountID uuid.UUID, f repository.LedgerFilter) ([]domain.LedgerEntry, int, error) {
	entries, total, err := s.ledger.ListForAccount(ctx, accountID, f)
	if err != nil {
		return nil, 0, fmt.Errorf("ListLedger: %w", err)
	}
	return entries, total, nil
}

// Reconcile recomputes Σ(signed completed entries) and compares it to the
// stored balance. A mismatch means the conservation invariant was broken.
func (s *AccountService) Reconcile(ctx context.Context, accountID uuid.UUID) (int64, int64, error) {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return 0, 0, fmt.Errorf("Reconcile: %w", err)
	}
	sum, err := s.ledger.SumSignedForAccount(ctx, accountID)
	if err != nil {
		return 0, 0, fmt.Errorf("Reconcile: %w", err)
	}
	return acct.Balance, sum, nil
}

// SubmitKYC moves the account into the pending queue. Resubmission after a
// rejection is allowed; a pending or approved state is not restarted.
func (s *AccountService) SubmitKYC(ctx context.Context, accountID uuid.UUID) error {
	err := s.accounts.TransitionKYC(ctx, accountID,
		[]domain.KYCStatus{domain.KYCStatusNotSubmitted, domain.KYCStatusRejected},
		domain.KYCStatusPending,
	)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyProcessed) {
			return fmt.Errorf("SubmitKYC: %w", domain.ErrKYCPending)
		}
		return fmt.Errorf("SubmitKYC: %w", err)
	}
	return nil
}

// DecideKYC resolves a pending submission exactly once.
func (s *AccountService) DecideKYC(ctx context.Context, accountID uuid.UUID, approve bool, adminID uuid.UUID, notes string) error {
	to := domain.KYCStatusApproved
	eventOutcome := "approved"
	if !approve {
		to = domain.KYCStatusRejected
		eventOutcome = "rejected"
	}

	err := s.accounts.TransitionKYC(ctx, accountID, []domain.KYCStatus{domain.KYCStatusPending}, to)
	if err != nil {
		return fmt.Errorf("DecideKYC: %w", err)
	}

	logging.FromContext(ctx).Info("kyc decision",
		"account_id", accountID,
		"outcome", eventOutcome,
		"admin_id", adminID,
	)

	s.publishEvent(ctx, notify.Event{
		Type:       notify.EventKYCDecided,
		AccountID:  accountID,
		ActorID:    &adminID,
		Reason:     notes,
		Data:       map[string]any{"outcome": eventOutcome},
		OccurredAt: time.Now().UTC(),
	})

	return nil
}

// Deactivate soft-disables the account and cascades onto its credit cards
// in the same transaction. Ledger history is left untouched.
func (s *AccountService) Deactivate(ctx context.Context, accountID, adminID uuid.UUID, reason string) error {
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		return fmt.Errorf("Deactivate: %w", err)
	}

	tx, err := s.db.BeginLedgerTx(ctx)
	if err != nil {
		return fmt.Errorf("Deactivate: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if err := s.accounts.UpdateStatus(ctx, tx, accountID, domain.AccountStatusDeactivated); err != nil {
		return fmt.Errorf("Deactivate: %w", err)
	}
	if err := s.cards.DeactivateForAccount(ctx, tx, accountID, now); err != nil {
		return fmt.Errorf("Deactivate: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Deactivate: commit: %w", err)
	}

	logging.FromContext(ctx).Info("account deactivated",
		"account_id", accountID,
		"admin_id", adminID,
		"reason", reason,
	)

	s.publishEvent(ctx, notify.Event{
		Type:       notify.EventAccountStatus,
		AccountID:  accountID,
		ActorID:    &adminID,
		Reason:     reason,
		Data:       map[string]any{"status": string(domain.AccountStatusDeactivated)},
		OccurredAt: now,
	})

	return nil
}

// Activate re-enables the account. Cards deactivated by the cascade stay
// deactivated until an admin re-enables them individually.
func (s *AccountService) Activate(ctx context.Context, accountID, adminID uuid.UUID, reason string) error {
	tx, err := s.db.BeginLedgerTx(ctx)
	if err != nil {
		return fmt.Errorf("Activate: %w", err)
	}
	defer tx.Rollback()

	if err := s.accounts.UpdateStatus(ctx, tx, accountID, domain.AccountStatusActive); err != nil {
		return fmt.Errorf("Activate: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Activate: commit: %w", err)
	}

	s.publishEvent(ctx, notify.Event{
		Type:       notify.EventAccountStatus,
		AccountID:  accountID,
		ActorID:    &adminID,
		Reason:     reason,
		Data:       map[string]any{"status": string(domain.AccountStatusActive)},
		OccurredAt: time.Now().UTC(),
	})

	return nil
}

func (s *AccountService) publishEvent(ctx context.Context, event notify.Event) {
	if err := s.notifier.Publish(ctx, event); err != nil {
		logging.FromContext(ctx).Error("notification publish failed",
			"event_type", event.Type,
			"account_id", event.AccountID,
			"error", err,
		)
	}
}

const accountNumberPrefix = "CP"

// GenerateAccountNumber returns a fresh 10-character account number:
// the CP prefix plus eight crypto-random digits.
func GenerateAccountNumber() (string, error) {
	digits := make([]byte, 8)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("GenerateAccountNumber: %w", err)
		}
		digits[i] = '0' + byte(n.Int64())
	}
	return accountNumberPrefix + string(digits), nil
}
