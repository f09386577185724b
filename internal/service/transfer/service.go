// Package transfer is the engine behind every cash-balance mutation:
// peer transfers by account number, withdrawals, and admin adjustments.
// Each operation runs as one transaction that locks the affected account
// rows, applies the balance deltas, and appends the matching ledger
// entries, so a balance change without its entry (or the reverse) cannot
// be observed.
package transfer

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/capitalpath/ledger-service/internal/domain"
	"github.com/capitalpath/ledger-service/internal/logging"
	"github.com/capitalpath/ledger-service/internal/notify"
	"github.com/capitalpath/ledger-service/internal/repository"
)

type accountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByAccountNumber(ctx context.Context, number string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	UpdateBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance int64, newVersion int64) error
}

type ledgerRepo interface {
	Append(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error
}

type Service struct {
	accounts accountRepo
	ledger   ledgerRepo
	db       *repository.DB
	notifier notify.Publisher
}

func NewService(accounts accountRepo, ledger ledgerRepo, db *repository.DB, notifier notify.Publisher) *Service {
	return &Service{
		accounts: accounts,
		ledger:   ledger,
		db:       db,
		notifier: notifier,
	}
}

// lockAccountsInOrder acquires FOR UPDATE locks in ascending account id
// order regardless of transfer direction, so two opposing transfers cannot
// deadlock each other.
func lockAccountsInOrder(ctx context.Context, tx *sql.Tx, accounts accountRepo, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	result := make(map[uuid.UUID]*domain.Account, len(ids))
	for _, id := range sorted {
		acct, err := accounts.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("lockAccountsInOrder: %w", err)
		}
		result[id] = acct
	}
	return result, nil
}

func verifyAccountActive(acct *domain.Account, role string) error {
	if !acct.IsActive() {
		return fmt.Errorf("%s: %w", role, domain.ErrAccountDeactivated)
	}
	return nil
}

func completedEntry(accountID uuid.UUID, entryType domain.EntryType, amount, balanceBefore int64, now time.Time) *domain.LedgerEntry {
	return &domain.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     accountID,
		EntryType:     entryType,
		Status:        domain.EntryStatusCompleted,
		Amount:        amount,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceBefore + entryType.Direction()*amount,
		CreatedAt:     now,
		ProcessedAt:   &now,
	}
}

// publishEvent fires the notification side effect after commit. Failures
// are logged, never propagated: the money has already moved.
func (s *Service) publishEvent(ctx context.Context, event notify.Event) {
	if err := s.notifier.Publish(ctx, event); err != nil {
		logging.FromContext(ctx).Error("notification publish failed",
			"event_type", event.Type,
			"account_id", event.AccountID,
			"error", err,
		)
	}
}
