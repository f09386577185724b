package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/capitalpath/ledger-service/internal/domain"
	"github.com/capitalpath/ledger-service/internal/logging"
	"github.com/capitalpath/ledger-service/internal/money"
	"github.com/capitalpath/ledger-service/internal/notify"
	"github.com/capitalpath/ledger-service/internal/repository"
)

type investmentRepo interface {
	Create(ctx context.Context, tx *sql.Tx, inv *domain.Investment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Investment, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Investment, error)
	ListForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Investment, int, error)
	UpdateCurrentPrice(ctx context.Context, id uuid.UUID, price decimal.Decimal, updatedAt time.Time) error
	UpdateAdjustment(ctx context.Context, tx *sql.Tx, id uuid.UUID, adjustment int64, updatedAt time.Time) error
	TransitionStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, to domain.InvestmentStatus, updatedAt time.Time) error
}

type investmentAccountRepo interface {
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	UpdateBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance int64, newVersion int64) error
}

type investmentLedgerRepo interface {
	Append(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error
}

// InvestmentService funds positions out of the cash balance and tracks
// admin-driven valuation changes on them. Profit and loss adjustments touch
// the position's book value only; cash moves at purchase time and never on
// an adjustment.
type InvestmentService struct {
	investments investmentRepo
	accounts    investmentAccountRepo
	ledger      investmentLedgerRepo
	db          *repository.DB
	notifier    notify.Publisher
}

func NewInvestmentService(investments investmentRepo, accounts investmentAccountRepo, ledger investmentLedgerRepo, db *repository.DB, notifier notify.Publisher) *InvestmentService {
	return &InvestmentService{
		investments: investments,
		accounts:    accounts,
		ledger:      ledger,
		db:          db,
		notifier:    notifier,
	}
}

type BuyRequest struct {
	AccountID     uuid.UUID
	Category      string
	AssetName     string
	Symbol        string
	Amount        int64
	Quantity      *decimal.Decimal
	PurchasePrice *decimal.Decimal
	RequestID     string
}

// Buy debits the account and opens the position in one transaction.
func (s *InvestmentService) Buy(ctx context.Context, req BuyRequest) (*domain.Investment, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("Buy: %w", domain.ErrInvalidAmount)
	}
	if req.AssetName == "" {
		return nil, fmt.Errorf("Buy: asset name required: %w", domain.ErrInvalidRequest)
	}

	tx, err := s.db.BeginLedgerTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("Buy: %w", err)
	}
	defer tx.Rollback()

	acct, err := s.accounts.GetForUpdate(ctx, tx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("Buy: %w", err)
	}
	if !acct.IsActive() {
		return nil, fmt.Errorf("Buy: %w", domain.ErrAccountDeactivated)
	}
	if acct.Balance < req.Amount {
		return nil, fmt.Errorf("Buy: %w", domain.ErrInsufficientFunds)
	}

	now := time.Now().UTC()
	inv := &domain.Investment{
		ID:            uuid.New(),
		AccountID:     acct.ID,
		Category:      req.Category,
		AssetName:     req.AssetName,
		Symbol:        req.Symbol,
		CostBasis:     req.Amount,
		Adjustment:    0,
		Quantity:      req.Quantity,
		PurchasePrice: req.PurchasePrice,
		CurrentPrice:  req.PurchasePrice,
		Status:        domain.InvestmentStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	entry := &domain.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     acct.ID,
		EntryType:     domain.EntryTypeInvestmentBuy,
		Status:        domain.EntryStatusCompleted,
		Amount:        req.Amount,
		BalanceBefore: acct.Balance,
		BalanceAfter:  acct.Balance - req.Amount,
		Description:   fmt.Sprintf("buy %s", req.AssetName),
		CreatedAt:     now,
		ProcessedAt:   &now,
	}
	if req.RequestID != "" {
		entry.RequestID = &req.RequestID
	}
	if err := s.ledger.Append(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("Buy: entry: %w", err)
	}

	if err := s.accounts.UpdateBalance(ctx, tx, acct.ID, entry.BalanceAfter, acct.Version+1); err != nil {
		return nil, fmt.Errorf("Buy: %w", err)
	}
	if err := s.investments.Create(ctx, tx, inv); err != nil {
		return nil, fmt.Errorf("Buy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Buy: commit: %w", err)
	}

	logging.FromContext(ctx).Info("investment opened",
		"investment_id", inv.ID,
		"account_id", acct.ID,
		"asset", inv.AssetName,
		"amount", req.Amount,
	)

	return inv, nil
}

func (s *InvestmentService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Investment, error) {
	inv, err := s.investments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return inv, nil
}

func (s *InvestmentService) ListForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Investment, int, error) {
	invs, total, err := s.investments.ListForAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ListForAccount: %w", err)
	}
	return invs, total, nil
}

// UpdatePrice records a new market price for the position. Unrealized P/L
// is derived at read time, so nothing else changes.
func (s *InvestmentService) UpdatePrice(ctx context.Context, investmentID uuid.UUID, price decimal.Decimal, adminID uuid.UUID) (*domain.Investment, error) {
	inv, err := s.investments.GetByID(ctx, investmentID)
	if err != nil {
		return nil, fmt.Errorf("UpdatePrice: %w", err)
	}
	if inv.Status != domain.InvestmentStatusActive {
		return nil, fmt.Errorf("UpdatePrice: %w", domain.ErrInvestmentClosed)
	}

	now := time.Now().UTC()
	if err := s.investments.UpdateCurrentPrice(ctx, inv.ID, price, now); err != nil {
		return nil, fmt.Errorf("UpdatePrice: %w", err)
	}

	inv.CurrentPrice = &price
	inv.UpdatedAt = now

	s.publishEvent(ctx, notify.Event{
		Type:      notify.EventInvestmentUpdated,
		AccountID: inv.AccountID,
		ActorID:   &adminID,
		Data: map[string]any{
			"investment_id": inv.ID,
			"current_price": price.String(),
		},
		OccurredAt: now,
	})

	return inv, nil
}

type InvestmentAdjustRequest struct {
	InvestmentID uuid.UUID
	Profit       bool
	Amount       int64
	Reason       string
	AdminID      uuid.UUID
	RequestID    string
}

// Adjust books an admin profit or loss against the position. A loss larger
// than the current book value is rejected so the book value stays at or
// above zero. The ledger gets an audit entry with a zero cash delta.
func (s *InvestmentService) Adjust(ctx context.Context, req InvestmentAdjustRequest) (*domain.Investment, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("Adjust: %w", domain.ErrInvalidAmount)
	}

	tx, err := s.db.BeginLedgerTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("Adjust: %w", err)
	}
	defer tx.Rollback()

	inv, err := s.investments.GetForUpdate(ctx, tx, req.InvestmentID)
	if err != nil {
		return nil, fmt.Errorf("Adjust: %w", err)
	}
	if inv.Status != domain.InvestmentStatusActive {
		return nil, fmt.Errorf("Adjust: %w", domain.ErrInvestmentClosed)
	}

	delta := req.Amount
	label := "profit"
	if !req.Profit {
		delta = -req.Amount
		label = "loss"
		if inv.BookValue()-req.Amount < 0 {
			return nil, fmt.Errorf("Adjust: loss exceeds book value: %w", domain.ErrInvalidAmount)
		}
	}

	acct, err := s.accounts.GetForUpdate(ctx, tx, inv.AccountID)
	if err != nil {
		return nil, fmt.Errorf("Adjust: %w", err)
	}

	now := time.Now().UTC()
	newAdjustment := inv.Adjustment + delta
	if err := s.investments.UpdateAdjustment(ctx, tx, inv.ID, newAdjustment, now); err != nil {
		return nil, fmt.Errorf("Adjust: %w", err)
	}

	entry := &domain.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     inv.AccountID,
		EntryType:     domain.EntryTypeInvestmentAdjust,
		Status:        domain.EntryStatusCompleted,
		Amount:        req.Amount,
		BalanceBefore: acct.Balance,
		BalanceAfter:  acct.Balance,
		ActorID:       &req.AdminID,
		Description:   fmt.Sprintf("%s on %s: %s", label, inv.AssetName, req.Reason),
		CreatedAt:     now,
		ProcessedAt:   &now,
	}
	if req.RequestID != "" {
		entry.RequestID = &req.RequestID
	}
	if err := s.ledger.Append(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("Adjust: entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Adjust: commit: %w", err)
	}

	inv.Adjustment = newAdjustment
	inv.UpdatedAt = now

	logging.FromContext(ctx).Info("investment adjusted",
		"investment_id", inv.ID,
		"account_id", inv.AccountID,
		"kind", label,
		"amount", req.Amount,
		"admin_id", req.AdminID,
	)

	s.publishEvent(ctx, notify.Event{
		Type:      notify.EventInvestmentUpdated,
		AccountID: inv.AccountID,
		ActorID:   &req.AdminID,
		Reason:    req.Reason,
		Data: map[string]any{
			"investment_id": inv.ID,
			"kind":          label,
			"amount":        money.FormatAmount(req.Amount),
			"book_value":    money.FormatAmount(inv.BookValue()),
		},
		OccurredAt: now,
	})

	return inv, nil
}

// Remove closes the position without refunding cash. The book value at
// closing time is recorded on an audit entry so the disposal stays visible
// in the account history.
func (s *InvestmentService) Remove(ctx context.Context, investmentID uuid.UUID, reason string, adminID uuid.UUID) error {
	tx, err := s.db.BeginLedgerTx(ctx)
	if err != nil {
		return fmt.Errorf("Remove: %w", err)
	}
	defer tx.Rollback()

	inv, err := s.investments.GetForUpdate(ctx, tx, investmentID)
	if err != nil {
		return fmt.Errorf("Remove: %w", err)
	}

	acct, err := s.accounts.GetForUpdate(ctx, tx, inv.AccountID)
	if err != nil {
		return fmt.Errorf("Remove: %w", err)
	}

	now := time.Now().UTC()
	if err := s.investments.TransitionStatus(ctx, tx, inv.ID, domain.InvestmentStatusSold, now); err != nil {
		return fmt.Errorf("Remove: %w", err)
	}

	entry := &domain.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     inv.AccountID,
		EntryType:     domain.EntryTypeInvestmentAdjust,
		Status:        domain.EntryStatusCompleted,
		Amount:        inv.BookValue(),
		BalanceBefore: acct.Balance,
		BalanceAfter:  acct.Balance,
		ActorID:       &adminID,
		Description:   fmt.Sprintf("closed %s: %s", inv.AssetName, reason),
		CreatedAt:     now,
		ProcessedAt:   &now,
	}
	if err := s.ledger.Append(ctx, tx, entry); err != nil {
		return fmt.Errorf("Remove: entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Remove: commit: %w", err)
	}

	logging.FromContext(ctx).Info("investment closed",
		"investment_id", inv.ID,
		"account_id", inv.AccountID,
		"admin_id", adminID,
		"reason", reason,
	)

	s.publishEvent(ctx, notify.Event{
		Type:      notify.EventInvestmentUpdated,
		AccountID: inv.AccountID,
		ActorID:   &adminID,
		Reason:    reason,
		Data: map[string]any{
			"investment_id": inv.ID,
			"status":        string(domain.InvestmentStatusSold),
		},
		OccurredAt: now,
	})

	return nil
}

func (s *InvestmentService) publishEvent(ctx context.Context, event notify.Event) {
	if err := s.notifier.Publish(ctx, event); err != nil {
		logging.FromContext(ctx).Error("notification publish failed",
			"event_type", event.Type,
			"account_id", event.AccountID,
			"error", err,
		)
	}
}
