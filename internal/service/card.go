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
)

type cardRepo interface {
	CreateCard(ctx context.Context, tx *sql.Tx, card *domain.CreditCard) error
	GetCardByID(ctx context.Context, id uuid.UUID) (*domain.CreditCard, error)
	GetCardForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.CreditCard, error)
	ListCardsForAccount(ctx context.Context, accountID uuid.UUID) ([]domain.CreditCard, error)
	UpdateCreditLine(ctx context.Context, tx *sql.Tx, id uuid.UUID, cardType domain.CardType, creditLimit, availableCredit int64, updatedAt time.Time) error
	UpdateNetwork(ctx context.Context, id uuid.UUID, network domain.CardNetwork, updatedAt time.Time) error
	UpdateCardStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.CardStatus, updatedAt time.Time) error
	UpdateAvailableCredit(ctx context.Context, tx *sql.Tx, id uuid.UUID, available int64, updatedAt time.Time) error
	CreateRequest(ctx context.Context, req *domain.CardRequest) error
	GetRequestByID(ctx context.Context, id uuid.UUID) (*domain.CardRequest, error)
	ListRequestsByStatus(ctx context.Context, status domain.CardRequestStatus) ([]domain.CardRequest, error)
	MarkRequestProcessed(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.CardRequestStatus, adminID uuid.UUID, notes string, cardID *uuid.UUID, processedAt time.Time) error
}

type cardAccountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
}

// CardService issues credit cards against approved card requests and
// manages the credit line afterwards. The credit limit is fixed per tier;
// only an admin can move a card between tiers.
type CardService struct {
	cards    cardRepo
	accounts cardAccountRepo
	db       *repository.DB
	notifier notify.Publisher
}

func NewCardService(cards cardRepo, accounts cardAccountRepo, db *repository.DB, notifier notify.Publisher) *CardService {
	return &CardService{
		cards:    cards,
		accounts: accounts,
		db:       db,
		notifier: notifier,
	}
}

// RequestCard queues a card request. Requires an active account with
// approved identity verification.
func (s *CardService) RequestCard(ctx context.Context, accountID uuid.UUID, cardType domain.CardType, network domain.CardNetwork) (*domain.CardRequest, error) {
	if !cardType.IsValid() {
		return nil, fmt.Errorf("RequestCard: %w", domain.ErrInvalidRequest)
	}
	if !network.IsValid() {
		return nil, fmt.Errorf("RequestCard: %w", domain.ErrInvalidRequest)
	}

	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("RequestCard: %w", err)
	}
	if !acct.IsActive() {
		return nil, fmt.Errorf("RequestCard: %w", domain.ErrAccountDeactivated)
	}
	if acct.KYCStatus != domain.KYCStatusApproved {
		return nil, fmt.Errorf("RequestCard: %w", domain.ErrKYCNotApproved)
	}

	req := &domain.CardRequest{
		ID:        uuid.New(),
		AccountID: acct.ID,
		CardType:  cardType,
		Network:   network,
		Status:    domain.CardRequestStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.cards.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("RequestCard: %w", err)
	}

	logging.FromContext(ctx).Info("card requested",
		"request_id", req.ID,
		"account_id", acct.ID,
		"card_type", cardType,
	)

	return req, nil
}

type CardDecision struct {
	RequestID uuid.UUID
	Approve   bool
	// Optional per-decision overrides. When nil the requested values are
	// issued. Carried on the decision itself so two admins deciding at the
	// same time cannot leak configuration into each other's request.
	CardType *domain.CardType
	Network  *domain.CardNetwork
	AdminID  uuid.UUID
	Notes    string
}

// DecideRequest resolves a pending card request exactly once. Approval
// issues the card in the same transaction as the status flip, so a
// double approval can never mint two cards.
func (s *CardService) DecideRequest(ctx context.Context, d CardDecision) (*domain.CreditCard, error) {
	req, err := s.cards.GetRequestByID(ctx, d.RequestID)
	if err != nil {
		return nil, fmt.Errorf("DecideRequest: %w", err)
	}
	if req.Status != domain.CardRequestStatusPending {
		return nil, fmt.Errorf("DecideRequest: %w", domain.ErrAlreadyProcessed)
	}

	now := time.Now().UTC()

	if !d.Approve {
		tx, err := s.db.BeginLedgerTx(ctx)
		if err != nil {
			return nil, fmt.Errorf("DecideRequest: %w", err)
		}
		defer tx.Rollback()
		if err := s.cards.MarkRequestProcessed(ctx, tx, req.ID, domain.CardRequestStatusRejected, d.AdminID, d.Notes, nil, now); err != nil {
			return nil, fmt.Errorf("DecideRequest: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("DecideRequest: commit: %w", err)
		}

		s.publishEvent(ctx, notify.Event{
			Type:       notify.EventCardRejected,
			AccountID:  req.AccountID,
			ActorID:    &d.AdminID,
			Reason:     d.Notes,
			Data:       map[string]any{"request_id": req.ID},
			OccurredAt: now,
		})
		return nil, nil
	}

	cardType := req.CardType
	if d.CardType != nil {
		cardType = *d.CardType
	}
	network := req.Network
	if d.Network != nil {
		network = *d.Network
	}
	if !cardType.IsValid() {
		return nil, fmt.Errorf("DecideRequest: %w", domain.ErrInvalidRequest)
	}
	limit := domain.CreditLimitFor(cardType)
	if !network.IsValid() {
		return nil, fmt.Errorf("DecideRequest: %w", domain.ErrInvalidRequest)
	}

	acct, err := s.accounts.GetByID(ctx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("DecideRequest: %w", err)
	}
	if !acct.IsActive() {
		return nil, fmt.Errorf("DecideRequest: %w", domain.ErrAccountDeactivated)
	}
	if acct.KYCStatus != domain.KYCStatusApproved {
		return nil, fmt.Errorf("DecideRequest: %w", domain.ErrKYCNotApproved)
	}

	card := &domain.CreditCard{
		ID:              uuid.New(),
		AccountID:       req.AccountID,
		CardType:        cardType,
		Network:         network,
		CreditLimit:     limit,
		AvailableCredit: limit,
		Status:          domain.CardStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	tx, err := s.db.BeginLedgerTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("DecideRequest: %w", err)
	}
	defer tx.Rollback()

	if err := s.cards.MarkRequestProcessed(ctx, tx, req.ID, domain.CardRequestStatusApproved, d.AdminID, d.Notes, &card.ID, now); err != nil {
		return nil, fmt.Errorf("DecideRequest: %w", err)
	}
	if err := s.cards.CreateCard(ctx, tx, card); err != nil {
		return nil, fmt.Errorf("DecideRequest: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("DecideRequest: commit: %w", err)
	}

	logging.FromContext(ctx).Info("card issued",
		"card_id", card.ID,
		"account_id", card.AccountID,
		"card_type", card.CardType,
		"admin_id", d.AdminID,
	)

	s.publishEvent(ctx, notify.Event{
		Type:      notify.EventCardIssued,
		AccountID: card.AccountID,
		ActorID:   &d.AdminID,
		Data: map[string]any{
			"card_id":      card.ID,
			"card_type":    string(card.CardType),
			"credit_limit": money.FormatAmount(card.CreditLimit),
		},
		OccurredAt: now,
	})

	return card, nil
}

func (s *CardService) GetCard(ctx context.Context, id uuid.UUID) (*domain.CreditCard, error) {
	card, err := s.cards.GetCardByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetCard: %w", err)
	}
	return card, nil
}

func (s *CardService) ListCards(ctx context.Context, accountID uuid.UUID) ([]domain.CreditCard, error) {
	cards, err := s.cards.ListCardsForAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("ListCards: %w", err)
	}
	return cards, nil
}

func (s *CardService) ListRequests(ctx context.Context, status domain.CardRequestStatus) ([]domain.CardRequest, error) {
	reqs, err := s.cards.ListRequestsByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("ListRequests: %w", err)
	}
	return reqs, nil
}

// ChangeType moves the card to a new tier. Credit already consumed on the
// old tier carries over, so the new available credit is the new limit minus
// the consumed portion, floored at zero when downgrading past usage.
func (s *CardService) ChangeType(ctx context.Context, cardID uuid.UUID, newType domain.CardType, adminID uuid.UUID, reason string) (*domain.CreditCard, error) {
	if !newType.IsValid() {
		return nil, fmt.Errorf("ChangeType: %w", domain.ErrInvalidRequest)
	}
	newLimit := domain.CreditLimitFor(newType)

	tx, err := s.db.BeginLedgerTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("ChangeType: %w", err)
	}
	defer tx.Rollback()

	card, err := s.cards.GetCardForUpdate(ctx, tx, cardID)
	if err != nil {
		return nil, fmt.Errorf("ChangeType: %w", err)
	}
	if card.Status != domain.CardStatusActive {
		return nil, fmt.Errorf("ChangeType: %w", domain.ErrCardDeactivated)
	}

	consumed := card.CreditLimit - card.AvailableCredit
	newAvailable := newLimit - consumed
	if newAvailable < 0 {
		newAvailable = 0
	}

	now := time.Now().UTC()
	if err := s.cards.UpdateCreditLine(ctx, tx, card.ID, newType, newLimit, newAvailable, now); err != nil {
		return nil, fmt.Errorf("ChangeType: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ChangeType: commit: %w", err)
	}

	card.CardType = newType
	card.CreditLimit = newLimit
	card.AvailableCredit = newAvailable
	card.UpdatedAt = now

	logging.FromContext(ctx).Info("card tier changed",
		"card_id", card.ID,
		"card_type", newType,
		"admin_id", adminID,
	)

	s.publishEvent(ctx, notify.Event{
		Type:      notify.EventCardUpdated,
		AccountID: card.AccountID,
		ActorID:   &adminID,
		Reason:    reason,
		Data: map[string]any{
			"card_id":      card.ID,
			"card_type":    string(newType),
			"credit_limit": money.FormatAmount(newLimit),
		},
		OccurredAt: now,
	})

	return card, nil
}

func (s *CardService) ChangeNetwork(ctx context.Context, cardID uuid.UUID, network domain.CardNetwork, adminID uuid.UUID) (*domain.CreditCard, error) {
	if !network.IsValid() {
		return nil, fmt.Errorf("ChangeNetwork: %w", domain.ErrInvalidRequest)
	}
	card, err := s.cards.GetCardByID(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("ChangeNetwork: %w", err)
	}

	now := time.Now().UTC()
	if err := s.cards.UpdateNetwork(ctx, card.ID, network, now); err != nil {
		return nil, fmt.Errorf("ChangeNetwork: %w", err)
	}

	card.Network = network
	card.UpdatedAt = now

	s.publishEvent(ctx, notify.Event{
		Type:      notify.EventCardUpdated,
		AccountID: card.AccountID,
		ActorID:   &adminID,
		Data: map[string]any{
			"card_id": card.ID,
			"network": string(network),
		},
		OccurredAt: now,
	})

	return card, nil
}

func (s *CardService) SetCardStatus(ctx context.Context, cardID uuid.UUID, status domain.CardStatus, adminID uuid.UUID, reason string) (*domain.CreditCard, error) {
	tx, err := s.db.BeginLedgerTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("SetCardStatus: %w", err)
	}
	defer tx.Rollback()

	card, err := s.cards.GetCardForUpdate(ctx, tx, cardID)
	if err != nil {
		return nil, fmt.Errorf("SetCardStatus: %w", err)
	}

	now := time.Now().UTC()
	if err := s.cards.UpdateCardStatus(ctx, tx, card.ID, status, now); err != nil {
		return nil, fmt.Errorf("SetCardStatus: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("SetCardStatus: commit: %w", err)
	}

	card.Status = status
	card.UpdatedAt = now

	s.publishEvent(ctx, notify.Event{
		Type:      notify.EventCardUpdated,
		AccountID: card.AccountID,
		ActorID:   &adminID,
		Reason:    reason,
		Data: map[string]any{
			"card_id": card.ID,
			"status":  string(status),
		},
		OccurredAt: now,
	})

	return card, nil
}

// Spend consumes available credit on the card. The cash balance is not
// involved; this is pure credit-line accounting.
func (s *CardService) Spend(ctx context.Context, cardID uuid.UUID, amount int64) (*domain.CreditCard, error) {
	return s.moveCredit(ctx, cardID, -amount, "Spend")
}

// Repay restores available credit, capped at the card's limit.
func (s *CardService) Repay(ctx context.Context, cardID uuid.UUID, amount int64) (*domain.CreditCard, error) {
	return s.moveCredit(ctx, cardID, amount, "Repay")
}

func (s *CardService) moveCredit(ctx context.Context, cardID uuid.UUID, delta int64, op string) (*domain.CreditCard, error) {
	if delta == 0 {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrInvalidAmount)
	}

	tx, err := s.db.BeginLedgerTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	card, err := s.cards.GetCardForUpdate(ctx, tx, cardID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if card.Status != domain.CardStatusActive {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrCardDeactivated)
	}

	newAvailable := card.AvailableCredit + delta
	if newAvailable < 0 {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrCreditExceeded)
	}
	if newAvailable > card.CreditLimit {
		newAvailable = card.CreditLimit
	}

	now := time.Now().UTC()
	if err := s.cards.UpdateAvailableCredit(ctx, tx, card.ID, newAvailable, now); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", op, err)
	}

	card.AvailableCredit = newAvailable
	card.UpdatedAt = now
	return card, nil
}

func (s *CardService) publishEvent(ctx context.Context, event notify.Event) {
	if err := s.notifier.Publish(ctx, event); err != nil {
		logging.FromContext(ctx).Error("notification publish failed",
			"event_type", event.Type,
			"account_id", event.AccountID,
			"error", err,
		)
	}
}
