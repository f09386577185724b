package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/capitalpath/ledger-service/internal/auth"
	"github.com/capitalpath/ledger-service/internal/domain"
	"github.com/capitalpath/ledger-service/internal/logging"
	"github.com/capitalpath/ledger-service/internal/money"
)

type cardService interface {
	RequestCard(ctx context.Context, accountID uuid.UUID, cardType domain.CardType, network domain.CardNetwork) (*domain.CardRequest, error)
	ListCards(ctx context.Context, accountID uuid.UUID) ([]domain.CreditCard, error)
	GetCard(ctx context.Context, id uuid.UUID) (*domain.CreditCard, error)
	Spend(ctx context.Context, cardID uuid.UUID, amount int64) (*domain.CreditCard, error)
	Repay(ctx context.Context, cardID uuid.UUID, amount int64) (*domain.CreditCard, error)
}

type CardHandler struct {
	cards cardService
}

func NewCardHandler(cards cardService) *CardHandler {
	return &CardHandler{cards: cards}
}

type cardDTO struct {
	ID              uuid.UUID `json:"id"`
	CardType        string    `json:"card_type"`
	Network         string    `json:"network"`
	CreditLimit     string    `json:"credit_limit"`
	AvailableCredit string    `json:"available_credit"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

func toCardDTO(c *domain.CreditCard) cardDTO {
	return cardDTO{
		ID:              c.ID,
		CardType:        string(c.CardType),
		Network:         string(c.Network),
		CreditLimit:     money.FormatAmount(c.CreditLimit),
		AvailableCredit: money.FormatAmount(c.AvailableCredit),
		Status:          string(c.Status),
		CreatedAt:       c.CreatedAt,
	}
}

type cardRequestDTO struct {
	ID          uuid.UUID  `json:"id"`
	AccountID   uuid.UUID  `json:"account_id"`
	CardType    string     `json:"card_type"`
	Network     string     `json:"network"`
	Status      string     `json:"status"`
	AdminNotes  string     `json:"admin_notes,omitempty"`
	CardID      *uuid.UUID `json:"card_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

func toCardRequestDTO(req *domain.CardRequest) cardRequestDTO {
	return cardRequestDTO{
		ID:          req.ID,
		AccountID:   req.AccountID,
		CardType:    string(req.CardType),
		Network:     string(req.Network),
		Status:      string(req.Status),
		AdminNotes:  req.AdminNotes,
		CardID:      req.CardID,
		CreatedAt:   req.CreatedAt,
		ProcessedAt: req.ProcessedAt,
	}
}

type requestCardRequest struct {
	CardType string `json:"card_type"`
	Network  string `json:"network"`
}

func (r requestCardRequest) Validate() []FieldError {
	var errs []FieldError
	if !domain.CardType(r.CardType).IsValid() {
		errs = append(errs, FieldError{Field: "card_type", Message: "must be platinum, gold, or black"})
	}
	if !domain.CardNetwork(r.Network).IsValid() {
		errs = append(errs, FieldError{Field: "network", Message: "must be visa or mastercard"})
	}
	return errs
}

func (h *CardHandler) Request(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req requestCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	cardReq, err := h.cards.RequestCard(r.Context(), accountID, domain.CardType(req.CardType), domain.CardNetwork(req.Network))
	if err != nil {
		logging.FromContext(r.Context()).Error("card request failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toCardRequestDTO(cardReq))
}

func (h *CardHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	cards, err := h.cards.ListCards(r.Context(), accountID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]cardDTO, len(cards))
	for i := range cards {
		dtos[i] = toCardDTO(&cards[i])
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

type creditMoveRequest struct {
	Amount string `json:"amount"`
}

func (h *CardHandler) Spend(w http.ResponseWriter, r *http.Request) {
	h.moveCredit(w, r, h.cards.Spend)
}

func (h *CardHandler) Repay(w http.ResponseWriter, r *http.Request) {
	h.moveCredit(w, r, h.cards.Repay)
}

// moveCredit handles the shared shape of spend and repay. The card must
// belong to the caller.
func (h *CardHandler) moveCredit(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID, int64) (*domain.CreditCard, error)) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	cardID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "id", Message: "must be a valid uuid"}})
		return
	}

	card, err := h.cards.GetCard(r.Context(), cardID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	if card.AccountID != accountID {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req creditMoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	amount, err := money.ParseAmount(req.Amount)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	updated, err := op(r.Context(), cardID, amount)
	if err != nil {
		logging.FromContext(r.Context()).Error("credit move failed", "error", err, "card_id", cardID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toCardDTO(updated))
}
