package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/capitalpath/ledger-service/internal/auth"
	"github.com/capitalpath/ledger-service/internal/domain"
	"github.com/capitalpath/ledger-service/internal/logging"
	"github.com/capitalpath/ledger-service/internal/money"
	"github.com/capitalpath/ledger-service/internal/service"
)

type investmentService interface {
	Buy(ctx context.Context, req service.BuyRequest) (*domain.Investment, error)
	ListForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Investment, int, error)
}

type InvestmentHandler struct {
	investments investmentService
}

func NewInvestmentHandler(investments investmentService) *InvestmentHandler {
	return &InvestmentHandler{investments: investments}
}

type buyInvestmentRequest struct {
	Category      string `json:"category"`
	AssetName     string `json:"asset_name"`
	Symbol        string `json:"symbol"`
	Amount        string `json:"amount"`
	Quantity      string `json:"quantity"`
	PurchasePrice string `json:"purchase_price"`
}

func (r buyInvestmentRequest) Validate() []FieldError {
	var errs []FieldError
	if r.AssetName == "" {
		errs = append(errs, FieldError{Field: "asset_name", Message: "required"})
	}
	if r.Amount == "" {
		errs = append(errs, FieldError{Field: "amount", Message: "required"})
	}
	return errs
}

type investmentDTO struct {
	ID            uuid.UUID `json:"id"`
	Category      string    `json:"category,omitempty"`
	AssetName     string    `json:"asset_name"`
	Symbol        string    `json:"symbol,omitempty"`
	CostBasis     string    `json:"cost_basis"`
	BookValue     string    `json:"book_value"`
	Quantity      *string   `json:"quantity,omitempty"`
	PurchasePrice *string   `json:"purchase_price,omitempty"`
	CurrentPrice  *string   `json:"current_price,omitempty"`
	UnrealizedPL  *string   `json:"unrealized_pl,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toInvestmentDTO(inv *domain.Investment) investmentDTO {
	dto := investmentDTO{
		ID:        inv.ID,
		Category:  inv.Category,
		AssetName: inv.AssetName,
		Symbol:    inv.Symbol,
		CostBasis: money.FormatAmount(inv.CostBasis),
		BookValue: money.FormatAmount(inv.BookValue()),
		Status:    string(inv.Status),
		CreatedAt: inv.CreatedAt,
		UpdatedAt: inv.UpdatedAt,
	}
	if inv.Quantity != nil {
		s := inv.Quantity.String()
		dto.Quantity = &s
	}
	if inv.PurchasePrice != nil {
		s := inv.PurchasePrice.StringFixed(2)
		dto.PurchasePrice = &s
	}
	if inv.CurrentPrice != nil {
		s := inv.CurrentPrice.StringFixed(2)
		dto.CurrentPrice = &s
	}
	if pl := inv.UnrealizedPL(); pl != nil {
		s := pl.StringFixed(2)
		dto.UnrealizedPL = &s
	}
	return dto
}

func (h *InvestmentHandler) Buy(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req buyInvestmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	amount, err := money.ParseAmount(req.Amount)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	buy := service.BuyRequest{
		AccountID: accountID,
		Category:  req.Category,
		AssetName: req.AssetName,
		Symbol:    req.Symbol,
		Amount:    amount,
		RequestID: r.Header.Get("Idempotency-Key"),
	}
	if req.Quantity != "" {
		q, err := decimal.NewFromString(req.Quantity)
		if err != nil || q.Sign() <= 0 {
			RespondValidationError(w, []FieldError{{Field: "quantity", Message: "must be a positive number"}})
			return
		}
		buy.Quantity = &q
	}
	if req.PurchasePrice != "" {
		p, err := money.ParsePrice(req.PurchasePrice)
		if err != nil {
			RespondValidationError(w, []FieldError{{Field: "purchase_price", Message: "must be a non-negative number"}})
			return
		}
		buy.PurchasePrice = &p
	}

	inv, err := h.investments.Buy(r.Context(), buy)
	if err != nil {
		logging.FromContext(r.Context()).Error("investment buy failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toInvestmentDTO(inv))
}

func (h *InvestmentHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	limit, offset, fields := parsePagination(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	invs, total, err := h.investments.ListForAccount(r.Context(), accountID, limit, offset)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]investmentDTO, len(invs))
	for i := range invs {
		dtos[i] = toInvestmentDTO(&invs[i])
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"investments": dtos,
		"total":       total,
		"limit":       limit,
		"offset":      offset,
	})
}
