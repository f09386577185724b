package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/capitalpath/ledger-service/internal/auth"
	"github.com/capitalpath/ledger-service/internal/domain"
	"github.com/capitalpath/ledger-service/internal/logging"
	"github.com/capitalpath/ledger-service/internal/money"
	"github.com/capitalpath/ledger-service/internal/repository"
)

type accountService interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	ListLedger(ctx context.Context, accountID uuid.UUID, f repository.LedgerFilter) ([]domain.LedgerEntry, int, error)
	SubmitKYC(ctx context.Context, accountID uuid.UUID) error
}

type AccountHandler struct {
	accounts accountService
}

func NewAccountHandler(accounts accountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type accountDTO struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Role          string    `json:"role"`
	Balance       string    `json:"balance"`
	AccountNumber string    `json:"account_number"`
	Status        string    `json:"status"`
	KYCStatus     string    `json:"kyc_status"`
	CreatedAt     time.Time `json:"created_at"`
}

func toAccountDTO(a *domain.Account) accountDTO {
	return accountDTO{
		ID:            a.ID,
		Email:         a.Email,
		Name:          a.Name,
		Role:          string(a.Role),
		Balance:       money.FormatAmount(a.Balance),
		AccountNumber: a.AccountNumber,
		Status:        string(a.Status),
		KYCStatus:     string(a.KYCStatus),
		CreatedAt:     a.CreatedAt,
	}
}

type ledgerEntryDTO struct {
	ID            uuid.UUID  `json:"id"`
	EntryType     string     `json:"entry_type"`
	Status        string     `json:"status"`
	Amount        string     `json:"amount"`
	BalanceBefore string     `json:"balance_before"`
	BalanceAfter  string     `json:"balance_after"`
	CounterpartID *uuid.UUID `json:"counterpart_id,omitempty"`
	TransferID    *uuid.UUID `json:"transfer_id,omitempty"`
	ActorID       *uuid.UUID `json:"actor_id,omitempty"`
	Description   string     `json:"description,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
}

func toLedgerEntryDTO(e *domain.LedgerEntry) ledgerEntryDTO {
	return ledgerEntryDTO{
		ID:            e.ID,
		EntryType:     string(e.EntryType),
		Status:        string(e.Status),
		Amount:        money.FormatAmount(e.Amount),
		BalanceBefore: money.FormatAmount(e.BalanceBefore),
		BalanceAfter:  money.FormatAmount(e.BalanceAfter),
		CounterpartID: e.CounterpartID,
		TransferID:    e.TransferID,
		ActorID:       e.ActorID,
		Description:   e.Description,
		CreatedAt:     e.CreatedAt,
		ProcessedAt:   e.ProcessedAt,
	}
}

func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	account, err := h.accounts.GetByID(r.Context(), accountID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toAccountDTO(account))
}

func (h *AccountHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	filter := repository.LedgerFilter{
		Limit:  20,
		Offset: 0,
	}
	q := r.URL.Query()
	if t := q.Get("entry_type"); t != "" {
		et := domain.EntryType(t)
		if !et.IsValid() {
			RespondValidationError(w, []FieldError{{Field: "entry_type", Message: "unknown entry type"}})
			return
		}
		filter.EntryType = et
	}
	if s := q.Get("status"); s != "" {
		filter.Status = domain.EntryStatus(s)
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 || n > 100 {
			RespondValidationError(w, []FieldError{{Field: "limit", Message: "must be between 1 and 100"}})
			return
		}
		filter.Limit = n
	}
	if offset := q.Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			RespondValidationError(w, []FieldError{{Field: "offset", Message: "must be zero or positive"}})
			return
		}
		filter.Offset = n
	}

	entries, total, err := h.accounts.ListLedger(r.Context(), accountID, filter)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list ledger", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]ledgerEntryDTO, len(entries))
	for i := range entries {
		dtos[i] = toLedgerEntryDTO(&entries[i])
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"entries": dtos,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

func (h *AccountHandler) SubmitKYC(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	if err := h.accounts.SubmitKYC(r.Context(), accountID); err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]string{
		"kyc_status": string(domain.KYCStatusPending),
	})
}
