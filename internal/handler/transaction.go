package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/capitalpath/ledger-service/internal/auth"
	"github.com/capitalpath/ledger-service/internal/domain"
	"github.com/capitalpath/ledger-service/internal/logging"
	"github.com/capitalpath/ledger-service/internal/money"
	"github.com/capitalpath/ledger-service/internal/service"
	"github.com/capitalpath/ledger-service/internal/service/transfer"
)

type depositService interface {
	Create(ctx context.Context, req service.CreateDepositRequest) (*service.DepositOutcome, error)
	ListForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.DepositRequest, int, error)
}

type transferService interface {
	Transfer(ctx context.Context, req transfer.Request) (*transfer.Result, error)
	Withdraw(ctx context.Context, req transfer.WithdrawRequest) (int64, error)
}

// TransactionHandler covers the money-moving user endpoints: deposits,
// withdrawals, and transfers. All amounts cross the wire as decimal
// strings and are parsed into minor units at this boundary.
type TransactionHandler struct {
	deposits  depositService
	transfers transferService
}

func NewTransactionHandler(deposits depositService, transfers transferService) *TransactionHandler {
	return &TransactionHandler{deposits: deposits, transfers: transfers}
}

type createDepositRequest struct {
	Amount            string `json:"amount"`
	DestinationNumber string `json:"destination_account_number"`
	SourceBankName    string `json:"source_bank_name"`
	SourceBankLast4   string `json:"source_bank_last4"`
	Description       string `json:"description"`
}

func (r createDepositRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Amount == "" {
		errs = append(errs, FieldError{Field: "amount", Message: "required"})
	}
	if r.DestinationNumber == "" {
		errs = append(errs, FieldError{Field: "destination_account_number", Message: "required"})
	}
	if r.SourceBankName == "" {
		errs = append(errs, FieldError{Field: "source_bank_name", Message: "required"})
	}
	if len(r.SourceBankLast4) != 4 {
		errs = append(errs, FieldError{Field: "source_bank_last4", Message: "must be exactly 4 digits"})
	}
	return errs
}

type depositDTO struct {
	ID              uuid.UUID  `json:"id"`
	AccountID       uuid.UUID  `json:"account_id"`
	Amount          string     `json:"amount"`
	SourceBankName  string     `json:"source_bank_name"`
	SourceBankLast4 string     `json:"source_bank_last4"`
	Status          string     `json:"status"`
	AdminNotes      string     `json:"admin_notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
}

func toDepositDTO(d *domain.DepositRequest) depositDTO {
	return depositDTO{
		ID:              d.ID,
		AccountID:       d.AccountID,
		Amount:          money.FormatAmount(d.Amount),
		SourceBankName:  d.SourceBankName,
		SourceBankLast4: d.SourceBankLast4,
		Status:          string(d.Status),
		AdminNotes:      d.AdminNotes,
		CreatedAt:       d.CreatedAt,
		ProcessedAt:     d.ProcessedAt,
	}
}

func (h *TransactionHandler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req createDepositRequest
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

	outcome, err := h.deposits.Create(r.Context(), service.CreateDepositRequest{
		AccountID:         accountID,
		Amount:            amount,
		DestinationNumber: req.DestinationNumber,
		SourceBankName:    req.SourceBankName,
		SourceBankLast4:   req.SourceBankLast4,
		Description:       req.Description,
		RequestID:         r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		logging.FromContext(r.Context()).Error("deposit failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	if outcome.RequiresApproval {
		RespondSuccess(w, http.StatusAccepted, map[string]any{
			"requires_approval": true,
			"deposit_id":        outcome.DepositID,
			"status":            string(domain.DepositStatusPending),
		})
		return
	}

	RespondSuccess(w, http.StatusCreated, map[string]any{
		"requires_approval": false,
		"transfer_id":       outcome.TransferID,
		"new_balance":       money.FormatAmount(*outcome.NewBalance),
		"recipient_name":    outcome.RecipientName,
		"recipient_number":  outcome.RecipientNumber,
	})
}

func (h *TransactionHandler) ListDeposits(w http.ResponseWriter, r *http.Request) {
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

	deposits, total, err := h.deposits.ListForAccount(r.Context(), accountID, limit, offset)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]depositDTO, len(deposits))
	for i := range deposits {
		dtos[i] = toDepositDTO(&deposits[i])
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"deposits": dtos,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

type withdrawRequest struct {
	Amount string `json:"amount"`
	Method string `json:"method"`
}

func (r withdrawRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Amount == "" {
		errs = append(errs, FieldError{Field: "amount", Message: "required"})
	}
	if r.Method == "" {
		errs = append(errs, FieldError{Field: "method", Message: "required"})
	}
	return errs
}

func (h *TransactionHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req withdrawRequest
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

	newBalance, err := h.transfers.Withdraw(r.Context(), transfer.WithdrawRequest{
		AccountID: accountID,
		Amount:    amount,
		Method:    req.Method,
		RequestID: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		logging.FromContext(r.Context()).Error("withdrawal failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"new_balance": money.FormatAmount(newBalance),
	})
}

type transferRequest struct {
	Amount      string `json:"amount"`
	Recipient   string `json:"recipient"`
	Description string `json:"description"`
}

func (r transferRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Amount == "" {
		errs = append(errs, FieldError{Field: "amount", Message: "required"})
	}
	if r.Recipient == "" {
		errs = append(errs, FieldError{Field: "recipient", Message: "account number or email required"})
	}
	return errs
}

func (h *TransactionHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req transferRequest
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

	result, err := h.transfers.Transfer(r.Context(), transfer.Request{
		SourceAccountID: accountID,
		Destination:     req.Recipient,
		Amount:          amount,
		Description:     req.Description,
		RequestID:       r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		logging.FromContext(r.Context()).Error("transfer failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, map[string]any{
		"transfer_id":      result.TransferID,
		"new_balance":      money.FormatAmount(result.NewBalance),
		"recipient_name":   result.RecipientName,
		"recipient_number": result.RecipientNumber,
	})
}

func parsePagination(r *http.Request) (limit, offset int, errs []FieldError) {
	limit, offset = 20, 0
	q := r.URL.Query()
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 100 {
			errs = append(errs, FieldError{Field: "limit", Message: "must be between 1 and 100"})
		} else {
			limit = n
		}
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			errs = append(errs, FieldError{Field: "offset", Message: "must be zero or positive"})
		} else {
			offset = n
		}
	}
	return limit, offset, errs
}
