package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/capitalpath/ledger-service/internal/auth"
	"github.com/capitalpath/ledger-service/internal/domain"
	"github.com/capitalpath/ledger-service/internal/logging"
	"github.com/capitalpath/ledger-service/internal/money"
	"github.com/capitalpath/ledger-service/internal/service"
	"github.com/capitalpath/ledger-service/internal/service/transfer"
)

type adminDepositService interface {
	Approve(ctx context.Context, depositID, adminID uuid.UUID, notes string) (*domain.DepositRequest, error)
	Reject(ctx context.Context, depositID, adminID uuid.UUID, notes string) (*domain.DepositRequest, error)
	ListByStatus(ctx context.Context, status domain.DepositStatus, limit, offset int) ([]domain.DepositRequest, int, error)
}

type adminAccountService interface {
	DecideKYC(ctx context.Context, accountID uuid.UUID, approve bool, adminID uuid.UUID, notes string) error
	Deactivate(ctx context.Context, accountID, adminID uuid.UUID, reason string) error
	Activate(ctx context.Context, accountID, adminID uuid.UUID, reason string) error
	Reconcile(ctx context.Context, accountID uuid.UUID) (int64, int64, error)
}

type adminTransferService interface {
	AdminAdjust(ctx context.Context, req transfer.AdjustRequest) (int64, error)
}

type adminInvestmentService interface {
	Adjust(ctx context.Context, req service.InvestmentAdjustRequest) (*domain.Investment, error)
	UpdatePrice(ctx context.Context, investmentID uuid.UUID, price decimal.Decimal, adminID uuid.UUID) (*domain.Investment, error)
	Remove(ctx context.Context, investmentID uuid.UUID, reason string, adminID uuid.UUID) error
}

type adminCardService interface {
	DecideRequest(ctx context.Context, d service.CardDecision) (*domain.CreditCard, error)
	ListRequests(ctx context.Context, status domain.CardRequestStatus) ([]domain.CardRequest, error)
	ChangeType(ctx context.Context, cardID uuid.UUID, newType domain.CardType, adminID uuid.UUID, reason string) (*domain.CreditCard, error)
	ChangeNetwork(ctx context.Context, cardID uuid.UUID, network domain.CardNetwork, adminID uuid.UUID) (*domain.CreditCard, error)
	SetCardStatus(ctx context.Context, cardID uuid.UUID, status domain.CardStatus, adminID uuid.UUID, reason string) (*domain.CreditCard, error)
}

// AdminHandler is the privileged surface: deposit decisions, balance
// adjustments, KYC decisions, account and card lifecycle, investment
// valuation. Every route behind it requires the admin role.
type AdminHandler struct {
	deposits    adminDepositService
	accounts    adminAccountService
	transfers   adminTransferService
	investments adminInvestmentService
	cards       adminCardService
}

func NewAdminHandler(deposits adminDepositService, accounts adminAccountService, transfers adminTransferService, investments adminInvestmentService, cards adminCardService) *AdminHandler {
	return &AdminHandler{
		deposits:    deposits,
		accounts:    accounts,
		transfers:   transfers,
		investments: investments,
		cards:       cards,
	}
}

func adminFromContext(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return uuid.Nil, false
	}
	return id, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: name, Message: "must be a valid uuid"}})
		return uuid.Nil, false
	}
	return id, true
}

type decisionRequest struct {
	Decision string `json:"decision"`
	Notes    string `json:"notes"`
}

func (r decisionRequest) Validate() []FieldError {
	if r.Decision != "approve" && r.Decision != "reject" {
		return []FieldError{{Field: "decision", Message: "must be approve or reject"}}
	}
	return nil
}

func (h *AdminHandler) DecideDeposit(w http.ResponseWriter, r *http.Request) {
	adminID, ok := adminFromContext(w, r)
	if !ok {
		return
	}
	depositID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	var deposit *domain.DepositRequest
	var err error
	if req.Decision == "approve" {
		deposit, err = h.deposits.Approve(r.Context(), depositID, adminID, req.Notes)
	} else {
		deposit, err = h.deposits.Reject(r.Context(), depositID, adminID, req.Notes)
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("deposit decision failed", "error", err, "deposit_id", depositID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toDepositDTO(deposit))
}

func (h *AdminHandler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	status := domain.DepositStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.DepositStatusPending
	}

	limit, offset, fields := parsePagination(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	deposits, total, err := h.deposits.ListByStatus(r.Context(), status, limit, offset)
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

type adjustBalanceRequest struct {
	Action string `json:"action"`
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

func (r adjustBalanceRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Action != "credit" && r.Action != "debit" {
		errs = append(errs, FieldError{Field: "action", Message: "must be credit or debit"})
	}
	if r.Amount == "" {
		errs = append(errs, FieldError{Field: "amount", Message: "required"})
	}
	if r.Reason == "" {
		errs = append(errs, FieldError{Field: "reason", Message: "required"})
	}
	return errs
}

func (h *AdminHandler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	adminID, ok := adminFromContext(w, r)
	if !ok {
		return
	}
	accountID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req adjustBalanceRequest
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

	newBalance, err := h.transfers.AdminAdjust(r.Context(), transfer.AdjustRequest{
		AccountID: accountID,
		Action:    transfer.AdjustAction(req.Action),
		Amount:    amount,
		Reason:    req.Reason,
		AdminID:   adminID,
		RequestID: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		logging.FromContext(r.Context()).Error("balance adjustment failed", "error", err, "account_id", accountID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"new_balance": money.FormatAmount(newBalance),
	})
}

type statusChangeRequest struct {
	Reason string `json:"reason"`
}

func (h *AdminHandler) DeactivateAccount(w http.ResponseWriter, r *http.Request) {
	h.setAccountStatus(w, r, h.accounts.Deactivate, domain.AccountStatusDeactivated)
}

func (h *AdminHandler) ActivateAccount(w http.ResponseWriter, r *http.Request) {
	h.setAccountStatus(w, r, h.accounts.Activate, domain.AccountStatusActive)
}

func (h *AdminHandler) setAccountStatus(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID, uuid.UUID, string) error, status domain.AccountStatus) {
	adminID, ok := adminFromContext(w, r)
	if !ok {
		return
	}
	accountID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req statusChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if err := op(r.Context(), accountID, adminID, req.Reason); err != nil {
		logging.FromContext(r.Context()).Error("account status change failed", "error", err, "account_id", accountID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]string{
		"account_id": accountID.String(),
		"status":     string(status),
	})
}

func (h *AdminHandler) ReconcileAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	balance, ledgerSum, err := h.accounts.Reconcile(r.Context(), accountID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"balance":    money.FormatAmount(balance),
		"ledger_sum": money.FormatAmount(ledgerSum),
		"consistent": balance == ledgerSum,
	})
}

func (h *AdminHandler) DecideKYC(w http.ResponseWriter, r *http.Request) {
	adminID, ok := adminFromContext(w, r)
	if !ok {
		return
	}
	accountID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	if err := h.accounts.DecideKYC(r.Context(), accountID, req.Decision == "approve", adminID, req.Notes); err != nil {
		logging.FromContext(r.Context()).Error("kyc decision failed", "error", err, "account_id", accountID)
		RespondDomainError(w, err)
		return
	}

	outcome := domain.KYCStatusApproved
	if req.Decision != "approve" {
		outcome = domain.KYCStatusRejected
	}
	RespondSuccess(w, http.StatusOK, map[string]string{
		"account_id": accountID.String(),
		"kyc_status": string(outcome),
	})
}

type investmentAdjustRequest struct {
	Kind   string `json:"kind"`
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

func (r investmentAdjustRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Kind != "profit" && r.Kind != "loss" {
		errs = append(errs, FieldError{Field: "kind", Message: "must be profit or loss"})
	}
	if r.Amount == "" {
		errs = append(errs, FieldError{Field: "amount", Message: "required"})
	}
	if r.Reason == "" {
		errs = append(errs, FieldError{Field: "reason", Message: "required"})
	}
	return errs
}

func (h *AdminHandler) AdjustInvestment(w http.ResponseWriter, r *http.Request) {
	adminID, ok := adminFromContext(w, r)
	if !ok {
		return
	}
	investmentID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req investmentAdjustRequest
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

	inv, err := h.investments.Adjust(r.Context(), service.InvestmentAdjustRequest{
		InvestmentID: investmentID,
		Profit:       req.Kind == "profit",
		Amount:       amount,
		Reason:       req.Reason,
		AdminID:      adminID,
		RequestID:    r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		logging.FromContext(r.Context()).Error("investment adjustment failed", "error", err, "investment_id", investmentID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toInvestmentDTO(inv))
}

type updatePriceRequest struct {
	CurrentPrice string `json:"current_price"`
}

func (h *AdminHandler) UpdateInvestmentPrice(w http.ResponseWriter, r *http.Request) {
	adminID, ok := adminFromContext(w, r)
	if !ok {
		return
	}
	investmentID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req updatePriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	price, err := money.ParsePrice(req.CurrentPrice)
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "current_price", Message: "must be a non-negative number"}})
		return
	}

	inv, err := h.investments.UpdatePrice(r.Context(), investmentID, price, adminID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toInvestmentDTO(inv))
}

func (h *AdminHandler) RemoveInvestment(w http.ResponseWriter, r *http.Request) {
	adminID, ok := adminFromContext(w, r)
	if !ok {
		return
	}
	investmentID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	// body is optional on removal
	var req statusChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if err := h.investments.Remove(r.Context(), investmentID, req.Reason, adminID); err != nil {
		logging.FromContext(r.Context()).Error("investment removal failed", "error", err, "investment_id", investmentID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]string{
		"investment_id": investmentID.String(),
		"status":        string(domain.InvestmentStatusSold),
	})
}

type cardDecisionRequest struct {
	Decision string `json:"decision"`
	CardType string `json:"card_type"`
	Network  string `json:"network"`
	Notes    string `json:"notes"`
}

func (r cardDecisionRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Decision != "approve" && r.Decision != "reject" {
		errs = append(errs, FieldError{Field: "decision", Message: "must be approve or reject"})
	}
	if r.CardType != "" && !domain.CardType(r.CardType).IsValid() {
		errs = append(errs, FieldError{Field: "card_type", Message: "must be platinum, gold, or black"})
	}
	if r.Network != "" && !domain.CardNetwork(r.Network).IsValid() {
		errs = append(errs, FieldError{Field: "network", Message: "must be visa or mastercard"})
	}
	return errs
}

func (h *AdminHandler) DecideCardRequest(w http.ResponseWriter, r *http.Request) {
	adminID, ok := adminFromContext(w, r)
	if !ok {
		return
	}
	requestID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req cardDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	decision := service.CardDecision{
		RequestID: requestID,
		Approve:   req.Decision == "approve",
		AdminID:   adminID,
		Notes:     req.Notes,
	}
	if req.CardType != "" {
		t := domain.CardType(req.CardType)
		decision.CardType = &t
	}
	if req.Network != "" {
		n := domain.CardNetwork(req.Network)
		decision.Network = &n
	}

	card, err := h.cards.DecideRequest(r.Context(), decision)
	if err != nil {
		logging.FromContext(r.Context()).Error("card decision failed", "error", err, "request_id", requestID)
		RespondDomainError(w, err)
		return
	}

	if card == nil {
		RespondSuccess(w, http.StatusOK, map[string]string{
			"request_id": requestID.String(),
			"status":     string(domain.CardRequestStatusRejected),
		})
		return
	}
	RespondSuccess(w, http.StatusOK, toCardDTO(card))
}

func (h *AdminHandler) ListCardRequests(w http.ResponseWriter, r *http.Request) {
	status := domain.CardRequestStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.CardRequestStatusPending
	}

	reqs, err := h.cards.ListRequests(r.Context(), status)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]cardRequestDTO, len(reqs))
	for i := range reqs {
		dtos[i] = toCardRequestDTO(&reqs[i])
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

type updateCardRequest struct {
	CardType string `json:"card_type"`
	Network  string `json:"network"`
	Status   string `json:"status"`
	Reason   string `json:"reason"`
}

// UpdateCard applies at most one change per call: tier, network, or status.
func (h *AdminHandler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	adminID, ok := adminFromContext(w, r)
	if !ok {
		return
	}
	cardID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req updateCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	set := 0
	for _, v := range []string{req.CardType, req.Network, req.Status} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		RespondValidationError(w, []FieldError{{Field: "body", Message: "exactly one of card_type, network, status is required"}})
		return
	}

	var card *domain.CreditCard
	var err error
	switch {
	case req.CardType != "":
		if !domain.CardType(req.CardType).IsValid() {
			RespondValidationError(w, []FieldError{{Field: "card_type", Message: "must be platinum, gold, or black"}})
			return
		}
		card, err = h.cards.ChangeType(r.Context(), cardID, domain.CardType(req.CardType), adminID, req.Reason)
	case req.Network != "":
		if !domain.CardNetwork(req.Network).IsValid() {
			RespondValidationError(w, []FieldError{{Field: "network", Message: "must be visa or mastercard"}})
			return
		}
		card, err = h.cards.ChangeNetwork(r.Context(), cardID, domain.CardNetwork(req.Network), adminID)
	default:
		if req.Status != string(domain.CardStatusActive) && req.Status != string(domain.CardStatusDeactivated) {
			RespondValidationError(w, []FieldError{{Field: "status", Message: "must be active or deactivated"}})
			return
		}
		card, err = h.cards.SetCardStatus(r.Context(), cardID, domain.CardStatus(req.Status), adminID, req.Reason)
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("card update failed", "error", err, "card_id", cardID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toCardDTO(card))
}
