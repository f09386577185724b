package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalpath/ledger-service/internal/auth"
	"github.com/capitalpath/ledger-service/internal/domain"
	"github.com/capitalpath/ledger-service/internal/service"
	"github.com/capitalpath/ledger-service/internal/service/transfer"
)

type mockDepositService struct {
	lastCreate service.CreateDepositRequest
	outcome    *service.DepositOutcome
	err        error
}

func (m *mockDepositService) Create(_ context.Context, req service.CreateDepositRequest) (*service.DepositOutcome, error) {
	m.lastCreate = req
	return m.outcome, m.err
}

func (m *mockDepositService) ListForAccount(context.Context, uuid.UUID, int, int) ([]domain.DepositRequest, int, error) {
	return nil, 0, nil
}

type mockTransferService struct {
	lastTransfer transfer.Request
	result       *transfer.Result
	newBalance   int64
	err          error
}

func (m *mockTransferService) Transfer(_ context.Context, req transfer.Request) (*transfer.Result, error) {
	m.lastTransfer = req
	return m.result, m.err
}

func (m *mockTransferService) Withdraw(_ context.Context, req transfer.WithdrawRequest) (int64, error) {
	return m.newBalance, m.err
}

func authedRequest(method, path, body string, accountID uuid.UUID) *http.Request {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	ctx := auth.ContextWithIdentity(r.Context(), auth.Identity{AccountID: accountID, Role: domain.RoleUser})
	return r.WithContext(ctx)
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestCreateDepositValidation(t *testing.T) {
	h := NewTransactionHandler(&mockDepositService{}, &mockTransferService{})

	rec := httptest.NewRecorder()
	h.CreateDeposit(rec, authedRequest(http.MethodPost, "/api/v1/deposits", `{"amount":"10"}`, uuid.New()))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "VALIDATION_FAILED", resp.Error.Code)
}

func TestCreateDepositParsesDecimalAmount(t *testing.T) {
	deposits := &mockDepositService{outcome: &service.DepositOutcome{RequiresApproval: true, DepositID: ptrUUID()}}
	h := NewTransactionHandler(deposits, &mockTransferService{})

	accountID := uuid.New()
	body := `{"amount":"500.00","destination_account_number":"CP12345678","source_bank_name":"First National","source_bank_last4":"4821"}`
	r := authedRequest(http.MethodPost, "/api/v1/deposits", body, accountID)
	r.Header.Set("Idempotency-Key", "dep-1")

	rec := httptest.NewRecorder()
	h.CreateDeposit(rec, r)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, int64(50000), deposits.lastCreate.Amount)
	assert.Equal(t, accountID, deposits.lastCreate.AccountID)
	assert.Equal(t, "dep-1", deposits.lastCreate.RequestID)

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["requires_approval"])
}

func TestCreateDepositRejectsBadAmount(t *testing.T) {
	h := NewTransactionHandler(&mockDepositService{}, &mockTransferService{})

	for _, amount := range []string{"0", "-5", "1.005", "abc"} {
		body := `{"amount":"` + amount + `","destination_account_number":"CP12345678","source_bank_name":"First National","source_bank_last4":"4821"}`
		rec := httptest.NewRecorder()
		h.CreateDeposit(rec, authedRequest(http.MethodPost, "/api/v1/deposits", body, uuid.New()))

		assert.Equal(t, http.StatusBadRequest, rec.Code, "amount %q", amount)
		resp := decodeResponse(t, rec)
		assert.Equal(t, "INVALID_AMOUNT", resp.Error.Code, "amount %q", amount)
	}
}

func TestTransferResponseShape(t *testing.T) {
	transfers := &mockTransferService{result: &transfer.Result{
		TransferID:      uuid.New(),
		NewBalance:      40000,
		RecipientName:   "Bob",
		RecipientNumber: "CP87654321",
	}}
	h := NewTransactionHandler(&mockDepositService{}, transfers)

	body := `{"amount":"300.00","recipient":"CP87654321","description":"rent"}`
	rec := httptest.NewRecorder()
	h.Transfer(rec, authedRequest(http.MethodPost, "/api/v1/transfers", body, uuid.New()))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int64(30000), transfers.lastTransfer.Amount)

	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "400.00", data["new_balance"])
	assert.Equal(t, "Bob", data["recipient_name"])
}

func TestTransferDomainErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"insufficient funds", domain.ErrInsufficientFunds, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"},
		{"unknown destination", domain.ErrUnknownDestination, http.StatusUnprocessableEntity, "UNKNOWN_DESTINATION_ACCOUNT"},
		{"deactivated", domain.ErrAccountDeactivated, http.StatusUnprocessableEntity, "ACCOUNT_DEACTIVATED"},
		{"self transfer", domain.ErrSelfTransfer, http.StatusUnprocessableEntity, "SELF_TRANSFER_NOT_ALLOWED"},
		{"busy", domain.ErrBusy, http.StatusConflict, "BUSY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewTransactionHandler(&mockDepositService{}, &mockTransferService{err: tt.err})

			body := `{"amount":"10.00","recipient":"CP87654321"}`
			rec := httptest.NewRecorder()
			h.Transfer(rec, authedRequest(http.MethodPost, "/api/v1/transfers", body, uuid.New()))

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeResponse(t, rec)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestWithdrawResponse(t *testing.T) {
	transfers := &mockTransferService{newBalance: 30000}
	h := NewTransactionHandler(&mockDepositService{}, transfers)

	body := `{"amount":"200.00","method":"bank_transfer"}`
	rec := httptest.NewRecorder()
	h.Withdraw(rec, authedRequest(http.MethodPost, "/api/v1/withdrawals", body, uuid.New()))

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "300.00", data["new_balance"])
}

func TestMissingIdentityRejected(t *testing.T) {
	h := NewTransactionHandler(&mockDepositService{}, &mockTransferService{})

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", strings.NewReader(`{}`))
	h.Transfer(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func ptrUUID() *uuid.UUID {
	id := uuid.New()
	return &id
}
