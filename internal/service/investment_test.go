package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalpath/ledger-service/internal/domain"
	"github.com/capitalpath/ledger-service/internal/notify"
	"github.com/capitalpath/ledger-service/internal/repository"
	"github.com/capitalpath/ledger-service/internal/testutil"
)

type investmentEnv struct {
	svc      *InvestmentService
	pool     *sql.DB
	recorder *notify.Recorder
}

func newInvestmentEnv(t *testing.T) *investmentEnv {
	t.Helper()
	pool := testutil.SetupTestDB(t)

	db := repository.NewDB(pool, 3000)
	accounts := repository.NewAccountRepository(pool)
	ledger := repository.NewLedgerRepository(pool)
	investments := repository.NewInvestmentRepository(pool)
	recorder := notify.NewRecorder()

	return &investmentEnv{
		svc:      NewInvestmentService(investments, accounts, ledger, db, recorder),
		pool:     pool,
		recorder: recorder,
	}
}

func ptr[T any](v T) *T { return &v }

func TestBuyDebitsCashAndOpensPosition(t *testing.T) {
	env := newInvestmentEnv(t)

	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 100000)

	inv, err := env.svc.Buy(context.Background(), BuyRequest{
		AccountID:     alice.ID,
		Category:      "equity",
		AssetName:     "Vantage Tech Fund",
		Symbol:        "VTF",
		Amount:        40000,
		Quantity:      ptr(decimal.NewFromInt(20)),
		PurchasePrice: ptr(decimal.RequireFromString("20.00")),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.InvestmentStatusActive, inv.Status)
	assert.Equal(t, int64(40000), inv.CostBasis)
	assert.Equal(t, int64(40000), inv.BookValue())
	assert.Equal(t, int64(60000), testutil.GetBalance(t, env.pool, alice.ID))
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, env.pool, alice.ID))
}

func TestBuyRejectsInsufficientFunds(t *testing.T) {
	env := newInvestmentEnv(t)

	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 1000)

	_, err := env.svc.Buy(context.Background(), BuyRequest{
		AccountID: alice.ID,
		AssetName: "Vantage Tech Fund",
		Amount:    40000,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, int64(1000), testutil.GetBalance(t, env.pool, alice.ID))
	assert.Equal(t, 0, testutil.CountLedgerEntries(t, env.pool, alice.ID))
}

func TestBuyRejectsDeactivatedAccount(t *testing.T) {
	env := newInvestmentEnv(t)

	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 100000)
	testutil.DeactivateAccount(t, env.pool, alice.ID)

	_, err := env.svc.Buy(context.Background(), BuyRequest{
		AccountID: alice.ID,
		AssetName: "Vantage Tech Fund",
		Amount:    1000,
	})
	require.ErrorIs(t, err, domain.ErrAccountDeactivated)
}

func TestAdjustProfitAndLossMoveBookValueNotCash(t *testing.T) {
	env := newInvestmentEnv(t)
	ctx := context.Background()

	admin := testutil.SeedAdmin(t, env.pool, "admin@test.local")
	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 100000)

	inv, err := env.svc.Buy(ctx, BuyRequest{
		AccountID: alice.ID,
		AssetName: "Vantage Tech Fund",
		Amount:    40000,
	})
	require.NoError(t, err)
	balanceAfterBuy := testutil.GetBalance(t, env.pool, alice.ID)

	adjusted, err := env.svc.Adjust(ctx, InvestmentAdjustRequest{
		InvestmentID: inv.ID,
		Profit:       true,
		Amount:       5000,
		Reason:       "quarterly gain",
		AdminID:      admin.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(45000), adjusted.BookValue())

	adjusted, err = env.svc.Adjust(ctx, InvestmentAdjustRequest{
		InvestmentID: inv.ID,
		Profit:       false,
		Amount:       15000,
		Reason:       "market drop",
		AdminID:      admin.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(30000), adjusted.BookValue())

	// cash untouched by valuation changes
	assert.Equal(t, balanceAfterBuy, testutil.GetBalance(t, env.pool, alice.ID))

	// buy entry plus two audit entries
	assert.Equal(t, 3, testutil.CountLedgerEntries(t, env.pool, alice.ID))
	// audit entries have zero cash effect, conservation still holds
	assert.Equal(t, int64(-40000), testutil.SumSignedEntries(t, env.pool, alice.ID))
}

func TestAdjustLossBoundedByBookValue(t *testing.T) {
	env := newInvestmentEnv(t)
	ctx := context.Background()

	admin := testutil.SeedAdmin(t, env.pool, "admin@test.local")
	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 100000)

	inv, err := env.svc.Buy(ctx, BuyRequest{
		AccountID: alice.ID,
		AssetName: "Vantage Tech Fund",
		Amount:    40000,
	})
	require.NoError(t, err)

	_, err = env.svc.Adjust(ctx, InvestmentAdjustRequest{
		InvestmentID: inv.ID,
		Profit:       false,
		Amount:       40001,
		Reason:       "wipeout",
		AdminID:      admin.ID,
	})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	// losing exactly the book value is allowed
	adjusted, err := env.svc.Adjust(ctx, InvestmentAdjustRequest{
		InvestmentID: inv.ID,
		Profit:       false,
		Amount:       40000,
		Reason:       "total loss",
		AdminID:      admin.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), adjusted.BookValue())
}

func TestUpdatePrice(t *testing.T) {
	env := newInvestmentEnv(t)
	ctx := context.Background()

	admin := testutil.SeedAdmin(t, env.pool, "admin@test.local")
	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 100000)

	inv, err := env.svc.Buy(ctx, BuyRequest{
		AccountID:     alice.ID,
		AssetName:     "Vantage Tech Fund",
		Amount:        40000,
		Quantity:      ptr(decimal.NewFromInt(20)),
		PurchasePrice: ptr(decimal.RequireFromString("20.00")),
	})
	require.NoError(t, err)

	updated, err := env.svc.UpdatePrice(ctx, inv.ID, decimal.RequireFromString("25.00"), admin.ID)
	require.NoError(t, err)

	require.NotNil(t, updated.UnrealizedPL())
	assert.Equal(t, "100.00", updated.UnrealizedPL().StringFixed(2))
}

func TestRemoveClosesWithoutRefund(t *testing.T) {
	env := newInvestmentEnv(t)
	ctx := context.Background()

	admin := testutil.SeedAdmin(t, env.pool, "admin@test.local")
	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 100000)

	inv, err := env.svc.Buy(ctx, BuyRequest{
		AccountID: alice.ID,
		AssetName: "Vantage Tech Fund",
		Amount:    40000,
	})
	require.NoError(t, err)
	balanceAfterBuy := testutil.GetBalance(t, env.pool, alice.ID)

	require.NoError(t, env.svc.Remove(ctx, inv.ID, "fund wound down", admin.ID))

	closed, err := env.svc.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvestmentStatusSold, closed.Status)

	// no cash comes back on removal
	assert.Equal(t, balanceAfterBuy, testutil.GetBalance(t, env.pool, alice.ID))

	// removing again fails: the position is no longer active
	err = env.svc.Remove(ctx, inv.ID, "twice", admin.ID)
	require.ErrorIs(t, err, domain.ErrInvestmentClosed)

	// adjustments on a closed position are rejected
	_, err = env.svc.Adjust(ctx, InvestmentAdjustRequest{
		InvestmentID: inv.ID,
		Profit:       true,
		Amount:       100,
		Reason:       "late gain",
		AdminID:      admin.ID,
	})
	require.ErrorIs(t, err, domain.ErrInvestmentClosed)
}
