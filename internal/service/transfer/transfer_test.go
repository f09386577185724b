package transfer

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalpath/ledger-service/internal/domain"
	"github.com/capitalpath/ledger-service/internal/notify"
	"github.com/capitalpath/ledger-service/internal/repository"
	"github.com/capitalpath/ledger-service/internal/testutil"
)

type testEnv struct {
	svc      *Service
	pool     *sql.DB
	ledger   *repository.LedgerRepository
	recorder *notify.Recorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	pool := testutil.SetupTestDB(t)

	db := repository.NewDB(pool, 3000)
	accounts := repository.NewAccountRepository(pool)
	ledger := repository.NewLedgerRepository(pool)
	recorder := notify.NewRecorder()

	return &testEnv{
		svc:      NewService(accounts, ledger, db, recorder),
		pool:     pool,
		ledger:   ledger,
		recorder: recorder,
	}
}

// fund credits the account through the engine so the ledger backs the
// balance and conservation can be asserted exactly.
func (e *testEnv) fund(t *testing.T, accountID, adminID uuid.UUID, amount int64) {
	t.Helper()
	_, err := e.svc.AdminAdjust(context.Background(), AdjustRequest{
		AccountID: accountID,
		Action:    AdjustActionCredit,
		Amount:    amount,
		Reason:    "test funding",
		AdminID:   adminID,
	})
	require.NoError(t, err)
}

func TestTransferHappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := testutil.SeedAdmin(t, env.pool, "admin@test.local")
	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 0)
	bob := testutil.SeedAccount(t, env.pool, "bob@test.local", 0)
	env.fund(t, alice.ID, admin.ID, 70000)
	env.fund(t, bob.ID, admin.ID, 5000)

	result, err := env.svc.Transfer(ctx, Request{
		SourceAccountID: alice.ID,
		Destination:     bob.AccountNumber,
		Amount:          30000,
		Description:     "rent",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(40000), result.NewBalance)
	assert.Equal(t, bob.AccountNumber, result.RecipientNumber)
	assert.Equal(t, int64(40000), testutil.GetBalance(t, env.pool, alice.ID))
	assert.Equal(t, int64(35000), testutil.GetBalance(t, env.pool, bob.ID))

	entries, err := env.ledger.GetByTransferID(ctx, result.TransferID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byType := map[domain.EntryType]domain.LedgerEntry{}
	for _, e := range entries {
		byType[e.EntryType] = e
	}
	out := byType[domain.EntryTypeTransferOut]
	in := byType[domain.EntryTypeTransferIn]

	assert.Equal(t, alice.ID, out.AccountID)
	assert.Equal(t, bob.ID, in.AccountID)
	require.NotNil(t, out.CounterpartID)
	require.NotNil(t, in.CounterpartID)
	assert.Equal(t, bob.ID, *out.CounterpartID)
	assert.Equal(t, alice.ID, *in.CounterpartID)
	assert.Equal(t, int64(70000), out.BalanceBefore)
	assert.Equal(t, int64(40000), out.BalanceAfter)
	assert.Equal(t, int64(5000), in.BalanceBefore)
	assert.Equal(t, int64(35000), in.BalanceAfter)

	// conservation: Σ(signed entries) == balance on both sides
	assert.Equal(t, testutil.GetBalance(t, env.pool, alice.ID), testutil.SumSignedEntries(t, env.pool, alice.ID))
	assert.Equal(t, testutil.GetBalance(t, env.pool, bob.ID), testutil.SumSignedEntries(t, env.pool, bob.ID))

	received := env.recorder.EventsOfType(notify.EventTransferReceived)
	require.Len(t, received, 1)
	assert.Equal(t, bob.ID, received[0].AccountID)
}

func TestTransferInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)

	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 1000)
	bob := testutil.SeedAccount(t, env.pool, "bob@test.local", 0)

	_, err := env.svc.Transfer(context.Background(), Request{
		SourceAccountID: alice.ID,
		Destination:     bob.AccountNumber,
		Amount:          5000,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	assert.Equal(t, int64(1000), testutil.GetBalance(t, env.pool, alice.ID))
	assert.Equal(t, int64(0), testutil.GetBalance(t, env.pool, bob.ID))
	assert.Equal(t, 0, testutil.CountLedgerEntries(t, env.pool, alice.ID))
}

func TestTransferUnknownDestination(t *testing.T) {
	env := newTestEnv(t)

	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 10000)

	_, err := env.svc.Transfer(context.Background(), Request{
		SourceAccountID: alice.ID,
		Destination:     "CP00000000",
		Amount:          1000,
	})
	require.ErrorIs(t, err, domain.ErrUnknownDestination)
}

func TestTransferByEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := testutil.SeedAdmin(t, env.pool, "admin@test.local")
	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 0)
	bob := testutil.SeedAccount(t, env.pool, "bob@test.local", 0)
	env.fund(t, alice.ID, admin.ID, 10000)

	// email lookup is case-insensitive
	result, err := env.svc.Transfer(ctx, Request{
		SourceAccountID: alice.ID,
		Destination:     "Bob@Test.Local",
		Amount:          4000,
	})
	require.NoError(t, err)
	assert.Equal(t, bob.AccountNumber, result.RecipientNumber)
	assert.Equal(t, int64(4000), testutil.GetBalance(t, env.pool, bob.ID))

	_, err = env.svc.Transfer(ctx, Request{
		SourceAccountID: alice.ID,
		Destination:     "nobody@test.local",
		Amount:          1000,
	})
	require.ErrorIs(t, err, domain.ErrUnknownDestination)
}

func TestTransferToSelfRejected(t *testing.T) {
	env := newTestEnv(t)

	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 10000)

	_, err := env.svc.Transfer(context.Background(), Request{
		SourceAccountID: alice.ID,
		Destination:     alice.AccountNumber,
		Amount:          1000,
	})
	require.ErrorIs(t, err, domain.ErrSelfTransfer)
}

func TestTransferDeactivatedAccounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 10000)
	bob := testutil.SeedAccount(t, env.pool, "bob@test.local", 0)

	testutil.DeactivateAccount(t, env.pool, alice.ID)
	_, err := env.svc.Transfer(ctx, Request{
		SourceAccountID: alice.ID,
		Destination:     bob.AccountNumber,
		Amount:          1000,
	})
	require.ErrorIs(t, err, domain.ErrAccountDeactivated)

	carol := testutil.SeedAccount(t, env.pool, "carol@test.local", 10000)
	testutil.DeactivateAccount(t, env.pool, bob.ID)
	_, err = env.svc.Transfer(ctx, Request{
		SourceAccountID: carol.ID,
		Destination:     bob.AccountNumber,
		Amount:          1000,
	})
	require.ErrorIs(t, err, domain.ErrAccountDeactivated)
}

func TestTransferInvalidAmount(t *testing.T) {
	env := newTestEnv(t)

	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 10000)
	bob := testutil.SeedAccount(t, env.pool, "bob@test.local", 0)

	for _, amount := range []int64{0, -100} {
		_, err := env.svc.Transfer(context.Background(), Request{
			SourceAccountID: alice.ID,
			Destination:     bob.AccountNumber,
			Amount:          amount,
		})
		require.ErrorIs(t, err, domain.ErrInvalidAmount)
	}
}

// Concurrent transfers off one account must never overdraw it. Some may
// fail with insufficient funds or a lock timeout; the invariant is that
// balance plus successful debits always equals the starting amount.
func TestConcurrentTransfersNoOverdraft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := testutil.SeedAdmin(t, env.pool, "admin@test.local")
	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 0)
	bob := testutil.SeedAccount(t, env.pool, "bob@test.local", 0)
	env.fund(t, alice.ID, admin.ID, 10000)

	const workers = 10
	const amount = 2000

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.svc.Transfer(ctx, Request{
				SourceAccountID: alice.ID,
				Destination:     bob.AccountNumber,
				Amount:          amount,
			})
		}()
	}
	wg.Wait()

	var succeeded int64
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		if !assert.True(t,
			errorIsAny(err, domain.ErrInsufficientFunds, domain.ErrBusy, domain.ErrVersionConflict),
			"unexpected error: %v", err,
		) {
			t.FailNow()
		}
	}

	aliceBalance := testutil.GetBalance(t, env.pool, alice.ID)
	bobBalance := testutil.GetBalance(t, env.pool, bob.ID)
	assert.GreaterOrEqual(t, aliceBalance, int64(0))
	assert.Equal(t, int64(10000)-succeeded*amount, aliceBalance)
	assert.Equal(t, succeeded*amount, bobBalance)
	assert.Equal(t, aliceBalance, testutil.SumSignedEntries(t, env.pool, alice.ID))
	assert.Equal(t, bobBalance, testutil.SumSignedEntries(t, env.pool, bob.ID))
}

func TestWithdraw(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := testutil.SeedAdmin(t, env.pool, "admin@test.local")
	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 0)
	env.fund(t, alice.ID, admin.ID, 50000)

	newBalance, err := env.svc.Withdraw(ctx, WithdrawRequest{
		AccountID: alice.ID,
		Amount:    20000,
		Method:    "bank_transfer",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(30000), newBalance)
	assert.Equal(t, int64(30000), testutil.GetBalance(t, env.pool, alice.ID))
	assert.Equal(t, testutil.GetBalance(t, env.pool, alice.ID), testutil.SumSignedEntries(t, env.pool, alice.ID))

	_, err = env.svc.Withdraw(ctx, WithdrawRequest{
		AccountID: alice.ID,
		Amount:    99999,
		Method:    "bank_transfer",
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	testutil.DeactivateAccount(t, env.pool, alice.ID)
	_, err = env.svc.Withdraw(ctx, WithdrawRequest{
		AccountID: alice.ID,
		Amount:    1000,
		Method:    "bank_transfer",
	})
	require.ErrorIs(t, err, domain.ErrAccountDeactivated)
}

func TestAdminAdjust(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := testutil.SeedAdmin(t, env.pool, "admin@test.local")
	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 0)

	newBalance, err := env.svc.AdminAdjust(ctx, AdjustRequest{
		AccountID: alice.ID,
		Action:    AdjustActionCredit,
		Amount:    10000,
		Reason:    "goodwill credit",
		AdminID:   admin.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), newBalance)

	newBalance, err = env.svc.AdminAdjust(ctx, AdjustRequest{
		AccountID: alice.ID,
		Action:    AdjustActionDebit,
		Amount:    4000,
		Reason:    "fee reversal correction",
		AdminID:   admin.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6000), newBalance)

	// a debit may not take the balance negative
	_, err = env.svc.AdminAdjust(ctx, AdjustRequest{
		AccountID: alice.ID,
		Action:    AdjustActionDebit,
		Amount:    99999,
		Reason:    "too much",
		AdminID:   admin.ID,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// adjustments work on deactivated accounts (admin override)
	testutil.DeactivateAccount(t, env.pool, alice.ID)
	_, err = env.svc.AdminAdjust(ctx, AdjustRequest{
		AccountID: alice.ID,
		Action:    AdjustActionCredit,
		Amount:    500,
		Reason:    "refund while deactivated",
		AdminID:   admin.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, testutil.GetBalance(t, env.pool, alice.ID), testutil.SumSignedEntries(t, env.pool, alice.ID))

	adjusted := env.recorder.EventsOfType(notify.EventBalanceAdjusted)
	require.Len(t, adjusted, 3)
	assert.Equal(t, alice.ID, adjusted[0].AccountID)
	require.NotNil(t, adjusted[0].ActorID)
	assert.Equal(t, admin.ID, *adjusted[0].ActorID)
}

func errorIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
