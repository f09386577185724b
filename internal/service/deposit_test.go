package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalpath/ledger-service/internal/domain"
	"github.com/capitalpath/ledger-service/internal/notify"
	"github.com/capitalpath/ledger-service/internal/repository"
	"github.com/capitalpath/ledger-service/internal/service/transfer"
	"github.com/capitalpath/ledger-service/internal/testutil"
)

type depositEnv struct {
	svc      *DepositService
	pool     *sql.DB
	recorder *notify.Recorder
}

func newDepositEnv(t *testing.T) *depositEnv {
	t.Helper()
	pool := testutil.SetupTestDB(t)

	db := repository.NewDB(pool, 3000)
	accounts := repository.NewAccountRepository(pool)
	ledger := repository.NewLedgerRepository(pool)
	deposits := repository.NewDepositRepository(pool)
	recorder := notify.NewRecorder()
	transfers := transfer.NewService(accounts, ledger, db, recorder)

	return &depositEnv{
		svc:      NewDepositService(deposits, accounts, ledger, transfers, db, recorder),
		pool:     pool,
		recorder: recorder,
	}
}

func TestDepositToOwnAccountRequiresApproval(t *testing.T) {
	env := newDepositEnv(t)

	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 20000)

	outcome, err := env.svc.Create(context.Background(), CreateDepositRequest{
		AccountID:         alice.ID,
		Amount:            50000,
		DestinationNumber: alice.AccountNumber,
		SourceBankName:    "First National",
		SourceBankLast4:   "4821",
	})
	require.NoError(t, err)

	assert.True(t, outcome.RequiresApproval)
	require.NotNil(t, outcome.DepositID)

	// nothing moved yet
	assert.Equal(t, int64(20000), testutil.GetBalance(t, env.pool, alice.ID))
	assert.Equal(t, 0, testutil.CountLedgerEntries(t, env.pool, alice.ID))

	requested := env.recorder.EventsOfType(notify.EventDepositRequested)
	require.Len(t, requested, 1)
}

func TestDepositApproveCreditsExactlyOnce(t *testing.T) {
	env := newDepositEnv(t)
	ctx := context.Background()

	admin := testutil.SeedAdmin(t, env.pool, "admin@test.local")
	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 20000)

	outcome, err := env.svc.Create(ctx, CreateDepositRequest{
		AccountID:         alice.ID,
		Amount:            50000,
		DestinationNumber: alice.AccountNumber,
		SourceBankName:    "First National",
		SourceBankLast4:   "4821",
	})
	require.NoError(t, err)

	deposit, err := env.svc.Approve(ctx, *outcome.DepositID, admin.ID, "verified with bank")
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStatusApproved, deposit.Status)
	assert.Equal(t, int64(70000), testutil.GetBalance(t, env.pool, alice.ID))
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, env.pool, alice.ID))

	// second approval is rejected and credits nothing
	_, err = env.svc.Approve(ctx, *outcome.DepositID, admin.ID, "again")
	require.ErrorIs(t, err, domain.ErrAlreadyProcessed)
	assert.Equal(t, int64(70000), testutil.GetBalance(t, env.pool, alice.ID))
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, env.pool, alice.ID))

	// rejecting after approval fails too
	_, err = env.svc.Reject(ctx, *outcome.DepositID, admin.ID, "late reject")
	require.ErrorIs(t, err, domain.ErrAlreadyProcessed)

	approved := env.recorder.EventsOfType(notify.EventDepositApproved)
	require.Len(t, approved, 1)
	assert.Equal(t, alice.ID, approved[0].AccountID)
}

func TestDepositConcurrentApprovalCreditsOnce(t *testing.T) {
	env := newDepositEnv(t)
	ctx := context.Background()

	admin := testutil.SeedAdmin(t, env.pool, "admin@test.local")
	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 0)

	outcome, err := env.svc.Create(ctx, CreateDepositRequest{
		AccountID:         alice.ID,
		Amount:            10000,
		DestinationNumber: alice.AccountNumber,
		SourceBankName:    "First National",
		SourceBankLast4:   "4821",
	})
	require.NoError(t, err)

	const workers = 5
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.svc.Approve(ctx, *outcome.DepositID, admin.ID, "race")
		}()
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(10000), testutil.GetBalance(t, env.pool, alice.ID))
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, env.pool, alice.ID))
}

func TestDepositReject(t *testing.T) {
	env := newDepositEnv(t)
	ctx := context.Background()

	admin := testutil.SeedAdmin(t, env.pool, "admin@test.local")
	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 20000)

	outcome, err := env.svc.Create(ctx, CreateDepositRequest{
		AccountID:         alice.ID,
		Amount:            50000,
		DestinationNumber: alice.AccountNumber,
		SourceBankName:    "First National",
		SourceBankLast4:   "4821",
	})
	require.NoError(t, err)

	deposit, err := env.svc.Reject(ctx, *outcome.DepositID, admin.ID, "could not verify source")
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStatusRejected, deposit.Status)
	assert.Equal(t, "could not verify source", deposit.AdminNotes)

	assert.Equal(t, int64(20000), testutil.GetBalance(t, env.pool, alice.ID))
	assert.Equal(t, 0, testutil.CountLedgerEntries(t, env.pool, alice.ID))

	rejected := env.recorder.EventsOfType(notify.EventDepositRejected)
	require.Len(t, rejected, 1)
}

func TestDepositToOtherAccountSettlesInstantly(t *testing.T) {
	env := newDepositEnv(t)

	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 70000)
	bob := testutil.SeedAccount(t, env.pool, "bob@test.local", 5000)

	outcome, err := env.svc.Create(context.Background(), CreateDepositRequest{
		AccountID:         alice.ID,
		Amount:            30000,
		DestinationNumber: bob.AccountNumber,
		SourceBankName:    "First National",
		SourceBankLast4:   "4821",
		Description:       "shared groceries",
	})
	require.NoError(t, err)

	assert.False(t, outcome.RequiresApproval)
	require.NotNil(t, outcome.TransferID)
	require.NotNil(t, outcome.NewBalance)
	assert.Equal(t, int64(40000), *outcome.NewBalance)
	assert.Equal(t, int64(40000), testutil.GetBalance(t, env.pool, alice.ID))
	assert.Equal(t, int64(35000), testutil.GetBalance(t, env.pool, bob.ID))

	received := env.recorder.EventsOfType(notify.EventTransferReceived)
	require.Len(t, received, 1)
}

func TestDepositUnknownDestination(t *testing.T) {
	env := newDepositEnv(t)

	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 10000)

	_, err := env.svc.Create(context.Background(), CreateDepositRequest{
		AccountID:         alice.ID,
		Amount:            1000,
		DestinationNumber: "CP00000000",
		SourceBankName:    "First National",
		SourceBankLast4:   "4821",
	})
	require.ErrorIs(t, err, domain.ErrUnknownDestination)
}

func TestDepositFromDeactivatedAccount(t *testing.T) {
	env := newDepositEnv(t)

	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 10000)
	testutil.DeactivateAccount(t, env.pool, alice.ID)

	_, err := env.svc.Create(context.Background(), CreateDepositRequest{
		AccountID:         alice.ID,
		Amount:            1000,
		DestinationNumber: alice.AccountNumber,
		SourceBankName:    "First National",
		SourceBankLast4:   "4821",
	})
	require.ErrorIs(t, err, domain.ErrAccountDeactivated)
}

func TestDepositListings(t *testing.T) {
	env := newDepositEnv(t)
	ctx := context.Background()

	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 0)
	for range 3 {
		_, err := env.svc.Create(ctx, CreateDepositRequest{
			AccountID:         alice.ID,
			Amount:            1000,
			DestinationNumber: alice.AccountNumber,
			SourceBankName:    "First National",
			SourceBankLast4:   "4821",
		})
		require.NoError(t, err)
	}

	pending, total, err := env.svc.ListByStatus(ctx, domain.DepositStatusPending, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, pending, 2)

	own, total, err := env.svc.ListForAccount(ctx, alice.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, own, 3)
}
