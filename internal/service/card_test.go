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
	"github.com/capitalpath/ledger-service/internal/testutil"
)

type cardEnv struct {
	svc      *CardService
	pool     *sql.DB
	recorder *notify.Recorder
}

func newCardEnv(t *testing.T) *cardEnv {
	t.Helper()
	pool := testutil.SetupTestDB(t)

	db := repository.NewDB(pool, 3000)
	accounts := repository.NewAccountRepository(pool)
	cards := repository.NewCardRepository(pool)
	recorder := notify.NewRecorder()

	return &cardEnv{
		svc:      NewCardService(cards, accounts, db, recorder),
		pool:     pool,
		recorder: recorder,
	}
}

func issueCard(t *testing.T, env *cardEnv, accountEmail string, cardType domain.CardType) (*domain.CreditCard, *domain.Account) {
	t.Helper()
	ctx := context.Background()

	admin := testutil.SeedAdmin(t, env.pool, "issuer-"+accountEmail)
	account := testutil.SeedAccount(t, env.pool, accountEmail, 0)

	req, err := env.svc.RequestCard(ctx, account.ID, cardType, domain.CardNetworkVisa)
	require.NoError(t, err)

	card, err := env.svc.DecideRequest(ctx, CardDecision{
		RequestID: req.ID,
		Approve:   true,
		AdminID:   admin.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, card)
	return card, account
}

func TestRequestCardRequiresApprovedKYC(t *testing.T) {
	env := newCardEnv(t)
	ctx := context.Background()

	pending := testutil.SeedAccountWithKYC(t, env.pool, "pending@test.local", 0, domain.KYCStatusPending)
	_, err := env.svc.RequestCard(ctx, pending.ID, domain.CardTypeGold, domain.CardNetworkVisa)
	require.ErrorIs(t, err, domain.ErrKYCNotApproved)

	deactivated := testutil.SeedAccount(t, env.pool, "off@test.local", 0)
	testutil.DeactivateAccount(t, env.pool, deactivated.ID)
	_, err = env.svc.RequestCard(ctx, deactivated.ID, domain.CardTypeGold, domain.CardNetworkVisa)
	require.ErrorIs(t, err, domain.ErrAccountDeactivated)
}

func TestDecideRequestIssuesCardWithTierLimit(t *testing.T) {
	env := newCardEnv(t)

	tests := []struct {
		cardType  domain.CardType
		wantLimit int64
	}{
		{domain.CardTypePlatinum, 1_000_000},
		{domain.CardTypeGold, 2_000_000},
		{domain.CardTypeBlack, 5_000_000},
	}

	for _, tt := range tests {
		card, _ := issueCard(t, env, string(tt.cardType)+"@test.local", tt.cardType)
		assert.Equal(t, tt.wantLimit, card.CreditLimit)
		assert.Equal(t, tt.wantLimit, card.AvailableCredit)
		assert.Equal(t, domain.CardStatusActive, card.Status)
	}

	issued := env.recorder.EventsOfType(notify.EventCardIssued)
	assert.Len(t, issued, 3)
}

func TestDecideRequestExactlyOnce(t *testing.T) {
	env := newCardEnv(t)
	ctx := context.Background()

	admin := testutil.SeedAdmin(t, env.pool, "admin@test.local")
	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 0)

	req, err := env.svc.RequestCard(ctx, alice.ID, domain.CardTypeGold, domain.CardNetworkVisa)
	require.NoError(t, err)

	const workers = 5
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.svc.DecideRequest(ctx, CardDecision{
				RequestID: req.ID,
				Approve:   true,
				AdminID:   admin.ID,
			})
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

	cards, err := env.svc.ListCards(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, cards, 1)
}

func TestDecideRequestHonorsOverrides(t *testing.T) {
	env := newCardEnv(t)
	ctx := context.Background()

	admin := testutil.SeedAdmin(t, env.pool, "admin@test.local")
	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 0)

	req, err := env.svc.RequestCard(ctx, alice.ID, domain.CardTypePlatinum, domain.CardNetworkVisa)
	require.NoError(t, err)

	black := domain.CardTypeBlack
	mastercard := domain.CardNetworkMastercard
	card, err := env.svc.DecideRequest(ctx, CardDecision{
		RequestID: req.ID,
		Approve:   true,
		CardType:  &black,
		Network:   &mastercard,
		AdminID:   admin.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.CardTypeBlack, card.CardType)
	assert.Equal(t, domain.CardNetworkMastercard, card.Network)
	assert.Equal(t, domain.CreditLimitFor(domain.CardTypeBlack), card.CreditLimit)
}

func TestDecideRequestReject(t *testing.T) {
	env := newCardEnv(t)
	ctx := context.Background()

	admin := testutil.SeedAdmin(t, env.pool, "admin@test.local")
	alice := testutil.SeedAccount(t, env.pool, "alice@test.local", 0)

	req, err := env.svc.RequestCard(ctx, alice.ID, domain.CardTypeGold, domain.CardNetworkVisa)
	require.NoError(t, err)

	card, err := env.svc.DecideRequest(ctx, CardDecision{
		RequestID: req.ID,
		Approve:   false,
		AdminID:   admin.ID,
		Notes:     "income not verified",
	})
	require.NoError(t, err)
	assert.Nil(t, card)

	cards, err := env.svc.ListCards(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, cards)

	rejected := env.recorder.EventsOfType(notify.EventCardRejected)
	require.Len(t, rejected, 1)
}

func TestSpendAndRepay(t *testing.T) {
	env := newCardEnv(t)
	ctx := context.Background()

	card, _ := issueCard(t, env, "alice@test.local", domain.CardTypePlatinum)

	spent, err := env.svc.Spend(ctx, card.ID, 300_000)
	require.NoError(t, err)
	assert.Equal(t, int64(700_000), spent.AvailableCredit)

	_, err = env.svc.Spend(ctx, card.ID, 800_000)
	require.ErrorIs(t, err, domain.ErrCreditExceeded)

	repaid, err := env.svc.Repay(ctx, card.ID, 100_000)
	require.NoError(t, err)
	assert.Equal(t, int64(800_000), repaid.AvailableCredit)

	// over-repayment caps at the limit
	repaid, err = env.svc.Repay(ctx, card.ID, 999_999)
	require.NoError(t, err)
	assert.Equal(t, card.CreditLimit, repaid.AvailableCredit)
}

func TestChangeTypePreservesConsumedCredit(t *testing.T) {
	env := newCardEnv(t)
	ctx := context.Background()

	admin := testutil.SeedAdmin(t, env.pool, "retier-admin@test.local")
	card, _ := issueCard(t, env, "alice@test.local", domain.CardTypeGold)

	// consume 1,500,000 of the 2,000,000 gold limit
	_, err := env.svc.Spend(ctx, card.ID, 1_500_000)
	require.NoError(t, err)

	// upgrade to black: consumed credit carries over
	upgraded, err := env.svc.ChangeType(ctx, card.ID, domain.CardTypeBlack, admin.ID, "relationship upgrade")
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), upgraded.CreditLimit)
	assert.Equal(t, int64(3_500_000), upgraded.AvailableCredit)

	// downgrade below usage floors available credit at zero
	downgraded, err := env.svc.ChangeType(ctx, card.ID, domain.CardTypePlatinum, admin.ID, "risk review")
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), downgraded.CreditLimit)
	assert.Equal(t, int64(0), downgraded.AvailableCredit)
}

func TestDeactivatedCardRejectsOperations(t *testing.T) {
	env := newCardEnv(t)
	ctx := context.Background()

	admin := testutil.SeedAdmin(t, env.pool, "status-admin@test.local")
	card, _ := issueCard(t, env, "alice@test.local", domain.CardTypeGold)

	_, err := env.svc.SetCardStatus(ctx, card.ID, domain.CardStatusDeactivated, admin.ID, "lost card")
	require.NoError(t, err)

	_, err = env.svc.Spend(ctx, card.ID, 1000)
	require.ErrorIs(t, err, domain.ErrCardDeactivated)

	_, err = env.svc.ChangeType(ctx, card.ID, domain.CardTypeBlack, admin.ID, "upgrade")
	require.ErrorIs(t, err, domain.ErrCardDeactivated)
}
