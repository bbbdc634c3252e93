package referral

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Fi44er/coin_exchange/internal/apperr"
	"github.com/Fi44er/coin_exchange/internal/chain/sandbox"
	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/internal/repository/memory"
	"github.com/Fi44er/coin_exchange/internal/wallet"
	"github.com/Fi44er/coin_exchange/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSettings struct{ s models.Settings }

func (f *staticSettings) Settings(context.Context) (*models.Settings, error) {
	s := f.s
	return &s, nil
}

type env struct {
	store    *memory.Store
	ledger   *sandbox.Ledger
	registry *wallet.Registry
	settings *staticSettings
	rule     *Rule

	admin, referrer, buyer *models.User
}

func newEnv(t *testing.T, adminUSDT decimal.Decimal) *env {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	ledger := sandbox.NewLedger(nil)

	var providers []wallet.CoinWalletProvider
	for _, c := range models.Coins {
		providers = append(providers, wallet.NewProvider(ledger.Chain(c), store, nil, time.Second, utils.NopLogger()))
	}
	registry := wallet.NewRegistry(providers...)

	e := &env{
		store:    store,
		ledger:   ledger,
		registry: registry,
		settings: &staticSettings{s: models.Settings{ReferralActive: true, ReferralPercentage: decimal.NewFromInt(5)}},
	}
	e.rule = NewRule(store, registry, e.settings, utils.NopLogger())

	e.admin = e.user(t, "admin@x.io", "ADMIN001", "", true)
	e.referrer = e.user(t, "ref@x.io", "REF00001", "", false)
	e.buyer = e.user(t, "buyer@x.io", "BUY00001", "REF00001", false)

	usdt, _ := registry.Get(models.CoinUSDT)
	for _, u := range []*models.User{e.admin, e.referrer, e.buyer} {
		_, err := usdt.CreateWallet(ctx, u.ID)
		require.NoError(t, err)
	}
	if adminUSDT.IsPositive() {
		addr, _ := usdt.GetAddress(ctx, e.admin.ID)
		ledger.Fund(models.CoinUSDT, addr, adminUSDT)
	}
	return e
}

func (e *env) user(t *testing.T, email, code, referrer string, admin bool) *models.User {
	u := &models.User{Name: email, Email: email, ReferralCode: code, ReferrerID: referrer, IsAdmin: admin}
	require.NoError(t, e.store.CreateUser(context.Background(), u))
	return u
}

func (e *env) balance(t *testing.T, u *models.User, coin models.Coin) decimal.Decimal {
	p, _ := e.registry.Get(coin)
	bal, err := p.GetBalance(context.Background(), u.ID)
	require.NoError(t, err)
	return bal
}

func (e *env) paid(t *testing.T, u *models.User) bool {
	got, err := e.store.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	return got.ReferrerPaid
}

func TestPayoutFivePercentOfHundred(t *testing.T) {
	e := newEnv(t, decimal.NewFromInt(10))

	res, err := e.rule.Payout(context.Background(), Input{
		UserID: e.buyer.ID, Amount: decimal.NewFromInt(100), Coin: models.CoinUSDT, AdminID: e.admin.ID, Source: SourceSettlement,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)
	assert.True(t, res.Payout.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, e.referrer.ID, res.ReferrerID)

	assert.True(t, e.balance(t, e.referrer, models.CoinUSDT).Equal(decimal.NewFromInt(5)))
	assert.True(t, e.balance(t, e.admin, models.CoinUSDT).Equal(decimal.NewFromInt(5)))
	assert.True(t, e.paid(t, e.buyer))

	payouts, err := e.store.ListReferralPayouts(context.Background(), e.referrer.ID)
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	assert.Equal(t, models.PayoutPaid, payouts[0].Status)
	assert.Equal(t, res.TxRef, payouts[0].TxRef)

	again, err := e.rule.Payout(context.Background(), Input{UserID: e.buyer.ID, Amount: decimal.NewFromInt(100), Coin: models.CoinUSDT, AdminID: e.admin.ID})
	require.NoError(t, err)
	assert.Equal(t, "already paid", again.Skipped)
	assert.Equal(t, 1, e.ledger.Transfers(models.CoinUSDT))
}

func TestPayoutSkippedWhenTreasuryShort(t *testing.T) {
	e := newEnv(t, decimal.NewFromInt(3))

	res, err := e.rule.Payout(context.Background(), Input{
		UserID: e.buyer.ID, Amount: decimal.NewFromInt(100), Coin: models.CoinUSDT, AdminID: e.admin.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "insufficient treasury balance", res.Skipped)

	assert.True(t, e.balance(t, e.referrer, models.CoinUSDT).IsZero())
	assert.False(t, e.paid(t, e.buyer))
	assert.Equal(t, 0, e.ledger.Transfers(models.CoinUSDT))
}

func TestPayoutClaimedOnceUnderConcurrency(t *testing.T) {
	e := newEnv(t, decimal.NewFromInt(1000))

	var wg sync.WaitGroup
	var mu sync.Mutex
	sent := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.rule.Payout(context.Background(), Input{
				UserID: e.buyer.ID, Amount: decimal.NewFromInt(100), Coin: models.CoinUSDT, Source: SourceReceive,
			})
			if err == nil && res.Skipped == "" {
				mu.Lock()
				sent++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, e.ledger.Transfers(models.CoinUSDT))
	assert.True(t, e.balance(t, e.referrer, models.CoinUSDT).Equal(decimal.NewFromInt(5)))
	assert.True(t, e.paid(t, e.buyer))
}

func TestPayoutRoundsHalfToEven(t *testing.T) {
	tests := []struct {
		amount string
		want   string
	}{
		{"0.00003", "0.000002"},
		{"33.333333", "1.666667"},
		{"0.00005", "0.000002"},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			e := newEnv(t, decimal.NewFromInt(10))
			res, err := e.rule.Payout(context.Background(), Input{
				UserID: e.buyer.ID, Amount: decimal.RequireFromString(tt.amount), Coin: models.CoinUSDT, AdminID: e.admin.ID,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Payout.String())
		})
	}
}

func TestPayoutZeroAfterRoundingIsNoop(t *testing.T) {
	e := newEnv(t, decimal.NewFromInt(10))
	res, err := e.rule.Payout(context.Background(), Input{
		UserID: e.buyer.ID, Amount: decimal.RequireFromString("0.00001"), Coin: models.CoinUSDT, AdminID: e.admin.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "zero payout", res.Skipped)
	assert.False(t, e.paid(t, e.buyer))
}

func TestPayoutNoops(t *testing.T) {
	e := newEnv(t, decimal.NewFromInt(10))
	ctx := context.Background()

	res, err := e.rule.Payout(ctx, Input{UserID: e.referrer.ID, Amount: decimal.NewFromInt(100), Coin: models.CoinUSDT})
	require.NoError(t, err)
	assert.Equal(t, "no referrer", res.Skipped)

	orphan := e.user(t, "orphan@x.io", "ORPHAN01", "NOSUCH01", false)
	res, err = e.rule.Payout(ctx, Input{UserID: orphan.ID, Amount: decimal.NewFromInt(100), Coin: models.CoinUSDT})
	require.NoError(t, err)
	assert.Equal(t, "referrer not found", res.Skipped)

	e.settings.s.ReferralActive = false
	res, err = e.rule.Payout(ctx, Input{UserID: e.buyer.ID, Amount: decimal.NewFromInt(100), Coin: models.CoinUSDT})
	require.NoError(t, err)
	assert.Equal(t, "referrals disabled", res.Skipped)

	assert.Equal(t, 0, e.ledger.Transfers(models.CoinUSDT))
}

func TestPayoutReferrerWithoutWallet(t *testing.T) {
	e := newEnv(t, decimal.NewFromInt(10))

	_, err := e.rule.Payout(context.Background(), Input{
		UserID: e.buyer.ID, Amount: decimal.NewFromInt(1), Coin: models.CoinETH, AdminID: e.admin.ID,
	})
	assert.ErrorIs(t, err, apperr.ErrWalletMissing)
	assert.False(t, e.paid(t, e.buyer))
}

func TestPayoutSendFailureKeepsClaim(t *testing.T) {
	e := newEnv(t, decimal.NewFromInt(10))
	e.ledger.FailNext(models.CoinUSDT, errors.New("node rejected tx"))

	_, err := e.rule.Payout(context.Background(), Input{
		UserID: e.buyer.ID, Amount: decimal.NewFromInt(100), Coin: models.CoinUSDT, AdminID: e.admin.ID,
	})
	assert.ErrorIs(t, err, apperr.ErrProvider)
	assert.True(t, e.paid(t, e.buyer))

	payouts, err := e.store.ListReferralPayouts(context.Background(), e.referrer.ID)
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	assert.Equal(t, models.PayoutFailed, payouts[0].Status)
}
