package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Fi44er/coin_exchange/internal/apperr"
	"github.com/Fi44er/coin_exchange/internal/chain/sandbox"
	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/internal/referral"
	"github.com/Fi44er/coin_exchange/internal/repository/memory"
	"github.com/Fi44er/coin_exchange/internal/wallet"
	"github.com/Fi44er/coin_exchange/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type recordingNotifier struct {
	mu       sync.Mutex
	items    []*models.Notification
	messages []string
}

func (r *recordingNotifier) Notify(_ context.Context, n *models.Notification, message string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
	r.messages = append(r.messages, message)
	return true, nil
}

type fakeReferral struct {
	calls []referral.Input
	err   error
}

func (f *fakeReferral) Payout(_ context.Context, in referral.Input) (*referral.Result, error) {
	f.calls = append(f.calls, in)
	if f.err != nil {
		return nil, f.err
	}
	return &referral.Result{Skipped: "no referrer"}, nil
}

type countingProviders struct {
	*wallet.Registry
	gets int
}

func (c *countingProviders) Get(coin models.Coin) (wallet.CoinWalletProvider, error) {
	c.gets++
	return c.Registry.Get(coin)
}

type env struct {
	store     *memory.Store
	ledger    *sandbox.Ledger
	providers *countingProviders
	notifier  *recordingNotifier
	referral  *fakeReferral
	engine    *Engine
	admin     *models.User
	buyer     *models.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	ledger := sandbox.NewLedger(nil)

	var ps []wallet.CoinWalletProvider
	for _, c := range models.Coins {
		ps = append(ps, wallet.NewProvider(ledger.Chain(c), store, nil, time.Second, utils.NopLogger()))
	}
	e := &env{
		store:     store,
		ledger:    ledger,
		providers: &countingProviders{Registry: wallet.NewRegistry(ps...)},
		notifier:  &recordingNotifier{},
		referral:  &fakeReferral{},
	}
	e.engine = NewEngine(e.providers, e.notifier, e.referral, utils.NopLogger())

	pin, err := bcrypt.GenerateFromPassword([]byte("1234"), bcrypt.MinCost)
	require.NoError(t, err)
	e.admin = &models.User{Email: "admin@x.io", ReferralCode: "ADMIN001", IsAdmin: true, Pin: string(pin)}
	e.buyer = &models.User{Email: "buyer@x.io", ReferralCode: "BUYER001"}
	require.NoError(t, store.CreateUser(ctx, e.admin))
	require.NoError(t, store.CreateUser(ctx, e.buyer))

	usdt, _ := e.providers.Registry.Get(models.CoinUSDT)
	adminWallet, err := usdt.CreateWallet(ctx, e.admin.ID)
	require.NoError(t, err)
	_, err = usdt.CreateWallet(ctx, e.buyer.ID)
	require.NoError(t, err)
	ledger.Fund(models.CoinUSDT, adminWallet.Address, decimal.NewFromInt(500))
	e.providers.gets = 0
	return e
}

func buyOrder(e *env, amount string) *models.Order {
	return &models.Order{
		ID: 42, UserID: e.buyer.ID, Type: models.OrderBuy, Coin: models.CoinUSDT,
		AmountToRecieve: decimal.RequireFromString(amount), Status: models.OrderPending,
		SettlementKey: "order:42:test",
	}
}

func TestSettleSendsAndNotifies(t *testing.T) {
	e := newEnv(t)

	out, err := e.engine.Settle(context.Background(), buyOrder(e, "100"), e.admin.ID, "1234")
	require.NoError(t, err)
	assert.NotEmpty(t, out.TxRef)

	usdt, _ := e.providers.Registry.Get(models.CoinUSDT)
	bal, err := usdt.GetBalance(context.Background(), e.buyer.ID)
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(100)))

	require.Len(t, e.notifier.items, 1)
	n := e.notifier.items[0]
	assert.Equal(t, e.buyer.ID, n.UserID)
	assert.Equal(t, out.TxRef, n.TransactionHash)
	assert.Equal(t, "You've Received 100.000000 USDT", e.notifier.messages[0])

	require.Len(t, e.referral.calls, 1)
	assert.Equal(t, referral.SourceSettlement, e.referral.calls[0].Source)
	assert.Equal(t, e.admin.ID, e.referral.calls[0].AdminID)

	journal, err := e.store.GetTransfer(context.Background(), "order:42:test")
	require.NoError(t, err)
	assert.Equal(t, models.TransferSent, journal.Status)
}

func TestSettleRejectsNonPositiveAmountBeforeProvider(t *testing.T) {
	e := newEnv(t)

	for _, amount := range []string{"0", "-1"} {
		_, err := e.engine.Settle(context.Background(), buyOrder(e, amount), e.admin.ID, "1234")
		assert.ErrorIs(t, err, apperr.ErrInvalidAmount)
	}
	assert.Equal(t, 0, e.providers.gets)
	assert.Equal(t, 0, e.ledger.Transfers(models.CoinUSDT))
}

func TestSettleRequiresPendingBuy(t *testing.T) {
	e := newEnv(t)

	sell := buyOrder(e, "1")
	sell.Type = models.OrderSell
	_, err := e.engine.Settle(context.Background(), sell, e.admin.ID, "1234")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	done := buyOrder(e, "1")
	done.Status = models.OrderCompleted
	_, err = e.engine.Settle(context.Background(), done, e.admin.ID, "1234")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestSettleWalletMissing(t *testing.T) {
	e := newEnv(t)

	order := buyOrder(e, "1")
	order.Coin = models.CoinBTC
	_, err := e.engine.Settle(context.Background(), order, e.admin.ID, "1234")
	assert.ErrorIs(t, err, apperr.ErrWalletMissing)
	assert.Empty(t, e.notifier.items)
}

func TestSettleSendFailurePropagates(t *testing.T) {
	e := newEnv(t)

	_, err := e.engine.Settle(context.Background(), buyOrder(e, "1"), e.admin.ID, "0000")
	assert.ErrorIs(t, err, apperr.ErrInvalidPin)

	e.ledger.FailNext(models.CoinUSDT, errors.New("reverted"))
	_, err = e.engine.Settle(context.Background(), buyOrder(e, "1"), e.admin.ID, "1234")
	assert.ErrorIs(t, err, apperr.ErrProvider)

	big := buyOrder(e, "1000")
	big.SettlementKey = "order:43:test"
	_, err = e.engine.Settle(context.Background(), big, e.admin.ID, "1234")
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)

	assert.Empty(t, e.notifier.items)
	assert.Empty(t, e.referral.calls)
}

func TestSettleSwallowsReferralErrors(t *testing.T) {
	e := newEnv(t)
	e.referral.err = apperr.New(apperr.KindWalletMissing, "referrer has no USDT wallet")

	out, err := e.engine.Settle(context.Background(), buyOrder(e, "10"), e.admin.ID, "1234")
	require.NoError(t, err)
	assert.NotEmpty(t, out.TxRef)
	assert.Nil(t, out.Referral)
}

func TestCompleteNotifiesWithoutSending(t *testing.T) {
	e := newEnv(t)

	out, err := e.engine.Complete(context.Background(), buyOrder(e, "7"), e.admin.ID, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", out.TxRef)
	assert.Equal(t, 0, e.ledger.Transfers(models.CoinUSDT))

	require.Len(t, e.notifier.items, 1)
	assert.Equal(t, "0xabc", e.notifier.items[0].TransactionHash)
	assert.NotEmpty(t, e.notifier.items[0].From)
	require.Len(t, e.referral.calls, 1)
}
