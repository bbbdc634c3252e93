package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Fi44er/coin_exchange/config"
	"github.com/Fi44er/coin_exchange/internal/chain/sandbox"
	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/internal/price"
	"github.com/Fi44er/coin_exchange/internal/realtime"
	"github.com/Fi44er/coin_exchange/internal/referral"
	"github.com/Fi44er/coin_exchange/internal/repository/memory"
	"github.com/Fi44er/coin_exchange/internal/settlement"
	"github.com/Fi44er/coin_exchange/internal/swap"
	"github.com/Fi44er/coin_exchange/internal/wallet"
	"github.com/Fi44er/coin_exchange/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakePrices struct {
	rates map[models.Coin]decimal.Decimal
}

func (f *fakePrices) Current(_ context.Context, coin models.Coin, _ string) (decimal.Decimal, error) {
	return f.rates[coin], nil
}

func (f *fakePrices) History(_ context.Context, coin models.Coin, _ string) (price.History, error) {
	return price.History{PriceNow: f.rates[coin]}, nil
}

type fakeSwaps struct {
	rng      swap.Range
	exchange swap.Exchange
	requests []swap.ExchangeRequest
}

func (f *fakeSwaps) Ranges(context.Context, models.Coin, models.Coin) (*swap.Range, error) {
	r := f.rng
	return &r, nil
}

func (f *fakeSwaps) CreateExchange(_ context.Context, req swap.ExchangeRequest) (*swap.Exchange, error) {
	f.requests = append(f.requests, req)
	ex := f.exchange
	return &ex, nil
}

type recordingAlerter struct {
	mu       sync.Mutex
	orders   []uint
	failures []error
	stuck    [][]StuckOrder
}

func (a *recordingAlerter) NotifyNewOrder(_ context.Context, order *models.Order) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.orders = append(a.orders, order.ID)
}

func (a *recordingAlerter) NotifySettlementFailed(_ context.Context, _ *models.Order, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures = append(a.failures, err)
}

func (a *recordingAlerter) NotifyStuckOrders(_ context.Context, stuck []StuckOrder) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stuck = append(a.stuck, stuck)
}

type env struct {
	store    *memory.Store
	ledger   *sandbox.Ledger
	registry *wallet.Registry
	hub      *realtime.Hub
	prices   *fakePrices
	swaps    *fakeSwaps
	alerter  *recordingAlerter
	svc      *Service
	admin    *models.User
}

const adminPin = "1234"

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	logger := utils.NopLogger()

	store := memory.NewStore()
	ledger := sandbox.NewLedger(nil)
	var tick int64
	ledger.SetClock(func() time.Time {
		return time.Unix(1_700_000_000+atomic.AddInt64(&tick, 1), 0)
	})

	locks := utils.NewKeyedMutex()
	var providers []*wallet.Provider
	var list []wallet.CoinWalletProvider
	for _, c := range models.Coins {
		p := wallet.NewProvider(ledger.Chain(c), store, locks, time.Second, logger)
		providers = append(providers, p)
		list = append(list, p)
	}
	registry := wallet.NewRegistry(list...)

	settings := NewSettingsStore(store, logger)
	require.NoError(t, settings.Ensure(ctx, &config.Config{ReferralActive: true, ReferralPercentage: 5}))

	hub := realtime.NewHub()
	sink := NewNotificationSink(store, hub, logger)
	rule := referral.NewRule(store, registry, settings, logger)
	engine := settlement.NewEngine(registry, sink, rule, logger)

	e := &env{
		store:    store,
		ledger:   ledger,
		registry: registry,
		hub:      hub,
		prices:   &fakePrices{rates: map[models.Coin]decimal.Decimal{models.CoinUSDT: decimal.NewFromInt(1)}},
		swaps:    &fakeSwaps{},
		alerter:  &recordingAlerter{},
	}
	e.svc = NewService(store, Deps{
		Providers:     registry,
		Prices:        e.prices,
		Swaps:         e.swaps,
		Engine:        engine,
		Referral:      rule,
		Notifications: sink,
		Settings:      settings,
		Locks:         locks,
	}, &config.Config{}, logger)
	e.svc.SetAlerter(e.alerter)
	for _, p := range providers {
		p.OnReceive(e.svc.HandleReceive)
	}

	admin, err := e.svc.EnsureAdmin(ctx, "admin@x.io", "adminpass")
	require.NoError(t, err)
	require.NoError(t, e.svc.SetPin(ctx, admin.ID, adminPin))
	e.admin = admin
	return e
}

func (e *env) register(t *testing.T, email, referrerCode string) *models.User {
	t.Helper()
	u, err := e.svc.Register(context.Background(), RegisterInput{
		Name: email, Email: email, Password: "password1", ReferrerCode: referrerCode,
	})
	require.NoError(t, err)
	return u
}

func (e *env) address(t *testing.T, u *models.User, coin models.Coin) string {
	t.Helper()
	addr, err := e.svc.Address(context.Background(), u.ID, coin)
	require.NoError(t, err)
	return addr
}

func (e *env) fund(t *testing.T, u *models.User, coin models.Coin, amount int64) string {
	t.Helper()
	return e.ledger.Fund(coin, e.address(t, u, coin), decimal.NewFromInt(amount))
}

func (e *env) balance(t *testing.T, u *models.User, coin models.Coin) decimal.Decimal {
	t.Helper()
	bal, err := e.svc.Balance(context.Background(), u.ID, coin)
	require.NoError(t, err)
	return bal
}

func (e *env) user(t *testing.T, u *models.User) *models.User {
	t.Helper()
	got, err := e.svc.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	return got
}

func (e *env) buyOrder(t *testing.T, u *models.User, amount int64) *models.Order {
	t.Helper()
	order, err := e.svc.CreateOrder(context.Background(), &models.Order{
		UserID:          u.ID,
		Type:            models.OrderBuy,
		Coin:            models.CoinUSDT,
		AmountSent:      decimal.NewFromInt(amount),
		AmountToRecieve: decimal.NewFromInt(amount),
		Currency:        "USD",
	})
	require.NoError(t, err)
	return order
}

func (e *env) order(t *testing.T, id uint) *models.Order {
	t.Helper()
	o, err := e.store.GetOrder(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, o)
	return o
}
