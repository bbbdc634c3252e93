package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Fi44er/coin_exchange/config"
	"github.com/Fi44er/coin_exchange/internal/apperr"
	"github.com/Fi44er/coin_exchange/internal/chain/sandbox"
	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/internal/price"
	"github.com/Fi44er/coin_exchange/internal/realtime"
	"github.com/Fi44er/coin_exchange/internal/referral"
	"github.com/Fi44er/coin_exchange/internal/repository/memory"
	"github.com/Fi44er/coin_exchange/internal/service"
	"github.com/Fi44er/coin_exchange/internal/settlement"
	"github.com/Fi44er/coin_exchange/internal/swap"
	"github.com/Fi44er/coin_exchange/internal/wallet"
	"github.com/Fi44er/coin_exchange/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPrices struct{}

func (stubPrices) Current(context.Context, models.Coin, string) (decimal.Decimal, error) {
	return decimal.NewFromInt(1), nil
}

func (stubPrices) History(context.Context, models.Coin, string) (price.History, error) {
	return price.History{PriceNow: decimal.NewFromInt(1)}, nil
}

type stubSwaps struct{}

func (stubSwaps) Ranges(context.Context, models.Coin, models.Coin) (*swap.Range, error) {
	return &swap.Range{Min: decimal.NewFromInt(1)}, nil
}

func (stubSwaps) CreateExchange(context.Context, swap.ExchangeRequest) (*swap.Exchange, error) {
	return nil, apperr.New(apperr.KindProviderUnavailable, "swaps disabled")
}

type fixture struct {
	store  *memory.Store
	ledger *sandbox.Ledger
	svc    *service.Service
	tokens *Tokens
	router http.Handler
	admin  *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := utils.NopLogger()

	store := memory.NewStore()
	ledger := sandbox.NewLedger(nil)
	locks := utils.NewKeyedMutex()

	var providers []wallet.CoinWalletProvider
	for _, c := range models.Coins {
		providers = append(providers, wallet.NewProvider(ledger.Chain(c), store, locks, time.Second, logger))
	}
	registry := wallet.NewRegistry(providers...)

	settings := service.NewSettingsStore(store, logger)
	require.NoError(t, settings.Ensure(ctx, &config.Config{ReferralActive: true, ReferralPercentage: 5}))

	hub := realtime.NewHub()
	sink := service.NewNotificationSink(store, hub, logger)
	rule := referral.NewRule(store, registry, settings, logger)
	engine := settlement.NewEngine(registry, sink, rule, logger)

	svc := service.NewService(store, service.Deps{
		Providers:     registry,
		Prices:        stubPrices{},
		Swaps:         stubSwaps{},
		Engine:        engine,
		Referral:      rule,
		Notifications: sink,
		Settings:      settings,
		Locks:         locks,
	}, &config.Config{}, logger)

	admin, err := svc.EnsureAdmin(ctx, "admin@x.io", "adminpass")
	require.NoError(t, err)
	require.NoError(t, svc.SetPin(ctx, admin.ID, "1234"))

	tokens := NewTokens("test-secret", time.Hour)
	return &fixture{
		store:  store,
		ledger: ledger,
		svc:    svc,
		tokens: tokens,
		router: NewHandler(svc, hub, tokens, logger).Routes(),
		admin:  admin,
	}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) token(t *testing.T, u *models.User) string {
	t.Helper()
	tok, err := f.tokens.Issue(u)
	require.NoError(t, err)
	return tok
}

func (f *fixture) signup(t *testing.T, email string) (*models.User, string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Ada", "email": email, "password": "password1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.User, resp.Token
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	user, _ := f.signup(t, "ada@x.io")
	assert.Equal(t, "ada@x.io", user.Email)
	assert.False(t, user.IsAdmin)

	rec := f.do(t, http.MethodPost, "/auth/login", "", loginRequest{Email: "ada@x.io", Password: "password1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	id, admin, err := f.tokens.Parse(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)
	assert.False(t, admin)

	rec = f.do(t, http.MethodPost, "/auth/login", "", loginRequest{Email: "ada@x.io", Password: "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apperr.KindAuth, decodeError(t, rec).Kind)
}

func TestRegisterDuplicateEmailIsValidationError(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "ada@x.io")

	rec := f.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Ada", "email": "ada@x.io", "password": "password1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, apperr.KindValidation, body.Kind)
	assert.NotEmpty(t, body.Message)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apperr.KindAuth, decodeError(t, rec).Kind)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	f := newFixture(t)
	user, _ := f.signup(t, "ada@x.io")

	f.tokens.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok := f.token(t, user)
	f.tokens.now = time.Now

	rec := f.do(t, http.MethodGet, "/me", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeReturnsWallets(t *testing.T) {
	f := newFixture(t)
	_, tok := f.signup(t, "ada@x.io")

	rec := f.do(t, http.MethodGet, "/me", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var profile service.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Len(t, profile.Wallets, len(models.Coins))
}

func TestAdminRoutesForbidOrdinaryUsers(t *testing.T) {
	f := newFixture(t)
	_, tok := f.signup(t, "ada@x.io")

	rec := f.do(t, http.MethodGet, "/admin/orders", tok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apperr.KindForbidden, decodeError(t, rec).Kind)
}

func TestAdminFlagIsRecheckedAgainstStore(t *testing.T) {
	f := newFixture(t)
	user, _ := f.signup(t, "ada@x.io")

	forged := *user
	forged.IsAdmin = true
	rec := f.do(t, http.MethodGet, "/admin/orders", f.token(t, &forged), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestApproveBuyOrderOverHTTP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, _ := f.signup(t, "ada@x.io")

	adminAddr, err := f.svc.Address(ctx, f.admin.ID, models.CoinUSDT)
	require.NoError(t, err)
	f.ledger.Fund(models.CoinUSDT, adminAddr, decimal.NewFromInt(1000))

	order, err := f.svc.CreateOrder(ctx, &models.Order{
		UserID:          user.ID,
		Type:            models.OrderBuy,
		Coin:            models.CoinUSDT,
		AmountSent:      decimal.NewFromInt(100),
		AmountToRecieve: decimal.NewFromInt(100),
		Currency:        "USD",
	})
	require.NoError(t, err)

	adminTok := f.token(t, f.admin)
	path := fmt.Sprintf("/admin/orders/%d/approve", order.ID)

	rec := f.do(t, http.MethodPost, path, adminTok, approveRequest{Pin: "0000"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apperr.KindInvalidPin, decodeError(t, rec).Kind)

	rec = f.do(t, http.MethodPost, path, adminTok, approveRequest{Pin: "1234"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.OrderCompleted, got.Status)
	assert.NotEmpty(t, got.TxRef)

	bal, err := f.svc.Balance(ctx, user.ID, models.CoinUSDT)
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(100)), bal.String())

	rec = f.do(t, http.MethodPost, path, adminTok, approveRequest{Pin: "1234"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperr.KindInvalidState, decodeError(t, rec).Kind)
}

func TestRejectWithEmptyBody(t *testing.T) {
	f := newFixture(t)
	user, _ := f.signup(t, "ada@x.io")

	order, err := f.svc.CreateOrder(context.Background(), &models.Order{
		UserID:          user.ID,
		Type:            models.OrderBuy,
		Coin:            models.CoinUSDT,
		AmountSent:      decimal.NewFromInt(10),
		AmountToRecieve: decimal.NewFromInt(10),
		Currency:        "USD",
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/admin/orders/%d/reject", order.ID), f.token(t, f.admin), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.OrderRejected, got.Status)
	assert.Zero(t, f.ledger.Transfers(models.CoinUSDT))
}

func TestUnknownOrderIsNotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/admin/orders/999/approve", f.token(t, f.admin), approveRequest{Pin: "1234"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperr.KindNotFound, decodeError(t, rec).Kind)
}

func TestUnsupportedCoinIsValidationError(t *testing.T) {
	f := newFixture(t)
	_, tok := f.signup(t, "ada@x.io")

	rec := f.do(t, http.MethodGet, "/wallets/doge/balance", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperr.KindValidation, decodeError(t, rec).Kind)
}

func TestSendUsesIdempotencyKeyHeader(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, tok := f.signup(t, "ada@x.io")
	require.NoError(t, f.svc.SetPin(ctx, user.ID, "4321"))

	addr, err := f.svc.Address(ctx, user.ID, models.CoinUSDT)
	require.NoError(t, err)
	f.ledger.Fund(models.CoinUSDT, addr, decimal.NewFromInt(50))
	to, err := f.svc.Address(ctx, f.admin.ID, models.CoinUSDT)
	require.NoError(t, err)

	send := func() *httptest.ResponseRecorder {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(map[string]any{
			"to": to, "amount": "5", "pin": "4321",
		}))
		req := httptest.NewRequest(http.MethodPost, "/wallets/usdt/send", &buf)
		req.Header.Set("Authorization", "Bearer "+tok)
		req.Header.Set("Idempotency-Key", "client-1")
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	transfers := f.ledger.Transfers(models.CoinUSDT)

	second := send()
	require.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, transfers, f.ledger.Transfers(models.CoinUSDT))
}

func TestSettingsAdminUpdateAndPublicView(t *testing.T) {
	f := newFixture(t)
	_, tok := f.signup(t, "ada@x.io")
	adminTok := f.token(t, f.admin)

	rec := f.do(t, http.MethodPut, "/admin/settings", adminTok, map[string]any{"bank_name": "First Bank"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/settings", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pub service.PublicSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pub))
	assert.Equal(t, "First Bank", pub.BankName)

	rec = f.do(t, http.MethodPut, "/admin/settings", adminTok, map[string]any{"referral_percentage": "150"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminListsUsersPaged(t *testing.T) {
	f := newFixture(t)
	ada, tok := f.signup(t, "ada@x.io")
	f.signup(t, "bob@x.io")
	adminTok := f.token(t, f.admin)

	rec := f.do(t, http.MethodGet, "/admin/users?limit=2&offset=1", adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password")

	var users []models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users, 2)
	assert.Equal(t, ada.ID, users[0].ID)
	assert.Equal(t, "bob@x.io", users[1].Email)

	rec = f.do(t, http.MethodGet, "/admin/users?offset=10", adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/admin/users?limit=many", adminTok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/admin/users", tok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReferralPayoutsOverHTTP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	referrer, refTok := f.signup(t, "ref@x.io")
	buyer, err := f.svc.Register(ctx, service.RegisterInput{
		Name: "Bob", Email: "bob@x.io", Password: "password1", ReferrerCode: referrer.ReferralCode,
	})
	require.NoError(t, err)

	adminAddr, err := f.svc.Address(ctx, f.admin.ID, models.CoinUSDT)
	require.NoError(t, err)
	f.ledger.Fund(models.CoinUSDT, adminAddr, decimal.NewFromInt(105))

	order, err := f.svc.CreateOrder(ctx, &models.Order{
		UserID:          buyer.ID,
		Type:            models.OrderBuy,
		Coin:            models.CoinUSDT,
		AmountSent:      decimal.NewFromInt(100),
		AmountToRecieve: decimal.NewFromInt(100),
		Currency:        "USD",
	})
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, order.ID, f.admin.ID, "1234")
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/me/referrals", refTok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var mine []models.ReferralPayout
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, buyer.ID, mine[0].ReferredUserID)
	assert.Equal(t, models.PayoutPaid, mine[0].Status)

	adminTok := f.token(t, f.admin)
	rec = f.do(t, http.MethodGet, "/admin/referrals?status=paid", adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var paid []models.ReferralPayout
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &paid))
	assert.Len(t, paid, 1)

	rec = f.do(t, http.MethodGet, "/admin/referrals?status=unknown", adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/admin/referrals?status=lost", adminTok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/admin/referrals", refTok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStatusByKind(t *testing.T) {
	cases := map[apperr.Kind]int{
		apperr.KindValidation:          http.StatusBadRequest,
		apperr.KindNotFound:            http.StatusNotFound,
		apperr.KindAuth:                http.StatusUnauthorized,
		apperr.KindInvalidPin:          http.StatusForbidden,
		apperr.KindInvalidState:        http.StatusConflict,
		apperr.KindInsufficientFunds:   http.StatusUnprocessableEntity,
		apperr.KindProvider:            http.StatusBadGateway,
		apperr.KindProviderUnavailable: http.StatusServiceUnavailable,
		apperr.KindTimeout:             http.StatusGatewayTimeout,
		apperr.KindInternal:            http.StatusInternalServerError,
		apperr.Kind("bogus"):           http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusOf(kind), kind)
	}
}
