package service

import (
	"context"
	"regexp"
	"testing"

	"github.com/Fi44er/coin_exchange/internal/apperr"
	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	referrer := e.register(t, "ref@x.io", "")
	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{8}$`), referrer.ReferralCode)
	assert.NotEqual(t, "password1", referrer.Password)

	buyer := e.register(t, "Buyer@X.io", referrer.ReferralCode)
	assert.Equal(t, "buyer@x.io", buyer.Email)
	assert.Equal(t, referrer.ReferralCode, buyer.ReferrerID)
	assert.NotEqual(t, referrer.ReferralCode, buyer.ReferralCode)

	profile, err := e.svc.Me(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Len(t, profile.Wallets, len(models.Coins))

	tests := []struct {
		name string
		in   RegisterInput
	}{
		{"duplicate email", RegisterInput{Email: "ref@x.io", Password: "password1"}},
		{"bad email", RegisterInput{Email: "not-an-email", Password: "password1"}},
		{"short password", RegisterInput{Email: "new@x.io", Password: "short"}},
		{"unknown referral code", RegisterInput{Email: "new@x.io", Password: "password1", ReferrerCode: "NOPE0000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.Register(ctx, tt.in)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "user@x.io", "")

	got, err := e.svc.Authenticate(ctx, " USER@x.io", "password1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = e.svc.Authenticate(ctx, "user@x.io", "wrong-password")
	assert.ErrorIs(t, err, apperr.ErrAuth)
	_, err = e.svc.Authenticate(ctx, "nobody@x.io", "password1")
	assert.ErrorIs(t, err, apperr.ErrAuth)
}

func TestPinRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "user@x.io", "")

	for _, bad := range []string{"", "123", "12345", "12a4", " 1234"} {
		assert.ErrorIs(t, e.svc.SetPin(ctx, u.ID, bad), apperr.ErrValidation, bad)
	}

	require.NoError(t, e.svc.SetPin(ctx, u.ID, "1111"))
	assert.ErrorIs(t, e.svc.SetPin(ctx, u.ID, "2222"), apperr.ErrValidation)

	assert.ErrorIs(t, e.svc.UpdatePin(ctx, u.ID, "0000", "2222"), apperr.ErrInvalidPin)
	require.NoError(t, e.svc.UpdatePin(ctx, u.ID, "1111", "2222"))

	stored := e.user(t, u)
	assert.NoError(t, checkPin(stored, "2222"))
	assert.ErrorIs(t, checkPin(stored, "1111"), apperr.ErrInvalidPin)

	fresh := e.register(t, "fresh@x.io", "")
	assert.ErrorIs(t, e.svc.UpdatePin(ctx, fresh.ID, "1111", "2222"), apperr.ErrAuth)
}

func TestDeleteUserCascadesWallets(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "gone@x.io", "")
	order := e.buyOrder(t, u, 5)

	require.NoError(t, e.svc.DeleteUser(ctx, u.ID))

	for _, coin := range models.Coins {
		w, err := e.store.GetWallet(ctx, u.ID, coin)
		require.NoError(t, err)
		assert.Nil(t, w)
	}
	_, err := e.svc.GetUser(ctx, u.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, e.svc.DeleteUser(ctx, u.ID), apperr.ErrNotFound)

	assert.Equal(t, models.OrderPending, e.order(t, order.ID).Status)
}

func TestListUsersPages(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.register(t, "a@x.io", "")
	b := e.register(t, "b@x.io", "")
	c := e.register(t, "c@x.io", "")

	page, err := e.svc.ListUsers(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, e.admin.ID, page[0].ID)
	assert.Equal(t, a.ID, page[1].ID)

	page, err = e.svc.ListUsers(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, b.ID, page[0].ID)
	assert.Equal(t, c.ID, page[1].ID)

	page, err = e.svc.ListUsers(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, page, 4)

	page, err = e.svc.ListUsers(ctx, 10, 9)
	require.NoError(t, err)
	assert.Empty(t, page)

	_, err = e.svc.ListUsers(ctx, 10, -1)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	again, err := e.svc.EnsureAdmin(ctx, "ADMIN@x.io", "whatever1")
	require.NoError(t, err)
	assert.Equal(t, e.admin.ID, again.ID)
	assert.True(t, again.IsAdmin)

	none, err := e.svc.EnsureAdmin(ctx, "", "")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestGenerateWallet(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "user@x.io", "")

	w, err := e.svc.GenerateWallet(ctx, u.ID, models.CoinBTC)
	require.NoError(t, err)
	assert.Equal(t, e.address(t, u, models.CoinBTC), w.Address)

	ok, err := e.svc.ValidateAddress(models.CoinBTC, w.Address)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = e.svc.GenerateWallet(ctx, 999, models.CoinBTC)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = e.svc.GenerateWallet(ctx, u.ID, models.Coin("DOGE"))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
