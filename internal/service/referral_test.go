package service

import (
	"context"
	"testing"

	"github.com/Fi44er/coin_exchange/internal/apperr"
	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferralPayoutLedger(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, e.admin, models.CoinUSDT, 105)

	referrer := e.register(t, "ref@x.io", "")
	buyer := e.register(t, "buyer@x.io", referrer.ReferralCode)
	_, err := e.svc.Approve(ctx, e.buyOrder(t, buyer, 100).ID, e.admin.ID, adminPin)
	require.NoError(t, err)

	all, err := e.svc.ListReferralPayouts(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, buyer.ID, all[0].ReferredUserID)
	assert.Equal(t, referrer.ID, all[0].ReferrerUserID)
	assert.Equal(t, models.PayoutPaid, all[0].Status)
	assert.True(t, all[0].Amount.Equal(decimal.NewFromInt(5)))
	assert.NotEmpty(t, all[0].TxRef)

	failed, err := e.svc.ListReferralPayouts(ctx, models.PayoutFailed)
	require.NoError(t, err)
	assert.Empty(t, failed)

	_, err = e.svc.ListReferralPayouts(ctx, "lost")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	mine, err := e.svc.MyReferralPayouts(ctx, referrer.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, all[0].TxRef, mine[0].TxRef)

	none, err := e.svc.MyReferralPayouts(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}
