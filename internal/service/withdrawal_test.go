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

func TestSendChargesFeeToTreasury(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	fee := decimal.NewFromInt(1)
	_, err := e.svc.Settings().Update(ctx, SettingsPatch{USDTFee: &fee})
	require.NoError(t, err)

	sender := e.register(t, "sender@x.io", "")
	recipient := e.register(t, "recipient@x.io", "")
	require.NoError(t, e.svc.SetPin(ctx, sender.ID, "1111"))
	e.fund(t, sender, models.CoinUSDT, 10)
	to := e.address(t, recipient, models.CoinUSDT)

	_, err = e.svc.Send(ctx, sender.ID, SendInput{Coin: models.CoinUSDT, To: to, Amount: decimal.RequireFromString("9.5"), PIN: "1111"})
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	assert.Equal(t, 0, e.ledger.Transfers(models.CoinUSDT))

	in := SendInput{Coin: models.CoinUSDT, To: to, Amount: decimal.NewFromInt(5), PIN: "1111", IdempotencyKey: "client-1"}
	res, err := e.svc.Send(ctx, sender.ID, in)
	require.NoError(t, err)
	assert.NotEmpty(t, res.TxRef)
	assert.NotEmpty(t, res.FeeTxRef)
	assert.True(t, res.Fee.Equal(fee))

	assert.True(t, e.balance(t, sender, models.CoinUSDT).Equal(decimal.NewFromInt(4)))
	assert.True(t, e.balance(t, recipient, models.CoinUSDT).Equal(decimal.NewFromInt(5)))
	assert.True(t, e.balance(t, e.admin, models.CoinUSDT).Equal(decimal.NewFromInt(1)))

	again, err := e.svc.Send(ctx, sender.ID, in)
	require.NoError(t, err)
	assert.Equal(t, res.TxRef, again.TxRef)
	assert.Equal(t, res.FeeTxRef, again.FeeTxRef)
	assert.Equal(t, 2, e.ledger.Transfers(models.CoinUSDT))
}

func TestSendRetryReplaysJournaledLegs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	fee := decimal.NewFromInt(1)
	_, err := e.svc.Settings().Update(ctx, SettingsPatch{USDTFee: &fee})
	require.NoError(t, err)

	sender := e.register(t, "sender@x.io", "")
	recipient := e.register(t, "recipient@x.io", "")
	require.NoError(t, e.svc.SetPin(ctx, sender.ID, "1111"))
	e.fund(t, sender, models.CoinUSDT, 6)

	in := SendInput{
		Coin:           models.CoinUSDT,
		To:             e.address(t, recipient, models.CoinUSDT),
		Amount:         decimal.NewFromInt(5),
		PIN:            "1111",
		IdempotencyKey: "drain",
	}
	first, err := e.svc.Send(ctx, sender.ID, in)
	require.NoError(t, err)
	assert.True(t, e.balance(t, sender, models.CoinUSDT).IsZero())

	raised := decimal.NewFromInt(2)
	_, err = e.svc.Settings().Update(ctx, SettingsPatch{USDTFee: &raised})
	require.NoError(t, err)

	again, err := e.svc.Send(ctx, sender.ID, in)
	require.NoError(t, err)
	assert.Equal(t, first.TxRef, again.TxRef)
	assert.Equal(t, first.FeeTxRef, again.FeeTxRef)
	assert.True(t, again.Fee.Equal(fee))
	assert.Equal(t, 2, e.ledger.Transfers(models.CoinUSDT))

	in.PIN = "0000"
	_, err = e.svc.Send(ctx, sender.ID, in)
	assert.ErrorIs(t, err, apperr.ErrInvalidPin)
	assert.Equal(t, 2, e.ledger.Transfers(models.CoinUSDT))
}

func TestSendByAdminIsFeeFree(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	fee := decimal.NewFromInt(1)
	_, err := e.svc.Settings().Update(ctx, SettingsPatch{USDTFee: &fee})
	require.NoError(t, err)
	e.fund(t, e.admin, models.CoinUSDT, 3)
	recipient := e.register(t, "recipient@x.io", "")

	res, err := e.svc.Send(ctx, e.admin.ID, SendInput{
		Coin: models.CoinUSDT, To: e.address(t, recipient, models.CoinUSDT), Amount: decimal.NewFromInt(3), PIN: adminPin,
	})
	require.NoError(t, err)
	assert.True(t, res.Fee.IsZero())
	assert.Empty(t, res.FeeTxRef)
	assert.Equal(t, 1, e.ledger.Transfers(models.CoinUSDT))
}

func TestSendValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "user@x.io", "")

	_, err := e.svc.Send(ctx, u.ID, SendInput{Coin: models.CoinETH, To: "0x123", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.svc.Send(ctx, u.ID, SendInput{Coin: models.CoinETH, To: e.address(t, e.admin, models.CoinETH), Amount: decimal.Zero})
	assert.ErrorIs(t, err, apperr.ErrInvalidAmount)

	_, err = e.svc.Send(ctx, u.ID, SendInput{Coin: models.CoinETH, To: e.address(t, e.admin, models.CoinETH), Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, apperr.ErrAuth)
}

func TestEstimateFeeIncludesServiceFee(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	fee := decimal.RequireFromString("0.0001")
	_, err := e.svc.Settings().Update(ctx, SettingsPatch{BTCFee: &fee})
	require.NoError(t, err)
	u := e.register(t, "user@x.io", "")

	est, err := e.svc.EstimateFee(ctx, u.ID, models.CoinBTC, e.address(t, e.admin, models.CoinBTC), decimal.RequireFromString("0.01"))
	require.NoError(t, err)
	assert.True(t, est.NetworkFee.IsPositive())
	assert.True(t, est.ServiceFee.Equal(fee))

	adminEst, err := e.svc.EstimateFee(ctx, e.admin.ID, models.CoinBTC, e.address(t, u, models.CoinBTC), decimal.RequireFromString("0.01"))
	require.NoError(t, err)
	assert.True(t, adminEst.ServiceFee.IsZero())
}
