package btc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"
)

var satsPerBTC = decimal.NewFromInt(btcutil.SatoshiPerBitcoin)

// Chain is the BTC backend. Wallets live in the wallet service; the user
// keychain is generated here and its private half is kept as the wallet
// credentials.
type Chain struct {
	client     *Client
	params     *chaincfg.Params
	enterprise string
}

func NewChain(client *Client, params *chaincfg.Params, enterprise string) *Chain {
	return &Chain{client: client, params: params, enterprise: enterprise}
}

// NetParams maps a config network name to chain parameters.
func NetParams(network string) (*chaincfg.Params, error) {
	switch strings.ToLower(network) {
	case "", "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	}
	return nil, fmt.Errorf("unknown bitcoin network %q", network)
}

// WalletCoin is the wallet service coin ticker for the network.
func WalletCoin(params *chaincfg.Params) string {
	if params.Net == chaincfg.MainNetParams.Net {
		return "btc"
	}
	return "tbtc"
}

func (c *Chain) Coin() models.Coin {
	return models.CoinBTC
}

// ValidAddress accepts any standard address encoding for the configured network.
func ValidAddress(address string, params *chaincfg.Params) bool {
	if address == "" {
		return false
	}
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return false
	}
	return addr.IsForNet(params)
}

func (c *Chain) ValidAddress(address string) bool {
	return ValidAddress(address, c.params)
}

func (c *Chain) NewWallet(ctx context.Context, label string) (*models.Wallet, error) {
	xprv, xpub, err := NewUserKeychain(c.params)
	if err != nil {
		return nil, err
	}

	info, err := c.client.GenerateWallet(ctx, label, xpub, c.enterprise)
	if err != nil {
		return nil, err
	}

	if !c.ValidAddress(info.ReceiveAddress.Address) {
		return nil, fmt.Errorf("wallet service returned address %q not valid for %s", info.ReceiveAddress.Address, c.params.Name)
	}

	return &models.Wallet{
		Address:     info.ReceiveAddress.Address,
		ExternalID:  info.ID,
		Credentials: xprv,
	}, nil
}

func (c *Chain) Balance(ctx context.Context, w *models.Wallet) (decimal.Decimal, error) {
	info, err := c.client.Wallet(ctx, w.ExternalID)
	if err != nil {
		return decimal.Zero, err
	}

	raw := info.SpendableBalanceString
	if raw == "" {
		raw = info.BalanceString
	}
	return satsString(raw)
}

func (c *Chain) EstimateFee(ctx context.Context, w *models.Wallet, to string, amount decimal.Decimal) (decimal.Decimal, error) {
	sats, err := toSats(amount)
	if err != nil {
		return decimal.Zero, err
	}

	fee, err := c.client.BuildFee(ctx, w.ExternalID, to, sats)
	if err != nil {
		return decimal.Zero, err
	}
	return fromSats(fee), nil
}

func (c *Chain) Transfer(ctx context.Context, w *models.Wallet, to string, amount decimal.Decimal, idempotencyKey string) (string, error) {
	sats, err := toSats(amount)
	if err != nil {
		return "", err
	}
	return c.client.SendCoins(ctx, w.ExternalID, w.Credentials, to, sats, idempotencyKey)
}

func (c *Chain) History(ctx context.Context, w *models.Wallet) ([]models.Transaction, error) {
	transfers, err := c.client.Transfers(ctx, w.ExternalID)
	if err != nil {
		return nil, err
	}

	txs := make([]models.Transaction, 0, len(transfers))
	for _, t := range transfers {
		var dir models.TxDirection
		switch t.Type {
		case "send":
			dir = models.TxSend
		case "receive":
			dir = models.TxReceive
		default:
			continue
		}

		value, err := satsString(t.ValueString)
		if err != nil {
			continue
		}
		fee, _ := satsString(t.FeeString)

		txs = append(txs, models.Transaction{
			Type:      dir,
			Address:   counterparty(t, w.ExternalID, dir),
			Amount:    value.Abs(),
			Fee:       fee,
			Timestamp: t.Date,
			Hash:      t.TxID,
		})
	}
	return txs, nil
}

// counterparty picks the first entry outside our wallet on the opposite side
// of the transfer.
func counterparty(t transfer, walletID string, dir models.TxDirection) string {
	for _, e := range t.Entries {
		if e.Wallet == walletID {
			continue
		}
		v, err := decimal.NewFromString(e.ValueString)
		if err != nil {
			continue
		}
		if dir == models.TxSend && v.IsPositive() {
			return e.Address
		}
		if dir == models.TxReceive && v.IsNegative() {
			return e.Address
		}
	}
	return ""
}

func toSats(amount decimal.Decimal) (int64, error) {
	sats := amount.Mul(satsPerBTC)
	if !sats.Equal(sats.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more precision than one satoshi", amount)
	}
	n := sats.IntPart()
	if n <= 0 || btcutil.Amount(n) > btcutil.MaxSatoshi {
		return 0, fmt.Errorf("amount %s out of range", amount)
	}
	return n, nil
}

func fromSats(sats int64) decimal.Decimal {
	return decimal.NewFromInt(sats).Div(satsPerBTC)
}

func satsString(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, errors.New("empty amount")
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v.Div(satsPerBTC), nil
}
