// Package sandbox is an in-memory stand-in for the BTC wallet service and the
// Ethereum node. It backs local development (CHAIN_MODE=sandbox) and tests.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Fi44er/coin_exchange/internal/chain/btc"
	"github.com/Fi44er/coin_exchange/internal/chain/eth"
	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FaucetAddress is the counterparty recorded for Fund deposits.
const FaucetAddress = "sandbox-faucet"

var ErrInsufficientFunds = errors.New("sandbox: insufficient funds")

var fees = map[models.Coin]decimal.Decimal{
	models.CoinBTC:  decimal.RequireFromString("0.00001"),
	models.CoinETH:  decimal.RequireFromString("0.000021"),
	models.CoinUSDT: decimal.RequireFromString("0.00005"),
}

type account struct {
	balance decimal.Decimal
	history []models.Transaction
}

// Ledger holds balances for every coin. Transfers move funds instantly and
// charge no fee so balances stay exact.
type Ledger struct {
	mu       sync.Mutex
	params   *chaincfg.Params
	accounts map[string]*account
	sent     map[string]string
	count    map[models.Coin]int
	failNext map[models.Coin]error
	now      func() time.Time
}

func NewLedger(params *chaincfg.Params) *Ledger {
	if params == nil {
		params = &chaincfg.RegressionNetParams
	}
	return &Ledger{
		params:   params,
		accounts: make(map[string]*account),
		sent:     make(map[string]string),
		count:    make(map[models.Coin]int),
		failNext: make(map[models.Coin]error),
		now:      time.Now,
	}
}

func accountKey(coin models.Coin, address string) string {
	return string(coin) + "|" + address
}

func (l *Ledger) account(coin models.Coin, address string) *account {
	k := accountKey(coin, address)
	a, ok := l.accounts[k]
	if !ok {
		a = &account{}
		l.accounts[k] = a
	}
	return a
}

// Fund credits address as if it received coins from the faucet and returns
// the fake transaction hash.
func (l *Ledger) Fund(coin models.Coin, address string, amount decimal.Decimal) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	hash := "sandbox-" + uuid.NewString()
	a := l.account(coin, address)
	a.balance = a.balance.Add(amount)
	a.history = append(a.history, models.Transaction{
		Type:      models.TxReceive,
		Address:   FaucetAddress,
		Amount:    amount,
		Timestamp: l.now(),
		Hash:      hash,
	})
	return hash
}

func (l *Ledger) BalanceOf(coin models.Coin, address string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.account(coin, address).balance
}

// Transfers counts the transfers that actually moved funds for coin.
func (l *Ledger) Transfers(coin models.Coin) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count[coin]
}

// FailNext makes the next transfer of coin return err without moving funds.
func (l *Ledger) FailNext(coin models.Coin, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext[coin] = err
}

// SetClock replaces the timestamp source for recorded transactions.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

func (l *Ledger) Chain(coin models.Coin) *Chain {
	return &Chain{ledger: l, coin: coin}
}

func (l *Ledger) transfer(coin models.Coin, from, to string, amount decimal.Decimal, key string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err, ok := l.failNext[coin]; ok {
		delete(l.failNext, coin)
		return "", err
	}

	sentKey := string(coin) + "|" + key
	if ref, ok := l.sent[sentKey]; ok {
		return ref, nil
	}

	src := l.account(coin, from)
	if src.balance.LessThan(amount) {
		return "", ErrInsufficientFunds
	}
	dst := l.account(coin, to)

	ref := "sandbox-" + uuid.NewString()
	now := l.now()
	src.balance = src.balance.Sub(amount)
	dst.balance = dst.balance.Add(amount)
	src.history = append(src.history, models.Transaction{
		Type: models.TxSend, Address: to, Amount: amount, Fee: fees[coin], Timestamp: now, Hash: ref,
	})
	dst.history = append(dst.history, models.Transaction{
		Type: models.TxReceive, Address: from, Amount: amount, Timestamp: now, Hash: ref,
	})

	l.sent[sentKey] = ref
	l.count[coin]++
	return ref, nil
}

// Chain is the per-coin view of a Ledger.
type Chain struct {
	ledger *Ledger
	coin   models.Coin
}

func (c *Chain) Coin() models.Coin {
	return c.coin
}

func (c *Chain) ValidAddress(address string) bool {
	if c.coin == models.CoinBTC {
		return btc.ValidAddress(address, c.ledger.params)
	}
	return eth.ValidAddress(address)
}

func (c *Chain) NewWallet(_ context.Context, _ string) (*models.Wallet, error) {
	if c.coin != models.CoinBTC {
		return eth.NewKeyWallet()
	}

	xprv, _, err := btc.NewUserKeychain(c.ledger.params)
	if err != nil {
		return nil, err
	}
	addr, err := btc.ReceiveAddress(xprv, c.ledger.params)
	if err != nil {
		return nil, err
	}
	return &models.Wallet{Address: addr, ExternalID: addr, Credentials: xprv}, nil
}

func (c *Chain) Balance(_ context.Context, w *models.Wallet) (decimal.Decimal, error) {
	return c.ledger.BalanceOf(c.coin, w.Address), nil
}

func (c *Chain) EstimateFee(_ context.Context, _ *models.Wallet, _ string, _ decimal.Decimal) (decimal.Decimal, error) {
	return fees[c.coin], nil
}

func (c *Chain) Transfer(ctx context.Context, w *models.Wallet, to string, amount decimal.Decimal, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !amount.IsPositive() {
		return "", fmt.Errorf("sandbox: amount %s must be positive", amount)
	}
	return c.ledger.transfer(c.coin, w.Address, to, amount, key)
}

func (c *Chain) History(_ context.Context, w *models.Wallet) ([]models.Transaction, error) {
	c.ledger.mu.Lock()
	defer c.ledger.mu.Unlock()

	a := c.ledger.account(c.coin, w.Address)
	out := make([]models.Transaction, len(a.history))
	copy(out, a.history)
	return out, nil
}
