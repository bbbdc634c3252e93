package eth

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/utils"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Native moves ether between custodial key wallets.
type Native struct {
	client   Client
	explorer *Explorer
}

func NewNative(client Client, explorer *Explorer) *Native {
	return &Native{client: client, explorer: explorer}
}

func (n *Native) Coin() models.Coin {
	return models.CoinETH
}

func (n *Native) ValidAddress(address string) bool {
	return ValidAddress(address)
}

func (n *Native) NewWallet(_ context.Context, _ string) (*models.Wallet, error) {
	return NewKeyWallet()
}

func (n *Native) Balance(ctx context.Context, w *models.Wallet) (decimal.Decimal, error) {
	wei, err := n.client.BalanceAt(ctx, common.HexToAddress(w.Address), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return utils.FromBaseUnits(wei, weiDecimals), nil
}

func (n *Native) estimate(ctx context.Context, w *models.Wallet, to string, wei *big.Int) (uint64, *big.Int, error) {
	gasPrice, err := n.client.SuggestGasPrice(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	toAddr := common.HexToAddress(to)
	gas, err := n.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  common.HexToAddress(w.Address),
		To:    &toAddr,
		Value: wei,
	})
	if err != nil {
		return 0, nil, fmt.Errorf("failed to estimate gas: %w", err)
	}
	return gas, gasPrice, nil
}

func (n *Native) EstimateFee(ctx context.Context, w *models.Wallet, to string, amount decimal.Decimal) (decimal.Decimal, error) {
	gas, gasPrice, err := n.estimate(ctx, w, to, utils.ToBaseUnits(amount, weiDecimals))
	if err != nil {
		return decimal.Zero, err
	}
	return feeOf(gas, gasPrice), nil
}

// Transfer broadcasts a plain value transfer. The node has no idempotency
// support, so the key is only used by the caller's journal.
func (n *Native) Transfer(ctx context.Context, w *models.Wallet, to string, amount decimal.Decimal, _ string) (string, error) {
	wei := utils.ToBaseUnits(amount, weiDecimals)
	if wei.Sign() <= 0 {
		return "", fmt.Errorf("amount %s is below one wei", amount)
	}

	key, err := loadKey(w)
	if err != nil {
		return "", err
	}

	gas, gasPrice, err := n.estimate(ctx, w, to, wei)
	if err != nil {
		return "", err
	}

	return signAndSend(ctx, n.client, key, txParams{
		to:       common.HexToAddress(to),
		value:    wei,
		gas:      gas,
		gasPrice: gasPrice,
	})
}

func (n *Native) History(ctx context.Context, w *models.Wallet) ([]models.Transaction, error) {
	if n.explorer == nil {
		return nil, nil
	}
	txs, err := n.explorer.TxList(ctx, w.Address)
	if err != nil {
		return nil, err
	}
	return toTransactions(txs, w.Address, weiDecimals), nil
}

func feeOf(gas uint64, gasPrice *big.Int) decimal.Decimal {
	fee := new(big.Int).Mul(new(big.Int).SetUint64(gas), gasPrice)
	return utils.FromBaseUnits(fee, weiDecimals)
}
