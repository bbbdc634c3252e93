package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/utils"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var erc20 = mustParseABI(erc20ABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Token is an ERC-20 backend. Gas is paid in ether from the same key wallet.
type Token struct {
	coin     models.Coin
	client   Client
	explorer *Explorer
	contract common.Address
	decimals int32
}

func NewToken(coin models.Coin, client Client, explorer *Explorer, contract string, decimals int32) *Token {
	return &Token{
		coin:     coin,
		client:   client,
		explorer: explorer,
		contract: common.HexToAddress(contract),
		decimals: decimals,
	}
}

func (t *Token) Coin() models.Coin {
	return t.coin
}

func (t *Token) ValidAddress(address string) bool {
	return ValidAddress(address)
}

func (t *Token) NewWallet(_ context.Context, _ string) (*models.Wallet, error) {
	return NewKeyWallet()
}

func (t *Token) Balance(ctx context.Context, w *models.Wallet) (decimal.Decimal, error) {
	data, err := erc20.Pack("balanceOf", common.HexToAddress(w.Address))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to encode balanceOf: %w", err)
	}

	out, err := t.client.CallContract(ctx, ethereum.CallMsg{To: &t.contract, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to call balanceOf: %w", err)
	}

	res, err := erc20.Unpack("balanceOf", out)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode balanceOf: %w", err)
	}
	if len(res) == 0 {
		return decimal.Zero, errors.New("balanceOf returned no values")
	}
	units, ok := res[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("unexpected balanceOf result %T", res[0])
	}
	return utils.FromBaseUnits(units, t.decimals), nil
}

func (t *Token) transferData(to string, amount decimal.Decimal) ([]byte, error) {
	units := utils.ToBaseUnits(amount, t.decimals)
	if units.Sign() <= 0 {
		return nil, fmt.Errorf("amount %s is below one token unit", amount)
	}
	data, err := erc20.Pack("transfer", common.HexToAddress(to), units)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transfer: %w", err)
	}
	return data, nil
}

// estimate returns the gas limit with a 10% buffer over the node estimate.
func (t *Token) estimate(ctx context.Context, w *models.Wallet, data []byte) (uint64, *big.Int, error) {
	gasPrice, err := t.client.SuggestGasPrice(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	gas, err := t.client.EstimateGas(ctx, ethereum.CallMsg{
		From: common.HexToAddress(w.Address),
		To:   &t.contract,
		Data: data,
	})
	if err != nil {
		return 0, nil, fmt.Errorf("failed to estimate gas: %w", err)
	}
	return gas + gas/10, gasPrice, nil
}

// EstimateFee is denominated in ether.
func (t *Token) EstimateFee(ctx context.Context, w *models.Wallet, to string, amount decimal.Decimal) (decimal.Decimal, error) {
	data, err := t.transferData(to, amount)
	if err != nil {
		return decimal.Zero, err
	}
	gas, gasPrice, err := t.estimate(ctx, w, data)
	if err != nil {
		return decimal.Zero, err
	}
	return feeOf(gas, gasPrice), nil
}

func (t *Token) Transfer(ctx context.Context, w *models.Wallet, to string, amount decimal.Decimal, _ string) (string, error) {
	data, err := t.transferData(to, amount)
	if err != nil {
		return "", err
	}

	key, err := loadKey(w)
	if err != nil {
		return "", err
	}

	gas, gasPrice, err := t.estimate(ctx, w, data)
	if err != nil {
		return "", err
	}

	return signAndSend(ctx, t.client, key, txParams{
		to:       t.contract,
		data:     data,
		gas:      gas,
		gasPrice: gasPrice,
	})
}

func (t *Token) History(ctx context.Context, w *models.Wallet) ([]models.Transaction, error) {
	if t.explorer == nil {
		return nil, nil
	}
	txs, err := t.explorer.TokenTx(ctx, w.Address, t.contract.Hex())
	if err != nil {
		return nil, err
	}
	return toTransactions(txs, w.Address, t.decimals), nil
}
