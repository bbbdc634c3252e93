package eth

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const weiDecimals = 18

// Client is the subset of *ethclient.Client the backends use.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ethereum node: %w", err)
	}
	return client, nil
}

// ValidAddress requires the 0x prefix; bare hex is rejected.
func ValidAddress(address string) bool {
	return strings.HasPrefix(address, "0x") && common.IsHexAddress(address)
}

// NewKeyWallet generates a secp256k1 key and returns an unsaved wallet holding
// the hex private key as credentials.
func NewKeyWallet() (*models.Wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &models.Wallet{
		Address:     crypto.PubkeyToAddress(key.PublicKey).Hex(),
		Credentials: hexutil.Encode(crypto.FromECDSA(key)),
	}, nil
}

func loadKey(w *models.Wallet) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(w.Credentials, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet key: %w", err)
	}
	return key, nil
}

type txParams struct {
	to       common.Address
	value    *big.Int
	data     []byte
	gas      uint64
	gasPrice *big.Int
}

// signAndSend signs a legacy transaction at the pending nonce and broadcasts it.
func signAndSend(ctx context.Context, client Client, key *ecdsa.PrivateKey, p txParams) (string, error) {
	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get chain id: %w", err)
	}

	value := p.value
	if value == nil {
		value = big.NewInt(0)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: p.gasPrice,
		Gas:      p.gas,
		To:       &p.to,
		Value:    value,
		Data:     p.data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("failed to broadcast transaction: %w", err)
	}
	return signed.Hash().Hex(), nil
}
