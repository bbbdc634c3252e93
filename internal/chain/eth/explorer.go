package eth

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/utils"
)

// Explorer reads account history from an Etherscan-compatible API.
type Explorer struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewExplorer(baseURL, apiKey string, timeout time.Duration) *Explorer {
	return &Explorer{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type ExplorerTx struct {
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	TimeStamp       string `json:"timeStamp"`
	GasUsed         string `json:"gasUsed"`
	GasPrice        string `json:"gasPrice"`
	IsError         string `json:"isError"`
	ContractAddress string `json:"contractAddress"`
}

type explorerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (e *Explorer) TxList(ctx context.Context, address string) ([]ExplorerTx, error) {
	return e.fetch(ctx, url.Values{
		"action":  {"txlist"},
		"address": {address},
	})
}

func (e *Explorer) TokenTx(ctx context.Context, address, contract string) ([]ExplorerTx, error) {
	return e.fetch(ctx, url.Values{
		"action":          {"tokentx"},
		"address":         {address},
		"contractaddress": {contract},
	})
}

func (e *Explorer) fetch(ctx context.Context, q url.Values) ([]ExplorerTx, error) {
	q.Set("module", "account")
	q.Set("sort", "desc")
	if e.apiKey != "" {
		q.Set("apikey", e.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build explorer request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explorer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer returned status %d", resp.StatusCode)
	}

	var body explorerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode explorer response: %w", err)
	}

	if body.Status != "1" {
		if strings.HasPrefix(body.Message, "No transactions found") {
			return nil, nil
		}
		var reason string
		_ = json.Unmarshal(body.Result, &reason)
		return nil, fmt.Errorf("explorer error: %s %s", body.Message, reason)
	}

	var txs []ExplorerTx
	if err := json.Unmarshal(body.Result, &txs); err != nil {
		return nil, fmt.Errorf("failed to decode explorer transactions: %w", err)
	}
	return txs, nil
}

// toTransactions maps explorer rows to wallet history from the point of view
// of address. Failed and unrelated rows are dropped.
func toTransactions(txs []ExplorerTx, address string, decimals int32) []models.Transaction {
	out := make([]models.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.IsError == "1" {
			continue
		}

		var (
			dir  models.TxDirection
			peer string
		)
		switch {
		case strings.EqualFold(tx.From, address):
			dir, peer = models.TxSend, tx.To
		case strings.EqualFold(tx.To, address):
			dir, peer = models.TxReceive, tx.From
		default:
			continue
		}

		value, ok := new(big.Int).SetString(tx.Value, 10)
		if !ok {
			continue
		}

		var ts time.Time
		if sec, err := strconv.ParseInt(tx.TimeStamp, 10, 64); err == nil {
			ts = time.Unix(sec, 0).UTC()
		}

		fee := new(big.Int)
		gasUsed, ok1 := new(big.Int).SetString(tx.GasUsed, 10)
		gasPrice, ok2 := new(big.Int).SetString(tx.GasPrice, 10)
		if ok1 && ok2 {
			fee.Mul(gasUsed, gasPrice)
		}

		out = append(out, models.Transaction{
			Type:      dir,
			Address:   peer,
			Amount:    utils.FromBaseUnits(value, decimals),
			Fee:       utils.FromBaseUnits(fee, weiDecimals),
			Timestamp: ts,
			Hash:      tx.Hash,
		})
	}
	return out
}
