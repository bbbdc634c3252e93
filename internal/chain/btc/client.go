package btc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client talks to a BitGo-compatible wallet service (usually a self-hosted
// BitGo Express instance).
type Client struct {
	baseURL    string
	token      string
	coin       string
	httpClient *http.Client
}

func NewClient(baseURL, token, coin string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		coin:       coin,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// serviceError is a non-2xx answer from the wallet service.
type serviceError struct {
	StatusCode int
	Message    string
}

func (e *serviceError) Error() string {
	return fmt.Sprintf("wallet service status %d: %s", e.StatusCode, e.Message)
}

type generateWalletRequest struct {
	Label      string `json:"label"`
	UserKey    string `json:"userKey"`
	Enterprise string `json:"enterprise,omitempty"`
}

type walletInfo struct {
	ID                     string `json:"id"`
	BalanceString          string `json:"balanceString"`
	SpendableBalanceString string `json:"spendableBalanceString"`
	ReceiveAddress         struct {
		Address string `json:"address"`
	} `json:"receiveAddress"`
}

type generateWalletResponse struct {
	Wallet walletInfo `json:"wallet"`
}

type recipient struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type buildRequest struct {
	Recipients []recipient `json:"recipients"`
}

type buildResponse struct {
	FeeInfo struct {
		Fee int64 `json:"fee"`
	} `json:"feeInfo"`
}

type sendCoinsRequest struct {
	Address    string `json:"address"`
	Amount     string `json:"amount"`
	SequenceID string `json:"sequenceId"`
	Prv        string `json:"prv"`
}

type sendCoinsResponse struct {
	TxID   string `json:"txid"`
	Status string `json:"status"`
}

type transferEntry struct {
	Address     string `json:"address"`
	ValueString string `json:"valueString"`
	Wallet      string `json:"wallet"`
}

type transfer struct {
	TxID        string          `json:"txid"`
	Type        string          `json:"type"`
	ValueString string          `json:"valueString"`
	FeeString   string          `json:"feeString"`
	Date        time.Time       `json:"date"`
	Entries     []transferEntry `json:"entries"`
}

type transfersResponse struct {
	Transfers []transfer `json:"transfers"`
}

func (c *Client) GenerateWallet(ctx context.Context, label, userXpub, enterprise string) (*walletInfo, error) {
	var resp generateWalletResponse
	err := c.do(ctx, http.MethodPost, "/wallet/generate", generateWalletRequest{
		Label:      label,
		UserKey:    userXpub,
		Enterprise: enterprise,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Wallet.ID == "" || resp.Wallet.ReceiveAddress.Address == "" {
		return nil, fmt.Errorf("wallet service returned an incomplete wallet")
	}
	return &resp.Wallet, nil
}

func (c *Client) Wallet(ctx context.Context, walletID string) (*walletInfo, error) {
	var resp walletInfo
	if err := c.do(ctx, http.MethodGet, "/wallet/"+url.PathEscape(walletID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) BuildFee(ctx context.Context, walletID, address string, sats int64) (int64, error) {
	var resp buildResponse
	err := c.do(ctx, http.MethodPost, "/wallet/"+url.PathEscape(walletID)+"/tx/build", buildRequest{
		Recipients: []recipient{{Address: address, Amount: fmt.Sprint(sats)}},
	}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.FeeInfo.Fee, nil
}

// SendCoins submits a transfer. sequenceID makes the call idempotent on the
// wallet service side.
func (c *Client) SendCoins(ctx context.Context, walletID, prv, address string, sats int64, sequenceID string) (string, error) {
	var resp sendCoinsResponse
	err := c.do(ctx, http.MethodPost, "/wallet/"+url.PathEscape(walletID)+"/sendcoins", sendCoinsRequest{
		Address:    address,
		Amount:     fmt.Sprint(sats),
		SequenceID: sequenceID,
		Prv:        prv,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.TxID == "" {
		return "", fmt.Errorf("wallet service returned no txid")
	}
	return resp.TxID, nil
}

func (c *Client) Transfers(ctx context.Context, walletID string) ([]transfer, error) {
	var resp transfersResponse
	if err := c.do(ctx, http.MethodGet, "/wallet/"+url.PathEscape(walletID)+"/transfer?limit=50", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Transfers, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := fmt.Sprintf("%s/api/v2/%s%s", c.baseURL, c.coin, path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to wallet service failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read wallet service response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := string(raw)
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &serviceError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse wallet service response: %w", err)
	}
	return nil
}
