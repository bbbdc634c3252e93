package swap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Fi44er/coin_exchange/internal/apperr"
	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/shopspring/decimal"
)

// Client talks to a SimpleSwap-compatible exchange API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Symbol is the exchange's ticker for a coin. USDT trades as the ERC-20 token.
func Symbol(coin models.Coin) string {
	if coin == models.CoinUSDT {
		return "usdterc20"
	}
	return strings.ToLower(string(coin))
}

// Range is the accepted input amount. A missing Max means no upper bound.
type Range struct {
	Min decimal.Decimal     `json:"min"`
	Max decimal.NullDecimal `json:"max"`
}

// Contains reports whether amount is inside the range.
func (r Range) Contains(amount decimal.Decimal) bool {
	if amount.LessThan(r.Min) {
		return false
	}
	return !r.Max.Valid || !amount.GreaterThan(r.Max.Decimal)
}

type ExchangeRequest struct {
	From      models.Coin
	To        models.Coin
	Amount    decimal.Decimal
	AddressTo string
}

type Exchange struct {
	ID             string          `json:"id"`
	AddressFrom    string          `json:"address_from"`
	AddressTo      string          `json:"address_to"`
	AmountTo       decimal.Decimal `json:"amount_to"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	Status         string          `json:"status"`
}

type createExchangeBody struct {
	Fixed        bool            `json:"fixed"`
	CurrencyFrom string          `json:"currency_from"`
	CurrencyTo   string          `json:"currency_to"`
	Amount       decimal.Decimal `json:"amount"`
	AddressTo    string          `json:"address_to"`
}

func (c *Client) Ranges(ctx context.Context, from, to models.Coin) (*Range, error) {
	q := url.Values{
		"fixed":         {"true"},
		"currency_from": {Symbol(from)},
		"currency_to":   {Symbol(to)},
	}
	var r Range
	if err := c.do(ctx, http.MethodGet, "/v1/get_ranges", q, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) CreateExchange(ctx context.Context, req ExchangeRequest) (*Exchange, error) {
	body := createExchangeBody{
		Fixed:        true,
		CurrencyFrom: Symbol(req.From),
		CurrencyTo:   Symbol(req.To),
		Amount:       req.Amount,
		AddressTo:    req.AddressTo,
	}

	var ex Exchange
	if err := c.do(ctx, http.MethodPost, "/v1/create_exchange", url.Values{}, body, &ex); err != nil {
		return nil, err
	}
	if ex.ID == "" || ex.AddressFrom == "" {
		return nil, apperr.New(apperr.KindProvider, "swap service returned an incomplete exchange")
	}
	return &ex, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out interface{}) error {
	q.Set("api_key", c.apiKey)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "swap request could not be built", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+q.Encode(), reader)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "swap request could not be built", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.FromUpstream("swap service unavailable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.FromUpstream("swap service unavailable", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Description string `json:"description"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		cause := fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Description)
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
			msg := "swap rejected"
			if apiErr.Description != "" {
				msg = "swap rejected: " + apiErr.Description
			}
			return apperr.Wrap(apperr.KindValidation, msg, cause)
		}
		return apperr.Wrap(apperr.KindProvider, "swap service error", cause)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Wrap(apperr.KindProvider, "swap service returned an unreadable response", err)
	}
	return nil
}
