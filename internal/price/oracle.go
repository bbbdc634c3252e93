package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Fi44er/coin_exchange/internal/apperr"
	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/utils"
	"github.com/shopspring/decimal"
)

const historyPoints = 7

// serviceError is a non-2xx answer from the quotes API.
type serviceError struct {
	StatusCode int
	Message    string
}

func (e *serviceError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

type quote struct {
	Price decimal.Decimal `json:"price"`
}

type status struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type latestResponse struct {
	Status status `json:"status"`
	Data   map[string]struct {
		Quote map[string]quote `json:"quote"`
	} `json:"data"`
}

type historicalResponse struct {
	Status status `json:"status"`
	Data   map[string][]struct {
		Quotes []struct {
			Timestamp time.Time        `json:"timestamp"`
			Quote     map[string]quote `json:"quote"`
		} `json:"quotes"`
	} `json:"data"`
}

// History is the 7-day daily price series shown on the coin screen.
type History struct {
	Labels         []string          `json:"labels"`
	Prices         []decimal.Decimal `json:"prices"`
	PriceNow       decimal.Decimal   `json:"priceNow"`
	CurrencyDiff   decimal.Decimal   `json:"currencyDiff"`
	PercentageDiff string            `json:"percentageDiff"`
}

type cachedPrice struct {
	value   decimal.Decimal
	expires time.Time
}

type cachedHistory struct {
	value   History
	expires time.Time
}

// Oracle fetches fiat quotes from a CoinMarketCap-compatible API and caches
// them per (coin, fiat) pair.
type Oracle struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	ttl        time.Duration
	httpClient *http.Client
	logger     *utils.Logger
	now        func() time.Time

	mu      sync.Mutex
	current map[string]cachedPrice
	history map[string]cachedHistory
}

func NewOracle(baseURL, apiKey string, timeout, ttl time.Duration, logger *utils.Logger) *Oracle {
	return &Oracle{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		timeout:    timeout,
		ttl:        ttl,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		now:        time.Now,
		current:    make(map[string]cachedPrice),
		history:    make(map[string]cachedHistory),
	}
}

// NormalizeFiat upper-cases a currency code, defaulting to USD.
func NormalizeFiat(fiat string) (string, error) {
	fiat = strings.ToUpper(strings.TrimSpace(fiat))
	if fiat == "" {
		return "USD", nil
	}
	if len(fiat) != 3 {
		return "", apperr.Newf(apperr.KindValidation, "unsupported currency %q", fiat)
	}
	for _, r := range fiat {
		if r < 'A' || r > 'Z' {
			return "", apperr.Newf(apperr.KindValidation, "unsupported currency %q", fiat)
		}
	}
	return fiat, nil
}

func cacheKey(coin models.Coin, fiat string) string {
	return string(coin) + "/" + fiat
}

// Current returns the latest price of one coin in fiat.
func (o *Oracle) Current(ctx context.Context, coin models.Coin, fiat string) (decimal.Decimal, error) {
	fiat, err := NormalizeFiat(fiat)
	if err != nil {
		return decimal.Zero, err
	}
	key := cacheKey(coin, fiat)

	o.mu.Lock()
	if c, ok := o.current[key]; ok && o.now().Before(c.expires) {
		o.mu.Unlock()
		return c.value, nil
	}
	o.mu.Unlock()

	var resp latestResponse
	q := url.Values{"symbol": {string(coin)}, "convert": {fiat}}
	if err := o.get(ctx, "/v1/cryptocurrency/quotes/latest", q, &resp); err != nil {
		return decimal.Zero, err
	}

	entry, ok := resp.Data[string(coin)]
	if !ok {
		return decimal.Zero, apperr.Newf(apperr.KindProvider, "no %s quote", coin)
	}
	qt, ok := entry.Quote[fiat]
	if !ok || !qt.Price.IsPositive() {
		return decimal.Zero, apperr.Newf(apperr.KindProvider, "no %s price in %s", coin, fiat)
	}

	o.mu.Lock()
	o.current[key] = cachedPrice{value: qt.Price, expires: o.now().Add(o.ttl)}
	o.mu.Unlock()

	return qt.Price, nil
}

// History returns the last seven daily prices together with the change
// between the latest close and the current price.
func (o *Oracle) History(ctx context.Context, coin models.Coin, fiat string) (History, error) {
	fiat, err := NormalizeFiat(fiat)
	if err != nil {
		return History{}, err
	}
	key := cacheKey(coin, fiat)

	o.mu.Lock()
	if c, ok := o.history[key]; ok && o.now().Before(c.expires) {
		o.mu.Unlock()
		return c.value, nil
	}
	o.mu.Unlock()

	var resp historicalResponse
	q := url.Values{
		"symbol":   {string(coin)},
		"convert":  {fiat},
		"count":    {fmt.Sprint(historyPoints)},
		"interval": {"1d"},
	}
	if err := o.get(ctx, "/v3/cryptocurrency/quotes/historical", q, &resp); err != nil {
		return History{}, err
	}

	series := resp.Data[string(coin)]
	if len(series) == 0 {
		return History{}, apperr.Newf(apperr.KindProvider, "no %s history", coin)
	}

	h := History{Labels: []string{}, Prices: []decimal.Decimal{}}
	for _, point := range series[0].Quotes {
		qt, ok := point.Quote[fiat]
		if !ok {
			continue
		}
		h.Labels = append(h.Labels, point.Timestamp.UTC().Weekday().String())
		h.Prices = append(h.Prices, utils.RoundTo(qt.Price, 2))
	}

	now, err := o.Current(ctx, coin, fiat)
	if err != nil {
		return History{}, err
	}

	last := decimal.Zero
	if len(h.Prices) > 0 {
		last = h.Prices[len(h.Prices)-1]
	}
	h.PriceNow = utils.RoundTo(now, 2)
	h.CurrencyDiff = h.PriceNow.Sub(last)
	h.PercentageDiff = PercentageDiff(h.CurrencyDiff, last)

	o.mu.Lock()
	o.history[key] = cachedHistory{value: h, expires: o.now().Add(o.ttl)}
	o.mu.Unlock()

	return h, nil
}

// PercentageDiff formats diff relative to base as a signed percentage with two
// decimals. A zero base yields "+0.00%".
func PercentageDiff(diff, base decimal.Decimal) string {
	if base.IsZero() {
		return "+0.00%"
	}
	pct := diff.Div(base).Mul(decimal.NewFromInt(100))
	sign := ""
	if !pct.IsNegative() {
		sign = "+"
	}
	return sign + pct.StringFixedBank(2) + "%"
}

func (o *Oracle) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "price request could not be built", err)
	}
	req.Header.Set("X-CMC_PRO_API_KEY", o.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		o.logger.Errorf("Price request %s failed: %v", path, err)
		return apperr.FromUpstream("price unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Status status `json:"status"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		err := &serviceError{StatusCode: resp.StatusCode, Message: body.Status.ErrorMessage}
		o.logger.Errorf("Price request %s failed: %v", path, err)
		return apperr.Wrap(apperr.KindProvider, "price unavailable", err)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.FromUpstream("price unavailable", fmt.Errorf("failed to parse quotes response: %w", err))
	}
	return nil
}
