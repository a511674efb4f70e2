package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	pkgerrors "github.com/hubp2p/exchange-service/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	defaultFiatBaseURL   = "https://economia.awesomeapi.com.br"
	defaultCryptoBaseURL = "https://api.coingecko.com"

	fiatRatePath   = "/json/last/USD-BRL"
	cryptoRatePath = "/api/v3/simple/price?ids=bitcoin&vs_currencies=usd"

	maxRetryElapsed = 10 * time.Second
)

// Client fetches market rates from the external providers. Both fetches have
// a bounded timeout and a capped retry window so a transaction-creating
// request can never hang on a slow upstream.
type Client struct {
	fiatBaseURL   string
	cryptoBaseURL string
	httpClient    *http.Client
}

func NewClient(fiatBaseURL, cryptoBaseURL string, timeout time.Duration) *Client {
	if fiatBaseURL == "" {
		fiatBaseURL = defaultFiatBaseURL
	}
	if cryptoBaseURL == "" {
		cryptoBaseURL = defaultCryptoBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		fiatBaseURL:   fiatBaseURL,
		cryptoBaseURL: cryptoBaseURL,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

// BaseRate returns the current market BRL-per-USD rate.
func (c *Client) BaseRate(ctx context.Context) (decimal.Decimal, error) {
	body, err := c.fetch(ctx, c.fiatBaseURL+fiatRatePath)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", pkgerrors.ErrRateUnavailable, err)
	}

	var payload struct {
		USDBRL struct {
			Bid string `json:"bid"`
		} `json:"USDBRL"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid rate payload: %v", pkgerrors.ErrRateUnavailable, err)
	}
	rate, err := decimal.NewFromString(payload.USDBRL.Bid)
	if err != nil || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: invalid bid %q", pkgerrors.ErrRateUnavailable, payload.USDBRL.Bid)
	}
	return rate, nil
}

// BTCUSDRate returns the current BTC price in USD.
func (c *Client) BTCUSDRate(ctx context.Context) (decimal.Decimal, error) {
	body, err := c.fetch(ctx, c.cryptoBaseURL+cryptoRatePath)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", pkgerrors.ErrRateUnavailable, err)
	}

	var payload struct {
		Bitcoin struct {
			USD json.Number `json:"usd"`
		} `json:"bitcoin"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid btc payload: %v", pkgerrors.ErrRateUnavailable, err)
	}
	rate, err := decimal.NewFromString(payload.Bitcoin.USD.String())
	if err != nil || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: invalid btc price %q", pkgerrors.ErrRateUnavailable, payload.Bitcoin.USD)
	}
	return rate, nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, backoff.Permanent(fmt.Errorf("rate provider returned status %d", resp.StatusCode))
			}
			return nil, fmt.Errorf("rate provider returned status %d", resp.StatusCode)
		}
		return body, nil
	}

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxRetryElapsed),
	)
	if err != nil {
		slog.Error("rate fetch failed", "url", url, "error", err)
		return nil, err
	}
	return body, nil
}
