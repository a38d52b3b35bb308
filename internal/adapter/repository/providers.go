package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"bitcoin-rates-service/internal/domain/model"
)

const (
	DefaultCoinGeckoURL = "https://api.coingecko.com"
	DefaultCoinDeskURL  = "https://api.coindesk.com"
)

// Provider is one upstream source of BTC prices.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, currencies []model.Currency) (map[model.Currency]float64, error)
}

type CoinGecko struct {
	baseURL    string
	httpClient *http.Client
}

type coinGeckoResponse struct {
	Bitcoin map[string]float64 `json:"bitcoin"`
}

func NewCoinGecko(baseURL string, client *http.Client) *CoinGecko {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	return &CoinGecko{baseURL: strings.TrimRight(baseURL, "/"), httpClient: client}
}

func (c *CoinGecko) Name() string { return "coingecko" }

func (c *CoinGecko) Fetch(ctx context.Context, currencies []model.Currency) (map[model.Currency]float64, error) {
	codes := make([]string, 0, len(currencies))
	for _, cur := range currencies {
		codes = append(codes, strings.ToLower(cur.String()))
	}
	url := fmt.Sprintf("%s/api/v3/simple/price?ids=bitcoin&vs_currencies=%s", c.baseURL, strings.Join(codes, ","))

	var apiResp coinGeckoResponse
	if err := getJSON(ctx, c.httpClient, url, &apiResp); err != nil {
		return nil, err
	}
	if len(apiResp.Bitcoin) == 0 {
		return nil, backoff.Permanent(fmt.Errorf("coingecko returned no bitcoin prices"))
	}

	rates := make(map[model.Currency]float64, len(apiResp.Bitcoin))
	for code, price := range apiResp.Bitcoin {
		rates[model.ParseCurrency(code)] = price
	}
	return rates, nil
}

type CoinDesk struct {
	baseURL    string
	httpClient *http.Client
}

type coinDeskResponse struct {
	BPI map[string]struct {
		Code      string  `json:"code"`
		RateFloat float64 `json:"rate_float"`
	} `json:"bpi"`
}

func NewCoinDesk(baseURL string, client *http.Client) *CoinDesk {
	if baseURL == "" {
		baseURL = DefaultCoinDeskURL
	}
	return &CoinDesk{baseURL: strings.TrimRight(baseURL, "/"), httpClient: client}
}

func (c *CoinDesk) Name() string { return "coindesk" }

// Fetch ignores currencies; CoinDesk only publishes a fixed set.
func (c *CoinDesk) Fetch(ctx context.Context, _ []model.Currency) (map[model.Currency]float64, error) {
	var apiResp coinDeskResponse
	if err := getJSON(ctx, c.httpClient, c.baseURL+"/v1/bpi/currentprice.json", &apiResp); err != nil {
		return nil, err
	}
	if len(apiResp.BPI) == 0 {
		return nil, backoff.Permanent(fmt.Errorf("coindesk returned no bitcoin prices"))
	}

	rates := make(map[model.Currency]float64, len(apiResp.BPI))
	for code, entry := range apiResp.BPI {
		rates[model.ParseCurrency(code)] = entry.RateFloat
	}
	return rates, nil
}

// getJSON issues a GET and decodes the body into out. Errors that a retry
// cannot fix are marked permanent.
func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("API returned non-OK status: %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}
