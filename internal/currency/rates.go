// Package currency converts amounts between currencies using a public
// exchange-rate API.
package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"findash/internal/cache"
	"findash/internal/log"
)

const (
	DefaultBaseURL  = "https://open.er-api.com/v6/latest"
	DefaultCacheTTL = time.Hour
	defaultTimeout  = 10 * time.Second
	maxCachedTables = 64
)

var (
	ErrRateNotFound = errors.New("currency: rate not found")
	ErrRatesFetch   = errors.New("currency: fetching rates failed")
)

// Rates maps a target currency to the multiplier from the base currency.
type Rates map[string]float64

type ratesResponse struct {
	Result   string  `json:"result"`
	BaseCode string  `json:"base_code"`
	Rates    Rates   `json:"rates"`
	Error    *string `json:"error-type,omitempty"`
}

// Config configures a RatesClient. Zero values pick the defaults.
type Config struct {
	BaseURL string
	// CacheTTL bounds how long a base currency's rate table is reused.
	CacheTTL time.Duration
	// RequestsPerSecond throttles outbound calls; zero disables throttling.
	RequestsPerSecond float64
	Timeout           time.Duration
	HTTPClient        *http.Client
}

// RatesClient fetches rate tables per base currency. Tables are cached and
// concurrent requests for the same base share one HTTP call.
type RatesClient struct {
	baseURL string
	http    *http.Client
	tables  cache.Cache[Rates]
	group   singleflight.Group
	limiter *rate.Limiter
	logger  *log.Logger
}

func NewRatesClient(cfg Config, logger *log.Logger) *RatesClient {
	if logger == nil {
		logger = log.Discard()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &RatesClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    client,
		tables:  cache.NewLRUCache[Rates](maxCachedTables, cfg.CacheTTL),
		limiter: limiter,
		logger:  logger.WithComponent(log.ComponentCurrency),
	}
}

// Cache exposes the rate-table cache so it can be registered for cleanup.
func (c *RatesClient) Cache() cache.Cache[Rates] {
	return c.tables
}

// Convert returns amount expressed in currency to. Equal currencies return
// the amount unchanged without any network call.
func (c *RatesClient) Convert(ctx context.Context, amount int64, from, to string) (float64, error) {
	from, to = normalize(from), normalize(to)
	if from == to {
		return float64(amount), nil
	}
	rates, err := c.Rates(ctx, from)
	if err != nil {
		return 0, err
	}
	r, ok := rates[to]
	if !ok || r == 0 {
		return 0, fmt.Errorf("%w: %s to %s", ErrRateNotFound, from, to)
	}
	return float64(amount) * r, nil
}

// Rates returns the rate table for base, from cache when fresh.
func (c *RatesClient) Rates(ctx context.Context, base string) (Rates, error) {
	base = normalize(base)
	if rates, ok := c.tables.Get(base); ok {
		return rates, nil
	}

	v, err, shared := c.group.Do(base, func() (any, error) {
		if rates, ok := c.tables.Get(base); ok {
			return rates, nil
		}
		rates, err := c.fetch(ctx, base)
		if err != nil {
			return nil, err
		}
		c.tables.Set(base, rates)
		return rates, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.DebugContext(ctx, "Shared in-flight rate fetch", log.FieldCurrencyFrom, base)
	}
	return v.(Rates), nil
}

func (c *RatesClient) fetch(ctx context.Context, base string) (Rates, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRatesFetch, err)
	}

	endpoint := c.baseURL + "/" + url.PathEscape(base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRatesFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRatesFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d for %s", ErrRatesFetch, resp.StatusCode, base)
	}

	var body ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrRatesFetch, err)
	}
	if body.Result != "" && body.Result != "success" {
		reason := body.Result
		if body.Error != nil {
			reason = *body.Error
		}
		return nil, fmt.Errorf("%w: %s", ErrRatesFetch, reason)
	}
	if len(body.Rates) == 0 {
		return nil, fmt.Errorf("%w: empty rate table for %s", ErrRateNotFound, base)
	}

	c.logger.DebugContext(ctx, "Fetched exchange rates",
		log.FieldCurrencyFrom, base,
		log.FieldCount, len(body.Rates),
		log.FieldDuration, time.Since(start).Milliseconds(),
	)
	return body.Rates, nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
