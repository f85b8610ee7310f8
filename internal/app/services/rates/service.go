// Package rates converts satoshi amounts to fiat using a cached spot price.
package rates

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lnwatch/dashboard/pkg/logger"
)

// ErrPriceUnavailable is returned when no spot price has been fetched yet and
// the fetch on demand also fails.
var ErrPriceUnavailable = errors.New("spot price unavailable")

const satsPerBTC = 100_000_000

// Fetcher retrieves the current BTC/USD spot price.
type Fetcher interface {
	Fetch(ctx context.Context) (float64, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context) (float64, error)

func (f FetcherFunc) Fetch(ctx context.Context) (float64, error) {
	if f == nil {
		return 0, ErrPriceUnavailable
	}
	return f(ctx)
}

// HTTPFetcher pulls the spot price from a JSON price API.
type HTTPFetcher struct {
	client *http.Client
	url    string
	path   string
	log    *logger.Logger
}

// NewHTTPFetcher creates a fetcher against the CoinGecko simple price API.
func NewHTTPFetcher(log *logger.Logger) *HTTPFetcher {
	if log == nil {
		log = logger.NewDefault("rates-fetcher")
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin&vs_currencies=usd",
		path:   "bitcoin.usd",
		log:    log,
	}
}

// WithEndpoint overrides the price API URL and the gjson path to the price
// inside its response.
func (f *HTTPFetcher) WithEndpoint(url, path string) *HTTPFetcher {
	f.url = url
	f.path = path
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch spot price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price api returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, err
	}
	price := gjson.GetBytes(body, f.path)
	if !price.Exists() || price.Float() <= 0 {
		return 0, fmt.Errorf("price api response missing %q", f.path)
	}
	return price.Float(), nil
}

// Service caches the spot price and converts satoshi amounts to USD.
type Service struct {
	fetcher Fetcher
	ttl     time.Duration
	log     *logger.Logger

	mu        sync.Mutex
	price     float64
	fetchedAt time.Time
}

// NewService creates a rates service with a 5 minute cache.
func NewService(fetcher Fetcher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("rates")
	}
	return &Service{fetcher: fetcher, ttl: 5 * time.Minute, log: log}
}

// WithTTL overrides the cache lifetime.
func (s *Service) WithTTL(ttl time.Duration) *Service {
	s.ttl = ttl
	return s
}

// SpotPrice returns the cached BTC/USD price, refreshing it when stale. A
// failed refresh falls back to the stale value when one exists.
func (s *Service) SpotPrice(ctx context.Context) (float64, error) {
	s.mu.Lock()
	cached := s.price
	fresh := cached > 0 && time.Since(s.fetchedAt) < s.ttl
	s.mu.Unlock()

	if fresh {
		return cached, nil
	}

	price, err := s.fetcher.Fetch(ctx)
	if err != nil {
		if cached > 0 {
			s.log.WithError(err).Warn("spot price refresh failed, serving stale value")
			return cached, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}

	s.mu.Lock()
	s.price = price
	s.fetchedAt = time.Now()
	s.mu.Unlock()
	return price, nil
}

// SatsToUSD converts a satoshi amount to US dollars at the current spot price.
func (s *Service) SatsToUSD(ctx context.Context, sats int64) (float64, error) {
	price, err := s.SpotPrice(ctx)
	if err != nil {
		return 0, err
	}
	return float64(sats) / satsPerBTC * price, nil
}
