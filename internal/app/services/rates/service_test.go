package rates

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestService_SatsToUSD(t *testing.T) {
	svc := NewService(FetcherFunc(func(context.Context) (float64, error) {
		return 50_000, nil
	}), nil)

	usd, err := svc.SatsToUSD(context.Background(), 100_000_000)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if usd != 50_000 {
		t.Fatalf("1 BTC should convert at spot price, got %f", usd)
	}

	usd, err = svc.SatsToUSD(context.Background(), 21_000)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if want := 21_000.0 / 100_000_000 * 50_000; usd != want {
		t.Fatalf("expected %f, got %f", want, usd)
	}
}

func TestService_CachesWithinTTL(t *testing.T) {
	var calls int32
	svc := NewService(FetcherFunc(func(context.Context) (float64, error) {
		atomic.AddInt32(&calls, 1)
		return 40_000, nil
	}), nil).WithTTL(time.Hour)

	for i := 0; i < 5; i++ {
		if _, err := svc.SpotPrice(context.Background()); err != nil {
			t.Fatalf("spot price: %v", err)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected a single upstream fetch, got %d", n)
	}
}

func TestService_ServesStaleOnRefreshFailure(t *testing.T) {
	var calls int32
	svc := NewService(FetcherFunc(func(context.Context) (float64, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return 40_000, nil
		}
		return 0, errors.New("upstream down")
	}), nil).WithTTL(time.Nanosecond)

	if _, err := svc.SpotPrice(context.Background()); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	time.Sleep(time.Millisecond)

	price, err := svc.SpotPrice(context.Background())
	if err != nil {
		t.Fatalf("stale fallback should not error: %v", err)
	}
	if price != 40_000 {
		t.Fatalf("expected stale price 40000, got %f", price)
	}
}

func TestService_ErrorWithoutAnyPrice(t *testing.T) {
	svc := NewService(FetcherFunc(func(context.Context) (float64, error) {
		return 0, errors.New("upstream down")
	}), nil)

	if _, err := svc.SpotPrice(context.Background()); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}
}

func TestHTTPFetcher_ParsesPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bitcoin":{"usd":63750.12}}`)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(nil).WithEndpoint(srv.URL, "bitcoin.usd")
	price, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if price != 63750.12 {
		t.Fatalf("expected 63750.12, got %f", price)
	}
}

func TestHTTPFetcher_RejectsMissingPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bitcoin":{}}`)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(nil).WithEndpoint(srv.URL, "bitcoin.usd")
	if _, err := f.Fetch(context.Background()); err == nil {
		t.Fatalf("expected error for missing price field")
	}
}

func TestRefresher_WarmsCache(t *testing.T) {
	var calls int32
	svc := NewService(FetcherFunc(func(context.Context) (float64, error) {
		atomic.AddInt32(&calls, 1)
		return 40_000, nil
	}), nil)

	r := NewRefresher(svc, nil)
	r.interval = 5 * time.Millisecond
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start refresher: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&calls) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if atomic.LoadInt32(&calls) == 0 {
		t.Fatalf("refresher never fetched")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("stop refresher: %v", err)
	}
}
