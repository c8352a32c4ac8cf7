package currency

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

func ratesServer(t *testing.T, hits *atomic.Int32, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const usdRates = `{"result":"success","base_code":"USD","rates":{"USD":1,"EUR":0.5,"GBP":0.25}}`

func TestConvertSameCurrencySkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := ratesServer(t, &hits, usdRates, http.StatusOK)
	c := NewRatesClient(Config{BaseURL: srv.URL}, nil)

	got, err := c.Convert(context.Background(), 1234, "usd", "USD")
	if err != nil || got != 1234 {
		t.Fatalf("got %v, %v", got, err)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no HTTP call, got %d", hits.Load())
	}
}

func TestConvertUsesRateAndCache(t *testing.T) {
	var hits atomic.Int32
	srv := ratesServer(t, &hits, usdRates, http.StatusOK)
	c := NewRatesClient(Config{BaseURL: srv.URL}, nil)

	got, err := c.Convert(context.Background(), 1000, "USD", "EUR")
	if err != nil || got != 500 {
		t.Fatalf("got %v, %v", got, err)
	}
	if got, _ := c.Convert(context.Background(), 1000, "USD", "GBP"); got != 250 {
		t.Fatalf("got %v", got)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected cached table, got %d calls", hits.Load())
	}
}

func TestConvertMissingRate(t *testing.T) {
	var hits atomic.Int32
	srv := ratesServer(t, &hits, usdRates, http.StatusOK)
	c := NewRatesClient(Config{BaseURL: srv.URL}, nil)

	if _, err := c.Convert(context.Background(), 1000, "USD", "JPY"); !errors.Is(err, ErrRateNotFound) {
		t.Fatalf("expected ErrRateNotFound, got %v", err)
	}
}

func TestConvertServerError(t *testing.T) {
	var hits atomic.Int32
	srv := ratesServer(t, &hits, `oops`, http.StatusBadGateway)
	c := NewRatesClient(Config{BaseURL: srv.URL}, nil)

	if _, err := c.Convert(context.Background(), 1000, "USD", "EUR"); !errors.Is(err, ErrRatesFetch) {
		t.Fatalf("expected ErrRatesFetch, got %v", err)
	}
	// Failures are not cached.
	_, _ = c.Convert(context.Background(), 1000, "USD", "EUR")
	if hits.Load() != 2 {
		t.Fatalf("expected a retry after failure, got %d calls", hits.Load())
	}
}

func TestConvertUnsupportedBase(t *testing.T) {
	var hits atomic.Int32
	srv := ratesServer(t, &hits, `{"result":"error","error-type":"unsupported-code"}`, http.StatusOK)
	c := NewRatesClient(Config{BaseURL: srv.URL}, nil)

	_, err := c.Convert(context.Background(), 1, "XXX", "EUR")
	if !errors.Is(err, ErrRatesFetch) {
		t.Fatalf("expected ErrRatesFetch, got %v", err)
	}
}

func TestConcurrentConvertsShareFetch(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte(usdRates))
	}))
	defer srv.Close()
	c := NewRatesClient(Config{BaseURL: srv.URL}, nil)

	var wg sync.WaitGroup
	results := make([]float64, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = c.Convert(context.Background(), 100, "USD", "EUR")
		}()
	}
	for hits.Load() == 0 {
		runtime.Gosched()
	}
	close(release)
	wg.Wait()

	for i, r := range results {
		if r != 50 {
			t.Fatalf("result %d = %v", i, r)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected fetches to be collapsed, got %d", n)
	}
}
