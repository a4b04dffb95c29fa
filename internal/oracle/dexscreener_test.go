package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const testAddr = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

func TestLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/"+testAddr) {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"pairs":[{"chainId":"solana","priceUsd":"0.00042","fdv":420000,"marketCap":400000,
			"baseToken":{"name":"Moon Cat","symbol":"MCAT"},"liquidity":{"usd":55000},"volume":{"h24":120000}}]}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, 2*time.Second)
	q, err := c.Lookup(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if q.Price != 0.00042 || q.MarketCap != 400000 || q.Liquidity != 55000 || q.Volume24h != 120000 {
		t.Errorf("unexpected quote %+v", q)
	}
	if q.Name != "Moon Cat" || q.ChainID != "solana" {
		t.Errorf("unexpected token info %+v", q)
	}
}

func TestLookupPicksDeepestPair(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pairs":[
			{"chainId":"solana","url":"https://dexscreener.com/solana/thin","priceUsd":"0.0009","marketCap":900000,"liquidity":{"usd":1200}},
			{"chainId":"solana","url":"https://dexscreener.com/solana/deep","priceUsd":"0.00042","marketCap":400000,"liquidity":{"usd":85000}},
			{"chainId":"solana","url":"https://dexscreener.com/solana/mid","priceUsd":"0.0004","marketCap":380000,"liquidity":{"usd":30000}}]}`))
	}))
	defer server.Close()

	q, err := NewClient(server.URL, time.Second).Lookup(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if q.PairURL != "https://dexscreener.com/solana/deep" || q.MarketCap != 400000 || q.Liquidity != 85000 {
		t.Errorf("expected the deepest pair, got %+v", q)
	}
}

func TestLookupFDVFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pairs":[{"priceUsd":"1.5","fdv":900000}]}`))
	}))
	defer server.Close()

	q, err := NewClient(server.URL, time.Second).Lookup(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if q.MarketCap != 900000 {
		t.Errorf("expected fdv fallback, got %v", q.MarketCap)
	}
}

func TestLookupErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"not found", http.StatusNotFound, ``, ErrNotFound},
		{"no pairs", http.StatusOK, `{"pairs":null}`, ErrNoPairs},
		{"empty pairs", http.StatusOK, `{"pairs":[]}`, ErrNoPairs},
		{"server error", http.StatusBadGateway, `upstream down`, ErrTransient},
		{"malformed", http.StatusOK, `{not json`, ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL, time.Second).Lookup(context.Background(), testAddr)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLookupTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, 50*time.Millisecond).Lookup(context.Background(), testAddr)
	if !errors.Is(err, ErrTransient) {
		t.Errorf("expected transient error on timeout, got %v", err)
	}
}

func TestBreakerIgnoresNoData(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient(server.URL, time.Second)
	for i := 0; i < 10; i++ {
		if _, err := c.Lookup(context.Background(), testAddr); !errors.Is(err, ErrNotFound) {
			t.Fatalf("call %d: expected not found, got %v", i, err)
		}
	}
	if calls != 10 {
		t.Errorf("breaker should stay closed on not-found answers, server saw %d calls", calls)
	}
}
