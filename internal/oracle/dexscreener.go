// Package oracle looks up live market data for token addresses.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/net/http2"
)

// DefaultBaseURL is the DexScreener token endpoint
const DefaultBaseURL = "https://api.dexscreener.com/latest/dex/tokens"

var (
	// ErrNotFound means the oracle does not know the address
	ErrNotFound = errors.New("oracle: token not found")
	// ErrNoPairs means the address has no tradable market
	ErrNoPairs = errors.New("oracle: no trading pairs")
	// ErrTransient wraps timeouts, network failures and bad responses
	ErrTransient = errors.New("oracle: transient failure")
)

// IsNoData reports whether err is a "no data" answer rather than a failure
func IsNoData(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoPairs)
}

// Quote is a market snapshot for one token
type Quote struct {
	Price     float64
	MarketCap float64
	Liquidity float64
	Volume24h float64
	Name      string
	Symbol    string
	ChainID   string
	PairURL   string
}

type pair struct {
	ChainID   string  `json:"chainId"`
	URL       string  `json:"url"`
	PriceUSD  string  `json:"priceUsd"`
	FDV       float64 `json:"fdv"`
	MarketCap float64 `json:"marketCap"`
	BaseToken struct {
		Name   string `json:"name"`
		Symbol string `json:"symbol"`
	} `json:"baseToken"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
}

type tokensResponse struct {
	Pairs []pair `json:"pairs"`
}

// Client queries DexScreener behind a circuit breaker
type Client struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewClient creates a DexScreener client. Each lookup is bounded by timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  newHTTPClient(timeout),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "dexscreener",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsNoData(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("oracle circuit breaker state changed")
		},
	})
	return c
}

// newHTTPClient keeps a small set of HTTP/2 connections open to the quote
// endpoint across sweeps.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		log.Warn().Err(err).Msg("oracle: http2 unavailable, using http/1.1")
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// Lookup returns the current quote for address. Errors are ErrNotFound,
// ErrNoPairs or wrap ErrTransient.
func (c *Client) Lookup(ctx context.Context, address string) (*Quote, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, address)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return nil, err
	}
	return res.(*Quote), nil
}

// Ping checks that the endpoint answers at all
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) fetch(ctx context.Context, address string) (*Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+address, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransient, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrTransient, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var data tokensResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrTransient, err)
	}
	if len(data.Pairs) == 0 {
		return nil, ErrNoPairs
	}

	return toQuote(bestPair(data.Pairs)), nil
}

// bestPair picks the deepest market. Ties keep the first listed pair.
func bestPair(pairs []pair) pair {
	best := pairs[0]
	for _, p := range pairs[1:] {
		if p.Liquidity.USD > best.Liquidity.USD {
			best = p
		}
	}
	return best
}

func toQuote(p pair) *Quote {
	price, _ := strconv.ParseFloat(p.PriceUSD, 64)
	mc := p.MarketCap
	if mc == 0 {
		mc = p.FDV
	}
	return &Quote{
		Price:     price,
		MarketCap: mc,
		Liquidity: p.Liquidity.USD,
		Volume24h: p.Volume.H24,
		Name:      p.BaseToken.Name,
		Symbol:    p.BaseToken.Symbol,
		ChainID:   p.ChainID,
		PairURL:   p.URL,
	}
}
