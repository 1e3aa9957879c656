package market

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/onchainos/steward/config"
	"github.com/onchainos/steward/internal/agent/core"
)

// Quote is one USD price observation for a token symbol.
type Quote struct {
	Symbol    string    `json:"symbol"`
	PriceUSD  float64   `json:"price_usd"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// Source yields token prices. Implementations must be safe for concurrent use.
type Source interface {
	Price(ctx context.Context, symbol string) (Quote, error)
	Prices(ctx context.Context, symbols []string) (map[string]Quote, error)
}

// defaultPrices seeds the static table used for quotes when no price API is
// configured. Values are deliberately round dev fixtures, not live data.
var defaultPrices = map[string]float64{
	"ETH":   2000,
	"WETH":  2000,
	"STETH": 2000,
	"BTC":   45000,
	"WBTC":  45000,
	"USDC":  1,
	"USDT":  1,
	"DAI":   1,
	"MATIC": 0.85,
	"LINK":  15.5,
	"UNI":   6.2,
	"AAVE":  95,
	"ARB":   1.2,
	"OP":    2.3,
}

// StaticSource serves prices from an in-memory table.
type StaticSource struct {
	mu     sync.RWMutex
	prices map[string]float64
}

// NewStaticSource copies the default table so callers can override entries
// without affecting other instances.
func NewStaticSource() *StaticSource {
	prices := make(map[string]float64, len(defaultPrices))
	for k, v := range defaultPrices {
		prices[k] = v
	}
	return &StaticSource{prices: prices}
}

// SetPrice overrides or adds a table entry.
func (s *StaticSource) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[normalizeSymbol(symbol)] = price
}

func (s *StaticSource) Price(ctx context.Context, symbol string) (Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := normalizeSymbol(symbol)
	price, ok := s.prices[key]
	if !ok {
		return Quote{}, fmt.Errorf("no price for token %s", key)
	}
	return Quote{Symbol: key, PriceUSD: price, Source: "static", Timestamp: time.Now()}, nil
}

func (s *StaticSource) Prices(ctx context.Context, symbols []string) (map[string]Quote, error) {
	out := make(map[string]Quote, len(symbols))
	for _, symbol := range symbols {
		q, err := s.Price(ctx, symbol)
		if err != nil {
			return nil, err
		}
		out[q.Symbol] = q
	}
	return out, nil
}

// HTTPSource queries an external price API. It performs no internal fallback;
// callers decide how to degrade when it errors.
type HTTPSource struct {
	cfg  config.MarketConfig
	http *core.HTTPClient
}

func NewHTTPSource(cfg config.MarketConfig) *HTTPSource {
	return &HTTPSource{
		cfg:  cfg,
		http: core.NewHTTPClient(cfg.Timeout, cfg.MaxRetries, 0),
	}
}

func (h *HTTPSource) Price(ctx context.Context, symbol string) (Quote, error) {
	quotes, err := h.Prices(ctx, []string{symbol})
	if err != nil {
		return Quote{}, err
	}
	q, ok := quotes[normalizeSymbol(symbol)]
	if !ok {
		return Quote{}, fmt.Errorf("no price for token %s", normalizeSymbol(symbol))
	}
	return q, nil
}

func (h *HTTPSource) Prices(ctx context.Context, symbols []string) (map[string]Quote, error) {
	if len(symbols) == 0 {
		return map[string]Quote{}, nil
	}
	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		normalized = append(normalized, normalizeSymbol(s))
	}

	var resp struct {
		Prices map[string]float64 `json:"prices"`
	}
	headers := map[string]string{}
	if h.cfg.PriceAPIKey != "" {
		headers["X-Api-Key"] = h.cfg.PriceAPIKey
	}
	endpoint := fmt.Sprintf("%s?symbols=%s", h.cfg.PriceAPIURL, url.QueryEscape(strings.Join(normalized, ",")))
	if err := h.http.GetJSON(ctx, endpoint, headers, &resp); err != nil {
		return nil, fmt.Errorf("price api: %w", err)
	}

	now := time.Now()
	out := make(map[string]Quote, len(normalized))
	for _, symbol := range normalized {
		price, ok := resp.Prices[symbol]
		if !ok {
			return nil, fmt.Errorf("price api returned no price for %s", symbol)
		}
		out[symbol] = Quote{Symbol: symbol, PriceUSD: price, Source: "api", Timestamp: now}
	}
	return out, nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
