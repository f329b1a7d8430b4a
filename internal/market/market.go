// Package market is the opaque market-data collaborator behind the Tool
// Bridge's getMarketData tool. Indicator math (RSI/MACD/EMA/ATR) is
// explicitly out of core scope per the specification; this package fetches
// the raw ticker/kline data and hands off to an optional, injectable
// Indicators hook so the core never computes indicator values itself.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"futures-trading-agent/internal/api"
	"futures-trading-agent/internal/logger"
	"futures-trading-agent/internal/types"
)

// Indicators is the opaque collaborator that turns raw klines into
// technical indicator values. The core module never implements this; a
// nil Indicators leaves the indicator section of the summary blank.
type Indicators interface {
	Summarize(ctx context.Context, symbol types.Symbol, closes []float64) string
}

// Provider is the contract the getMarketData tool delegates to.
type Provider interface {
	FetchSummary(ctx context.Context, symbol types.Symbol) (string, error)
}

const binanceFuturesBase = "https://fapi.binance.com"

// BinanceProvider fetches ticker and recent klines from Binance's public
// USDT-M futures REST API and renders a compact text summary for the LLM
// prompt, grounded on the teacher's generic internal/api.Client usage.
type BinanceProvider struct {
	client     *api.Client
	indicators Indicators
}

var _ Provider = (*BinanceProvider)(nil)

// New builds a BinanceProvider. indicators may be nil.
func New(indicators Indicators) *BinanceProvider {
	return &BinanceProvider{
		client:     api.NewClient(api.WithBaseURL(binanceFuturesBase), api.WithTimeout(10*time.Second)),
		indicators: indicators,
	}
}

type ticker24h struct {
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
}

func venueSymbol(s types.Symbol) string {
	sym := string(s.Normalize())
	out := make([]byte, 0, len(sym))
	for i := 0; i < len(sym); i++ {
		if sym[i] == '/' {
			continue
		}
		if sym[i] == ':' {
			break
		}
		out = append(out, sym[i])
	}
	return string(out)
}

// FetchSummary returns a formatted multi-line string covering price, 24h
// change/range/volume, and (if an Indicators collaborator is configured) a
// trailing indicator section.
func (p *BinanceProvider) FetchSummary(ctx context.Context, symbol types.Symbol) (string, error) {
	venue := venueSymbol(symbol)

	resp, err := p.client.GET(ctx, fmt.Sprintf("/fapi/v1/ticker/24hr?symbol=%s", venue))
	if err != nil {
		return "", fmt.Errorf("fetch 24h ticker for %s: %w", symbol, err)
	}
	var t ticker24h
	if err := resp.ParseJSON(&t); err != nil {
		return "", fmt.Errorf("parse ticker for %s: %w", symbol, err)
	}

	summary := fmt.Sprintf(
		"%s last=%s change_24h=%s%% high_24h=%s low_24h=%s volume_24h=%s",
		symbol, t.LastPrice, t.PriceChangePercent, t.HighPrice, t.LowPrice, t.Volume,
	)

	if p.indicators != nil {
		closes, err := p.fetchCloses(ctx, venue)
		if err != nil {
			logger.Warn(ctx, "Failed to fetch klines for indicators, skipping indicator section", "symbol", symbol, "error", err)
			return summary, nil
		}
		if ind := p.indicators.Summarize(ctx, symbol, closes); ind != "" {
			summary += "\nindicators: " + ind
		}
	}

	return summary, nil
}

func (p *BinanceProvider) fetchCloses(ctx context.Context, venueSym string) ([]float64, error) {
	resp, err := p.client.GET(ctx, fmt.Sprintf("/fapi/v1/klines?symbol=%s&interval=1h&limit=100", venueSym))
	if err != nil {
		return nil, err
	}
	var rows [][]any
	if err := json.Unmarshal(resp.Body, &rows); err != nil {
		return nil, err
	}
	closes := make([]float64, 0, len(rows))
	for _, r := range rows {
		if len(r) < 5 {
			continue
		}
		s, ok := r[4].(string)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			continue
		}
		closes = append(closes, f)
	}
	return closes, nil
}
