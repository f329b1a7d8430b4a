// Package store loads the agent's risk configuration from the environment.
package store

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"futures-trading-agent/internal/types"
)

// TradingMode selects whether orders are routed to a simulated or live broker.
type TradingMode string

const (
	ModePaper TradingMode = "paper"
	ModeLive  TradingMode = "live"
)

// BrokerMode is an optional override of the broker backend, independent of
// TradingMode (e.g. forcing "mock" during --dev runs).
type BrokerMode string

const (
	BrokerMock  BrokerMode = "mock"
	BrokerPaper BrokerMode = "paper"
	BrokerLive  BrokerMode = "live"
)

// RiskConfig is the canonical, environment-sourced configuration for the
// trading agent's risk boundaries and scheduling cadence.
type RiskConfig struct {
	Mode                    TradingMode
	BrokerMode              BrokerMode
	MaxLeverage             int
	MaxCostPerTrade         float64
	SymbolWhitelist         map[types.Symbol]bool
	SlippageTolerance       float64
	DefaultStopLossPercent  float64
	DefaultTakeProfitPercent float64
	CooldownMs              int
	IntervalMs              int
	JitterMs                int
	Symbols                 []types.Symbol
}

const hardMaxLeverage = 20

// LoadRiskConfig builds a RiskConfig from environment variables, applying the
// defaults from the external-interfaces contract and clamping MaxLeverage to
// the hard cap.
func LoadRiskConfig() (*RiskConfig, error) {
	cfg := &RiskConfig{
		Mode:                     TradingMode(getenvDefault("TRADING_MODE", string(ModePaper))),
		BrokerMode:               BrokerMode(os.Getenv("BROKER_MODE")),
		MaxLeverage:              intFromEnv("MAX_LEVERAGE", 10),
		MaxCostPerTrade:          floatFromEnv("MAX_COST_PER_TRADE", 100),
		SlippageTolerance:        floatFromEnv("SLIPPAGE_TOLERANCE", 0.01),
		DefaultStopLossPercent:   floatFromEnv("DEFAULT_STOP_LOSS_PERCENT", 0.05),
		DefaultTakeProfitPercent: floatFromEnv("DEFAULT_TAKE_PROFIT_PERCENT", 0.10),
		CooldownMs:               intFromEnv("COOLDOWN_MS", 300000),
		IntervalMs:               intFromEnv("INTERVAL_MS", 300000),
		JitterMs:                 intFromEnv("JITTER_MS", 15000),
	}

	whitelist := csvFromEnv("SYMBOL_WHITELIST", []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"})
	cfg.SymbolWhitelist = make(map[types.Symbol]bool, len(whitelist))
	for _, s := range whitelist {
		cfg.SymbolWhitelist[types.Symbol(s).Normalize()] = true
	}

	symbols := csvFromEnv("SYMBOLS", []string{"BTC/USDT", "ETH/USDT"})
	cfg.Symbols = make([]types.Symbol, 0, len(symbols))
	for _, s := range symbols {
		cfg.Symbols = append(cfg.Symbols, types.Symbol(s).Normalize())
	}

	if cfg.MaxLeverage > hardMaxLeverage {
		cfg.MaxLeverage = hardMaxLeverage
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("risk config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the invariants §3 and §6 of the specification impose on a
// RiskConfig, the way store.Config.Validate did for the equities config.
func (c *RiskConfig) Validate() error {
	if c.Mode != ModePaper && c.Mode != ModeLive {
		return fmt.Errorf("invalid TRADING_MODE '%s': must be 'paper' or 'live'", c.Mode)
	}
	if c.MaxLeverage < 1 || c.MaxLeverage > hardMaxLeverage {
		return fmt.Errorf("MAX_LEVERAGE must be between 1 and %d, got %d", hardMaxLeverage, c.MaxLeverage)
	}
	if c.MaxCostPerTrade <= 0 {
		return fmt.Errorf("MAX_COST_PER_TRADE must be positive, got %.2f", c.MaxCostPerTrade)
	}
	if len(c.SymbolWhitelist) == 0 {
		return fmt.Errorf("SYMBOL_WHITELIST cannot be empty")
	}
	if c.CooldownMs < 0 || c.IntervalMs <= 0 || c.JitterMs < 0 {
		return fmt.Errorf("COOLDOWN_MS/INTERVAL_MS/JITTER_MS must be non-negative with INTERVAL_MS > 0")
	}
	return nil
}

// IsWhitelisted reports whether a (normalized) symbol is allowed to trade.
func (c *RiskConfig) IsWhitelisted(symbol types.Symbol) bool {
	return c.SymbolWhitelist[symbol.Normalize()]
}

// WhitelistSlice renders the whitelist in a stable order for prompt rendering.
func (c *RiskConfig) WhitelistSlice() []string {
	out := make([]string, 0, len(c.SymbolWhitelist))
	for s := range c.SymbolWhitelist {
		out = append(out, string(s))
	}
	sort.Strings(out)
	return out
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intFromEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func floatFromEnv(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func csvFromEnv(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
