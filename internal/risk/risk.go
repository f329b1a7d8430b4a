// Package risk implements the stateless pre-trade validator. It holds no
// state across calls, the way the teacher's risk_manager.go computed
// exposure per-call from static config rather than tracked balances.
package risk

import (
	"fmt"

	"futures-trading-agent/internal/interfaces"
	"futures-trading-agent/internal/store"
	"futures-trading-agent/internal/types"
)

// Guard is the stateless, config-driven order validator described in the
// distilled specification's Risk Guard module.
type Guard struct {
	cfg *store.RiskConfig
}

var _ interfaces.RiskGuard = (*Guard)(nil)

// New builds a Guard over a loaded RiskConfig.
func New(cfg *store.RiskConfig) *Guard {
	return &Guard{cfg: cfg}
}

// Validate checks symbol whitelisting, leverage bounds and per-trade cost
// bounds. It never mutates state and never calls the broker.
func (g *Guard) Validate(symbol types.Symbol, cost float64, leverage int) (bool, string) {
	normalized := symbol.Normalize()

	if !g.cfg.IsWhitelisted(normalized) {
		return false, fmt.Sprintf("symbol %s is not in the whitelist; allowed symbols: %v", normalized, g.cfg.WhitelistSlice())
	}
	if leverage < 1 || leverage > g.cfg.MaxLeverage {
		return false, fmt.Sprintf("leverage %d outside allowed range [1, %d]", leverage, g.cfg.MaxLeverage)
	}
	if cost <= 0 {
		return false, "cost must be positive"
	}
	if cost > g.cfg.MaxCostPerTrade {
		return false, fmt.Sprintf("cost %.2f exceeds max cost per trade %.2f", cost, g.cfg.MaxCostPerTrade)
	}
	return true, ""
}

// MaxLeverage is a read-only accessor used to render constraints into the
// LLM system prompt.
func (g *Guard) MaxLeverage() int { return g.cfg.MaxLeverage }

// MaxCostPerTrade is a read-only accessor used to render constraints into
// the LLM system prompt.
func (g *Guard) MaxCostPerTrade() float64 { return g.cfg.MaxCostPerTrade }

// WhitelistSlice is a read-only accessor used to render constraints into
// the LLM system prompt.
func (g *Guard) WhitelistSlice() []string { return g.cfg.WhitelistSlice() }
