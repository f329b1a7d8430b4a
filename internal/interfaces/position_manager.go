package interfaces

import (
	"context"

	"futures-trading-agent/internal/types"
)

// RiskGuard is the stateless per-order validator. It holds no mutable state
// across calls; the same RiskConfig always produces the same verdict.
type RiskGuard interface {
	Validate(symbol types.Symbol, cost float64, leverage int) (ok bool, reason string)
	MaxLeverage() int
	MaxCostPerTrade() float64
	WhitelistSlice() []string
}

// PositionManager caches broker positions between sync-cooldown windows and
// answers admission-control questions without re-hitting the broker.
type PositionManager interface {
	SyncPositions(ctx context.Context, symbols []types.Symbol) error
	ForceSync(ctx context.Context, symbols []types.Symbol) error
	GetPosition(symbol types.Symbol) (types.Position, bool)
	HasPosition(symbol types.Symbol) bool
	HasLongPosition(symbol types.Symbol) bool
	HasShortPosition(symbol types.Symbol) bool
	GetAllPositions() []types.Position
	GetPositionCount() int
	GetTotalUnrealizedPnL() float64
	GetTotalMarginUsed() float64
	CanOpenPosition(symbol types.Symbol) bool
	ShouldClosePosition(symbol types.Symbol, maxLossPercent float64) bool
}
