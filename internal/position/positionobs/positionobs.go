// Package positionobs wraps a PositionManager with logging and tracing
// around every method, following the same decorator idiom as brokerobs.
package positionobs

import (
	"context"

	"futures-trading-agent/internal/interfaces"
	"futures-trading-agent/internal/logger"
	"futures-trading-agent/internal/types"
)

type observablePositions struct {
	positions interfaces.PositionManager
}

var _ interfaces.PositionManager = (*observablePositions)(nil)

// Wrap wraps a PositionManager with observability middleware.
func Wrap(positions interfaces.PositionManager) interfaces.PositionManager {
	return &observablePositions{positions: positions}
}

func (op *observablePositions) SyncPositions(ctx context.Context, symbols []types.Symbol) error {
	ctx, span := logger.StartSpan(ctx, "positions.SyncPositions")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Syncing positions", "symbols", symbols)

	err := op.positions.SyncPositions(ctx, symbols)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Position sync failed", err, "symbols", symbols)
	}
	return err
}

func (op *observablePositions) ForceSync(ctx context.Context, symbols []types.Symbol) error {
	ctx, span := logger.StartSpan(ctx, "positions.ForceSync")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Force-syncing positions", "symbols", symbols)

	err := op.positions.ForceSync(ctx, symbols)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Forced position sync failed", err, "symbols", symbols)
	}
	return err
}

func (op *observablePositions) GetPosition(symbol types.Symbol) (types.Position, bool) {
	return op.positions.GetPosition(symbol)
}

func (op *observablePositions) HasPosition(symbol types.Symbol) bool {
	return op.positions.HasPosition(symbol)
}

func (op *observablePositions) HasLongPosition(symbol types.Symbol) bool {
	return op.positions.HasLongPosition(symbol)
}

func (op *observablePositions) HasShortPosition(symbol types.Symbol) bool {
	return op.positions.HasShortPosition(symbol)
}

func (op *observablePositions) GetAllPositions() []types.Position {
	return op.positions.GetAllPositions()
}

func (op *observablePositions) GetPositionCount() int {
	return op.positions.GetPositionCount()
}

func (op *observablePositions) GetTotalUnrealizedPnL() float64 {
	return op.positions.GetTotalUnrealizedPnL()
}

func (op *observablePositions) GetTotalMarginUsed() float64 {
	return op.positions.GetTotalMarginUsed()
}

// CanOpenPosition is logged at warn level on rejection since admission
// control denials are operationally interesting; approvals are routine.
func (op *observablePositions) CanOpenPosition(symbol types.Symbol) bool {
	ok := op.positions.CanOpenPosition(symbol)
	if !ok {
		logger.WarnSkip(context.Background(), 1, "Position admission denied", "symbol", symbol)
	}
	return ok
}

func (op *observablePositions) ShouldClosePosition(symbol types.Symbol, maxLossPercent float64) bool {
	should := op.positions.ShouldClosePosition(symbol, maxLossPercent)
	if should {
		logger.Risk(context.Background(), string(symbol), "loss_threshold_exceeded", "max_loss_percent", maxLossPercent)
	}
	return should
}
