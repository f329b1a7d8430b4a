// Package brokerobs wraps a Broker with logging and tracing around every
// method, grounded on the teacher's brokerobs.Wrap decorator over its
// Zerodha broker.
package brokerobs

import (
	"context"

	"futures-trading-agent/internal/interfaces"
	"futures-trading-agent/internal/logger"
	"futures-trading-agent/internal/types"
)

type observableBroker struct {
	broker interfaces.Broker
}

var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps a Broker with observability middleware.
func Wrap(broker interfaces.Broker) interfaces.Broker {
	return &observableBroker{broker: broker}
}

func (ob *observableBroker) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.OrderResult, error) {
	ctx, span := logger.StartSpan(ctx, "broker.PlaceOrder")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Placing order", "symbol", req.Symbol, "side", req.Side, "cost", req.Cost, "leverage", req.Leverage)

	result, err := ob.broker.PlaceOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Order placement failed", err, "symbol", req.Symbol)
		return result, err
	}

	logger.InfoSkip(ctx, 1, "Order placement completed", "symbol", req.Symbol, "success", result.Success, "order_id", result.OrderID, "critical", result.Critical)
	return result, nil
}

func (ob *observableBroker) GetPositions(ctx context.Context, symbols []types.Symbol) ([]types.Position, error) {
	ctx, span := logger.StartSpan(ctx, "broker.GetPositions")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching positions", "symbols", symbols)

	positions, err := ob.broker.GetPositions(ctx, symbols)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch positions", err, "symbols", symbols)
		return positions, err
	}

	logger.DebugSkip(ctx, 1, "Positions fetched", "count", len(positions))
	return positions, nil
}

func (ob *observableBroker) GetAccountInfo(ctx context.Context) (types.AccountSnapshot, error) {
	ctx, span := logger.StartSpan(ctx, "broker.GetAccountInfo")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching account info")

	snap, err := ob.broker.GetAccountInfo(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch account info", err)
		return snap, err
	}

	logger.DebugSkip(ctx, 1, "Account info fetched", "balance", snap.Balance)
	return snap, nil
}

func (ob *observableBroker) SetLeverage(ctx context.Context, symbol types.Symbol, leverage int) error {
	ctx, span := logger.StartSpan(ctx, "broker.SetLeverage")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Setting leverage", "symbol", symbol, "leverage", leverage)

	err := ob.broker.SetLeverage(ctx, symbol, leverage)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to set leverage", err, "symbol", symbol, "leverage", leverage)
	}
	return err
}

func (ob *observableBroker) SetMarginMode(ctx context.Context, symbol types.Symbol, mode types.MarginMode) error {
	ctx, span := logger.StartSpan(ctx, "broker.SetMarginMode")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Setting margin mode", "symbol", symbol, "mode", mode)

	err := ob.broker.SetMarginMode(ctx, symbol, mode)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to set margin mode", err, "symbol", symbol, "mode", mode)
	}
	return err
}
