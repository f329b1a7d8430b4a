// Package exchange implements ExchangeBroker, the live-venue side of the
// Broker interface. It drives the Protected-Order Protocol state machine
// (CONFIGURE -> SIZE -> MAIN_ORDER -> PROTECT -> ROLLBACK) against an
// abstract interfaces.Exchange wire contract, grounded on the retry/backoff
// and reduce-only rollback mechanics in Traliaa-trade_bot's OKX algo-order
// client (cancel_algo.go, place_tp_sl.go).
package exchange

import (
	"context"
	"fmt"
	"time"

	"futures-trading-agent/internal/interfaces"
	"futures-trading-agent/internal/logger"
	"futures-trading-agent/internal/store"
	"futures-trading-agent/internal/tradingerrors"
	"futures-trading-agent/internal/types"
)

// Clock abstracts time.Sleep so retry backoff is deterministic under test,
// per the design note replacing promise-based retries with an explicit
// loop + clock abstraction.
type Clock interface {
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

const (
	maxProtectAttempts = 3
	backoffUnit        = 1000 * time.Millisecond

	// defaultMarginMode is applied during CONFIGURE for every order; the
	// agent has no per-trade margin-mode input, so every position opens
	// isolated, bounding worst-case loss to the position itself.
	defaultMarginMode = types.MarginIsolated
)

// Broker implements interfaces.Broker against a live interfaces.Exchange.
type Broker struct {
	exchange    interfaces.Exchange
	clock       Clock
	instruments store.Instruments
}

var _ interfaces.Broker = (*Broker)(nil)

// New builds an ExchangeBroker over a concrete Exchange wire adapter. inst
// may be nil or empty; symbols with no entry fall back to the venue's own
// rounding and minimums.
func New(ex interfaces.Exchange, inst store.Instruments) *Broker {
	return &Broker{exchange: ex, clock: realClock{}, instruments: inst}
}

// WithClock overrides the backoff clock, used by tests to avoid sleeping.
func (b *Broker) WithClock(c Clock) *Broker {
	b.clock = c
	return b
}

// roundToStep rounds amount down to the nearest multiple of the symbol's
// configured step size, and reports whether the resulting notional clears
// the symbol's configured minimum. A symbol absent from the instruments
// sidecar is passed through unrounded.
func (b *Broker) roundToStep(symbol types.Symbol, amount, price float64) (float64, bool) {
	meta, ok := b.instruments[string(symbol)]
	if !ok || meta.StepSize <= 0 {
		return amount, true
	}
	steps := amount / meta.StepSize
	rounded := float64(int64(steps)) * meta.StepSize
	if meta.MinNotional > 0 && rounded*price < meta.MinNotional {
		return rounded, false
	}
	return rounded, true
}

// PlaceOrder runs the Protected-Order Protocol: CONFIGURE, SIZE, MAIN_ORDER,
// then PROTECT (and ROLLBACK on protection failure) unless the order is
// reduce-only.
func (b *Broker) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.OrderResult, error) {
	symbol := req.Symbol.Normalize()

	// CONFIGURE: leverage and margin mode are re-applied per order. Failures
	// here are warnings, never fatal, and never abort the cycle.
	if req.Leverage > 0 {
		if err := b.exchange.SetLeverage(ctx, symbol, req.Leverage); err != nil {
			logger.Warn(ctx, "SetLeverage failed, continuing", "symbol", symbol, "leverage", req.Leverage, "error", err)
		}
	}
	if err := b.exchange.SetMarginMode(ctx, symbol, defaultMarginMode); err != nil {
		logger.Warn(ctx, "SetMarginMode failed, continuing", "symbol", symbol, "mode", defaultMarginMode, "error", err)
	}

	// SIZE: use the given amount, else derive from cost/leverage/lastPrice.
	amount := req.Amount
	if amount <= 0 {
		if req.Cost <= 0 || req.Leverage <= 0 {
			return types.OrderResult{Success: false, Error: "order has neither amount nor cost+leverage"}, nil
		}
		lastPrice, err := b.exchange.Ticker(ctx, symbol)
		if err != nil {
			sizingErr := &tradingerrors.TransientExchangeError{Op: "ticker", Err: err}
			logger.ErrorWithErr(ctx, "Failed to fetch ticker for sizing", sizingErr, "symbol", symbol)
			return types.OrderResult{Success: false, Error: sizingErr.Error()}, nil
		}
		amount = (req.Cost * float64(req.Leverage)) / lastPrice
		rounded, clearsMin := b.roundToStep(symbol, amount, lastPrice)
		if !clearsMin {
			return types.OrderResult{Success: false, Error: fmt.Sprintf("order notional below minimum for %s", symbol)}, nil
		}
		amount = rounded
	}
	sized := req
	sized.Amount = amount

	// MAIN_ORDER: failure here returns immediately, no protection attempted.
	mainOrderID, err := b.exchange.CreateOrder(ctx, sized)
	if err != nil {
		mainErr := &tradingerrors.TransientExchangeError{Op: "main order", Err: err}
		logger.ErrorWithErr(ctx, "Main order failed", mainErr, "symbol", symbol, "side", req.Side)
		return types.OrderResult{Success: false, Error: mainErr.Error()}, nil
	}
	logger.Trade(ctx, string(symbol), string(req.Side), amount, req.Price, mainOrderID)

	if req.ReduceOnly || (req.StopLoss == 0 && req.TakeProfit == 0) {
		return types.OrderResult{Success: true, OrderID: mainOrderID}, nil
	}

	return b.protect(ctx, sized, mainOrderID)
}

// protect implements PROTECT and, on stop-loss failure, ROLLBACK.
func (b *Broker) protect(ctx context.Context, req types.OrderRequest, mainOrderID string) (types.OrderResult, error) {
	symbol := req.Symbol.Normalize()
	oppositeSide := types.SideSell
	if req.Side == types.SideSell {
		oppositeSide = types.SideBuy
	}

	var stopLossOK = req.StopLoss == 0
	if req.StopLoss > 0 {
		stopLossOK = b.placeProtectiveOrder(ctx, symbol, oppositeSide, req.Amount, req.StopLoss, "stop-loss")
	}

	if !stopLossOK {
		return b.rollback(ctx, req, oppositeSide, mainOrderID)
	}

	if req.TakeProfit > 0 {
		takeProfitOK := b.placeProtectiveOrder(ctx, symbol, oppositeSide, req.Amount, req.TakeProfit, "take-profit")
		if !takeProfitOK {
			logger.Warn(ctx, "Take-profit order failed after retries; stop-loss is in place",
				"symbol", symbol, "main_order_id", mainOrderID)
		}
	}

	return types.OrderResult{Success: true, OrderID: mainOrderID}, nil
}

// placeProtectiveOrder retries up to maxProtectAttempts times with linear
// backoff: no pre-wait before attempt 1, 1000ms before attempt 2, 2000ms
// before attempt 3.
func (b *Broker) placeProtectiveOrder(ctx context.Context, symbol types.Symbol, side types.OrderSide, amount, triggerPrice float64, kind string) bool {
	req := types.OrderRequest{
		Symbol:     symbol,
		Side:       side,
		Type:       types.OrderMarket,
		Amount:     amount,
		Price:      triggerPrice,
		ReduceOnly: true,
	}

	for attempt := 1; attempt <= maxProtectAttempts; attempt++ {
		if attempt > 1 {
			b.clock.Sleep(time.Duration(attempt-1) * backoffUnit)
		}
		if orderID, err := b.exchange.CreateOrder(ctx, req); err == nil {
			logger.Trade(ctx, string(symbol), string(side), amount, triggerPrice, orderID, "kind", kind)
			return true
		} else {
			logger.Warn(ctx, "Protective order attempt failed", "symbol", symbol, "kind", kind, "attempt", attempt, "error", err)
		}
	}
	return false
}

// rollback closes the just-opened position with a reduce-only market order
// equal in size and opposite in direction to the main order.
func (b *Broker) rollback(ctx context.Context, req types.OrderRequest, oppositeSide types.OrderSide, mainOrderID string) (types.OrderResult, error) {
	symbol := req.Symbol.Normalize()
	rollbackReq := types.OrderRequest{
		Symbol:     symbol,
		Side:       oppositeSide,
		Type:       types.OrderMarket,
		Amount:     req.Amount,
		ReduceOnly: true,
	}

	if _, err := b.exchange.CreateOrder(ctx, rollbackReq); err != nil {
		critical := &tradingerrors.CriticalError{Symbol: string(symbol), MainOrderID: mainOrderID}
		logger.Risk(ctx, string(symbol), "rollback_failed", "main_order_id", mainOrderID, "error", err)
		return types.OrderResult{
			Success:  false,
			OrderID:  mainOrderID,
			Critical: true,
			Error:    critical.Error(),
		}, nil
	}

	protectionFailed := &tradingerrors.ProtectionFailedError{Symbol: string(symbol), MainOrderID: mainOrderID}
	logger.Risk(ctx, string(symbol), "protection_failed_rolled_back", "main_order_id", mainOrderID)
	return types.OrderResult{
		Success: false,
		OrderID: mainOrderID,
		Error:   protectionFailed.Error(),
	}, nil
}

// GetPositions fetches positions from the exchange; a transient error
// returns an empty result instead of propagating, per §4.1.
func (b *Broker) GetPositions(ctx context.Context, symbols []types.Symbol) ([]types.Position, error) {
	positions, err := b.exchange.FetchPositions(ctx, symbols)
	if err != nil {
		logger.Warn(ctx, "GetPositions failed, returning empty result", "error", err)
		return []types.Position{}, nil
	}
	out := make([]types.Position, 0, len(positions))
	for _, p := range positions {
		if p.Amount != 0 {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetAccountInfo fetches balances from the exchange; a transient error
// returns a zeroed snapshot instead of propagating, per §4.1.
func (b *Broker) GetAccountInfo(ctx context.Context) (types.AccountSnapshot, error) {
	snap, err := b.exchange.FetchBalance(ctx)
	if err != nil {
		logger.Warn(ctx, "GetAccountInfo failed, returning zeroed snapshot", "error", err)
		return types.AccountSnapshot{}, nil
	}
	return snap, nil
}

// SetLeverage is idempotent; failures are logged as warnings, never fatal.
func (b *Broker) SetLeverage(ctx context.Context, symbol types.Symbol, leverage int) error {
	if err := b.exchange.SetLeverage(ctx, symbol.Normalize(), leverage); err != nil {
		logger.Warn(ctx, "SetLeverage failed", "symbol", symbol, "leverage", leverage, "error", err)
	}
	return nil
}

// SetMarginMode is idempotent; failures are logged as warnings, never fatal.
func (b *Broker) SetMarginMode(ctx context.Context, symbol types.Symbol, mode types.MarginMode) error {
	if err := b.exchange.SetMarginMode(ctx, symbol.Normalize(), mode); err != nil {
		logger.Warn(ctx, "SetMarginMode failed", "symbol", symbol, "mode", mode, "error", err)
	}
	return nil
}
