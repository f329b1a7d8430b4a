// Package simulation implements an in-memory Broker used for paper trading
// and tests, grounded on the teacher's DRY_RUN path in broker/zerodha.go but
// extended with leverage, margin and liquidation-price modeling per the
// futures data model.
package simulation

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"futures-trading-agent/internal/interfaces"
	"futures-trading-agent/internal/logger"
	"futures-trading-agent/internal/types"
)

const maintenanceMargin = 0.004

var seedPrices = map[types.Symbol]float64{
	"BTC/USDT":  100000,
	"ETH/USDT":  3800,
	"SOL/USDT":  180,
	"BNB/USDT":  650,
	"DOGE/USDT": 0.35,
}

// Broker is an in-memory SimulationBroker. PlaceOrder, GetPositions and
// GetAccountInfo each simulate 100-200ms of network latency and drift the
// prices they read by up to 0.5%.
type Broker struct {
	mu          sync.Mutex
	positions   map[types.Symbol]types.Position
	balance     float64
	mockPrices  map[types.Symbol]float64
	leverages   map[types.Symbol]int
	marginModes map[types.Symbol]types.MarginMode
	orderSeq    int
	rng         *rand.Rand
}

var _ interfaces.Broker = (*Broker)(nil)

// New creates a SimulationBroker seeded with initialBalance and the
// specification's default mock price book.
func New(initialBalance float64) *Broker {
	prices := make(map[types.Symbol]float64, len(seedPrices))
	for s, p := range seedPrices {
		prices[s] = p
	}
	return &Broker{
		positions:   make(map[types.Symbol]types.Position),
		balance:     initialBalance,
		mockPrices:  prices,
		leverages:   make(map[types.Symbol]int),
		marginModes: make(map[types.Symbol]types.MarginMode),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Reset clears all state and reseeds the balance, for use between test cases.
func (b *Broker) Reset(initialBalance float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions = make(map[types.Symbol]types.Position)
	b.balance = initialBalance
	prices := make(map[types.Symbol]float64, len(seedPrices))
	for s, p := range seedPrices {
		prices[s] = p
	}
	b.mockPrices = prices
	b.leverages = make(map[types.Symbol]int)
	b.marginModes = make(map[types.Symbol]types.MarginMode)
}

// SimState is an inspectable snapshot used by tests.
type SimState struct {
	Positions map[types.Symbol]types.Position
	Balance   float64
	Prices    map[types.Symbol]float64
}

// GetState returns a copy of the broker's internal state for assertions.
func (b *Broker) GetState() SimState {
	b.mu.Lock()
	defer b.mu.Unlock()
	positions := make(map[types.Symbol]types.Position, len(b.positions))
	for k, v := range b.positions {
		positions[k] = v
	}
	prices := make(map[types.Symbol]float64, len(b.mockPrices))
	for k, v := range b.mockPrices {
		prices[k] = v
	}
	return SimState{Positions: positions, Balance: b.balance, Prices: prices}
}

func (b *Broker) simulateLatency() {
	ms := 100 + b.rng.Intn(100)
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// lastPrice returns (and drifts) the mock price for symbol, seeding unknown
// symbols at rand*1000+100 the first time they are seen.
func (b *Broker) lastPrice(symbol types.Symbol) float64 {
	symbol = symbol.Normalize()
	price, ok := b.mockPrices[symbol]
	if !ok {
		price = b.rng.Float64()*1000 + 100
	}
	driftPct := (b.rng.Float64()*2 - 1) * 0.005
	price = price * (1 + driftPct)
	b.mockPrices[symbol] = price
	return price
}

func (b *Broker) nextOrderID() string {
	b.orderSeq++
	return fmt.Sprintf("SIM-%d-%d", time.Now().UnixNano(), b.orderSeq)
}

// liquidationPrice implements the specification's simplified (no-funding)
// formula; it must never leak into core interfaces outside this package.
func liquidationPrice(entry float64, leverage int, side types.PositionSide) float64 {
	if leverage <= 0 {
		leverage = 1
	}
	factor := 1.0/float64(leverage) - maintenanceMargin
	if side == types.PositionShort {
		return entry * (1 + factor)
	}
	return entry * (1 - factor)
}

// defaultMarginMode mirrors the ExchangeBroker's CONFIGURE choice: every
// position opens isolated absent a per-trade margin-mode input.
const defaultMarginMode = types.MarginIsolated

// PlaceOrder simulates order execution against the in-memory price book,
// opening or closing a position as described by §4.4. An opposite-side
// order closes the existing position whatever its size and opens no new one.
//
// CONFIGURE (leverage/margin mode) runs before the position lock is taken:
// SetLeverage/SetMarginMode each acquire b.mu themselves, so calling them
// while already holding it here would deadlock.
func (b *Broker) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.OrderResult, error) {
	b.simulateLatency()

	symbol := req.Symbol.Normalize()
	if req.Leverage > 0 {
		_ = b.SetLeverage(ctx, symbol, req.Leverage)
	}
	_ = b.SetMarginMode(ctx, symbol, defaultMarginMode)

	b.mu.Lock()
	defer b.mu.Unlock()

	price := b.lastPrice(symbol)
	if closed, res := b.checkProtectiveLevels(ctx, symbol, price); closed {
		if req.ReduceOnly {
			return res, nil
		}
	}

	existing, hasPosition := b.positions[symbol]
	orderSide := types.PositionLong
	if req.Side == types.SideSell {
		orderSide = types.PositionShort
	}

	// Closing/flip detection: an opposite-side order against an existing
	// position closes it.
	if hasPosition && existing.Side != orderSide {
		delete(b.positions, symbol)
		orderID := b.nextOrderID()
		logger.Trade(ctx, string(symbol), string(req.Side), existing.Amount, price, orderID)
		return types.OrderResult{Success: true, OrderID: orderID}, nil
	}

	if req.ReduceOnly {
		// Reduce-only with no opposing position is a no-op success; there
		// is nothing left to protect or close.
		orderID := b.nextOrderID()
		return types.OrderResult{Success: true, OrderID: orderID}, nil
	}

	leverage := req.Leverage
	if leverage <= 0 {
		leverage = 1
	}

	amount := req.Amount
	if amount <= 0 && req.Cost > 0 {
		amount = (req.Cost * float64(leverage)) / price
	}
	if amount <= 0 {
		return types.OrderResult{Success: false, Error: "unable to size order: amount and cost both zero"}, nil
	}

	b.positions[symbol] = types.Position{
		Symbol:           symbol,
		Side:             orderSide,
		Amount:           amount,
		EntryPrice:       price,
		MarkPrice:        price,
		UnrealizedPnl:    0,
		Leverage:         leverage,
		LiquidationPrice: liquidationPrice(price, leverage, orderSide),
		StopLoss:         req.StopLoss,
		TakeProfit:       req.TakeProfit,
	}

	orderID := b.nextOrderID()
	logger.Trade(ctx, string(symbol), string(req.Side), amount, price, orderID)
	return types.OrderResult{Success: true, OrderID: orderID}, nil
}

// checkProtectiveLevels auto-closes symbol's open position if mark has
// crossed its attached StopLoss or TakeProfit, standing in for the
// exchange-side protective order an ExchangeBroker would have placed and
// triggered independently of the caller's own order flow. Callers must
// already hold b.mu.
func (b *Broker) checkProtectiveLevels(ctx context.Context, symbol types.Symbol, mark float64) (bool, types.OrderResult) {
	pos, ok := b.positions[symbol]
	if !ok || (pos.StopLoss == 0 && pos.TakeProfit == 0) {
		return false, types.OrderResult{}
	}

	var triggered string
	switch pos.Side {
	case types.PositionLong:
		if pos.StopLoss > 0 && mark <= pos.StopLoss {
			triggered = "stop-loss"
		} else if pos.TakeProfit > 0 && mark >= pos.TakeProfit {
			triggered = "take-profit"
		}
	case types.PositionShort:
		if pos.StopLoss > 0 && mark >= pos.StopLoss {
			triggered = "stop-loss"
		} else if pos.TakeProfit > 0 && mark <= pos.TakeProfit {
			triggered = "take-profit"
		}
	}
	if triggered == "" {
		return false, types.OrderResult{}
	}

	delete(b.positions, symbol)
	orderID := b.nextOrderID()
	closeSide := types.SideSell
	if pos.Side == types.PositionShort {
		closeSide = types.SideBuy
	}
	logger.Trade(ctx, string(symbol), string(closeSide), pos.Amount, mark, orderID, "kind", triggered)
	return true, types.OrderResult{Success: true, OrderID: orderID}
}

// GetPositions returns non-zero positions, marked to the drifted mock price.
func (b *Broker) GetPositions(ctx context.Context, symbols []types.Symbol) ([]types.Position, error) {
	b.simulateLatency()

	b.mu.Lock()
	defer b.mu.Unlock()

	filter := make(map[types.Symbol]bool, len(symbols))
	for _, s := range symbols {
		filter[s.Normalize()] = true
	}

	openSymbols := make([]types.Symbol, 0, len(b.positions))
	for symbol := range b.positions {
		openSymbols = append(openSymbols, symbol)
	}
	for _, symbol := range openSymbols {
		mark := b.lastPrice(symbol)
		b.checkProtectiveLevels(ctx, symbol, mark)
	}

	out := make([]types.Position, 0, len(b.positions))
	for symbol, pos := range b.positions {
		if len(filter) > 0 && !filter[symbol] {
			continue
		}
		if pos.Amount == 0 {
			continue
		}
		mark := b.lastPrice(symbol)
		pos.MarkPrice = mark
		if pos.Side == types.PositionLong {
			pos.UnrealizedPnl = (mark - pos.EntryPrice) * pos.Amount
		} else {
			pos.UnrealizedPnl = (pos.EntryPrice - mark) * pos.Amount
		}
		b.positions[symbol] = pos
		out = append(out, pos)
	}
	return out, nil
}

// GetAccountInfo computes the balance, margin and PnL aggregates described
// in §4.4, including simulated drift on every open position's mark price.
func (b *Broker) GetAccountInfo(ctx context.Context) (types.AccountSnapshot, error) {
	b.simulateLatency()

	b.mu.Lock()
	defer b.mu.Unlock()

	openSymbols := make([]types.Symbol, 0, len(b.positions))
	for symbol := range b.positions {
		openSymbols = append(openSymbols, symbol)
	}
	for _, symbol := range openSymbols {
		mark := b.lastPrice(symbol)
		b.checkProtectiveLevels(ctx, symbol, mark)
	}

	var usedMargin, totalPnL float64
	for symbol, pos := range b.positions {
		mark := b.lastPrice(symbol)
		pos.MarkPrice = mark
		if pos.Side == types.PositionLong {
			pos.UnrealizedPnl = (mark - pos.EntryPrice) * pos.Amount
		} else {
			pos.UnrealizedPnl = (pos.EntryPrice - mark) * pos.Amount
		}
		b.positions[symbol] = pos

		if pos.Leverage > 0 {
			usedMargin += pos.Amount * pos.EntryPrice / float64(pos.Leverage)
		}
		totalPnL += pos.UnrealizedPnl
	}

	reportedBalance := b.balance + totalPnL
	return types.AccountSnapshot{
		Balance:         reportedBalance,
		UsedMargin:      usedMargin,
		AvailableMargin: b.balance - usedMargin,
		TotalPnL:        totalPnL,
		TotalMargin:     usedMargin,
	}, nil
}

// SetLeverage is idempotent and never fails; it only updates local state.
func (b *Broker) SetLeverage(ctx context.Context, symbol types.Symbol, leverage int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leverages[symbol.Normalize()] = leverage
	return nil
}

// SetMarginMode is idempotent and never fails; it only updates local state.
func (b *Broker) SetMarginMode(ctx context.Context, symbol types.Symbol, mode types.MarginMode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.marginModes[symbol.Normalize()] = mode
	return nil
}
