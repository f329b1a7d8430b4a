// Package bridge implements the Agent/Tool Bridge: the four typed tool
// variants the LLM driver may invoke, dispatched by name against shared
// Broker and Position Manager instances so every tool call in a cycle
// observes coherent state, per the specification's replacement for the
// source's runtime-typed JSON-schema tool registry.
package bridge

import (
	"context"
	"fmt"
	"math"

	"futures-trading-agent/internal/interfaces"
	"futures-trading-agent/internal/logger"
	"futures-trading-agent/internal/market"
	"futures-trading-agent/internal/search"
	"futures-trading-agent/internal/tradingerrors"
	"futures-trading-agent/internal/types"
)

// Bridge holds the shared instances every tool closes over.
type Bridge struct {
	broker         interfaces.Broker
	positions      interfaces.PositionManager
	risk           interfaces.RiskGuard
	marketData     market.Provider
	searchProvider search.Provider
	initialCapital float64
}

var _ interfaces.ToolBridge = (*Bridge)(nil)

// New builds a Bridge over the shared process-wide Broker and
// PositionManager singletons.
func New(broker interfaces.Broker, positions interfaces.PositionManager, risk interfaces.RiskGuard, marketData market.Provider, searchProvider search.Provider, initialCapital float64) *Bridge {
	return &Bridge{
		broker:         broker,
		positions:      positions,
		risk:           risk,
		marketData:     marketData,
		searchProvider: searchProvider,
		initialCapital: initialCapital,
	}
}

// Tools returns the four tool variants, each closing over this Bridge's
// shared state.
func (b *Bridge) Tools() []interfaces.Tool {
	return []interfaces.Tool{
		&getMarketDataTool{b},
		&getAccountInfoTool{b},
		&placeOrderTool{b},
		&searchTool{b},
	}
}

func fail(msg string) map[string]any {
	return map[string]any{"success": false, "error": msg}
}

func rejected(reason string) map[string]any {
	err := &tradingerrors.ValidationError{Reason: reason}
	return map[string]any{"success": false, "rejected": true, "error": err.Error()}
}

func argString(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func argFloat(args map[string]any, key string) (float64, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// --- getMarketData -----------------------------------------------------

type getMarketDataTool struct{ b *Bridge }

func (t *getMarketDataTool) Name() string        { return "getMarketData" }
func (t *getMarketDataTool) Description() string { return "Fetch current price and market summary for a symbol." }
func (t *getMarketDataTool) ParamSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"symbol": map[string]any{"type": "string"}},
		"required":   []string{"symbol"},
	}
}

func (t *getMarketDataTool) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	symbolStr, ok := argString(args, "symbol")
	if !ok || symbolStr == "" {
		return rejected("symbol is required"), nil
	}
	symbol := types.Symbol(symbolStr).Normalize()

	summary, err := t.b.marketData.FetchSummary(ctx, symbol)
	if err != nil {
		logger.Warn(ctx, "getMarketData failed", "symbol", symbol, "error", err)
		return fail(fmt.Sprintf("market data unavailable: %v", err)), nil
	}
	return map[string]any{"success": true, "symbol": string(symbol), "summary": summary}, nil
}

// --- getAccountInfo ------------------------------------------------------

type getAccountInfoTool struct{ b *Bridge }

func (t *getAccountInfoTool) Name() string { return "getAccountInfo" }
func (t *getAccountInfoTool) Description() string {
	return "Fetch account balance, margin and return metrics for the given symbols."
}
func (t *getAccountInfoTool) ParamSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"symbols":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"initialCapital": map[string]any{"type": "number"},
		},
		"required": []string{"symbols"},
	}
}

func (t *getAccountInfoTool) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	rawSymbols, _ := args["symbols"].([]any)
	symbols := make([]types.Symbol, 0, len(rawSymbols))
	for _, v := range rawSymbols {
		if s, ok := v.(string); ok && s != "" {
			symbols = append(symbols, types.Symbol(s).Normalize())
		}
	}

	initialCapital := t.b.initialCapital
	if v, ok := argFloat(args, "initialCapital"); ok && v > 0 {
		initialCapital = v
	}

	if err := t.b.positions.ForceSync(ctx, symbols); err != nil {
		logger.Warn(ctx, "getAccountInfo: force sync failed", "error", err)
	}

	account, err := t.b.broker.GetAccountInfo(ctx)
	if err != nil {
		return fail(fmt.Sprintf("account info unavailable: %v", err)), nil
	}

	totalUnrealized := t.b.positions.GetTotalUnrealizedPnL()
	currentValue := account.AvailableMargin + totalUnrealized + account.UsedMargin
	var totalReturnPct float64
	if initialCapital > 0 {
		totalReturnPct = (currentValue - initialCapital) / initialCapital
	}

	sharpe := simplifiedSharpe(t.b.positions.GetAllPositions())

	return map[string]any{
		"success":             true,
		"balance":             account.Balance,
		"availableMargin":     account.AvailableMargin,
		"usedMargin":          account.UsedMargin,
		"totalUnrealizedPnl":  totalUnrealized,
		"currentAccountValue": currentValue,
		"totalReturnPct":      totalReturnPct,
		"sharpe":              sharpe,
		"positionCount":       t.b.positions.GetPositionCount(),
	}, nil
}

// simplifiedSharpe computes a dimensionless ratio of mean to stddev of
// per-position returns (unrealizedPnl / notional), the "simplified Sharpe"
// the specification calls for — not an annualized, volatility-adjusted
// Sharpe ratio against a risk-free rate.
func simplifiedSharpe(positions []types.Position) float64 {
	if len(positions) == 0 {
		return 0
	}
	returns := make([]float64, 0, len(positions))
	for _, p := range positions {
		notional := p.Amount * p.EntryPrice
		if notional <= 0 {
			continue
		}
		returns = append(returns, p.UnrealizedPnl/notional)
	}
	if len(returns) == 0 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return 0
	}
	return mean / stddev
}

// --- placeOrder ----------------------------------------------------------

type placeOrderTool struct{ b *Bridge }

func (t *placeOrderTool) Name() string        { return "placeOrder" }
func (t *placeOrderTool) Description() string { return "Open or close a leveraged position." }
func (t *placeOrderTool) ParamSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"symbol":     map[string]any{"type": "string"},
			"action":     map[string]any{"type": "string", "enum": []string{"open_long", "close_long", "open_short", "close_short"}},
			"cost":       map[string]any{"type": "number"},
			"leverage":   map[string]any{"type": "integer"},
			"stopLoss":   map[string]any{"type": "number"},
			"takeProfit": map[string]any{"type": "number"},
		},
		"required": []string{"symbol", "action"},
	}
}

func (t *placeOrderTool) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	symbolStr, ok := argString(args, "symbol")
	if !ok || symbolStr == "" {
		return rejected("symbol is required"), nil
	}
	symbol := types.Symbol(symbolStr).Normalize()

	action, ok := argString(args, "action")
	if !ok {
		return rejected("action is required"), nil
	}

	switch types.OrderAction(action) {
	case types.ActionOpenLong:
		return t.open(ctx, symbol, types.SideBuy, args)
	case types.ActionOpenShort:
		return t.open(ctx, symbol, types.SideSell, args)
	case types.ActionCloseLong:
		return t.close(ctx, symbol, types.PositionLong)
	case types.ActionCloseShort:
		return t.close(ctx, symbol, types.PositionShort)
	default:
		return rejected(fmt.Sprintf("unknown action %q", action)), nil
	}
}

func (t *placeOrderTool) open(ctx context.Context, symbol types.Symbol, side types.OrderSide, args map[string]any) (map[string]any, error) {
	cost, hasCost := argFloat(args, "cost")
	leverageF, hasLeverage := argFloat(args, "leverage")
	if !hasCost || !hasLeverage {
		return rejected("cost and leverage are required to open a position"), nil
	}
	leverage := int(leverageF)

	if ok, reason := t.b.risk.Validate(symbol, cost, leverage); !ok {
		logger.Risk(ctx, string(symbol), "rejected_by_guard", "reason", reason)
		return rejected(reason), nil
	}

	if !t.b.positions.CanOpenPosition(symbol) {
		return fail(fmt.Sprintf("cannot open position for %s: already open or max positions reached", symbol)), nil
	}

	req := types.OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Type:     types.OrderMarket,
		Cost:     cost,
		Leverage: leverage,
	}
	if sl, ok := argFloat(args, "stopLoss"); ok {
		req.StopLoss = sl
	}
	if tp, ok := argFloat(args, "takeProfit"); ok {
		req.TakeProfit = tp
	}

	result, err := t.b.broker.PlaceOrder(ctx, req)
	if syncErr := t.b.positions.ForceSync(ctx, []types.Symbol{symbol}); syncErr != nil {
		logger.Warn(ctx, "placeOrder: force sync after open failed", "symbol", symbol, "error", syncErr)
	}
	if err != nil {
		return fail(err.Error()), nil
	}
	if !result.Success {
		out := fail(result.Error)
		if result.Critical {
			out["critical"] = true
		}
		return out, nil
	}
	logger.Trade(ctx, string(symbol), string(side), cost, 0, result.OrderID, "leverage", leverage)
	return map[string]any{"success": true, "orderId": result.OrderID}, nil
}

func (t *placeOrderTool) close(ctx context.Context, symbol types.Symbol, wantSide types.PositionSide) (map[string]any, error) {
	label := "long"
	side := types.SideSell
	if wantSide == types.PositionShort {
		label = "short"
		side = types.SideBuy
	}

	pos, ok := t.b.positions.GetPosition(symbol)
	if !ok || pos.Side != wantSide {
		return fail(fmt.Sprintf("No %s position open for %s", label, symbol)), nil
	}

	req := types.OrderRequest{
		Symbol:     symbol,
		Side:       side,
		Type:       types.OrderMarket,
		Amount:     pos.Amount,
		ReduceOnly: true,
	}
	result, err := t.b.broker.PlaceOrder(ctx, req)
	if syncErr := t.b.positions.ForceSync(ctx, []types.Symbol{symbol}); syncErr != nil {
		logger.Warn(ctx, "placeOrder: force sync after close failed", "symbol", symbol, "error", syncErr)
	}
	if err != nil {
		return fail(err.Error()), nil
	}
	if !result.Success {
		return fail(result.Error), nil
	}
	logger.Trade(ctx, string(symbol), string(side), pos.Amount, pos.MarkPrice, result.OrderID)
	return map[string]any{"success": true, "orderId": result.OrderID}, nil
}

// --- search ----------------------------------------------------------------

type searchTool struct{ b *Bridge }

func (t *searchTool) Name() string        { return "search" }
func (t *searchTool) Description() string { return "Search the web for news relevant to a trading decision." }
func (t *searchTool) ParamSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"query": map[string]any{"type": "string"}},
		"required":   []string{"query"},
	}
}

func (t *searchTool) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	query, ok := argString(args, "query")
	if !ok || query == "" {
		return rejected("query is required"), nil
	}
	if t.b.searchProvider == nil {
		return fail("search is not configured"), nil
	}

	results, err := t.b.searchProvider.Search(ctx, query)
	if err != nil {
		return fail(err.Error()), nil
	}

	out := make([]map[string]any, 0, len(results))
	for _, r := range results {
		out = append(out, map[string]any{"title": r.Title, "url": r.URL, "snippet": r.Snippet})
	}
	return map[string]any{"success": true, "results": out}, nil
}
