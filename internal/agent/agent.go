// Package agent implements the Trading Agent: the per-cycle driver that
// runs the LLM tool-calling loop for each configured symbol in turn and
// persists one audit record per symbol, grounded on the teacher's
// internal/engine step-and-log loop but generalized to sequential
// multi-symbol processing with a bounded tool-step budget.
package agent

import (
	"context"
	"fmt"
	"time"

	"futures-trading-agent/internal/interfaces"
	"futures-trading-agent/internal/logger"
	"futures-trading-agent/internal/types"
)

const (
	defaultMaxSteps         = 15
	interSymbolPause        = 1 * time.Second
)

// Agent processes a batch of symbols once per cycle.
type Agent struct {
	bridge    interfaces.ToolBridge
	driver    interfaces.Driver
	risk      interfaces.RiskGuard
	auditSink interfaces.AuditSink
	maxSteps  int
}

var _ interfaces.Agent = (*Agent)(nil)

// New builds a Trading Agent over the shared Tool Bridge, LLM Driver, Risk
// Guard (for system-prompt rendering) and Audit Sink.
func New(bridge interfaces.ToolBridge, driver interfaces.Driver, risk interfaces.RiskGuard, auditSink interfaces.AuditSink) *Agent {
	return &Agent{bridge: bridge, driver: driver, risk: risk, auditSink: auditSink, maxSteps: defaultMaxSteps}
}

// Run processes each symbol in order, pausing one second between symbols.
// Errors from one symbol are recorded in its session and processing
// continues with the next symbol; the cycle stops early only when ctx is
// cancelled, returning ctx.Err().
func (a *Agent) Run(ctx context.Context, symbols []types.Symbol) error {
	for i, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return err
		}

		a.processSymbol(ctx, symbol)

		if i < len(symbols)-1 {
			select {
			case <-time.After(interSymbolPause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// processSymbol runs one LLM tool-calling loop for symbol and persists
// exactly one TradingSession record, success or failure.
func (a *Agent) processSymbol(ctx context.Context, symbol types.Symbol) {
	start := time.Now()
	logger.Info(ctx, "Processing symbol", "symbol", symbol)

	session := types.TradingSession{Symbol: symbol, StartTime: start}

	func() {
		defer func() {
			if r := recover(); r != nil {
				session.Success = false
				session.Error = fmt.Sprintf("panic during processSymbol: %v", r)
				logger.Error(ctx, "Recovered panic in processSymbol", "symbol", symbol, "panic", r)
			}
		}()

		system := a.systemPrompt()
		user := a.userPrompt(symbol)

		reasoning, calls, err := a.driver.Run(ctx, system, user, a.bridge.Tools(), a.maxSteps)
		session.Reasoning = reasoning
		session.ToolCalls = calls
		session.Trades = extractTrades(symbol, calls)
		for _, trade := range session.Trades {
			logger.Decision(ctx, string(symbol), string(trade.Operation), reasoning)
		}

		if err != nil {
			session.Success = false
			session.Error = err.Error()
			logger.Warn(ctx, "processSymbol failed", "symbol", symbol, "error", err)
			return
		}
		session.Success = true
	}()

	session.EndTime = time.Now()

	if err := a.auditSink.RecordSession(ctx, session); err != nil {
		logger.Warn(ctx, "Failed to record trading session", "symbol", symbol, "error", err)
	}
}

func (a *Agent) systemPrompt() string {
	return fmt.Sprintf(
		"You are an autonomous futures trading agent. Constraints: max leverage %d, "+
			"max cost per trade %.2f USDT, tradable symbols: %v. Use the available tools "+
			"to inspect the market and your account before deciding whether to open, close, "+
			"or hold a position. Never exceed the stated risk limits; the broker will reject "+
			"orders that violate them.",
		a.risk.MaxLeverage(), a.risk.MaxCostPerTrade(), a.risk.WhitelistSlice(),
	)
}

func (a *Agent) userPrompt(symbol types.Symbol) string {
	return fmt.Sprintf(
		"Analyze %s. First call getMarketData and getAccountInfo to gather context, "+
			"optionally call search for relevant news, then decide whether to open a "+
			"position, close an existing one, or hold. If you open a position, always "+
			"attach a stopLoss. Explain your reasoning before finishing.",
		symbol,
	)
}

// extractTrades derives the audit log's per-trade records from the
// sequence of tool calls the driver made, so a close or a hold produces a
// TradeRecord alongside any successful open.
func extractTrades(symbol types.Symbol, calls []types.ToolCall) []types.TradeRecord {
	var trades []types.TradeRecord
	sawOrderCall := false

	for _, call := range calls {
		if call.Name != "placeOrder" {
			continue
		}
		sawOrderCall = true

		action, _ := call.Args["action"].(string)
		success, _ := call.Result["success"].(bool)
		if !success {
			continue
		}

		record := types.TradeRecord{Symbol: symbol, Operation: types.NormalizeOperation(action)}
		if leverage, ok := call.Args["leverage"].(float64); ok {
			record.Leverage = int(leverage)
		}
		if cost, ok := call.Args["cost"].(float64); ok {
			record.Amount = cost
		}
		if sl, ok := call.Args["stopLoss"].(float64); ok {
			record.StopLoss = sl
		}
		if tp, ok := call.Args["takeProfit"].(float64); ok {
			record.TakeProfit = tp
		}
		trades = append(trades, record)
	}

	if !sawOrderCall {
		trades = append(trades, types.TradeRecord{Symbol: symbol, Operation: types.OpHold})
	}
	return trades
}
