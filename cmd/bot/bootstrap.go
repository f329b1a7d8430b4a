package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"futures-trading-agent/internal/agent"
	"futures-trading-agent/internal/agent/agentobs"
	"futures-trading-agent/internal/audit"
	"futures-trading-agent/internal/bridge"
	"futures-trading-agent/internal/bridge/bridgeobs"
	exchangebroker "futures-trading-agent/internal/broker/exchange"
	"futures-trading-agent/internal/broker/brokerobs"
	"futures-trading-agent/internal/broker/simulation"
	"futures-trading-agent/internal/exchange/binance"
	"futures-trading-agent/internal/interfaces"
	"futures-trading-agent/internal/llm/anthropic"
	"futures-trading-agent/internal/llm/llmobs"
	"futures-trading-agent/internal/llm/mockdriver"
	"futures-trading-agent/internal/logger"
	"futures-trading-agent/internal/market"
	"futures-trading-agent/internal/position"
	"futures-trading-agent/internal/position/positionobs"
	"futures-trading-agent/internal/risk"
	"futures-trading-agent/internal/scheduler"
	"futures-trading-agent/internal/search"
	"futures-trading-agent/internal/store"

	"github.com/joho/godotenv"
)

const defaultInitialCapital = 10000.0

// initializeSystem loads the environment file and the logger/tracer.
func initializeSystem() error {
	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// loadConfig loads the risk configuration from the environment.
func loadConfig(ctx context.Context) (*store.RiskConfig, error) {
	cfg, err := store.LoadRiskConfig()
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load risk config", err)
		return nil, err
	}
	return cfg, nil
}

// initializeBroker selects the simulated or live broker per cfg.BrokerMode
// (falling back to cfg.Mode when unset), the way the teacher's
// initializeBroker picked DRY_RUN vs live Zerodha from a single config field.
func initializeBroker(ctx context.Context, cfg *store.RiskConfig, forceMock bool) (interfaces.Broker, error) {
	mode := cfg.BrokerMode
	if forceMock {
		mode = store.BrokerMock
	}
	if mode == "" {
		if cfg.Mode == store.ModeLive {
			mode = store.BrokerLive
		} else {
			mode = store.BrokerPaper
		}
	}

	if mode != store.BrokerLive {
		logger.Info(ctx, "Running with the simulation broker", "mode", mode)
		return brokerobs.Wrap(simulation.New(defaultInitialCapital)), nil
	}

	apiKey := os.Getenv("BINANCE_API_KEY")
	secretKey := os.Getenv("BINANCE_SECRET_KEY")
	if apiKey == "" || secretKey == "" {
		return nil, fmt.Errorf("BROKER_MODE=live requires BINANCE_API_KEY and BINANCE_SECRET_KEY")
	}

	inst, err := store.LoadInstruments("instruments.yaml")
	if err != nil {
		logger.Warn(ctx, "Failed to load instruments sidecar, continuing without step-size rounding", "error", err)
		inst = store.Instruments{}
	}

	adapter := binance.New(apiKey, secretKey)
	logger.Info(ctx, "Running with the live Binance futures broker")
	return brokerobs.Wrap(exchangebroker.New(adapter, inst)), nil
}

// initializeDriver selects the Anthropic tool-use driver when an API key is
// configured and --dev was not passed, else falls back to the deterministic
// mock driver, the way the teacher's initializeDecider fell back to the Noop
// decider when no LLM provider was configured.
func initializeDriver(ctx context.Context, dev bool) interfaces.Driver {
	apiKey := os.Getenv("CLAUDE_API_KEY")
	if dev || apiKey == "" {
		logger.Warn(ctx, "No LLM credentials configured or --dev set; using mock driver (always HOLD)")
		return llmobs.Wrap(mockdriver.New())
	}
	return llmobs.Wrap(anthropic.New(apiKey, os.Getenv("CLAUDE_MODEL")))
}

// initializeSearch builds the web-search provider if SEARCH_BASE_URL is set;
// otherwise the bridge's search tool reports itself unconfigured.
func initializeSearch() search.Provider {
	baseURL := os.Getenv("SEARCH_BASE_URL")
	if baseURL == "" {
		return search.New("", search.DefaultSelectors(), 5)
	}
	return search.New(baseURL, search.DefaultSelectors(), 5)
}

// initializeAgent wires the Tool Bridge, LLM Driver, Risk Guard and Audit
// Sink into a Trading Agent.
func initializeAgent(ctx context.Context, cfg *store.RiskConfig, broker interfaces.Broker, dev bool) (interfaces.Agent, func(), error) {
	riskGuard := risk.New(cfg)
	positions := positionobs.Wrap(position.New(broker))
	marketData := market.New(nil)
	searchProvider := initializeSearch()

	toolBridge := bridgeobs.Wrap(bridge.New(broker, positions, riskGuard, marketData, searchProvider, defaultInitialCapital))
	driver := initializeDriver(ctx, dev)

	auditSink := audit.New(ctx, os.Getenv("AUDIT_LOG_DIR"), os.Getenv("AUDIT_DB_DSN"))
	compressOldAuditLogs(ctx, auditSink)
	cleanup := func() { auditSink.Close() }

	return agentobs.Wrap(agent.New(toolBridge, driver, riskGuard, auditSink)), cleanup, nil
}

// compressOldAuditLogs gzips session logs older than TRADER_LOG_RETENTION_DAYS,
// the way the teacher's main.go swept tradelog files on startup.
func compressOldAuditLogs(ctx context.Context, sink *audit.Sink) {
	v := os.Getenv("TRADER_LOG_RETENTION_DAYS")
	if v == "" {
		return
	}
	days, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn(ctx, "Invalid TRADER_LOG_RETENTION_DAYS, skipping log compression", "value", v)
		return
	}
	if err := sink.CompressOlder(days); err != nil {
		logger.Warn(ctx, "Failed to compress old audit logs", "error", err)
	}
}

// buildScheduler wires a Trading Agent into a Scheduler over cfg's symbol
// universe and polling interval.
func buildScheduler(tradingAgent interfaces.Agent, cfg *store.RiskConfig) *scheduler.Scheduler {
	interval := msToDuration(cfg.IntervalMs)
	return scheduler.New(tradingAgent, cfg.Symbols, interval)
}
