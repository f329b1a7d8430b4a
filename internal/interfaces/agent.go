package interfaces

import (
	"context"

	"futures-trading-agent/internal/types"
)

// Tool is one of the four tagged-union tool variants the LLM driver may
// invoke. Each concrete tool type carries its own typed parameters and is
// dispatched by name, replacing a runtime-typed JSON-schema tool registry.
type Tool interface {
	Name() string
	Description() string
	// ParamSchema returns a JSON-Schema-shaped description of the tool's
	// parameters, used to advertise the tool to the LLM driver.
	ParamSchema() map[string]any
	// Invoke dispatches a raw argument map (already validated against
	// ParamSchema by the driver) and returns a JSON-serializable result.
	Invoke(ctx context.Context, args map[string]any) (map[string]any, error)
}

// ToolBridge exposes the four trading tools backed by shared Broker and
// PositionManager instances so every tool call observes coherent state.
type ToolBridge interface {
	Tools() []Tool
}

// Driver runs the LLM tool-calling loop for one symbol: it sends the system
// and user prompts, dispatches any tool_use blocks through the bridge, and
// stops after a final text response or after the step cap is reached.
type Driver interface {
	Run(ctx context.Context, systemPrompt, userPrompt string, tools []Tool, maxSteps int) (reasoning string, calls []types.ToolCall, err error)
}

// Agent processes a batch of symbols once per cycle.
type Agent interface {
	Run(ctx context.Context, symbols []types.Symbol) error
}

// AuditSink persists a finished trading session. Implementations must never
// let a write failure propagate back into the trading path.
type AuditSink interface {
	RecordSession(ctx context.Context, session types.TradingSession) error
}
