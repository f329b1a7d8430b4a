// Package mockdriver is a deterministic Driver used for --dev runs and
// tests when no LLM credentials are configured, grounded on the teacher's
// noop.go "always HOLD" decider. It makes no tool calls, so a --dev run
// exercises the agent, audit and scheduler wiring but not the tool bridge.
package mockdriver

import (
	"context"

	"futures-trading-agent/internal/interfaces"
	"futures-trading-agent/internal/types"
)

// Driver always concludes with a Hold decision and never calls placeOrder,
// the way the teacher's noop decider always returned HOLD when no LLM
// provider was configured.
type Driver struct{}

var _ interfaces.Driver = (*Driver)(nil)

// New builds a no-op Driver.
func New() *Driver { return &Driver{} }

// Run ignores the prompts and tools entirely and returns a fixed "hold"
// reasoning with no tool calls.
func (d *Driver) Run(ctx context.Context, systemPrompt, userPrompt string, tools []interfaces.Tool, maxSteps int) (string, []types.ToolCall, error) {
	return "No LLM provider configured; holding by default.", nil, nil
}
