// Package llmobs wraps a Driver with logging and tracing around its
// tool-use loop, grounded on the teacher's llmobs decorator over its
// Decider.
package llmobs

import (
	"context"

	"futures-trading-agent/internal/interfaces"
	"futures-trading-agent/internal/logger"
	"futures-trading-agent/internal/types"
)

type observableDriver struct {
	driver interfaces.Driver
}

var _ interfaces.Driver = (*observableDriver)(nil)

// Wrap wraps a Driver with observability middleware.
func Wrap(driver interfaces.Driver) interfaces.Driver {
	return &observableDriver{driver: driver}
}

func (od *observableDriver) Run(ctx context.Context, systemPrompt, userPrompt string, tools []interfaces.Tool, maxSteps int) (string, []types.ToolCall, error) {
	ctx, span := logger.StartSpan(ctx, "llm.Run")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Starting LLM tool-use loop", "max_steps", maxSteps, "tool_count", len(tools))

	reasoning, calls, err := od.driver.Run(ctx, systemPrompt, userPrompt, tools, maxSteps)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "LLM tool-use loop failed", err)
		return reasoning, calls, err
	}

	logger.InfoSkip(ctx, 1, "LLM tool-use loop completed", "calls", len(calls))
	return reasoning, calls, nil
}
