// Package anthropic implements interfaces.Driver against the Anthropic
// Messages API's tool-use protocol, grounded on the teacher's llm/claude.go
// HTTP client shape (endpoint override, x-api-key header, raw JSON request)
// but extended to drive a real tool_use/tool_result loop instead of a single
// JSON-decision round trip.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"futures-trading-agent/internal/interfaces"
	"futures-trading-agent/internal/logger"
	"futures-trading-agent/internal/types"
)

const defaultEndpoint = "https://api.anthropic.com/v1/messages"
const apiVersion = "2023-06-01"

// Driver runs the tool-calling loop for one symbol against Claude.
type Driver struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
	maxTokens  int
}

var _ interfaces.Driver = (*Driver)(nil)

// New builds a Driver. apiKey must be non-empty; callers should check
// credentials before constructing one in non-mock modes.
func New(apiKey, model string) *Driver {
	endpoint := defaultEndpoint
	if ep := os.Getenv("CLAUDE_API_ENDPOINT"); ep != "" {
		endpoint = ep
	}
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	return &Driver{
		apiKey:     apiKey,
		model:      model,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		maxTokens:  2048,
	}
}

type contentBlock struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Input     any    `json:"input,omitempty"`
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type toolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type messagesRequest struct {
	Model     string         `json:"model"`
	System    string         `json:"system,omitempty"`
	Messages  []message      `json:"messages"`
	Tools     []toolSpec     `json:"tools,omitempty"`
	MaxTokens int            `json:"max_tokens"`
}

type messagesResponse struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Run drives the tool_use loop until the model stops requesting tools, it
// produces a final text response, or maxSteps tool-invocation rounds are
// exhausted, per the Trading Agent's step cap.
func (d *Driver) Run(ctx context.Context, systemPrompt, userPrompt string, tools []interfaces.Tool, maxSteps int) (string, []types.ToolCall, error) {
	byName := make(map[string]interfaces.Tool, len(tools))
	specs := make([]toolSpec, 0, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
		specs = append(specs, toolSpec{Name: t.Name(), Description: t.Description(), InputSchema: t.ParamSchema()})
	}

	messages := []message{{Role: "user", Content: []contentBlock{{Type: "text", Text: userPrompt}}}}
	var calls []types.ToolCall
	var reasoning string

	for step := 0; step < maxSteps; step++ {
		resp, err := d.call(ctx, systemPrompt, messages, specs)
		if err != nil {
			return reasoning, calls, fmt.Errorf("anthropic call failed at step %d: %w", step, err)
		}
		if resp.Error != nil {
			return reasoning, calls, fmt.Errorf("anthropic API error: %s", resp.Error.Message)
		}

		assistantBlocks := resp.Content
		messages = append(messages, message{Role: "assistant", Content: assistantBlocks})

		var toolUses []contentBlock
		for _, block := range assistantBlocks {
			switch block.Type {
			case "text":
				reasoning = block.Text
			case "tool_use":
				toolUses = append(toolUses, block)
			}
		}

		if len(toolUses) == 0 {
			return reasoning, calls, nil
		}

		results := make([]contentBlock, 0, len(toolUses))
		for _, use := range toolUses {
			args, _ := use.Input.(map[string]any)
			call := types.ToolCall{Name: use.Name, Args: args}

			tool, ok := byName[use.Name]
			if !ok {
				call.Error = fmt.Sprintf("unknown tool %q", use.Name)
				logger.Warn(ctx, "Driver: unknown tool requested", "tool", use.Name)
				results = append(results, contentBlock{Type: "tool_result", ToolUseID: use.ID, Content: call.Error, IsError: true})
				calls = append(calls, call)
				continue
			}

			out, err := tool.Invoke(ctx, args)
			if err != nil {
				call.Error = err.Error()
				results = append(results, contentBlock{Type: "tool_result", ToolUseID: use.ID, Content: err.Error(), IsError: true})
			} else {
				call.Result = out
				b, _ := json.Marshal(out)
				results = append(results, contentBlock{Type: "tool_result", ToolUseID: use.ID, Content: string(b)})
			}
			calls = append(calls, call)
		}

		messages = append(messages, message{Role: "user", Content: results})

		if resp.StopReason != "tool_use" {
			return reasoning, calls, nil
		}
	}

	return reasoning, calls, nil
}

func (d *Driver) call(ctx context.Context, systemPrompt string, messages []message, tools []toolSpec) (*messagesResponse, error) {
	reqBody := messagesRequest{
		Model:     d.model,
		System:    systemPrompt,
		Messages:  messages,
		Tools:     tools,
		MaxTokens: d.maxTokens,
	}
	bb, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(bb))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", d.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &parsed, nil
}
