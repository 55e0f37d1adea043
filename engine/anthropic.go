package engine

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/applymate/agent-go/core"
	"github.com/applymate/agent-go/tools"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-20250514"

const defaultMaxTokens = 4096

// AnthropicClient adapts the Claude Messages API to the ModelClient
// contract.
type AnthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

var _ ModelClient = (*AnthropicClient)(nil)

// AnthropicOption configures the Claude adapter.
type AnthropicOption func(*AnthropicClient)

// WithModel overrides the default model.
func WithModel(model string) AnthropicOption {
	return func(c *AnthropicClient) {
		if strings.TrimSpace(model) != "" {
			c.model = model
		}
	}
}

// WithMaxTokens overrides the per-call output token cap.
func WithMaxTokens(n int64) AnthropicOption {
	return func(c *AnthropicClient) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// NewAnthropic creates a Claude-backed model client.
func NewAnthropic(apiKey string, opts ...AnthropicOption) *AnthropicClient {
	c := &AnthropicClient{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     DefaultModel,
		maxTokens: defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Decide sends one decision request and classifies the completion into a
// Response variant. Transport failures come back as ModelInvocationError;
// completions that fit neither variant come back as ModelProtocolError.
func (c *AnthropicClient) Decide(ctx context.Context, req Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  buildMessages(req),
		System: []anthropic.TextBlockParam{
			{Text: renderSystem(req)},
		},
	}
	if apiTools := buildTools(req.Tools); len(apiTools) > 0 {
		params.Tools = apiTools
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, &core.ModelInvocationError{Err: err}
	}
	return classify(resp)
}

// classify maps a raw completion onto the closed Response variant set.
// Any tool_use block makes the completion a tool request; preamble text
// alongside tool calls is commentary and is dropped.
func classify(resp *anthropic.Message) (*Response, error) {
	var text strings.Builder
	var calls []core.ToolInvocation

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			calls = append(calls, core.ToolInvocation{
				Name:      block.Name,
				Arguments: json.RawMessage(block.Input),
				CallID:    block.ID,
			})
		}
	}

	if len(calls) > 0 {
		return &Response{Kind: KindToolRequest, ToolCalls: calls}, nil
	}

	answer := strings.TrimSpace(text.String())
	if answer == "" {
		return nil, &core.ModelProtocolError{Reason: "completion carried neither answer text nor a tool call"}
	}
	return &Response{Kind: KindFinish, FinalAnswer: answer}, nil
}

func buildTools(defs []tools.Definition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		required, _ := def.InputSchema["required"].([]string)
		param := anthropic.ToolParam{
			Name:        def.Name,
			Description: anthropic.String(def.Description),
			InputSchema: anthropic.ToolInputSchemaParam{Type: "object", Properties: def.InputSchema["properties"], Required: required},
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out
}

// buildMessages lays the request out as a Claude conversation: persisted
// history, the user's message, then one assistant/user pair per completed
// tool round so the model sees every observation it has already received.
func buildMessages(req Request) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(req.History)+len(req.Steps)*2+1)

	for _, msg := range req.History {
		block := anthropic.NewTextBlock(msg.Text)
		if msg.Role == core.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}

	out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserMessage)))

	for _, step := range req.Steps {
		out = append(out,
			anthropic.NewAssistantMessage(anthropic.NewToolUseBlock(
				step.Invocation.CallID,
				step.Invocation.Arguments,
				step.Invocation.Name,
			)),
			anthropic.NewUserMessage(anthropic.NewToolResultBlock(
				step.Result.CallID,
				step.Result.Observation,
				step.Result.IsError,
			)),
		)
	}

	if req.Nudge != "" {
		out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Nudge)))
	}

	return out
}
