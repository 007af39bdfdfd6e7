package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicBackend sends requests through the Anthropic Messages API.
type anthropicBackend struct {
	client anthropic.Client
}

func newAnthropicBackend(apiKey string) *anthropicBackend {
	return &anthropicBackend{client: anthropic.NewClient(
		option.WithAPIKey(apiKey),
		// retry.Caller owns retries
		option.WithMaxRetries(0),
	)}
}

func (b *anthropicBackend) Send(ctx context.Context, req Request) (*Reply, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  toMessageParams(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = toToolParams(req.Tools)
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("API call failed: %w", err)
	}

	reply := &Reply{
		StopReason:   string(resp.StopReason),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			reply.Text += variant.Text
		case anthropic.ToolUseBlock:
			input, err := rawInput(variant.Input)
			if err != nil {
				return nil, fmt.Errorf("decoding input of tool %s: %w", variant.Name, err)
			}
			reply.ToolCalls = append(reply.ToolCalls, ToolCall{ID: variant.ID, Name: variant.Name, Input: input})
		}
	}
	return reply, nil
}

func toMessageParams(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		var blocks []anthropic.ContentBlockParamUnion
		if m.Text != "" {
			blocks = append(blocks, anthropic.NewTextBlock(m.Text))
		}
		for _, call := range m.ToolCalls {
			blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, call.Input, call.Name))
		}
		for _, result := range m.ToolResults {
			blocks = append(blocks, anthropic.NewToolResultBlock(result.CallID, result.Content, result.IsError))
		}

		if m.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func toToolParams(tools []Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i := range tools {
		tool := anthropic.ToolParam{
			Name:        tools[i].Name,
			Description: anthropic.String(tools[i].Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: tools[i].Schema.Properties,
				Required:   tools[i].Schema.Required,
			},
		}
		out[i] = anthropic.ToolUnionParam{OfTool: &tool}
	}
	return out
}

// rawInput normalizes the SDK's tool input into raw JSON.
func rawInput(input any) (json.RawMessage, error) {
	switch v := input.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	case nil:
		return json.RawMessage("{}"), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return data, nil
	}
}
