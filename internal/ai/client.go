// Package ai is the content-generation collaborator: a Claude client with a
// bounded tool-use loop, retries, a circuit breaker and request pacing, plus
// tolerant decoding of structured replies.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/steveyegge/seoloop/internal/retry"
)

const (
	// DefaultModel is used when the configuration does not name one
	DefaultModel = "claude-sonnet-4-5-20250929"

	// DefaultMaxToolIterations bounds the model requests of one completion,
	// the first one included
	DefaultMaxToolIterations = 8

	defaultMaxTokens = 4096
)

// Stop reasons reported by the backend
const (
	StopEndTurn   = "end_turn"
	StopToolUse   = "tool_use"
	StopMaxTokens = "max_tokens"
	StopSequence  = "stop_sequence"
)

// ErrToolLoopExhausted is returned when the model keeps requesting tools
// after the configured number of rounds.
var ErrToolLoopExhausted = errors.New("tool loop exceeded maximum iterations")

// ErrTruncated is returned when the reply hit the token limit.
var ErrTruncated = errors.New("response truncated at max tokens")

// Role of a conversation message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn. Assistant turns may carry tool calls;
// user turns may carry the results of those calls.
type Message struct {
	Role        Role
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// UserText is a convenience for a plain user message.
func UserText(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult answers one ToolCall.
type ToolResult struct {
	CallID  string
	Content string
	IsError bool
}

// ToolHandler executes a tool call and returns its textual result.
type ToolHandler func(ctx context.Context, input json.RawMessage) (string, error)

// Tool is a function the model may call during a completion.
type Tool struct {
	Name        string
	Description string
	Schema      Schema
	Handler     ToolHandler
}

// Options tune a single completion.
type Options struct {
	Tools       []Tool
	Temperature float64 // 0 uses the client default
	MaxTokens   int     // 0 uses 4096
}

// Request is what the client sends to the backend for one model turn.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []Tool
	Temperature float64
	MaxTokens   int
}

// Reply is one model turn.
type Reply struct {
	Text         string
	ToolCalls    []ToolCall
	StopReason   string
	InputTokens  int64
	OutputTokens int64
}

// Backend sends one request to a model provider.
type Backend interface {
	Send(ctx context.Context, req Request) (*Reply, error)
}

// Completer is the interface content producers depend on.
type Completer interface {
	Complete(ctx context.Context, system string, conversation []Message, opts Options) (string, error)
}

// Config holds client configuration
type Config struct {
	APIKey            string       // Anthropic API key (required unless Backend is set)
	Model             string       // default: DefaultModel
	MaxToolIterations int          // default: DefaultMaxToolIterations
	Temperature       float64      // default temperature for completions
	RequestsPerMinute int          // 0 = unpaced
	Retry             retry.Policy // uses retry.DefaultPolicy when MaxRetries is 0
	Backend           Backend      // overrides the Anthropic backend (tests)
	Logger            *slog.Logger
}

// Usage is the cumulative token count of a client.
type Usage struct {
	Requests     int
	InputTokens  int64
	OutputTokens int64
}

// Client runs completions against a Backend.
type Client struct {
	backend       Backend
	model         string
	maxIterations int
	temperature   float64
	caller        *retry.Caller
	logger        *slog.Logger

	mu    sync.Mutex
	usage Usage
}

var _ Completer = (*Client)(nil)

// NewClient creates a client from the configuration.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == nil {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		backend = newAnthropicBackend(cfg.APIKey)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	maxIterations := cfg.MaxToolIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxToolIterations
	}

	policy := cfg.Retry
	if policy.MaxRetries == 0 {
		policy = retry.DefaultPolicy()
	}
	if cfg.RequestsPerMinute > 0 {
		policy.RequestsPerMinute = cfg.RequestsPerMinute
	}
	logger = logger.With("component", "ai")

	return &Client{
		backend:       backend,
		model:         model,
		maxIterations: maxIterations,
		temperature:   cfg.Temperature,
		caller:        retry.New("anthropic", policy, isRetriableError, logger),
		logger:        logger,
	}, nil
}

// Model returns the model id requests are sent with.
func (c *Client) Model() string {
	return c.model
}

// Usage returns the token totals of every request made so far.
func (c *Client) Usage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Complete runs a conversation to its final text answer. When the model asks
// for tools, their handlers run and the results are sent back. At most
// MaxToolIterations requests are made.
func (c *Client) Complete(ctx context.Context, system string, conversation []Message, opts Options) (string, error) {
	if len(conversation) == 0 {
		return "", fmt.Errorf("conversation is empty")
	}

	tools := make(map[string]Tool, len(opts.Tools))
	for _, t := range opts.Tools {
		tools[t.Name] = t
	}

	req := Request{
		Model:       c.model,
		System:      system,
		Messages:    append([]Message(nil), conversation...),
		Tools:       opts.Tools,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if req.Temperature == 0 {
		req.Temperature = c.temperature
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultMaxTokens
	}

	for round := 0; ; round++ {
		var reply *Reply
		err := c.caller.Do(ctx, "complete", func(attemptCtx context.Context) error {
			r, err := c.backend.Send(attemptCtx, req)
			if err != nil {
				return err
			}
			reply = r
			return nil
		})
		if err != nil {
			return "", err
		}
		c.record(reply)

		if done, err := finished(reply); done {
			return reply.Text, err
		}

		if round+1 >= c.maxIterations {
			return "", fmt.Errorf("%w (%d)", ErrToolLoopExhausted, c.maxIterations)
		}

		req.Messages = append(req.Messages, Message{
			Role:      RoleAssistant,
			Text:      reply.Text,
			ToolCalls: reply.ToolCalls,
		})

		results := make([]ToolResult, 0, len(reply.ToolCalls))
		for _, call := range reply.ToolCalls {
			results = append(results, c.runTool(ctx, tools, call))
		}
		req.Messages = append(req.Messages, Message{Role: RoleUser, ToolResults: results})
	}
}

// finished is the loop's termination predicate.
func finished(reply *Reply) (bool, error) {
	switch reply.StopReason {
	case StopToolUse:
		if len(reply.ToolCalls) == 0 {
			return true, nil
		}
		return false, nil
	case StopMaxTokens:
		return true, ErrTruncated
	}
	return true, nil
}

func (c *Client) runTool(ctx context.Context, tools map[string]Tool, call ToolCall) ToolResult {
	tool, ok := tools[call.Name]
	if !ok || tool.Handler == nil {
		c.logger.Warn("model called unknown tool", "tool", call.Name)
		return ToolResult{CallID: call.ID, Content: fmt.Sprintf("Error: unknown tool %q", call.Name), IsError: true}
	}

	out, err := tool.Handler(ctx, call.Input)
	if err != nil {
		c.logger.Warn("tool execution failed", "tool", call.Name, "error", err)
		return ToolResult{CallID: call.ID, Content: fmt.Sprintf("Error: %v", err), IsError: true}
	}
	c.logger.Debug("tool executed", "tool", call.Name)
	return ToolResult{CallID: call.ID, Content: out}
}

func (c *Client) record(reply *Reply) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usage.Requests++
	c.usage.InputTokens += reply.InputTokens
	c.usage.OutputTokens += reply.OutputTokens
}
