// Package agents runs workflow nodes against a language model.
package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
	"go.uber.org/zap"

	"github.com/avi3tal/agentgraph/internal/conversation"
	"github.com/avi3tal/agentgraph/internal/engine"
	"github.com/avi3tal/agentgraph/internal/graph"
	"github.com/avi3tal/agentgraph/internal/toolbox"
)

const DefaultMaxIterations = 8

var (
	ErrUnknownAgent     = errors.New("agent is not registered")
	ErrEmptyResponse    = errors.New("model returned no choices")
	ErrUnknownToolCall  = errors.New("model called a tool the agent does not have")
	ErrTooManyToolCalls = errors.New("agent did not answer within the tool call budget")
)

// Executor answers for a node by prompting the node's agent. Agents are
// captured when the executor is created, so a run sees a stable snapshot.
type Executor struct {
	model         llms.Model
	agents        map[string]graph.Agent
	resolver      *toolbox.Resolver
	logger        *zap.Logger
	maxIterations int
}

var _ engine.NodeExecutor = (*Executor)(nil)

type Option func(*Executor)

func WithLogger(l *zap.Logger) Option {
	return func(x *Executor) {
		if l != nil {
			x.logger = l
		}
	}
}

// WithMaxIterations bounds the model calls made for one node answer.
func WithMaxIterations(n int) Option {
	return func(x *Executor) {
		if n > 0 {
			x.maxIterations = n
		}
	}
}

func NewExecutor(model llms.Model, agents []graph.Agent, resolver *toolbox.Resolver, opts ...Option) *Executor {
	x := &Executor{
		model:         model,
		agents:        make(map[string]graph.Agent, len(agents)),
		resolver:      resolver,
		logger:        zap.NewNop(),
		maxIterations: DefaultMaxIterations,
	}
	for _, a := range agents {
		x.agents[a.ID] = a.Clone()
	}
	for _, o := range opts {
		o(x)
	}
	x.logger = x.logger.With(zap.String("component", "agents"))
	return x
}

func (x *Executor) Run(ctx context.Context, node graph.Node, msgs []conversation.Message) (conversation.Message, error) {
	agent, ok := x.agents[node.AgentID]
	if !ok {
		return conversation.Message{}, fmt.Errorf("%s: %w", node.AgentID, ErrUnknownAgent)
	}

	toolset, err := x.tools(agent)
	if err != nil {
		return conversation.Message{}, err
	}
	defs, byName := definitions(toolset)

	content := make([]llms.MessageContent, 0, len(msgs)+1)
	if prompt := strings.TrimSpace(agent.Prompt); prompt != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, prompt))
	}
	content = append(content, conversation.ToLLM(msgs)...)

	var opts []llms.CallOption
	if len(defs) > 0 {
		opts = append(opts, llms.WithTools(defs))
	}

	for i := 0; i < x.maxIterations; i++ {
		resp, err := x.model.GenerateContent(ctx, content, opts...)
		if err != nil {
			return conversation.Message{}, fmt.Errorf("agent %q: %w", agent.Name, err)
		}
		if resp == nil || len(resp.Choices) == 0 {
			return conversation.Message{}, fmt.Errorf("agent %q: %w", agent.Name, ErrEmptyResponse)
		}

		choice := resp.Choices[0]
		if len(choice.ToolCalls) == 0 {
			return conversation.Message{
				Role:    conversation.RoleNodeOutput,
				Name:    node.Name,
				Content: choice.Content,
			}, nil
		}

		call := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		for _, tc := range choice.ToolCalls {
			call.Parts = append(call.Parts, tc)
		}
		content = append(content, call)

		for _, tc := range choice.ToolCalls {
			out, err := x.invoke(ctx, byName, tc)
			if err != nil {
				return conversation.Message{}, fmt.Errorf("agent %q: %w", agent.Name, err)
			}
			content = append(content, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: tc.ID,
					Name:       tc.FunctionCall.Name,
					Content:    out,
				}},
			})
		}
	}
	return conversation.Message{}, fmt.Errorf("agent %q: %w", agent.Name, ErrTooManyToolCalls)
}

func (x *Executor) tools(agent graph.Agent) ([]tools.Tool, error) {
	if len(agent.Tools) == 0 {
		return nil, nil
	}
	if x.resolver == nil {
		return nil, fmt.Errorf("agent %q has tools but no resolver is configured", agent.Name)
	}
	ts, err := x.resolver.Resolve(agent.Tools)
	if err != nil {
		return nil, fmt.Errorf("agent %q: %w", agent.Name, err)
	}
	return ts, nil
}

func (x *Executor) invoke(ctx context.Context, byName map[string]tools.Tool, tc llms.ToolCall) (string, error) {
	if tc.FunctionCall == nil {
		return "", fmt.Errorf("tool call %q has no function: %w", tc.ID, ErrUnknownToolCall)
	}
	t, ok := byName[tc.FunctionCall.Name]
	if !ok {
		return "", fmt.Errorf("%s: %w", tc.FunctionCall.Name, ErrUnknownToolCall)
	}

	input := toolInput(tc.FunctionCall.Arguments)
	x.logger.Debug("calling tool", zap.String("tool", tc.FunctionCall.Name), zap.String("input", input))
	out, err := t.Call(ctx, input)
	if err != nil {
		return "", fmt.Errorf("tool %q: %w", tc.FunctionCall.Name, err)
	}
	return out, nil
}

// definitions describes tools to the model. Every tool takes one string.
func definitions(ts []tools.Tool) ([]llms.Tool, map[string]tools.Tool) {
	defs := make([]llms.Tool, 0, len(ts))
	byName := make(map[string]tools.Tool, len(ts))
	for _, t := range ts {
		name := FunctionName(t.Name())
		byName[name] = t
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        name,
				Description: t.Description(),
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"input": map[string]any{
							"type":        "string",
							"description": "input for the tool",
						},
					},
					"required": []string{"input"},
				},
			},
		})
	}
	return defs, byName
}

// FunctionName maps a tool name onto the characters models accept for
// function names.
func FunctionName(name string) string {
	var sb strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	if sb.Len() == 0 {
		return "tool"
	}
	return sb.String()
}

func toolInput(args string) string {
	var in struct {
		Input *string `json:"input"`
	}
	if err := json.Unmarshal([]byte(args), &in); err == nil && in.Input != nil {
		return *in.Input
	}
	return args
}
