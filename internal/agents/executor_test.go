package agents

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/avi3tal/agentgraph/internal/conversation"
	"github.com/avi3tal/agentgraph/internal/graph"
	"github.com/avi3tal/agentgraph/internal/toolbox"
)

// scriptedModel returns one prepared choice per call.
type scriptedModel struct {
	mu      sync.Mutex
	choices []*llms.ContentChoice
	err     error
	seen    [][]llms.MessageContent
	opts    []llms.CallOptions
}

func (m *scriptedModel) GenerateContent(_ context.Context, msgs []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var o llms.CallOptions
	for _, opt := range options {
		opt(&o)
	}
	m.seen = append(m.seen, append([]llms.MessageContent(nil), msgs...))
	m.opts = append(m.opts, o)

	if m.err != nil {
		return nil, m.err
	}
	if len(m.choices) == 0 {
		return &llms.ContentResponse{}, nil
	}
	c := m.choices[0]
	m.choices = m.choices[1:]
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{c}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func toolCall(id, name, args string) *llms.ContentChoice {
	return &llms.ContentChoice{ToolCalls: []llms.ToolCall{{
		ID:           id,
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
	}}}
}

func fixture() ([]graph.Agent, *toolbox.Resolver) {
	agents := []graph.Agent{
		{ID: "a-weather", Name: "Weather", Prompt: "You convert temperatures.", Tools: []string{"t-temp"}},
		{ID: "a-chat", Name: "Chat"},
		{ID: "a-broken", Name: "Broken", Tools: []string{"t-missing"}},
	}
	records := []graph.Tool{{ID: "t-temp", Name: "celsius to fahrenheit", Kind: toolbox.KindTemperature}}
	return agents, toolbox.NewResolver(toolbox.Builtin(), records)
}

func history(text string) []conversation.Message {
	return []conversation.Message{
		{Role: conversation.RoleUser, Name: "user", Content: text},
		{Role: conversation.RoleRoutingAuthority, Name: "supervisor", Content: text},
	}
}

func TestExecutorPlainAnswer(t *testing.T) {
	t.Parallel()

	agents, resolver := fixture()
	model := &scriptedModel{choices: []*llms.ContentChoice{{Content: "hello there"}}}
	x := NewExecutor(model, agents, resolver)

	msg, err := x.Run(context.Background(), graph.Node{AgentID: "a-chat", Name: "Chat"}, history("hi"))
	require.NoError(t, err)
	assert.Equal(t, conversation.RoleNodeOutput, msg.Role)
	assert.Equal(t, "Chat", msg.Name)
	assert.Equal(t, "hello there", msg.Content)

	require.Len(t, model.seen, 1)
	assert.Len(t, model.seen[0], 2, "no system message for an agent without a prompt")
	assert.Empty(t, model.opts[0].Tools)
}

func TestExecutorToolLoop(t *testing.T) {
	t.Parallel()

	agents, resolver := fixture()
	model := &scriptedModel{choices: []*llms.ContentChoice{
		toolCall("call-1", "celsius_to_fahrenheit", `{"input":"100"}`),
		{Content: "100°C is 212°F."},
	}}
	x := NewExecutor(model, agents, resolver)

	msg, err := x.Run(context.Background(), graph.Node{AgentID: "a-weather", Name: "Weather"}, history("convert 100C"))
	require.NoError(t, err)
	assert.Equal(t, "100°C is 212°F.", msg.Content)

	require.Len(t, model.opts, 2)
	require.Len(t, model.opts[0].Tools, 1)
	assert.Equal(t, "celsius_to_fahrenheit", model.opts[0].Tools[0].Function.Name)

	second := model.seen[1]
	assert.Equal(t, llms.ChatMessageTypeSystem, second[0].Role)
	last := second[len(second)-1]
	assert.Equal(t, llms.ChatMessageTypeTool, last.Role)
	resp, ok := last.Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "call-1", resp.ToolCallID)
	assert.Equal(t, "100°C = 212.00°F", resp.Content)
}

func TestExecutorFailures(t *testing.T) {
	t.Parallel()

	agents, resolver := fixture()
	boom := errors.New("upstream 500")

	tests := []struct {
		name  string
		node  graph.Node
		model *scriptedModel
		opts  []Option
		err   error
	}{
		{name: "unknown agent", node: graph.Node{AgentID: "nope"}, model: &scriptedModel{}, err: ErrUnknownAgent},
		{name: "unresolvable tool", node: graph.Node{AgentID: "a-broken"}, model: &scriptedModel{}, err: toolbox.ErrUnknownTool},
		{name: "model error", node: graph.Node{AgentID: "a-chat"}, model: &scriptedModel{err: boom}, err: boom},
		{name: "no choices", node: graph.Node{AgentID: "a-chat"}, model: &scriptedModel{}, err: ErrEmptyResponse},
		{
			name:  "tool not granted",
			node:  graph.Node{AgentID: "a-weather"},
			model: &scriptedModel{choices: []*llms.ContentChoice{toolCall("c", "email_validator", `{"input":"x"}`)}},
			err:   ErrUnknownToolCall,
		},
		{
			name: "tool loop budget",
			node: graph.Node{AgentID: "a-weather"},
			model: &scriptedModel{choices: []*llms.ContentChoice{
				toolCall("c1", "celsius_to_fahrenheit", `{"input":"1"}`),
				toolCall("c2", "celsius_to_fahrenheit", `{"input":"2"}`),
			}},
			opts: []Option{WithMaxIterations(2)},
			err:  ErrTooManyToolCalls,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			x := NewExecutor(tt.model, agents, resolver, tt.opts...)
			_, err := x.Run(context.Background(), tt.node, history("hi"))
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestFunctionName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "celsius_to_fahrenheit", FunctionName(" celsius to fahrenheit "))
	assert.Equal(t, "email-check_2", FunctionName("email-check_2"))
	assert.Equal(t, "tool", FunctionName("   "))
}

func TestToolInput(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "100", toolInput(`{"input":"100"}`))
	assert.Equal(t, "raw text", toolInput("raw text"))
	assert.Equal(t, `{"celsius":3}`, toolInput(`{"celsius":3}`))
}
