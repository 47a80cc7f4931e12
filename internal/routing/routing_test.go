package routing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/avi3tal/agentgraph/internal/conversation"
	"github.com/avi3tal/agentgraph/internal/engine"
	"github.com/avi3tal/agentgraph/internal/graph"
)

type stubModel struct {
	mu      sync.Mutex
	replies []string
	err     error
	seen    [][]llms.MessageContent
	opts    []llms.CallOptions
}

func (m *stubModel) GenerateContent(_ context.Context, msgs []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var o llms.CallOptions
	for _, opt := range options {
		opt(&o)
	}
	m.seen = append(m.seen, msgs)
	m.opts = append(m.opts, o)

	if m.err != nil {
		return nil, m.err
	}
	if len(m.replies) == 0 {
		return &llms.ContentResponse{}, nil
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (m *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func supportWorkflow() *graph.Workflow {
	return &graph.Workflow{
		Name:        "support",
		Description: "customer support",
		Nodes: []graph.Node{
			{AgentID: "triage", Name: "Triage", Description: "routes requests", Connects: []string{"billing", "tech"}},
			{AgentID: "billing", Name: "Billing", Description: "handles invoices"},
			{AgentID: "tech", Name: "Tech", Description: "fixes outages"},
		},
	}
}

func TestParseDecision(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want engine.Decision
		err  bool
	}{
		{
			name: "plain",
			in:   `{"next_node":"billing","reasoning":"invoice","instructions":"resolve invoice dispute"}`,
			want: engine.Decision{Target: "billing", Reasoning: "invoice", Instructions: "resolve invoice dispute"},
		},
		{
			name: "fenced",
			in:   "```json\n{\"next_node\": \"FINISH\", \"direct_response\": \"Refund issued.\"}\n```",
			want: engine.Decision{Target: graph.Finish, DirectResponse: "Refund issued."},
		},
		{
			name: "lowercase finish with prose",
			in:   `Sure! {"next_node": " finish ", "reasoning": "done"} Hope that helps.`,
			want: engine.Decision{Target: graph.Finish, Reasoning: "done"},
		},
		{name: "missing target", in: `{"reasoning":"hm"}`, err: true},
		{name: "no json", in: "I think billing", err: true},
		{name: "broken json", in: `{"next_node": }`, err: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDecision(tt.in)
			if tt.err {
				require.ErrorIs(t, err, ErrMalformedDecision)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLLMPolicyDecide(t *testing.T) {
	t.Parallel()

	model := &stubModel{replies: []string{`{"next_node":"billing","reasoning":"r","instructions":"resolve invoice dispute"}`}}
	p := NewLLMPolicy(model, WithTemperature(0.2))

	msgs := []conversation.Message{{Role: conversation.RoleUser, Name: "user", Content: "my invoice is wrong"}}
	d, err := p.Decide(context.Background(), msgs, supportWorkflow())
	require.NoError(t, err)
	assert.Equal(t, "billing", d.Target)
	assert.Equal(t, "resolve invoice dispute", d.Instructions)

	require.Len(t, model.seen, 1)
	sent := model.seen[0]
	require.Len(t, sent, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, sent[0].Role)
	system := sent[0].Parts[0].(llms.TextContent).Text
	assert.Contains(t, system, `"node": "triage"`)
	assert.Contains(t, system, `"connects": [`)
	assert.Contains(t, system, "No node has worked yet.")
	assert.Equal(t, llms.ChatMessageTypeHuman, sent[1].Role)

	assert.True(t, model.opts[0].JSONMode)
	assert.InDelta(t, 0.2, model.opts[0].Temperature, 1e-9)
}

func TestLLMPolicyErrors(t *testing.T) {
	t.Parallel()
	msgs := []conversation.Message{{Role: conversation.RoleUser, Name: "user", Content: "hi"}}

	boom := errors.New("rate limited")
	_, err := NewLLMPolicy(&stubModel{err: boom}).Decide(context.Background(), msgs, supportWorkflow())
	require.ErrorIs(t, err, boom)

	_, err = NewLLMPolicy(&stubModel{}).Decide(context.Background(), msgs, supportWorkflow())
	require.ErrorIs(t, err, ErrEmptyResponse)

	_, err = NewLLMPolicy(&stubModel{replies: []string{"billing please"}}).Decide(context.Background(), msgs, supportWorkflow())
	require.ErrorIs(t, err, ErrMalformedDecision)
}

func TestSupervisorPromptNamesActiveNode(t *testing.T) {
	t.Parallel()

	msgs := []conversation.Message{
		{Role: conversation.RoleUser, Name: "user", Content: "help"},
		{Role: conversation.RoleRoutingAuthority, Name: "supervisor", Content: "look"},
		{Role: conversation.RoleNodeOutput, Name: "Triage", NodeID: "triage", Content: "billing issue"},
		{Role: conversation.RoleRoutingAuthority, Name: "supervisor", Content: "fix"},
		{Role: conversation.RoleNodeOutput, Name: "Billing", NodeID: "billing", Content: "boom", Failure: true},
	}
	prompt, err := SupervisorPrompt(supportWorkflow(), msgs)
	require.NoError(t, err)
	assert.Contains(t, prompt, `"triage" (Triage)`)
	assert.Contains(t, prompt, `"workflow_name": "support"`)
}

func TestScripted(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	s := NewScripted(Route("billing", "go"), Fail(boom), Finish("bye"))
	ctx := context.Background()

	d, err := s.Decide(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "billing", d.Target)

	_, err = s.Decide(ctx, nil, nil)
	require.ErrorIs(t, err, boom)

	d, err = s.Decide(ctx, nil, nil)
	require.NoError(t, err)
	assert.True(t, d.IsFinish())
	assert.Equal(t, "bye", d.DirectResponse)

	_, err = s.Decide(ctx, nil, nil)
	require.ErrorIs(t, err, ErrScriptExhausted)
	assert.Equal(t, 4, s.Calls())
}

func TestTableDrivesEngine(t *testing.T) {
	t.Parallel()

	table := Table{
		"":       {Target: "triage", Instructions: "classify"},
		"triage": {Target: "billing", Instructions: "resolve invoice dispute"},
	}
	exec := engine.NodeExecutorFunc(func(_ context.Context, node graph.Node, _ []conversation.Message) (conversation.Message, error) {
		return conversation.Message{Content: node.Name + " done"}, nil
	})

	e, err := engine.New(table, exec)
	require.NoError(t, err)
	res, err := e.Run(context.Background(), supportWorkflow(), "my invoice is wrong")
	require.NoError(t, err)

	assert.Equal(t, engine.ReasonCompleted, res.Reason)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, "Billing done", res.Messages[len(res.Messages)-1].Content)
}

func TestTableWithSharedNodeNames(t *testing.T) {
	t.Parallel()

	wf := &graph.Workflow{
		Name: "relay",
		Nodes: []graph.Node{
			{AgentID: "a", Name: "Helper", Connects: []string{"b"}},
			{AgentID: "b", Name: "Helper"},
		},
	}
	table := Table{
		"":  {Target: "a", Instructions: "start"},
		"a": {Target: "b", Instructions: "continue"},
		"b": {Target: graph.Finish, DirectResponse: "done"},
	}
	exec := engine.NodeExecutorFunc(func(_ context.Context, node graph.Node, _ []conversation.Message) (conversation.Message, error) {
		return conversation.Message{Content: node.AgentID + " worked"}, nil
	})

	e, err := engine.New(table, exec)
	require.NoError(t, err)
	res, err := e.Run(context.Background(), wf, "go")
	require.NoError(t, err)

	require.Equal(t, engine.ReasonCompleted, res.Reason, "%v", res.Err)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, "done", res.FinalText)

	prompt, err := SupervisorPrompt(wf, res.Messages)
	require.NoError(t, err)
	assert.Contains(t, prompt, `"b" (Helper)`)
}

func TestLLMPolicyDrivesSupportScenario(t *testing.T) {
	t.Parallel()

	model := &stubModel{replies: []string{
		`{"next_node":"billing","reasoning":"invoice","instructions":"resolve invoice dispute"}`,
		`{"next_node":"FINISH","reasoning":"done","instructions":"","direct_response":"Refund issued."}`,
	}}
	exec := engine.NodeExecutorFunc(func(context.Context, graph.Node, []conversation.Message) (conversation.Message, error) {
		return conversation.Message{Content: "refund processed"}, nil
	})

	e, err := engine.New(NewLLMPolicy(model), exec)
	require.NoError(t, err)
	res, err := e.Run(context.Background(), supportWorkflow(), "my invoice is wrong")
	require.NoError(t, err)

	assert.Equal(t, engine.ReasonCompleted, res.Reason)
	assert.Equal(t, "Refund issued.", res.FinalText)
	assert.Len(t, res.Messages, 3)

	require.Len(t, model.seen, 2)
	second := model.seen[1][0].Parts[0].(llms.TextContent).Text
	assert.Contains(t, second, `"billing" (Billing)`)
}
