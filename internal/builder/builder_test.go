package builder

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avi3tal/agentgraph/internal/graph"
)

func registered() []graph.Agent {
	return []graph.Agent{
		{ID: "id-triage", Name: "Triage", Description: "routes customer requests"},
		{ID: "id-billing", Name: "Billing", Description: "handles invoices"},
		{ID: "id-tech", Name: "Tech", Description: "fixes outages"},
		{ID: "id-sales", Name: "Sales"},
	}
}

func TestParseRefs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []int
		err  error
	}{
		{in: "", want: nil},
		{in: "   ", want: nil},
		{in: "1", want: []int{1}},
		{in: " 2 , 3,1 ", want: []int{2, 3, 1}},
		{in: "1,,2", err: ErrUnparseableInput},
		{in: "one", err: ErrUnparseableInput},
		{in: "1 2", err: ErrUnparseableInput},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseRefs(tt.in)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListing(t *testing.T) {
	t.Parallel()
	l := NewListing(registered())

	assert.Equal(t, 4, l.Len())
	id, ok := l.ID(2)
	require.True(t, ok)
	assert.Equal(t, "id-billing", id)

	_, ok = l.Agent(0)
	assert.False(t, ok)
	_, ok = l.Agent(5)
	assert.False(t, ok)

	assert.Equal(t, strings.Join([]string{
		"1. Triage - routes customer requests",
		"2. Billing - handles invoices",
		"3. Tech - fixes outages",
		"4. Sales",
	}, "\n"), l.String())
}

func TestBuildSupportWorkflow(t *testing.T) {
	t.Parallel()

	p := NewScriptedPrompter(
		"support", "customer support",
		"3, 1, 2",
		"2,3,2", // triage, duplicate target collapses
		"",      // billing
		"",      // tech
	)
	wf, err := New(p).Build(context.Background(), Request{Agents: registered()})
	require.NoError(t, err)

	assert.Equal(t, "support", wf.Name)
	assert.Equal(t, "customer support", wf.Description)
	require.Len(t, wf.Nodes, 3)
	assert.Equal(t, []string{"id-triage", "id-billing", "id-tech"}, wf.AgentIDs())

	triage, ok := wf.Node("id-triage")
	require.True(t, ok)
	assert.Equal(t, "Triage", triage.Name)
	assert.Equal(t, "routes customer requests", triage.Description)
	assert.Equal(t, []string{"id-billing", "id-tech"}, triage.Connects)

	billing, _ := wf.Node("id-billing")
	assert.Empty(t, billing.Connects)

	assert.Zero(t, p.Remaining())
	for _, n := range p.Notices() {
		assert.NotContains(t, n, "Please try again")
	}
}

func TestBuildRepromptsInvalidConnects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		bad    string
		notice string
	}{
		{name: "unparseable", bad: "two", notice: "Invalid input"},
		{name: "self loop", bad: "1", notice: "cannot connect to itself"},
		{name: "unselected", bad: "4", notice: "not in the selected workflow"},
		{name: "unknown", bad: "9", notice: "not in the selected workflow"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := NewScriptedPrompter(tt.bad, "2", "")
			wf, err := New(p).Build(context.Background(), Request{
				Name:        "pair",
				Description: "two agents",
				Agents:      registered(),
				Selection:   "1,2",
			})
			require.NoError(t, err)

			first, _ := wf.Node("id-triage")
			assert.Equal(t, []string{"id-billing"}, first.Connects)

			var rejected bool
			for _, n := range p.Notices() {
				if strings.Contains(n, tt.notice) {
					rejected = true
				}
			}
			assert.True(t, rejected, "expected a notice containing %q in %v", tt.notice, p.Notices())

			connectPrompts := 0
			for _, l := range p.Labels() {
				if l == LabelConnects {
					connectPrompts++
				}
			}
			assert.Equal(t, 3, connectPrompts)
		})
	}
}

func TestBuildRejectsSelection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		selection string
		err       error
	}{
		{name: "not numeric", selection: "1,x", err: ErrUnparseableInput},
		{name: "unknown", selection: "1,7", err: ErrUnknownReference},
		{name: "duplicate", selection: "2,2", err: ErrDuplicateReference},
		{name: "zero", selection: "0", err: ErrUnknownReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := NewScriptedPrompter("", "")
			_, err := New(p).Build(context.Background(), Request{
				Name:        "x",
				Description: "y",
				Agents:      registered(),
				Selection:   tt.selection,
			})
			require.ErrorIs(t, err, tt.err)
			assert.Equal(t, 2, p.Remaining(), "no connects are collected for a rejected selection")
		})
	}
}

func TestBuildFailures(t *testing.T) {
	t.Parallel()

	t.Run("no agents", func(t *testing.T) {
		t.Parallel()
		_, err := New(NewScriptedPrompter()).Build(context.Background(), Request{})
		require.ErrorIs(t, err, ErrNoAgents)
	})

	t.Run("blank name", func(t *testing.T) {
		t.Parallel()
		_, err := New(NewScriptedPrompter("  ")).Build(context.Background(), Request{Agents: registered()})
		require.ErrorIs(t, err, ErrEmptyName)
	})

	t.Run("empty selection", func(t *testing.T) {
		t.Parallel()
		_, err := New(NewScriptedPrompter("")).Build(context.Background(), Request{
			Name: "x", Description: "y", Agents: registered(),
		})
		require.ErrorIs(t, err, ErrEmptySelection)
	})

	t.Run("input exhausted", func(t *testing.T) {
		t.Parallel()
		_, err := New(NewScriptedPrompter("self", "1")).Build(context.Background(), Request{
			Name: "x", Description: "y", Agents: registered(), Selection: "1,2",
		})
		require.ErrorIs(t, err, ErrInputExhausted)
	})

	t.Run("too many attempts", func(t *testing.T) {
		t.Parallel()
		_, err := New(NewScriptedPrompter("1", "1", "2"), WithMaxAttempts(2)).Build(context.Background(), Request{
			Name: "x", Description: "y", Agents: registered(), Selection: "1,2",
		})
		require.ErrorIs(t, err, ErrTooManyAttempts)
		require.ErrorIs(t, err, graph.ErrSelfLoop)
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := New(NewScriptedPrompter("2", "")).Build(ctx, Request{
			Name: "x", Description: "y", Agents: registered(), Selection: "1,2",
		})
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestLinePrompter(t *testing.T) {
	t.Parallel()

	in := strings.NewReader("pair\n\n1,2\n2\r\n ")
	var out bytes.Buffer
	wf, err := New(NewLinePrompter(in, &out)).Build(context.Background(), Request{Agents: registered()})
	require.NoError(t, err)

	assert.Equal(t, "pair", wf.Name)
	assert.Empty(t, wf.Description)
	first, _ := wf.Node("id-triage")
	assert.Equal(t, []string{"id-billing"}, first.Connects)

	second, _ := wf.Node("id-billing")
	assert.Empty(t, second.Connects, "end of input after a final line without newline is treated as blank")

	assert.Contains(t, out.String(), "1. Triage - routes customer requests")
	assert.Contains(t, out.String(), "Agent 2 - Billing")
}
