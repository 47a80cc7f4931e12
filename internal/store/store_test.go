package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avi3tal/agentgraph/internal/config"
	"github.com/avi3tal/agentgraph/internal/conversation"
	"github.com/avi3tal/agentgraph/internal/graph"
)

// runStoreSuite exercises the Store contract against a fresh store.
func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
	t.Run("agents and tools", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		_, err := s.CreateAgent(ctx, graph.Agent{Name: "  "})
		require.ErrorIs(t, err, ErrInvalidRecord)
		_, err = s.CreateTool(ctx, graph.Tool{Name: "celsius"})
		require.ErrorIs(t, err, ErrInvalidRecord)

		toolID, err := s.CreateTool(ctx, graph.Tool{Name: "celsius", Description: "converts", Kind: "temperature"})
		require.NoError(t, err)
		tools, err := s.LoadTools(ctx)
		require.NoError(t, err)
		require.Len(t, tools, 1)
		assert.Equal(t, graph.Tool{ID: toolID, Name: "celsius", Description: "converts", Kind: "temperature"}, tools[0])

		_, err = s.CreateAgent(ctx, graph.Agent{Name: "Ghost", Tools: []string{"missing-tool"}})
		require.ErrorIs(t, err, ErrNotFound)

		triage, err := s.CreateAgent(ctx, graph.Agent{Name: "Triage", Description: "routes", Prompt: "You route."})
		require.NoError(t, err)
		billing, err := s.CreateAgent(ctx, graph.Agent{Name: "Billing", Tools: []string{toolID, toolID}})
		require.NoError(t, err)

		agents, err := s.LoadAgents(ctx)
		require.NoError(t, err)
		require.Len(t, agents, 2)
		assert.Equal(t, []string{triage, billing}, []string{agents[0].ID, agents[1].ID}, "creation order")
		assert.Equal(t, "You route.", agents[0].Prompt)
		assert.Empty(t, agents[0].Tools)
		assert.Equal(t, []string{toolID}, agents[1].Tools)

		require.NoError(t, s.SetAgentTools(ctx, triage, []string{toolID}))
		got, err := s.GetAgent(ctx, triage)
		require.NoError(t, err)
		assert.Equal(t, []string{toolID}, got.Tools)

		require.ErrorIs(t, s.SetAgentTools(ctx, triage, []string{"missing-tool"}), ErrNotFound)
		require.ErrorIs(t, s.SetAgentTools(ctx, uuid.NewString(), nil), ErrNotFound)

		require.NoError(t, s.SetAgentTools(ctx, triage, nil))
		got, err = s.GetAgent(ctx, triage)
		require.NoError(t, err)
		assert.Empty(t, got.Tools, "tool mapping replaces the set wholesale")

		_, err = s.GetAgent(ctx, "does-not-exist")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("workflows", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		wf := &graph.Workflow{
			Name:        "support",
			Description: "customer support",
			Nodes: []graph.Node{
				{AgentID: "triage", Name: "Triage", Description: "routes", Connects: []string{"billing", "tech"}},
				{AgentID: "billing", Name: "Billing", Connects: []string{}},
				{AgentID: "tech", Name: "Tech", Connects: []string{"triage"}},
			},
		}
		id, err := s.SaveWorkflow(ctx, wf)
		require.NoError(t, err)
		require.NotEmpty(t, id)
		assert.Empty(t, wf.ID, "the caller's workflow is not modified")

		loaded, err := s.LoadWorkflow(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, loaded.ID)
		assert.Equal(t, wf.Name, loaded.Name)
		assert.Equal(t, wf.Description, loaded.Description)
		require.Len(t, loaded.Nodes, 3)
		for i, n := range wf.Nodes {
			assert.Equal(t, n.AgentID, loaded.Nodes[i].AgentID)
			assert.Equal(t, n.Name, loaded.Nodes[i].Name)
			assert.Equal(t, n.Description, loaded.Nodes[i].Description)
			assert.ElementsMatch(t, n.Connects, loaded.Nodes[i].Connects)
		}

		loaded.Description = "updated"
		again, err := s.SaveWorkflow(ctx, loaded)
		require.NoError(t, err)
		assert.Equal(t, id, again)

		second, err := s.SaveWorkflow(ctx, &graph.Workflow{Name: "solo", Nodes: []graph.Node{{AgentID: "x", Name: "X"}}})
		require.NoError(t, err)

		all, err := s.LoadWorkflows(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, id, all[0].ID)
		assert.Equal(t, "updated", all[0].Description)
		assert.Equal(t, second, all[1].ID)

		_, err = s.SaveWorkflow(ctx, &graph.Workflow{Name: "bad", Nodes: []graph.Node{{AgentID: "a", Connects: []string{"a"}}}})
		require.ErrorIs(t, err, graph.ErrSelfLoop)
		_, err = s.SaveWorkflow(ctx, &graph.Workflow{Name: "empty"})
		require.ErrorIs(t, err, graph.ErrEmptyWorkflow)
		_, err = s.SaveWorkflow(ctx, &graph.Workflow{Nodes: []graph.Node{{AgentID: "a"}}})
		require.ErrorIs(t, err, ErrInvalidRecord)

		_, err = s.LoadWorkflow(ctx, "does-not-exist")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("runs", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		start := time.Now().Truncate(time.Millisecond)
		rec := RunRecord{
			RunID:      uuid.NewString(),
			WorkflowID: "wf-1",
			Reason:     "node_failure",
			Error:      "tool crashed",
			Steps:      1,
			Messages: []conversation.Message{
				{Role: conversation.RoleUser, Name: "user", Content: "my router is down"},
				{Role: conversation.RoleRoutingAuthority, Name: "supervisor", Content: "reboot"},
				{Role: conversation.RoleNodeOutput, Name: "Tech", NodeID: "tech", Content: "node 'Tech' failed", Failure: true},
			},
			StartedAt: start,
			EndedAt:   start.Add(1500 * time.Millisecond),
		}
		require.NoError(t, s.SaveRun(ctx, rec))

		got, err := s.LoadRun(ctx, rec.RunID)
		require.NoError(t, err)
		assert.Equal(t, rec.WorkflowID, got.WorkflowID)
		assert.Equal(t, rec.Reason, got.Reason)
		assert.Equal(t, rec.Error, got.Error)
		assert.Equal(t, rec.Steps, got.Steps)
		assert.Equal(t, rec.Messages, got.Messages)
		assert.True(t, rec.StartedAt.Equal(got.StartedAt), "started %v, got %v", rec.StartedAt, got.StartedAt)
		assert.True(t, rec.EndedAt.Equal(got.EndedAt))

		rec.Reason = "completed"
		rec.Error = ""
		require.NoError(t, s.SaveRun(ctx, rec))
		got, err = s.LoadRun(ctx, rec.RunID)
		require.NoError(t, err)
		assert.Equal(t, "completed", got.Reason)
		assert.Empty(t, got.Error)

		require.ErrorIs(t, s.SaveRun(ctx, RunRecord{}), ErrInvalidRecord)
		_, err = s.LoadRun(ctx, "unknown")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	runStoreSuite(t, func(t *testing.T) Store {
		return NewMemory()
	})
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "agentgraph.db"), nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteInMemory(t *testing.T) {
	t.Parallel()
	s, err := NewSQLite(":memory:", nil)
	require.NoError(t, err)
	defer s.Close()

	id, err := s.CreateTool(context.Background(), graph.Tool{Name: "mail", Kind: "email"})
	require.NoError(t, err)
	tools, err := s.LoadTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, id, tools[0].ID)
}

func TestSQLiteReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "agentgraph.db")
	ctx := context.Background()

	s, err := NewSQLite(path, nil)
	require.NoError(t, err)
	id, err := s.SaveWorkflow(ctx, &graph.Workflow{Name: "solo", Nodes: []graph.Node{{AgentID: "x", Name: "X"}}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLite(path, nil)
	require.NoError(t, err)
	defer s.Close()
	wf, err := s.LoadWorkflow(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "solo", wf.Name)
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("AGENTGRAPH_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("AGENTGRAPH_TEST_MONGO_URI not set")
	}
	runStoreSuite(t, func(t *testing.T) Store {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s, err := NewMongo(ctx, uri, "agentgraph_test_"+uuid.NewString()[:8], nil)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.Drop(context.Background())
			_ = s.Close()
		})
		return s
	})
}

func TestOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, err := Open(ctx, config.StoreConfig{Driver: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(ctx, config.StoreConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "a.db")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, config.StoreConfig{Driver: "postgres"}, nil)
	require.Error(t, err)
}
