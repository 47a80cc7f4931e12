package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/avi3tal/agentgraph/internal/graph"
)

// Memory keeps records in process memory.
type Memory struct {
	mu sync.RWMutex

	agents     map[string]graph.Agent
	agentOrder []string

	tools     map[string]graph.Tool
	toolOrder []string

	workflows     map[string]*graph.Workflow
	workflowOrder []string

	runs map[string]RunRecord
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		agents:    make(map[string]graph.Agent),
		tools:     make(map[string]graph.Tool),
		workflows: make(map[string]*graph.Workflow),
		runs:      make(map[string]RunRecord),
	}
}

func (m *Memory) CreateAgent(_ context.Context, a graph.Agent) (string, error) {
	a, err := prepareAgent(a)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkTools(a.Tools); err != nil {
		return "", err
	}
	a.ID = newID()
	m.agents[a.ID] = a
	m.agentOrder = append(m.agentOrder, a.ID)
	return a.ID, nil
}

func (m *Memory) GetAgent(_ context.Context, id string) (graph.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agents[id]
	if !ok {
		return graph.Agent{}, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	return a.Clone(), nil
}

func (m *Memory) LoadAgents(_ context.Context) ([]graph.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]graph.Agent, 0, len(m.agentOrder))
	for _, id := range m.agentOrder {
		out = append(out, m.agents[id].Clone())
	}
	return out, nil
}

func (m *Memory) SetAgentTools(_ context.Context, agentID string, toolIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[agentID]
	if !ok {
		return fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}
	ids := dedupe(toolIDs)
	if err := m.checkTools(ids); err != nil {
		return err
	}
	a.Tools = ids
	m.agents[agentID] = a
	return nil
}

// checkTools must be called with m.mu held.
func (m *Memory) checkTools(ids []string) error {
	for _, id := range ids {
		if _, ok := m.tools[id]; !ok {
			return fmt.Errorf("tool %s: %w", id, ErrNotFound)
		}
	}
	return nil
}

func (m *Memory) CreateTool(_ context.Context, t graph.Tool) (string, error) {
	t, err := prepareTool(t)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t.ID = newID()
	m.tools[t.ID] = t
	m.toolOrder = append(m.toolOrder, t.ID)
	return t.ID, nil
}

func (m *Memory) LoadTools(_ context.Context) ([]graph.Tool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]graph.Tool, 0, len(m.toolOrder))
	for _, id := range m.toolOrder {
		out = append(out, m.tools[id])
	}
	return out, nil
}

func (m *Memory) SaveWorkflow(_ context.Context, wf *graph.Workflow) (string, error) {
	c, err := prepareWorkflow(wf)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		c.ID = newID()
	}
	if _, exists := m.workflows[c.ID]; !exists {
		m.workflowOrder = append(m.workflowOrder, c.ID)
	}
	m.workflows[c.ID] = c
	return c.ID, nil
}

func (m *Memory) LoadWorkflow(_ context.Context, id string) (*graph.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wf, ok := m.workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	return wf.Clone(), nil
}

func (m *Memory) LoadWorkflows(_ context.Context) ([]*graph.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*graph.Workflow, 0, len(m.workflowOrder))
	for _, id := range m.workflowOrder {
		out = append(out, m.workflows[id].Clone())
	}
	return out, nil
}

func (m *Memory) SaveRun(_ context.Context, r RunRecord) error {
	r, err := prepareRun(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.RunID] = r
	return nil
}

func (m *Memory) LoadRun(_ context.Context, runID string) (RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[runID]
	if !ok {
		return RunRecord{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	r.Messages = slices.Clone(r.Messages)
	return r, nil
}

func (m *Memory) Close() error {
	return nil
}
