// Package store persists agents, tools, workflows and run records.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avi3tal/agentgraph/internal/conversation"
	"github.com/avi3tal/agentgraph/internal/graph"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidRecord = errors.New("invalid record")
)

// RunRecord is the persisted outcome of one workflow run.
type RunRecord struct {
	RunID      string                 `json:"run_id"`
	WorkflowID string                 `json:"workflow_id"`
	Reason     string                 `json:"reason"`
	FinalText  string                 `json:"final_text,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Steps      int                    `json:"steps"`
	Messages   []conversation.Message `json:"messages"`
	StartedAt  time.Time              `json:"started_at"`
	EndedAt    time.Time              `json:"ended_at"`
}

// Store is the record store used by the CLI and the run entry point.
// Listing methods return records in creation order.
type Store interface {
	// CreateAgent stores a new agent and returns its id.
	CreateAgent(ctx context.Context, a graph.Agent) (string, error)
	GetAgent(ctx context.Context, id string) (graph.Agent, error)
	LoadAgents(ctx context.Context) ([]graph.Agent, error)
	// SetAgentTools replaces the agent's tool set. Every tool must exist.
	SetAgentTools(ctx context.Context, agentID string, toolIDs []string) error

	CreateTool(ctx context.Context, t graph.Tool) (string, error)
	LoadTools(ctx context.Context) ([]graph.Tool, error)

	// SaveWorkflow validates and stores wf, assigning an id when it has none.
	SaveWorkflow(ctx context.Context, wf *graph.Workflow) (string, error)
	LoadWorkflow(ctx context.Context, id string) (*graph.Workflow, error)
	LoadWorkflows(ctx context.Context) ([]*graph.Workflow, error)

	SaveRun(ctx context.Context, r RunRecord) error
	LoadRun(ctx context.Context, runID string) (RunRecord, error)

	Close() error
}

func newID() string {
	return uuid.New().String()
}

func prepareAgent(a graph.Agent) (graph.Agent, error) {
	a = a.Clone()
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return graph.Agent{}, fmt.Errorf("agent name is required: %w", ErrInvalidRecord)
	}
	a.Tools = dedupe(a.Tools)
	return a, nil
}

func prepareTool(t graph.Tool) (graph.Tool, error) {
	t.Name = strings.TrimSpace(t.Name)
	t.Kind = strings.TrimSpace(t.Kind)
	if t.Name == "" || t.Kind == "" {
		return graph.Tool{}, fmt.Errorf("tool name and kind are required: %w", ErrInvalidRecord)
	}
	return t, nil
}

func prepareWorkflow(wf *graph.Workflow) (*graph.Workflow, error) {
	if wf == nil {
		return nil, fmt.Errorf("workflow is nil: %w", ErrInvalidRecord)
	}
	c := wf.Clone()
	if strings.TrimSpace(c.Name) == "" {
		return nil, fmt.Errorf("workflow name is required: %w", ErrInvalidRecord)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func prepareRun(r RunRecord) (RunRecord, error) {
	if r.RunID == "" {
		return RunRecord{}, fmt.Errorf("run id is required: %w", ErrInvalidRecord)
	}
	r.Messages = slices.Clone(r.Messages)
	return r, nil
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
