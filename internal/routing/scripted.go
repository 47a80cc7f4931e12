package routing

import (
	"context"
	"errors"
	"sync"

	"github.com/avi3tal/agentgraph/internal/conversation"
	"github.com/avi3tal/agentgraph/internal/engine"
	"github.com/avi3tal/agentgraph/internal/graph"
)

var ErrScriptExhausted = errors.New("routing script exhausted")

// Step is one scripted routing outcome.
type Step struct {
	Decision engine.Decision
	Err      error
}

func Route(target, instructions string) Step {
	return Step{Decision: engine.Decision{Target: target, Instructions: instructions}}
}

func Finish(response string) Step {
	return Step{Decision: engine.Decision{Target: graph.Finish, DirectResponse: response}}
}

func Fail(err error) Step {
	return Step{Err: err}
}

// Scripted replays steps in order, one per call.
type Scripted struct {
	mu    sync.Mutex
	steps []Step
	calls int
}

var _ engine.RoutingPolicy = (*Scripted)(nil)

func NewScripted(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

func (s *Scripted) Decide(ctx context.Context, _ []conversation.Message, _ *graph.Workflow) (engine.Decision, error) {
	if err := ctx.Err(); err != nil {
		return engine.Decision{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.calls >= len(s.steps) {
		s.calls++
		return engine.Decision{}, ErrScriptExhausted
	}
	step := s.steps[s.calls]
	s.calls++
	return step.Decision, step.Err
}

// Calls returns how often Decide was called.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Table routes on the node that answered last. The entry under the empty key
// is used before any node has answered; a node without an entry finishes
// the run.
type Table map[string]engine.Decision

var _ engine.RoutingPolicy = Table(nil)

func (t Table) Decide(ctx context.Context, msgs []conversation.Message, wf *graph.Workflow) (engine.Decision, error) {
	if err := ctx.Err(); err != nil {
		return engine.Decision{}, err
	}
	var key string
	if active, ok := ActiveNode(msgs, wf); ok {
		key = active.AgentID
	}
	if d, ok := t[key]; ok {
		return d, nil
	}
	return engine.Decision{Target: graph.Finish}, nil
}
