package engine

import (
	"context"
	"strings"

	"github.com/avi3tal/agentgraph/internal/conversation"
	"github.com/avi3tal/agentgraph/internal/graph"
)

// Decision is the output of one routing call.
type Decision struct {
	// Target is graph.Finish or the agent id of the next node
	Target string `json:"next_node"`
	// Instructions are handed to the next node
	Instructions string `json:"instructions"`
	// Reasoning is diagnostic only and never drives control flow
	Reasoning string `json:"reasoning"`
	// DirectResponse is shown to the user when Target is graph.Finish
	DirectResponse string `json:"direct_response,omitempty"`
}

// IsFinish reports whether the decision ends the run.
func (d Decision) IsFinish() bool {
	return strings.TrimSpace(d.Target) == graph.Finish
}

// RoutingPolicy picks the next node, or FINISH, from the conversation so far.
// Implementations may be slow, non-deterministic and may fail; the engine
// retries failures with backoff.
type RoutingPolicy interface {
	Decide(ctx context.Context, msgs []conversation.Message, wf *graph.Workflow) (Decision, error)
}

// NodeExecutor runs a node's capability against the conversation so far.
type NodeExecutor interface {
	Run(ctx context.Context, node graph.Node, msgs []conversation.Message) (conversation.Message, error)
}

// RoutingPolicyFunc adapts a function to RoutingPolicy.
type RoutingPolicyFunc func(ctx context.Context, msgs []conversation.Message, wf *graph.Workflow) (Decision, error)

func (f RoutingPolicyFunc) Decide(ctx context.Context, msgs []conversation.Message, wf *graph.Workflow) (Decision, error) {
	return f(ctx, msgs, wf)
}

// NodeExecutorFunc adapts a function to NodeExecutor.
type NodeExecutorFunc func(ctx context.Context, node graph.Node, msgs []conversation.Message) (conversation.Message, error)

func (f NodeExecutorFunc) Run(ctx context.Context, node graph.Node, msgs []conversation.Message) (conversation.Message, error) {
	return f(ctx, node, msgs)
}

// Recorder receives run telemetry. internal/metrics.Collector implements it.
type Recorder interface {
	RunFinished(workflow string, reason Reason, steps int)
	DecisionMade(workflow, outcome string)
	PolicyRetried(workflow string)
	NodeDispatched(workflow, node string, seconds float64, err error)
}

type nopRecorder struct{}

func (nopRecorder) RunFinished(string, Reason, int)               {}
func (nopRecorder) DecisionMade(string, string)                   {}
func (nopRecorder) PolicyRetried(string)                          {}
func (nopRecorder) NodeDispatched(string, string, float64, error) {}
