package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/avi3tal/agentgraph/internal/conversation"
)

// Phase is a state of the run state machine
type Phase string

const (
	PhaseRouting     Phase = "routing"
	PhaseDispatching Phase = "dispatching"
	PhaseTerminated  Phase = "terminated"
)

// Reason explains why a run terminated
type Reason string

const (
	ReasonCompleted      Reason = "completed"
	ReasonPolicyFailure  Reason = "policy_failure"
	ReasonInvalidRouting Reason = "invalid_routing"
	ReasonNodeFailure    Reason = "node_failure"
	ReasonCancelled      Reason = "cancelled"
	ReasonStepLimit      Reason = "step_limit"
)

var (
	// ErrNilWorkflow is returned when Run is called without a workflow
	ErrNilWorkflow = errors.New("workflow is nil")

	// ErrEmptyInput is returned when the seed user text is blank
	ErrEmptyInput = errors.New("initial user text is empty")

	// ErrUnknownTarget is the cause of InvalidRouting when the target is not a node
	ErrUnknownTarget = errors.New("routing target is not a node of the workflow")

	// ErrUnreachableTarget is the cause of InvalidRouting when the target is not
	// among the active node's connects
	ErrUnreachableTarget = errors.New("routing target is not reachable from the active node")

	// ErrStepLimit is the cause of a StepLimit termination
	ErrStepLimit = errors.New("maximum number of steps reached")
)

// RunError describes a failed run. It carries the decision or node that
// triggered the termination.
type RunError struct {
	RunID    string
	Reason   Reason
	Node     string    // agent id of the node involved, if any
	Attempts int       // routing attempts made, for PolicyFailure
	Decision *Decision // offending decision, for InvalidRouting
	Err      error
}

func (e *RunError) Error() string {
	switch e.Reason {
	case ReasonPolicyFailure:
		return fmt.Sprintf("run failed: %s after %d attempts: %v", e.Reason, e.Attempts, e.Err)
	case ReasonInvalidRouting:
		target := ""
		if e.Decision != nil {
			target = e.Decision.Target
		}
		return fmt.Sprintf("run failed: %s: target '%s' from node '%s': %v", e.Reason, target, e.Node, e.Err)
	default:
		if e.Node != "" {
			return fmt.Sprintf("run failed: %s: node '%s': %v", e.Reason, e.Node, e.Err)
		}
		return fmt.Sprintf("run failed: %s: %v", e.Reason, e.Err)
	}
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Result is the terminal state of a run
type Result struct {
	RunID      string
	WorkflowID string
	Reason     Reason
	// FinalText is the text surfaced to the user on completion
	FinalText string
	// Messages is the conversation at termination, including partial
	// progress of failed runs
	Messages     []conversation.Message
	LastDecision *Decision
	Steps        int
	// Err is a *RunError for failed runs; nil for completed or cancelled runs
	Err       error
	StartedAt time.Time
	EndedAt   time.Time
}

// Completed reports whether the run ended on FINISH
func (r *Result) Completed() bool {
	return r.Reason == ReasonCompleted
}
