package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/avi3tal/agentgraph/internal/conversation"
	"github.com/avi3tal/agentgraph/internal/graph"
)

// Engine drives workflow runs. It holds no per-run state, so one Engine may
// serve concurrent runs as long as its policy and executor allow it.
type Engine struct {
	policy   RoutingPolicy
	executor NodeExecutor
	config   Config
	logger   *zap.Logger
}

// New creates an engine around the given collaborators.
func New(policy RoutingPolicy, executor NodeExecutor, opts ...Option) (*Engine, error) {
	if policy == nil {
		return nil, errors.New("engine: routing policy is required")
	}
	if executor == nil {
		return nil, errors.New("engine: node executor is required")
	}
	cfg := NewConfig(opts...)
	return &Engine{
		policy:   policy,
		executor: executor,
		config:   cfg,
		logger:   cfg.Logger.With(zap.String("component", "engine")),
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Run executes wf against the user's input until a terminal state is reached.
// The returned error is non-nil only when the run could not start; every
// terminal state, failures included, is reported through Result.Reason.
func (e *Engine) Run(ctx context.Context, wf *graph.Workflow, input string, opts ...RunOption) (*Result, error) {
	if wf == nil {
		return nil, ErrNilWorkflow
	}
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyInput
	}

	// Later edits to wf must not leak into this run.
	snapshot := wf.Clone()
	if err := snapshot.Validate(); err != nil {
		return nil, errors.Wrapf(err, "refusing to run workflow %q", wf.Name)
	}

	rc := newRunConfig(opts...)
	r := &run{
		engine:  e,
		cfg:     e.config,
		wf:      snapshot,
		id:      rc.runID,
		conv:    conversation.New(conversation.WithObserver(rc.observer)),
		started: time.Now(),
		logger: e.logger.With(
			zap.String("run_id", rc.runID),
			zap.String("workflow", snapshot.Name),
		),
	}
	if _, err := r.conv.Append(conversation.RoleUser, rc.userName, input); err != nil {
		return nil, errors.Wrap(err, "seed conversation")
	}

	return r.execute(ctx), nil
}

// run is the state of a single execution. It is confined to one goroutine.
type run struct {
	engine  *Engine
	cfg     Config
	wf      *graph.Workflow
	id      string
	conv    *conversation.State
	logger  *zap.Logger
	started time.Time

	phase    Phase
	active   string // agent id of the last node that answered; empty before the first hop
	target   graph.Node
	decision *Decision
	steps    int
}

func (r *run) execute(ctx context.Context) *Result {
	r.logger.Info("run started", zap.Int("nodes", len(r.wf.Nodes)))
	r.transition(PhaseRouting)

	for {
		var res *Result
		switch r.phase {
		case PhaseRouting:
			res = r.route(ctx)
		case PhaseDispatching:
			res = r.dispatch(ctx)
		default:
			res = r.fail(&RunError{Reason: ReasonNodeFailure, Err: fmt.Errorf("unexpected phase %q", r.phase)})
		}
		if res != nil {
			return res
		}
	}
}

func (r *run) transition(to Phase) {
	r.logger.Debug("transition",
		zap.String("from", string(r.phase)),
		zap.String("to", string(to)),
		zap.Int("step", r.steps),
	)
	r.phase = to
}

// route obtains a decision and validates it against the graph.
func (r *run) route(ctx context.Context) *Result {
	if ctx.Err() != nil {
		return r.cancelled(ctx.Err())
	}

	d, attempts, err := r.decide(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return r.cancelled(ctx.Err())
		}
		r.cfg.Recorder.DecisionMade(r.wf.Name, "policy_failure")
		return r.fail(&RunError{Reason: ReasonPolicyFailure, Node: r.active, Attempts: attempts, Err: err})
	}
	r.decision = &d

	if d.IsFinish() {
		r.cfg.Recorder.DecisionMade(r.wf.Name, "finish")
		text := strings.TrimSpace(d.DirectResponse)
		if text == "" {
			text = CompletionNotice
		}
		return r.terminate(ReasonCompleted, text, nil)
	}

	node, err := r.accept(d)
	if err != nil {
		r.cfg.Recorder.DecisionMade(r.wf.Name, "invalid")
		return r.fail(&RunError{Reason: ReasonInvalidRouting, Node: r.active, Decision: r.decision, Err: err})
	}
	r.cfg.Recorder.DecisionMade(r.wf.Name, "dispatch")

	if r.cfg.MaxSteps > 0 && r.steps >= r.cfg.MaxSteps {
		return r.fail(&RunError{Reason: ReasonStepLimit, Node: node.AgentID, Decision: r.decision, Err: ErrStepLimit})
	}

	r.logger.Debug("routing decision accepted",
		zap.String("target", node.AgentID),
		zap.String("name", node.Name),
		zap.String("reasoning", d.Reasoning),
	)
	r.target = node
	r.transition(PhaseDispatching)
	return nil
}

// accept resolves the decision's target. The first hop may target any node;
// later hops must follow an edge of the active node.
func (r *run) accept(d Decision) (graph.Node, error) {
	target := strings.TrimSpace(d.Target)
	node, ok := r.wf.Node(target)
	if !ok {
		return graph.Node{}, ErrUnknownTarget
	}
	if r.active == "" || r.cfg.LenientRouting {
		return node, nil
	}
	current, ok := r.wf.Node(r.active)
	if !ok || !current.CanReach(target) {
		return graph.Node{}, ErrUnreachableTarget
	}
	return node, nil
}

// decide calls the routing policy, retrying failures with backoff.
func (r *run) decide(ctx context.Context) (Decision, int, error) {
	retries := max(r.cfg.Retry.MaxRetries, 0)

	var lastErr error
	attempts := 0
	for retry := 0; retry <= retries; retry++ {
		if retry > 0 {
			delay := r.cfg.Retry.Backoff(retry)
			r.cfg.Recorder.PolicyRetried(r.wf.Name)
			r.logger.Warn("routing call failed, retrying",
				zap.Int("retry", retry),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := sleep(ctx, delay); err != nil {
				return Decision{}, attempts, err
			}
		}

		attempts++
		msgs, wf := r.conv.Snapshot(), r.wf.Clone()
		d, err := callWithTimeout(ctx, r.cfg.PolicyTimeout, func(cctx context.Context) (Decision, error) {
			return r.engine.policy.Decide(cctx, msgs, wf)
		})
		if err == nil {
			return d, attempts, nil
		}
		if ctx.Err() != nil {
			return Decision{}, attempts, ctx.Err()
		}
		lastErr = err
	}
	return Decision{}, attempts, lastErr
}

// dispatch hands the accepted decision to its node and records the answer.
func (r *run) dispatch(ctx context.Context) *Result {
	r.steps++
	node := r.target

	if _, err := r.conv.Append(conversation.RoleRoutingAuthority, r.cfg.SupervisorName, r.decision.Instructions); err != nil {
		return r.fail(&RunError{Reason: ReasonNodeFailure, Node: node.AgentID, Decision: r.decision, Err: err})
	}

	msgs := r.conv.Snapshot()
	start := time.Now()
	msg, err := callWithTimeout(ctx, r.cfg.NodeTimeout, func(cctx context.Context) (conversation.Message, error) {
		return r.engine.executor.Run(cctx, node.Clone(), msgs)
	})
	r.cfg.Recorder.NodeDispatched(r.wf.Name, node.Name, time.Since(start).Seconds(), err)

	if err != nil {
		if ctx.Err() != nil {
			return r.cancelled(ctx.Err())
		}
		_, _ = r.conv.AppendMessage(conversation.Message{
			Role:    conversation.RoleNodeOutput,
			Name:    node.Name,
			NodeID:  node.AgentID,
			Content: fmt.Sprintf("node '%s' failed: %v", node.Name, err),
			Failure: true,
		})
		return r.fail(&RunError{Reason: ReasonNodeFailure, Node: node.AgentID, Decision: r.decision, Err: err})
	}

	msg.Role = conversation.RoleNodeOutput
	msg.Failure = false
	msg.NodeID = node.AgentID
	if msg.Name == "" {
		msg.Name = node.Name
	}
	if _, err := r.conv.AppendMessage(msg); err != nil {
		return r.fail(&RunError{Reason: ReasonNodeFailure, Node: node.AgentID, Decision: r.decision, Err: err})
	}

	r.active = node.AgentID
	r.transition(PhaseRouting)
	return nil
}

func (r *run) terminate(reason Reason, text string, err error) *Result {
	r.transition(PhaseTerminated)
	r.cfg.Recorder.RunFinished(r.wf.Name, reason, r.steps)
	return &Result{
		RunID:        r.id,
		WorkflowID:   r.wf.ID,
		Reason:       reason,
		FinalText:    text,
		Messages:     r.conv.Snapshot(),
		LastDecision: r.decision,
		Steps:        r.steps,
		Err:          err,
		StartedAt:    r.started,
		EndedAt:      time.Now(),
	}
}

func (r *run) fail(e *RunError) *Result {
	e.RunID = r.id
	r.logger.Warn("run failed",
		zap.String("reason", string(e.Reason)),
		zap.Int("steps", r.steps),
		zap.Error(e),
	)
	return r.terminate(e.Reason, "", e)
}

func (r *run) cancelled(cause error) *Result {
	r.logger.Info("run cancelled", zap.Int("steps", r.steps), zap.NamedError("cause", cause))
	return r.terminate(ReasonCancelled, "", nil)
}
