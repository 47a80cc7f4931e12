// Package workflow is the run entry point: it loads a stored workflow,
// runs it through the orchestration engine and records the outcome.
package workflow

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/avi3tal/agentgraph/internal/engine"
	"github.com/avi3tal/agentgraph/internal/graph"
	"github.com/avi3tal/agentgraph/internal/store"
)

// DefaultConcurrency bounds the runs Serve executes at once.
const DefaultConcurrency = 4

// Request asks for one run of a stored workflow.
type Request struct {
	WorkflowID string
	Text       string
	// RunID is optional; the engine generates one when empty
	RunID string
}

// Listener is polled for new run requests.
// For example, it might be reading from a queue, an HTTP endpoint, etc.
type Listener interface {
	// WaitForEvent blocks until a request is available or ctx is done.
	// It returns ErrListenerClosed once no more requests will arrive.
	WaitForEvent(ctx context.Context) (Request, error)
}

// Callback is invoked after each run.
type Callback interface {
	// OnComplete receives runs that reached a terminal state without an
	// error: completed and cancelled runs.
	OnComplete(ctx context.Context, res *engine.Result) error
	// OnError receives run failures and errors that kept a run from starting.
	OnError(ctx context.Context, err error) error
}

// PolicyFactory builds the routing policy for one run.
type PolicyFactory func(ctx context.Context, wf *graph.Workflow) (engine.RoutingPolicy, error)

// ExecutorFactory builds the node executor for one run from the agent and
// tool records loaded at run start.
type ExecutorFactory func(ctx context.Context, agents []graph.Agent, tools []graph.Tool) (engine.NodeExecutor, error)

// App ties a record store to the engine.
type App struct {
	store    store.Store
	policy   PolicyFactory
	executor ExecutorFactory

	engineOpts  []engine.Option
	listener    Listener
	callback    Callback
	logger      *zap.Logger
	concurrency int
}

// AppOption is a functional option that configures the App.
type AppOption func(*App)

func WithListener(l Listener) AppOption {
	return func(a *App) {
		a.listener = l
	}
}

func WithCallback(cb Callback) AppOption {
	return func(a *App) {
		a.callback = cb
	}
}

// WithEngineOptions sets the options every run's engine is built with.
func WithEngineOptions(opts ...engine.Option) AppOption {
	return func(a *App) {
		a.engineOpts = append(a.engineOpts, opts...)
	}
}

func WithLogger(l *zap.Logger) AppOption {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithConcurrency bounds the runs Serve executes at once.
func WithConcurrency(n int) AppOption {
	return func(a *App) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

func NewApp(st store.Store, policy PolicyFactory, executor ExecutorFactory, opts ...AppOption) (*App, error) {
	if st == nil {
		return nil, errors.New("workflow: store is required")
	}
	if policy == nil || executor == nil {
		return nil, errors.New("workflow: policy and executor factories are required")
	}
	app := &App{
		store:       st,
		policy:      policy,
		executor:    executor,
		logger:      zap.NewNop(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(app)
	}
	app.logger = app.logger.With(zap.String("component", "workflow"))
	return app, nil
}

// StartRun runs the stored workflow once on the user's text and saves the
// run record. A run that fails inside the engine is reported through the
// result's Reason and Err; the returned error covers failures to start the
// run or to record it.
func (app *App) StartRun(ctx context.Context, workflowID, text string, opts ...engine.RunOption) (*engine.Result, error) {
	res, err := app.run(ctx, workflowID, text, opts...)
	if err != nil {
		app.notifyError(ctx, err)
		return nil, err
	}

	if err := app.store.SaveRun(context.WithoutCancel(ctx), Record(res)); err != nil {
		app.logger.Warn("failed to save run record", zap.String("run_id", res.RunID), zap.Error(err))
		return res, errors.Wrap(err, "start run: save run record")
	}

	if res.Err != nil {
		app.notifyError(ctx, res.Err)
		return res, nil
	}
	if app.callback != nil {
		if cbErr := app.callback.OnComplete(ctx, res); cbErr != nil {
			return res, fmt.Errorf("start run: callback OnComplete failed: %w", cbErr)
		}
	}
	return res, nil
}

func (app *App) run(ctx context.Context, workflowID, text string, opts ...engine.RunOption) (*engine.Result, error) {
	wf, err := app.store.LoadWorkflow(ctx, workflowID)
	if err != nil {
		return nil, errors.Wrap(err, "start run: load workflow")
	}
	agents, err := app.store.LoadAgents(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "start run: load agents")
	}
	tools, err := app.store.LoadTools(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "start run: load tools")
	}

	policy, err := app.policy(ctx, wf)
	if err != nil {
		return nil, errors.Wrap(err, "start run: build routing policy")
	}
	executor, err := app.executor(ctx, agents, tools)
	if err != nil {
		return nil, errors.Wrap(err, "start run: build node executor")
	}
	eng, err := engine.New(policy, executor, app.engineOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "start run")
	}

	res, err := eng.Run(ctx, wf, text, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "start run")
	}
	return res, nil
}

func (app *App) notifyError(ctx context.Context, err error) {
	if app.callback == nil {
		return
	}
	if cbErr := app.callback.OnError(ctx, err); cbErr != nil {
		app.logger.Warn("callback OnError failed", zap.Error(cbErr))
	}
}

// Serve runs every request from the Listener, at most the configured number
// at a time. It returns nil once the listener is closed and all runs are
// done, or the context error when ctx ends first.
func (app *App) Serve(ctx context.Context) error {
	if app.listener == nil {
		return errors.New("serve called, but no Listener is configured")
	}

	var g errgroup.Group
	g.SetLimit(app.concurrency)

	var serveErr error
	for {
		req, err := app.listener.WaitForEvent(ctx)
		if ctx.Err() != nil {
			serveErr = errors.Wrap(ctx.Err(), "serve: context is done")
			break
		}
		if errors.Is(err, ErrListenerClosed) {
			break
		}
		if err != nil {
			app.logger.Warn("listener failed", zap.Error(err))
			app.notifyError(ctx, err)
			continue
		}

		g.Go(func() error {
			var opts []engine.RunOption
			if req.RunID != "" {
				opts = append(opts, engine.WithRunID(req.RunID))
			}
			// Failures already went to the callback.
			_, _ = app.StartRun(ctx, req.WorkflowID, req.Text, opts...)
			return nil
		})
	}

	_ = g.Wait()
	return serveErr
}

// Record converts a terminal engine result into its persisted form.
func Record(res *engine.Result) store.RunRecord {
	rec := store.RunRecord{
		RunID:      res.RunID,
		WorkflowID: res.WorkflowID,
		Reason:     string(res.Reason),
		FinalText:  res.FinalText,
		Steps:      res.Steps,
		Messages:   res.Messages,
		StartedAt:  res.StartedAt,
		EndedAt:    res.EndedAt,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	return rec
}
