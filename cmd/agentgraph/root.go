package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/avi3tal/agentgraph/internal/agents"
	"github.com/avi3tal/agentgraph/internal/config"
	"github.com/avi3tal/agentgraph/internal/engine"
	"github.com/avi3tal/agentgraph/internal/logging"
	"github.com/avi3tal/agentgraph/internal/routing"
	"github.com/avi3tal/agentgraph/internal/store"
	"github.com/avi3tal/agentgraph/internal/toolbox"
	"github.com/avi3tal/agentgraph/pkg/workflow"
)

// cli holds what every subcommand shares. Config and logger are set up in
// the root command's PersistentPreRunE.
type cli struct {
	configPath string

	cfg    *config.Config
	logger *zap.Logger

	// newModel is swapped out in tests.
	newModel func(cfg config.LLMConfig) (llms.Model, error)
	registry *toolbox.Registry
}

func newRootCommand(in io.Reader, out io.Writer) *cobra.Command {
	c := &cli{
		newModel: newModel,
		registry: toolbox.Builtin(),
	}
	return c.rootCommand(in, out)
}

func (c *cli) rootCommand(in io.Reader, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "agentgraph",
		Short: "Supervisor-routed agent workflows",
		Long: "agentgraph registers agents and tools, builds workflow graphs over them " +
			"and runs conversations through a routing supervisor.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(out)
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "agentgraph.yaml", "Path to the YAML config file")

	root.AddCommand(c.newAgentCommand())
	root.AddCommand(c.newToolCommand())
	root.AddCommand(c.newWorkflowCommand())
	return root
}

func (c *cli) setup() error {
	cfg, err := config.NewLoader().WithConfigPath(c.configPath).Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	c.cfg = cfg
	c.logger = logger
	return nil
}

func (c *cli) openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, c.cfg.Store, c.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return st, nil
}

func (c *cli) engineOptions(rec engine.Recorder) []engine.Option {
	e := c.cfg.Engine
	opts := []engine.Option{
		engine.WithMaxSteps(e.MaxSteps),
		engine.WithPolicyTimeout(e.PolicyTimeout),
		engine.WithNodeTimeout(e.NodeTimeout),
		engine.WithRetryPolicy(engine.RetryPolicy{
			MaxRetries:   e.PolicyRetries,
			InitialDelay: e.RetryDelay,
			MaxDelay:     e.RetryMaxDelay,
			Multiplier:   2.0,
		}),
		engine.WithLenientRouting(e.LenientRouting),
		engine.WithLogger(c.logger),
	}
	if rec != nil {
		opts = append(opts, engine.WithRecorder(rec))
	}
	return opts
}

// newApp wires the store to an LLM-backed policy and executor.
func (c *cli) newApp(st store.Store, rec engine.Recorder, opts ...workflow.AppOption) (*workflow.App, error) {
	model, err := c.newModel(c.cfg.LLM)
	if err != nil {
		return nil, err
	}
	policy := workflow.LLMPolicy(model,
		routing.WithLogger(c.logger),
		routing.WithTemperature(c.cfg.LLM.Temperature),
	)
	executor := workflow.LLMExecutor(model, c.registry,
		agents.WithLogger(c.logger),
		agents.WithMaxIterations(c.cfg.LLM.MaxIterations),
	)
	opts = append([]workflow.AppOption{
		workflow.WithEngineOptions(c.engineOptions(rec)...),
		workflow.WithLogger(c.logger),
		workflow.WithConcurrency(c.cfg.Engine.Concurrency),
	}, opts...)
	return workflow.NewApp(st, policy, executor, opts...)
}
