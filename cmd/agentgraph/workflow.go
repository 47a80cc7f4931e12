package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/avi3tal/agentgraph/internal/builder"
	"github.com/avi3tal/agentgraph/internal/conversation"
	"github.com/avi3tal/agentgraph/internal/engine"
	"github.com/avi3tal/agentgraph/pkg/workflow"
)

func (c *cli) newWorkflowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Build, inspect and run workflows",
	}
	cmd.AddCommand(c.newWorkflowCreateCommand())
	cmd.AddCommand(c.newWorkflowListCommand())
	cmd.AddCommand(c.newWorkflowShowCommand())
	cmd.AddCommand(c.newWorkflowRunCommand())
	cmd.AddCommand(c.newWorkflowServeCommand())
	return cmd
}

func (c *cli) newWorkflowCreateCommand() *cobra.Command {
	var (
		req         builder.Request
		maxAttempts int
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Build a workflow interactively from the registered agents",
		Long: "Lists the registered agents by reference number, then asks for the agents to include " +
			"and, for each of them, the agents it may hand over to. Answers given as flags are not asked for.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			req.Agents, err = st.LoadAgents(ctx)
			if err != nil {
				return fmt.Errorf("failed to load agents: %w", err)
			}

			p := builder.NewLinePrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			b := builder.New(p, builder.WithLogger(c.logger), builder.WithMaxAttempts(maxAttempts))
			wf, err := b.Build(ctx, req)
			if err != nil {
				return fmt.Errorf("failed to build workflow: %w", err)
			}

			id, err := st.SaveWorkflow(ctx, wf)
			if err != nil {
				return fmt.Errorf("failed to save workflow: %w", err)
			}
			wf.Print(cmd.OutOrStdout())
			fmt.Fprintf(cmd.OutOrStdout(), "\nWorkflow saved with ID: %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Name, "name", "n", "", "Workflow name")
	cmd.Flags().StringVarP(&req.Description, "description", "d", "", "Workflow description")
	cmd.Flags().StringVarP(&req.Selection, "agents", "a", "", "Comma-separated reference numbers of the agents to include")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Invalid answers allowed per agent before giving up (0 = unlimited)")
	return cmd
}

func (c *cli) newWorkflowListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			list, err := st.LoadWorkflows(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load workflows: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No workflows saved.")
				return nil
			}
			for _, wf := range list {
				fmt.Fprintf(out, "%s  %s (%d nodes)", wf.ID, wf.Name, len(wf.Nodes))
				if wf.Description != "" {
					fmt.Fprintf(out, " - %s", wf.Description)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func (c *cli) newWorkflowShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <workflow-id>",
		Short: "Print the nodes and edges of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			wf, err := st.LoadWorkflow(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to load workflow: %w", err)
			}
			wf.Print(cmd.OutOrStdout())
			return nil
		},
	}
}

func (c *cli) newWorkflowRunCommand() *cobra.Command {
	var serveMetrics bool
	cmd := &cobra.Command{
		Use:   "run <workflow-id> <message...>",
		Short: "Run a workflow on a user message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			rec, stop, err := c.recorder(serveMetrics)
			if err != nil {
				return err
			}
			defer stop()

			st, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			app, err := c.newApp(st, rec)
			if err != nil {
				return err
			}

			text := strings.Join(args[1:], " ")
			res, err := app.StartRun(ctx, args[0], text,
				engine.WithMessageHandler(func(m conversation.Message) { printMessage(out, m) }))
			if err != nil {
				return err
			}
			return reportResult(out, res)
		},
	}
	cmd.Flags().BoolVar(&serveMetrics, "serve-metrics", false, "Expose Prometheus metrics while the run is in progress")
	return cmd
}

func (c *cli) newWorkflowServeCommand() *cobra.Command {
	var serveMetrics bool
	cmd := &cobra.Command{
		Use:   "serve <workflow-id>",
		Short: "Run the workflow once for every line read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rec, stop, err := c.recorder(serveMetrics)
			if err != nil {
				return err
			}
			defer stop()

			st, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			requests := make(chan workflow.Request)
			go readRequests(ctx, cmd.InOrStdin(), args[0], requests)

			cb := &printCallback{out: cmd.OutOrStdout()}
			app, err := c.newApp(st, rec,
				workflow.WithListener(workflow.NewChannelListener(requests)),
				workflow.WithCallback(cb),
			)
			if err != nil {
				return err
			}
			return app.Serve(ctx)
		},
	}
	cmd.Flags().BoolVar(&serveMetrics, "serve-metrics", false, "Expose Prometheus metrics while serving")
	return cmd
}

// recorder starts the metrics endpoint when requested by flag or config.
func (c *cli) recorder(flag bool) (engine.Recorder, func(), error) {
	if !flag && !c.cfg.Metrics.Enabled {
		return nil, func() {}, nil
	}
	collector, stop, err := startMetrics(c.cfg.Metrics.Addr, c.cfg.Metrics.Namespace, c.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start metrics server: %w", err)
	}
	return collector, stop, nil
}

func readRequests(ctx context.Context, in io.Reader, workflowID string, requests chan<- workflow.Request) {
	defer close(requests)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		select {
		case requests <- workflow.Request{WorkflowID: workflowID, Text: text}:
		case <-ctx.Done():
			return
		}
	}
}

func printMessage(w io.Writer, m conversation.Message) {
	switch m.Role {
	case conversation.RoleUser:
		fmt.Fprintf(w, "> %s\n", m.Content)
	case conversation.RoleRoutingAuthority:
		fmt.Fprintf(w, "[%s] %s\n", m.Name, m.Content)
	default:
		fmt.Fprintf(w, "%s: %s\n", m.Name, m.Content)
	}
}

func reportResult(w io.Writer, res *engine.Result) error {
	switch {
	case res.Completed():
		fmt.Fprintf(w, "\n%s\n", res.FinalText)
		return nil
	case res.Reason == engine.ReasonCancelled:
		fmt.Fprintf(w, "Run %s cancelled after %d step(s).\n", res.RunID, res.Steps)
		return nil
	default:
		return fmt.Errorf("run %s ended with %s: %w", res.RunID, res.Reason, res.Err)
	}
}

// printCallback reports each served run on one line.
type printCallback struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printCallback) OnComplete(_ context.Context, res *engine.Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if res.Completed() {
		fmt.Fprintf(p.out, "%s  %s\n", res.RunID, res.FinalText)
	} else {
		fmt.Fprintf(p.out, "%s  %s\n", res.RunID, res.Reason)
	}
	return nil
}

func (p *printCallback) OnError(_ context.Context, err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var runErr *engine.RunError
	if errors.As(err, &runErr) {
		fmt.Fprintf(p.out, "%s  failed %s\n", runErr.RunID, runErr.Reason)
		return nil
	}
	fmt.Fprintf(p.out, "error  %v\n", err)
	return nil
}
