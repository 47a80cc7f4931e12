package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/avi3tal/agentgraph/internal/graph"
)

func (c *cli) newAgentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage agents",
	}
	cmd.AddCommand(c.newAgentCreateCommand())
	cmd.AddCommand(c.newAgentListCommand())
	cmd.AddCommand(c.newAgentMapToolsCommand())
	return cmd
}

func (c *cli) newAgentCreateCommand() *cobra.Command {
	var a graph.Agent
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			id, err := st.CreateAgent(cmd.Context(), a)
			if err != nil {
				return fmt.Errorf("failed to create agent: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Agent created with ID: %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&a.Name, "name", "n", "", "Agent name")
	cmd.Flags().StringVarP(&a.Description, "description", "d", "", "What the agent does")
	cmd.Flags().StringVarP(&a.Prompt, "prompt", "p", "", "System prompt of the agent")
	cmd.Flags().StringSliceVarP(&a.Tools, "tools", "t", nil, "Tool IDs available to the agent")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (c *cli) newAgentListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			list, err := st.LoadAgents(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load agents: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No agents registered.")
				return nil
			}
			for _, a := range list {
				fmt.Fprintf(out, "%s  %s", a.ID, a.Name)
				if a.Description != "" {
					fmt.Fprintf(out, " - %s", a.Description)
				}
				if len(a.Tools) > 0 {
					fmt.Fprintf(out, " [tools: %s]", strings.Join(a.Tools, ", "))
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func (c *cli) newAgentMapToolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "map-tools <agent-id> [tool-id...]",
		Short: "Replace the tools available to an agent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.SetAgentTools(cmd.Context(), args[0], args[1:]); err != nil {
				return fmt.Errorf("failed to map tools: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Agent %s now has %d tool(s).\n", args[0], len(dedupeArgs(args[1:])))
			return nil
		},
	}
}

func dedupeArgs(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
