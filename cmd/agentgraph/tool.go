package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avi3tal/agentgraph/internal/graph"
)

func (c *cli) newToolCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tool",
		Short: "Manage tools",
	}
	cmd.AddCommand(c.newToolCreateCommand())
	cmd.AddCommand(c.newToolListCommand())
	cmd.AddCommand(c.newToolKindsCommand())
	return cmd
}

func (c *cli) newToolCreateCommand() *cobra.Command {
	var t graph.Tool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a tool backed by a built-in kind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := c.registry.Lookup(t.Kind); !ok {
				return fmt.Errorf("unknown tool kind %q (available: %v)", t.Kind, c.registry.Kinds())
			}
			st, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			id, err := st.CreateTool(cmd.Context(), t)
			if err != nil {
				return fmt.Errorf("failed to create tool: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tool created with ID: %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&t.Name, "name", "n", "", "Tool name")
	cmd.Flags().StringVarP(&t.Description, "description", "d", "", "What the tool does")
	cmd.Flags().StringVarP(&t.Kind, "kind", "k", "", "Built-in kind implementing the tool")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func (c *cli) newToolListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			list, err := st.LoadTools(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load tools: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No tools registered.")
				return nil
			}
			for _, t := range list {
				fmt.Fprintf(out, "%s  %s (%s)", t.ID, t.Name, t.Kind)
				if t.Description != "" {
					fmt.Fprintf(out, " - %s", t.Description)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func (c *cli) newToolKindsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the built-in tool kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, kind := range c.registry.Kinds() {
				t, _ := c.registry.Lookup(kind)
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", kind, t.Description())
			}
			return nil
		},
	}
}
