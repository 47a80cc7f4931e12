package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/avi3tal/agentgraph/internal/conversation"
	"github.com/avi3tal/agentgraph/internal/engine"
	"github.com/avi3tal/agentgraph/internal/graph"
	"github.com/avi3tal/agentgraph/internal/routing"
	"github.com/avi3tal/agentgraph/internal/store"
	"github.com/avi3tal/agentgraph/pkg/workflow"
)

// answers stands in for the language model behind each agent.
var answers = map[string]string{
	"Triage":  "This is a billing question.",
	"Billing": "Invoice corrected; the duplicate charge was refunded.",
	"Tech":    "Router rebooted.",
}

func main() {
	ctx := context.Background()
	st := store.NewMemory()

	// Register agents
	triage, err := st.CreateAgent(ctx, graph.Agent{Name: "Triage", Description: "routes requests"})
	if err != nil {
		log.Fatalf("Failed to create triage agent: %v", err)
	}
	billing, err := st.CreateAgent(ctx, graph.Agent{Name: "Billing", Description: "handles invoices"})
	if err != nil {
		log.Fatalf("Failed to create billing agent: %v", err)
	}
	tech, err := st.CreateAgent(ctx, graph.Agent{Name: "Tech", Description: "fixes outages"})
	if err != nil {
		log.Fatalf("Failed to create tech agent: %v", err)
	}

	// Triage hands over to billing or tech
	wf := &graph.Workflow{
		Name:        "support",
		Description: "customer support",
		Nodes: []graph.Node{
			{AgentID: triage, Name: "Triage", Connects: []string{billing, tech}},
			{AgentID: billing, Name: "Billing"},
			{AgentID: tech, Name: "Tech"},
		},
	}
	id, err := st.SaveWorkflow(ctx, wf)
	if err != nil {
		log.Fatalf("Failed to save workflow: %v", err)
	}
	wf.Print(os.Stdout)

	// Fixed routing: triage first, then billing, then finish
	policy := routing.Table{
		"":      {Target: triage, Instructions: "classify the request"},
		triage:  {Target: billing, Instructions: "resolve invoice dispute"},
		billing: {Target: graph.Finish, DirectResponse: "Refund issued."},
	}
	executor := engine.NodeExecutorFunc(func(_ context.Context, node graph.Node, _ []conversation.Message) (conversation.Message, error) {
		return conversation.Message{Content: answers[node.Name]}, nil
	})

	app, err := workflow.NewApp(st, workflow.StaticPolicy(policy), workflow.StaticExecutor(executor))
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}

	fmt.Println("\nConversation:")
	start := time.Now()
	res, err := app.StartRun(ctx, id, "I was charged twice this month",
		engine.WithMessageHandler(func(m conversation.Message) {
			fmt.Printf("  %-18s %-10s %s\n", m.Role, m.Name, m.Content)
		}))
	if err != nil {
		log.Fatalf("Failed to run workflow: %v", err)
	}

	fmt.Printf("\nResult: %s after %d steps (%v)\n", res.Reason, res.Steps, time.Since(start))
	fmt.Printf("Answer: %s\n", res.FinalText)

	// Expected flow:
	// user -> supervisor -> Triage -> supervisor -> Billing -> FINISH "Refund issued."
}
