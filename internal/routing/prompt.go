package routing

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/avi3tal/agentgraph/internal/conversation"
	"github.com/avi3tal/agentgraph/internal/graph"
)

const supervisorPreamble = `You are the supervisor of a team of agents arranged as a directed graph.
Each team member is a node; the "connects" field of a node lists the nodes it may hand work to.
Your job is to delegate parts of the user's task until it is fully done.

Rules:
- Before any node has worked you may pick any node.
- After a node has worked you may only pick one of that node's "connects".
- Never send work from a node to itself.
- Answer FINISH when the task is complete, when the last node has no connects,
  or when the user only sent a greeting or a general question.
- If the user asks about an agent's role or tools, ask that agent and do not start the workflow.
- Give the chosen node enough context to continue without confusion. Do not add work the user did not ask for.

Reply with a single JSON object and nothing else:
{"next_node": "<node id or FINISH>", "reasoning": "<why>", "instructions": "<request for the next node>", "direct_response": "<answer to the user, only with FINISH>"}`

type teamMember struct {
	Node        string   `json:"node"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Connects    []string `json:"connects"`
}

type team struct {
	Name        string       `json:"workflow_name"`
	Description string       `json:"workflow_description"`
	Members     []teamMember `json:"workflow"`
}

// SupervisorPrompt renders the system prompt for one routing call.
func SupervisorPrompt(wf *graph.Workflow, msgs []conversation.Message) (string, error) {
	t := team{Name: wf.Name, Description: wf.Description, Members: make([]teamMember, 0, len(wf.Nodes))}
	for _, n := range wf.Nodes {
		connects := n.Connects
		if connects == nil {
			connects = []string{}
		}
		t.Members = append(t.Members, teamMember{
			Node:        n.AgentID,
			Name:        n.Name,
			Description: n.Description,
			Connects:    connects,
		})
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode workflow: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(supervisorPreamble)
	sb.WriteString("\n\nWorkflow:\n")
	sb.Write(data)
	sb.WriteString("\n\n")
	if active, ok := ActiveNode(msgs, wf); ok {
		fmt.Fprintf(&sb, "The node that worked last is %q (%s). Pick from its connects or FINISH.", active.AgentID, active.Name)
	} else {
		sb.WriteString("No node has worked yet.")
	}
	return sb.String(), nil
}

// ActiveNode returns the node that produced the latest successful output.
// Messages without a node id fall back to a lookup by name.
func ActiveNode(msgs []conversation.Message, wf *graph.Workflow) (graph.Node, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Role != conversation.RoleNodeOutput || m.Failure {
			continue
		}
		if m.NodeID != "" {
			return wf.Node(m.NodeID)
		}
		return wf.NodeByName(m.Name)
	}
	return graph.Node{}, false
}
