package graph

import "slices"

// Finish is the routing target that ends a run.
const Finish = "FINISH"

// Agent is a named capability provider that can be placed into workflows.
type Agent struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Prompt      string   `json:"prompt"`
	Tools       []string `json:"tools,omitempty"`
}

// Clone returns a copy of the agent that shares no memory with the receiver.
func (a Agent) Clone() Agent {
	a.Tools = slices.Clone(a.Tools)
	return a
}

// Tool describes a capability an agent may use. Kind selects the
// implementation from the tool registry.
type Tool struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
}

// Node is an agent's participation in one workflow.
type Node struct {
	AgentID     string   `json:"agent_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Connects    []string `json:"connects"`
}

// NewNode captures the agent's name and description at build time.
func NewNode(agent Agent, connects []string) Node {
	return Node{
		AgentID:     agent.ID,
		Name:        agent.Name,
		Description: agent.Description,
		Connects:    slices.Clone(connects),
	}
}

// CanReach reports whether agentID is one of the node's outgoing edges.
func (n Node) CanReach(agentID string) bool {
	return slices.Contains(n.Connects, agentID)
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	n.Connects = slices.Clone(n.Connects)
	return n
}

// Workflow is a named directed graph of nodes. It is never mutated after
// creation; the engine works on a Clone.
type Workflow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Nodes       []Node `json:"nodes"`
}

// Node returns the node for the given agent id.
func (w *Workflow) Node(agentID string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.AgentID == agentID {
			return n, true
		}
	}
	return Node{}, false
}

// NodeByName returns the first node whose denormalized name matches.
func (w *Workflow) NodeByName(name string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// AgentIDs lists the agent ids of all nodes, in node order.
func (w *Workflow) AgentIDs() []string {
	ids := make([]string, 0, len(w.Nodes))
	for _, n := range w.Nodes {
		ids = append(ids, n.AgentID)
	}
	return ids
}

// Clone returns a deep copy of the workflow.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	c := &Workflow{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		Nodes:       make([]Node, len(w.Nodes)),
	}
	for i, n := range w.Nodes {
		c.Nodes[i] = n.Clone()
	}
	return c
}

// Validate checks the workflow's structural invariants.
func (w *Workflow) Validate() error {
	return ValidateWorkflow(w.Nodes)
}
