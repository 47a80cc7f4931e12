package graph

import (
	"fmt"
	"io"
	"strings"
)

// Info represents the workflow structure for visualization
type Info struct {
	Name  string
	Nodes []NodeInfo
	Edges []EdgeInfo
}

// NodeInfo is a display row for a single node
type NodeInfo struct {
	AgentID string
	Name    string
	// Terminal nodes have no outgoing edges; a run usually finishes after them
	Terminal bool
}

// EdgeInfo is a single hand-off between two nodes, by name
type EdgeInfo struct {
	From string
	To   string
}

// GetInfo returns a name-resolved representation of the workflow
func (w *Workflow) GetInfo() *Info {
	info := &Info{
		Name:  w.Name,
		Nodes: make([]NodeInfo, 0, len(w.Nodes)),
	}

	names := make(map[string]string, len(w.Nodes))
	for _, n := range w.Nodes {
		names[n.AgentID] = n.Name
	}

	for _, n := range w.Nodes {
		info.Nodes = append(info.Nodes, NodeInfo{
			AgentID:  n.AgentID,
			Name:     n.Name,
			Terminal: len(n.Connects) == 0,
		})
		for _, target := range n.Connects {
			to, ok := names[target]
			if !ok {
				to = target + " (missing)"
			}
			info.Edges = append(info.Edges, EdgeInfo{From: n.Name, To: to})
		}
	}

	return info
}

// Print writes a simple text representation of the workflow
func (w *Workflow) Print(out io.Writer) {
	info := w.GetInfo()

	fmt.Fprintf(out, "Workflow: %s\n", info.Name)
	if w.Description != "" {
		fmt.Fprintf(out, "Description: %s\n", w.Description)
	}

	fmt.Fprintln(out, "\nNodes:")
	for _, n := range info.Nodes {
		if n.Terminal {
			fmt.Fprintf(out, "  * %s [%s] (terminal)\n", n.Name, n.AgentID)
		} else {
			fmt.Fprintf(out, "  - %s [%s]\n", n.Name, n.AgentID)
		}
	}

	fmt.Fprintln(out, "\nEdges:")
	if len(info.Edges) == 0 {
		fmt.Fprintln(out, "  (none)")
		return
	}
	for _, e := range info.Edges {
		fmt.Fprintf(out, "  %s --> %s\n", e.From, e.To)
	}
}

// String renders the workflow the same way Print does
func (w *Workflow) String() string {
	var sb strings.Builder
	w.Print(&sb)
	return sb.String()
}
