package graph

// ValidateNode checks a single node against the other nodes of its workflow.
// It returns the first violation found: a self loop or a dangling edge.
func ValidateNode(node Node, all []Node) error {
	if node.AgentID == "" {
		return NewValidationError("ValidateNode", node.Name, "", ErrMissingAgentID)
	}

	known := make(map[string]struct{}, len(all))
	for _, n := range all {
		known[n.AgentID] = struct{}{}
	}

	for _, target := range node.Connects {
		if target == node.AgentID {
			return NewValidationError("ValidateNode", node.AgentID, target, ErrSelfLoop)
		}
		if _, ok := known[target]; !ok {
			return NewValidationError("ValidateNode", node.AgentID, target, ErrDanglingEdge)
		}
	}
	return nil
}

// ValidateWorkflow validates every node of a workflow and returns the first
// violation found. Cycles are legal.
func ValidateWorkflow(nodes []Node) error {
	if len(nodes) == 0 {
		return NewValidationError("ValidateWorkflow", "", "", ErrEmptyWorkflow)
	}

	seen := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if n.AgentID == "" {
			return NewValidationError("ValidateWorkflow", n.Name, "", ErrMissingAgentID)
		}
		if _, dup := seen[n.AgentID]; dup {
			return NewValidationError("ValidateWorkflow", n.AgentID, "", ErrDuplicateNode)
		}
		seen[n.AgentID] = struct{}{}
	}

	for _, n := range nodes {
		if err := ValidateNode(n, nodes); err != nil {
			return err
		}
	}
	return nil
}
