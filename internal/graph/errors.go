package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrSelfLoop is returned when a node lists its own agent among its connects
	ErrSelfLoop = errors.New("node cannot connect to itself")

	// ErrDanglingEdge is returned when a connect target is not a node of the same workflow
	ErrDanglingEdge = errors.New("edge target is not a node of the workflow")

	// ErrDuplicateNode is returned when an agent appears more than once in a workflow
	ErrDuplicateNode = errors.New("agent already has a node in this workflow")

	// ErrEmptyWorkflow is returned when validating a workflow with no nodes
	ErrEmptyWorkflow = errors.New("workflow must have at least one node")

	// ErrMissingAgentID is returned when a node does not reference an agent
	ErrMissingAgentID = errors.New("node must reference an agent id")
)

// ValidationError represents a structural violation found while validating a workflow
type ValidationError struct {
	// Op is the validation step that failed
	Op string
	// Node is the agent id of the offending node (if any)
	Node string
	// Target is the offending connect target (if any)
	Target string
	// Err is the underlying sentinel error
	Err error
}

func (e *ValidationError) Error() string {
	switch {
	case e.Node != "" && e.Target != "":
		return fmt.Sprintf("validation failed: %s: node '%s' -> '%s': %v", e.Op, e.Node, e.Target, e.Err)
	case e.Node != "":
		return fmt.Sprintf("validation failed: %s: node '%s': %v", e.Op, e.Node, e.Err)
	default:
		return fmt.Sprintf("validation failed: %s: %v", e.Op, e.Err)
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError
func NewValidationError(op, node, target string, err error) error {
	return &ValidationError{
		Op:     op,
		Node:   node,
		Target: target,
		Err:    err,
	}
}
