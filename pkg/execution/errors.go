package execution

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownNodeType is returned for a node whose type has no registered handler.
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrMaxRetriesExceeded is returned when retrying an execution that used up its retries.
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")

	// ErrWorkflowRequired is returned when an execute request names no workflow.
	ErrWorkflowRequired = errors.New("workflow is required")
)

// NodeExecutionError is the failure of one node. Stack holds the goroutine
// stack captured where the failure was observed.
type NodeExecutionError struct {
	NodeID   string
	NodeType string
	Err      error
	Stack    string
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s (%s) failed: %v", e.NodeID, e.NodeType, e.Err)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}

// PanicError is the error a recovered handler panic is converted to.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}
