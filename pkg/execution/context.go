// Package execution runs workflow graphs node by node.
package execution

import (
	"log/slog"
	"maps"
	"sync"

	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/protocol"
)

type slotKey struct {
	node string
	slot int
}

// Context is the state of one run: node outputs keyed by (node, slot) and
// run-scoped variables. A Context belongs to exactly one execution.
type Context struct {
	executionID string
	workflowID  string
	triggerData map[string]any
	logger      *slog.Logger

	// inbound maps a target (node, slot) to the first connection feeding it.
	inbound  map[slotKey]*models.Connection
	triggers map[string]bool

	mu        sync.RWMutex
	outputs   map[slotKey]any
	variables map[string]any
}

// NewContext seeds a run context with the execution's trigger payload and the
// workflow's current connections.
func NewContext(exec *models.Execution, wf *models.Workflow, logger *slog.Logger) *Context {
	c := &Context{
		executionID: exec.ID,
		workflowID:  wf.ID,
		triggerData: models.CopyMap(exec.TriggerData),
		logger:      logger,
		inbound:     make(map[slotKey]*models.Connection, len(wf.Connections)),
		triggers:    map[string]bool{},
		outputs:     map[slotKey]any{},
		variables:   map[string]any{},
	}

	for _, conn := range wf.Connections {
		key := slotKey{conn.TargetNodeID, conn.TargetInput}
		if _, exists := c.inbound[key]; !exists {
			c.inbound[key] = conn
		}
	}

	for _, n := range wf.Nodes {
		if n.IsTriggerNode() {
			c.triggers[n.NodeID] = true
		}
	}

	return c
}

// InputData returns the output stored for the source of the connection that
// feeds (nodeID, slot). An unconnected input of a trigger node resolves to the
// trigger payload.
func (c *Context) InputData(nodeID string, slot int) (any, bool) {
	conn, ok := c.inbound[slotKey{nodeID, slot}]
	if !ok {
		if c.triggers[nodeID] {
			return c.triggerData, true
		}

		return nil, false
	}

	return c.OutputData(conn.SourceNodeID, conn.SourceOutput)
}

// OutputData returns what a node wrote to one of its output slots.
func (c *Context) OutputData(nodeID string, slot int) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.outputs[slotKey{nodeID, slot}]

	return v, ok
}

// SetOutputData stores the value of one output slot.
func (c *Context) SetOutputData(nodeID string, slot int, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.outputs[slotKey{nodeID, slot}] = value
}

func (c *Context) ExecutionID() string { return c.executionID }

func (c *Context) WorkflowID() string { return c.workflowID }

// TriggerData returns the trigger payload snapshot.
func (c *Context) TriggerData() map[string]any { return c.triggerData }

func (c *Context) Variable(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.variables[name]

	return v, ok
}

func (c *Context) SetVariable(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.variables[name] = value
}

// Variables returns a copy of the run variables.
func (c *Context) Variables() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return maps.Clone(c.variables)
}

// ForNode returns the view of the context a handler sees while node runs.
func (c *Context) ForNode(node *models.WorkflowNode) protocol.ExecutionContext {
	return &nodeContext{
		Context: c,
		node:    node,
		logger: c.logger.With(
			"execution_id", c.executionID,
			"node_id", node.NodeID,
			"node_type", node.Type,
		),
	}
}

type nodeContext struct {
	*Context
	node   *models.WorkflowNode
	logger *slog.Logger
}

func (n *nodeContext) Input(slot int) (any, bool) {
	return n.InputData(n.node.NodeID, slot)
}

func (n *nodeContext) Logger() *slog.Logger {
	return n.logger
}
