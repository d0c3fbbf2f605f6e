package graph

import (
	"github.com/durgasflow/durgasflow/pkg/models"
)

// Order is the result of ExecutionOrder.
type Order struct {
	Nodes []*models.WorkflowNode

	// Cyclic holds the ids of nodes that could not be ordered. They are
	// appended to Nodes in declaration order.
	Cyclic []string
}

// HasCycle reports whether some nodes were ordered on a best-effort basis.
func (o Order) HasCycle() bool {
	return len(o.Cyclic) > 0
}

// ExecutionOrder sorts nodes with Kahn's algorithm. Nodes that become ready at
// the same time run in the order they were enqueued, and the initial queue is
// seeded in declaration order, so the result depends only on the inputs.
// Connections whose endpoints are not among nodes are ignored.
func ExecutionOrder(nodes []*models.WorkflowNode, connections []*models.Connection) Order {
	order := Order{Nodes: make([]*models.WorkflowNode, 0, len(nodes))}
	if len(nodes) == 0 {
		return order
	}

	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if _, dup := index[n.NodeID]; !dup {
			index[n.NodeID] = i
		}
	}

	inDegree := make([]int, len(nodes))
	dependents := make([][]int, len(nodes))

	for _, c := range connections {
		src, okSrc := index[c.SourceNodeID]
		dst, okDst := index[c.TargetNodeID]

		if !okSrc || !okDst {
			continue
		}

		dependents[src] = append(dependents[src], dst)
		inDegree[dst]++
	}

	queue := make([]int, 0, len(nodes))

	for i := range nodes {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	placed := make([]bool, len(nodes))

	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]

		placed[i] = true
		order.Nodes = append(order.Nodes, nodes[i])

		for _, d := range dependents[i] {
			inDegree[d]--
			if inDegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}

	for i, n := range nodes {
		if !placed[i] {
			order.Nodes = append(order.Nodes, n)
			order.Cyclic = append(order.Cyclic, n.NodeID)
		}
	}

	return order
}
