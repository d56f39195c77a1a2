package matriz

import "sync"

// Graph is the orchestrator-level node index keyed by node ID. It grows once
// per node created unless a retention limit is set; the default is unbounded,
// matching the in-process-only lifecycle of audit nodes.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	order []string
	limit int // 0 = unbounded
}

// NewGraph creates an empty, unbounded graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// WithLimit bounds the graph to the most recent n nodes, evicting oldest
// first. Zero restores unbounded growth.
func (g *Graph) WithLimit(n int) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limit = n
	return g
}

// Add indexes a node by ID. Nil nodes are ignored.
func (g *Graph) Add(node *Node) {
	if node == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.nodes[node.ID]; !exists {
		g.order = append(g.order, node.ID)
	}
	g.nodes[node.ID] = node
	for g.limit > 0 && len(g.order) > g.limit {
		delete(g.nodes, g.order[0])
		g.order = g.order[1:]
	}
}

// Get returns the node with the given ID, if indexed.
func (g *Graph) Get(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of indexed nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// CausalChain walks backward through trigger back-pointers starting at id,
// breadth-first with a visited set so cycles terminate. Nodes are returned
// in BFS visitation order; the trigger graph is not guaranteed acyclic or
// topologically ordered, so no chronological order is implied. An unknown
// id yields an empty chain.
func (g *Graph) CausalChain(id string) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	start, ok := g.nodes[id]
	if !ok {
		return nil
	}

	chain := []*Node{}
	visited := map[string]struct{}{id: {}}
	queue := []*Node{start}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		chain = append(chain, node)
		for _, prev := range node.TriggerNodeIDs() {
			if _, seen := visited[prev]; seen {
				continue
			}
			visited[prev] = struct{}{}
			if cause, ok := g.nodes[prev]; ok {
				queue = append(queue, cause)
			}
		}
	}
	return chain
}
