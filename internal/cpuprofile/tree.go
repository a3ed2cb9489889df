package cpuprofile

import (
	"encoding/json"
)

// NoParent is the parent index of the root node.
const NoParent NodeIndex = -1

type (
	// NodeIndex is a dense handle into a Tree. Handles are assigned in
	// depth-first pre-order, so the root is always 0 and a parent always has
	// a smaller index than its children.
	NodeIndex int

	Node struct {
		CallFrame

		Children      []NodeIndex       `json:"children,omitempty"`
		DeoptReason   string            `json:"deoptReason,omitempty"`
		Depth         int               `json:"depth"`
		HitCount      int               `json:"hitCount"`
		ID            int               `json:"id"`
		Index         NodeIndex         `json:"-"`
		Parent        NodeIndex         `json:"-"`
		PositionTicks []json.RawMessage `json:"positionTicks,omitempty"`
		// Self and Total are in milliseconds.
		Self  float64 `json:"self"`
		Total float64 `json:"total"`
	}

	// Tree is an arena of nodes with an id lookup table. It is built once and
	// only read afterwards.
	Tree struct {
		byID     map[int]NodeIndex
		maxDepth int
		nodes    []Node
	}
)

// IsRoot returns true for the synthetic root of the tree.
func (n *Node) IsRoot() bool {
	return n.Parent == NoParent
}

func newTree(capacity int) *Tree {
	return &Tree{
		nodes: make([]Node, 0, capacity),
	}
}

// add appends n as the last child of parent and returns its handle.
func (t *Tree) add(n Node, parent NodeIndex) NodeIndex {
	i := NodeIndex(len(t.nodes))
	n.Index = i
	n.Parent = parent
	n.Children = nil
	t.nodes = append(t.nodes, n)
	if parent != NoParent {
		t.nodes[parent].Children = append(t.nodes[parent].Children, i)
	}
	return i
}

// initialize assigns depths from parent links, computes total times and the
// max depth, and builds the id lookup table.
func (t *Tree) initialize() {
	t.byID = make(map[int]NodeIndex, len(t.nodes))
	t.maxDepth = 0
	if len(t.nodes) == 0 {
		return
	}
	t.nodes[0].Depth = 0
	stack := []NodeIndex{0}
	for len(stack) > 0 {
		parent := &t.nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		t.byID[parent.ID] = parent.Index
		depth := parent.Depth + 1
		for _, c := range parent.Children {
			t.nodes[c].Depth = depth
			if depth > t.maxDepth {
				t.maxDepth = depth
			}
			stack = append(stack, c)
		}
	}
	// children always come after their parent
	for i := len(t.nodes) - 1; i >= 0; i-- {
		n := &t.nodes[i]
		n.Total += n.Self
		if n.Parent != NoParent {
			t.nodes[n.Parent].Total += n.Total
		}
	}
}

// Root returns the synthetic root node.
func (t *Tree) Root() *Node {
	if len(t.nodes) == 0 {
		return nil
	}
	return &t.nodes[0]
}

// Node returns the node for a handle.
func (t *Tree) Node(i NodeIndex) *Node {
	if i < 0 || int(i) >= len(t.nodes) {
		return nil
	}
	return &t.nodes[i]
}

// ByID returns the node with the given profiler id, or nil.
func (t *Tree) ByID(id int) *Node {
	i, ok := t.byID[id]
	if !ok {
		return nil
	}
	return &t.nodes[i]
}

// Parent returns the parent of n, or nil for the root.
func (t *Tree) Parent(n *Node) *Node {
	if n == nil || n.Parent == NoParent {
		return nil
	}
	return &t.nodes[n.Parent]
}

// Children returns the children of n in traversal order.
func (t *Tree) Children(n *Node) []*Node {
	children := make([]*Node, 0, len(n.Children))
	for _, c := range n.Children {
		children = append(children, &t.nodes[c])
	}
	return children
}

// Len returns the number of nodes, root included.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// MaxDepth returns the depth of the deepest node.
func (t *Tree) MaxDepth() int {
	return t.maxDepth
}

// Walk calls fn for every node in depth-first pre-order.
func (t *Tree) Walk(fn func(n *Node)) {
	for i := range t.nodes {
		fn(&t.nodes[i])
	}
}

// BottomNode returns the child of the root on the path to n.
func (t *Tree) BottomNode(n *Node) *Node {
	for n.Parent != NoParent && t.nodes[n.Parent].Parent != NoParent {
		n = &t.nodes[n.Parent]
	}
	return n
}
