package cpuprofile

import (
	"fmt"
)

type translation struct {
	samples       []int
	totalHitCount int
	tree          *Tree
}

// translateTree builds the output tree from a flat node table. Native frames
// are folded into their closest kept ancestor unless keepNatives is set, and
// samples are rewritten to point at the surviving ids.
func translateTree(nodes []RawNode, samples []int, startTime, endTime float64, keepNatives bool) (translation, error) {
	if len(nodes) == 0 {
		return translation{}, ErrNoNodes
	}
	indexByID := make(map[int]int, len(nodes))
	for i, n := range nodes {
		if _, exists := indexByID[n.ID]; exists {
			return translation{}, fmt.Errorf("%w: %d", ErrDuplicateNodeID, n.ID)
		}
		indexByID[n.ID] = i
	}

	hitCounts, err := buildHitCounts(nodes, samples, indexByID)
	if err != nil {
		return translation{}, err
	}
	children, err := buildChildren(nodes, indexByID)
	if err != nil {
		return translation{}, err
	}

	var totalHitCount int
	for _, c := range hitCounts {
		totalHitCount += c
	}
	var sampleTime float64
	if totalHitCount > 0 {
		sampleTime = (endTime - startTime) / float64(totalHitCount)
	}

	tree := newTree(len(nodes))
	visited := make([]bool, len(nodes))
	idMap := make(map[int]int, len(nodes))

	root := nodes[0]
	tree.add(newNode(root, hitCounts[0], sampleTime), NoParent)
	visited[0] = true
	idMap[root.ID] = root.ID

	// two parallel stacks: the output parent and the source node to attach to it
	var (
		parentStack []NodeIndex
		sourceStack []int
	)
	push := func(parent NodeIndex, ids []int) error {
		for i := len(ids) - 1; i >= 0; i-- {
			source, ok := indexByID[ids[i]]
			if !ok {
				return fmt.Errorf("%w: child %d", ErrUnknownNode, ids[i])
			}
			parentStack = append(parentStack, parent)
			sourceStack = append(sourceStack, source)
		}
		return nil
	}
	if err := push(0, children[0]); err != nil {
		return translation{}, err
	}
	for len(sourceStack) > 0 {
		last := len(sourceStack) - 1
		parent, source := parentStack[last], sourceStack[last]
		parentStack, sourceStack = parentStack[:last], sourceStack[:last]

		if visited[source] {
			return translation{}, fmt.Errorf("%w: %d", ErrCyclicTree, nodes[source].ID)
		}
		visited[source] = true

		sourceNode := nodes[source]
		target := newNode(sourceNode, hitCounts[source], sampleTime)
		if keepNatives || !sourceNode.isNative() {
			parent = tree.add(target, parent)
		} else {
			tree.nodes[parent].Self += target.Self
			tree.nodes[parent].HitCount += target.HitCount
		}
		idMap[sourceNode.ID] = tree.nodes[parent].ID
		if err := push(parent, children[source]); err != nil {
			return translation{}, err
		}
	}
	for i, v := range visited {
		if !v {
			return translation{}, fmt.Errorf("%w: %d", ErrDisconnectedTree, nodes[i].ID)
		}
	}

	if samples != nil {
		for i, id := range samples {
			mapped, ok := idMap[id]
			if !ok {
				return translation{}, fmt.Errorf("%w: sample %d references %d", ErrUnknownNode, i, id)
			}
			samples[i] = mapped
		}
	}

	return translation{
		samples:       samples,
		totalHitCount: totalHitCount,
		tree:          tree,
	}, nil
}

func newNode(n RawNode, hitCount int, sampleTime float64) Node {
	deoptReason := n.DeoptReason
	if deoptReason == noDeoptReason {
		deoptReason = ""
	}
	return Node{
		CallFrame:     n.Frame(),
		DeoptReason:   deoptReason,
		HitCount:      hitCount,
		ID:            n.ID,
		PositionTicks: n.PositionTicks,
		Self:          float64(hitCount) * sampleTime,
	}
}

// buildHitCounts returns the hit count of every node, counting samples when
// the profile does not carry hit counts.
func buildHitCounts(nodes []RawNode, samples []int, indexByID map[int]int) ([]int, error) {
	hitCounts := make([]int, len(nodes))
	if nodes[0].HitCount != nil {
		for i, n := range nodes {
			if n.HitCount != nil {
				hitCounts[i] = *n.HitCount
			}
		}
		return hitCounts, nil
	}
	if samples == nil {
		return nil, ErrNoHitCountOrSamples
	}
	for i, id := range samples {
		index, ok := indexByID[id]
		if !ok {
			return nil, fmt.Errorf("%w: sample %d references %d", ErrUnknownNode, i, id)
		}
		hitCounts[index]++
	}
	return hitCounts, nil
}

// buildChildren returns the children ids of every node. When the root has no
// children list, they are derived from parent links in table order.
func buildChildren(nodes []RawNode, indexByID map[int]int) ([][]int, error) {
	children := make([][]int, len(nodes))
	if nodes[0].Children != nil {
		for i, n := range nodes {
			children[i] = n.Children
		}
		return children, nil
	}
	if len(nodes) > 1 && !hasParentLinks(nodes) {
		return nil, ErrMissingRootChildren
	}
	children[0] = []int{}
	for i := 1; i < len(nodes); i++ {
		n := nodes[i]
		if n.Parent == nil {
			return nil, fmt.Errorf("%w: %d has no parent", ErrDisconnectedTree, n.ID)
		}
		parent, ok := indexByID[*n.Parent]
		if !ok {
			return nil, fmt.Errorf("%w: parent %d of %d", ErrUnknownNode, *n.Parent, n.ID)
		}
		children[parent] = append(children[parent], n.ID)
	}
	return children, nil
}

func hasParentLinks(nodes []RawNode) bool {
	for _, n := range nodes {
		if n.Parent != nil {
			return true
		}
	}
	return false
}
