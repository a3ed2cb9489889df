package cpuprofile

// normalizedProfile is the format-agnostic shape both wire formats are
// converted to before the tree is built. Times are in milliseconds except
// timestamps which are still in microseconds.
type normalizedProfile struct {
	endTime    float64
	lines      []int
	nodes      []RawNode
	samples    []int
	startTime  float64
	timestamps []float64
}

func normalize(p RawProfile) (normalizedProfile, error) {
	n := normalizedProfile{
		lines:   p.Lines,
		samples: copyInts(p.Samples),
	}
	switch p.Format() {
	case FormatLegacy:
		// legacy profiles carry raw timestamps and start/end times in seconds
		n.startTime = p.StartTime * 1000
		n.endTime = p.EndTime * 1000
		n.timestamps = copyFloats(p.Timestamps)
		n.nodes = flattenHead(p.Head)
	case FormatCurrent:
		// current profiles encode timestamps as deltas, start/end times are in microseconds
		n.startTime = p.StartTime / 1000
		n.endTime = p.EndTime / 1000
		n.timestamps = convertTimeDeltas(p.StartTime, p.TimeDeltas)
		n.nodes = make([]RawNode, len(p.Nodes))
		copy(n.nodes, p.Nodes)
	default:
		return normalizedProfile{}, ErrUnknownFormat
	}
	return n, nil
}

// flattenHead converts a recursive legacy head into a flat node table in
// depth-first pre-order, so the head ends up at index 0.
func flattenHead(head *RawNode) []RawNode {
	var nodes []RawNode
	stack := []*RawNode{head}
	parents := []*int{nil}
	for len(stack) > 0 {
		last := len(stack) - 1
		node, parent := stack[last], parents[last]
		stack, parents = stack[:last], parents[:last]

		flat := *node
		flat.nested = nil
		flat.Parent = parent
		if flat.Children == nil {
			flat.Children = []int{}
		}
		nodes = append(nodes, flat)

		id := node.ID
		for i := len(node.nested) - 1; i >= 0; i-- {
			stack = append(stack, node.nested[i])
			parents = append(parents, &id)
		}
	}
	return nodes
}

func convertTimeDeltas(startTime float64, deltas []float64) []float64 {
	if deltas == nil {
		return []float64{}
	}
	timestamps := make([]float64, len(deltas))
	last := startTime
	for i, d := range deltas {
		last += d
		timestamps[i] = last
	}
	return timestamps
}

func copyInts(s []int) []int {
	if s == nil {
		return nil
	}
	c := make([]int, len(s))
	copy(c, s)
	return c
}

func copyFloats(s []float64) []float64 {
	if s == nil {
		return nil
	}
	c := make([]float64, len(s))
	copy(c, s)
	return c
}
