package cpuprofile

import (
	"math"
	"sort"
)

type (
	// OpenFrameFunc is called when node starts executing at depth.
	OpenFrameFunc func(depth int, node *Node, timestamp float64)
	// CloseFrameFunc is called when node stops executing. selfDuration is
	// duration minus the durations of the frames closed directly above it.
	CloseFrameFunc func(depth int, node *Node, startTimestamp, duration, selfDuration float64)
)

// ForEachFrame replays the whole sample stream as frames.
func (m *Model) ForEachFrame(openFrame OpenFrameFunc, closeFrame CloseFrameFunc) {
	m.ForEachFrameInRange(openFrame, closeFrame, math.Inf(-1), math.Inf(1))
}

// ForEachFrameInRange replays the samples with a timestamp in
// [startTime, stopTime) as a balanced sequence of open and close calls.
// Depths are stack depths: the outermost frame is at depth 0 and a frame is
// always closed before its parent.
//
// Garbage collector samples carry no stack, so they are replayed as a frame
// sitting on top of the previous sample's stack.
//
// Callbacks must not modify the model.
func (m *Model) ForEachFrameInRange(openFrame OpenFrameFunc, closeFrame CloseFrameFunc, startTime, stopTime float64) {
	if m.tree == nil || m.tree.Len() == 0 || len(m.Samples) == 0 {
		return
	}

	var (
		samples    = m.Samples
		timestamps = m.Timestamps
		gcNode     = m.gcNode
		root       = m.tree.Root()
		prevID     = root.ID
		stackTop   int
		stackNodes []*Node
		gcParent   *Node
		sampleTime float64
	)

	// one slot at the bottom so stackTop-1 is always valid and one on top for gc
	stackDepth := m.tree.MaxDepth() + 3
	if len(m.stackStartTimes) < stackDepth {
		m.stackStartTimes = make([]float64, stackDepth)
		m.stackChildrenDuration = make([]float64, stackDepth)
	}
	stackStartTimes := m.stackStartTimes
	stackChildrenDuration := m.stackChildrenDuration

	push := func(t float64) {
		stackTop++
		stackStartTimes[stackTop] = t
		stackChildrenDuration[stackTop] = 0
	}
	pop := func(depth int, n *Node, t float64) {
		start := stackStartTimes[stackTop]
		duration := t - start
		stackChildrenDuration[stackTop-1] += duration
		closeFrame(depth, n, start, duration, duration-stackChildrenDuration[stackTop])
		stackTop--
	}

	sampleIndex := sort.SearchFloat64s(timestamps, startTime)
	for ; sampleIndex < len(samples); sampleIndex++ {
		sampleTime = timestamps[sampleIndex]
		if sampleTime >= stopTime {
			break
		}
		id := samples[sampleIndex]
		if id == prevID {
			continue
		}
		node := m.tree.ByID(id)
		prevNode := m.tree.ByID(prevID)

		if gcNode != nil && node == gcNode {
			gcParent = prevNode
			openFrame(gcParent.Depth, gcNode, sampleTime)
			push(sampleTime)
			prevID = id
			continue
		}
		if gcParent != nil && prevNode == gcNode {
			pop(gcParent.Depth, gcNode, sampleTime)
			prevNode = gcParent
			prevID = prevNode.ID
			gcParent = nil
		}

		// walk up to the lowest common ancestor, closing the previous frames
		for node != nil && node.Depth > prevNode.Depth {
			stackNodes = append(stackNodes, node)
			node = m.tree.Parent(node)
		}
		for prevNode != node {
			pop(prevNode.Depth-1, prevNode, sampleTime)
			if node != nil && node.Depth == prevNode.Depth {
				stackNodes = append(stackNodes, node)
				node = m.tree.Parent(node)
			}
			prevNode = m.tree.Parent(prevNode)
		}

		// open the new frames from the ancestor down to the sampled node
		for len(stackNodes) > 0 {
			current := stackNodes[len(stackNodes)-1]
			stackNodes = stackNodes[:len(stackNodes)-1]
			openFrame(current.Depth-1, current, sampleTime)
			push(sampleTime)
		}

		prevID = id
	}

	if sampleIndex < len(timestamps) {
		sampleTime = timestamps[sampleIndex]
	} else {
		sampleTime = m.ProfileEndTime
	}
	if gcParent != nil && m.tree.ByID(prevID) == gcNode {
		pop(gcParent.Depth, gcNode, sampleTime)
		prevID = gcParent.ID
	}
	for n := m.tree.ByID(prevID); n != nil && !n.IsRoot(); n = m.tree.Parent(n) {
		pop(n.Depth-1, n, sampleTime)
	}
}
