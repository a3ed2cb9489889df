package cpuprofile

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

type (
	Options struct {
		// KeepNatives keeps frames whose url starts with "native " in the tree
		// instead of folding them into their parent.
		KeepNatives bool
	}

	// Model is a CPU profile reconstructed from its raw form: a node tree with
	// self times, and a chronological sample stream that can be replayed as
	// nested frames.
	//
	// A Model is not safe for concurrent use. ForEachFrame reuses scratch
	// buffers owned by the model, so only one replay may run at a time.
	Model struct {
		// FixedSamples is the number of (program) samples replaced while
		// repairing the sample stream.
		FixedSamples int
		// Lines is passed through from the raw profile.
		Lines            []int
		ProfileEndTime   float64
		ProfileStartTime float64
		// Samples holds one node id per sample, in chronological order.
		Samples []int
		// Timestamps holds the time of each sample in milliseconds, plus one
		// trailing timestamp bounding the last sample.
		Timestamps    []float64
		TotalHitCount int

		gcNode      *Node
		idleNode    *Node
		programNode *Node
		tree        *Tree

		stackChildrenDuration []float64
		stackStartTimes       []float64
	}
)

// New builds a model from a raw profile. The raw profile is not modified.
func New(p RawProfile, opts Options) (*Model, error) {
	n, err := normalize(p)
	if err != nil {
		return nil, err
	}
	tr, err := translateTree(n.nodes, n.samples, n.startTime, n.endTime, opts.KeepNatives)
	if err != nil {
		return nil, err
	}
	tr.tree.initialize()

	m := &Model{
		Lines:            n.lines,
		ProfileEndTime:   n.endTime,
		ProfileStartTime: n.startTime,
		Samples:          tr.samples,
		Timestamps:       n.timestamps,
		TotalHitCount:    tr.totalHitCount,
		tree:             tr.tree,
	}
	meta := extractMetaNodes(m.tree)
	m.gcNode, m.idleNode, m.programNode = meta.gc, meta.idle, meta.program

	if m.Samples == nil {
		return m, nil
	}
	if len(m.Timestamps) > 0 && len(m.Timestamps) != len(m.Samples) && len(m.Timestamps) != len(m.Samples)+1 {
		return nil, fmt.Errorf("%w: %d timestamps for %d samples", ErrTimestampsMismatch, len(m.Timestamps), len(m.Samples))
	}
	sortSamples(m.Samples, m.Timestamps)
	m.Timestamps, m.ProfileStartTime, m.ProfileEndTime = normalizeTimestamps(m.Samples, m.Timestamps, m.ProfileStartTime, m.ProfileEndTime)
	m.FixedSamples = fixMissingSamples(m.tree, m.Samples, meta)
	if m.FixedSamples > 0 {
		log.Warn().Int("count", m.FixedSamples).Msg("cpu profile parser is fixing missing samples")
	}
	return m, nil
}

// Tree returns the node tree of the profile.
func (m *Model) Tree() *Tree {
	return m.tree
}

// Root returns the synthetic root of the profile.
func (m *Model) Root() *Node {
	return m.tree.Root()
}

// NodeByID returns the node with the given id, or nil.
func (m *Model) NodeByID(id int) *Node {
	return m.tree.ByID(id)
}

// NodeByIndex returns the node of the sample at index i, or nil.
func (m *Model) NodeByIndex(i int) *Node {
	if i < 0 || i >= len(m.Samples) {
		return nil
	}
	return m.tree.ByID(m.Samples[i])
}

func (m *Model) GCNode() *Node {
	return m.gcNode
}

func (m *Model) ProgramNode() *Node {
	return m.programNode
}

func (m *Model) IdleNode() *Node {
	return m.idleNode
}

// IsSystemNode returns true for the (program), (garbage collector) and (idle) nodes.
func (m *Model) IsSystemNode(n *Node) bool {
	return n != nil && (n == m.gcNode || n == m.programNode || n == m.idleNode)
}

// Duration returns the profile duration in milliseconds.
func (m *Model) Duration() float64 {
	return m.ProfileEndTime - m.ProfileStartTime
}

// SampleCount returns the number of samples.
func (m *Model) SampleCount() int {
	return len(m.Samples)
}

// SampleDuration returns the duration of the sample at index i in milliseconds.
func (m *Model) SampleDuration(i int) float64 {
	if i < 0 || i+1 >= len(m.Timestamps) {
		return 0
	}
	return m.Timestamps[i+1] - m.Timestamps[i]
}
