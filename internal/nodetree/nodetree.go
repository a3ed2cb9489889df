package nodetree

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"sort"

	"github.com/getsentry/cpuprof/internal/cpuprofile"
	"github.com/getsentry/cpuprof/internal/frame"
)

type (
	Node struct {
		Children      []*Node     `json:"children,omitempty"`
		DurationNS    uint64      `json:"duration_ns"`
		EndNS         uint64      `json:"-"`
		Fingerprint   uint64      `json:"fingerprint"`
		Frame         frame.Frame `json:"frame"`
		IsApplication bool        `json:"is_application"`
		SelfTimeNS    uint64      `json:"self_time_ns"`
		StartNS       uint64      `json:"-"`
	}

	CallTreeFunction struct {
		Fingerprint   uint32   `json:"fingerprint"`
		Function      string   `json:"function"`
		InApp         bool     `json:"in_app"`
		Package       string   `json:"package"`
		SampleCount   int      `json:"sample_count"`
		SelfTimesNS   []uint64 `json:"self_times_ns"`
		SumSelfTimeNS uint64   `json:"-"`
	}
)

// FromModel replays the profile and returns one call tree per outermost
// frame, in chronological order. Pseudo frames like (program) or
// (garbage collector) are left out. Times are in nanoseconds relative to
// the profile start.
func FromModel(m *cpuprofile.Model) []*Node {
	var (
		trees []*Node
		// nil entries stand for skipped frames
		stack []*Node
	)
	toNS := func(ms float64) uint64 {
		v := math.Round((ms - m.ProfileStartTime) * 1e6)
		if v < 0 {
			return 0
		}
		return uint64(v)
	}
	m.ForEachFrame(
		func(depth int, n *cpuprofile.Node, ts float64) {
			if m.IsSystemNode(n) {
				stack = append(stack, nil)
				return
			}
			var parent *Node
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i] != nil {
					parent = stack[i]
					break
				}
			}
			f := frame.FromNode(n)
			node := &Node{
				Frame:         f,
				IsApplication: f.IsApplicationFrame(),
				StartNS:       toNS(ts),
			}
			node.Fingerprint = fingerprint(parent, f)
			if parent == nil {
				trees = append(trees, node)
			} else {
				parent.Children = append(parent.Children, node)
			}
			stack = append(stack, node)
		},
		func(depth int, n *cpuprofile.Node, start, duration, self float64) {
			node := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if node == nil {
				return
			}
			node.SetDuration(toNS(start + duration))
			node.SelfTimeNS = uint64(math.Round(self * 1e6))
		},
	)
	return trees
}

func fingerprint(parent *Node, f frame.Frame) uint64 {
	h := fnv.New64()
	if parent != nil {
		buffer := make([]byte, 8)
		binary.LittleEndian.PutUint64(buffer, parent.Fingerprint)
		h.Write(buffer)
	}
	f.WriteToHash(h)
	return h.Sum64()
}

func (n *Node) SetDuration(t uint64) {
	n.EndNS = t
	n.DurationNS = n.EndNS - n.StartNS
}

func (n Node) Collapse() []*Node {
	// always collapse the children first, since pruning may reduce
	// the number of children
	children := make([]*Node, 0, len(n.Children))
	for _, child := range n.Children {
		children = append(children, child.Collapse()...)
	}
	n.Children = children

	// If the current node is an unknown frame, we just return
	// its children. The children are guaranteed not to be
	// unknown nodes since they made it through a `.Collapse`
	// call earlier already
	if n.Frame.Function == "" {
		return n.Children
	}

	// If the only child runs for the entirety of the parent,
	// we want to collapse them by taking the inner most application frame.
	// If neither are application frames, we take the inner most frame
	if len(n.Children) == 1 {
		child := n.Children[0]
		if n.StartNS == child.StartNS && n.DurationNS == child.DurationNS {
			if n.IsApplication {
				if child.IsApplication {
					// if the node and it's child are both application frames,
					// we only want the inner one
					n = *child
				} else {
					// if the node is an application frame but the child is not,
					// we want to skip the child frame
					n.Children = child.Children
				}
			} else {
				// if the node is not an application frame,
				// we want to skip it and favour it's child
				n = *child
			}
		}
	}

	return []*Node{&n}
}

// CollectFunctions adds the self time of every frame of the tree to its
// function. Self time spent in dependencies is also attributed to the
// closest application frame calling them.
func (n *Node) CollectFunctions(results map[uint32]CallTreeFunction) {
	n.collectFunctions(results)
}

// collectFunctions returns the self time of dependency frames not yet
// attributed to an application frame.
func (n *Node) collectFunctions(results map[uint32]CallTreeFunction) uint64 {
	var dependenciesNS uint64
	for _, child := range n.Children {
		dependenciesNS += child.collectFunctions(results)
	}
	if n.IsApplication {
		if total := n.SelfTimeNS + dependenciesNS; total > 0 {
			addFunction(results, n, total)
		}
		return 0
	}
	if n.SelfTimeNS > 0 {
		addFunction(results, n, n.SelfTimeNS)
	}
	return n.SelfTimeNS + dependenciesNS
}

func addFunction(results map[uint32]CallTreeFunction, n *Node, selfTimeNS uint64) {
	fingerprint := n.Frame.Fingerprint()
	function, exists := results[fingerprint]
	if !exists {
		function = CallTreeFunction{
			Fingerprint: fingerprint,
			Function:    n.Frame.Function,
			InApp:       n.IsApplication,
			Package:     n.Frame.Package,
		}
	}
	function.SampleCount++
	function.SelfTimesNS = append(function.SelfTimesNS, selfTimeNS)
	function.SumSelfTimeNS += selfTimeNS
	results[fingerprint] = function
}

// CollectFunctions gathers the functions of all the trees, sorted by total
// self time, largest first.
func CollectFunctions(trees []*Node) []CallTreeFunction {
	results := make(map[uint32]CallTreeFunction)
	for _, t := range trees {
		t.CollectFunctions(results)
	}
	functions := make([]CallTreeFunction, 0, len(results))
	for _, f := range results {
		functions = append(functions, f)
	}
	sort.Slice(functions, func(i, j int) bool {
		if functions[i].SumSelfTimeNS == functions[j].SumSelfTimeNS {
			return functions[i].Fingerprint < functions[j].Fingerprint
		}
		return functions[i].SumSelfTimeNS > functions[j].SumSelfTimeNS
	})
	return functions
}
