package cpuprofile

import (
	"sort"
)

const (
	garbageCollectorFunctionName = "(garbage collector)"
	programFunctionName          = "(program)"
	idleFunctionName             = "(idle)"
)

// sortSamples orders samples and timestamps by timestamp, keeping equal
// timestamps in their original order. Both slices are permuted in place by
// following the cycles of the sorting permutation. A trailing timestamp
// bounding the last sample is raised to the last sample time if it is below.
func sortSamples(samples []int, timestamps []float64) {
	n := len(samples)
	if len(timestamps) < n {
		n = len(timestamps)
	}
	if !sort.Float64sAreSorted(timestamps[:n]) {
		permuteSamples(samples, timestamps, n)
	}
	if n > 0 && len(timestamps) > n && timestamps[n] < timestamps[n-1] {
		timestamps[n] = timestamps[n-1]
	}
}

func permuteSamples(samples []int, timestamps []float64, n int) {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return timestamps[indices[a]] < timestamps[indices[b]]
	})
	for i := 0; i < n; i++ {
		index := indices[i]
		if index == i {
			continue
		}
		savedTimestamp := timestamps[i]
		savedSample := samples[i]
		current := i
		for index != i {
			samples[current] = samples[index]
			timestamps[current] = timestamps[index]
			current = index
			index = indices[index]
			indices[current] = current
		}
		samples[current] = savedSample
		timestamps[current] = savedTimestamp
	}
}

// normalizeTimestamps converts timestamps to milliseconds and makes sure
// there is one more timestamp than samples, bounding the last sample. It
// returns the timestamps with the resulting profile start and end times.
func normalizeTimestamps(samples []int, timestamps []float64, startTime, endTime float64) ([]float64, float64, float64) {
	if len(timestamps) == 0 {
		// old profiles have no timestamps, derive them from the profile bounds
		interval := 0.0
		if len(samples) > 0 {
			interval = (endTime - startTime) / float64(len(samples))
		}
		timestamps = make([]float64, len(samples)+1)
		for i := range timestamps {
			timestamps[i] = startTime + float64(i)*interval
		}
		return timestamps, startTime, endTime
	}

	for i := range timestamps {
		timestamps[i] /= 1000
	}
	if len(samples) == len(timestamps) {
		// add an extra timestamp used to compute the last sample duration
		last := timestamps[len(timestamps)-1]
		var next float64
		if len(timestamps) > 1 {
			next = last + (last-timestamps[0])/float64(len(timestamps)-1)
		} else {
			next = endTime
			if next < last {
				next = last
			}
		}
		timestamps = append(timestamps, next)
	}
	return timestamps, timestamps[0], timestamps[len(timestamps)-1]
}

type metaNodes struct {
	gc      *Node
	idle    *Node
	program *Node
}

func extractMetaNodes(t *Tree) metaNodes {
	var m metaNodes
	for _, c := range t.Root().Children {
		if m.gc != nil && m.program != nil && m.idle != nil {
			break
		}
		n := t.Node(c)
		switch n.FunctionName {
		case garbageCollectorFunctionName:
			m.gc = n
		case programFunctionName:
			m.program = n
		case idleFunctionName:
			m.idle = n
		}
	}
	return m
}

// systemNodes is the set of ids of the synthetic program, gc and idle nodes.
type systemNodes map[int]struct{}

func (m metaNodes) systemNodes() systemNodes {
	s := make(systemNodes, 3)
	for _, n := range []*Node{m.gc, m.idle, m.program} {
		if n != nil {
			s[n.ID] = struct{}{}
		}
	}
	return s
}

func (s systemNodes) contains(id int) bool {
	_, ok := s[id]
	return ok
}

// fixMissingSamples replaces a single (program) sample sitting between two
// samples sharing the same bottom node with the preceding sample. The sampler
// sometimes fails to walk the JS stack and reports (program) instead, which
// splits one call into two. It returns the number of replaced samples.
func fixMissingSamples(t *Tree, samples []int, m metaNodes) int {
	if m.program == nil || len(samples) < 3 {
		return 0
	}
	programID := m.program.ID
	system := m.systemNodes()
	var count int
	prev, current := samples[0], samples[1]
	for i := 1; i < len(samples)-1; i++ {
		next := samples[i+1]
		if shouldFixSample(t, system, programID, prev, current, next) {
			count++
			samples[i] = prev
		}
		prev = current
		current = next
	}
	return count
}

func shouldFixSample(t *Tree, system systemNodes, programID, prev, current, next int) bool {
	if current != programID || system.contains(prev) || system.contains(next) {
		return false
	}
	return t.BottomNode(t.ByID(prev)) == t.BottomNode(t.ByID(next))
}
