package pprofutil

import (
	"io"
	"math"
	"time"

	"github.com/google/pprof/profile"

	"github.com/getsentry/cpuprof/internal/cpuprofile"
	"github.com/getsentry/cpuprof/internal/frame"
)

const (
	SampleTypeSamples = "samples"
	SampleTypeCPU     = "cpu"
)

type functionKey struct {
	name string
	path string
}

type builder struct {
	functions map[functionKey]*profile.Function
	locations map[cpuprofile.NodeIndex]*profile.Location
	m         *cpuprofile.Model
	p         *profile.Profile
}

// FromModel converts a model to a pprof profile with two values per sample:
// the number of samples and the cpu time in nanoseconds. Samples sharing a
// stack are merged. Samples of the root have no stack and are dropped.
func FromModel(m *cpuprofile.Model, start time.Time) *profile.Profile {
	b := builder{
		functions: make(map[functionKey]*profile.Function),
		locations: make(map[cpuprofile.NodeIndex]*profile.Location),
		m:         m,
		p: &profile.Profile{
			SampleType: []*profile.ValueType{
				{Type: SampleTypeSamples, Unit: "count"},
				{Type: SampleTypeCPU, Unit: "nanoseconds"},
			},
			DefaultSampleType: SampleTypeCPU,
			PeriodType:        &profile.ValueType{Type: SampleTypeCPU, Unit: "nanoseconds"},
			TimeNanos:         start.UnixNano(),
			DurationNanos:     int64(math.Round(m.Duration() * 1e6)),
		},
	}
	if n := m.SampleCount(); n > 0 {
		b.p.Period = int64(math.Round(m.Duration() * 1e6 / float64(n)))
	}

	samples := make(map[cpuprofile.NodeIndex]*profile.Sample)
	for i := 0; i < m.SampleCount(); i++ {
		n := m.NodeByIndex(i)
		if n == nil || n.IsRoot() {
			continue
		}
		s, exists := samples[n.Index]
		if !exists {
			s = &profile.Sample{
				Location: b.stack(n),
				Value:    []int64{0, 0},
			}
			samples[n.Index] = s
			b.p.Sample = append(b.p.Sample, s)
		}
		s.Value[0]++
		s.Value[1] += int64(math.Round(m.SampleDuration(i) * 1e6))
	}
	return b.p
}

// stack returns the locations from n up to the outermost frame, leaf first.
func (b *builder) stack(n *cpuprofile.Node) []*profile.Location {
	tree := b.m.Tree()
	var locations []*profile.Location
	for ; n != nil && !n.IsRoot(); n = tree.Parent(n) {
		locations = append(locations, b.location(n))
	}
	return locations
}

func (b *builder) location(n *cpuprofile.Node) *profile.Location {
	if l, exists := b.locations[n.Index]; exists {
		return l
	}
	f := frame.FromNode(n)
	l := &profile.Location{
		ID: uint64(len(b.p.Location) + 1),
		Line: []profile.Line{
			{Function: b.function(f), Line: int64(f.Line)},
		},
	}
	b.locations[n.Index] = l
	b.p.Location = append(b.p.Location, l)
	return l
}

func (b *builder) function(f frame.Frame) *profile.Function {
	key := functionKey{name: f.Function, path: f.Path}
	if fn, exists := b.functions[key]; exists {
		return fn
	}
	fn := &profile.Function{
		ID:         uint64(len(b.p.Function) + 1),
		Name:       f.Function,
		SystemName: f.Function,
		Filename:   f.Path,
	}
	b.functions[key] = fn
	b.p.Function = append(b.p.Function, fn)
	return fn
}

// Write encodes the profile of the model in the gzipped pprof format.
func Write(w io.Writer, m *cpuprofile.Model, start time.Time) error {
	return FromModel(m, start).Write(w)
}
