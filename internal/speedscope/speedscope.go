package speedscope

import (
	"math"
	"sort"
	"time"

	"github.com/getsentry/cpuprof/internal/cpuprofile"
	"github.com/getsentry/cpuprof/internal/frame"
)

const (
	ValueUnitNanoseconds ValueUnit = "nanoseconds"
	ValueUnitCount       ValueUnit = "count"

	EventTypeOpenFrame  EventType = "O"
	EventTypeCloseFrame EventType = "C"

	ProfileTypeEvented ProfileType = "evented"
	ProfileTypeSampled ProfileType = "sampled"

	schema = "https://www.speedscope.app/file-format-schema.json"
)

type (
	Frame struct {
		Col           uint32 `json:"col,omitempty"`
		File          string `json:"file,omitempty"`
		IsApplication bool   `json:"is_application"`
		Line          uint32 `json:"line,omitempty"`
		Name          string `json:"name"`
		Package       string `json:"package,omitempty"`
		Path          string `json:"path,omitempty"`
	}

	Event struct {
		Type  EventType `json:"type"`
		Frame int       `json:"frame"`
		At    uint64    `json:"at"`
	}

	EventedProfile struct {
		EndValue   uint64      `json:"endValue"`
		Events     []Event     `json:"events"`
		Name       string      `json:"name"`
		StartValue uint64      `json:"startValue"`
		Type       ProfileType `json:"type"`
		Unit       ValueUnit   `json:"unit"`
	}

	SampledProfile struct {
		EndValue   uint64      `json:"endValue"`
		Name       string      `json:"name"`
		Samples    [][]int     `json:"samples"`
		StartValue uint64      `json:"startValue"`
		Type       ProfileType `json:"type"`
		Unit       ValueUnit   `json:"unit"`
		Weights    []uint64    `json:"weights"`
	}

	SharedData struct {
		Frames []Frame `json:"frames"`
	}

	EventType   string
	ProfileType string
	ValueUnit   string

	Output struct {
		ActiveProfileIndex int             `json:"activeProfileIndex"`
		DurationNS         uint64          `json:"durationNS"`
		Exporter           string          `json:"exporter,omitempty"`
		Metadata           ProfileMetadata `json:"metadata"`
		Name               string          `json:"name,omitempty"`
		Profiles           []interface{}   `json:"profiles"`
		Schema             string          `json:"$schema"`
		Shared             SharedData      `json:"shared"`
	}

	ProfileMetadata struct {
		FixedSamples   int       `json:"fixedSamples"`
		KeepNatives    bool      `json:"keepNatives"`
		OrganizationID uint64    `json:"organizationID,omitempty"`
		ProfileID      string    `json:"profileID"`
		ProjectID      uint64    `json:"projectID,omitempty"`
		Received       time.Time `json:"received,omitempty"`
		SampleCount    int       `json:"sampleCount"`
	}

	// frameIndex dedups frames of an output by frame id.
	frameIndex struct {
		frames  []Frame
		indexes map[string]int
		byNode  map[cpuprofile.NodeIndex]int
	}
)

func newFrameIndex() *frameIndex {
	return &frameIndex{
		indexes: make(map[string]int),
		byNode:  make(map[cpuprofile.NodeIndex]int),
	}
}

func (fi *frameIndex) index(n *cpuprofile.Node) int {
	if i, exists := fi.byNode[n.Index]; exists {
		return i
	}
	f := frame.FromNode(n)
	id := f.ID()
	i, exists := fi.indexes[id]
	if !exists {
		i = len(fi.frames)
		fi.indexes[id] = i
		fi.frames = append(fi.frames, Frame{
			Col:           f.Column,
			File:          f.File,
			IsApplication: f.IsApplicationFrame(),
			Line:          f.Line,
			Name:          f.Function,
			Package:       f.Package,
			Path:          f.Path,
		})
	}
	fi.byNode[n.Index] = i
	return i
}

func toNS(m *cpuprofile.Model, ms float64) uint64 {
	v := math.Round((ms - m.ProfileStartTime) * 1e6)
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// FromModel returns an evented speedscope profile replaying the frames of
// the model. Event times are in nanoseconds relative to the profile start.
func FromModel(m *cpuprofile.Model, metadata ProfileMetadata) Output {
	fi := newFrameIndex()
	events := make([]Event, 0, 2*len(m.Samples))
	m.ForEachFrame(
		func(depth int, n *cpuprofile.Node, ts float64) {
			events = append(events, Event{
				Type:  EventTypeOpenFrame,
				Frame: fi.index(n),
				At:    toNS(m, ts),
			})
		},
		func(depth int, n *cpuprofile.Node, start, duration, self float64) {
			events = append(events, Event{
				Type:  EventTypeCloseFrame,
				Frame: fi.index(n),
				At:    toNS(m, start+duration),
			})
		},
	)
	durationNS := toNS(m, m.ProfileEndTime)
	metadata.FixedSamples = m.FixedSamples
	metadata.SampleCount = m.SampleCount()
	return Output{
		DurationNS: durationNS,
		Metadata:   metadata,
		Name:       metadata.ProfileID,
		Profiles: []interface{}{
			&EventedProfile{
				EndValue:   durationNS,
				Events:     events,
				Name:       "main",
				StartValue: 0,
				Type:       ProfileTypeEvented,
				Unit:       ValueUnitNanoseconds,
			},
		},
		Schema: schema,
		Shared: SharedData{Frames: nonNilFrames(fi.frames)},
	}
}

// SampledFromModel returns a sampled speedscope profile with one stack per
// sample, weighted by the sample duration. Samples of the root carry an
// empty stack.
func SampledFromModel(m *cpuprofile.Model, metadata ProfileMetadata) Output {
	fi := newFrameIndex()
	tree := m.Tree()
	stacks := make(map[int][]int)
	samples := make([][]int, 0, len(m.Samples))
	weights := make([]uint64, 0, len(m.Samples))
	for i, id := range m.Samples {
		stack, exists := stacks[id]
		if !exists {
			for n := m.NodeByID(id); n != nil && !n.IsRoot(); n = tree.Parent(n) {
				stack = append(stack, fi.index(n))
			}
			// root first
			for l, r := 0, len(stack)-1; l < r; l, r = l+1, r-1 {
				stack[l], stack[r] = stack[r], stack[l]
			}
			if stack == nil {
				stack = []int{}
			}
			stacks[id] = stack
		}
		samples = append(samples, stack)
		weights = append(weights, uint64(math.Round(m.SampleDuration(i)*1e6)))
	}
	durationNS := toNS(m, m.ProfileEndTime)
	metadata.FixedSamples = m.FixedSamples
	metadata.SampleCount = m.SampleCount()
	return Output{
		DurationNS: durationNS,
		Metadata:   metadata,
		Name:       metadata.ProfileID,
		Profiles: []interface{}{
			&SampledProfile{
				EndValue:   durationNS,
				Name:       "main",
				Samples:    samples,
				StartValue: 0,
				Type:       ProfileTypeSampled,
				Unit:       ValueUnitNanoseconds,
				Weights:    weights,
			},
		},
		Schema: schema,
		Shared: SharedData{Frames: nonNilFrames(fi.frames)},
	}
}

func nonNilFrames(frames []Frame) []Frame {
	if frames == nil {
		return []Frame{}
	}
	return frames
}

// SortSamplesForFlamegraph turns sampled profiles into a flamegraph: stacks
// are sorted alphabetically and every sample weighs the same.
func (o *Output) SortSamplesForFlamegraph() {
	frames := o.Shared.Frames
	for _, sampledProfile := range o.Profiles {
		// only for Sampled Profiles
		profile, ok := sampledProfile.(*SampledProfile)
		if ok {
			SortSamplesAlphabetically(profile.Samples, frames)

			profile.Unit = ValueUnitCount
			for i := 0; i < len(profile.Weights); i++ {
				profile.Weights[i] = 1
			}
		}
	}
}

func SortSamplesAlphabetically(samples [][]int, frames []Frame) {
	sort.SliceStable(samples, func(i, j int) bool {
		c := 0
		for {
			if len(samples[i]) == c {
				return len(samples[j]) > c
			} else if len(samples[j]) == c {
				return false
			} else {
				if frames[samples[i][c]].Name < frames[samples[j][c]].Name {
					return true
				} else if frames[samples[i][c]].Name > frames[samples[j][c]].Name {
					return false
				} else {
					c += 1
				}
			}
		}
	})
}
