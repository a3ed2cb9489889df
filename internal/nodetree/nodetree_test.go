package nodetree

import (
	"testing"

	"github.com/getsentry/cpuprof/internal/cpuprofile"
	"github.com/getsentry/cpuprof/internal/frame"
	"github.com/getsentry/cpuprof/internal/testutil"
)

var (
	frameFoo  = frame.Frame{Function: "foo", Package: "foo"}
	frameBar  = frame.Frame{Function: "bar", Package: "bar"}
	frameBaz  = frame.Frame{Function: "baz", Package: "baz"}
	frameQux  = frame.Frame{Function: "qux", Package: "qux"}
	frameMain = frame.Frame{Function: "main", Package: "main"}
)

func TestNodeTreeCollectFunctions(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want map[uint32]CallTreeFunction
	}{
		{
			name: "single application node",
			node: Node{
				DurationNS:    10,
				SelfTimeNS:    10,
				IsApplication: true,
				Frame:         frameFoo,
			},
			want: map[uint32]CallTreeFunction{
				frameFoo.Fingerprint(): {
					Fingerprint:   frameFoo.Fingerprint(),
					InApp:         true,
					Function:      "foo",
					Package:       "foo",
					SampleCount:   1,
					SelfTimesNS:   []uint64{10},
					SumSelfTimeNS: 10,
				},
			},
		},
		{
			name: "single dependency node",
			node: Node{
				DurationNS:    10,
				SelfTimeNS:    10,
				IsApplication: false,
				Frame:         frameFoo,
			},
			want: map[uint32]CallTreeFunction{
				frameFoo.Fingerprint(): {
					Fingerprint:   frameFoo.Fingerprint(),
					InApp:         false,
					Function:      "foo",
					Package:       "foo",
					SampleCount:   1,
					SelfTimesNS:   []uint64{10},
					SumSelfTimeNS: 10,
				},
			},
		},
		{
			name: "non leaf node with non zero self time",
			node: Node{
				DurationNS:    20,
				SelfTimeNS:    10,
				IsApplication: true,
				Frame:         frameFoo,
				Children: []*Node{
					{
						DurationNS:    10,
						SelfTimeNS:    10,
						IsApplication: true,
						Frame:         frameBar,
					},
				},
			},
			want: map[uint32]CallTreeFunction{
				frameFoo.Fingerprint(): {
					Fingerprint:   frameFoo.Fingerprint(),
					InApp:         true,
					Function:      "foo",
					Package:       "foo",
					SampleCount:   1,
					SelfTimesNS:   []uint64{10},
					SumSelfTimeNS: 10,
				},
				frameBar.Fingerprint(): {
					Fingerprint:   frameBar.Fingerprint(),
					InApp:         true,
					Function:      "bar",
					Package:       "bar",
					SampleCount:   1,
					SelfTimesNS:   []uint64{10},
					SumSelfTimeNS: 10,
				},
			},
		},
		{
			name: "application node wrapping dependency nodes of same duration",
			node: Node{
				DurationNS:    10,
				IsApplication: true,
				Frame:         frameMain,
				Children: []*Node{
					{
						DurationNS:    10,
						IsApplication: true,
						Frame:         frameFoo,
						Children: []*Node{
							{
								DurationNS:    10,
								IsApplication: false,
								Frame:         frameBar,
								Children: []*Node{
									{
										DurationNS:    10,
										SelfTimeNS:    10,
										IsApplication: false,
										Frame:         frameBaz,
									},
								},
							},
						},
					},
				},
			},
			want: map[uint32]CallTreeFunction{
				frameFoo.Fingerprint(): {
					Fingerprint:   frameFoo.Fingerprint(),
					InApp:         true,
					Function:      "foo",
					Package:       "foo",
					SampleCount:   1,
					SelfTimesNS:   []uint64{10},
					SumSelfTimeNS: 10,
				},
				frameBaz.Fingerprint(): {
					Fingerprint:   frameBaz.Fingerprint(),
					InApp:         false,
					Function:      "baz",
					Package:       "baz",
					SampleCount:   1,
					SelfTimesNS:   []uint64{10},
					SumSelfTimeNS: 10,
				},
			},
		},
		{
			name: "multiple occurrences of same functions",
			node: Node{
				DurationNS:    40,
				IsApplication: true,
				Frame:         frameMain,
				Children: []*Node{
					{
						DurationNS:    10,
						IsApplication: true,
						Frame:         frameFoo,
						Children: []*Node{
							{
								DurationNS:    10,
								IsApplication: false,
								Frame:         frameBar,
								Children: []*Node{
									{
										DurationNS:    10,
										SelfTimeNS:    10,
										IsApplication: false,
										Frame:         frameBaz,
									},
								},
							},
						},
					},
					{
						DurationNS:    10,
						SelfTimeNS:    10,
						IsApplication: false,
						Frame:         frameQux,
					},
					{
						DurationNS:    20,
						IsApplication: true,
						Frame:         frameFoo,
						Children: []*Node{
							{
								DurationNS:    20,
								IsApplication: false,
								Frame:         frameBar,
								Children: []*Node{
									{
										DurationNS:    20,
										SelfTimeNS:    20,
										IsApplication: false,
										Frame:         frameBaz,
									},
								},
							},
						},
					},
				},
			},
			want: map[uint32]CallTreeFunction{
				frameFoo.Fingerprint(): {
					Fingerprint:   frameFoo.Fingerprint(),
					InApp:         true,
					Function:      "foo",
					Package:       "foo",
					SampleCount:   2,
					SelfTimesNS:   []uint64{10, 20},
					SumSelfTimeNS: 30,
				},
				frameBaz.Fingerprint(): {
					Fingerprint:   frameBaz.Fingerprint(),
					InApp:         false,
					Function:      "baz",
					Package:       "baz",
					SampleCount:   2,
					SelfTimesNS:   []uint64{10, 20},
					SumSelfTimeNS: 30,
				},
				frameQux.Fingerprint(): {
					Fingerprint:   frameQux.Fingerprint(),
					InApp:         false,
					Function:      "qux",
					Package:       "qux",
					SampleCount:   1,
					SelfTimesNS:   []uint64{10},
					SumSelfTimeNS: 10,
				},
				frameMain.Fingerprint(): {
					Fingerprint:   frameMain.Fingerprint(),
					InApp:         true,
					Function:      "main",
					Package:       "main",
					SampleCount:   1,
					SelfTimesNS:   []uint64{10},
					SumSelfTimeNS: 10,
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make(map[uint32]CallTreeFunction)
			tt.node.CollectFunctions(results)
			if diff := testutil.Diff(results, tt.want); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}

func TestNodeTreeCollapse(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want []*Node
	}{
		{
			name: "dependency wrapping an application frame",
			node: Node{
				DurationNS: 10,
				Frame:      frameBar,
				Children: []*Node{
					{DurationNS: 10, IsApplication: true, Frame: frameFoo},
				},
			},
			want: []*Node{
				{DurationNS: 10, IsApplication: true, Frame: frameFoo, Children: []*Node{}},
			},
		},
		{
			name: "application frame wrapping a dependency",
			node: Node{
				DurationNS:    10,
				IsApplication: true,
				Frame:         frameFoo,
				Children: []*Node{
					{
						DurationNS: 10,
						Frame:      frameBar,
						Children: []*Node{
							{StartNS: 2, DurationNS: 5, Frame: frameBaz},
						},
					},
				},
			},
			want: []*Node{
				{
					DurationNS:    10,
					IsApplication: true,
					Frame:         frameFoo,
					Children: []*Node{
						{StartNS: 2, DurationNS: 5, Frame: frameBaz, Children: []*Node{}},
					},
				},
			},
		},
		{
			name: "unknown frame",
			node: Node{
				DurationNS: 10,
				Children: []*Node{
					{DurationNS: 4, IsApplication: true, Frame: frameFoo},
					{StartNS: 4, DurationNS: 6, Frame: frameBar},
				},
			},
			want: []*Node{
				{DurationNS: 4, IsApplication: true, Frame: frameFoo, Children: []*Node{}},
				{StartNS: 4, DurationNS: 6, Frame: frameBar, Children: []*Node{}},
			},
		},
		{
			name: "children not spanning the parent",
			node: Node{
				DurationNS: 10,
				Frame:      frameMain,
				Children: []*Node{
					{StartNS: 1, DurationNS: 4, Frame: frameFoo},
				},
			},
			want: []*Node{
				{
					DurationNS: 10,
					Frame:      frameMain,
					Children: []*Node{
						{StartNS: 1, DurationNS: 4, Frame: frameFoo, Children: []*Node{}},
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := testutil.Diff(tt.node.Collapse(), tt.want); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}

func TestFromModel(t *testing.T) {
	callFrame := func(name, url string) *cpuprofile.CallFrame {
		return &cpuprofile.CallFrame{FunctionName: name, URL: url}
	}
	m, err := cpuprofile.New(cpuprofile.RawProfile{
		EndTime: 6000,
		Nodes: []cpuprofile.RawNode{
			{ID: 1, CallFrame: callFrame("(root)", ""), Children: []int{2, 3, 4}},
			{ID: 2, CallFrame: callFrame("(program)", ""), Children: []int{}},
			{ID: 3, CallFrame: callFrame("main", "/app/index.js"), Children: []int{5}},
			{ID: 4, CallFrame: callFrame("(garbage collector)", ""), Children: []int{}},
			{ID: 5, CallFrame: callFrame("parse", "/app/node_modules/qs/lib/parse.js"), Children: []int{6}},
			{ID: 6, CallFrame: callFrame("reviver", "/app/index.js"), Children: []int{}},
		},
		Samples:    []int{3, 5, 6, 5, 3, 4},
		TimeDeltas: []float64{1000, 1000, 1000, 1000, 1000, 1000},
	}, cpuprofile.Options{})
	if err != nil {
		t.Fatalf("we should be able to build the model: %v", err)
	}

	mainFrame := frame.Frame{Column: 1, File: "index.js", Function: "main", InApp: &testutil.True, Line: 1, Path: "/app/index.js"}
	parseFrame := frame.Frame{Column: 1, File: "parse.js", Function: "parse", InApp: &testutil.False, Line: 1, Package: "qs", Path: "/app/node_modules/qs/lib/parse.js"}
	reviverFrame := frame.Frame{Column: 1, File: "index.js", Function: "reviver", InApp: &testutil.True, Line: 1, Path: "/app/index.js"}
	mainFingerprint := fingerprint(nil, mainFrame)
	parseFingerprint := fingerprint(&Node{Fingerprint: mainFingerprint}, parseFrame)
	reviverFingerprint := fingerprint(&Node{Fingerprint: parseFingerprint}, reviverFrame)

	want := []*Node{
		{
			DurationNS:    6e6,
			EndNS:         6e6,
			Fingerprint:   mainFingerprint,
			Frame:         mainFrame,
			IsApplication: true,
			SelfTimeNS:    2e6,
			Children: []*Node{
				{
					DurationNS:  3e6,
					EndNS:       4e6,
					Fingerprint: parseFingerprint,
					Frame:       parseFrame,
					SelfTimeNS:  2e6,
					StartNS:     1e6,
					Children: []*Node{
						{
							DurationNS:    1e6,
							EndNS:         3e6,
							Fingerprint:   reviverFingerprint,
							Frame:         reviverFrame,
							IsApplication: true,
							SelfTimeNS:    1e6,
							StartNS:       2e6,
						},
					},
				},
			},
		},
	}
	trees := FromModel(m)
	if diff := testutil.Diff(trees, want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}

	functions := CollectFunctions(trees)
	got := make([]string, 0, len(functions))
	sums := make([]uint64, 0, len(functions))
	for _, f := range functions {
		got = append(got, f.Function)
		sums = append(sums, f.SumSelfTimeNS)
	}
	if diff := testutil.Diff(got, []string{"main", "parse", "reviver"}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	// time spent in the dependency is also attributed to main
	if diff := testutil.Diff(sums, []uint64{4e6, 2e6, 1e6}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}
