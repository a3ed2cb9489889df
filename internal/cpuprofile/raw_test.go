package cpuprofile

import (
	"testing"

	"github.com/getsentry/cpuprof/internal/testutil"
)

const legacyJSON = `{
	"startTime": 0,
	"endTime": 2,
	"timestamps": [0, 1000, 2000],
	"samples": [1, 2, 1],
	"head": {
		"id": 1,
		"functionName": "(root)",
		"url": "",
		"lineNumber": 0,
		"columnNumber": 0,
		"scriptId": 0,
		"hitCount": 2,
		"children": [
			{
				"id": 2,
				"functionName": "main",
				"url": "app.js",
				"lineNumber": 3,
				"columnNumber": 5,
				"scriptId": "12",
				"hitCount": 1,
				"deoptReason": "no reason",
				"children": []
			}
		]
	}
}`

const currentJSON = `{
	"nodes": [
		{
			"id": 1,
			"callFrame": {"functionName": "(root)", "scriptId": "0", "url": "", "lineNumber": -1, "columnNumber": -1},
			"hitCount": 0,
			"children": [2]
		},
		{
			"id": 2,
			"callFrame": {"functionName": "main", "scriptId": 7, "url": "app.js", "lineNumber": 2, "columnNumber": 4},
			"hitCount": 1,
			"deoptReason": "no reason",
			"positionTicks": [{"line": 3, "ticks": 1}]
		}
	],
	"startTime": 1000,
	"endTime": 2000,
	"samples": [2],
	"timeDeltas": [500],
	"lines": [3]
}`

func TestDecode(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantFormat Format
		wantFrames []CallFrame
		wantDeopt  string
	}{
		{
			name:       "legacy",
			input:      legacyJSON,
			wantFormat: FormatLegacy,
			wantFrames: []CallFrame{
				{ColumnNumber: -1, FunctionName: "(root)", LineNumber: -1, ScriptID: "0"},
				{ColumnNumber: 4, FunctionName: "main", LineNumber: 2, ScriptID: "12", URL: "app.js"},
			},
		},
		{
			name:       "current",
			input:      currentJSON,
			wantFormat: FormatCurrent,
			wantFrames: []CallFrame{
				{ColumnNumber: -1, FunctionName: "(root)", LineNumber: -1, ScriptID: "0"},
				{ColumnNumber: 4, FunctionName: "main", LineNumber: 2, ScriptID: "7", URL: "app.js"},
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p, err := Decode([]byte(test.input))
			if err != nil {
				t.Fatalf("we should be able to decode the profile: %v", err)
			}
			if p.Format() != test.wantFormat {
				t.Fatalf("expected format %v, got %v", test.wantFormat, p.Format())
			}
			m, err := New(p, Options{})
			if err != nil {
				t.Fatalf("we should be able to build the model: %v", err)
			}
			var frames []CallFrame
			var deoptReasons []string
			m.Tree().Walk(func(n *Node) {
				frames = append(frames, n.CallFrame)
				deoptReasons = append(deoptReasons, n.DeoptReason)
			})
			if diff := testutil.Diff(frames, test.wantFrames); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
			if diff := testutil.Diff(deoptReasons, []string{"", ""}); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}

func TestDecodeCurrentProfile(t *testing.T) {
	p, err := Decode([]byte(currentJSON))
	if err != nil {
		t.Fatalf("we should be able to decode the profile: %v", err)
	}
	m, err := New(p, Options{})
	if err != nil {
		t.Fatalf("we should be able to build the model: %v", err)
	}
	if diff := testutil.Diff(m.Timestamps, []float64{1.5, 2}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if m.ProfileStartTime != 1.5 || m.ProfileEndTime != 2 {
		t.Fatalf("expected profile bounds [1.5, 2], got [%v, %v]", m.ProfileStartTime, m.ProfileEndTime)
	}
	if diff := testutil.Diff(m.Lines, []int{3}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if ticks := m.NodeByID(2).PositionTicks; len(ticks) != 1 {
		t.Fatalf("expected position ticks to be passed through, got %d", len(ticks))
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "invalid json",
			input: `{"nodes": [`,
		},
		{
			name:  "invalid script id",
			input: `{"nodes": [{"id": 1, "callFrame": {"scriptId": true}}]}`,
		},
		{
			name:  "invalid children",
			input: `{"nodes": [{"id": 1, "children": "2"}]}`,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := Decode([]byte(test.input)); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestRawNodeRoundTrip(t *testing.T) {
	p, err := Decode([]byte(legacyJSON))
	if err != nil {
		t.Fatalf("we should be able to decode the profile: %v", err)
	}
	b, err := p.Head.MarshalJSON()
	if err != nil {
		t.Fatalf("we should be able to encode the head: %v", err)
	}
	var head RawNode
	if err := head.UnmarshalJSON(b); err != nil {
		t.Fatalf("we should be able to decode the head: %v", err)
	}
	if diff := testutil.Diff(head.Children, []int{2}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if len(head.nested) != 1 || head.nested[0].FunctionName != "main" {
		t.Fatalf("expected nested children to be encoded")
	}
}
