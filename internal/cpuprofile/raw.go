package cpuprofile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	gojson "github.com/goccy/go-json"
)

const (
	FormatUnknown Format = iota
	FormatLegacy
	FormatCurrent
)

// nativeURLPrefix marks frames coming from V8 natives.
const nativeURLPrefix = "native "

// noDeoptReason is sent by old backends for functions that were never deoptimized.
const noDeoptReason = "no reason"

type (
	// Format is the wire shape of a raw profile.
	Format int

	// ScriptID is sent either as a string or as a number depending on the producer.
	ScriptID string

	CallFrame struct {
		ColumnNumber int      `json:"columnNumber"`
		FunctionName string   `json:"functionName"`
		LineNumber   int      `json:"lineNumber"`
		ScriptID     ScriptID `json:"scriptId"`
		URL          string   `json:"url"`
	}

	// RawNode is a node as sent by the profiler. Legacy producers put the call
	// frame fields directly on the node, with 1-based line and column numbers.
	RawNode struct {
		CallFrame     *CallFrame        `json:"callFrame,omitempty"`
		Children      []int             `json:"-"`
		DeoptReason   string            `json:"deoptReason,omitempty"`
		HitCount      *int              `json:"hitCount,omitempty"`
		ID            int               `json:"id"`
		Parent        *int              `json:"parent,omitempty"`
		PositionTicks []json.RawMessage `json:"positionTicks,omitempty"`

		ColumnNumber int      `json:"columnNumber,omitempty"`
		FunctionName string   `json:"functionName,omitempty"`
		LineNumber   int      `json:"lineNumber,omitempty"`
		ScriptID     ScriptID `json:"scriptId,omitempty"`
		URL          string   `json:"url,omitempty"`

		// children of a legacy head node are nested nodes instead of ids
		nested []*RawNode
	}

	// RawProfile holds either shape: a legacy profile with a recursive head,
	// timestamps and start/end times in seconds, or a current profile with a
	// flat node table and start/end times in microseconds.
	RawProfile struct {
		EndTime    float64   `json:"endTime"`
		Head       *RawNode  `json:"head,omitempty"`
		Lines      []int     `json:"lines,omitempty"`
		Nodes      []RawNode `json:"nodes,omitempty"`
		Samples    []int     `json:"samples,omitempty"`
		StartTime  float64   `json:"startTime"`
		TimeDeltas []float64 `json:"timeDeltas,omitempty"`
		Timestamps []float64 `json:"timestamps,omitempty"`
	}

	rawNodeAlias RawNode

	rawNodeWire struct {
		*rawNodeAlias
		Children json.RawMessage `json:"children,omitempty"`
	}
)

func (f Format) String() string {
	switch f {
	case FormatLegacy:
		return "legacy"
	case FormatCurrent:
		return "current"
	}
	return "unknown"
}

func (s *ScriptID) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := gojson.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = ScriptID(v)
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid scriptId %s: %w", b, err)
	}
	*s = ScriptID(strconv.FormatInt(n, 10))
	return nil
}

// UnmarshalJSON accepts children both as a list of ids and, for legacy head
// nodes, as a list of nested nodes.
func (n *RawNode) UnmarshalJSON(b []byte) error {
	w := rawNodeWire{rawNodeAlias: (*rawNodeAlias)(n)}
	if err := gojson.Unmarshal(b, &w); err != nil {
		return err
	}
	children := bytes.TrimSpace(w.Children)
	if len(children) == 0 || bytes.Equal(children, []byte("null")) {
		return nil
	}
	var ids []int
	if err := gojson.Unmarshal(children, &ids); err == nil {
		n.Children = ids
		return nil
	}
	var nested []*RawNode
	if err := gojson.Unmarshal(children, &nested); err != nil {
		return err
	}
	n.nested = nested
	n.Children = make([]int, 0, len(nested))
	for _, c := range nested {
		n.Children = append(n.Children, c.ID)
	}
	return nil
}

func (n RawNode) MarshalJSON() ([]byte, error) {
	w := struct {
		rawNodeAlias
		Children interface{} `json:"children,omitempty"`
	}{
		rawNodeAlias: rawNodeAlias(n),
	}
	if len(n.nested) > 0 {
		w.Children = n.nested
	} else if n.Children != nil {
		w.Children = n.Children
	}
	return gojson.Marshal(w)
}

// Nest attaches children to a node to build a legacy head tree by hand.
func (n *RawNode) Nest(children ...*RawNode) *RawNode {
	n.nested = append(n.nested, children...)
	for _, c := range children {
		n.Children = append(n.Children, c.ID)
	}
	return n
}

// Frame returns the call frame of the node, converting legacy fields when
// the node has no callFrame.
func (n RawNode) Frame() CallFrame {
	if n.CallFrame != nil {
		return *n.CallFrame
	}
	return CallFrame{
		ColumnNumber: n.ColumnNumber - 1,
		FunctionName: n.FunctionName,
		LineNumber:   n.LineNumber - 1,
		ScriptID:     n.ScriptID,
		URL:          n.URL,
	}
}

func (n RawNode) isNative() bool {
	url := n.URL
	if n.CallFrame != nil {
		url = n.CallFrame.URL
	}
	return strings.HasPrefix(url, nativeURLPrefix)
}

// Format reports which of the two wire shapes the profile is in.
func (p RawProfile) Format() Format {
	switch {
	case p.Head != nil:
		return FormatLegacy
	case p.Nodes != nil:
		return FormatCurrent
	}
	return FormatUnknown
}

// Decode parses a raw profile from its JSON encoding.
func Decode(b []byte) (RawProfile, error) {
	var p RawProfile
	err := gojson.Unmarshal(b, &p)
	if err != nil {
		return RawProfile{}, err
	}
	return p, nil
}
