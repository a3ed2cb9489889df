package frame

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/fnv"
	"path"
	"strings"

	"github.com/getsentry/cpuprof/internal/cpuprofile"
	"github.com/getsentry/cpuprof/internal/packageutil"
)

// anonymousFunction is how V8 tooling displays functions without a name.
const anonymousFunction = "(anonymous)"

type (
	Frame struct {
		Column   uint32 `json:"colno,omitempty"`
		File     string `json:"filename,omitempty"`
		Function string `json:"function,omitempty"`
		InApp    *bool  `json:"in_app"`
		Line     uint32 `json:"lineno,omitempty"`
		Package  string `json:"package,omitempty"`
		Path     string `json:"abs_path,omitempty"`
		ScriptID string `json:"script_id,omitempty"`
		Status   string `json:"status,omitempty"`
	}
)

// FromNode converts a profile node to a frame. Line and column numbers are
// 1-based in frames and 0-based in profiles.
func FromNode(n *cpuprofile.Node) Frame {
	f := Frame{
		Function: n.FunctionName,
		Path:     n.URL,
		ScriptID: string(n.ScriptID),
	}
	if n.LineNumber >= 0 {
		f.Line = uint32(n.LineNumber + 1)
	}
	if n.ColumnNumber >= 0 {
		f.Column = uint32(n.ColumnNumber + 1)
	}
	if n.URL != "" {
		f.File = fileName(n.URL)
	}
	if f.Function == "" && n.URL != "" {
		f.Function = anonymousFunction
	}
	if isSystemFunction(n.FunctionName, n.URL) {
		f.Status = "system"
		f.InApp = new(bool)
		return f
	}
	p := packageutil.ParseNodePackageFromPath(n.URL)
	f.Package = p.Package
	f.InApp = p.InApp
	return f
}

func (f Frame) ID() string {
	// Two frames on the same line can belong to different functions when code
	// is minified, so the column is part of the identity.
	hash := md5.Sum([]byte(fmt.Sprintf("%s:%s:%d:%d", f.Path, f.Function, f.Line, f.Column)))
	return hex.EncodeToString(hash[:])
}

func (f Frame) WriteToHash(h hash.Hash) {
	var s string
	if f.Package != "" {
		s = f.Package
	} else if f.File != "" {
		s = f.File
	} else {
		s = "-"
	}
	h.Write([]byte(s))
	if f.Function != "" {
		s = f.Function
	} else {
		s = "-"
	}
	h.Write([]byte(s))
}

// Fingerprint identifies the function a frame belongs to, regardless of the
// line being executed.
func (f Frame) Fingerprint() uint32 {
	h := fnv.New32()
	f.WriteToHash(h)
	return h.Sum32()
}

// IsApplicationFrame returns true for frames of the profiled application,
// excluding dependencies, runtime builtins and V8 pseudo frames.
func (f Frame) IsApplicationFrame() bool {
	return f.InApp != nil && *f.InApp
}

// IsSystem returns true for V8 pseudo frames like (program) or (garbage collector).
func (f Frame) IsSystem() bool {
	return f.Status == "system"
}

func isSystemFunction(name, url string) bool {
	return url == "" && strings.HasPrefix(name, "(") && strings.HasSuffix(name, ")")
}

// fileName returns the last path element of a script url, dropping any query.
func fileName(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	url = strings.TrimPrefix(url, "native ")
	return path.Base(url)
}
