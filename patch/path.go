package patch

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Path is a parsed JSON Pointer (RFC 6901), one unescaped segment per
// element. An empty Path denotes the document root.
type Path []string

// ParsePath parses a JSON-Pointer string ("", "/a/b/0", "/a/-") into a Path.
func ParsePath(s string) Path {
	if s == "" {
		return Path{}
	}
	raw := strings.Split(strings.TrimPrefix(s, "/"), "/")
	out := make(Path, len(raw))
	for i, seg := range raw {
		out[i] = unescapeSegment(seg)
	}
	return out
}

// String renders the Path back to JSON-Pointer form.
func (p Path) String() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	for _, seg := range p {
		b.WriteByte('/')
		b.WriteString(escapeSegment(seg))
	}
	return b.String()
}

// IsRoot reports whether the path refers to the document root.
func (p Path) IsRoot() bool { return len(p) == 0 }

// Parent returns the path to the containing value and the final segment.
// Calling Parent on the root path returns (nil, "", false).
func (p Path) Parent() (Path, string, bool) {
	if len(p) == 0 {
		return nil, "", false
	}
	parent := make(Path, len(p)-1)
	copy(parent, p[:len(p)-1])
	return parent, p[len(p)-1], true
}

// Append returns a new Path with seg appended.
func (p Path) Append(seg string) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = seg
	return out
}

// Clone returns a copy of the path.
func (p Path) Clone() Path {
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// Equal reports structural equality.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Under reports whether p is ancestor of other (other equals p or descends
// from p).
func (p Path) Under(other Path) bool {
	if len(other) < len(p) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// StrictlyUnder reports whether other is a strict descendant of p.
func (p Path) StrictlyUnder(other Path) bool {
	return len(other) > len(p) && p.Under(other)
}

// ArrayIndex reports whether the final segment names an array index (or the
// "-" end-of-array marker) and returns it. A "-" returns ok=true, isDash=true.
func (p Path) ArrayIndex() (index int, isDash bool, ok bool) {
	if len(p) == 0 {
		return 0, false, false
	}
	last := p[len(p)-1]
	if last == "-" {
		return 0, true, true
	}
	n, err := strconv.Atoi(last)
	if err != nil || n < 0 {
		return 0, false, false
	}
	return n, false, true
}

// WithIndex returns a copy of p with its final segment replaced by the given
// array index. Panics if p is root; callers only call this after confirming
// ArrayIndex succeeded on the sibling path shape.
func (p Path) WithIndex(index int) Path {
	out := p.Clone()
	out[len(out)-1] = strconv.Itoa(index)
	return out
}

// MarshalJSON renders the path as a JSON-Pointer string, matching how paths
// appear on the wire in both the verbose and compact op encodings.
func (p Path) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON parses a JSON-Pointer string into a Path.
func (p *Path) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*p = ParsePath(s)
	return nil
}

func unescapeSegment(seg string) string {
	seg = strings.ReplaceAll(seg, "~1", "/")
	seg = strings.ReplaceAll(seg, "~0", "~")
	return seg
}

func escapeSegment(seg string) string {
	seg = strings.ReplaceAll(seg, "~", "~0")
	seg = strings.ReplaceAll(seg, "/", "~1")
	return seg
}
