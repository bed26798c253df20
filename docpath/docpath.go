// Package docpath addresses leaves inside decoded JSON documents.
//
// A Path is a sequence of elements, each either a map key or a slice
// index. Paths render as dot-joined strings ("features.0.title") for
// display and logs, and as JSON arrays on the wire so that keys which
// themselves contain dots stay unambiguous.
package docpath

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Elem is one step of a Path.
type Elem struct {
	Key     string
	Index   int
	IsIndex bool
}

// Key returns a map-key element.
func Key(k string) Elem { return Elem{Key: k} }

// Index returns a slice-index element.
func Index(i int) Elem { return Elem{Index: i, IsIndex: true} }

func (e Elem) String() string {
	if e.IsIndex {
		return strconv.Itoa(e.Index)
	}
	return e.Key
}

// Path is an ordered address into a document tree.
type Path []Elem

// Append returns a new path with elem added. The receiver is never
// shared with the result, so sibling branches can extend the same prefix.
func (p Path) Append(elems ...Elem) Path {
	out := make(Path, len(p), len(p)+len(elems))
	copy(out, p)
	return append(out, elems...)
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, e := range p {
		parts[i] = e.String()
	}
	return strings.Join(parts, ".")
}

// Equal reports whether two paths address the same location.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// Parse converts a dot-joined string back to a Path. Purely numeric
// segments become indices.
func Parse(s string) Path {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ".")
	p := make(Path, 0, len(parts))
	for _, part := range parts {
		if n, err := strconv.Atoi(part); err == nil && n >= 0 {
			p = append(p, Index(n))
			continue
		}
		p = append(p, Key(part))
	}
	return p
}

// MarshalJSON encodes the path as an array of strings and numbers.
func (p Path) MarshalJSON() ([]byte, error) {
	out := make([]any, len(p))
	for i, e := range p {
		if e.IsIndex {
			out[i] = e.Index
		} else {
			out[i] = e.Key
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the array form produced by MarshalJSON.
func (p *Path) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Path, 0, len(raw))
	for _, v := range raw {
		switch t := v.(type) {
		case string:
			out = append(out, Key(t))
		case float64:
			out = append(out, Index(int(t)))
		default:
			return fmt.Errorf("invalid path element %v", v)
		}
	}
	*p = out
	return nil
}

// Get returns the value stored at p, or false if any step does not resolve.
func Get(doc any, p Path) (any, bool) {
	cur := doc
	for _, e := range p {
		next, ok := step(cur, e)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func step(cur any, e Elem) (any, bool) {
	if e.IsIndex {
		arr, ok := cur.([]any)
		if !ok || e.Index < 0 || e.Index >= len(arr) {
			return nil, false
		}
		return arr[e.Index], true
	}
	m, ok := cur.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[e.Key]
	return v, ok
}

// Set writes value at p in place. The parent of the last element must
// already exist and be of the matching container kind; otherwise Set
// leaves the tree untouched and returns false.
func Set(doc any, p Path, value any) bool {
	if len(p) == 0 {
		return false
	}
	parent, ok := Get(doc, p[:len(p)-1])
	if !ok {
		return false
	}
	last := p[len(p)-1]
	if last.IsIndex {
		arr, ok := parent.([]any)
		if !ok || last.Index < 0 || last.Index >= len(arr) {
			return false
		}
		arr[last.Index] = value
		return true
	}
	m, ok := parent.(map[string]any)
	if !ok {
		return false
	}
	m[last.Key] = value
	return true
}

// Clone deep-copies maps and slices; scalars are shared.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Clone(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Clone(val)
		}
		return out
	default:
		return v
	}
}

// CloneMap is Clone for the common top-level document shape.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return Clone(m).(map[string]any)
}
