// Package liveset implements the ordered name sets used by the dependency
// analysis: path names, environments and their serialised form.
package liveset

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Segment is one identifier of a path name. Marks are carried for round
// trips only and never take part in comparisons.
type Segment struct {
	Name  string
	Marks []int
}

// MarshalJSON writes a segment as a [name, [mark, ...]] pair.
func (s Segment) MarshalJSON() ([]byte, error) {
	marks := s.Marks
	if marks == nil {
		marks = []int{}
	}
	return json.Marshal([]any{s.Name, marks})
}

// UnmarshalJSON reads a [name, [mark, ...]] pair.
func (s *Segment) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("path segment: expected [name, marks], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &s.Name); err != nil {
		return fmt.Errorf("path segment name: %v", err)
	}
	var marks []int
	if err := json.Unmarshal(pair[1], &marks); err != nil {
		return fmt.Errorf("path segment marks: %v", err)
	}
	if len(marks) > 0 {
		s.Marks = marks
	} else {
		s.Marks = nil
	}
	return nil
}

// PathName is an ordered sequence of identifier segments.
type PathName []Segment

// Name builds a single segment path name.
func Name(name string, marks ...int) PathName {
	var m []int
	if len(marks) > 0 {
		m = append(m, marks...)
	}
	return PathName{{Name: name, Marks: m}}
}

// Qualified reports whether the path has more than one segment.
// Qualified paths are opaque to the analysis.
func (p PathName) Qualified() bool {
	return len(p) > 1
}

// Key is the comparison key: the string segments joined with a dot.
func (p PathName) Key() string {
	switch len(p) {
	case 0:
		return ""
	case 1:
		return p[0].Name
	}
	parts := make([]string, len(p))
	for i, seg := range p {
		parts[i] = seg.Name
	}
	return strings.Join(parts, ".")
}

func (p PathName) String() string {
	return p.Key()
}

// Ident returns the last segment name, which is the name used when the
// path is written back as a Go identifier.
func (p PathName) Ident() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1].Name
}

// Equal compares string segments only.
func (p PathName) Equal(o PathName) bool {
	return Compare(p, o) == 0
}

// Compare orders path names segment by segment, ignoring marks.
func Compare(a, b PathName) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i].Name, b[i].Name); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

func (p PathName) clone() PathName {
	out := make(PathName, len(p))
	for i, seg := range p {
		out[i].Name = seg.Name
		if len(seg.Marks) > 0 {
			out[i].Marks = append([]int(nil), seg.Marks...)
		}
	}
	return out
}

// Environment is a deduplicated set of path names kept in canonical
// (sorted) order. The zero value is the empty environment.
type Environment struct {
	paths []PathName
}

// New returns an environment holding the given paths.
func New(paths ...PathName) Environment {
	var e Environment
	for _, p := range paths {
		e.Add(p)
	}
	return e
}

// Names is a shorthand for an environment of single segment names.
func Names(names ...string) Environment {
	var e Environment
	for _, n := range names {
		e.Add(Name(n))
	}
	return e
}

func (e Environment) search(p PathName) (int, bool) {
	i := sort.Search(len(e.paths), func(i int) bool {
		return Compare(e.paths[i], p) >= 0
	})
	return i, i < len(e.paths) && Compare(e.paths[i], p) == 0
}

// Add inserts a path. An already present path keeps its original marks.
func (e *Environment) Add(p PathName) {
	if len(p) == 0 {
		return
	}
	i, found := e.search(p)
	if found {
		return
	}
	e.paths = append(e.paths, nil)
	copy(e.paths[i+1:], e.paths[i:])
	e.paths[i] = p.clone()
}

// Merge adds every path of o.
func (e *Environment) Merge(o Environment) {
	for _, p := range o.paths {
		e.Add(p)
	}
}

// Remove deletes a single path if present.
func (e *Environment) Remove(p PathName) {
	if i, found := e.search(p); found {
		e.paths = append(e.paths[:i], e.paths[i+1:]...)
	}
}

// RemoveAll deletes every path of o (set difference).
func (e *Environment) RemoveAll(o Environment) {
	for _, p := range o.paths {
		e.Remove(p)
	}
}

// Contains reports whether p is in the set.
func (e Environment) Contains(p PathName) bool {
	_, found := e.search(p)
	return found
}

// ContainsName reports whether the single segment name n is in the set.
func (e Environment) ContainsName(n string) bool {
	return e.Contains(Name(n))
}

// Intersect returns the paths present in both sets. Marks come from e.
func (e Environment) Intersect(o Environment) Environment {
	var out Environment
	for _, p := range e.paths {
		if o.Contains(p) {
			out.paths = append(out.paths, p.clone())
		}
	}
	return out
}

// Union returns a new set with the paths of both.
func (e Environment) Union(o Environment) Environment {
	out := e.Clone()
	out.Merge(o)
	return out
}

// Minus returns a new set holding the paths of e not in o.
func (e Environment) Minus(o Environment) Environment {
	var out Environment
	for _, p := range e.paths {
		if !o.Contains(p) {
			out.paths = append(out.paths, p.clone())
		}
	}
	return out
}

// Paths returns the paths in canonical order.
func (e Environment) Paths() []PathName {
	out := make([]PathName, len(e.paths))
	for i, p := range e.paths {
		out[i] = p.clone()
	}
	return out
}

// Idents returns the identifier of every path in canonical order.
func (e Environment) Idents() []string {
	out := make([]string, len(e.paths))
	for i, p := range e.paths {
		out[i] = p.Ident()
	}
	return out
}

func (e Environment) Len() int {
	return len(e.paths)
}

func (e Environment) Empty() bool {
	return len(e.paths) == 0
}

// Clone returns an independent copy.
func (e Environment) Clone() Environment {
	return Environment{paths: e.Paths()}
}

// Clear empties the set in place.
func (e *Environment) Clear() {
	e.paths = nil
}

// Equal compares the sets by string segments.
func (e Environment) Equal(o Environment) bool {
	if len(e.paths) != len(o.paths) {
		return false
	}
	for i := range e.paths {
		if Compare(e.paths[i], o.paths[i]) != 0 {
			return false
		}
	}
	return true
}

func (e Environment) String() string {
	return "{" + strings.Join(e.Idents(), ", ") + "}"
}

// Encoded is the serialised form of an environment: a sequence of paths,
// each a sequence of [name, [mark, ...]] pairs.
type Encoded [][]Segment

// Encode returns the canonical serialised form.
func (e Environment) Encode() Encoded {
	out := make(Encoded, len(e.paths))
	for i, p := range e.paths {
		out[i] = []Segment(p.clone())
	}
	return out
}

// Decode rebuilds an environment, canonicalising order and duplicates.
func Decode(enc Encoded) Environment {
	var e Environment
	for _, p := range enc {
		e.Add(PathName(p))
	}
	return e
}

// Canonical reports whether the encoded paths are already sorted and
// free of duplicates.
func (enc Encoded) Canonical() bool {
	for i := 1; i < len(enc); i++ {
		if Compare(PathName(enc[i-1]), PathName(enc[i])) >= 0 {
			return false
		}
	}
	return true
}

// MarshalJSON writes the environment in its encoded form.
func (e Environment) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Encode())
}

// UnmarshalJSON reads an encoded environment.
func (e *Environment) UnmarshalJSON(data []byte) error {
	var enc Encoded
	if err := json.Unmarshal(data, &enc); err != nil {
		return err
	}
	*e = Decode(enc)
	return nil
}
