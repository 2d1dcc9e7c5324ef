// Package variables implements the orchestrator's typed variable container
// and template interpolation engine (component A).
//
// Values are plain JSON-compatible Go values (string, float64, bool, nil,
// []interface{}, map[string]interface{}) so the store never needs its own
// marshalling layer — it is exactly the shape encoding/json already
// produces and canonical-encodes.
package variables

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Store is a typed, path-addressable variable container. A single Store
// instance is never shared for writes across goroutines: the workflow-scope
// store is written only from the orchestrator task (spec §5), and each
// agent gets its own layered scope built from Merge.
type Store struct {
	values map[string]interface{}
}

// New returns an empty Store.
func New() *Store {
	return &Store{values: make(map[string]interface{})}
}

// FromMap wraps an existing map without copying it.
func FromMap(m map[string]interface{}) *Store {
	if m == nil {
		m = make(map[string]interface{})
	}
	return &Store{values: m}
}

// Set assigns a top-level variable.
func (s *Store) Set(name string, value interface{}) {
	s.values[name] = value
}

// Raw returns the underlying map. Callers must treat it as read-only unless
// they own the Store exclusively.
func (s *Store) Raw() map[string]interface{} {
	return s.values
}

// Resolve resolves a dotted path such as "user.name" or
// "map.results[2].id" against the store. Array indices use bracket
// notation; object keys use dot notation. Returns ok=false, rather than an
// error, when any segment of the path is missing — callers decide whether
// that is fatal (strict interpolation) or tolerable (lenient).
func (s *Store) Resolve(path string) (interface{}, bool) {
	return resolvePath(s.values, path)
}

// Merge layers `overlay` on top of `base`, producing a new Store. Keys in
// overlay win on collision. Neither input Store is mutated. This models
// the workflow-scope → captured-outputs → iteration-variables layering
// described in spec §4.K.1.
func Merge(base, overlay *Store) *Store {
	merged := make(map[string]interface{}, len(base.values)+len(overlay.values))
	for k, v := range base.values {
		merged[k] = v
	}
	for k, v := range overlay.values {
		merged[k] = v
	}
	return &Store{values: merged}
}

// MergeAll layers a sequence of stores left-to-right, later stores winning.
func MergeAll(stores ...*Store) *Store {
	result := New()
	for _, s := range stores {
		if s == nil {
			continue
		}
		result = Merge(result, s)
	}
	return result
}

// AvailablePaths returns every resolvable leaf path in the store, sorted,
// for use in "available paths" diagnostics when a strict resolution fails.
func (s *Store) AvailablePaths() []string {
	var paths []string
	collectPaths("", s.values, &paths)
	sort.Strings(paths)
	return paths
}

func collectPaths(prefix string, v interface{}, out *[]string) {
	switch t := v.(type) {
	case map[string]interface{}:
		if len(t) == 0 && prefix != "" {
			*out = append(*out, prefix)
			return
		}
		for k, val := range t {
			next := k
			if prefix != "" {
				next = prefix + "." + k
			}
			collectPaths(next, val, out)
		}
	case []interface{}:
		if len(t) == 0 && prefix != "" {
			*out = append(*out, prefix)
			return
		}
		for i, val := range t {
			next := fmt.Sprintf("%s[%d]", prefix, i)
			collectPaths(next, val, out)
		}
	default:
		if prefix != "" {
			*out = append(*out, prefix)
		}
	}
}

// resolvePath walks a dotted/bracketed path against an arbitrary
// JSON-shaped value tree, not just a top-level map, so it can also be used
// to resolve nested expressions like "item.data.files[0]".
func resolvePath(root interface{}, path string) (interface{}, bool) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, false
	}
	cur := root
	for _, seg := range segments {
		if seg.isIndex {
			arr, ok := cur.([]interface{})
			if !ok || seg.index < 0 || seg.index >= len(arr) {
				return nil, false
			}
			cur = arr[seg.index]
			continue
		}
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		val, exists := m[seg.key]
		if !exists {
			return nil, false
		}
		cur = val
	}
	return cur, true
}

type pathSegment struct {
	key     string
	index   int
	isIndex bool
}

// splitPath parses "a.b[2].c" into [{a} {b} {2,isIndex} {c}].
func splitPath(path string) ([]pathSegment, error) {
	var segments []pathSegment
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			segments = append(segments, pathSegment{key: cur.String()})
			cur.Reset()
		}
	}

	i := 0
	for i < len(path) {
		ch := path[i]
		switch ch {
		case '.':
			flush()
			i++
		case '[':
			flush()
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated index in path %q", path)
			}
			idxStr := path[i+1 : i+end]
			idx, err := strconv.Atoi(strings.TrimSpace(idxStr))
			if err != nil {
				return nil, fmt.Errorf("invalid index %q in path %q: %w", idxStr, path, err)
			}
			segments = append(segments, pathSegment{index: idx, isIndex: true})
			i += end + 1
		default:
			cur.WriteByte(ch)
			i++
		}
	}
	flush()
	return segments, nil
}
