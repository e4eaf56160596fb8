// Package dotpath converts between nested map/list structures and flat
// dotted-key representations, and projects nested structures by dotted path
// (pick, omit, select). Nested values are map[string]any and []any; anything
// else is a leaf.
package dotpath

import (
	"sort"
	"strconv"
	"strings"
)

// DefaultSeparator joins path segments unless Options overrides it.
const DefaultSeparator = "."

// Wildcard replaces numeric index segments when Options.CollapseIndices is set.
const Wildcard = "*"

// Options controls path formatting during flatten and unflatten.
type Options struct {
	// Separator joins segments; empty means DefaultSeparator.
	Separator string
	// Brackets formats list indices as "key[0]" instead of "key.0".
	Brackets bool
	// CollapseIndices replaces numeric index segments with Wildcard in
	// ListPaths output, deduplicating while preserving first-seen order.
	CollapseIndices bool
}

func (o Options) separator() string {
	if o.Separator == "" {
		return DefaultSeparator
	}
	return o.Separator
}

// Flatten walks the nested structure and returns a single-level map keyed by
// the full joined path of every leaf. Map keys are traversed in sorted order
// so derived path lists are deterministic.
func Flatten(nested map[string]any, opts Options) map[string]any {
	flat := make(map[string]any)
	walk(nested, "", opts, false, func(path string, leaf any) {
		flat[path] = leaf
	})
	return flat
}

// ListPaths returns the ordered leaf paths of the nested structure. With
// CollapseIndices set, numeric index segments become Wildcard and duplicate
// paths are removed, first occurrence winning.
func ListPaths(nested map[string]any, opts Options) []string {
	var paths []string
	seen := make(map[string]struct{})
	walk(nested, "", opts, opts.CollapseIndices, func(path string, leaf any) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	})
	return paths
}

func walk(value any, prefix string, opts Options, collapse bool, emit func(string, any)) {
	switch v := value.(type) {
	case map[string]any:
		if len(v) == 0 {
			emit(prefix, v)
			return
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walk(v[k], joinKey(prefix, k, opts), opts, collapse, emit)
		}
	case []any:
		if len(v) == 0 {
			emit(prefix, v)
			return
		}
		for i, elem := range v {
			walk(elem, joinIndex(prefix, i, opts, collapse), opts, collapse, emit)
		}
	default:
		emit(prefix, value)
	}
}

func joinKey(prefix, key string, opts Options) string {
	if prefix == "" {
		return key
	}
	return prefix + opts.separator() + key
}

func joinIndex(prefix string, index int, opts Options, collapse bool) string {
	segment := strconv.Itoa(index)
	if collapse {
		segment = Wildcard
	}
	if opts.Brackets {
		return prefix + "[" + segment + "]"
	}
	if prefix == "" {
		return segment
	}
	return prefix + opts.separator() + segment
}

// Unflatten rebuilds a nested structure from a flat dotted-key map. Levels
// whose keys are all numeric become lists ordered by index; everything else
// becomes a map.
func Unflatten(flat map[string]any, opts Options) map[string]any {
	root := newNode()
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		root.insert(splitPath(k, opts.separator()), flat[k])
	}
	nested, _ := root.materialize().(map[string]any)
	if nested == nil {
		nested = map[string]any{}
	}
	return nested
}

// Pick returns the subset of the nested structure addressed by the given
// paths. Each path is resolved hierarchically; when that fails but a literal
// top-level key equal to the whole path string exists, that entry is
// reinterpreted as a dotted path. Unresolvable paths are skipped. When
// requested paths overlap, the ancestor wins: a path that descends from
// another requested path is dropped, so the ancestor's full subtree is
// copied intact.
func Pick(nested map[string]any, paths []string) map[string]any {
	flat := make(map[string]any)
	for _, path := range paths {
		if value, ok := Resolve(nested, path); ok {
			flat[path] = value
			continue
		}
		if value, ok := nested[path]; ok {
			flat[path] = value
		}
	}
	for path := range flat {
		for other := range flat {
			if other != path && pathMatches(path, other) {
				delete(flat, path)
				break
			}
		}
	}
	return Unflatten(flat, Options{})
}

// Omit returns the nested structure with every entry removed whose flattened
// path equals one of the given paths or is a strict descendant of one. The
// descendant check is boundary safe: the character after the matched prefix
// must be '.' or '[', so "a" never matches "ab". Empty-string paths are
// ignored.
func Omit(nested map[string]any, paths []string) map[string]any {
	flat := Flatten(nested, Options{})
	for key := range flat {
		for _, path := range paths {
			if pathMatches(key, path) {
				delete(flat, key)
				break
			}
		}
	}
	return Unflatten(flat, Options{})
}

// pathMatches reports whether key equals path or descends from it.
func pathMatches(key, path string) bool {
	if path == "" {
		return false
	}
	if key == path {
		return true
	}
	if !strings.HasPrefix(key, path) {
		return false
	}
	next := key[len(path)]
	return next == '.' || next == '['
}

// Resolve descends the nested structure segment by segment and returns the
// value at the dotted path. Bracket index notation is accepted.
func Resolve(nested any, path string) (any, bool) {
	current := nested
	for _, segment := range splitPath(path, DefaultSeparator) {
		switch node := current.(type) {
		case map[string]any:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = value
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}
			current = node[index]
		default:
			return nil, false
		}
	}
	return current, true
}

// SelectOrNull resolves every requested key (dotted or flat) against the
// source; missing keys are present in the output with a nil value.
func SelectOrNull(source map[string]any, keys []string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		if value, ok := Resolve(source, key); ok {
			out[key] = value
		} else {
			out[key] = nil
		}
	}
	return out
}

// Set writes value at the dotted path inside dst, creating intermediate maps
// as needed. Existing siblings are preserved; an existing non-container value
// along the path is replaced by a map.
func Set(dst map[string]any, path string, value any) {
	segments := splitPath(path, DefaultSeparator)
	current := dst
	for _, segment := range segments[:len(segments)-1] {
		child, ok := current[segment].(map[string]any)
		if !ok {
			child = make(map[string]any)
			current[segment] = child
		}
		current = child
	}
	current[segments[len(segments)-1]] = value
}

// splitPath breaks a dotted path into segments, expanding bracket index
// notation: "a[0].b" becomes ["a", "0", "b"].
func splitPath(path, separator string) []string {
	var segments []string
	for _, part := range strings.Split(path, separator) {
		for {
			open := strings.IndexByte(part, '[')
			if open < 0 {
				if part != "" {
					segments = append(segments, part)
				}
				break
			}
			if open > 0 {
				segments = append(segments, part[:open])
			}
			closing := strings.IndexByte(part[open:], ']')
			if closing < 0 {
				segments = append(segments, part[open:])
				break
			}
			segments = append(segments, part[open+1:open+closing])
			part = part[open+closing+1:]
		}
	}
	return segments
}

// node is the intermediate tree used by Unflatten and Pick to rebuild
// nested structures from flat entries.
type node struct {
	children map[string]*node
	leaf     any
	isLeaf   bool
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

func (n *node) insert(segments []string, value any) {
	if len(segments) == 0 {
		n.leaf = value
		n.isLeaf = true
		return
	}
	child, ok := n.children[segments[0]]
	if !ok {
		child = newNode()
		n.children[segments[0]] = child
	}
	child.insert(segments[1:], value)
}

func (n *node) materialize() any {
	if len(n.children) == 0 {
		if n.isLeaf {
			return n.leaf
		}
		return map[string]any{}
	}
	if indices, ok := n.numericChildren(); ok {
		list := make([]any, len(indices))
		for i, key := range indices {
			list[i] = n.children[key].materialize()
		}
		return list
	}
	out := make(map[string]any, len(n.children))
	for key, child := range n.children {
		out[key] = child.materialize()
	}
	return out
}

// numericChildren returns the child keys ordered by numeric value when every
// key is a non-negative integer.
func (n *node) numericChildren() ([]string, bool) {
	type indexed struct {
		key   string
		index int
	}
	ordered := make([]indexed, 0, len(n.children))
	for key := range n.children {
		index, err := strconv.Atoi(key)
		if err != nil || index < 0 {
			return nil, false
		}
		ordered = append(ordered, indexed{key: key, index: index})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].index < ordered[j].index })
	keys := make([]string, len(ordered))
	for i, entry := range ordered {
		keys[i] = entry.key
	}
	return keys, true
}
