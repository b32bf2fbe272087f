package store

import (
	"encoding/json"
	"strconv"
	"strings"
)

// SplitPath breaks a slash path into its segments.
func SplitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

// EntityKey returns the top-level record a path belongs to (the first two
// segments, e.g. "games/r1") plus the remaining segments within it. Both
// store backends persist one JSON document per entity and splice deeper
// writes into it.
func EntityKey(path string) (string, []string) {
	segs := SplitPath(path)
	if len(segs) <= 2 {
		return strings.Join(segs, "/"), nil
	}
	return segs[0] + "/" + segs[1], segs[2:]
}

// Splice returns root with value inserted at the location named by segs.
// A nil value removes the node (and its subtree). Intermediate objects are
// created as needed. Splicing with no segments replaces the document.
func Splice(root []byte, segs []string, value []byte) ([]byte, error) {
	if len(segs) == 0 {
		if value == nil {
			return nil, nil
		}
		return value, nil
	}

	var doc map[string]any
	if len(root) > 0 {
		if err := json.Unmarshal(root, &doc); err != nil {
			// Scalar or array at the entity root gets replaced by an object.
			doc = nil
		}
	}
	if doc == nil {
		doc = make(map[string]any)
	}

	node := doc
	for _, seg := range segs[:len(segs)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[seg] = child
		}
		node = child
	}

	last := segs[len(segs)-1]
	if value == nil {
		delete(node, last)
	} else {
		var v any
		if err := json.Unmarshal(value, &v); err != nil {
			return nil, err
		}
		node[last] = v
	}
	return json.Marshal(doc)
}

// Extract returns the JSON subtree of root at segs, or ok=false when the
// path does not exist. Array nodes accept numeric segments.
func Extract(root []byte, segs []string) ([]byte, bool) {
	if len(root) == 0 {
		return nil, false
	}
	if len(segs) == 0 {
		return root, true
	}
	var node any
	if err := json.Unmarshal(root, &node); err != nil {
		return nil, false
	}
	for _, seg := range segs {
		switch n := node.(type) {
		case map[string]any:
			child, ok := n[seg]
			if !ok {
				return nil, false
			}
			node = child
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(n) {
				return nil, false
			}
			node = n[idx]
		default:
			return nil, false
		}
	}
	out, err := json.Marshal(node)
	if err != nil {
		return nil, false
	}
	return out, true
}
