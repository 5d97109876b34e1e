// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package schemadiff

import "strings"

// ResolveRefs returns a copy of doc with internal $ref pointers
// (#/$defs/... and #/definitions/...) replaced by their targets.
// Sibling properties of a $ref are merged over the resolved target.
// External refs are left untouched. Circular refs terminate: a pointer
// already on the resolution path is kept as-is.
func ResolveRefs(doc Schema) Schema {
	if doc == nil {
		return nil
	}
	out := resolveNode(doc, doc, map[string]bool{}, 0)
	node, _ := out.(map[string]interface{})
	return node
}

func resolveNode(value interface{}, root Schema, seen map[string]bool, depth int) interface{} {
	if depth > MaxDepth {
		return value
	}
	switch v := value.(type) {
	case map[string]interface{}:
		if ref, ok := v["$ref"].(string); ok {
			target, resolved := lookupRef(root, ref)
			if resolved && !seen[ref] {
				seen[ref] = true
				merged := make(map[string]interface{}, len(target)+len(v))
				for k, tv := range target {
					merged[k] = tv
				}
				for k, sv := range v {
					if k != "$ref" {
						merged[k] = sv
					}
				}
				out := resolveNode(merged, root, seen, depth+1)
				delete(seen, ref)
				return out
			}
			// External or circular ref: preserved untouched.
			return copyMap(v)
		}
		out := make(map[string]interface{}, len(v))
		for k, sub := range v {
			out[k] = resolveNode(sub, root, seen, depth+1)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, sub := range v {
			out[i] = resolveNode(sub, root, seen, depth+1)
		}
		return out
	default:
		return value
	}
}

func lookupRef(root Schema, ref string) (Schema, bool) {
	var path string
	switch {
	case strings.HasPrefix(ref, "#/$defs/"):
		path = strings.TrimPrefix(ref, "#/$defs/")
		if defs, ok := root["$defs"].(map[string]interface{}); ok {
			return lookupPath(defs, path)
		}
	case strings.HasPrefix(ref, "#/definitions/"):
		path = strings.TrimPrefix(ref, "#/definitions/")
		if defs, ok := root["definitions"].(map[string]interface{}); ok {
			return lookupPath(defs, path)
		}
	}
	return nil, false
}

func lookupPath(node map[string]interface{}, path string) (Schema, bool) {
	cur := node
	for _, seg := range strings.Split(path, "/") {
		next, ok := cur[seg].(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
