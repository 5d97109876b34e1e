// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package schemadiff

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// ChangeKind enumerates every kind of structural change the differ emits.
type ChangeKind string

const (
	PropertyAdded   ChangeKind = "property_added"
	PropertyRemoved ChangeKind = "property_removed"

	RequiredAdded   ChangeKind = "required_added"
	RequiredRemoved ChangeKind = "required_removed"

	TypeChanged  ChangeKind = "type_changed"
	TypeWidened  ChangeKind = "type_widened"
	TypeNarrowed ChangeKind = "type_narrowed"

	EnumValuesAdded   ChangeKind = "enum_values_added"
	EnumValuesRemoved ChangeKind = "enum_values_removed"

	ConstraintTightened ChangeKind = "constraint_tightened"
	ConstraintRelaxed   ChangeKind = "constraint_relaxed"

	DefaultAdded   ChangeKind = "default_added"
	DefaultRemoved ChangeKind = "default_removed"
	DefaultChanged ChangeKind = "default_changed"

	NullableAdded   ChangeKind = "nullable_added"
	NullableRemoved ChangeKind = "nullable_removed"
)

// Change is one structural difference between two schema documents.
type Change struct {
	Kind    ChangeKind  `json:"kind"`
	Path    string      `json:"path"`
	Old     interface{} `json:"old,omitempty"`
	New     interface{} `json:"new,omitempty"`
	Details string      `json:"details,omitempty"`
}

// Diff compares two schema documents and returns the ordered change
// list. Refs are resolved before comparison. Recursion stops at
// MaxDepth.
func Diff(oldDoc, newDoc Schema) []Change {
	old := ResolveRefs(oldDoc)
	updated := ResolveRefs(newDoc)
	var changes []Change
	diffNode(old, updated, "", 0, &changes)
	return changes
}

func diffNode(old, updated Schema, path string, depth int, out *[]Change) {
	if depth > MaxDepth || old == nil || updated == nil {
		return
	}

	diffType(old, updated, path, out)
	diffEnum(old, updated, path, out)
	diffConstraints(old, updated, path, out)
	diffDefault(old, updated, path, out)
	diffRequired(old, updated, path, out)

	oldProps := properties(old)
	newProps := properties(updated)
	for _, name := range sortedKeys(oldProps) {
		sub := joinPath(path, "properties."+name)
		if next, ok := newProps[name]; ok {
			diffNode(oldProps[name], next, sub, depth+1, out)
		} else {
			*out = append(*out, Change{Kind: PropertyRemoved, Path: sub, Old: oldProps[name]})
		}
	}
	for _, name := range sortedKeys(newProps) {
		if _, ok := oldProps[name]; !ok {
			sub := joinPath(path, "properties."+name)
			*out = append(*out, Change{Kind: PropertyAdded, Path: sub, New: newProps[name]})
		}
	}

	oldItems, _ := old["items"].(map[string]interface{})
	newItems, _ := updated["items"].(map[string]interface{})
	if oldItems != nil && newItems != nil {
		diffNode(oldItems, newItems, joinPath(path, "items"), depth+1, out)
	}
}

func diffType(old, updated Schema, path string, out *[]Change) {
	oldType, oldNullable, oldDeclared := typeInfo(old)
	newType, newNullable, newDeclared := typeInfo(updated)

	if oldDeclared && newDeclared && oldType != newType {
		switch {
		case oldType == "integer" && newType == "number":
			*out = append(*out, Change{Kind: TypeWidened, Path: joinPath(path, "type"), Old: oldType, New: newType})
		case oldType == "number" && newType == "integer":
			*out = append(*out, Change{Kind: TypeNarrowed, Path: joinPath(path, "type"), Old: oldType, New: newType})
		default:
			*out = append(*out, Change{Kind: TypeChanged, Path: joinPath(path, "type"), Old: oldType, New: newType})
		}
	}
	if !oldNullable && newNullable {
		*out = append(*out, Change{Kind: NullableAdded, Path: joinPath(path, "type"), Old: oldType, New: newType})
	}
	if oldNullable && !newNullable {
		*out = append(*out, Change{Kind: NullableRemoved, Path: joinPath(path, "type"), Old: oldType, New: newType})
	}
}

func diffEnum(old, updated Schema, path string, out *[]Change) {
	oldEnum := enumValues(old)
	newEnum := enumValues(updated)
	if oldEnum == nil && newEnum == nil {
		return
	}
	oldSet := valueSet(oldEnum)
	newSet := valueSet(newEnum)
	var added, removed []interface{}
	for _, v := range newEnum {
		if !oldSet[fmt.Sprint(v)] {
			added = append(added, v)
		}
	}
	for _, v := range oldEnum {
		if !newSet[fmt.Sprint(v)] {
			removed = append(removed, v)
		}
	}
	// An enum introduced where none existed restricts the value space.
	if oldEnum == nil && newEnum != nil {
		*out = append(*out, Change{Kind: ConstraintTightened, Path: joinPath(path, "enum"), New: newEnum, Details: "enum introduced"})
		return
	}
	if oldEnum != nil && newEnum == nil {
		*out = append(*out, Change{Kind: ConstraintRelaxed, Path: joinPath(path, "enum"), Old: oldEnum, Details: "enum removed"})
		return
	}
	if len(added) > 0 {
		*out = append(*out, Change{Kind: EnumValuesAdded, Path: joinPath(path, "enum"), New: added})
	}
	if len(removed) > 0 {
		*out = append(*out, Change{Kind: EnumValuesRemoved, Path: joinPath(path, "enum"), Old: removed})
	}
}

// lowerBoundKeys tighten when raised; upperBoundKeys tighten when lowered.
var lowerBoundKeys = []string{"minimum", "exclusiveMinimum", "minLength", "minItems", "minProperties"}
var upperBoundKeys = []string{"maximum", "exclusiveMaximum", "maxLength", "maxItems", "maxProperties"}

func diffConstraints(old, updated Schema, path string, out *[]Change) {
	for _, key := range lowerBoundKeys {
		diffBound(old, updated, path, key, true, out)
	}
	for _, key := range upperBoundKeys {
		diffBound(old, updated, path, key, false, out)
	}

	oldPattern, oldHas := old["pattern"].(string)
	newPattern, newHas := updated["pattern"].(string)
	switch {
	case !oldHas && newHas:
		*out = append(*out, Change{Kind: ConstraintTightened, Path: joinPath(path, "pattern"), New: newPattern})
	case oldHas && !newHas:
		*out = append(*out, Change{Kind: ConstraintRelaxed, Path: joinPath(path, "pattern"), Old: oldPattern})
	case oldHas && newHas && oldPattern != newPattern:
		// Pattern equivalence is undecidable here; a changed pattern is
		// treated as tightened.
		*out = append(*out, Change{Kind: ConstraintTightened, Path: joinPath(path, "pattern"), Old: oldPattern, New: newPattern})
	}
}

func diffBound(old, updated Schema, path, key string, lower bool, out *[]Change) {
	oldVal, oldHas := numeric(old[key])
	newVal, newHas := numeric(updated[key])
	full := joinPath(path, key)
	switch {
	case !oldHas && newHas:
		*out = append(*out, Change{Kind: ConstraintTightened, Path: full, New: newVal})
	case oldHas && !newHas:
		*out = append(*out, Change{Kind: ConstraintRelaxed, Path: full, Old: oldVal})
	case oldHas && newHas && oldVal != newVal:
		tightened := (lower && newVal > oldVal) || (!lower && newVal < oldVal)
		kind := ConstraintRelaxed
		if tightened {
			kind = ConstraintTightened
		}
		*out = append(*out, Change{Kind: kind, Path: full, Old: oldVal, New: newVal})
	}
}

func diffDefault(old, updated Schema, path string, out *[]Change) {
	oldVal, oldHas := old["default"]
	newVal, newHas := updated["default"]
	full := joinPath(path, "default")
	switch {
	case !oldHas && newHas:
		*out = append(*out, Change{Kind: DefaultAdded, Path: full, New: newVal})
	case oldHas && !newHas:
		*out = append(*out, Change{Kind: DefaultRemoved, Path: full, Old: oldVal})
	case oldHas && newHas && !reflect.DeepEqual(oldVal, newVal):
		*out = append(*out, Change{Kind: DefaultChanged, Path: full, Old: oldVal, New: newVal})
	}
}

func diffRequired(old, updated Schema, path string, out *[]Change) {
	oldReq := requiredSet(old)
	newReq := requiredSet(updated)
	for _, name := range sortedBoolKeys(newReq) {
		if !oldReq[name] {
			*out = append(*out, Change{Kind: RequiredAdded, Path: joinPath(path, "properties."+name), New: name})
		}
	}
	for _, name := range sortedBoolKeys(oldReq) {
		if !newReq[name] {
			*out = append(*out, Change{Kind: RequiredRemoved, Path: joinPath(path, "properties."+name), Old: name})
		}
	}
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return prefix + "." + segment
}

func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func valueSet(values []interface{}) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[fmt.Sprint(v)] = true
	}
	return out
}

func sortedKeys(m map[string]Schema) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedBoolKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
