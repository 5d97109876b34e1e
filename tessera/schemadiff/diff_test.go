// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package schemadiff_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tessera.io/tessera/tessera/schemadiff"
)

func parse(t *testing.T, doc string) schemadiff.Schema {
	t.Helper()
	var out schemadiff.Schema
	require.NoError(t, json.Unmarshal([]byte(doc), &out))
	return out
}

func kinds(changes []schemadiff.Change) []schemadiff.ChangeKind {
	out := make([]schemadiff.ChangeKind, 0, len(changes))
	for _, c := range changes {
		out = append(out, c.Kind)
	}
	return out
}

func TestDiffIdentical(t *testing.T) {
	doc := parse(t, `{"type":"object","properties":{"id":{"type":"integer"}},"required":["id"]}`)
	changes := schemadiff.Diff(doc, doc)
	assert.Empty(t, changes)
	assert.Equal(t, schemadiff.Patch, schemadiff.TypeOf(changes))

	for _, mode := range []schemadiff.Mode{schemadiff.Backward, schemadiff.Forward, schemadiff.Full, schemadiff.None} {
		compatible, breaking := schemadiff.Classify(mode, changes)
		assert.True(t, compatible, "mode %s", mode)
		assert.Empty(t, breaking)
	}
}

func TestDiffOptionalPropertyAdded(t *testing.T) {
	old := parse(t, `{"type":"object","properties":{"id":{"type":"integer"}},"required":["id"]}`)
	updated := parse(t, `{"type":"object","properties":{"id":{"type":"integer"},"name":{"type":"string"}},"required":["id"]}`)

	changes := schemadiff.Diff(old, updated)
	require.Len(t, changes, 1)
	assert.Equal(t, schemadiff.PropertyAdded, changes[0].Kind)
	assert.Equal(t, "properties.name", changes[0].Path)
	assert.Equal(t, schemadiff.Minor, schemadiff.TypeOf(changes))

	compatible, _ := schemadiff.Classify(schemadiff.Backward, changes)
	assert.True(t, compatible)
	compatible, breaking := schemadiff.Classify(schemadiff.Forward, changes)
	assert.False(t, compatible)
	require.Len(t, breaking, 1)
}

func TestDiffRequiredPropertyRemoved(t *testing.T) {
	old := parse(t, `{"type":"object","properties":{"id":{"type":"integer"},"email":{"type":"string"}},"required":["id","email"]}`)
	updated := parse(t, `{"type":"object","properties":{"id":{"type":"integer"}},"required":["id"]}`)

	changes := schemadiff.Diff(old, updated)
	assert.Contains(t, kinds(changes), schemadiff.PropertyRemoved)
	assert.Contains(t, kinds(changes), schemadiff.RequiredRemoved)
	assert.Equal(t, schemadiff.Major, schemadiff.TypeOf(changes))

	compatible, breaking := schemadiff.Classify(schemadiff.Backward, changes)
	assert.False(t, compatible)
	require.NotEmpty(t, breaking)
	for _, c := range breaking {
		assert.Equal(t, schemadiff.PropertyRemoved, c.Kind)
	}
}

func TestDiffTypeTransitions(t *testing.T) {
	cases := []struct {
		oldType, newType string
		want             schemadiff.ChangeKind
	}{
		{"integer", "number", schemadiff.TypeWidened},
		{"number", "integer", schemadiff.TypeNarrowed},
		{"string", "integer", schemadiff.TypeChanged},
	}
	for _, tc := range cases {
		old := parse(t, fmt.Sprintf(`{"type":"object","properties":{"v":{"type":%q}}}`, tc.oldType))
		updated := parse(t, fmt.Sprintf(`{"type":"object","properties":{"v":{"type":%q}}}`, tc.newType))
		changes := schemadiff.Diff(old, updated)
		require.Len(t, changes, 1, "%s -> %s", tc.oldType, tc.newType)
		assert.Equal(t, tc.want, changes[0].Kind)
		assert.Equal(t, "properties.v.type", changes[0].Path)
	}
}

func TestDiffNullable(t *testing.T) {
	old := parse(t, `{"type":"object","properties":{"v":{"type":"string"}}}`)
	updated := parse(t, `{"type":"object","properties":{"v":{"type":["string","null"]}}}`)

	changes := schemadiff.Diff(old, updated)
	require.Len(t, changes, 1)
	assert.Equal(t, schemadiff.NullableAdded, changes[0].Kind)

	changes = schemadiff.Diff(updated, old)
	require.Len(t, changes, 1)
	assert.Equal(t, schemadiff.NullableRemoved, changes[0].Kind)
	assert.Equal(t, schemadiff.Major, schemadiff.TypeOf(changes))
}

func TestDiffEnum(t *testing.T) {
	old := parse(t, `{"type":"object","properties":{"s":{"type":"string","enum":["a","b"]}}}`)
	updated := parse(t, `{"type":"object","properties":{"s":{"type":"string","enum":["a","b","c"]}}}`)

	changes := schemadiff.Diff(old, updated)
	require.Len(t, changes, 1)
	assert.Equal(t, schemadiff.EnumValuesAdded, changes[0].Kind)
	assert.Equal(t, schemadiff.Minor, schemadiff.TypeOf(changes))

	changes = schemadiff.Diff(updated, old)
	require.Len(t, changes, 1)
	assert.Equal(t, schemadiff.EnumValuesRemoved, changes[0].Kind)
	compatible, _ := schemadiff.Classify(schemadiff.Backward, changes)
	assert.False(t, compatible)
}

func TestDiffConstraints(t *testing.T) {
	old := parse(t, `{"type":"object","properties":{"n":{"type":"integer","minimum":0,"maximum":100}}}`)
	tightened := parse(t, `{"type":"object","properties":{"n":{"type":"integer","minimum":10,"maximum":100}}}`)
	relaxed := parse(t, `{"type":"object","properties":{"n":{"type":"integer","minimum":0,"maximum":200}}}`)

	changes := schemadiff.Diff(old, tightened)
	require.Len(t, changes, 1)
	assert.Equal(t, schemadiff.ConstraintTightened, changes[0].Kind)
	assert.Equal(t, "properties.n.minimum", changes[0].Path)

	changes = schemadiff.Diff(old, relaxed)
	require.Len(t, changes, 1)
	assert.Equal(t, schemadiff.ConstraintRelaxed, changes[0].Kind)
	assert.Equal(t, schemadiff.Minor, schemadiff.TypeOf(changes))

	// Pattern introduction restricts the value space.
	oldStr := parse(t, `{"type":"object","properties":{"s":{"type":"string"}}}`)
	patterned := parse(t, `{"type":"object","properties":{"s":{"type":"string","pattern":"^[a-z]+$"}}}`)
	changes = schemadiff.Diff(oldStr, patterned)
	require.Len(t, changes, 1)
	assert.Equal(t, schemadiff.ConstraintTightened, changes[0].Kind)
}

func TestDiffDefaultsArePatch(t *testing.T) {
	old := parse(t, `{"type":"object","properties":{"n":{"type":"integer"}}}`)
	updated := parse(t, `{"type":"object","properties":{"n":{"type":"integer","default":5}}}`)

	changes := schemadiff.Diff(old, updated)
	require.Len(t, changes, 1)
	assert.Equal(t, schemadiff.DefaultAdded, changes[0].Kind)
	assert.Equal(t, schemadiff.Patch, schemadiff.TypeOf(changes))

	compatible, _ := schemadiff.Classify(schemadiff.Full, changes)
	assert.True(t, compatible)
}

func TestDiffNestedPath(t *testing.T) {
	old := parse(t, `{"type":"object","properties":{"address":{"type":"object","properties":{"city":{"type":"string"}}}}}`)
	updated := parse(t, `{"type":"object","properties":{"address":{"type":"object","properties":{"city":{"type":"integer"}}}}}`)

	changes := schemadiff.Diff(old, updated)
	require.Len(t, changes, 1)
	assert.Equal(t, "properties.address.properties.city.type", changes[0].Path)
	assert.Equal(t, schemadiff.TypeChanged, changes[0].Kind)
}

func TestDiffArrayItems(t *testing.T) {
	old := parse(t, `{"type":"object","properties":{"tags":{"type":"array","items":{"type":"string"}}}}`)
	updated := parse(t, `{"type":"object","properties":{"tags":{"type":"array","items":{"type":"integer"}}}}`)

	changes := schemadiff.Diff(old, updated)
	require.Len(t, changes, 1)
	assert.Equal(t, "properties.tags.items.type", changes[0].Path)
}

func TestDiffDeepSchemaDoesNotOverflow(t *testing.T) {
	build := func(depth int, leafType string) schemadiff.Schema {
		node := schemadiff.Schema{"type": "object", "properties": map[string]interface{}{
			"leaf": map[string]interface{}{"type": leafType},
		}}
		for i := 0; i < depth; i++ {
			node = schemadiff.Schema{"type": "object", "properties": map[string]interface{}{
				"nested": map[string]interface{}(node),
			}}
		}
		return node
	}
	// Differences below the depth cap are ignored rather than overflowing.
	changes := schemadiff.Diff(build(60, "string"), build(60, "integer"))
	assert.Empty(t, changes)
}

func TestResolveRefs(t *testing.T) {
	doc := parse(t, `{
		"type": "object",
		"properties": {"addr": {"$ref": "#/$defs/address", "description": "postal"}},
		"$defs": {"address": {"type": "object", "properties": {"city": {"type": "string"}}}}
	}`)
	resolved := schemadiff.ResolveRefs(doc)
	props := resolved["properties"].(map[string]interface{})
	addr := props["addr"].(map[string]interface{})
	assert.Equal(t, "object", addr["type"])
	assert.Equal(t, "postal", addr["description"], "sibling properties merge over the target")
	_, hasRef := addr["$ref"]
	assert.False(t, hasRef)
}

func TestResolveRefsDefinitionsAndExternal(t *testing.T) {
	doc := parse(t, `{
		"type": "object",
		"properties": {
			"a": {"$ref": "#/definitions/thing"},
			"b": {"$ref": "https://example.com/schema.json#/x"}
		},
		"definitions": {"thing": {"type": "integer"}}
	}`)
	resolved := schemadiff.ResolveRefs(doc)
	props := resolved["properties"].(map[string]interface{})
	assert.Equal(t, "integer", props["a"].(map[string]interface{})["type"])
	assert.Equal(t, "https://example.com/schema.json#/x", props["b"].(map[string]interface{})["$ref"])
}

func TestResolveRefsCircular(t *testing.T) {
	doc := parse(t, `{
		"type": "object",
		"properties": {"node": {"$ref": "#/$defs/node"}},
		"$defs": {"node": {"type": "object", "properties": {"next": {"$ref": "#/$defs/node"}}}}
	}`)
	resolved := schemadiff.ResolveRefs(doc)
	props := resolved["properties"].(map[string]interface{})
	node := props["node"].(map[string]interface{})
	assert.Equal(t, "object", node["type"])
	inner := node["properties"].(map[string]interface{})["next"].(map[string]interface{})
	assert.Equal(t, "#/$defs/node", inner["$ref"], "circular ref kept as pointer")
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := schemadiff.Parse([]byte(`{"type":"object","properties":[]}`))
	require.Error(t, err)
	assert.True(t, schemadiff.ErrInvalidSchema.Has(err))

	_, err = schemadiff.Parse([]byte(`not json`))
	require.Error(t, err)

	big := append([]byte(`{"description":"`), make([]byte, schemadiff.MaxSchemaBytes)...)
	_, err = schemadiff.Parse(append(big, []byte(`"}`)...))
	require.Error(t, err)
}

func TestFromAvro(t *testing.T) {
	doc := parse(t, `{
		"type": "record",
		"name": "User",
		"fields": [
			{"name": "id", "type": "long"},
			{"name": "name", "type": ["null", "string"], "default": null},
			{"name": "score", "type": "double"},
			{"name": "kind", "type": {"type": "enum", "name": "Kind", "symbols": ["a", "b"]}}
		]
	}`)
	schema, err := schemadiff.FromAvro(doc)
	require.NoError(t, err)
	assert.Equal(t, "object", schema["type"])

	props := schema["properties"].(map[string]interface{})
	assert.Equal(t, "integer", props["id"].(map[string]interface{})["type"])
	assert.Equal(t, "number", props["score"].(map[string]interface{})["type"])

	name := props["name"].(map[string]interface{})
	assert.Equal(t, "string", name["type"])
	assert.Equal(t, true, name["nullable"])

	kind := props["kind"].(map[string]interface{})
	assert.Equal(t, "string", kind["type"])
	assert.Len(t, kind["enum"], 2)

	required := schema["required"].([]interface{})
	assert.Contains(t, required, "id")
	assert.NotContains(t, required, "name")
}

func TestDiffGuarantees(t *testing.T) {
	lag := func(s int64) *schemadiff.Freshness { return &schemadiff.Freshness{MaxLagSeconds: s} }
	old := &schemadiff.Guarantees{
		NotNullColumns: []string{"id"},
		Freshness:      lag(3600),
		AcceptedValues: map[string][]string{"status": {"a", "b"}},
	}
	updated := &schemadiff.Guarantees{
		NotNullColumns: []string{"id", "email"},
		Freshness:      lag(1800),
		AcceptedValues: map[string][]string{"status": {"a"}},
	}

	changes := schemadiff.DiffGuarantees(old, updated)
	byKind := map[schemadiff.GuaranteeChangeKind]schemadiff.GuaranteeChange{}
	for _, c := range changes {
		byKind[c.Kind] = c
	}
	require.Contains(t, byKind, schemadiff.NotNullAdded)
	assert.Equal(t, "email", byKind[schemadiff.NotNullAdded].Column)
	assert.Equal(t, schemadiff.SeverityWarning, byKind[schemadiff.NotNullAdded].Severity)
	require.Contains(t, byKind, schemadiff.FreshnessTightened)
	require.Contains(t, byKind, schemadiff.AcceptedValuesContracted)

	assert.True(t, schemadiff.BreakingGuarantees(schemadiff.GuaranteeStrict, changes))
	assert.False(t, schemadiff.BreakingGuarantees(schemadiff.GuaranteeNotify, changes))
	assert.False(t, schemadiff.BreakingGuarantees(schemadiff.GuaranteeIgnore, changes))
}

func TestDiffGuaranteesNilInputs(t *testing.T) {
	assert.Empty(t, schemadiff.DiffGuarantees(nil, nil))
	changes := schemadiff.DiffGuarantees(nil, &schemadiff.Guarantees{UniqueColumns: []string{"id"}})
	require.Len(t, changes, 1)
	assert.Equal(t, schemadiff.UniqueAdded, changes[0].Kind)
}
