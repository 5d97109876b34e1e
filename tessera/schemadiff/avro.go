// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package schemadiff

var avroPrimitives = map[string]string{
	"string":  "string",
	"bytes":   "string",
	"int":     "integer",
	"long":    "integer",
	"float":   "number",
	"double":  "number",
	"boolean": "boolean",
	"null":    "null",
}

// FromAvro normalizes an Avro schema document into the JSON-Schema-like
// model the differ understands. The differ never sees Avro directly.
func FromAvro(doc map[string]interface{}) (Schema, error) {
	if doc == nil {
		return nil, ErrInvalidSchema.New("avro schema is empty")
	}
	out, err := avroNode(doc, 0)
	if err != nil {
		return nil, err
	}
	node, ok := out.(map[string]interface{})
	if !ok {
		return nil, ErrInvalidSchema.New("avro schema root must be a record")
	}
	return node, nil
}

func avroNode(value interface{}, depth int) (interface{}, error) {
	if depth > MaxDepth {
		return map[string]interface{}{}, nil
	}
	switch v := value.(type) {
	case string:
		if t, ok := avroPrimitives[v]; ok {
			return map[string]interface{}{"type": t}, nil
		}
		// Named type reference; keep the name as a string type marker.
		return map[string]interface{}{"type": "object", "x-avro-name": v}, nil
	case []interface{}:
		return avroUnion(v, depth)
	case map[string]interface{}:
		typ, _ := v["type"].(string)
		switch typ {
		case "record":
			return avroRecord(v, depth)
		case "enum":
			symbols, _ := v["symbols"].([]interface{})
			return map[string]interface{}{"type": "string", "enum": symbols}, nil
		case "array":
			items, err := avroNode(v["items"], depth+1)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"type": "array", "items": items}, nil
		case "map":
			return map[string]interface{}{"type": "object"}, nil
		case "fixed":
			return map[string]interface{}{"type": "string"}, nil
		default:
			if typ != "" {
				// Primitive carrying a logicalType or doc attributes.
				return avroNode(typ, depth)
			}
			// A nested type wrapper.
			if inner, ok := v["type"]; ok {
				return avroNode(inner, depth+1)
			}
		}
		return nil, ErrInvalidSchema.New("unsupported avro node")
	}
	return nil, ErrInvalidSchema.New("unsupported avro value")
}

func avroRecord(v map[string]interface{}, depth int) (interface{}, error) {
	fields, _ := v["fields"].([]interface{})
	props := map[string]interface{}{}
	var required []interface{}
	for _, f := range fields {
		field, ok := f.(map[string]interface{})
		if !ok {
			return nil, ErrInvalidSchema.New("avro record field must be an object")
		}
		name, _ := field["name"].(string)
		if name == "" {
			return nil, ErrInvalidSchema.New("avro record field missing name")
		}
		sub, err := avroNode(field["type"], depth+1)
		if err != nil {
			return nil, err
		}
		props[name] = sub
		if _, hasDefault := field["default"]; !hasDefault {
			required = append(required, name)
		}
	}
	out := map[string]interface{}{"type": "object", "properties": props}
	if len(required) > 0 {
		out["required"] = required
	}
	return out, nil
}

func avroUnion(union []interface{}, depth int) (interface{}, error) {
	nullable := false
	var branches []interface{}
	for _, b := range union {
		if s, ok := b.(string); ok && s == "null" {
			nullable = true
			continue
		}
		branches = append(branches, b)
	}
	if len(branches) != 1 {
		// Multi-branch unions collapse to an untyped node.
		return map[string]interface{}{"nullable": nullable}, nil
	}
	out, err := avroNode(branches[0], depth+1)
	if err != nil {
		return nil, err
	}
	if node, ok := out.(map[string]interface{}); ok && nullable {
		node["nullable"] = true
	}
	return out, nil
}
