// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

// Package schemadiff computes structural diffs between two
// JSON-Schema-like documents and classifies the result.
//
// architecture: Service
package schemadiff

import (
	"encoding/json"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var mon = monkit.Package()

// Error is the default error class for the schemadiff package.
var Error = errs.Class("schemadiff")

// ErrInvalidSchema is returned when a schema document fails validation.
var ErrInvalidSchema = errs.Class("invalid schema")

// MaxSchemaBytes caps the serialized size of a schema document.
const MaxSchemaBytes = 1 << 20

// MaxDepth bounds recursion into nested schemas. Subtrees below this
// depth are not diffed.
const MaxDepth = 50

// Schema is a decoded JSON-Schema-like document.
type Schema = map[string]interface{}

// Parse decodes and validates a raw schema document.
func Parse(raw []byte) (Schema, error) {
	if len(raw) > MaxSchemaBytes {
		return nil, ErrInvalidSchema.New("schema exceeds %d bytes", MaxSchemaBytes)
	}
	var doc Schema
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, ErrInvalidSchema.New("schema is not a JSON object: %v", err)
	}
	if err := Validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Validate checks the structural well-formedness of a schema document.
// It accepts the subset of JSON Schema the differ understands: type,
// properties, required, enum, items, numeric and string constraints.
func Validate(doc Schema) error {
	if doc == nil {
		return ErrInvalidSchema.New("schema is empty")
	}
	return validateNode(doc, 0)
}

func validateNode(node Schema, depth int) error {
	if depth > MaxDepth {
		return nil
	}
	if t, ok := node["type"]; ok {
		switch v := t.(type) {
		case string:
		case []interface{}:
			for _, e := range v {
				if _, ok := e.(string); !ok {
					return ErrInvalidSchema.New("type list contains non-string entry")
				}
			}
		default:
			return ErrInvalidSchema.New("type must be a string or list of strings")
		}
	}
	if p, ok := node["properties"]; ok {
		props, ok := p.(map[string]interface{})
		if !ok {
			return ErrInvalidSchema.New("properties must be an object")
		}
		for name, sub := range props {
			child, ok := sub.(map[string]interface{})
			if !ok {
				return ErrInvalidSchema.New("property %q must be an object", name)
			}
			if err := validateNode(child, depth+1); err != nil {
				return err
			}
		}
	}
	if r, ok := node["required"]; ok {
		list, ok := r.([]interface{})
		if !ok {
			return ErrInvalidSchema.New("required must be a list")
		}
		for _, e := range list {
			if _, ok := e.(string); !ok {
				return ErrInvalidSchema.New("required list contains non-string entry")
			}
		}
	}
	if it, ok := node["items"]; ok {
		child, ok := it.(map[string]interface{})
		if !ok {
			return ErrInvalidSchema.New("items must be an object")
		}
		if err := validateNode(child, depth+1); err != nil {
			return err
		}
	}
	if e, ok := node["enum"]; ok {
		if _, ok := e.([]interface{}); !ok {
			return ErrInvalidSchema.New("enum must be a list")
		}
	}
	return nil
}

// typeInfo normalizes a node's type declaration. A type list containing
// "null", or an explicit nullable keyword, marks the node nullable.
func typeInfo(node Schema) (typ string, nullable, declared bool) {
	if nb, ok := node["nullable"].(bool); ok && nb {
		nullable = true
	}
	t, ok := node["type"]
	if !ok {
		return "", nullable, false
	}
	switch v := t.(type) {
	case string:
		return v, nullable, true
	case []interface{}:
		for _, e := range v {
			s, _ := e.(string)
			if s == "null" {
				nullable = true
				continue
			}
			if typ == "" {
				typ = s
			}
		}
		return typ, nullable, true
	}
	return "", nullable, false
}

func properties(node Schema) map[string]Schema {
	raw, ok := node["properties"].(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]Schema, len(raw))
	for name, sub := range raw {
		if child, ok := sub.(map[string]interface{}); ok {
			out[name] = child
		}
	}
	return out
}

func requiredSet(node Schema) map[string]bool {
	raw, ok := node["required"].([]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]bool, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out[s] = true
		}
	}
	return out
}

func enumValues(node Schema) []interface{} {
	raw, _ := node["enum"].([]interface{})
	return raw
}
