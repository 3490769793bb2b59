package binder

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

// Document is the untyped deal input tree: string keys, primitive /
// list / mapping values. Everything the binder consumes is a Document
// or a fragment of one.
type Document = map[string]interface{}

// DecodeDocument parses raw bytes into a Document. Strict JSON is
// tried first, then Hjson (comments, unquoted keys, trailing commas),
// then a repair pass for near-JSON input. Inputs that survive none of
// the three are rejected.
func DecodeDocument(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err == nil {
		return doc, nil
	}

	var loose interface{}
	if err := hjson.Unmarshal(raw, &loose); err == nil {
		if doc, ok := Normalize(loose).(Document); ok {
			return doc, nil
		}
	}

	repaired, err := jsonrepair.RepairJSON(string(raw))
	if err != nil {
		return nil, fmt.Errorf("document is not valid JSON and could not be repaired: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &doc); err != nil {
		return nil, fmt.Errorf("repaired document is still malformed: %w", err)
	}
	return doc, nil
}

// Normalize rewrites decoder-specific container types into the plain
// Document shape: map keys become strings, nested maps and slices are
// converted recursively. YAML decoding in particular produces
// map[interface{}]interface{} containers.
func Normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(Document, len(t))
		for k, val := range t {
			out[k] = Normalize(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(Document, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = Normalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = Normalize(val)
		}
		return out
	default:
		return v
	}
}

// GetPath walks a dot-separated path through nested maps. Returns nil
// when any segment is missing or a non-map is traversed.
func GetPath(doc Document, path string) interface{} {
	var current interface{} = doc
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(Document)
		if !ok {
			return nil
		}
		current, ok = m[key]
		if !ok {
			return nil
		}
	}
	return current
}

// SetPath sets a value at a dot-separated path, creating intermediate
// maps as needed. Errors when an intermediate segment exists but is
// not a map.
func SetPath(doc Document, path string, value interface{}) error {
	keys := strings.Split(path, ".")
	current := doc
	for _, key := range keys[:len(keys)-1] {
		next, ok := current[key]
		if !ok || next == nil {
			child := make(Document)
			current[key] = child
			current = child
			continue
		}
		child, ok := next.(Document)
		if !ok {
			return fmt.Errorf("path %q: segment %q is not an object", path, key)
		}
		current = child
	}
	current[keys[len(keys)-1]] = Normalize(value)
	return nil
}

// asMap coerces a document fragment into a map, returning an empty map
// for nil or non-map values so callers can chain lookups.
func asMap(v interface{}) Document {
	if m, ok := v.(Document); ok {
		return m
	}
	return Document{}
}

func asList(v interface{}) []interface{} {
	if l, ok := v.([]interface{}); ok {
		return l
	}
	return nil
}

// toFloat coerces the numeric representations the decoders produce.
// The second return reports whether a number was actually present.
func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toBool(v interface{}) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

// yearOf parses a year key: a bare number, a "2026" string, or an ISO
// date prefix like "2026-12-31".
func yearOf(v interface{}) (int, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if i := strings.IndexByte(s, '-'); i > 0 {
			s = s[:i]
		}
		y, err := strconv.Atoi(s)
		return y, err == nil && y > 0
	default:
		if f, ok := toFloat(v); ok {
			return int(f), true
		}
		return 0, false
	}
}
