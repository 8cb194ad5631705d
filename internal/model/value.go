package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Value is a sealed interface over the scalar types a payload may carry.
// Only String, Int, Float, Bool, and Deferred implement it.
//
// Deferred wraps an expression to be resolved by an external evaluator
// immediately before the device call. The engine treats it as opaque: it
// never inspects or validates the expression syntax.
type Value interface {
	payloadValue() // Sealed - only these types implement it
}

// String is a string payload value.
type String string

func (String) payloadValue() {}

// Int is an integer payload value. Always int64.
type Int int64

func (Int) payloadValue() {}

// Float is a floating-point payload value (temperatures, humidity, ...).
type Float float64

func (Float) payloadValue() {}

// Bool is a boolean payload value.
type Bool bool

func (Bool) payloadValue() {}

// Deferred is an unresolved expression payload value.
// The raw expression text is carried verbatim, delimiters included.
type Deferred string

func (Deferred) payloadValue() {}

// MarshalJSON implementations render values the way a reader of logs or
// the evaluate command would expect. Deferred values render as their raw
// expression text so the pass-through is visible.

func (s String) MarshalJSON() ([]byte, error)   { return json.Marshal(string(s)) }
func (n Int) MarshalJSON() ([]byte, error)      { return json.Marshal(int64(n)) }
func (f Float) MarshalJSON() ([]byte, error)    { return json.Marshal(float64(f)) }
func (b Bool) MarshalJSON() ([]byte, error)     { return json.Marshal(bool(b)) }
func (d Deferred) MarshalJSON() ([]byte, error) { return json.Marshal(string(d)) }

// deferredMarker is the substring that flags a string scalar as a deferred
// expression. Matches the template delimiter used by authoring tools.
const deferredMarker = "{{"

// ValueOf converts a decoded YAML/JSON scalar into a Value.
// Strings containing the template delimiter become Deferred; everything
// else becomes the corresponding static variant.
//
// Returns an error for nulls, nested collections, and any other type a
// payload cannot carry - payloads are flat key-value bags of scalars.
func ValueOf(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a valid payload value")
	case Value:
		return val, nil
	case string:
		if strings.Contains(val, deferredMarker) {
			return Deferred(val), nil
		}
		return String(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case float64:
		return Float(val), nil
	case bool:
		return Bool(val), nil
	default:
		return nil, fmt.Errorf("unsupported payload value type: %T", v)
	}
}

// IsDeferred reports whether v is an unresolved expression.
func IsDeferred(v Value) bool {
	_, ok := v.(Deferred)
	return ok
}

// Payload is an opaque key-value bag of variant scalars. Slots carry one
// as their default payload and optionally one per device override.
// Use SortedKeys for deterministic iteration.
type Payload map[string]Value

// SortedKeys returns the payload keys in lexicographic order.
func (p Payload) SortedKeys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// HasDeferred reports whether any value in the payload is deferred.
func (p Payload) HasDeferred() bool {
	for _, v := range p {
		if IsDeferred(v) {
			return true
		}
	}
	return false
}

// Clone returns a shallow copy. Values are immutable, so sharing them
// between the original and the copy is safe.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// PayloadOf builds a Payload from decoded scalars, converting each value
// with ValueOf. Used by the config loader and tests.
func PayloadOf(raw map[string]any) (Payload, error) {
	p := make(Payload, len(raw))
	for k, v := range raw {
		val, err := ValueOf(v)
		if err != nil {
			return nil, fmt.Errorf("payload key %q: %w", k, err)
		}
		p[k] = val
	}
	return p, nil
}

// UnmarshalYAML decodes a YAML mapping of scalars into a Payload.
func (p *Payload) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	decoded, err := PayloadOf(raw)
	if err != nil {
		return err
	}
	*p = decoded
	return nil
}
