package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces the canonical JSON form of a payload, used for
// payload-identity hashing. Two payloads with the same canonical bytes are
// indistinguishable to downstream devices, which is what lets the applier
// collapse them into one command.
//
// Properties:
//   - keys sorted lexicographically
//   - strings NFC normalized, no HTML escaping
//   - floats formatted with the shortest round-trippable representation
//   - deferred values tagged so they never collide with the equal literal
func MarshalCanonical(p Payload) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, k := range p.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := canonicalString(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := canonicalValue(p[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func canonicalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case String:
		return canonicalString(string(val))
	case Int:
		return strconv.AppendInt(nil, int64(val), 10), nil
	case Float:
		return strconv.AppendFloat(nil, float64(val), 'g', -1, 64), nil
	case Bool:
		return strconv.AppendBool(nil, bool(val)), nil
	case Deferred:
		// Tagged one-key object. Payload values are scalars, so a plain
		// object can never be confused with a static value.
		expr, err := canonicalString(string(val))
		if err != nil {
			return nil, err
		}
		return append(append([]byte(`{"$deferred":`), expr...), '}'), nil
	case nil:
		return nil, fmt.Errorf("nil payload value")
	default:
		return nil, fmt.Errorf("unsupported payload value type: %T", v)
	}
}

// canonicalString encodes a string with NFC normalization and HTML
// escaping disabled.
func canonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	// json.Encoder adds a trailing newline, remove it
	result := buf.Bytes()
	if n := len(result); n > 0 && result[n-1] == '\n' {
		result = result[:n-1]
	}
	return result, nil
}
