package jsonutil

import (
	"bytes"
	"encoding/json"
)

// Marshal encodes v into JSON without HTML escaping and without a trailing newline.
//
// Store names such as "Fish & Chips" reach the gateway exactly as configured.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// Verbatim validates raw as JSON and returns a copy of it, byte for byte.
func Verbatim(raw []byte) (json.RawMessage, error) {
	if !json.Valid(raw) {
		var v any
		// Unmarshal gives a descriptive syntax error.
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out, nil
}
