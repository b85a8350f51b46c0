// Package jsonx wraps the Sonic JSON codec used for wire and session encoding.
package jsonx

import "github.com/bytedance/sonic"

// std keeps encoding/json compatible output (sorted map keys, escaped HTML)
var std = sonic.ConfigStd

// Marshal encodes v as JSON
func Marshal(v any) ([]byte, error) {
	return std.Marshal(v)
}

// MarshalIndent encodes v as indented JSON
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return std.MarshalIndent(v, prefix, indent)
}

// Unmarshal decodes JSON data into v
func Unmarshal(data []byte, v any) error {
	return std.Unmarshal(data, v)
}
