package glb

import "encoding/json"

// rawList decodes a JSON array into its elements. Anything else yields nil.
func rawList(raw json.RawMessage) []json.RawMessage {
	var v []json.RawMessage
	if json.Unmarshal(raw, &v) != nil {
		return nil
	}
	return v
}

// rawObject decodes a JSON object into its members. Anything else yields nil.
func rawObject(raw json.RawMessage) map[string]json.RawMessage {
	var v map[string]json.RawMessage
	if json.Unmarshal(raw, &v) != nil {
		return nil
	}
	return v
}

// stringList keeps the string elements of a JSON array and drops the rest.
func stringList(raw json.RawMessage) []string {
	out := []string{}
	for _, r := range rawList(raw) {
		var s string
		if json.Unmarshal(r, &s) == nil && string(r) != "null" {
			out = append(out, s)
		}
	}
	return out
}

// member decodes obj[key] into T. A missing key, null or a type mismatch
// reports false.
func member[T any](obj map[string]json.RawMessage, key string) (T, bool) {
	var v T
	raw, ok := obj[key]
	if !ok || string(raw) == "null" {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		var zero T
		return zero, false
	}
	return v, true
}
