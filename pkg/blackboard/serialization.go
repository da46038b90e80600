package blackboard

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Serialization helpers for converting between typed records and the raw
// JSON documents the board stores. The board itself never inspects document
// contents; these helpers are used at the step-executor and reviewer
// boundaries.

// MarshalDocument encodes a typed record as a board document.
func MarshalDocument(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return Document(data), nil
}

// UnmarshalDocument decodes a board document into a typed record.
func UnmarshalDocument(doc Document, v any) error {
	if err := json.Unmarshal(doc, v); err != nil {
		return fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return nil
}

// MissingKeys returns the required top-level keys absent from the document,
// in sorted order. A non-object document reports every key as missing.
func MissingKeys(doc Document, keys []string) []string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		missing := make([]string, len(keys))
		copy(missing, keys)
		sort.Strings(missing)
		return missing
	}

	var missing []string
	for _, key := range keys {
		if _, ok := fields[key]; !ok {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}
