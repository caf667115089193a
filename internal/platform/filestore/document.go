package filestore

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// encodeDocument renders items as one JSON object whose keys appear in the
// given order. encoding/json would sort map keys, losing insertion order.
func encodeDocument[T any](order []string, items map[string]T) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, id := range order {
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		value, err := json.MarshalIndent(items[id], "  ", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", id, err)
		}
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n  ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(value)
	}
	if len(order) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// decodeDocument parses a JSON object into items, returning the keys in
// the order they appear in the document.
func decodeDocument[T any](data []byte) ([]string, map[string]T, error) {
	items := make(map[string]T)
	order := make([]string, 0)
	if len(bytes.TrimSpace(data)) == 0 {
		return order, items, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("expected a JSON object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		id, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected an object key, got %v", tok)
		}
		var item T
		if err := dec.Decode(&item); err != nil {
			return nil, nil, fmt.Errorf("failed to decode %s: %w", id, err)
		}
		if _, seen := items[id]; !seen {
			order = append(order, id)
		}
		items[id] = item
	}

	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return order, items, nil
}
