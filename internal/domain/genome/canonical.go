package genome

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Canonicalize deterministically serializes a genome. Semantically identical
// genomes produce byte-identical output regardless of key insertion order:
// mapping keys are sorted lexicographically at every nesting level, keys
// whose value is absent are omitted entirely, array element order is
// preserved, and scalars pass through unchanged.
func Canonicalize(g *Genome) (string, error) {
	raw, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("canonicalize: marshal genome: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("canonicalize: decode genome: %w", err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// writeCanonical emits the canonical form of a decoded JSON value.
func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			if val[k] == nil {
				// Absent values are omitted, never emitted as null markers.
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("canonicalize: marshal key %q: %w", k, err)
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	case json.Number:
		buf.WriteString(val.String())
		return nil

	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("canonicalize: marshal scalar: %w", err)
		}
		buf.Write(b)
		return nil
	}
}
