package crypto

import (
	"bytes"
	"encoding/json"
)

// CanonicalJSON serialises v deterministically: object keys sorted, compact
// separators, no HTML escaping, no trailing whitespace. The same logical
// payload always yields the same bytes regardless of how it was constructed,
// which signatures depend on.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := encodeCompact(v)
	if err != nil {
		return nil, err
	}
	// Round-trip through untyped maps so struct field order cannot leak
	// into the output; encoding/json emits map keys sorted.
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return encodeCompact(generic)
}

// encodeCompact marshals without the default HTML escaping, so "<", ">" and
// "&" stay literal and the output matches other canonical-JSON producers.
func encodeCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
