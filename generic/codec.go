package generic

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Encode converts a JSON-tagged struct into a Record. Numbers come back as
// json.Number so no precision is lost before ToDecimal sees them.
func Encode(v any) (Record, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return DecodeJSON(raw)
}

// Decode fills the JSON-tagged struct pointed to by v from rec.
func Decode(rec Record, v any) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// DecodeJSON parses a JSON object document into a Record.
// Used by stores that persist records as JSON text.
func DecodeJSON(raw []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}
	return rec, nil
}
