package session

import (
	"encoding/json"
	"fmt"
)

// NormalizedRecord is one reference record extracted from a producer payload.
type NormalizedRecord struct {
	ID      string
	Payload json.RawMessage
}

// Normalize extracts records from any of the payload shapes reference-data
// producers emit: a bare array, an object with a "records" array, an object
// with a "_records" array, or a single record object. Anything else yields
// no records. Records carry their "id" field when present; records without
// one get a stable positional id.
func Normalize(raw json.RawMessage) []NormalizedRecord {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		return recordsFrom(arr)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}

	for _, key := range []string{"records", "_records"} {
		wrapped, ok := obj[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(wrapped, &arr); err == nil {
			return recordsFrom(arr)
		}
		return nil
	}

	// A plain object is a singleton record.
	return recordsFrom([]json.RawMessage{raw})
}

func recordsFrom(arr []json.RawMessage) []NormalizedRecord {
	out := make([]NormalizedRecord, 0, len(arr))
	for i, item := range arr {
		id, ok := recordID(item)
		if !ok {
			id = fmt.Sprintf("rec-%d", i)
		}
		out = append(out, NormalizedRecord{ID: id, Payload: item})
	}
	return out
}

// recordID pulls the "id" field out of a record object. Numeric ids are
// rendered without a float exponent so they round-trip as keys.
func recordID(item json.RawMessage) (string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil {
		return "", false
	}
	idRaw, ok := fields["id"]
	if !ok {
		return "", false
	}

	var s string
	if err := json.Unmarshal(idRaw, &s); err == nil {
		return s, s != ""
	}

	var n json.Number
	if err := json.Unmarshal(idRaw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}
