package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// PatientRecord is one element of a patients page. Every field is optional and
// untrusted, so the clinical fields are kept as raw JSON and resolved by the
// scorer. A nil RawMessage means the key was absent; a JSON null is present.
type PatientRecord struct {
	ID    string `json:"patient_id,omitempty"`
	HasID bool   `json:"-"`

	Age           json.RawMessage `json:"age,omitempty"`
	Temperature   json.RawMessage `json:"temperature,omitempty"`
	BloodPressure json.RawMessage `json:"blood_pressure,omitempty"`
}

// UnmarshalJSON decodes a record leniently. It never fails: an element that is
// not a JSON object becomes a record without an id.
func (p *PatientRecord) UnmarshalJSON(data []byte) error {
	*p = PatientRecord{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil
	}

	p.ID, p.HasID = parseID(fields["patient_id"])
	p.Age = fields["age"]
	p.Temperature = fields["temperature"]
	p.BloodPressure = fields["blood_pressure"]
	return nil
}

// parseID accepts a non-empty string or a non-zero number. Numbers keep their
// literal text so that ids sort the same way they arrived.
func parseID(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}

	switch {
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return "", false
		}
		return s, true
	case raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9'):
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil || f == 0 || math.IsInf(f, 0) || math.IsNaN(f) {
			return "", false
		}
		return string(raw), true
	default:
		return "", false
	}
}
