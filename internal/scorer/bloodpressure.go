package scorer

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// BPStatus is the parse outcome of a blood pressure value.
type BPStatus int

const (
	// BPAbsent means the field was not sent.
	BPAbsent BPStatus = iota
	// BPOK means both readings parsed to finite numbers.
	BPOK
	// BPNotString means the value is not a JSON string.
	BPNotString
	// BPSegmentCount means the string does not split into exactly two parts on "/".
	BPSegmentCount
	// BPBadValue means a segment is empty or not a finite number.
	BPBadValue
)

func (s BPStatus) String() string {
	switch s {
	case BPAbsent:
		return "absent"
	case BPOK:
		return "ok"
	case BPNotString:
		return "not_string"
	case BPSegmentCount:
		return "segment_count"
	case BPBadValue:
		return "bad_value"
	default:
		return "unknown"
	}
}

// BloodPressure is a parsed "systolic/diastolic" reading. Systolic and
// Diastolic are only meaningful when Status is BPOK.
type BloodPressure struct {
	Status    BPStatus
	Systolic  float64
	Diastolic float64
}

// Invalid reports whether the value was present but unusable.
func (bp BloodPressure) Invalid() bool {
	return bp.Status != BPAbsent && bp.Status != BPOK
}

// ParseBloodPressure parses a raw JSON blood pressure value.
func ParseBloodPressure(raw json.RawMessage) BloodPressure {
	if raw == nil {
		return BloodPressure{Status: BPAbsent}
	}

	var s *string
	if err := json.Unmarshal(raw, &s); err != nil || s == nil {
		return BloodPressure{Status: BPNotString}
	}

	parts := strings.Split(*s, "/")
	if len(parts) != 2 {
		return BloodPressure{Status: BPSegmentCount}
	}

	sys, ok := parseSegment(parts[0])
	if !ok {
		return BloodPressure{Status: BPBadValue}
	}
	dia, ok := parseSegment(parts[1])
	if !ok {
		return BloodPressure{Status: BPBadValue}
	}

	return BloodPressure{Status: BPOK, Systolic: sys, Diastolic: dia}
}

func parseSegment(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
