package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// ReadingKind tags the state of an untrusted numeric field.
type ReadingKind int

const (
	// ReadingAbsent means the field was not sent.
	ReadingAbsent ReadingKind = iota
	// ReadingInvalid means the field was sent but is not a finite number.
	ReadingInvalid
	// ReadingValid means Value holds a finite number.
	ReadingValid
)

func (k ReadingKind) String() string {
	switch k {
	case ReadingAbsent:
		return "absent"
	case ReadingInvalid:
		return "invalid"
	case ReadingValid:
		return "valid"
	default:
		return "unknown"
	}
}

// Reading is a resolved numeric field.
type Reading struct {
	Kind  ReadingKind
	Value float64
}

// Valid reports whether the reading holds a usable number.
func (r Reading) Valid() bool { return r.Kind == ReadingValid }

// Invalid reports whether the field was present but unusable.
func (r Reading) Invalid() bool { return r.Kind == ReadingInvalid }

// NumberReading resolves a raw JSON value. Only JSON numbers that fit a finite
// float64 are valid; strings such as "70" are not coerced.
func NumberReading(raw json.RawMessage) Reading {
	if raw == nil {
		return Reading{Kind: ReadingAbsent}
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Reading{Kind: ReadingAbsent}
	}
	if trimmed[0] != '-' && (trimmed[0] < '0' || trimmed[0] > '9') {
		return Reading{Kind: ReadingInvalid}
	}

	v, err := strconv.ParseFloat(string(trimmed), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return Reading{Kind: ReadingInvalid}
	}
	return Reading{Kind: ReadingValid, Value: v}
}
