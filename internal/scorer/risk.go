// Package scorer implements the clinical risk rubric applied to each patient
// record.
package scorer

import (
	"github.com/sells-group/assessment-cli/internal/model"
)

// Age thresholds.
const (
	seniorAge = 65
)

// Temperature thresholds in °F.
const (
	highFeverTemp = 101.0
	lowFeverTemp  = 99.6
	feverFlagTemp = 100.4
)

// Breakdown is the per-factor detail behind a ScoreResult.
type Breakdown struct {
	Age           model.Reading
	Temperature   model.Reading
	BloodPressure BloodPressure

	AgeScore           int
	TemperatureScore   int
	BloodPressureScore int
}

// Score applies the rubric to one record. It never fails: a present field
// that cannot be read sets the data issue flag and contributes nothing.
func Score(rec model.PatientRecord) model.ScoreResult {
	res, _ := Explain(rec)
	return res
}

// Explain scores a record and also returns the per-factor breakdown.
func Explain(rec model.PatientRecord) (model.ScoreResult, Breakdown) {
	b := Breakdown{
		Age:           model.NumberReading(rec.Age),
		Temperature:   model.NumberReading(rec.Temperature),
		BloodPressure: ParseBloodPressure(rec.BloodPressure),
	}

	if b.Age.Valid() {
		b.AgeScore = scoreAge(b.Age.Value)
	}
	if b.Temperature.Valid() {
		b.TemperatureScore = scoreTemperature(b.Temperature.Value)
	}
	if b.BloodPressure.Status == BPOK {
		b.BloodPressureScore = scoreBloodPressure(b.BloodPressure.Systolic, b.BloodPressure.Diastolic)
	}

	return model.ScoreResult{
		ID:           rec.ID,
		RiskScore:    b.AgeScore + b.TemperatureScore + b.BloodPressureScore,
		IsFever:      b.Temperature.Valid() && b.Temperature.Value >= feverFlagTemp,
		HasDataIssue: b.Age.Invalid() || b.Temperature.Invalid() || b.BloodPressure.Invalid(),
	}, b
}

func scoreAge(age float64) int {
	if age > seniorAge {
		return 2
	}
	return 1
}

func scoreTemperature(t float64) int {
	switch {
	case t >= highFeverTemp:
		return 2
	case t >= lowFeverTemp:
		return 1
	default:
		return 0
	}
}

// scoreBloodPressure checks the stages from most to least severe; the first
// match wins.
func scoreBloodPressure(sys, dia float64) int {
	switch {
	case sys >= 140 || dia >= 90:
		return 4
	case (sys >= 130 && sys <= 139) || (dia >= 80 && dia <= 89):
		return 3
	case sys >= 120 && sys <= 129 && dia < 80:
		return 2
	default:
		return 0
	}
}
