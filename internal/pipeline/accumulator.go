package pipeline

import (
	"maps"
	"slices"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/scorer"
)

// Accumulator collects patient ids into the three alert sets for one run.
// The zero value is not usable; call NewAccumulator.
type Accumulator struct {
	highRisk    map[string]struct{}
	fever       map[string]struct{}
	dataQuality map[string]struct{}
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		highRisk:    make(map[string]struct{}),
		fever:       make(map[string]struct{}),
		dataQuality: make(map[string]struct{}),
	}
}

// Add places r.ID in every set whose condition it meets.
func (a *Accumulator) Add(r model.ScoreResult) {
	if r.HighRisk() {
		a.highRisk[r.ID] = struct{}{}
	}
	if r.IsFever {
		a.fever[r.ID] = struct{}{}
	}
	if r.HasDataIssue {
		a.dataQuality[r.ID] = struct{}{}
	}
}

// Payload returns the sets as sorted slices. Empty sets become empty,
// non-nil slices so they encode as [].
func (a *Accumulator) Payload() model.AssessmentPayload {
	return model.AssessmentPayload{
		HighRiskPatients:  sortedIDs(a.highRisk),
		FeverPatients:     sortedIDs(a.fever),
		DataQualityIssues: sortedIDs(a.dataQuality),
	}
}

func sortedIDs(set map[string]struct{}) []string {
	ids := slices.Sorted(maps.Keys(set))
	if ids == nil {
		ids = []string{}
	}
	return ids
}

// Fold scores every record that has an id and adds it to acc. Records
// without an id are skipped.
func Fold(acc *Accumulator, records []model.PatientRecord) (scored, skipped int) {
	for _, rec := range records {
		if !rec.HasID {
			skipped++
			continue
		}
		acc.Add(scorer.Score(rec))
		scored++
	}
	return scored, skipped
}
