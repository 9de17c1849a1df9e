package mockapi

import (
	"math"

	"github.com/sells-group/assessment-cli/internal/model"
)

// CategoryGrade scores one alert list.
type CategoryGrade struct {
	Correct   int `json:"correct"`
	Submitted int `json:"submitted"`
	Expected  int `json:"expected"`
}

// Report is a graded submission.
type Report struct {
	Percentage float64                  `json:"percentage"`
	Status     string                   `json:"status"`
	Breakdown  map[string]CategoryGrade `json:"breakdown"`
}

// Grade statuses.
const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
)

// Grade compares got against want. Each list earns correct ids over the
// union of expected and submitted ids; the percentage is the total across
// all three lists.
func Grade(want, got model.AssessmentPayload) Report {
	lists := []struct {
		name      string
		want, got []string
	}{
		{"high_risk", want.HighRiskPatients, got.HighRiskPatients},
		{"fever", want.FeverPatients, got.FeverPatients},
		{"data_quality", want.DataQualityIssues, got.DataQualityIssues},
	}

	g := Report{Breakdown: make(map[string]CategoryGrade, len(lists))}
	var correct, union int
	for _, l := range lists {
		c := gradeList(l.want, l.got)
		g.Breakdown[l.name] = c
		correct += c.Correct
		union += c.Expected + c.Submitted - c.Correct
	}

	if union == 0 {
		g.Percentage = 100
	} else {
		g.Percentage = math.Round(float64(correct)/float64(union)*10000) / 100
	}
	g.Status = StatusFail
	if g.Percentage == 100 {
		g.Status = StatusPass
	}
	return g
}

func gradeList(want, got []string) CategoryGrade {
	expected := make(map[string]struct{}, len(want))
	for _, id := range want {
		expected[id] = struct{}{}
	}
	submitted := make(map[string]struct{}, len(got))
	for _, id := range got {
		submitted[id] = struct{}{}
	}

	c := CategoryGrade{Submitted: len(submitted), Expected: len(expected)}
	for id := range submitted {
		if _, ok := expected[id]; ok {
			c.Correct++
		}
	}
	return c
}
