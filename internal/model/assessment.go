package model

// HighRiskThreshold is the minimum risk score that marks a patient high risk.
const HighRiskThreshold = 5

// ScoreResult is the outcome of scoring one record.
type ScoreResult struct {
	ID           string `json:"patient_id"`
	RiskScore    int    `json:"risk_score"`
	IsFever      bool   `json:"fever"`
	HasDataIssue bool   `json:"data_issue"`
}

// HighRisk reports whether the score meets the high-risk threshold.
func (r ScoreResult) HighRisk() bool {
	return r.RiskScore >= HighRiskThreshold
}

// AssessmentPayload is the body posted to the submission endpoint. Each slice
// is sorted ascending and duplicate-free.
type AssessmentPayload struct {
	HighRiskPatients  []string `json:"high_risk_patients"`
	FeverPatients     []string `json:"fever_patients"`
	DataQualityIssues []string `json:"data_quality_issues"`
}

// SubmissionResults is the graded part of a submission response.
type SubmissionResults struct {
	Percentage float64 `json:"percentage"`
	Status     string  `json:"status"`
}

// SubmissionResult is the submission response.
type SubmissionResult struct {
	Results *SubmissionResults `json:"results"`
	Raw     []byte             `json:"-"`
}
