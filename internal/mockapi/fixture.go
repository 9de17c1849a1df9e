// Package mockapi serves a local fake of the assessment API for development
// runs and tests.
package mockapi

import (
	"encoding/json"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/pipeline"
)

// Fault kinds.
const (
	FaultStatus    = "status"    // respond with Fault.Status and a JSON error body
	FaultMalformed = "malformed" // 200 with a body that fails the page schema
	FaultGarbage   = "garbage"   // 200 with a body that is not JSON
)

// Fixture is the data set a Server serves.
type Fixture struct {
	// Patients are served as-is, so they may carry any JSON value.
	Patients []map[string]any `yaml:"patients" validate:"required,min=1"`
	Faults   []Fault          `yaml:"faults" validate:"dive"`
}

// Fault forces a failure on the given attempt of a page. Attempts count
// every request for that page, starting at 1.
type Fault struct {
	Page    int    `yaml:"page" validate:"gte=1"`
	Attempt int    `yaml:"attempt" validate:"gte=1"`
	Kind    string `yaml:"kind" validate:"oneof=status malformed garbage"`
	Status  int    `yaml:"status" validate:"omitempty,gte=400,lte=599"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadFixture reads and validates a YAML fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "mockapi: read fixture %s", path)
	}
	return ParseFixture(data)
}

// ParseFixture decodes and validates fixture YAML.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "mockapi: parse fixture")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the fixture structure.
func (f *Fixture) Validate() error {
	if err := validate.Struct(f); err != nil {
		return eris.Wrap(err, "mockapi: invalid fixture")
	}
	for i, fault := range f.Faults {
		if fault.Kind == FaultStatus && fault.Status == 0 {
			return eris.Errorf("mockapi: invalid fixture: faults[%d] has kind status but no status code", i)
		}
	}
	return nil
}

// Expected returns the payload a correct client would submit for the
// fixture's patients.
func (f *Fixture) Expected() (model.AssessmentPayload, error) {
	data, err := json.Marshal(f.Patients)
	if err != nil {
		return model.AssessmentPayload{}, eris.Wrap(err, "mockapi: encode patients")
	}
	var recs []model.PatientRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return model.AssessmentPayload{}, eris.Wrap(err, "mockapi: decode patients")
	}
	acc := pipeline.NewAccumulator()
	pipeline.Fold(acc, recs)
	return acc.Payload(), nil
}

// DefaultFixture is served when no fixture file is given. It covers every
// scoring bracket and the usual data quality problems.
func DefaultFixture() *Fixture {
	return &Fixture{
		Patients: []map[string]any{
			{"patient_id": "DEMO001", "name": "TestPatient, John", "age": 45, "gender": "M", "blood_pressure": "120/80", "temperature": 98.6},
			{"patient_id": "DEMO002", "name": "AlphaTest, Jane", "age": 67, "gender": "F", "blood_pressure": "140/90", "temperature": 99.2},
			{"patient_id": "DEMO003", "name": "BetaTest, Pat", "age": 52, "gender": "M", "blood_pressure": "130/85", "temperature": 101.5},
			{"patient_id": "DEMO004", "name": "GammaTest, Lee", "age": 29, "gender": "F", "blood_pressure": "118/76", "temperature": 100.4},
			{"patient_id": "DEMO005", "name": "DeltaTest, Sam", "age": 80, "gender": "M", "blood_pressure": "150/", "temperature": 98.1},
			{"patient_id": "DEMO006", "name": "EpsilonTest, Ray", "age": "fifty-three", "gender": "F", "blood_pressure": "125/78", "temperature": 97.9},
			{"patient_id": "DEMO007", "name": "ZetaTest, Kim", "age": 71, "gender": "M", "blood_pressure": "N/A", "temperature": "TEMP_ERROR"},
			{"patient_id": "DEMO008", "name": "EtaTest, Ana", "age": 38, "gender": "F", "blood_pressure": "/90", "temperature": nil},
			{"patient_id": "DEMO009", "name": "ThetaTest, Bo", "age": 66, "gender": "M", "blood_pressure": "135/88", "temperature": 102.3},
			{"patient_id": "DEMO010", "name": "IotaTest, Cy", "age": 44, "gender": "F", "temperature": 99.7},
			{"patient_id": "DEMO011", "name": "KappaTest, Di", "age": 59, "gender": "M", "blood_pressure": "INVALID", "temperature": 98.9},
			{"patient_id": "DEMO012", "name": "LambdaTest, Ed", "age": 90, "gender": "F", "blood_pressure": "165/102", "temperature": 103.1},
		},
		Faults: []Fault{
			{Page: 1, Attempt: 1, Kind: FaultStatus, Status: 503},
			{Page: 2, Attempt: 1, Kind: FaultMalformed},
			{Page: 2, Attempt: 2, Kind: FaultStatus, Status: 500},
			{Page: 3, Attempt: 1, Kind: FaultGarbage},
		},
	}
}
