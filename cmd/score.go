package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/pipeline"
	"github.com/sells-group/assessment-cli/internal/scorer"
	"github.com/sells-group/assessment-cli/pkg/patientapi"
)

var scoreFile string

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score patient records from a local JSON file",
	Long: `Applies the risk rubric to a local file without touching the network.

The file holds either a JSON array of patient records or a saved /patients
page ({"data": [...], "pagination": {...}}).

Examples:
  score --file patients.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("score"); err != nil {
			return err
		}
		return runScore(scoreFile, cmd.OutOrStdout())
	},
}

func init() {
	scoreCmd.Flags().StringVar(&scoreFile, "file", "", "path to a JSON file of patient records")
	_ = scoreCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(scoreCmd)
}

// scoredRecord is one line of the score report.
type scoredRecord struct {
	model.ScoreResult
	HighRisk  bool          `json:"high_risk"`
	Breakdown factorDetails `json:"breakdown"`
}

type factorDetails struct {
	Age           factor `json:"age"`
	Temperature   factor `json:"temperature"`
	BloodPressure factor `json:"blood_pressure"`
}

type factor struct {
	Status string `json:"status"`
	Score  int    `json:"score"`
}

type scoreReport struct {
	Records []scoredRecord          `json:"records"`
	Skipped int                     `json:"skipped"`
	Payload model.AssessmentPayload `json:"payload"`
}

func runScore(path string, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "score: read %s", path)
	}
	recs, err := decodeRecords(data)
	if err != nil {
		return eris.Wrapf(err, "score: decode %s", path)
	}

	report := scoreReport{Records: []scoredRecord{}}
	acc := pipeline.NewAccumulator()
	for _, rec := range recs {
		if !rec.HasID {
			report.Skipped++
			continue
		}
		res, b := scorer.Explain(rec)
		acc.Add(res)
		report.Records = append(report.Records, scoredRecord{
			ScoreResult: res,
			HighRisk:    res.HighRisk(),
			Breakdown: factorDetails{
				Age:           factor{Status: b.Age.Kind.String(), Score: b.AgeScore},
				Temperature:   factor{Status: b.Temperature.Kind.String(), Score: b.TemperatureScore},
				BloodPressure: factor{Status: b.BloodPressure.Status.String(), Score: b.BloodPressureScore},
			},
		})
	}
	report.Payload = acc.Payload()

	zap.L().Info("score: scored file",
		zap.String("file", path),
		zap.Int("records", len(report.Records)),
		zap.Int("skipped", report.Skipped),
	)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return eris.Wrap(err, "score: write report")
	}
	return nil
}

// decodeRecords accepts a bare array of records or a saved page.
func decodeRecords(data []byte) ([]model.PatientRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var recs []model.PatientRecord
		if err := json.Unmarshal(trimmed, &recs); err != nil {
			return nil, eris.Wrap(err, "parse record array")
		}
		return recs, nil
	}

	page, err := patientapi.DecodePage(trimmed)
	if err != nil {
		return nil, err
	}
	return page.Records, nil
}
