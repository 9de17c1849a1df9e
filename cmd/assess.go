package main

import (
	"context"
	"encoding/json"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/config"
	"github.com/sells-group/assessment-cli/internal/fetcher"
	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/monitoring"
	"github.com/sells-group/assessment-cli/internal/pipeline"
	"github.com/sells-group/assessment-cli/internal/resilience"
	"github.com/sells-group/assessment-cli/pkg/patientapi"
)

var (
	assessDryRun  bool
	assessBaseURL string
)

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Fetch, score and submit every patient",
	Long: `Walks every page of /patients, scores each record and posts the
high risk, fever and data quality lists to /submit-assessment once.

Transient failures are retried per page; a page that keeps failing is
retried after a cooldown until it succeeds or pipeline.max_run_secs is spent.

Examples:
  # Full run against the configured API
  assess

  # Collect and print the payload without submitting
  assess --dry-run

  # Run against a local mock API
  assess --base-url http://localhost:8089`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if assessBaseURL != "" {
			cfg.API.BaseURL = assessBaseURL
		}
		if err := cfg.Validate("assess"); err != nil {
			return err
		}

		return runAssess(ctx, cfg, cmd.OutOrStdout(), assessDryRun)
	},
}

func init() {
	assessCmd.Flags().BoolVar(&assessDryRun, "dry-run", false, "collect and print the payload without submitting")
	assessCmd.Flags().StringVar(&assessBaseURL, "base-url", "", "API base URL (overrides api.base_url)")
	rootCmd.AddCommand(assessCmd)
}

// assessReport is printed to stdout when a run finishes.
type assessReport struct {
	RunID      string                     `json:"run_id"`
	DryRun     bool                       `json:"dry_run"`
	Payload    model.AssessmentPayload    `json:"payload"`
	Submission *model.SubmissionResults   `json:"submission,omitempty"`
	Summary    pipeline.Summary           `json:"summary"`
	Metrics    monitoring.MetricsSnapshot `json:"metrics"`
}

func runAssess(ctx context.Context, cfg *config.Config, out io.Writer, dryRun bool) error {
	runID := uuid.NewString()
	log := zap.L().With(zap.String("run_id", runID))
	start := time.Now()

	client := patientapi.NewClient(cfg.API.Key,
		patientapi.WithBaseURL(cfg.API.BaseURL),
		patientapi.WithTimeout(time.Duration(cfg.API.TimeoutSecs)*time.Second),
	)
	collector := monitoring.NewCollector(runID)

	pf := fetcher.New(client, resilience.FromConfig(cfg.Fetch),
		fetcher.WithObserver(collector),
		fetcher.WithLogger(log),
	)
	p := pipeline.New(pipeline.FromConfig(cfg.Pipeline), pf, client,
		pipeline.WithObserver(collector),
		pipeline.WithRunID(runID),
	)

	log.Info("assess: starting run",
		zap.String("base_url", cfg.API.BaseURL),
		zap.Bool("dry_run", dryRun),
	)

	report := assessReport{RunID: runID, DryRun: dryRun}
	var runErr error
	if dryRun {
		var payload *model.AssessmentPayload
		payload, runErr = p.Collect(ctx)
		if runErr == nil {
			report.Payload = *payload
		}
	} else {
		var res *pipeline.RunResult
		res, runErr = p.Run(ctx)
		if runErr == nil {
			report.Payload = res.Payload
			report.Submission = res.Submission.Results
		}
	}
	report.Summary = p.Summary()
	report.Metrics = collector.Snapshot()

	log.Info("assess: run metrics",
		zap.Int("attempts", report.Metrics.Attempts),
		zap.Any("attempts_by_class", report.Metrics.AttemptsByClass),
		zap.Duration("backoff_total", report.Metrics.BackoffTotal),
		zap.Int("cooldowns", report.Metrics.Cooldowns),
		zap.Int("pages", report.Metrics.Pages),
		zap.Int("records_scored", report.Metrics.RecordsScored),
		zap.Int("records_skipped", report.Metrics.RecordsSkipped),
		zap.Duration("elapsed", time.Since(start)),
	)
	if cfg.Metrics.Textfile != "" {
		if err := collector.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.Warn("assess: metrics textfile not written", zap.Error(err))
		}
	}

	if runErr != nil {
		return eris.Wrap(runErr, "assess")
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return eris.Wrap(err, "assess: write report")
	}
	return nil
}
