package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/mockapi"
)

var (
	mockFixture string
	mockPort    int
)

var mockapiCmd = &cobra.Command{
	Use:   "mockapi",
	Short: "Serve a local fake of the assessment API",
	Long: `Serves /patients and /submit-assessment from a YAML fixture, with
rate limiting and scheduled faults, so assess can be exercised locally.

Without --fixture a built-in data set with one fault per page is served.

Examples:
  mockapi --port 8089
  mockapi --fixture testdata/patients.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if mockPort != 0 {
			cfg.MockAPI.Port = mockPort
		}
		if err := cfg.Validate("mockapi"); err != nil {
			return err
		}

		srv, err := newMockServer(mockFixture)
		if err != nil {
			return err
		}
		return srv.Serve(ctx, fmt.Sprintf(":%d", cfg.MockAPI.Port))
	},
}

func init() {
	mockapiCmd.Flags().StringVar(&mockFixture, "fixture", "", "YAML fixture file (default: built-in data set)")
	mockapiCmd.Flags().IntVar(&mockPort, "port", 0, "listen port (default from config)")
	rootCmd.AddCommand(mockapiCmd)
}

func newMockServer(fixturePath string) (*mockapi.Server, error) {
	fixture := mockapi.DefaultFixture()
	if fixturePath != "" {
		f, err := mockapi.LoadFixture(fixturePath)
		if err != nil {
			return nil, err
		}
		fixture = f
	}

	zap.L().Info("mockapi: loaded fixture",
		zap.Int("patients", len(fixture.Patients)),
		zap.Int("faults", len(fixture.Faults)),
	)
	return mockapi.NewServer(fixture,
		mockapi.WithAPIKey(cfg.API.Key),
		mockapi.WithRateLimit(cfg.MockAPI.RatePerSec, cfg.MockAPI.Burst),
	)
}
