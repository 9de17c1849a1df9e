package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/config"
)

var cfg *config.Config

// loggerReady is set once the global zap logger replaces the no-op default.
var loggerReady bool

var rootCmd = &cobra.Command{
	Use:   "assessment-cli",
	Short: "Patient risk assessment client",
	Long:  "Pages through the assessment API with retries, scores every patient record and submits the high risk, fever and data quality lists.",

	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		loggerReady = true

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

// reportError logs err through zap, or writes it to w when the command failed
// before the logger was initialized.
func reportError(w io.Writer, err error) {
	if !loggerReady {
		fmt.Fprintf(w, "Error: %s\n", eris.ToString(err, true))
		return
	}
	zap.L().Error("command failed", zap.String("error", eris.ToString(err, true)))
	_ = zap.L().Sync()
}
