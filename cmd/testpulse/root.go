package testpulse

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	jsonOutput  bool
	reportDirs  []string
	databaseURL string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "testpulse",
	Short: "Test telemetry analytics",
	Long: `testpulse ingests JUnit reports from many configurations and builds and
answers questions about them: which failures share a cause, which tests
are flaky, how a configuration evolved and what changed since yesterday.

Reports are read from a directory tree laid out as
  <root>/<version>/<testType>/<namedConfig>/<domain>/<build>/<feature>/*.xml
and optionally archived to PostgreSQL.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to a YAML config file (default $TESTPULSE_CONFIG)")
	flags.BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	flags.StringSliceVarP(&reportDirs, "reports", "r", nil, "Report tree to load before running the command (repeatable)")
	flags.StringVar(&databaseURL, "database", "", "PostgreSQL URL of the record archive (default $DATABASE_URL)")
	flags.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(groupsCmd)
	rootCmd.AddCommand(flakyCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(triageCmd)
	rootCmd.AddCommand(dimensionsCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(versionCmd)
}
