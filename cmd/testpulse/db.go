package testpulse

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kamilpajak/testpulse/internal/database"
)

var (
	migrateDown    bool
	pruneOlderThan time.Duration
	pruneBuild     string
	batchesLimit   int
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the PostgreSQL record archive",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply (or with --down revert) the archive schema migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, err := archiveURL()
		if err != nil {
			return err
		}
		if migrateDown {
			if err := database.MigrateDown(url); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations reverted")
			return nil
		}
		if err := database.Migrate(url); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Migrations complete")
		return nil
	},
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the number of archived records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openArchive(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.CountRecords(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), map[string]int{"records": n})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s archived records\n", humanize.Comma(int64(n)))
		return nil
	},
}

var dbPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete archived records of one build or older than a cutoff",
	Long: `Examples:
  testpulse db prune --build nightly-117
  testpulse db prune --older-than 2160h`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (pruneBuild == "") == (pruneOlderThan <= 0) {
			return fmt.Errorf("exactly one of --build or --older-than is required")
		}
		db, err := openArchive(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		var deleted int64
		if pruneBuild != "" {
			deleted, err = db.DeleteBuild(cmd.Context(), pruneBuild)
		} else {
			deleted, err = db.DeleteOlderThan(cmd.Context(), time.Now().Add(-pruneOlderThan))
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s records\n", humanize.Comma(deleted))
		return nil
	},
}

var dbBatchesCmd = &cobra.Command{
	Use:   "batches [id]",
	Short: "List recent ingestion runs, or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openArchive(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		var batches []database.IngestBatch
		if len(args) == 1 {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid batch id: %w", err)
			}
			b, err := db.GetIngestBatch(cmd.Context(), id)
			if err != nil {
				return err
			}
			if b == nil {
				return fmt.Errorf("batch %s not found", id)
			}
			batches = append(batches, *b)
		} else {
			batches, err = db.ListIngestBatches(cmd.Context(), batchesLimit)
			if err != nil {
				return err
			}
		}

		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), batches)
		}
		printBatches(cmd.OutOrStdout(), batches)
		return nil
	},
}

func init() {
	dbMigrateCmd.Flags().BoolVar(&migrateDown, "down", false, "Revert all migrations")
	dbPruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 0, "Delete records executed before now minus this duration")
	dbPruneCmd.Flags().StringVar(&pruneBuild, "build", "", "Delete the records of this build")
	dbBatchesCmd.Flags().IntVarP(&batchesLimit, "limit", "l", 20, "Maximum runs to list")

	dbCmd.AddCommand(dbMigrateCmd, dbStatsCmd, dbPruneCmd, dbBatchesCmd)
}

func archiveURL() (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Database.URL == "" {
		return "", fmt.Errorf("no database configured: set --database or DATABASE_URL")
	}
	return cfg.Database.URL, nil
}

func openArchive(cmd *cobra.Command) (*database.DB, error) {
	url, err := archiveURL()
	if err != nil {
		return nil, err
	}
	return database.New(cmd.Context(), url)
}

func printBatches(w io.Writer, batches []database.IngestBatch) {
	if len(batches) == 0 {
		fmt.Fprintln(w, "No ingestion runs recorded.")
		return
	}
	for _, b := range batches {
		_, _ = dim.Fprintf(w, "%s  ", b.ID)
		fmt.Fprintf(w, "%-12s %s records", humanize.Time(b.CreatedAt), humanize.Comma(int64(b.Records)))
		if b.Failures > 0 {
			_, _ = yellow.Fprintf(w, ", %d failed files", b.Failures)
		}
		_, _ = dim.Fprintf(w, "  %s  [%s]\n", b.Source, strings.Join(b.Builds, ", "))
	}
}
