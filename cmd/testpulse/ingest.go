package testpulse

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kamilpajak/testpulse/internal/database"
	"github.com/kamilpajak/testpulse/internal/ingest"
	"github.com/kamilpajak/testpulse/internal/notify"
)

var ingestSource ingest.Source

var ingestCmd = &cobra.Command{
	Use:   "ingest <dir>...",
	Short: "Load JUnit reports and archive them",
	Long: `Loads every *.xml report below each directory.

Without --build each directory must follow the report layout
  <version>/<testType>/<namedConfig>/<domain>/<build>/<feature>/*.xml
and the source of every file is derived from its path. With --build all
files get the source given by the flags and the feature is the name of the
directory holding the file.

Records are archived to PostgreSQL when a database is configured.

Examples:
  testpulse ingest ./reports --database postgres://localhost/testpulse
  testpulse ingest ./out --build nightly-118 --version 25.1 --test-type smoke --named-config linux-x64 --domain payments`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.StringVar(&ingestSource.BuildID, "build", "", "Build id for every file")
	f.StringVar(&ingestSource.Version, "version", "", "Product version")
	f.StringVar(&ingestSource.TestType, "test-type", "", "Test type, e.g. smoke or regression")
	f.StringVar(&ingestSource.NamedConfig, "named-config", "", "Named configuration, e.g. linux-x64")
	f.StringVar(&ingestSource.Domain, "domain", "", "Domain")
	f.StringVar(&ingestSource.Machine, "machine", "", "Machine the tests ran on")
}

type ingestSummary struct {
	Dir      string   `json:"dir"`
	Files    int      `json:"files"`
	Failed   int      `json:"failed"`
	Records  int      `json:"records"`
	Inserted int      `json:"inserted"`
	Replaced int      `json:"replaced"`
	Builds   []string `json:"builds"`
	Errors   string   `json:"errors,omitempty"`
	EventID  string   `json:"event_id,omitempty"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	events := cmd.OutOrStdout()
	if jsonOutput {
		events = io.Discard
	}
	opts := []ingest.LoaderOption{ingest.WithEmitter(&notify.TextEmitter{W: events})}
	if e.db != nil {
		opts = append(opts, ingest.WithArchive(e.db))
	}
	loader := ingest.NewLoader(e.store, e.loaderOptions(opts...)...)

	var summaries []ingestSummary
	for _, dir := range args {
		stop := startSpinner(fmt.Sprintf("Ingesting %s...", dir))
		var res *ingest.Result
		if ingestSource.BuildID != "" {
			res, err = loader.LoadDir(ctx, dir, ingestSource)
		} else {
			res, err = loader.LoadTree(ctx, dir)
		}
		stop()
		if err != nil {
			return err
		}

		s := summarize(dir, res)
		if e.db != nil && res.Records > 0 {
			if err := recordBatch(ctx, e.db, s); err != nil {
				e.log.WithError(err).Warn("failed to record ingest batch")
			}
		}
		summaries = append(summaries, s)
		if !jsonOutput {
			printIngest(cmd.OutOrStdout(), s)
		}
	}

	if jsonOutput {
		return outputJSON(cmd.OutOrStdout(), summaries)
	}
	return nil
}

func summarize(dir string, res *ingest.Result) ingestSummary {
	s := ingestSummary{
		Dir:      dir,
		Files:    res.Files,
		Failed:   res.Failed,
		Records:  res.Records,
		Inserted: res.Batch.Inserted,
		Replaced: res.Batch.Replaced,
		Builds:   res.Builds,
		EventID:  res.Event.ID,
	}
	if s.Builds == nil {
		s.Builds = []string{}
	}
	if res.Errors != nil {
		s.Errors = res.Errors.Error()
	}
	return s
}

// recordBatch stores the audit entry of one ingestion under its event id.
func recordBatch(ctx context.Context, db *database.DB, s ingestSummary) error {
	id, err := uuid.Parse(s.EventID)
	if err != nil {
		id = uuid.Nil
	}
	_, err = db.CreateIngestBatch(ctx, database.CreateIngestBatchParams{
		ID:       id,
		Source:   "cli:" + s.Dir,
		Records:  s.Records,
		Failures: s.Failed,
		Builds:   s.Builds,
	})
	return err
}

func printIngest(w io.Writer, s ingestSummary) {
	_, _ = bold.Fprintf(w, "%s: ", s.Dir)
	fmt.Fprintf(w, "%s files, %s records (%s new, %s replaced)\n",
		humanize.Comma(int64(s.Files)), humanize.Comma(int64(s.Records)),
		humanize.Comma(int64(s.Inserted)), humanize.Comma(int64(s.Replaced)))
	if s.Failed > 0 {
		_, _ = yellow.Fprintf(w, "  %d files skipped\n", s.Failed)
		_, _ = dim.Fprintf(w, "  %s\n", s.Errors)
	}
}
