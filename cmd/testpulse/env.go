package testpulse

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/kamilpajak/testpulse/internal/config"
	"github.com/kamilpajak/testpulse/internal/database"
	"github.com/kamilpajak/testpulse/internal/ingest"
	"github.com/kamilpajak/testpulse/internal/logging"
	"github.com/kamilpajak/testpulse/internal/store"
	"github.com/kamilpajak/testpulse/pkg/models"
)

const rehydrateBatch = 1000

// env is what every command runs against: the resolved configuration, a
// populated store and the optional archive.
type env struct {
	cfg   *config.Config
	log   *logrus.Logger
	store *store.Store
	db    *database.DB
}

// loadConfig resolves the configuration and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if databaseURL != "" {
		cfg.Database.URL = databaseURL
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// openEnv loads the configuration, connects to the archive when one is
// configured and fills the store from it and from --reports.
func openEnv(ctx context.Context, opts ...store.Option) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	e := &env{
		cfg:   cfg,
		log:   logging.NewWithOutput(os.Stderr, cfg.Logging.Level, cfg.Logging.Format),
		store: store.New(opts...),
	}

	if cfg.Database.URL != "" {
		if cfg.Database.Migrate {
			if err := database.Migrate(cfg.Database.URL); err != nil {
				return nil, fmt.Errorf("migration failed: %w", err)
			}
		}
		db, err := database.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		e.db = db
		if err := e.rehydrate(ctx); err != nil {
			e.Close()
			return nil, err
		}
	}

	if err := e.loadReports(ctx, ingest.NewLoader(e.store, e.loaderOptions()...), reportDirs); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// Close releases the archive connection.
func (e *env) Close() {
	if e.db != nil {
		e.db.Close()
	}
}

func (e *env) loaderOptions(extra ...ingest.LoaderOption) []ingest.LoaderOption {
	opts := []ingest.LoaderOption{
		ingest.WithLogger(e.log),
		ingest.WithWorkers(e.cfg.Ingest.Workers),
	}
	return append(opts, extra...)
}

// rehydrate copies the archived records into the store.
func (e *env) rehydrate(ctx context.Context) error {
	stop := startSpinner("Loading archived records...")
	defer stop()

	batch := make([]models.TestRecord, 0, rehydrateBatch)
	err := e.db.LoadRecords(ctx, func(r models.TestRecord) error {
		batch = append(batch, r)
		if len(batch) == rehydrateBatch {
			e.store.UpsertBatch(batch)
			batch = batch[:0]
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to load archived records: %w", err)
	}
	e.store.UpsertBatch(batch)
	e.log.WithField("records", e.store.TotalCount()).Debug("archive loaded")
	return nil
}

func (e *env) loadReports(ctx context.Context, loader *ingest.Loader, dirs []string) error {
	for _, dir := range dirs {
		stop := startSpinner(fmt.Sprintf("Loading reports from %s...", dir))
		res, err := loader.LoadTree(ctx, dir)
		stop()
		if err != nil {
			return err
		}
		if res.Errors != nil {
			e.log.WithError(res.Errors).Warnf("%d of %d report files skipped", res.Failed, res.Files)
		}
	}
	return nil
}

// startSpinner shows a spinner on stderr while the terminal is interactive
// and output is not JSON. The returned func stops it.
func startSpinner(msg string) func() {
	fd := os.Stderr.Fd()
	if jsonOutput || !(isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)) {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + msg
	s.Start()
	return s.Stop
}
