package testpulse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kamilpajak/testpulse/internal/api"
	"github.com/kamilpajak/testpulse/internal/database"
	"github.com/kamilpajak/testpulse/internal/ingest"
	"github.com/kamilpajak/testpulse/internal/metrics"
	"github.com/kamilpajak/testpulse/internal/notify"
	"github.com/kamilpajak/testpulse/internal/store"
)

var (
	serveAddr     string
	serveWatchDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query API, ingest dropped reports and expose metrics",
	Long: `Starts the HTTP API. The store is filled from the archive and from
--reports, then kept current from uploads and, with --watch, from reports
dropped into a directory tree.

Examples:
  testpulse serve -r ./reports
  testpulse serve --watch /var/lib/testpulse/inbox --database postgres://localhost/testpulse`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "Listen address (default from config)")
	serveCmd.Flags().StringVarP(&serveWatchDir, "watch", "w", "", "Directory tree to watch for new reports (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	e, err := openEnv(ctx, store.WithObserver(func(r store.BatchResult) {
		metrics.ObserveBatch(r.Inserted, r.Replaced, r.Total, r.Elapsed)
	}))
	if err != nil {
		return err
	}
	defer e.Close()
	metrics.SetRecords(e.store.TotalCount())

	cfg := e.cfg
	if serveAddr != "" {
		cfg.Server.Address = serveAddr
	}
	if serveWatchDir != "" {
		cfg.Ingest.WatchDir = serveWatchDir
	}

	hub := notify.NewHub(0)
	opts := []ingest.LoaderOption{ingest.WithEmitter(hub)}
	if e.db != nil {
		opts = append(opts, ingest.WithArchive(e.db))
	}
	loader := ingest.NewLoader(e.store, e.loaderOptions(opts...)...)

	apiServer := api.NewServer(api.Config{
		Store:     e.store,
		Loader:    loader,
		Hub:       hub,
		Analysis:  cfg.Analysis,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
		Logger:    e.log,
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           apiServer,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	servers := []*http.Server{httpServer}
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{
			Addr:              cfg.Server.MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: 15 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)

	if e.db != nil {
		events, cancel := hub.Subscribe()
		g.Go(func() error {
			defer cancel()
			auditBatches(gctx, e.db, events, e.log)
			return nil
		})
	}

	for _, srv := range servers {
		g.Go(func() error {
			e.log.WithField("addr", srv.Addr).Info("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	if cfg.Ingest.WatchDir != "" {
		w := ingest.NewWatcher(loader, cfg.Ingest.WatchDir, 0, e.log)
		w.OnResult = func(res *ingest.Result, err error) {
			if err != nil {
				hub.Publish(notify.Event{Type: notify.EventError, Message: err.Error()})
			}
		}
		g.Go(func() error {
			e.log.WithField("dir", cfg.Ingest.WatchDir).Info("watching for reports")
			return w.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		e.log.Info("shutting down")
		// Closing the hub ends open event streams so Shutdown can drain.
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("server %s shutdown: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// auditBatches records one archive entry per ingestion event until ctx ends
// or the hub closes.
func auditBatches(ctx context.Context, db *database.DB, events <-chan notify.Event, log logrus.FieldLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type != notify.EventIngested {
				continue
			}
			id, err := uuid.Parse(ev.ID)
			if err != nil {
				id = uuid.Nil
			}
			_, err = db.CreateIngestBatch(ctx, database.CreateIngestBatchParams{
				ID:      id,
				Source:  ev.Message,
				Records: ev.Records,
				Builds:  ev.Builds,
			})
			if err != nil {
				log.WithError(err).WithField("event", ev.ID).Warn("failed to record ingest batch")
			}
		}
	}
}
