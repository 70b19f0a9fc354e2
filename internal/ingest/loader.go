package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kamilpajak/testpulse/internal/logging"
	"github.com/kamilpajak/testpulse/internal/metrics"
	"github.com/kamilpajak/testpulse/internal/notify"
	"github.com/kamilpajak/testpulse/internal/parser"
	"github.com/kamilpajak/testpulse/internal/store"
	"github.com/kamilpajak/testpulse/pkg/models"
)

// ErrInvalidReport is returned by LoadBytes when the report cannot be parsed.
var ErrInvalidReport = errors.New("invalid report")

// Archive persists ingested records. *database.DB implements it.
type Archive interface {
	SaveRecords(ctx context.Context, records []models.TestRecord) error
}

// Result summarises one ingestion run.
type Result struct {
	Files   int
	Failed  int
	// Records counts distinct record ids, so it equals Batch.Inserted +
	// Batch.Replaced.
	Records int
	Builds  []string
	Batch   store.BatchResult
	// Errors holds the per-file parse errors; they do not abort the run.
	Errors error
	Event   notify.Event
}

// Loader parses report files and upserts them into a store as one batch.
type Loader struct {
	store   *store.Store
	parser  *parser.JUnitParser
	emitter notify.Emitter
	archive Archive
	log     logrus.FieldLogger
	workers int
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithEmitter publishes an event after every committed batch.
func WithEmitter(e notify.Emitter) LoaderOption {
	return func(l *Loader) { l.emitter = e }
}

// WithArchive saves every committed batch to a.
func WithArchive(a Archive) LoaderOption {
	return func(l *Loader) { l.archive = a }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) LoaderOption {
	return func(l *Loader) { l.log = log }
}

// WithWorkers bounds the number of files parsed concurrently.
func WithWorkers(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.workers = n
		}
	}
}

// NewLoader creates a Loader writing to s.
func NewLoader(s *store.Store, opts ...LoaderOption) *Loader {
	l := &Loader{
		store:   s,
		parser:  &parser.JUnitParser{},
		log:     logging.Discard(),
		workers: 4,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type job struct {
	path   string
	source Source
}

// LoadDir ingests every *.xml file below root with the given source. The
// feature id of each record is the directory holding its file.
func (l *Loader) LoadDir(ctx context.Context, root string, src Source) (*Result, error) {
	var jobs []job
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isReport(path) {
			jobs = append(jobs, job{path: path, source: src})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return l.load(ctx, jobs, "dir:"+root)
}

// LoadTree ingests every *.xml file below root, deriving each source from
// the file's location as LoadFiles does.
func (l *Loader) LoadTree(ctx context.Context, root string) (*Result, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isReport(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return l.LoadFiles(ctx, root, paths)
}

// LoadFiles ingests files whose source is derived from their location under
// root, as laid out for SourceFromPath. Files outside that layout are
// reported as errors.
func (l *Loader) LoadFiles(ctx context.Context, root string, paths []string) (*Result, error) {
	jobs := make([]job, 0, len(paths))
	var skipped *multierror.Error
	for _, p := range paths {
		src, ok := SourceFromPath(root, p)
		if !ok {
			skipped = multierror.Append(skipped, fmt.Errorf("%s: path does not match the report layout", p))
			continue
		}
		jobs = append(jobs, job{path: p, source: src})
	}
	res, err := l.load(ctx, jobs, "watch:"+root)
	if err != nil {
		return nil, err
	}
	if skipped != nil {
		res.Failed += len(skipped.Errors)
		res.Errors = multierror.Append(skipped, res.Errors).ErrorOrNil()
	}
	return res, nil
}

// LoadBytes ingests a single report held in memory.
func (l *Loader) LoadBytes(ctx context.Context, data []byte, src Source, reportDir string) (*Result, error) {
	report, err := l.parser.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidReport, err)
	}
	return l.Commit(ctx, Records(report, src, reportDir), "upload")
}

func (l *Loader) load(ctx context.Context, jobs []job, origin string) (*Result, error) {
	parsed := make([][]models.TestRecord, len(jobs))
	var (
		mu   sync.Mutex
		merr *multierror.Error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			records, err := l.parseFile(j)
			if err != nil {
				mu.Lock()
				merr = multierror.Append(merr, err)
				mu.Unlock()
				return nil
			}
			parsed[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to parse reports: %w", err)
	}

	var records []models.TestRecord
	for _, rs := range parsed {
		records = append(records, rs...)
	}

	res, err := l.Commit(ctx, records, origin)
	if err != nil {
		return nil, err
	}
	res.Files = len(jobs)
	if merr != nil {
		res.Failed = len(merr.Errors)
		res.Errors = merr.ErrorOrNil()
		metrics.IngestErrors(res.Failed)
		l.log.WithError(res.Errors).WithField("failed", res.Failed).Warn("some reports could not be parsed")
	}
	return res, nil
}

func (l *Loader) parseFile(j job) ([]models.TestRecord, error) {
	report, err := l.parser.Parse(j.path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", j.path, err)
	}
	src := j.source
	if src.Timestamp.IsZero() {
		if info, err := os.Stat(j.path); err == nil {
			src.Timestamp = info.ModTime().UTC()
		}
	}
	return Records(report, src, filepath.Dir(j.path)), nil
}

// Commit archives records, upserts them as one batch and publishes an
// ingestion event. Records sharing an id collapse to the last one first.
// When archiving fails neither the archive nor the store is changed and no
// event is published; once Commit succeeds every query observes the batch.
func (l *Loader) Commit(ctx context.Context, records []models.TestRecord, origin string) (*Result, error) {
	sanitized := dedupe(records)

	res := &Result{Records: len(sanitized), Builds: distinctBuilds(sanitized)}
	if len(sanitized) == 0 {
		return res, nil
	}

	if l.archive != nil {
		if err := l.archive.SaveRecords(ctx, sanitized); err != nil {
			return nil, fmt.Errorf("failed to archive records: %w", err)
		}
	}

	res.Batch = l.store.UpsertBatch(sanitized)

	l.log.WithFields(logrus.Fields{
		"origin":   origin,
		"records":  res.Records,
		"inserted": res.Batch.Inserted,
		"replaced": res.Batch.Replaced,
		"builds":   strings.Join(res.Builds, ","),
	}).Info("batch ingested")

	if l.emitter != nil {
		res.Event = notify.Event{
			ID:      uuid.NewString(),
			Type:    notify.EventIngested,
			Records: res.Records,
			Builds:  res.Builds,
			Message: origin,
			At:      time.Now().UTC(),
		}
		l.emitter.Emit(res.Event)
	}
	return res, nil
}

// dedupe sanitizes records and keeps the last record per id, in order of
// first appearance.
func dedupe(records []models.TestRecord) []models.TestRecord {
	out := make([]models.TestRecord, 0, len(records))
	byID := make(map[string]int, len(records))
	for _, r := range records {
		r = store.Sanitize(r)
		if i, ok := byID[r.ID]; ok {
			out[i] = r
			continue
		}
		byID[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

func distinctBuilds(records []models.TestRecord) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		if _, ok := seen[r.BuildID]; ok {
			continue
		}
		seen[r.BuildID] = struct{}{}
		out = append(out, r.BuildID)
	}
	sort.Strings(out)
	return out
}

func isReport(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xml")
}
