// Package store provides the indexed in-memory record store that every
// analytics query reads from.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/kamilpajak/testpulse/pkg/models"
)

// BatchResult describes the outcome of one batch upsert.
type BatchResult struct {
	Inserted int
	Replaced int
	Total    int
	Elapsed  time.Duration
}

// Observer is notified after every batch upsert.
type Observer func(BatchResult)

// Option configures a Store.
type Option func(*Store)

// WithObserver registers fn to be called after each batch upsert.
func WithObserver(fn Observer) Option {
	return func(s *Store) {
		s.observer = fn
	}
}

// Store is a thread-safe primary store of test records with one secondary
// index per Dimension.
//
// Point lookups go straight to the concurrent primary map. Index structures
// are guarded by mu, which writers hold only while applying an already
// prepared batch; primary writes happen inside the same section so index
// readers never observe one without the other.
type Store struct {
	records  *xsync.MapOf[string, models.TestRecord]
	mu       sync.RWMutex
	indices  [dimensionCount]map[string]map[string]struct{}
	observer Observer
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{records: xsync.NewMapOf[string, models.TestRecord]()}
	s.resetIndices()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) resetIndices() {
	for i := range s.indices {
		s.indices[i] = make(map[string]map[string]struct{})
	}
}

// Upsert inserts or replaces a single record.
func (s *Store) Upsert(record models.TestRecord) BatchResult {
	return s.UpsertBatch([]models.TestRecord{record})
}

// UpsertBatch inserts or replaces records by id. Within one batch the last
// occurrence of an id wins. Once it returns, every query observes the batch.
func (s *Store) UpsertBatch(records []models.TestRecord) BatchResult {
	start := time.Now()
	prepared := prepareBatch(records)

	var res BatchResult
	s.mu.Lock()
	for _, r := range prepared {
		if old, loaded := s.records.Load(r.ID); loaded {
			s.unindex(old)
			res.Replaced++
		} else {
			res.Inserted++
		}
		s.records.Store(r.ID, r)
		s.index(r)
	}
	res.Total = s.records.Size()
	s.mu.Unlock()

	res.Elapsed = time.Since(start)
	if s.observer != nil {
		s.observer(res)
	}
	return res
}

// prepareBatch sanitizes records and collapses duplicate ids, keeping the
// last occurrence at the position of its first.
func prepareBatch(records []models.TestRecord) []models.TestRecord {
	out := make([]models.TestRecord, 0, len(records))
	pos := make(map[string]int, len(records))
	for _, r := range records {
		r = Sanitize(r)
		if i, ok := pos[r.ID]; ok {
			out[i] = r
			continue
		}
		pos[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

func (s *Store) index(r models.TestRecord) {
	for d := Dimension(0); d < dimensionCount; d++ {
		key := d.valueOf(r)
		set, ok := s.indices[d][key]
		if !ok {
			set = make(map[string]struct{})
			s.indices[d][key] = set
		}
		set[r.ID] = struct{}{}
	}
}

func (s *Store) unindex(r models.TestRecord) {
	for d := Dimension(0); d < dimensionCount; d++ {
		key := d.valueOf(r)
		set, ok := s.indices[d][key]
		if !ok {
			continue
		}
		delete(set, r.ID)
		if len(set) == 0 {
			delete(s.indices[d], key)
		}
	}
}

// GetByID returns the record stored under id.
func (s *Store) GetByID(id string) (models.TestRecord, bool) {
	return s.records.Load(id)
}

// TotalCount returns the number of stored records.
func (s *Store) TotalCount() int {
	return s.records.Size()
}

// QueryBy returns the records whose dimension attribute equals value,
// ordered by id.
func (s *Store) QueryBy(d Dimension, value string) []models.TestRecord {
	if !d.valid() {
		return nil
	}

	s.mu.RLock()
	set := s.indices[d][value]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	out := make([]models.TestRecord, 0, len(ids))
	for _, id := range ids {
		r, ok := s.records.Load(id)
		// A writer may have replaced or cleared the record since the ids
		// were copied.
		if !ok || d.valueOf(r) != value {
			continue
		}
		out = append(out, r)
	}
	return out
}

// All returns every stored record ordered by id.
func (s *Store) All() []models.TestRecord {
	out := make([]models.TestRecord, 0, s.records.Size())
	s.records.Range(func(_ string, r models.TestRecord) bool {
		out = append(out, r)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Clear removes every record and index entry.
func (s *Store) Clear() {
	s.mu.Lock()
	s.records.Clear()
	s.resetIndices()
	s.mu.Unlock()
}

// Values returns the distinct values of a dimension, sorted.
func (s *Store) Values(d Dimension) []string {
	if !d.valid() {
		return nil
	}
	s.mu.RLock()
	out := make([]string, 0, len(s.indices[d]))
	for v := range s.indices[d] {
		out = append(out, v)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// DomainIDs returns the distinct domain ids.
func (s *Store) DomainIDs() []string { return s.Values(DimensionDomain) }

// FeatureIDs returns the distinct feature ids.
func (s *Store) FeatureIDs() []string { return s.Values(DimensionFeature) }

// ConfigurationIDs returns the distinct configuration ids.
func (s *Store) ConfigurationIDs() []string { return s.Values(DimensionConfiguration) }

// BuildIDs returns the distinct build ids.
func (s *Store) BuildIDs() []string { return s.Values(DimensionBuild) }

// TestNames returns the distinct test full names.
func (s *Store) TestNames() []string { return s.Values(DimensionTestName) }

// Versions returns the distinct version parts of the configuration ids.
func (s *Store) Versions() []string {
	return s.configurationParts(func(c models.Configuration) string { return c.Version })
}

// NamedConfigs returns the distinct named-configuration parts of the
// configuration ids.
func (s *Store) NamedConfigs() []string {
	return s.configurationParts(func(c models.Configuration) string { return c.NamedConfig })
}

func (s *Store) configurationParts(part func(models.Configuration) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, id := range s.ConfigurationIDs() {
		v := part(models.ParseConfigurationID(id))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
