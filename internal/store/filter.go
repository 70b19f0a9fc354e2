package store

import "github.com/kamilpajak/testpulse/pkg/models"

// Filter narrows a selection to the given dimension values. Empty fields
// match everything.
type Filter struct {
	Configuration string
	Build         string
	Domain        string
}

// Select returns the records matching f, ordered by id. It starts from the
// most selective index and checks the remaining fields on each record.
func (s *Store) Select(f Filter) []models.TestRecord {
	var records []models.TestRecord
	switch {
	case f.Configuration != "":
		records = s.QueryBy(DimensionConfiguration, f.Configuration)
	case f.Build != "":
		records = s.QueryBy(DimensionBuild, f.Build)
	case f.Domain != "":
		records = s.QueryBy(DimensionDomain, f.Domain)
	default:
		return s.All()
	}

	out := records[:0]
	for _, r := range records {
		if f.Build != "" && r.BuildID != f.Build {
			continue
		}
		if f.Domain != "" && r.DomainID != f.Domain {
			continue
		}
		out = append(out, r)
	}
	return out
}
