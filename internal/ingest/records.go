// Package ingest turns JUnit reports into test records and feeds them to the
// store.
package ingest

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kamilpajak/testpulse/pkg/models"
)

// Source describes where a report came from.
type Source struct {
	Version     string `json:"version"`
	TestType    string `json:"test_type"`
	NamedConfig string `json:"named_config"`
	Domain      string `json:"domain"`
	BuildID     string `json:"build_id"`
	BuildNumber int    `json:"build_number,omitempty"`
	Machine     string `json:"machine,omitempty"`
	// Timestamp is used for suites that carry no timestamp of their own.
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ConfigurationID returns the composite configuration id of the source.
func (s Source) ConfigurationID() string {
	return models.ConfigurationID(s.Version, s.TestType, s.NamedConfig, s.Domain)
}

var ticketPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9]+-\d+\b`)

// Tickets returns the distinct issue references found in texts, sorted.
func Tickets(texts ...string) []string {
	seen := make(map[string]struct{})
	for _, t := range texts {
		for _, m := range ticketPattern.FindAllString(t, -1) {
			seen[m] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Records maps every test case of report to a record. The feature id is the
// name of reportDir.
func Records(report *models.Report, src Source, reportDir string) []models.TestRecord {
	if report == nil {
		return nil
	}
	feature := ""
	if reportDir != "" {
		feature = filepath.Base(reportDir)
	}
	m := mapper{src: src, cfg: src.ConfigurationID(), feature: feature, dir: reportDir}
	for _, suite := range report.Suites {
		m.suite(suite, src.Timestamp)
	}
	return m.out
}

type mapper struct {
	src     Source
	cfg     string
	feature string
	dir     string
	out     []models.TestRecord
}

func (m *mapper) suite(s models.TestSuite, inherited time.Time) {
	ts := s.Timestamp
	if ts.IsZero() {
		ts = inherited
	}
	for _, tc := range s.Tests {
		m.out = append(m.out, m.record(s, tc, ts))
	}
	for _, nested := range s.Suites {
		m.suite(nested, ts)
	}
}

func (m *mapper) record(s models.TestSuite, tc models.TestCase, ts time.Time) models.TestRecord {
	className := tc.ClassName
	if className == "" {
		className = s.Name
	}
	fullName := tc.Name
	if className != "" {
		fullName = className + "." + tc.Name
	}
	machine := s.Hostname
	if machine == "" {
		machine = m.src.Machine
	}
	suiteID := s.Name
	if suiteID == "" {
		suiteID = className
	}
	buildNumber := m.src.BuildNumber
	if buildNumber <= 0 {
		buildNumber = models.ExtractBuildNumber(m.src.BuildID)
	}

	return models.TestRecord{
		ID:              models.NewRecordID(m.cfg, m.src.BuildID, fullName),
		ClassName:       className,
		MethodName:      tc.Name,
		TestFullName:    fullName,
		Status:          status(tc.Status),
		DurationSeconds: float64(tc.DurationMS) / 1000,
		Timestamp:       ts,
		ErrorMessage:    tc.ErrorMessage,
		StackTrace:      tc.ErrorStack,
		DomainID:        m.src.Domain,
		FeatureID:       m.feature,
		TestSuiteID:     suiteID,
		ConfigurationID: m.cfg,
		BuildID:         m.src.BuildID,
		BuildNumber:     buildNumber,
		Machine:         machine,
		Tickets:         Tickets(tc.Name, className, tc.ErrorMessage),
		ReportDirectory: m.dir,
	}
}

func status(s models.TestStatus) models.Status {
	switch s {
	case models.StatusPassed:
		return models.Pass
	case models.StatusFailed:
		return models.Fail
	default:
		return models.Skip
	}
}

// SourceFromPath derives the source of a report file laid out as
// <root>/<version>/<testType>/<namedConfig>/<domain>/<build>/<feature>/<file>.
func SourceFromPath(root, path string) (Source, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return Source{}, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 7 || parts[0] == ".." {
		return Source{}, false
	}
	for _, p := range parts {
		if p == "" {
			return Source{}, false
		}
	}
	return Source{
		Version:     parts[0],
		TestType:    parts[1],
		NamedConfig: parts[2],
		Domain:      parts[3],
		BuildID:     parts[4],
		BuildNumber: models.ExtractBuildNumber(parts[4]),
	}, true
}
