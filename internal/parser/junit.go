package parser

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kamilpajak/testpulse/pkg/models"
)

// JUnitParser parses JUnit XML reports
type JUnitParser struct{}

type junitSuites struct {
	Suites []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name      string       `xml:"name,attr"`
	File      string       `xml:"file,attr"`
	Hostname  string       `xml:"hostname,attr"`
	Timestamp string       `xml:"timestamp,attr"`
	Time      string       `xml:"time,attr"`
	Cases     []junitCase  `xml:"testcase"`
	Suites    []junitSuite `xml:"testsuite"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	File      string        `xml:"file,attr"`
	Line      int           `xml:"line,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitProblem `xml:"failure"`
	Error     *junitProblem `xml:"error"`
	Skipped   *junitProblem `xml:"skipped"`
}

type junitProblem struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// Parse reads and parses a JUnit XML report file
func (p *JUnitParser) Parse(path string) (*models.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	return p.ParseBytes(data)
}

// ParseBytes parses JUnit XML from raw bytes. Both <testsuites> and a bare
// <testsuite> root are accepted.
func (p *JUnitParser) ParseBytes(data []byte) (*models.Report, error) {
	root, err := rootElement(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	var suites []junitSuite
	switch root {
	case "testsuites":
		var raw junitSuites
		if err := xml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse report: %w", err)
		}
		suites = raw.Suites
	case "testsuite":
		var raw junitSuite
		if err := xml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse report: %w", err)
		}
		suites = []junitSuite{raw}
	default:
		return nil, fmt.Errorf("failed to parse report: unexpected root element <%s>", root)
	}

	return p.normalize(suites), nil
}

func rootElement(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return "", errors.New("empty document")
		}
		if err != nil {
			return "", err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

func (p *JUnitParser) normalize(suites []junitSuite) *models.Report {
	report := &models.Report{
		Framework: "junit",
		Suites:    make([]models.TestSuite, 0, len(suites)),
	}
	for _, raw := range suites {
		suite := p.normalizeSuite(raw, time.Time{})
		report.DurationMS += seconds(raw.Time)
		report.Suites = append(report.Suites, suite)
	}
	for _, suite := range report.Suites {
		countSuite(report, suite)
	}
	report.TotalTests = report.PassedTests + report.FailedTests + report.SkippedTests
	return report
}

func (p *JUnitParser) normalizeSuite(raw junitSuite, inherited time.Time) models.TestSuite {
	ts := parseTimestamp(raw.Timestamp)
	if ts.IsZero() {
		ts = inherited
	}
	suite := models.TestSuite{
		Name:      raw.Name,
		FilePath:  raw.File,
		Hostname:  raw.Hostname,
		Timestamp: ts,
		Tests:     make([]models.TestCase, 0, len(raw.Cases)),
	}
	for _, c := range raw.Cases {
		suite.Tests = append(suite.Tests, normalizeCase(c, raw.File))
	}
	for _, nested := range raw.Suites {
		suite.Suites = append(suite.Suites, p.normalizeSuite(nested, ts))
	}
	return suite
}

func normalizeCase(raw junitCase, suiteFile string) models.TestCase {
	tc := models.TestCase{
		Name:       raw.Name,
		ClassName:  raw.ClassName,
		Status:     models.StatusPassed,
		DurationMS: seconds(raw.Time),
		FilePath:   raw.File,
		LineNumber: raw.Line,
	}
	if tc.FilePath == "" {
		tc.FilePath = suiteFile
	}

	// <error> and <failure> both count as a failed run.
	problem := raw.Failure
	if problem == nil {
		problem = raw.Error
	}
	switch {
	case problem != nil:
		tc.Status = models.StatusFailed
		tc.ErrorMessage = problem.message()
		tc.ErrorStack = strings.TrimSpace(problem.Body)
	case raw.Skipped != nil:
		tc.Status = models.StatusSkipped
		tc.ErrorMessage = strings.TrimSpace(raw.Skipped.Message)
	}
	return tc
}

// message prefers the message attribute, then the first line of the body.
func (p *junitProblem) message() string {
	if m := strings.TrimSpace(p.Message); m != "" {
		return m
	}
	body := strings.TrimSpace(p.Body)
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[:i]
	}
	if body == "" {
		return strings.TrimSpace(p.Type)
	}
	return strings.TrimSpace(body)
}

func countSuite(report *models.Report, suite models.TestSuite) {
	for _, tc := range suite.Tests {
		switch tc.Status {
		case models.StatusPassed:
			report.PassedTests++
		case models.StatusFailed:
			report.FailedTests++
		case models.StatusSkipped:
			report.SkippedTests++
		}
	}
	for _, nested := range suite.Suites {
		countSuite(report, nested)
	}
}

// seconds converts a JUnit time attribute to milliseconds. Some reporters
// emit thousands separators.
func seconds(v string) int64 {
	v = strings.ReplaceAll(strings.TrimSpace(v), ",", "")
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0
	}
	return int64(f * 1000)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTimestamp reads a suite timestamp. Values without a zone are UTC.
func parseTimestamp(v string) time.Time {
	v = strings.TrimSpace(v)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
