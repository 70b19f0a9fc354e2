package models

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Status is the outcome of one test execution
type Status string

const (
	Pass Status = "Pass"
	Fail Status = "Fail"
	Skip Status = "Skip"
)

// ParseStatus maps loosely formatted status strings onto a Status.
// The second return value is false when the input is not recognised.
func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pass", "passed", "success", "ok":
		return Pass, true
	case "fail", "failed", "failure", "error", "broken":
		return Fail, true
	case "skip", "skipped", "ignored", "disabled", "notrun":
		return Skip, true
	}
	return "", false
}

const (
	// RecordIDSeparator joins the identity triple of a record.
	RecordIDSeparator = "::"
	// ConfigurationDelimiter joins the parts of a composite configuration id.
	ConfigurationDelimiter = "|"
)

// TestRecord is one test-case execution result. Treat it as an immutable value.
type TestRecord struct {
	ID              string    `json:"id"`
	ClassName       string    `json:"class_name"`
	MethodName      string    `json:"method_name"`
	TestFullName    string    `json:"test_full_name"`
	Status          Status    `json:"status"`
	DurationSeconds float64   `json:"duration_seconds"`
	Timestamp       time.Time `json:"timestamp"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	StackTrace      string    `json:"stack_trace,omitempty"`
	DomainID        string    `json:"domain_id"`
	FeatureID       string    `json:"feature_id"`
	TestSuiteID     string    `json:"test_suite_id"`
	ConfigurationID string    `json:"configuration_id"`
	BuildID         string    `json:"build_id"`
	BuildNumber     int       `json:"build_number"`
	Machine         string    `json:"machine,omitempty"`
	Tickets         []string  `json:"tickets,omitempty"`
	ReportDirectory string    `json:"report_directory,omitempty"`
}

// NewRecordID builds the composite identity of a record.
func NewRecordID(configurationID, buildID, testFullName string) string {
	return configurationID + RecordIDSeparator + buildID + RecordIDSeparator + testFullName
}

// HasError reports whether the record carries a non-blank error message.
func (r TestRecord) HasError() bool {
	return strings.TrimSpace(r.ErrorMessage) != ""
}

// Configuration is the decoded form of a composite configuration id.
type Configuration struct {
	Version     string `json:"version"`
	TestType    string `json:"test_type"`
	NamedConfig string `json:"named_config"`
	Domain      string `json:"domain"`
}

// ConfigurationID joins the configuration tuple into its composite key.
func ConfigurationID(version, testType, namedConfig, domain string) string {
	return strings.Join([]string{version, testType, namedConfig, domain}, ConfigurationDelimiter)
}

// ParseConfigurationID splits a composite configuration id. Missing parts
// are left empty.
func ParseConfigurationID(id string) Configuration {
	parts := strings.SplitN(id, ConfigurationDelimiter, 4)
	var c Configuration
	fields := []*string{&c.Version, &c.TestType, &c.NamedConfig, &c.Domain}
	for i, p := range parts {
		*fields[i] = p
	}
	return c
}

var trailingDigits = regexp.MustCompile(`(\d+)\D*$`)

// ExtractBuildNumber returns the last run of digits in a build id, or 0.
func ExtractBuildNumber(buildID string) int {
	m := trailingDigits.FindStringSubmatch(buildID)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}
