package store

import (
	"math"
	"strings"

	"github.com/kamilpajak/testpulse/internal/policy"
	"github.com/kamilpajak/testpulse/pkg/models"
)

// Sanitize fills missing required fields with the policy sentinels and
// recomputes the record id. It never rejects a record.
func Sanitize(r models.TestRecord) models.TestRecord {
	if isBlank(r.TestFullName) {
		r.TestFullName = fullName(r.ClassName, r.MethodName)
	}
	if isBlank(r.TestSuiteID) {
		r.TestSuiteID = r.ClassName
	}
	r.TestSuiteID = sentinel(r.TestSuiteID, policy.Unknown)
	r.DomainID = sentinel(r.DomainID, policy.Unknown)
	r.FeatureID = sentinel(r.FeatureID, policy.UncategorizedFeature)
	r.ConfigurationID = sentinel(r.ConfigurationID, policy.Unknown)
	r.BuildID = sentinel(r.BuildID, policy.Unknown)

	switch r.Status {
	case models.Pass, models.Fail, models.Skip:
	default:
		status, ok := models.ParseStatus(string(r.Status))
		if !ok {
			status = models.Skip
		}
		r.Status = status
	}

	if r.DurationSeconds < 0 || math.IsNaN(r.DurationSeconds) || math.IsInf(r.DurationSeconds, 0) {
		r.DurationSeconds = 0
	}
	if !r.Timestamp.IsZero() {
		r.Timestamp = r.Timestamp.UTC()
	}
	if r.BuildNumber <= 0 {
		r.BuildNumber = models.ExtractBuildNumber(r.BuildID)
	}
	if r.Tickets != nil {
		r.Tickets = append([]string(nil), r.Tickets...)
	}

	r.ID = models.NewRecordID(r.ConfigurationID, r.BuildID, r.TestFullName)
	return r
}

func fullName(className, methodName string) string {
	switch {
	case !isBlank(className) && !isBlank(methodName):
		return className + "." + methodName
	case !isBlank(methodName):
		return methodName
	case !isBlank(className):
		return className
	}
	return policy.Unknown
}

func sentinel(v, fallback string) string {
	if isBlank(v) {
		return fallback
	}
	return v
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
