package parser

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamilpajak/testpulse/pkg/models"
)

const sampleReport = `<?xml version="1.0" encoding="UTF-8"?>
<testsuites name="regression">
  <testsuite name="CartSuite" hostname="agent-07" timestamp="2026-01-25T10:30:45" time="1.5">
    <testcase name="addItem" classname="com.shop.CartSuite" time="0.250"/>
    <testcase name="removeItem" classname="com.shop.CartSuite" time="1,000.5">
      <failure message="expected 2 but was 3" type="AssertionError">java.lang.AssertionError: expected 2 but was 3
	at com.shop.CartSuite.removeItem(CartSuite.java:42)</failure>
    </testcase>
    <testcase name="checkout" classname="com.shop.CartSuite">
      <error type="NullPointerException">java.lang.NullPointerException
	at com.shop.Checkout.run(Checkout.java:9)</error>
    </testcase>
    <testcase name="wishlist" classname="com.shop.CartSuite">
      <skipped message="disabled on linux"/>
    </testcase>
    <testsuite name="Nested">
      <testcase name="inner" classname="com.shop.Nested"/>
    </testsuite>
  </testsuite>
</testsuites>`

func TestJUnitParser_ParseBytes(t *testing.T) {
	p := &JUnitParser{}
	report, err := p.ParseBytes([]byte(sampleReport))
	require.NoError(t, err)

	assert.Equal(t, "junit", report.Framework)
	assert.Equal(t, 5, report.TotalTests)
	assert.Equal(t, 2, report.PassedTests)
	assert.Equal(t, 2, report.FailedTests)
	assert.Equal(t, 1, report.SkippedTests)
	assert.Equal(t, int64(1500), report.DurationMS)
	assert.True(t, report.HasFailures())

	require.Len(t, report.Suites, 1)
	suite := report.Suites[0]
	assert.Equal(t, "agent-07", suite.Hostname)
	assert.Equal(t, time.Date(2026, 1, 25, 10, 30, 45, 0, time.UTC), suite.Timestamp)
	require.Len(t, suite.Suites, 1)
	assert.Equal(t, suite.Timestamp, suite.Suites[0].Timestamp, "nested suites inherit the timestamp")

	failed := report.FailedTestCases()
	require.Len(t, failed, 2)
	assert.Equal(t, "removeItem", failed[0].Name)
	assert.Equal(t, "expected 2 but was 3", failed[0].ErrorMessage)
	assert.Contains(t, failed[0].ErrorStack, "CartSuite.java:42")
	assert.Equal(t, int64(1000500), failed[0].DurationMS)
	assert.Equal(t, "java.lang.NullPointerException", failed[1].ErrorMessage, "falls back to the first body line")
	assert.Equal(t, "com.shop.CartSuite", failed[1].ClassName)
}

func TestJUnitParser_BareSuiteRoot(t *testing.T) {
	data := []byte(`<testsuite name="Solo" timestamp="2026-01-25T10:30:45+02:00">
  <testcase name="one" classname="Solo"/>
</testsuite>`)

	report, err := (&JUnitParser{}).ParseBytes(data)
	require.NoError(t, err)

	require.Len(t, report.Suites, 1)
	assert.Equal(t, "Solo", report.Suites[0].Name)
	assert.Equal(t, time.Date(2026, 1, 25, 8, 30, 45, 0, time.UTC), report.Suites[0].Timestamp)
	assert.Equal(t, 1, report.PassedTests)
	assert.False(t, report.HasFailures())
}

func TestJUnitParser_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"not xml", "{\"suites\": []}"},
		{"wrong root", "<html><body/></html>"},
		{"truncated", "<testsuites><testsuite name=\"x\">"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&JUnitParser{}).ParseBytes([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestJUnitParser_Parse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "TEST-cart.xml")
	require.NoError(t, os.WriteFile(path, []byte(sampleReport), 0o600))

	report, err := (&JUnitParser{}).Parse(path)
	require.NoError(t, err)
	assert.Len(t, report.FailedTestCases(), 2)

	_, err = (&JUnitParser{}).Parse(filepath.Join(t.TempDir(), "missing.xml"))
	assert.ErrorContains(t, err, "failed to read report")
}

func TestSkippedCase(t *testing.T) {
	tc := normalizeCase(junitCase{Name: "s", Skipped: &junitProblem{Message: " off "}}, "suite.xml")
	assert.Equal(t, models.StatusSkipped, tc.Status)
	assert.Equal(t, "off", tc.ErrorMessage)
	assert.Equal(t, "suite.xml", tc.FilePath)
}
