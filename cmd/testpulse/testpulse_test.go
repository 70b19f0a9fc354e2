package testpulse

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamilpajak/testpulse/pkg/models"
)

func init() {
	color.NoColor = true
}

const configuration = "25.1|regression|linux-x64|payments"

const build1 = `<testsuite name="CartSuite" timestamp="2026-01-24T06:00:00">
  <testcase name="addItem" classname="com.shop.CartSuite"/>
  <testcase name="removeItem" classname="com.shop.CartSuite"><failure message="Timeout after 3000 ms"/></testcase>
  <testcase name="wishlist" classname="com.shop.CartSuite"/>
</testsuite>`

const build2 = `<testsuite name="CartSuite" timestamp="2026-01-25T06:00:00">
  <testcase name="addItem" classname="com.shop.CartSuite"><failure message="Timeout after 5000 ms"/></testcase>
  <testcase name="removeItem" classname="com.shop.CartSuite"/>
  <testcase name="wishlist" classname="com.shop.CartSuite"/>
</testsuite>`

// reportTree writes two nightly builds of one configuration.
func reportTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for build, content := range map[string]string{"nightly-1": build1, "nightly-2": build2} {
		dir := filepath.Join(root, "25.1", "regression", "linux-x64", "payments", build, "checkout")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "TEST-cart.xml"), []byte(content), 0o600))
	}
	return root
}

// resetFlags restores every flag of the tree, since cobra keeps flag
// values between executions.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TESTPULSE_DATABASE_URL", "")
	t.Setenv("TESTPULSE_CONFIG", "")
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "testpulse dev")
	assert.Contains(t, out, "commit: none")
}

func TestDimensionsJSON(t *testing.T) {
	out, err := execute(t, "dimensions", "--json", "-r", reportTree(t))
	require.NoError(t, err)

	var d dimensions
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, 6, d.Records)
	assert.Equal(t, []string{"nightly-1", "nightly-2"}, d.Builds)
	assert.Equal(t, []string{configuration}, d.Configurations)
	assert.Equal(t, []string{"checkout"}, d.Features)
}

func TestDimensionsEmptyStore(t *testing.T) {
	out, err := execute(t, "dimensions")
	require.NoError(t, err)
	assert.Contains(t, out, "0 records")
	assert.Contains(t, out, "builds (0)")
}

func TestGroups(t *testing.T) {
	root := reportTree(t)

	out, err := execute(t, "groups", "-r", root)
	require.NoError(t, err)
	assert.Contains(t, out, "1 failure groups covering 2 failures")
	assert.Contains(t, out, "Timeout after 3000 ms")

	out, err = execute(t, "groups", "-r", root, "--build", "nightly-2", "--json")
	require.NoError(t, err)
	var groups []models.FailureGroup
	require.NoError(t, json.Unmarshal([]byte(out), &groups))
	require.Len(t, groups, 1)
	assert.Equal(t, "timeout after {N} ms", groups[0].Key)
	assert.Equal(t, 1, groups[0].TestCount)

	out, err = execute(t, "groups", "-r", root, "--domain", "search")
	require.NoError(t, err)
	assert.Contains(t, out, "No failures found.")
}

func TestFlaky(t *testing.T) {
	root := reportTree(t)

	out, err := execute(t, "flaky", "-r", root, "--threshold", "0.5", "--json")
	require.NoError(t, err)
	var reports []models.FlakyTestReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 2)
	assert.Equal(t, "com.shop.CartSuite.addItem", reports[0].TestFullName)
	assert.Equal(t, models.TrendWorsening, reports[0].Trend)

	out, err = execute(t, "flaky", "-r", root, "--threshold", "0.6")
	require.NoError(t, err)
	assert.Contains(t, out, "No flaky tests found.")

	out, err = execute(t, "flaky", "-r", root)
	require.NoError(t, err)
	assert.Contains(t, out, "2 flaky tests")
	assert.Contains(t, out, " 50.0%  com.shop.CartSuite.addItem")
}

func TestHistory(t *testing.T) {
	root := reportTree(t)

	out, err := execute(t, "history", "-r", root, "--configuration", configuration)
	require.NoError(t, err)
	assert.Contains(t, out, "builds (latest first): nightly-2  nightly-1")
	assert.Contains(t, out, "✗✓     addItem\n")
	assert.Contains(t, out, "Timeout after 5000 ms")
	assert.Contains(t, out, "latest: 2 passed, 1 failed, 0 skipped")

	out, err = execute(t, "history", "-r", root, "--configuration", configuration, "--builds", "1", "--json")
	require.NoError(t, err)
	var res models.HistoryResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, []models.BuildColumn{{ID: "nightly-2", Number: 2}}, res.Builds)

	_, err = execute(t, "history", "-r", root)
	assert.Error(t, err)

	out, err = execute(t, "history", "--configuration", "missing")
	require.NoError(t, err)
	assert.Contains(t, out, "No history for this configuration.")
}

func TestTriage(t *testing.T) {
	root := reportTree(t)

	out, err := execute(t, "triage", "-r", root)
	require.NoError(t, err)
	assert.Contains(t, out, "nightly-2 vs nightly-1")
	assert.Contains(t, out, "NEW FAILURES (1)")
	assert.Contains(t, out, "  com.shop.CartSuite.addItem  ["+configuration+"]")
	assert.Contains(t, out, "FIXED (1)")
	assert.Contains(t, out, "STILL FAILING (0)")

	out, err = execute(t, "triage", "-r", root, "--today", "nightly-1", "--yesterday", "nightly-2", "--json")
	require.NoError(t, err)
	var res models.TriageResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.NewFailures, 1)
	assert.Equal(t, "com.shop.CartSuite.removeItem", res.NewFailures[0].TestFullName)

	_, err = execute(t, "triage", "-r", root, "--today", "nightly-1")
	assert.Error(t, err)

	out, err = execute(t, "triage")
	require.NoError(t, err)
	assert.Contains(t, out, "Not enough data to compare builds.")
}

func TestIngest(t *testing.T) {
	root := reportTree(t)

	out, err := execute(t, "ingest", root, "--json")
	require.NoError(t, err)
	var summaries []ingestSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].Files)
	assert.Equal(t, 6, summaries[0].Records)
	assert.Equal(t, []string{"nightly-1", "nightly-2"}, summaries[0].Builds)
	assert.NotEmpty(t, summaries[0].EventID)

	flat := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(flat, "TEST-cart.xml"), []byte(build1), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(flat, "broken.xml"), []byte("<html/>"), 0o600))

	out, err = execute(t, "ingest", flat, "--build", "adhoc-7", "--domain", "payments")
	require.NoError(t, err)
	assert.Contains(t, out, "[ingested] 3 records from adhoc-7")
	assert.Contains(t, out, "2 files, 3 records (3 new, 0 replaced)")
	assert.Contains(t, out, "1 files skipped")
}

func TestDBRequiresDatabase(t *testing.T) {
	_, err := execute(t, "db", "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database configured")

	_, err = execute(t, "db", "prune")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one of --build or --older-than")

	_, err = execute(t, "db", "prune", "--build", "b1", "--older-than", "24h")
	assert.Error(t, err)
}
