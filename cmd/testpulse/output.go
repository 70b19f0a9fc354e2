package testpulse

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/kamilpajak/testpulse/pkg/models"
)

const maxMessageWidth = 100

var (
	bold   = color.New(color.Bold)
	dim    = color.New(color.FgHiBlack)
	red    = color.New(color.FgRed)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
)

func printGroups(w io.Writer, groups []models.FailureGroup) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "No failures found.")
		return
	}

	failures := 0
	for _, g := range groups {
		failures += g.TestCount
	}
	_, _ = bold.Fprintf(w, "%s failure groups covering %s failures\n\n",
		humanize.Comma(int64(len(groups))), humanize.Comma(int64(failures)))

	for i, g := range groups {
		_, _ = red.Fprintf(w, "%3d. ", i+1)
		_, _ = bold.Fprintf(w, "%s tests", humanize.Comma(int64(g.TestCount)))
		if g.SimilarityScore < 1 {
			_, _ = dim.Fprintf(w, "  (similarity %.2f)", g.SimilarityScore)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "     %s\n", truncate(firstLine(g.RepresentativeMessage), maxMessageWidth))
		_, _ = dim.Fprintf(w, "     domains: %s  features: %s\n", strings.Join(g.DomainIDs, ", "), strings.Join(g.FeatureIDs, ", "))
	}
}

func printFlaky(w io.Writer, reports []models.FlakyTestReport) {
	if len(reports) == 0 {
		fmt.Fprintln(w, "No flaky tests found.")
		return
	}

	_, _ = bold.Fprintf(w, "%s flaky tests\n\n", humanize.Comma(int64(len(reports))))
	for _, r := range reports {
		rateColor := yellow
		if r.FailureRate >= 0.5 {
			rateColor = red
		}
		_, _ = rateColor.Fprintf(w, "%5.1f%%  ", r.FailureRate*100)
		fmt.Fprintf(w, "%s\n", r.TestFullName)

		line := fmt.Sprintf("        %d of %d runs failed, %s, last %s", r.FailureCount, r.TotalRuns, strings.ToLower(string(r.Trend)), r.LastStatus)
		if r.LastFailure != nil {
			line += ", last failure " + humanize.Time(*r.LastFailure)
		}
		_, _ = dim.Fprintln(w, line)
	}
}

func printHistory(w io.Writer, res *models.HistoryResult) {
	if res == nil || res.Root == nil {
		fmt.Fprintln(w, "No history for this configuration.")
		return
	}

	_, _ = bold.Fprintln(w, res.ConfigurationID)
	header := make([]string, len(res.Builds))
	for i, b := range res.Builds {
		header[i] = b.ID
	}
	_, _ = dim.Fprintf(w, "builds (latest first): %s\n\n", strings.Join(header, "  "))

	for _, child := range res.Root.Children {
		printHistoryNode(w, child, 0)
	}

	t := res.Root.Totals
	fmt.Fprintln(w)
	fmt.Fprintf(w, "latest: %s   all builds: %s\n", formatStats(res.Root.LatestStats), formatStats(t))
}

func printHistoryNode(w io.Writer, node *models.HierarchyNode, depth int) {
	for _, cell := range node.History {
		fmt.Fprint(w, cellGlyph(cell.Status))
	}
	fmt.Fprintf(w, " %s", strings.Repeat("  ", depth))
	if node.Type == models.NodeTest {
		fmt.Fprintln(w, node.Name)
		if node.ErrorMessage != "" && node.LatestStats.Failed > 0 {
			_, _ = dim.Fprintf(w, "%s   %s\n", strings.Repeat(" ", len(node.History)+2*depth), truncate(firstLine(node.ErrorMessage), maxMessageWidth))
		}
		return
	}
	_, _ = bold.Fprintf(w, "%s", node.Name)
	_, _ = dim.Fprintf(w, "  %s\n", formatStats(node.LatestStats))
	for _, child := range node.Children {
		printHistoryNode(w, child, depth+1)
	}
}

func cellGlyph(status models.CellStatus) string {
	switch status {
	case models.CellAllPassed:
		return green.Sprint("✓")
	case models.CellHasFailures:
		return red.Sprint("✗")
	case models.CellAllSkipped:
		return yellow.Sprint("-")
	default:
		return dim.Sprint("·")
	}
}

func formatStats(s models.Stats) string {
	return fmt.Sprintf("%s passed, %s failed, %s skipped",
		humanize.Comma(int64(s.Passed)), humanize.Comma(int64(s.Failed)), humanize.Comma(int64(s.Skipped)))
}

func printTriage(w io.Writer, res *models.TriageResult) {
	_, _ = bold.Fprintf(w, "%s vs %s", res.TodayBuildID, res.YesterdayBuildID)
	if res.DomainFilter != "" {
		_, _ = dim.Fprintf(w, "  (domain %s)", res.DomainFilter)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "pass rate %.1f%% -> %.1f%% ", res.Yesterday.Rate*100, res.Today.Rate*100)
	delta := res.PassRateDelta * 100
	switch {
	case delta > 0:
		_, _ = green.Fprintf(w, "(+%.1f)\n", delta)
	case delta < 0:
		_, _ = red.Fprintf(w, "(%.1f)\n", delta)
	default:
		_, _ = dim.Fprintln(w, "(unchanged)")
	}

	printTriageSection(w, "NEW FAILURES", red, res.NewFailures, true)
	printTriageSection(w, "FIXED", green, res.FixedTests, false)
	printTriageSection(w, "STILL FAILING", yellow, res.StillFailing, true)
}

func printTriageSection(w io.Writer, title string, c *color.Color, entries []models.TriageEntry, withMessage bool) {
	fmt.Fprintln(w)
	_, _ = c.Fprintf(w, "%s (%d)\n", title, len(entries))
	for _, e := range entries {
		fmt.Fprintf(w, "  %s", e.TestFullName)
		_, _ = dim.Fprintf(w, "  [%s]\n", strings.Join(e.ConfigurationIDs, ", "))
		if withMessage && e.ErrorMessage != "" {
			_, _ = dim.Fprintf(w, "    %s\n", truncate(firstLine(e.ErrorMessage), maxMessageWidth))
		}
	}
}

func printDimensions(w io.Writer, d dimensions) {
	_, _ = bold.Fprintf(w, "%s records\n", humanize.Comma(int64(d.Records)))
	printList(w, "configurations", d.Configurations)
	printList(w, "builds", d.Builds)
	printList(w, "domains", d.Domains)
	printList(w, "features", d.Features)
	printList(w, "versions", d.Versions)
	printList(w, "named configs", d.NamedConfigs)
}

func printList(w io.Writer, title string, values []string) {
	fmt.Fprintln(w)
	_, _ = bold.Fprintf(w, "%s (%d)\n", title, len(values))
	for _, v := range values {
		fmt.Fprintf(w, "  %s\n", v)
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
