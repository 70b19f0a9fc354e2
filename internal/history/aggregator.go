// Package history builds the per-configuration history tree: features,
// suites and tests down the side, the most recent builds across the top.
package history

import (
	"sort"
	"strings"

	"github.com/kamilpajak/testpulse/internal/policy"
	"github.com/kamilpajak/testpulse/internal/store"
	"github.com/kamilpajak/testpulse/pkg/models"
)

// Aggregator reads a store and produces history trees.
type Aggregator struct {
	store *store.Store
}

// New creates an Aggregator over s.
func New(s *store.Store) *Aggregator {
	return &Aggregator{store: s}
}

// BuildHistory returns the history of configurationID over its latest builds
// columns, newest first. builds is clamped to at least 1. A configuration
// without records yields a result whose Root is nil.
func (a *Aggregator) BuildHistory(configurationID string, builds int) *models.HistoryResult {
	return Build(configurationID, a.store.QueryBy(store.DimensionConfiguration, configurationID), builds)
}

// Build aggregates records of a single configuration into a history tree.
// Records may contain several runs of the same test in the same build; the
// run with the latest timestamp represents the test in that build.
func Build(configurationID string, records []models.TestRecord, builds int) *models.HistoryResult {
	builds = policy.ClampMin(builds, 1)
	result := &models.HistoryResult{ConfigurationID: configurationID, Builds: []models.BuildColumn{}}

	all := buildColumns(records)
	if len(all) == 0 {
		return result
	}
	columns := all
	if len(columns) > builds {
		columns = columns[:builds]
	}
	result.Builds = columns

	idx := newRunIndex(records)
	tests := idx.testsIn(columns)
	if len(tests) == 0 {
		return result
	}

	b := &treeBuilder{idx: idx, columns: columns, all: all}
	result.Root = b.build(configurationID, tests)
	return result
}

// buildColumns lists the distinct builds ordered by build number descending,
// then by id descending.
func buildColumns(records []models.TestRecord) []models.BuildColumn {
	numbers := make(map[string]int)
	for _, r := range records {
		n := r.BuildNumber
		if n <= 0 {
			n = models.ExtractBuildNumber(r.BuildID)
		}
		if cur, ok := numbers[r.BuildID]; !ok || n > cur {
			numbers[r.BuildID] = n
		}
	}

	columns := make([]models.BuildColumn, 0, len(numbers))
	for id, n := range numbers {
		columns = append(columns, models.BuildColumn{ID: id, Number: n})
	}
	sort.Slice(columns, func(i, j int) bool {
		if columns[i].Number != columns[j].Number {
			return columns[i].Number > columns[j].Number
		}
		return columns[i].ID > columns[j].ID
	})
	return columns
}

type runKey struct {
	test  string
	build string
}

// runIndex holds the selected run per (test, build).
type runIndex struct {
	runs map[runKey]models.TestRecord
}

func newRunIndex(records []models.TestRecord) *runIndex {
	idx := &runIndex{runs: make(map[runKey]models.TestRecord, len(records))}
	for _, r := range records {
		k := runKey{test: r.TestFullName, build: r.BuildID}
		// Equal timestamps keep the later record.
		if cur, ok := idx.runs[k]; ok && r.Timestamp.Before(cur.Timestamp) {
			continue
		}
		idx.runs[k] = r
	}
	return idx
}

func (idx *runIndex) get(test, build string) (models.TestRecord, bool) {
	r, ok := idx.runs[runKey{test: test, build: build}]
	return r, ok
}

// testsIn returns the test names with at least one run in columns.
func (idx *runIndex) testsIn(columns []models.BuildColumn) []string {
	inColumns := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		inColumns[c.ID] = struct{}{}
	}
	seen := make(map[string]struct{})
	var tests []string
	for k := range idx.runs {
		if _, ok := inColumns[k.build]; !ok {
			continue
		}
		if _, ok := seen[k.test]; ok {
			continue
		}
		seen[k.test] = struct{}{}
		tests = append(tests, k.test)
	}
	sort.Strings(tests)
	return tests
}

// display returns the run that describes a test: its run in the newest build
// that contains it.
func (idx *runIndex) display(test string, builds []models.BuildColumn) (models.TestRecord, bool) {
	for _, c := range builds {
		if r, ok := idx.get(test, c.ID); ok {
			return r, true
		}
	}
	return models.TestRecord{}, false
}

type treeBuilder struct {
	idx     *runIndex
	columns []models.BuildColumn
	all     []models.BuildColumn
}

// build assembles the tree bottom-up: test nodes, then suites, features and
// the synthetic root.
func (b *treeBuilder) build(configurationID string, tests []string) *models.HierarchyNode {
	type suiteKey struct{ feature, suite string }
	suites := make(map[suiteKey][]*models.HierarchyNode)
	for _, name := range tests {
		rec, ok := b.idx.display(name, b.all)
		if !ok {
			continue
		}
		k := suiteKey{feature: orDefault(rec.FeatureID, policy.UncategorizedFeature), suite: orDefault(rec.TestSuiteID, policy.Unknown)}
		suites[k] = append(suites[k], b.testNode(name, rec))
	}

	features := make(map[string][]*models.HierarchyNode)
	for k, children := range suites {
		suite := &models.HierarchyNode{
			Name:     k.suite,
			Type:     models.NodeSuite,
			ID:       k.feature + "/" + k.suite,
			Children: sortNodes(children),
		}
		b.aggregate(suite)
		features[k.feature] = append(features[k.feature], suite)
	}

	var featureNodes []*models.HierarchyNode
	for name, children := range features {
		feature := &models.HierarchyNode{
			Name:     name,
			Type:     models.NodeFeature,
			ID:       name,
			Children: sortNodes(children),
		}
		b.aggregate(feature)
		featureNodes = append(featureNodes, feature)
	}

	root := &models.HierarchyNode{
		Name:     configurationID,
		Type:     models.NodeRoot,
		ID:       configurationID,
		Children: sortNodes(featureNodes),
	}
	b.aggregate(root)
	return root
}

func (b *treeBuilder) testNode(name string, display models.TestRecord) *models.HierarchyNode {
	node := &models.HierarchyNode{
		Name:         orDefault(display.MethodName, name),
		Type:         models.NodeTest,
		ID:           name,
		ReportPath:   display.ReportDirectory,
		ErrorMessage: display.ErrorMessage,
		StackTrace:   display.StackTrace,
		History:      make([]models.HistoryCellData, len(b.columns)),
	}
	for i, c := range b.columns {
		cell := models.HistoryCellData{BuildID: c.ID}
		if r, ok := b.idx.get(name, c.ID); ok {
			var s models.Stats
			s.Count(r.Status)
			cell.Passed, cell.Failed, cell.Skipped = s.Passed, s.Failed, s.Skipped
			cell.ReportPath = r.ReportDirectory
			cell.Record = &r
		}
		cell.Status = cell.Stats().CellStatus()
		node.History[i] = cell
	}
	setStats(node)
	return node
}

// aggregate fills the history of a parent node. Each unique test name under
// the node contributes its selected run once per build, however many times
// it was rerun.
func (b *treeBuilder) aggregate(node *models.HierarchyNode) {
	names := UniqueTestNames(node)
	node.History = make([]models.HistoryCellData, len(b.columns))
	for i, c := range b.columns {
		var s models.Stats
		for _, name := range names {
			if r, ok := b.idx.get(name, c.ID); ok {
				s.Count(r.Status)
			}
		}
		node.History[i] = models.HistoryCellData{
			BuildID: c.ID,
			Passed:  s.Passed,
			Failed:  s.Failed,
			Skipped: s.Skipped,
			Status:  s.CellStatus(),
		}
	}
	setStats(node)
}

func setStats(node *models.HierarchyNode) {
	node.LatestStats = models.Stats{}
	node.Totals = models.Stats{}
	for i, cell := range node.History {
		if i == 0 {
			node.LatestStats = cell.Stats()
		}
		node.Totals = node.Totals.Add(cell.Stats())
	}
}

// UniqueTestNames returns the sorted set of test full names under node.
// A test node contributes its own ID.
func UniqueTestNames(node *models.HierarchyNode) []string {
	if node == nil {
		return nil
	}
	set := make(map[string]struct{})
	collectTestNames(node, set)
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func collectTestNames(node *models.HierarchyNode, set map[string]struct{}) {
	if node.Type == models.NodeTest {
		set[node.ID] = struct{}{}
		return
	}
	for _, child := range node.Children {
		collectTestNames(child, set)
	}
}

func sortNodes(nodes []*models.HierarchyNode) []*models.HierarchyNode {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Name != nodes[j].Name {
			return nodes[i].Name < nodes[j].Name
		}
		return nodes[i].ID < nodes[j].ID
	})
	return nodes
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
