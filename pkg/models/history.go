package models

// NodeType is the level of a node in the history tree
type NodeType string

const (
	NodeRoot    NodeType = "Root"
	NodeFeature NodeType = "Feature"
	NodeSuite   NodeType = "Suite"
	NodeTest    NodeType = "Test"
)

// CellStatus summarises one history cell
type CellStatus string

const (
	CellAllPassed   CellStatus = "AllPassed"
	CellHasFailures CellStatus = "HasFailures"
	CellAllSkipped  CellStatus = "AllSkipped"
	CellNoData      CellStatus = "NoData"
)

// Stats counts test outcomes.
type Stats struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Total returns the number of counted outcomes.
func (s Stats) Total() int {
	return s.Passed + s.Failed + s.Skipped
}

// Add returns the element-wise sum of two Stats.
func (s Stats) Add(o Stats) Stats {
	return Stats{Passed: s.Passed + o.Passed, Failed: s.Failed + o.Failed, Skipped: s.Skipped + o.Skipped}
}

// Count increments the counter matching status.
func (s *Stats) Count(status Status) {
	switch status {
	case Pass:
		s.Passed++
	case Fail:
		s.Failed++
	case Skip:
		s.Skipped++
	}
}

// CellStatus derives the summary status for the counts.
func (s Stats) CellStatus() CellStatus {
	switch {
	case s.Failed > 0:
		return CellHasFailures
	case s.Passed > 0:
		return CellAllPassed
	case s.Skipped > 0:
		return CellAllSkipped
	default:
		return CellNoData
	}
}

// HistoryCellData holds the outcome counts of one node in one build.
type HistoryCellData struct {
	BuildID    string     `json:"build_id"`
	Passed     int        `json:"passed"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	Status     CellStatus `json:"status"`
	ReportPath string     `json:"report_path,omitempty"`
	// Record is the run chosen to represent the build; test cells only.
	Record *TestRecord `json:"record,omitempty"`
}

// Stats returns the cell counts.
func (c HistoryCellData) Stats() Stats {
	return Stats{Passed: c.Passed, Failed: c.Failed, Skipped: c.Skipped}
}

// HierarchyNode is a Feature, Suite or Test node of the history tree.
// Each node exclusively owns its Children slice.
type HierarchyNode struct {
	Name         string            `json:"name"`
	Type         NodeType          `json:"type"`
	ID           string            `json:"id"`
	History      []HistoryCellData `json:"history"`
	Children     []*HierarchyNode  `json:"children,omitempty"`
	LatestStats  Stats             `json:"latest_stats"`
	Totals       Stats             `json:"totals"`
	ReportPath   string            `json:"report_path,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	StackTrace   string            `json:"stack_trace,omitempty"`
}

// BuildColumn is one history column, latest first.
type BuildColumn struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
}

// HistoryResult is the history tree of one configuration.
// Root is nil when the configuration has no data.
type HistoryResult struct {
	ConfigurationID string         `json:"configuration_id"`
	Builds          []BuildColumn  `json:"builds"`
	Root            *HierarchyNode `json:"root,omitempty"`
}
