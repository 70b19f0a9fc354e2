package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/kamilpajak/testpulse/internal/metrics"
	"github.com/kamilpajak/testpulse/pkg/models"
)

type dimensionsResponse struct {
	TotalRecords   int      `json:"total_records"`
	Domains        []string `json:"domains"`
	Features       []string `json:"features"`
	Configurations []string `json:"configurations"`
	Builds         []string `json:"builds"`
	Versions       []string `json:"versions"`
	NamedConfigs   []string `json:"named_configs"`
}

type groupsResponse struct {
	Threshold float64               `json:"threshold"`
	Failures  int                   `json:"failures"`
	Groups    []models.FailureGroup `json:"groups"`
}

type flakyResponse struct {
	Threshold float64                  `json:"threshold"`
	Window    int                      `json:"window"`
	Tests     []models.FlakyTestReport `json:"tests"`
}

func observe(query string, start time.Time, empty bool) {
	outcome := metrics.OutcomeHit
	if empty {
		outcome = metrics.OutcomeEmpty
	}
	metrics.ObserveQuery(query, time.Since(start), outcome)
}

func badRequest(w http.ResponseWriter, query string, message string) {
	metrics.ObserveQuery(query, 0, metrics.OutcomeError)
	writeError(w, http.StatusBadRequest, message)
}

func (s *Server) handleDimensions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dimensionsResponse{
		TotalRecords:   s.store.TotalCount(),
		Domains:        s.store.DomainIDs(),
		Features:       s.store.FeatureIDs(),
		Configurations: s.store.ConfigurationIDs(),
		Builds:         s.store.BuildIDs(),
		Versions:       s.store.Versions(),
		NamedConfigs:   s.store.NamedConfigs(),
	})
}

func (s *Server) handleFailureGroups(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()
	threshold, err := floatParam(q, "threshold", s.defaults.SimilarityThreshold)
	if err != nil {
		badRequest(w, "groups", err.Error())
		return
	}

	records := s.store.Select(filterFromQuery(q))
	groups := s.cluster.GroupFailures(records, threshold)
	if groups == nil {
		groups = []models.FailureGroup{}
	}
	failures := 0
	for _, g := range groups {
		failures += g.TestCount
	}
	observe("groups", start, len(groups) == 0)

	writeJSON(w, http.StatusOK, groupsResponse{Threshold: threshold, Failures: failures, Groups: groups})
}

func (s *Server) handleFlaky(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()
	threshold, err := floatParam(q, "threshold", s.defaults.FailureRateThreshold)
	if err != nil {
		badRequest(w, "flaky", err.Error())
		return
	}
	window, err := intParam(q, "window", s.defaults.RecentWindow)
	if err != nil {
		badRequest(w, "flaky", err.Error())
		return
	}

	records := s.store.Select(filterFromQuery(q))
	tests := s.flaky.DetectFlaky(records, threshold, window)
	if tests == nil {
		tests = []models.FlakyTestReport{}
	}
	observe("flaky", start, len(tests) == 0)

	writeJSON(w, http.StatusOK, flakyResponse{Threshold: threshold, Window: window, Tests: tests})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()
	configuration := strings.TrimSpace(q.Get("configuration"))
	if configuration == "" {
		badRequest(w, "history", "configuration parameter required")
		return
	}
	builds, err := intParam(q, "builds", s.defaults.HistoryBuilds)
	if err != nil {
		badRequest(w, "history", err.Error())
		return
	}

	res := s.history.BuildHistory(configuration, builds)
	observe("history", start, res.Root == nil)

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTriage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()
	today := strings.TrimSpace(q.Get("today"))
	yesterday := strings.TrimSpace(q.Get("yesterday"))
	domain := strings.TrimSpace(q.Get("domain"))
	if (today == "") != (yesterday == "") {
		badRequest(w, "triage", "today and yesterday must be given together")
		return
	}

	var res *models.TriageResult
	if today == "" {
		res = s.triage.CompareLatest(domain)
	} else {
		res = s.triage.Compare(today, yesterday, domain)
	}
	observe("triage", start, res == nil)

	if res == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
