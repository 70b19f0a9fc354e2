package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/kamilpajak/testpulse/internal/ingest"
	"github.com/kamilpajak/testpulse/pkg/models"
)

type ingestResponse struct {
	Records  int      `json:"records"`
	Inserted int      `json:"inserted"`
	Replaced int      `json:"replaced"`
	Total    int      `json:"total"`
	Builds   []string `json:"builds"`
	EventID  string   `json:"event_id,omitempty"`
}

func newIngestResponse(res *ingest.Result) ingestResponse {
	builds := res.Builds
	if builds == nil {
		builds = []string{}
	}
	return ingestResponse{
		Records:  res.Records,
		Inserted: res.Batch.Inserted,
		Replaced: res.Batch.Replaced,
		Total:    res.Batch.Total,
		Builds:   builds,
		EventID:  res.Event.ID,
	}
}

func (s *Server) handleUpsertRecords(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var records []models.TestRecord
	if err := readJSON(r, &records); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.loader.Commit(r.Context(), records, "api")
	if err != nil {
		s.log.WithError(err).Error("failed to commit records")
		writeError(w, http.StatusInternalServerError, "failed to store records")
		return
	}
	writeJSON(w, http.StatusOK, newIngestResponse(res))
}

func (s *Server) handleIngestJUnit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	src := ingest.Source{
		Version:     strings.TrimSpace(q.Get("version")),
		TestType:    strings.TrimSpace(q.Get("test_type")),
		NamedConfig: strings.TrimSpace(q.Get("config")),
		Domain:      strings.TrimSpace(q.Get("domain")),
		BuildID:     strings.TrimSpace(q.Get("build")),
		Machine:     strings.TrimSpace(q.Get("machine")),
	}
	if src.BuildID == "" {
		writeError(w, http.StatusBadRequest, "build parameter required")
		return
	}
	feature := strings.TrimSpace(q.Get("feature"))

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "report too large")
		return
	}

	res, err := s.loader.LoadBytes(r.Context(), data, src, feature)
	if errors.Is(err, ingest.ErrInvalidReport) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.log.WithError(err).Error("failed to ingest report")
		writeError(w, http.StatusInternalServerError, "failed to store records")
		return
	}
	writeJSON(w, http.StatusOK, newIngestResponse(res))
}
