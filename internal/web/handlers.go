package web

import (
	"io"
	"net/http"

	"github.com/equipflow/equipflow/internal/pipeline"
	"github.com/equipflow/equipflow/internal/store"
)

// uploadResponse is the successful outcome of a processed upload, shaped
// for the web and desktop frontends.
type uploadResponse struct {
	RecordCount          int            `json:"record_count"`
	AverageFlowrate      float64        `json:"average_flowrate"`
	AveragePressure      float64        `json:"average_pressure"`
	AverageTemperature   float64        `json:"average_temperature"`
	CategoryDistribution map[string]int `json:"category_distribution"`
	ReportPath           string         `json:"report_path"`
}

// handleUpload accepts a multipart CSV upload and runs the pipeline.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	if err := r.ParseMultipartForm(s.cfg.Upload.MaxFileSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form", "file too large or invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondPipelineError(w, r, pipeline.ErrMissingFile)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read_failed", "failed to read uploaded file")
		return
	}

	result, err := s.processor.Process(r.Context(), header.Filename, data)
	if err != nil {
		s.respondPipelineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		RecordCount:          result.Summary.RecordCount,
		AverageFlowrate:      result.Summary.AvgFlowRate,
		AveragePressure:      result.Summary.AvgPressure,
		AverageTemperature:   result.Summary.AvgTemperature,
		CategoryDistribution: result.Summary.CategoryDistribution,
		ReportPath:           result.ReportPath,
	})
}

// handleHistory returns the most recent ingestions, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.history.ListRecent(r.Context())
	if err != nil {
		s.respondPipelineError(w, r, err)
		return
	}
	if entries == nil {
		entries = []store.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleEquipment returns every persisted equipment record.
func (s *Server) handleEquipment(w http.ResponseWriter, r *http.Request) {
	rows, err := s.equipment.List(r.Context())
	if err != nil {
		s.respondPipelineError(w, r, err)
		return
	}
	if rows == nil {
		rows = []store.EquipmentRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleHealth reports liveness, including a database ping.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.pinger.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "db_unreachable", "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
