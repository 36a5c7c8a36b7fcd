package web

// errors.go maps the pipeline's typed errors onto HTTP responses. The
// error kind and locator fields are preserved end to end so callers can
// branch on structure, never on message text.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/equipflow/equipflow/internal/pipeline"
	"github.com/go-chi/chi/v5/middleware"
)

// ErrorResponse is the JSON error envelope. Optional fields are only set
// for the error kinds that carry them.
type ErrorResponse struct {
	Error          string   `json:"error"`
	Message        string   `json:"message"`
	MissingColumns []string `json:"missing_columns,omitempty"`
	SeenColumns    []string `json:"seen_columns,omitempty"`
	Row            int      `json:"row,omitempty"`
	Column         string   `json:"column,omitempty"`
	RowsPersisted  int      `json:"rows_persisted,omitempty"`
}

// respondPipelineError logs the technical error and writes the structured
// envelope. Validation kinds mean nothing was persisted; persistence and
// report kinds mean side effects may exist, and the status codes keep the
// two distinguishable.
func (s *Server) respondPipelineError(w http.ResponseWriter, r *http.Request, err error) {
	kind := pipeline.Kind(err)
	status := statusForKind(kind)

	slog.Error("request failed",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"kind", kind,
		"error", err.Error(),
		"request_id", middleware.GetReqID(r.Context()),
	)

	resp := ErrorResponse{Error: kind, Message: err.Error()}

	var missingCols *pipeline.MissingColumnsError
	var parseErr *pipeline.ParseError
	var reportErr *pipeline.ReportGenerationError
	switch {
	case errors.As(err, &missingCols):
		resp.MissingColumns = missingCols.Missing
		resp.SeenColumns = missingCols.Seen
	case errors.As(err, &parseErr):
		resp.Row = parseErr.Row
		resp.Column = parseErr.Column
	case errors.As(err, &reportErr):
		resp.RowsPersisted = reportErr.RowsPersisted
	}

	writeJSON(w, status, resp)
}

func statusForKind(kind string) int {
	switch kind {
	case pipeline.KindMissingFile, pipeline.KindMissingColumns, pipeline.KindParseError:
		return http.StatusBadRequest
	case pipeline.KindTooManyUploads:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v and writes it with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", "error", err)
	}
}

// writeError writes a minimal error envelope for non-pipeline failures.
func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, ErrorResponse{Error: kind, Message: message})
}
