package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rmax-ai/transformer-puzzle/pkg/graph"
	"github.com/rmax-ai/transformer-puzzle/pkg/puzzle"
	"github.com/rmax-ai/transformer-puzzle/pkg/reports"
)

func (s *Server) handlePalette(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, puzzle.Palette())
}

func (s *Server) handleReference(w http.ResponseWriter, r *http.Request) {
	stage, err := puzzle.ParseStage(r.PathValue("stage"))
	if err != nil {
		s.writeError(w, r, http.StatusNotFound, ErrorResponse{Error: "unknown_stage", Details: r.PathValue("stage")})
		return
	}
	ref, _ := puzzle.Reference(stage)
	s.writeJSON(w, r, http.StatusOK, ref)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	st, err := s.sessions.Create(r.Context())
	if err != nil {
		s.writeManagerError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/sessions/"+st.ID)
	s.writeJSON(w, r, http.StatusCreated, st)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.List(r.Context())
	if err != nil {
		s.writeManagerError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, r, http.StatusOK, SessionList{Sessions: ids})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	st, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeManagerError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, st)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeManagerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCommand applies one player command to a session. A command the
// session refuses answers 409 and leaves the session untouched; a failed
// check is still a 200 with the verdict in the outcome.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_json_body"})
		return
	}
	if err := ValidateCommandRequest(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_command", Details: err.Error()})
		return
	}

	out, st, err := s.sessions.Apply(r.Context(), r.PathValue("id"), req.Command())
	if err != nil {
		s.writeManagerError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, CommandResponse{Outcome: out, Session: st})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	st, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeManagerError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, graph.Project(st))
}

// handleReports generates and streams reports.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, ErrorResponse{Error: "journal_not_configured"})
		return
	}

	// Parse parameters
	q := r.URL.Query()
	reportType := reports.ReportType(q.Get("type"))
	if reportType == "" {
		reportType = reports.ReportTypeValidations
	}
	format, err := reports.ParseFormat(q.Get("format"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_format", Details: err.Error()})
		return
	}

	// Default time range: last 24h if not specified
	to := time.Now()
	if toStr := q.Get("to"); toStr != "" {
		to, err = time.Parse(time.RFC3339, toStr)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_to", Details: "format: RFC3339"})
			return
		}
	}
	from := to.Add(-24 * time.Hour)
	if fromStr := q.Get("from"); fromStr != "" {
		from, err = time.Parse(time.RFC3339, fromStr)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_from", Details: "format: RFC3339"})
			return
		}
	}
	if to.Before(from) {
		s.writeError(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_range", Details: "to is before from"})
		return
	}

	params := reports.ReportParams{
		Start:     from,
		End:       to,
		SessionID: q.Get("session_id"),
		Format:    format,
	}

	gen, err := reports.NewReportGenerator(reportType, s.events)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_report_type", Details: err.Error()})
		return
	}

	reader, err := gen.Generate(r.Context(), params)
	if err != nil {
		s.logger.Error("failed_to_generate_report", "trace_id", getTraceID(r.Context()), "error", err)
		s.writeError(w, r, http.StatusInternalServerError, ErrorResponse{Error: "report_generation_failed"})
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	filename := fmt.Sprintf("report_%s_%d.%s", reportType, time.Now().Unix(), format)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	// Stream response
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("failed_to_stream_report", "trace_id", getTraceID(r.Context()), "error", err)
	}
}
