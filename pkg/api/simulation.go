package api

import (
	"encoding/json"
	"net/http"

	"github.com/rmax-ai/transformer-puzzle/pkg/game"
	"github.com/rmax-ai/transformer-puzzle/pkg/simulation"
)

// handleSimulation executes a simulation scenario against the sessions this
// server hosts. It runs synchronously.
func (s *Server) handleSimulation(w http.ResponseWriter, r *http.Request) {
	var req SimulationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_json_body"})
		return
	}
	if err := ValidateSimulationRequest(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_scenario", Details: err.Error()})
		return
	}

	var scenario simulation.Scenario
	if req.Scenario != nil {
		scenario = *req.Scenario
	} else {
		var err error
		scenario, err = simulation.FindScenario(req.Name)
		if err != nil {
			s.writeError(w, r, http.StatusNotFound, ErrorResponse{Error: "unknown_scenario", Details: req.Name})
			return
		}
	}

	ctx := game.WithOrigin(r.Context(), "sim", getTraceID(r.Context()))
	result := simulation.RunScenario(ctx, scenario, s.sessions, s.logger)
	s.writeJSON(w, r, http.StatusOK, result)
}
