// Package api provides HTTP handlers for the staff triage dashboard.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/NovaFertility/IntakeFlow/internal/models"
	"github.com/NovaFertility/IntakeFlow/internal/store"
)

// intakesHandler handles GET /admin/intakes.
func (s *Server) intakesHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.intakesHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	filter := models.IntakeFilter{}
	query := r.URL.Query()
	if status := query.Get("status"); status != "" {
		if !models.IsValidTriageStatus(models.TriageStatus(status)) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid triage status"))
			return
		}
		filter.Status = models.TriageStatus(status)
	}
	if limit := query.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid limit"))
			return
		}
		filter.Limit = n
	}
	if offset := query.Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid offset"))
			return
		}
		filter.Offset = n
	}

	records, err := s.st.ListIntakes(filter)
	if err != nil {
		slog.Error("Server.intakesHandler: failed to list intakes", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch intakes"))
		return
	}
	slog.Debug("Server.intakesHandler: intakes fetched", "count", len(records))
	writeJSONResponse(w, http.StatusOK, models.Success(records))
}

// intakeSubtreeHandler routes /admin/intakes/{id} and /admin/intakes/{id}/status.
func (s *Server) intakeSubtreeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	rest := strings.TrimPrefix(r.URL.Path, "/admin/intakes/")
	intakeID, action, _ := strings.Cut(rest, "/")
	if intakeID == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Intake not found"))
		return
	}

	switch action {
	case "":
		s.getIntake(w, r, intakeID)
	case "status":
		s.updateIntakeStatus(w, r, intakeID)
	default:
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown intake operation"))
	}
}

func (s *Server) getIntake(w http.ResponseWriter, r *http.Request, intakeID string) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	record, err := s.st.GetIntake(intakeID)
	if err != nil {
		if errors.Is(err, store.ErrIntakeNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Intake not found"))
			return
		}
		slog.Error("Server.getIntake: failed to fetch intake", "id", intakeID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch intake"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(record))
}

func (s *Server) updateIntakeStatus(w http.ResponseWriter, r *http.Request, intakeID string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var update models.TriageStatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		slog.Warn("Server.updateIntakeStatus: failed to decode JSON", "id", intakeID, "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := update.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if err := s.st.UpdateIntakeStatus(intakeID, update); err != nil {
		if errors.Is(err, store.ErrIntakeNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Intake not found"))
			return
		}
		slog.Error("Server.updateIntakeStatus: failed to update intake", "id", intakeID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update intake"))
		return
	}

	slog.Info("Server.updateIntakeStatus: intake updated", "id", intakeID, "status", update.Status)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Status updated", nil))
}

// statsHandler handles GET /admin/stats.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	stats, err := s.st.GetTriageStats()
	if err != nil {
		slog.Error("Server.statsHandler: failed to aggregate stats", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch stats"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}
