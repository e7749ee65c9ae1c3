package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/camden-git/faceidbackend/recognition"
	"github.com/camden-git/faceidbackend/services"
	"github.com/go-chi/chi/v5"
)

const healthPingTimeout = 5 * time.Second

// ConsistencyHandler serves the consistency probes and the health endpoint.
type ConsistencyHandler struct {
	Consistency *services.ConsistencyService
	Engine      recognition.Engine
}

// QuickCheck runs the cheap local-only probe for one person.
// GET /api/consistency/quick/{person_id}
func (ch *ConsistencyHandler) QuickCheck(w http.ResponseWriter, r *http.Request) {
	personID, err := parseIDParam(chi.URLParam(r, "person_id"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid person ID format")
		return
	}
	report, err := ch.Consistency.QuickCheck(personID)
	if err != nil {
		writeServiceError(w, "consistency check", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// FullCheck diffs local bookkeeping against the engine's inventory.
// POST /api/consistency/check
func (ch *ConsistencyHandler) FullCheck(w http.ResponseWriter, r *http.Request) {
	opts := services.FullCheckOptions{CheckFaces: true, CheckPersons: true}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
			return
		}
	}

	report, err := ch.Consistency.FullCheck(r.Context(), opts)
	if err != nil {
		writeServiceError(w, "consistency check", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Health reports service liveness plus engine reachability.
// GET /api/health
func (ch *ConsistencyHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	engineStatus := "ok"
	status := http.StatusOK
	if err := ch.Engine.Ping(ctx); err != nil {
		engineStatus = "unreachable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{
		"status": "ok",
		"engine": engineStatus,
	})
}
