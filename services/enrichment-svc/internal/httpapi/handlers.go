// Package httpapi implements the plain net/http JSON surface for
// enrichment-svc: POST /solve_vrp, POST /enrich_municipality, and the
// health/readiness/metrics endpoints the rest of the fleet probes.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"enrichment-svc/pkg/apperror"
	"enrichment-svc/pkg/enrichment"
	"enrichment-svc/pkg/logger"
)

// Handler wires the enrichment Orchestrator into the JSON API.
type Handler struct {
	orchestrator *enrichment.Orchestrator
	ready        *readiness
}

// NewHandler builds a Handler. ready reports process readiness to
// GET /ready once startup has finished.
func NewHandler(orchestrator *enrichment.Orchestrator, ready *readiness) *Handler {
	return &Handler{orchestrator: orchestrator, ready: ready}
}

// enrichMunicipalityRequest is the wire shape for POST /enrich_municipality:
// a fresh enrichment request plus the prior /solve_vrp result to merge onto.
type enrichMunicipalityRequest struct {
	Payload   enrichment.Request   `json:"payload"`
	VRPResult enrichment.Response  `json:"vrp_result"`
}

// SolveVRP handles POST /solve_vrp.
func (h *Handler) SolveVRP(w http.ResponseWriter, r *http.Request) {
	var req enrichment.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperror.NewWithField(apperror.CodeBadRequest, "invalid JSON body", "body"))
		return
	}

	resp, err := h.orchestrator.Solve(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// EnrichMunicipality handles POST /enrich_municipality.
func (h *Handler) EnrichMunicipality(w http.ResponseWriter, r *http.Request) {
	var req enrichMunicipalityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperror.NewWithField(apperror.CodeBadRequest, "invalid JSON body", "body"))
		return
	}

	resp, err := h.orchestrator.EnrichMunicipality(r.Context(), req.Payload, req.VRPResult)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health answers GET /health: the process is alive.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready answers GET /ready: dependencies finished initializing.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.ready.isReady() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response body", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		appErr = apperror.Wrap(err, apperror.CodeInternal, "internal error")
	}
	writeJSON(w, appErr.HTTPStatus(), map[string]any{
		"error": map[string]any{
			"code":    appErr.Code,
			"message": appErr.Message,
			"field":   appErr.Field,
		},
	})
}
