// Package gateway exposes the pipeline over HTTP.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"enms-voice/internal/common/logger"
	"enms-voice/internal/intent"
	"enms-voice/internal/pipeline"
	"enms-voice/internal/response"
	"enms-voice/internal/vocabulary"
)

// Dispatcher sends a validated intent to the analytics API.
type Dispatcher interface {
	Dispatch(ctx context.Context, in *intent.Intent) (map[string]interface{}, error)
}

// MachineFetcher retrieves the machine whitelist.
type MachineFetcher interface {
	FetchMachineNames(ctx context.Context) ([]string, error)
	InvalidateMachineCache(ctx context.Context)
}

// Handler holds the HTTP surface: voice processing, session teardown,
// whitelist refresh, stats and health.
type Handler struct {
	pipeline   *pipeline.Orchestrator
	dispatcher Dispatcher
	fetcher    MachineFetcher
	formatter  *response.Formatter
	store      *vocabulary.Store
	logger     logger.Logger
}

func NewHandler(
	p *pipeline.Orchestrator,
	d Dispatcher,
	f MachineFetcher,
	fmtr *response.Formatter,
	store *vocabulary.Store,
	log logger.Logger,
) *Handler {
	return &Handler{
		pipeline:   p,
		dispatcher: d,
		fetcher:    f,
		formatter:  fmtr,
		store:      store,
		logger:     log.With(map[string]interface{}{"component": "gateway"}),
	}
}

// Register mounts all routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/voice/process", h.handleProcess)
	mux.HandleFunc("/api/voice/session/end", h.handleEndSession)
	mux.HandleFunc("/api/voice/stats", h.handleStats)
	mux.HandleFunc("/api/admin/refresh-machines", h.handleRefreshMachines)
	mux.HandleFunc("/healthz", h.handleHealth)
}

type processRequest struct {
	SessionID string `json:"sessionId"`
	Utterance string `json:"utterance"`
}

type processResponse struct {
	SessionID          string                 `json:"sessionId"`
	Intent             *intent.Intent         `json:"intent,omitempty"`
	NeedsClarification bool                   `json:"needsClarification"`
	ResponseText       string                 `json:"responseText,omitempty"`
	Reason             string                 `json:"clarificationReason,omitempty"`
	Suggestions        []string               `json:"suggestions,omitempty"`
	Data               map[string]interface{} `json:"data,omitempty"`
}

func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Utterance == "" {
		writeError(w, http.StatusBadRequest, "utterance is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	out := h.pipeline.Process(r.Context(), req.SessionID, req.Utterance)

	resp := processResponse{
		SessionID:          out.SessionID,
		NeedsClarification: out.NeedsClarification,
		ResponseText:       out.Prompt,
		Reason:             string(out.Reason),
		Suggestions:        out.Suggestions,
	}
	if out.Intent == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.Intent = out.Intent
	payload, err := h.dispatcher.Dispatch(r.Context(), out.Intent)
	if err != nil {
		h.logger.Error("analytics dispatch failed", map[string]interface{}{
			"sessionId":  req.SessionID,
			"intentType": string(out.Intent.Type),
			"error":      err.Error(),
		})
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	resp.Data = payload

	if text, err := h.formatter.Format(out.Intent.Type, payload); err == nil {
		resp.ResponseText = text
	} else {
		// The raw payload is still returned; only the spoken text is
		// unavailable.
		h.logger.Warn("response formatting failed", map[string]interface{}{
			"intentType": string(out.Intent.Type),
			"error":      err.Error(),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type endSessionRequest struct {
	SessionID string `json:"sessionId"`
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req endSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	h.pipeline.EndSession(req.SessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	writeJSON(w, http.StatusOK, h.pipeline.Stats())
}

func (h *Handler) handleRefreshMachines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	h.fetcher.InvalidateMachineCache(r.Context())
	names, err := h.fetcher.FetchMachineNames(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "machine fetch failed: "+err.Error())
		return
	}
	if err := h.store.RefreshMachines(names); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "refreshed",
		"machines": len(names),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error":  msg,
		"status": status,
	})
}
