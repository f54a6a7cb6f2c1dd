// Package handlers implements the HTTP handlers for the DelegateWatch
// service. All handlers work through the Tracker / Reminder services,
// which own the store access.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/delegatewatch/delegatewatch/internal/reminder"
	"github.com/delegatewatch/delegatewatch/internal/store"
	"github.com/delegatewatch/delegatewatch/internal/tracking"
	"github.com/delegatewatch/delegatewatch/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Store    store.Store
	Tracker  *tracking.Tracker
	Reminder *reminder.Service
	Version  string
}

// New creates a new Handlers instance with all dependencies.
func New(s store.Store, tr *tracking.Tracker, rem *reminder.Service, version string) *Handlers {
	return &Handlers{
		Store:    s,
		Tracker:  tr,
		Reminder: rem,
		Version:  version,
	}
}

// ── Event Handlers ───────────────────────────────────────────

type delegationRequest struct {
	Agent    string         `json:"agent"`
	Task     string         `json:"task"`
	Metadata map[string]any `json:"metadata"`
}

type directActionRequest struct {
	ActionType  string         `json:"action_type"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
}

func (h *Handlers) RecordDelegation(w http.ResponseWriter, r *http.Request) {
	var req delegationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	stats, err := h.Tracker.RecordDelegation(r.Context(), req.Agent, req.Task, req.Metadata)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, stats)
}

func (h *Handlers) RecordDirectAction(w http.ResponseWriter, r *http.Request) {
	var req directActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	stats, err := h.Tracker.RecordDirectAction(r.Context(), req.ActionType, req.Description, req.Metadata)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, stats)
}

func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	events, err := h.Tracker.RecentEvents(r.Context(), limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	respondJSON(w, http.StatusOK, events)
}

// ── Stats & Report Handlers ──────────────────────────────────

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Tracker.ComputeStats(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *Handlers) GetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.Tracker.GenerateReport(r.Context(), queryInt(r, "events", 0))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// GetStatus renders the fixed-layout text report.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	report, err := h.Tracker.GenerateReport(r.Context(), 0)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(tracking.FormatStatus(report)))
}

// ── Threshold & Reset Handlers ───────────────────────────────

type thresholdPayload struct {
	Threshold float64 `json:"threshold"`
}

func (h *Handlers) GetThreshold(w http.ResponseWriter, r *http.Request) {
	threshold, err := h.Tracker.AlertThreshold(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, thresholdPayload{Threshold: threshold})
}

func (h *Handlers) SetThreshold(w http.ResponseWriter, r *http.Request) {
	var req thresholdPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.Tracker.SetAlertThreshold(r.Context(), req.Threshold); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, thresholdPayload{Threshold: req.Threshold})
}

func (h *Handlers) ResetTracking(w http.ResponseWriter, r *http.Request) {
	if err := h.Tracker.ResetTracking(r.Context()); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// ── Reminder Handlers ────────────────────────────────────────

type reminderCheckRequest struct {
	// Interval overrides the persisted cadence when > 0.
	Interval int64 `json:"interval"`
}

type intervalPayload struct {
	Interval int64 `json:"interval"`
}

func (h *Handlers) CheckReminder(w http.ResponseWriter, r *http.Request) {
	var req reminderCheckRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	interval := req.Interval
	if interval == 0 {
		stored, err := h.Reminder.Interval(r.Context())
		if err != nil {
			// Best-effort path: fall back to the default cadence.
			log.Warn().Err(err).Msg("Falling back to default reminder interval")
			stored = reminder.DefaultInterval
		}
		interval = stored
	}

	result, err := h.Reminder.Check(r.Context(), interval)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handlers) GetReminderInterval(w http.ResponseWriter, r *http.Request) {
	interval, err := h.Reminder.Interval(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, intervalPayload{Interval: interval})
}

func (h *Handlers) SetReminderInterval(w http.ResponseWriter, r *http.Request) {
	var req intervalPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.Reminder.SetInterval(r.Context(), req.Interval); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, intervalPayload{Interval: req.Interval})
}

func (h *Handlers) ResetReminder(w http.ResponseWriter, r *http.Request) {
	if err := h.Reminder.ResetCounter(r.Context()); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// ── Health & Version ─────────────────────────────────────────

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) GetVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"version": h.Version})
}

// ── Helpers ──────────────────────────────────────────────────

// respondServiceError maps service errors to HTTP statuses: validation
// failures are the caller's fault, store outages are 503.
func respondServiceError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		respondError(w, http.StatusBadRequest, verr.Error())
		return
	}
	var uerr *store.UnavailableError
	if errors.As(err, &uerr) {
		log.Error().Err(err).Msg("Store unavailable")
		respondError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
