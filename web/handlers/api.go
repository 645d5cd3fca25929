package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/scrypster/agentmemory/internal/engine"
	"github.com/scrypster/agentmemory/internal/storage"
	"github.com/scrypster/agentmemory/pkg/types"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// APIHandlers contains HTTP handlers for the REST API.
type APIHandlers struct {
	svc    *engine.Service
	logger *slog.Logger
}

// NewAPIHandlers creates a new APIHandlers instance.
func NewAPIHandlers(svc *engine.Service, logger *slog.Logger) *APIHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandlers{svc: svc, logger: logger}
}

// RecordEvent handles POST /api/events.
func (h *APIHandlers) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var req engine.RecordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	evt, err := h.svc.Record(r.Context(), req)
	if err != nil {
		h.respondEngineError(w, "failed to record event", err)
		return
	}
	respondJSON(w, http.StatusCreated, evt)
}

// GetEvent handles GET /api/events/{id}.
func (h *APIHandlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "event ID is required", nil)
		return
	}

	evt, err := h.svc.GetEvent(r.Context(), id)
	if err != nil {
		h.respondEngineError(w, "failed to get event", err)
		return
	}
	respondJSON(w, http.StatusOK, evt)
}

// RelatedEvents handles GET /api/events/related.
func (h *APIHandlers) RelatedEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	events, err := h.svc.RelatedEvents(r.Context(), engine.RelatedKey{
		EmailID:      q.Get("email_id"),
		TaskID:       q.Get("task_id"),
		DelegationID: q.Get("delegation_id"),
	})
	if err != nil {
		h.respondEngineError(w, "failed to load related events", err)
		return
	}
	respondJSON(w, http.StatusOK, newEventList(events))
}

// GetContext handles GET /api/context. format=text (default) returns the
// prompt-ready digest, format=json the grouped structure and format=list the
// flat event rows.
func (h *APIHandlers) GetContext(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := engine.ContextOptions{
		WindowHours:     parseInt(q.Get("hours"), 0),
		IncludeResolved: parseBool(q.Get("include_resolved")),
		Flat:            parseBool(q.Get("flat")),
		AgentType:       types.AgentType(q.Get("agent_type")),
		MaxItems:        parseInt(q.Get("limit"), 0),
	}
	if err := engine.CheckWindowHours(opts.WindowHours); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if opts.MaxItems < 0 {
		respondError(w, http.StatusBadRequest, "limit must be positive", nil)
		return
	}
	if opts.AgentType != "" && !types.IsValidAgentType(opts.AgentType) {
		respondError(w, http.StatusBadRequest, "unknown agent_type", nil)
		return
	}

	format := q.Get("format")
	if format == "" {
		format = "text"
	}
	if format != "text" && format != "json" && format != "list" {
		respondError(w, http.StatusBadRequest, "format must be text, json or list", nil)
		return
	}

	digest := h.svc.BuildContext(r.Context(), opts)
	if digest.Degraded {
		w.Header().Set("X-Memory-Degraded", "true")
	}

	switch format {
	case "json":
		data, err := digest.JSON()
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to encode context", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	case "list":
		events := digest.Events()
		if events == nil {
			events = []*types.MemoryEvent{}
		}
		respondJSON(w, http.StatusOK, ContextListResponse{
			WindowHours:     digest.WindowHours,
			IncludeResolved: digest.IncludeResolved,
			Degraded:        digest.Degraded,
			Truncated:       digest.Truncated,
			Events:          events,
			Count:           len(events),
		})
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(digest.Text()))
	}
}

// GetDigestContext handles GET /api/context/digest.
func (h *APIHandlers) GetDigestContext(w http.ResponseWriter, r *http.Request) {
	hours := parseInt(r.URL.Query().Get("hours"), 24)
	if hours <= 0 {
		respondError(w, http.StatusBadRequest, "hours must be positive", nil)
		return
	}
	if err := engine.CheckWindowHours(hours); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	respondJSON(w, http.StatusOK, DigestResponse{
		Hours:   hours,
		Context: h.svc.DigestContext(r.Context(), hours),
	})
}

// Resolve handles POST /api/resolve.
func (h *APIHandlers) Resolve(w http.ResponseWriter, r *http.Request) {
	var req engine.ResolveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.svc.Resolve(r.Context(), req)
	if err != nil {
		h.respondEngineError(w, "failed to resolve", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Annotate handles POST /api/annotate.
func (h *APIHandlers) Annotate(w http.ResponseWriter, r *http.Request) {
	var req engine.AnnotateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	n, err := h.svc.Annotate(r.Context(), req)
	if err != nil {
		h.respondEngineError(w, "failed to annotate", err)
		return
	}
	respondJSON(w, http.StatusOK, AnnotateResponse{Annotated: n})
}

// Search handles GET /api/search.
func (h *APIHandlers) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := parseInt(q.Get("limit"), engine.DefaultSearchLimit)
	if limit > 1000 {
		limit = 1000
	}

	events, err := h.svc.Search(r.Context(), engine.SearchRequest{
		Query:      q.Get("q"),
		AgentType:  types.AgentType(q.Get("agent_type")),
		ActiveOnly: parseBool(q.Get("active_only")),
		Limit:      limit,
	})
	if err != nil {
		h.respondEngineError(w, "search failed", err)
		return
	}
	respondJSON(w, http.StatusOK, newEventList(events))
}

// ActiveIssues handles GET /api/issues.
func (h *APIHandlers) ActiveIssues(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), engine.DefaultIssueLimit)
	if limit > 1000 {
		limit = 1000
	}

	events, err := h.svc.ActiveIssues(r.Context(), limit)
	if err != nil {
		h.respondEngineError(w, "failed to list issues", err)
		return
	}
	respondJSON(w, http.StatusOK, newEventList(events))
}

// StartSession handles POST /api/sessions.
func (h *APIHandlers) StartSession(w http.ResponseWriter, r *http.Request) {
	var req engine.StartSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	session, err := h.svc.StartSession(r.Context(), req)
	if err != nil {
		h.respondEngineError(w, "failed to start session", err)
		return
	}
	respondJSON(w, http.StatusCreated, session)
}

// CompleteSession handles POST /api/sessions/{id}/complete.
func (h *APIHandlers) CompleteSession(w http.ResponseWriter, r *http.Request) {
	var result types.SessionResult
	if !decodeBody(w, r, &result) {
		return
	}

	session, err := h.svc.CompleteSession(r.Context(), extractID(r, "id"), result)
	if err != nil {
		h.respondEngineError(w, "failed to complete session", err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

// GetSession handles GET /api/sessions/{id}.
func (h *APIHandlers) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.GetSession(r.Context(), extractID(r, "id"))
	if err != nil {
		h.respondEngineError(w, "failed to get session", err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

// Health handles GET /health. It reports 503 when the store is unreachable.
func (h *APIHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		h.logger.Warn("health: store unreachable", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "degraded", Version: Version, Storage: "unavailable", LLM: h.svc.LLMState(),
		})
		return
	}
	respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Version: Version, Storage: "ok", LLM: h.svc.LLMState()})
}

// respondEngineError maps engine and storage errors onto HTTP status codes.
func (h *APIHandlers) respondEngineError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidEventSpec),
		errors.Is(err, engine.ErrInvalidRequest),
		errors.Is(err, storage.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, message, err)
	case errors.Is(err, engine.ErrStorage):
		h.logger.Error(message, "error", err)
		respondError(w, http.StatusServiceUnavailable, message, err)
	default:
		h.logger.Error(message, "error", err)
		respondError(w, http.StatusInternalServerError, message, err)
	}
}

// Helper functions

// extractID extracts a path parameter from the request.
func extractID(r *http.Request, key string) string {
	return r.PathValue(key)
}

// decodeBody decodes a JSON request body into dst, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return false
	}
	return true
}

// parseInt parses an integer from a string, returning defaultValue if parsing fails.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent.
		slog.Default().Warn("failed to encode JSON response", "error", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}

	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}

	respondJSON(w, statusCode, errResp)
}
