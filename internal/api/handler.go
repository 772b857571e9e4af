package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/truthlens/truthlens/internal/domain"
	"github.com/truthlens/truthlens/internal/orchestrator"
	"github.com/truthlens/truthlens/internal/repository"
	"github.com/truthlens/truthlens/internal/worker"
)

// maxBodyBytes bounds request bodies; review pages can be large.
const maxBodyBytes = 4 << 20

// DefaultPlatform is recorded for reviews that do not name their platform.
const DefaultPlatform = "Unknown"

// Handler holds dependencies for API handlers.
type Handler struct {
	orch    *orchestrator.Orchestrator
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	version string
}

// NewHandler creates a new API handler.
func NewHandler(orch *orchestrator.Orchestrator, cache domain.Cache, bus domain.EventBus, version string) *Handler {
	return &Handler{
		orch:    orch,
		repo:    orch.Repository(),
		cache:   cache,
		bus:     bus,
		version: version,
	}
}

// AnalyzeRequest is the request body for POST /analyze.
type AnalyzeRequest struct {
	URL      string          `json:"url"`
	Title    string          `json:"title"`
	Reviews  []domain.Review `json:"reviews"`
	PageText string          `json:"page_text"`
}

// decodeAnalyzeRequest parses and defaults an analysis request. The error
// text is safe to return to the caller.
func decodeAnalyzeRequest(r *http.Request) (domain.AnalysisRequest, error) {
	var req AnalyzeRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		return domain.AnalysisRequest{}, errors.New("invalid JSON request body: " + err.Error())
	}
	if strings.TrimSpace(req.URL) == "" {
		return domain.AnalysisRequest{}, errors.New("url is required")
	}

	if req.Title == "" {
		req.Title = domain.DefaultTitle
	}
	reviews := make([]domain.Review, len(req.Reviews))
	for i, rv := range req.Reviews {
		if rv.Platform == "" {
			rv.Platform = DefaultPlatform
		}
		reviews[i] = rv
	}

	return domain.AnalysisRequest{
		URL:      req.URL,
		Title:    req.Title,
		Reviews:  reviews,
		PageText: req.PageText,
	}, nil
}

// Analyze handles POST /analyze.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	req, err := decodeAnalyzeRequest(r)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"detail": err.Error(),
		})
		return
	}

	a := h.orch.Process(ctx, orchestrator.Input{
		TenantID: GetTenantID(ctx),
		TraceID:  GetTraceID(ctx),
		Request:  req,
	})

	writeJSON(w, http.StatusOK, a.ToResponse())
}

// AnalyzeAsync handles POST /analyze/async by queueing the request for the
// worker. The result is published on the completed topic and stored.
func (h *Handler) AnalyzeAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	req, err := decodeAnalyzeRequest(r)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"detail": err.Error(),
		})
		return
	}

	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)
	payload, err := json.Marshal(worker.RequestMessage{
		TenantID:        tenantID,
		TraceID:         traceID,
		AnalysisRequest: req,
	})
	if err != nil {
		slog.Error("failed to encode analysis request", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to encode analysis request",
		})
		return
	}

	if err := h.bus.Publish(ctx, tenantID, domain.TopicAnalysisRequested, payload); err != nil {
		slog.Error("failed to queue analysis", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "failed to queue analysis",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":   "queued",
		"trace_id": traceID,
	})
}

// PhishingRequest is the request body for POST /phishing.
type PhishingRequest struct {
	URL string `json:"url"`
}

// PhishingResponse is the response for POST /phishing.
type PhishingResponse struct {
	URL            string               `json:"url"`
	PhishingStatus domain.DomainVerdict `json:"phishing_status"`
}

// CheckPhishing handles POST /phishing.
func (h *Handler) CheckPhishing(w http.ResponseWriter, r *http.Request) {
	var req PhishingRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.URL == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"detail": "url is required",
		})
		return
	}

	writeJSON(w, http.StatusOK, PhishingResponse{
		URL:            req.URL,
		PhishingStatus: h.orch.CheckPhishing(req.URL),
	})
}

// Root answers the extension's liveness probe.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "TruthLens Backend is Running",
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	checks := map[string]string{}

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			slog.Warn("health check failed", "component", name, "error", err)
			checks[name] = "down"
			status = "degraded"
			return
		}
		checks[name] = "up"
	}

	if h.repo != nil {
		check("repository", func() error { return h.repo.Ping(ctx) })
	}
	if h.cache != nil {
		check("cache", func() error { return h.cache.Ping(ctx) })
	}
	if h.bus != nil {
		check("eventBus", func() error { return h.bus.Ping(ctx) })
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.version,
		"checks":  checks,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetAnalysis retrieves a stored analysis by ID.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	id := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	a, err := h.repo.GetAnalysis(ctx, tenantID, id)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "analysis not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get analysis", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load analysis",
		})
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// ListAnalyses returns the tenant's most recent analyses, newest first.
// Query parameters: url (optional filter), limit.
func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	list, err := h.repo.ListAnalyses(ctx, GetTenantID(ctx), r.URL.Query().Get("url"), limit)
	if err != nil {
		slog.Error("failed to list analyses", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list analyses",
		})
		return
	}
	if list == nil {
		list = []*domain.Analysis{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"analyses": list,
		"count":    len(list),
	})
}

// ListCalibrationRules returns the active calibration rules.
func (h *Handler) ListCalibrationRules(w http.ResponseWriter, r *http.Request) {
	rules := h.orch.CalibrationRules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// CreateCalibrationRule validates, stores and activates a calibration rule.
// Rules are shared by every tenant.
func (h *Handler) CreateCalibrationRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var rule domain.CalibrationRule
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if rule.ID == "" || rule.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id and expression are required",
		})
		return
	}

	err := h.orch.SaveCalibrationRule(ctx, rule)
	switch {
	case errors.Is(err, orchestrator.ErrInvalidRule):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	case errors.Is(err, orchestrator.ErrNoRepository):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	case err != nil:
		slog.Error("failed to save calibration rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save calibration rule",
		})
		return
	}

	slog.Info("calibration rule saved", "id", rule.ID, "floor", rule.Floor, "enabled", rule.Enabled)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":  rule,
		"count": len(h.orch.CalibrationRules()),
	})
}

// ReloadCalibrationRules reloads calibration rules from the database.
func (h *Handler) ReloadCalibrationRules(w http.ResponseWriter, r *http.Request) {
	n, err := h.orch.ReloadCalibration(r.Context())
	if errors.Is(err, orchestrator.ErrNoRepository) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}
	if err != nil {
		slog.Error("failed to reload calibration rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload calibration rules: " + err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "calibration rules reloaded successfully",
		"count":   n,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
