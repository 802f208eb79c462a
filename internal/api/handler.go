package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/llamawrapper/sitepanel/internal/cache"
	"github.com/llamawrapper/sitepanel/internal/metrics"
	"github.com/llamawrapper/sitepanel/internal/posts"
	"github.com/llamawrapper/sitepanel/internal/site"
)

// Handler serves the read-only JSON endpoints.
type Handler struct {
	site    *site.Site
	loader  *posts.Loader
	cache   cache.Store      // nil if disabled
	metrics *metrics.Metrics // nil if disabled
	logger  *zap.Logger
}

func NewHandler(s *site.Site, loader *posts.Loader, c cache.Store, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{site: s, loader: loader, cache: c, metrics: m, logger: logger.Named("api")}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/posts.json", h.handlePosts)
	mux.HandleFunc("/api/bootstrap", h.handleBootstrap)
	mux.HandleFunc("/api/system", h.handleSystem)
	mux.HandleFunc("/api/runtime", h.handleRuntime)
	mux.HandleFunc("/api/models", h.handleModels)
	mux.HandleFunc("/api/probes", h.handleProbes)
	mux.HandleFunc("/health", h.handleHealth)
}

// handlePosts serves the snapshot the page reads, or the fallback posts.
func (h *Handler) handlePosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload, fromSnapshot := h.loader.Load(r.Context())
	data, err := payload.Encode()
	if err != nil {
		h.logger.Error("encoding posts", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, "failed to encode posts")
		return
	}
	source := "snapshot"
	if !fromSnapshot {
		source = "fallback"
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Posts-Source", source)
	w.Write(data)
}

func (h *Handler) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Query().Get("fresh") == "1" {
		WriteJSON(w, http.StatusOK, h.site.Refresh(r.Context()))
		return
	}
	WriteJSON(w, http.StatusOK, h.site.Cached(r.Context()))
}

func (h *Handler) handleSystem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rows, err := h.site.SystemRows(r.Context())
	if err != nil {
		WriteSiteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"rows": rows})
}

func (h *Handler) handleRuntime(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	v, err := h.site.RuntimeView(r.Context())
	if err != nil {
		WriteSiteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	opts, ok, err := h.site.Models(r.Context())
	if err != nil {
		WriteSiteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"available": ok,
		"options":   opts,
	})
}

func (h *Handler) handleProbes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.metrics == nil {
		WriteError(w, http.StatusNotFound, "metrics are disabled")
		return
	}

	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"summary": h.metrics.GetSnapshot(),
		"probes":  h.metrics.GetProbeHistory(limit),
		"health":  h.metrics.GetHealthHistory(limit),
		"events":  h.metrics.GetEventLog(limit),
		"actions": h.metrics.GetAuditLog(limit),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	result := map[string]interface{}{
		"status":    "ok",
		"endpoints": h.site.Endpoints(),
		"posts":     h.loader.Source(),
	}
	if h.cache != nil {
		result["cache"] = h.cache.Stats()
	}
	WriteJSON(w, http.StatusOK, result)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// WriteJSON encodes data with the given status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes {"error":{"message","code"}}.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, errorBody{
		Error: errorDetail{
			Message: message,
			Code:    http.StatusText(status),
		},
	})
}

// WriteSiteError maps the site sentinels to status codes.
func WriteSiteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, site.ErrPanelBusy):
		WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, site.ErrModelRequired):
		WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, site.ErrChatUnavailable):
		WriteError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, site.ErrPanelSkipped):
		WriteError(w, http.StatusNotFound, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
