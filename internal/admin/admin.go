package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/llamawrapper/sitepanel/internal/api"
	"github.com/llamawrapper/sitepanel/internal/metrics"
	"github.com/llamawrapper/sitepanel/internal/site"
)

// Handler provides the mutating endpoints behind the runtime and chat panels.
type Handler struct {
	site    *site.Site
	metrics *metrics.Metrics // nil if disabled
	logger  *zap.Logger
}

func NewHandler(s *site.Site, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		site:    s,
		metrics: m,
		logger:  logger.Named("admin"),
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/runtime/load", h.handleLoad)
	mux.HandleFunc("/api/runtime/unload", h.handleUnload)
	mux.HandleFunc("/api/refresh", h.handleRefresh)
	mux.HandleFunc("/api/chat", h.handleChat)
}

type actionRequest struct {
	ModelID string `json:"model_id"`
	Force   bool   `json:"force"`
	Message string `json:"message"`

	form bool
}

// decodeAction reads a JSON body or, for the page's own forms, form values.
func decodeAction(r *http.Request) (actionRequest, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var req actionRequest
		err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req)
		if err != nil && !errors.Is(err, io.EOF) {
			return req, err
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return actionRequest{}, err
	}
	return actionRequest{
		ModelID: r.FormValue("model_id"),
		Force:   formBool(r.FormValue("force")),
		Message: r.FormValue("message"),
		form:    true,
	}, nil
}

// formBool accepts checkbox values ("on") as well as strconv booleans.
// Anything else is false.
func formBool(v string) bool {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "on") {
		return true
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func (h *Handler) handleLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := decodeAction(r)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.logger.Info("loading model", zap.String("model", req.ModelID), zap.Bool("force", req.Force))
	res, err := h.site.LoadModel(r.Context(), req.ModelID, req.Force)
	h.respond(w, r, req, "load", req.ModelID, res, err)
}

func (h *Handler) handleUnload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := decodeAction(r)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.logger.Info("unloading model", zap.Bool("force", req.Force))
	res, err := h.site.UnloadModel(r.Context(), req.Force)
	h.respond(w, r, req, "unload", "", res, err)
}

// respond audits an action and answers it. Form posts go back to the page,
// where the result or the rejection shows in the runtime panel message.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, req actionRequest, action, target string, res site.ActionResult, err error) {
	if err != nil {
		if errors.Is(err, site.ErrPanelBusy) {
			h.logger.Warn("rejected runtime action", zap.String("action", action))
		}
		if req.form {
			h.site.NoteRuntime(fmt.Sprintf("%s failed: %v", action, err))
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		api.WriteSiteError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.AddAuditEntry(action, r.RemoteAddr, target, res.Message)
	}

	if req.form {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	status := http.StatusOK
	if !res.OK {
		status = http.StatusBadGateway
	}
	api.WriteJSON(w, status, res)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.logger.Info("refreshing snapshot")
	snap := h.site.Refresh(r.Context())
	if h.metrics != nil {
		h.metrics.AddAuditEntry("refresh", r.RemoteAddr, "", "")
	}
	api.WriteJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := decodeAction(r)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	reply, err := h.site.SendChat(r.Context(), req.Message)
	if err != nil {
		api.WriteSiteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"reply": reply})
}
