package dashboard

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/llamawrapper/sitepanel/internal/api"
	"github.com/llamawrapper/sitepanel/internal/metrics"
	"github.com/llamawrapper/sitepanel/internal/middleware"
	"github.com/llamawrapper/sitepanel/internal/site"
)

// TokenCookie holds the dashboard password after a form login.
const TokenCookie = "sitepanel_token"

// Handler serves the rendered page and its history endpoints.
type Handler struct {
	site    *site.Site
	metrics *metrics.Metrics // nil if disabled
	logger  *zap.Logger

	mu        sync.RWMutex
	password  string
	adminKeys []string
}

func NewHandler(s *site.Site, m *metrics.Metrics, password string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{site: s, metrics: m, password: password, logger: logger.Named("dashboard")}
}

// SetPassword replaces the password on config reload. Empty disables the check.
func (h *Handler) SetPassword(pw string) {
	h.mu.Lock()
	h.password = pw
	h.mu.Unlock()
}

// SetAdminKeys sets the keys the login form accepts for the action forms.
func (h *Handler) SetAdminKeys(keys []string) {
	h.mu.Lock()
	h.adminKeys = keys
	h.mu.Unlock()
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/login", h.serveLogin)
	mux.HandleFunc("/", h.authWrap(h.servePage))
	mux.HandleFunc("/refresh", h.authWrap(h.handleRefresh))
	mux.HandleFunc("/api/events", h.authWrap(h.serveEvents))
	mux.HandleFunc("/api/audit", h.authWrap(h.serveAudit))
	mux.HandleFunc("/api/health-history", h.authWrap(h.serveHealthHistory))
}

// authWrap optionally protects the page with a password.
func (h *Handler) authWrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodPost {
			h.login(w, r)
			return
		}
		h.mu.RLock()
		pw := h.password
		h.mu.RUnlock()
		if pw == "" {
			next(w, r)
			return
		}
		// Check query param, header, or cookie
		if matches(r.URL.Query().Get("token"), pw) || matches(r.Header.Get("X-Dashboard-Token"), pw) {
			next(w, r)
			return
		}
		if c, err := r.Cookie(TokenCookie); err == nil && matches(c.Value, pw) {
			next(w, r)
			return
		}
		if r.URL.Path == "/" {
			writeLogin(w, http.StatusUnauthorized)
			return
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
}

// login handles the form on the login page. The password sets TokenCookie;
// an admin key, when given, sets the cookie the action forms authenticate with.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	pw, keys := h.password, h.adminKeys
	h.mu.RUnlock()

	r.ParseForm()
	key := r.FormValue("admin_key")
	passOK := pw == "" || matches(r.FormValue("password"), pw)
	keyOK := key == "" || middleware.ValidKey(keys, key)
	if !passOK || !keyOK || (pw == "" && key == "") {
		h.logger.Warn("failed login", zap.String("remote", r.RemoteAddr))
		writeLogin(w, http.StatusUnauthorized)
		return
	}

	if pw != "" {
		http.SetCookie(w, &http.Cookie{Name: TokenCookie, Value: pw, Path: "/", MaxAge: 86400, HttpOnly: true})
	}
	if key != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     middleware.KeyCookie,
			Value:    key,
			Path:     "/",
			MaxAge:   86400,
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) serveLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeLogin(w, http.StatusOK)
}

func writeLogin(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(loginHTML))
}

func matches(got, want string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (h *Handler) servePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	html, err := h.site.Page(r.Context())
	if err != nil {
		h.logger.Error("rendering page", zap.Error(err))
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}

// handleRefresh re-runs the bootstrap and sends the browser back to the page.
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.site.Refresh(r.Context())
	if h.metrics != nil {
		h.metrics.AddAuditEntry("refresh", r.RemoteAddr, "", "")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func limitParam(r *http.Request, def, upper int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, _ := strconv.Atoi(l); n > 0 && n <= upper {
			return n
		}
	}
	return def
}

// --- Event Log ---
func (h *Handler) serveEvents(w http.ResponseWriter, r *http.Request) {
	var events []metrics.EventEntry
	if h.metrics != nil {
		events = h.metrics.GetEventLog(limitParam(r, 100, 200))
	}
	if events == nil {
		events = []metrics.EventEntry{}
	}
	api.WriteJSON(w, http.StatusOK, events)
}

// --- Audit Log ---
func (h *Handler) serveAudit(w http.ResponseWriter, r *http.Request) {
	var entries []metrics.AuditEntry
	if h.metrics != nil {
		entries = h.metrics.GetAuditLog(limitParam(r, 100, 200))
	}
	if entries == nil {
		entries = []metrics.AuditEntry{}
	}
	api.WriteJSON(w, http.StatusOK, entries)
}

// --- Health Check History ---
func (h *Handler) serveHealthHistory(w http.ResponseWriter, r *http.Request) {
	var results []metrics.HealthCheckResult
	if h.metrics != nil {
		results = h.metrics.GetHealthHistory(limitParam(r, 100, 500))
	}
	if results == nil {
		results = []metrics.HealthCheckResult{}
	}
	api.WriteJSON(w, http.StatusOK, results)
}
