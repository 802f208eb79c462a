package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llamawrapper/sitepanel/internal/config"
	"github.com/llamawrapper/sitepanel/internal/metrics"
	"github.com/llamawrapper/sitepanel/internal/posts"
	"github.com/llamawrapper/sitepanel/internal/probe"
	"github.com/llamawrapper/sitepanel/internal/site"
)

type upstreamCall struct {
	path string
	body map[string]interface{}
}

func setup(t *testing.T) (*http.ServeMux, *metrics.Metrics, chan upstreamCall) {
	t.Helper()
	_, mux, m, calls := setupSite(t)
	return mux, m, calls
}

func setupSite(t *testing.T) (*site.Site, *http.ServeMux, *metrics.Metrics, chan upstreamCall) {
	t.Helper()
	calls := make(chan upstreamCall, 8)
	llm := http.NewServeMux()
	record := func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		calls <- upstreamCall{path: r.URL.Path, body: body}
		if body["model_id"] == "broken" {
			http.Error(w, "cannot load broken", http.StatusUnprocessableEntity)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}
	llm.HandleFunc("/internal/models/load", record)
	llm.HandleFunc("/internal/models/unload", record)
	srv := httptest.NewServer(llm)
	t.Cleanup(srv.Close)

	p := probe.New()
	s := site.New(site.Options{
		Upstream: probe.NewUpstream(p, config.EndpointsConfig{LLM: srv.URL, RAG: srv.URL, Audio: srv.URL}),
		Loader:   posts.NewLoader("", p, nil),
	})
	m := metrics.New()
	mux := http.NewServeMux()
	NewHandler(s, m, nil).RegisterRoutes(mux)
	return s, mux, m, calls
}

func TestLoad_JSON(t *testing.T) {
	mux, m, calls := setup(t)

	req := httptest.NewRequest(http.MethodPost, "/api/runtime/load", strings.NewReader(`{"model_id":"m1","force":true}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var res site.ActionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.OK)
	assert.Equal(t, "load ok", res.Message)

	call := <-calls
	assert.Equal(t, "/internal/models/load", call.path)
	assert.Equal(t, "m1", call.body["model_id"])
	assert.Equal(t, true, call.body["force"])

	audit := m.GetAuditLog(0)
	require.Len(t, audit, 1)
	assert.Equal(t, "load", audit[0].Action)
	assert.Equal(t, "m1", audit[0].Target)
}

func TestLoad_Form(t *testing.T) {
	mux, _, calls := setup(t)

	form := url.Values{"model_id": {"m2"}, "force": {"on"}}
	req := httptest.NewRequest(http.MethodPost, "/api/runtime/load", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	call := <-calls
	assert.Equal(t, "m2", call.body["model_id"])
	assert.Equal(t, true, call.body["force"])
}

func TestLoad_FormErrorsRedirect(t *testing.T) {
	s, mux, m, _ := setupSite(t)

	form := url.Values{"model_id": {"  "}}
	req := httptest.NewRequest(http.MethodPost, "/api/runtime/load", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, "load failed: model_id is required", s.Runtime.Message())
	assert.Empty(t, m.GetAuditLog(0))
}

func TestLoad_Errors(t *testing.T) {
	mux, _, _ := setup(t)

	tests := []struct {
		name string
		body string
		want int
		msg  string
	}{
		{"missing model", `{"force":false}`, http.StatusBadRequest, "model_id is required"},
		{"bad json", `{"model_id":`, http.StatusBadRequest, "invalid request body"},
		{"upstream failure", `{"model_id":"broken"}`, http.StatusBadGateway, "load failed: HTTP 422 cannot load broken"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/runtime/load", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.msg)
		})
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runtime/load", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestUnload_EmptyBody(t *testing.T) {
	mux, _, calls := setup(t)

	req := httptest.NewRequest(http.MethodPost, "/api/runtime/unload", nil)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message":"unload ok"`)
	call := <-calls
	assert.Equal(t, "/internal/models/unload", call.path)
	assert.Equal(t, false, call.body["force"])
}

func TestChat_NotImplemented(t *testing.T) {
	mux, _, _ := setup(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Contains(t, rec.Body.String(), "chat is not available")
}

func TestRefresh(t *testing.T) {
	mux, m, _ := setup(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snap site.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Len(t, snap.System, 6)
	assert.Equal(t, "refresh", m.GetAuditLog(1)[0].Action)
}

func TestFormBool(t *testing.T) {
	for in, want := range map[string]bool{
		"": false, "off": false, "on": true, "ON": true, "true": true, "1": true,
		"false": false, "0": false, "nope": false, "yes": false,
	} {
		assert.Equal(t, want, formBool(in), "%q", in)
	}
}
