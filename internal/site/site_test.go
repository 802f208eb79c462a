package site

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llamawrapper/sitepanel/internal/cache"
	"github.com/llamawrapper/sitepanel/internal/config"
	"github.com/llamawrapper/sitepanel/internal/metrics"
	"github.com/llamawrapper/sitepanel/internal/page"
	"github.com/llamawrapper/sitepanel/internal/posts"
	"github.com/llamawrapper/sitepanel/internal/probe"
	"github.com/llamawrapper/sitepanel/internal/status"
)

const aggregateBody = `{
  "services": {
    "llm":   {"ok": false, "loaded": false, "url": "http://llm.internal:8080"},
    "rag":   {"ok": true, "status": "ready"},
    "audio": {"ok": true},
    "vlm":   {"ok": true, "status": "idle"}
  },
  "collections": {
    "anthology": {"num_documents": 12, "updated_at": 1700000000},
    "blog": {}
  }
}`

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

func server(t *testing.T, mux *http.ServeMux) string {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

func deadURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	return srv.URL
}

type fixture struct {
	shell    *page.Shell
	ep       config.EndpointsConfig
	source   string
	parallel bool
	cache    cache.Store
	metrics  *metrics.Metrics
	timeout  time.Duration
}

func (f fixture) site(t *testing.T) *Site {
	t.Helper()
	if f.timeout == 0 {
		f.timeout = time.Second
	}
	p := probe.New(probe.WithTimeout(f.timeout))
	if f.source == "" {
		f.source = deadURL(t) + "/posts.json"
	}
	return New(Options{
		Shell:       f.shell,
		Upstream:    probe.NewUpstream(p, f.ep),
		Loader:      posts.NewLoader(f.source, p, nil),
		Collections: config.DefaultCollections,
		Parallel:    f.parallel,
		Cache:       f.cache,
		Metrics:     f.metrics,
	})
}

func TestBootstrap_Aggregate(t *testing.T) {
	llm := http.NewServeMux()
	llm.HandleFunc("/internal/ecosystem/status", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "anthology", r.URL.Query().Get("collection"))
		jsonHandler(aggregateBody)(w, r)
	})
	llm.HandleFunc("/internal/models/status", jsonHandler(`{"status":"idle","loaded":false}`))
	llm.HandleFunc("/v1/models", jsonHandler(`{"data":[{"id":"a"},{"id":"b"}]}`))
	llmURL := server(t, llm)
	ragURL := "http://127.0.0.1:8011"

	s := fixture{ep: config.EndpointsConfig{LLM: llmURL, RAG: ragURL, Audio: "http://127.0.0.1:7001"}}.site(t)
	snap := s.Bootstrap(context.Background())

	want := []status.SystemRow{
		{Resource: "mlx-llm", Type: "service", Status: "down", Docs: "unloaded", Updated: "-", Endpoint: "http://llm.internal:8080"},
		{Resource: "rag-service", Type: "service", Status: "ok", Docs: "ready", Updated: "-", Endpoint: ragURL},
		{Resource: "audio-service", Type: "service", Status: "ok", Docs: "-", Updated: "-", Endpoint: "http://127.0.0.1:7001"},
		{Resource: "vlm-service", Type: "service", Status: "ok", Docs: "idle", Updated: "-", Endpoint: "-"},
		{Resource: "anthology", Type: "collection", Status: "ok", Docs: "12", Updated: "2023-11-14 22:13", Endpoint: ragURL + "/rag_stats?collection=anthology"},
		{Resource: "blog", Type: "collection", Status: "ok", Docs: "-", Updated: "-", Endpoint: ragURL + "/rag_stats?collection=blog"},
		{Resource: "projects", Type: "collection", Status: "unknown", Docs: "-", Updated: "-", Endpoint: ragURL + "/rag_stats?collection=projects"},
	}
	assert.Equal(t, want, snap.System)

	require.NotNil(t, snap.Runtime)
	assert.Equal(t, "idle", snap.Runtime.Status)
	assert.Equal(t, "no", snap.Runtime.Loaded)
	assert.Len(t, snap.Runtime.Options, 2)
	assert.Equal(t, chatNotice, snap.Chat)
	assert.NotEmpty(t, snap.Boot)
}

func TestAggregate_LLMDocs(t *testing.T) {
	tests := []struct {
		name    string
		service string
		want    string
	}{
		{"model id wins", `{"ok":true,"model_id":"mlx-community/Qwen2.5-7B-Instruct-4bit","loaded":false}`, "mlx-community/Qwen2.5-7B-Instruct-4bit"},
		{"loaded", `{"ok":true,"loaded":true}`, "loaded"},
		{"unloaded", `{"ok":true,"loaded":false}`, "unloaded"},
		{"nothing", `{"ok":true}`, "-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/internal/ecosystem/status", jsonHandler(`{"services":{"llm":`+tt.service+`}}`))
			u := server(t, mux)
			s := fixture{ep: config.EndpointsConfig{LLM: u, RAG: u, Audio: u}}.site(t)

			rows, err := s.SystemRows(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "mlx-llm", rows[0].Resource)
			assert.Equal(t, tt.want, rows[0].Docs)
		})
	}
}

func TestSystem_DegradedPath(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		name := "sequential"
		if parallel {
			name = "parallel"
		}
		t.Run(name, func(t *testing.T) {
			llm := http.NewServeMux()
			llm.HandleFunc("/health", jsonHandler(`{"status":"ok","model_id":"org/model","loaded":true}`))

			rag := http.NewServeMux()
			rag.HandleFunc("/health", jsonHandler(`{"status":"ok"}`))
			rag.HandleFunc("/rag_stats", func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Query().Get("collection") {
				case "anthology":
					jsonHandler(`{"num_documents":3,"updated_at":"2024-05-01"}`)(w, r)
				case "projects":
					jsonHandler(`{"count":7}`)(w, r)
				default:
					http.Error(w, "no such collection", http.StatusInternalServerError)
				}
			})

			ep := config.EndpointsConfig{LLM: server(t, llm), RAG: server(t, rag), Audio: deadURL(t)}
			s := fixture{ep: ep, parallel: parallel}.site(t)

			rows, err := s.SystemRows(context.Background())
			require.NoError(t, err)

			var got []string
			for _, r := range rows {
				got = append(got, r.Resource+"="+r.Status+"/"+r.Docs+"/"+r.Updated)
			}
			assert.Equal(t, []string{
				"mlx-llm=ok/org/model/-",
				"rag-service=ok/ok/-",
				"audio-service=down/-/-",
				"anthology=ok/3/2024-05-01",
				"blog=down/-/-",
				"projects=ok/7/-",
			}, got)
			assert.Equal(t, ep.Audio, rows[2].Endpoint)
		})
	}
}

func TestSystem_StalledUpstreamTimesOut(t *testing.T) {
	stalled := func(w http.ResponseWriter, r *http.Request) { <-r.Context().Done() }
	rag := http.NewServeMux()
	rag.HandleFunc("/health", stalled)
	rag.HandleFunc("/rag_stats", stalled)
	ragURL := server(t, rag)

	for _, parallel := range []bool{false, true} {
		s := fixture{
			ep:       config.EndpointsConfig{LLM: deadURL(t), RAG: ragURL, Audio: deadURL(t)},
			parallel: parallel,
			timeout:  100 * time.Millisecond,
		}.site(t)

		done := make(chan []status.SystemRow, 1)
		go func() {
			rows, _ := s.SystemRows(context.Background())
			done <- rows
		}()

		select {
		case rows := <-done:
			require.Len(t, rows, 6)
			for _, row := range rows {
				assert.Equal(t, status.RowDown, row.Status, row.Resource)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("SystemRows did not return with a stalled rag service (parallel=%v)", parallel)
		}
	}
}

func TestBootstrap_FallbackPosts(t *testing.T) {
	s := fixture{ep: config.EndpointsConfig{LLM: deadURL(t), RAG: deadURL(t), Audio: deadURL(t)}}.site(t)
	snap := s.Bootstrap(context.Background())

	require.NotNil(t, snap.Posts)
	assert.False(t, snap.Posts.FromSnapshot)
	require.Len(t, snap.Posts.Posts, 4)
	assert.Equal(t, "systems-004", snap.Posts.Posts[3].ID)

	for _, r := range snap.System {
		assert.Equal(t, "down", r.Status, r.Resource)
	}
	require.NotNil(t, snap.Runtime)
	assert.False(t, snap.Runtime.Available)
	assert.Equal(t, "unreachable", snap.Runtime.Status)

	html, err := s.Render(snap)
	require.NoError(t, err)
	assert.Contains(t, html, `data-id="systems-004"`)
}

func TestRuntime_RejectsConcurrentAction(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var loads atomic.Int32

	llm := http.NewServeMux()
	llm.HandleFunc("/internal/models/load", func(w http.ResponseWriter, r *http.Request) {
		loads.Add(1)
		close(entered)
		<-release
		jsonHandler(`{"ok":true}`)(w, r)
	})
	llm.HandleFunc("/internal/models/status", jsonHandler(`{"status":"ok","loaded":true,"model_id":"m1"}`))
	u := server(t, llm)
	s := fixture{ep: config.EndpointsConfig{LLM: u, RAG: u, Audio: u}}.site(t)

	type outcome struct {
		res ActionResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.LoadModel(context.Background(), "m1", false)
		done <- outcome{res, err}
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		close(release)
		t.Fatal("load never reached the upstream")
	}

	assert.True(t, s.Runtime.Busy())
	_, err := s.UnloadModel(context.Background(), false)
	assert.ErrorIs(t, err, ErrPanelBusy)
	_, err = s.LoadModel(context.Background(), "m2", true)
	assert.ErrorIs(t, err, ErrPanelBusy)

	v, err := s.RuntimeView(context.Background())
	require.NoError(t, err)
	assert.True(t, v.Busy)
	html, err := s.Render(&Snapshot{Runtime: &v})
	require.NoError(t, err)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	_, disabled := doc.Find("#runtime-load").Attr("disabled")
	assert.True(t, disabled)

	close(release)
	out := <-done
	require.NoError(t, out.err)
	assert.True(t, out.res.OK)
	assert.Equal(t, "load ok", out.res.Message)
	assert.Equal(t, "load ok", out.res.Runtime.Message)
	assert.False(t, out.res.Runtime.Busy)
	assert.False(t, s.Runtime.Busy())
	assert.EqualValues(t, 1, loads.Load())
}

func TestRuntime_FailureMessages(t *testing.T) {
	llm := http.NewServeMux()
	llm.HandleFunc("/internal/models/load", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusInternalServerError)
	})
	u := server(t, llm)
	s := fixture{ep: config.EndpointsConfig{LLM: u, RAG: u, Audio: u}}.site(t)

	res, err := s.LoadModel(context.Background(), "missing", false)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "load failed: HTTP 500 model not found", res.Message)

	_, err = s.LoadModel(context.Background(), "  ", false)
	assert.ErrorIs(t, err, ErrModelRequired)

	dead := fixture{ep: config.EndpointsConfig{LLM: deadURL(t)}}.site(t)
	res, err = dead.UnloadModel(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Message, "unload failed: "), res.Message)
	assert.NotContains(t, res.Message, "HTTP")
}

func TestActionMessage_ClipsBody(t *testing.T) {
	msg := actionMessage("load", probe.Result{StatusCode: 502, Body: []byte(strings.Repeat("x", 400))})
	assert.Equal(t, "load failed: HTTP 502 "+strings.Repeat("x", maxMessageBody)+"...", msg)
	assert.Equal(t, "unload failed", actionMessage("unload", probe.Result{}))
}

func TestMissingPanelsAreSkipped(t *testing.T) {
	shell, err := page.Parse([]byte(`<html><body>
<div id="boot-terminal"></div>
<table id="system-table"><tbody id="system-rows"></tbody></table>
</body></html>`))
	require.NoError(t, err)

	s := fixture{shell: shell, ep: config.EndpointsConfig{LLM: deadURL(t), RAG: deadURL(t), Audio: deadURL(t)}}.site(t)
	assert.NotNil(t, s.Boot)
	assert.NotNil(t, s.System)
	assert.Nil(t, s.Posts)
	assert.Nil(t, s.Runtime)
	assert.Nil(t, s.Chat)

	snap := s.Bootstrap(context.Background())
	assert.Nil(t, snap.Posts)
	assert.Nil(t, snap.Runtime)
	assert.Len(t, snap.System, 6)

	_, err = s.LoadModel(context.Background(), "m", false)
	assert.ErrorIs(t, err, ErrPanelSkipped)
	_, err = s.SendChat(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrPanelSkipped)

	html, err := s.Render(snap)
	require.NoError(t, err)
	assert.Contains(t, html, `data-resource="mlx-llm"`)
}

func TestSendChat(t *testing.T) {
	s := fixture{ep: config.EndpointsConfig{LLM: deadURL(t)}}.site(t)
	_, err := s.SendChat(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrChatUnavailable)
}

func TestCached(t *testing.T) {
	var aggregateHits atomic.Int32
	llm := http.NewServeMux()
	llm.HandleFunc("/internal/ecosystem/status", func(w http.ResponseWriter, r *http.Request) {
		aggregateHits.Add(1)
		jsonHandler(aggregateBody)(w, r)
	})
	llm.HandleFunc("/internal/models/unload", jsonHandler(`{"ok":true}`))
	u := server(t, llm)

	store := cache.NewMemory(4, 60)
	t.Cleanup(func() { store.Close() })
	m := metrics.New()
	s := fixture{ep: config.EndpointsConfig{LLM: u, RAG: u, Audio: u}, cache: store, metrics: m}.site(t)
	ctx := context.Background()

	first := s.Cached(ctx)
	second := s.Cached(ctx)
	assert.Equal(t, first.System, second.System)
	assert.EqualValues(t, 1, aggregateHits.Load())
	assert.EqualValues(t, 1, m.GetSnapshot().CacheHits)
	assert.EqualValues(t, 1, m.GetSnapshot().CacheMisses)

	s.Refresh(ctx)
	assert.EqualValues(t, 2, aggregateHits.Load())
	s.Cached(ctx)
	assert.EqualValues(t, 2, aggregateHits.Load(), "refresh repopulates the cache")

	_, err := s.UnloadModel(ctx, false)
	require.NoError(t, err)
	s.Cached(ctx)
	assert.EqualValues(t, 3, aggregateHits.Load(), "actions invalidate the cache")

	html, err := s.Page(ctx)
	require.NoError(t, err)
	assert.Contains(t, html, "mlx-llm")
}
