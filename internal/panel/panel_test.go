package panel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llamawrapper/sitepanel/internal/posts"
	"github.com/llamawrapper/sitepanel/internal/status"
)

func intp(v int) *int           { return &v }
func boolp(v bool) *bool        { return &v }
func floatp(v float64) *float64 { return &v }

func TestAbbreviateModelID(t *testing.T) {
	for _, n := range []int{0, 1, 45, 52} {
		id := strings.Repeat("m", n)
		assert.Equal(t, id, AbbreviateModelID(id), "length %d is unchanged", n)
	}

	id := "mlx-community/Meta-Llama-3.1-70B-Instruct-abliterated-4bit-mlx-q4"
	require.Greater(t, len(id), maxModelIDLen)
	got := AbbreviateModelID(id)
	assert.Equal(t, id[:24]+"..."+id[len(id)-18:], got)
	assert.Len(t, got, 45)

	exact := strings.Repeat("a", 24) + strings.Repeat("b", 11) + strings.Repeat("c", 18)
	assert.Equal(t, strings.Repeat("a", 24)+"..."+strings.Repeat("c", 18), AbbreviateModelID(exact))
}

func TestConfigSummary(t *testing.T) {
	tests := []struct {
		name string
		cfg  *status.RuntimeConfig
		want string
	}{
		{"nil", nil, "-"},
		{"empty", &status.RuntimeConfig{}, "-"},
		{"all", &status.RuntimeConfig{
			MaxConcurrency: intp(2),
			QueueSize:      intp(16),
			QueueTimeout:   floatp(30),
			MLXWarmup:      boolp(true),
		}, "concurrency 2 · queue 16 · timeout 30s · warmup on"},
		{"partial", &status.RuntimeConfig{QueueTimeout: floatp(2.5), MLXWarmup: boolp(false)}, "timeout 2.5s · warmup off"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConfigSummary(tt.cfg))
		})
	}
}

func TestLLMDocs(t *testing.T) {
	assert.Equal(t, "m1", LLMDocs("  m1 ", boolp(false)))
	assert.Equal(t, "loaded", LLMDocs("", boolp(true)))
	assert.Equal(t, "unloaded", LLMDocs("", boolp(false)))
	assert.Equal(t, "-", LLMDocs("", nil))
	assert.Equal(t, "-", LLMDocs("   ", nil))
}

func TestRuntime(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		v := Runtime(nil, "")
		assert.False(t, v.Available)
		assert.Equal(t, "unreachable", v.Status)
		assert.Equal(t, "-", v.Source)
		assert.Equal(t, "-", v.Model)
		assert.Equal(t, "-", v.Config)
	})

	t.Run("full", func(t *testing.T) {
		s := &status.ModelRuntimeStatus{
			Status:    "ok",
			Loaded:    boolp(true),
			ModelID:   "m1",
			ModelType: "chat",
			Queue: &status.Queue{
				QueueStats:    &status.QueueStats{ActiveRequests: intp(1), QueueSize: intp(0)},
				ActiveStreams: intp(3),
			},
			Config: &status.RuntimeConfig{MaxConcurrency: intp(4)},
		}
		v := Runtime(s, "diagnostics")
		assert.True(t, v.Available)
		assert.Equal(t, "diagnostics", v.Source)
		assert.Equal(t, "ok", v.Status)
		assert.Equal(t, "m1", v.Model)
		assert.Equal(t, "-", v.Path)
		assert.Equal(t, "chat", v.Type)
		assert.Equal(t, "yes", v.Loaded)
		assert.Equal(t, "1", v.ActiveRequests)
		assert.Equal(t, "0", v.QueueSize)
		assert.Equal(t, "3", v.ActiveStreams)
		assert.Equal(t, "concurrency 4", v.Config)
	})

	t.Run("queue without stats", func(t *testing.T) {
		v := Runtime(&status.ModelRuntimeStatus{Queue: &status.Queue{}}, "models/status")
		assert.Equal(t, "-", v.ActiveRequests)
		assert.Equal(t, "-", v.ActiveStreams)
		assert.Equal(t, "-", v.Loaded)
	})
}

func TestModelOptions(t *testing.T) {
	opts := ModelOptions([]string{"a", "b"}, "b")
	require.Len(t, opts, 2)
	assert.False(t, opts[0].Selected)
	assert.True(t, opts[1].Selected)

	opts = ModelOptions([]string{"a"}, "z")
	require.Len(t, opts, 2)
	assert.Equal(t, "z", opts[0].Value)
	assert.True(t, opts[0].Selected)

	assert.Empty(t, ModelOptions(nil, ""))
}

func TestPosts(t *testing.T) {
	views := Posts([]posts.Post{
		{ID: "p1", Title: "One", Tags: []string{"x", "y"}, Project: "anthology", PublishedAt: "2025-01-01T00:00:00Z"},
		{ID: "p2", Title: "Two"},
	})
	require.Len(t, views, 2)
	assert.Equal(t, "x, y", views[0].Tags)
	assert.Equal(t, "2025-01-01", views[0].Published)
	assert.Equal(t, "-", views[1].Tags)
	assert.Equal(t, "-", views[1].Summary)
	assert.Equal(t, "-", views[1].Published)

	projects := ProjectPosts(views)
	require.Len(t, projects, 1)
	assert.Equal(t, "p1", projects[0].ID)
}

func TestRows(t *testing.T) {
	rows := Rows([]status.SystemRow{{Resource: "blog", Type: status.TypeCollection, Status: status.RowUnknown}})
	assert.Equal(t, status.SystemRow{
		Resource: "blog", Type: "collection", Status: "unknown",
		Docs: "-", Updated: "-", Endpoint: "-",
	}, rows[0])
}
