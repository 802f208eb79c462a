package posts

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llamawrapper/sitepanel/internal/probe"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func fixedBuilder(dir string) *Builder {
	b := NewBuilder(dir, nil)
	b.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return b
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "older.md", `---
id: older-001
title: Older <em>Post</em>
summary: The first one
tags: [a, " b ", ""]
published_at: 2024-12-01
---
Body text.
`)
	writeFile(t, dir, "nested/newer.md", `---
title: Newer
project: anthology
voice_id: narrator-1
date: 2025-02-01T08:00:00Z
---
# Ignored heading

First paragraph of the newer post.

Second paragraph.
`)
	writeFile(t, dir, "my_undated-note.md", "Just a body with **no** front matter.\n")
	writeFile(t, dir, "draft.md", "---\ndraft: true\ntitle: Hidden\n---\nnope\n")
	writeFile(t, dir, "notes.txt", "not markdown")

	payload, err := fixedBuilder(dir).Build()
	require.NoError(t, err)

	assert.Equal(t, "2025-06-01T12:00:00Z", payload.GeneratedAt)
	require.Len(t, payload.Posts, 3)

	newer, older, undated := payload.Posts[0], payload.Posts[1], payload.Posts[2]

	assert.Equal(t, "newer", newer.ID)
	assert.Equal(t, "Newer", newer.Title)
	assert.Equal(t, "First paragraph of the newer post.", newer.Summary)
	assert.Equal(t, "anthology", newer.Project)
	assert.Equal(t, "narrator-1", newer.VoiceID)
	assert.Equal(t, "2025-02-01T08:00:00Z", newer.PublishedAt)
	assert.Equal(t, "nested/newer.md", newer.SourcePath)

	assert.Equal(t, "older-001", older.ID)
	assert.Equal(t, "Older Post", older.Title, "markup is stripped")
	assert.Equal(t, []string{"a", "b"}, older.Tags)
	assert.Equal(t, "2024-12-01T00:00:00Z", older.PublishedAt)

	assert.Equal(t, "my_undated-note", undated.ID)
	assert.Equal(t, "My Undated Note", undated.Title)
	assert.Equal(t, "Just a body with no front matter.", undated.Summary)
	assert.Empty(t, undated.PublishedAt)
}

func TestBuild_DuplicateID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "---\nid: same\n---\nx\n")
	writeFile(t, dir, "b.md", "---\nid: same\n---\ny\n")

	_, err := fixedBuilder(dir).Build()
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestBuild_MissingDir(t *testing.T) {
	_, err := fixedBuilder(filepath.Join(t.TempDir(), "missing")).Build()
	assert.Error(t, err)
}

func TestBuild_BadFrontMatter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.md", "---\ntitle: [unclosed\n---\nbody\n")

	_, err := fixedBuilder(dir).Build()
	assert.Error(t, err)
}

func TestParse_LongSummaryIsTruncated(t *testing.T) {
	long := strings.Repeat("word ", 100)
	post, _, err := fixedBuilder(".").Parse("long.md", []byte(long))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(post.Summary, "..."))
	assert.LessOrEqual(t, len([]rune(post.Summary)), maxSummaryLen+3)
}

func TestWriteSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "public", "posts.json")
	payload := &Payload{
		GeneratedAt: "2025-06-01T12:00:00Z",
		Posts:       []Post{{ID: "p1", Title: "One"}},
	}
	require.NoError(t, WriteSnapshot(path, payload))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(data, []byte("}\n")), "trailing newline")
	assert.Contains(t, string(data), "\n  \"generated_at\": \"2025-06-01T12:00:00Z\",\n")
	assert.Contains(t, string(data), `"tags": []`, "tags always encode as a list")

	back, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "p1", back.Posts[0].ID)
}

func TestDecode_RequiresPostsList(t *testing.T) {
	_, err := Decode([]byte(`{"generated_at":"x"}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`{"posts":{}}`))
	assert.Error(t, err)
}

func TestFallback(t *testing.T) {
	p := Fallback()
	require.Len(t, p.Posts, 4)
	assert.Equal(t, "systems-004", p.Posts[3].ID)
}

func TestLoader(t *testing.T) {
	dir := t.TempDir()
	snapshot := filepath.Join(dir, "posts.json")
	require.NoError(t, WriteSnapshot(snapshot, &Payload{GeneratedAt: "g", Posts: []Post{{ID: "only", Title: "Only"}}}))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, snapshot)
	}))
	defer srv.Close()

	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL + "/posts.json"
	down.Close()

	tests := []struct {
		name         string
		source       string
		wantSnapshot bool
		wantFirst    string
	}{
		{"file", snapshot, true, "only"},
		{"url", srv.URL + "/posts.json", true, "only"},
		{"missing file", filepath.Join(dir, "nope.json"), false, "anthology-001"},
		{"unreachable url", downURL, false, "anthology-001"},
		{"empty source", "", false, "anthology-001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, fromSnapshot := NewLoader(tt.source, probe.New(), nil).Load(context.Background())
			assert.Equal(t, tt.wantSnapshot, fromSnapshot)
			require.NotEmpty(t, p.Posts)
			assert.Equal(t, tt.wantFirst, p.Posts[0].ID)
		})
	}
}

func TestLoader_StalledSourceFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	l := NewLoader(srv.URL+"/posts.json", probe.New(probe.WithTimeout(100*time.Millisecond)), nil)
	start := time.Now()
	p, fromSnapshot := l.Load(context.Background())

	assert.False(t, fromSnapshot)
	assert.Len(t, p.Posts, len(Fallback().Posts))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestSortPosts(t *testing.T) {
	list := []Post{
		{ID: "b"},
		{ID: "old", PublishedAt: "2020-01-01T00:00:00Z"},
		{ID: "a"},
		{ID: "new", PublishedAt: "2024-01-01T00:00:00Z"},
	}
	SortPosts(list)
	var ids []string
	for _, p := range list {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"new", "old", "a", "b"}, ids)
}
