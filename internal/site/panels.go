package site

import (
	"context"
	"errors"

	"github.com/llamawrapper/sitepanel/internal/config"
	"github.com/llamawrapper/sitepanel/internal/panel"
	"github.com/llamawrapper/sitepanel/internal/posts"
	"github.com/llamawrapper/sitepanel/internal/status"
)

// ErrChatUnavailable is returned by every chat send.
var ErrChatUnavailable = errors.New("chat is not available")

const chatNotice = "chat is offline: no conversation backend is wired to this panel"

// BootPanel renders the static terminal text.
type BootPanel struct {
	endpoints   config.EndpointsConfig
	collections []string
}

func (p *BootPanel) Lines() []string {
	return panel.BootLines(p.endpoints, p.collections)
}

// PostsState is what the posts panel shows.
type PostsState struct {
	GeneratedAt  string           `json:"generated_at"`
	FromSnapshot bool             `json:"from_snapshot"`
	Source       string           `json:"source"`
	Posts        []panel.PostView `json:"posts"`
	Projects     []panel.PostView `json:"projects"`
}

// PostsPanel loads the snapshot and maps it for display.
type PostsPanel struct {
	loader *posts.Loader
}

// Load never fails: an unreadable snapshot yields the embedded fallback posts.
func (p *PostsPanel) Load(ctx context.Context) *PostsState {
	payload, fromSnapshot := p.loader.Load(ctx)
	list := panel.Posts(payload.Posts)
	generated := ""
	if payload.GeneratedAt != "" {
		generated = status.FormatTimestamp(payload.GeneratedAt)
	}
	return &PostsState{
		GeneratedAt:  generated,
		FromSnapshot: fromSnapshot,
		Source:       p.loader.Source(),
		Posts:        list,
		Projects:     panel.ProjectPosts(list),
	}
}

// ChatPanel is a placeholder with no conversation backend.
type ChatPanel struct{}

// Send always fails with ErrChatUnavailable.
func (ChatPanel) Send(context.Context, string) (string, error) {
	return "", ErrChatUnavailable
}

// Notice is the text shown in the chat log.
func (ChatPanel) Notice() string { return chatNotice }
