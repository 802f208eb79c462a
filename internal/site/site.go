// Package site wires the page panels together and runs the bootstrap
// sequence: boot text, posts, the status table, then the runtime panel.
package site

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/llamawrapper/sitepanel/internal/cache"
	"github.com/llamawrapper/sitepanel/internal/config"
	"github.com/llamawrapper/sitepanel/internal/metrics"
	"github.com/llamawrapper/sitepanel/internal/page"
	"github.com/llamawrapper/sitepanel/internal/panel"
	"github.com/llamawrapper/sitepanel/internal/posts"
	"github.com/llamawrapper/sitepanel/internal/probe"
	"github.com/llamawrapper/sitepanel/internal/status"
)

// ErrPanelSkipped is returned when an operation targets a panel the page
// shell has no elements for.
var ErrPanelSkipped = errors.New("panel is not present in the page shell")

type Options struct {
	Shell       *page.Shell
	Upstream    *probe.Upstream
	Loader      *posts.Loader
	Collections []string
	Parallel    bool
	Cache       cache.Store      // optional
	Metrics     *metrics.Metrics // optional
	Logger      *zap.Logger
}

// Site holds one component per page panel. A panel whose elements are
// missing from the shell is nil.
type Site struct {
	Boot    *BootPanel
	Posts   *PostsPanel
	System  *SystemPanel
	Runtime *RuntimePanel
	Chat    *ChatPanel

	shell    *page.Shell
	upstream *probe.Upstream
	loader   *posts.Loader
	cache    cache.Store
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// Snapshot is the result of one bootstrap. Fields of skipped panels are empty.
type Snapshot struct {
	Boot       []string           `json:"boot,omitempty"`
	Posts      *PostsState        `json:"posts,omitempty"`
	System     []status.SystemRow `json:"system,omitempty"`
	Runtime    *panel.RuntimeView `json:"runtime,omitempty"`
	Chat       string             `json:"chat,omitempty"`
	RenderedAt string             `json:"rendered_at"`
}

func New(opts Options) *Site {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("site")
	shell := opts.Shell
	if shell == nil {
		shell = page.Default()
	}
	collections := opts.Collections
	if len(collections) == 0 {
		collections = config.DefaultCollections
	}

	s := &Site{
		shell:    shell,
		upstream: opts.Upstream,
		loader:   opts.Loader,
		cache:    opts.Cache,
		metrics:  opts.Metrics,
		logger:   logger,
	}

	for _, p := range page.Panels {
		if !shell.Supports(p) {
			logger.Debug("skipping panel", zap.String("panel", string(p)), zap.Strings("missing", shell.Missing(p)))
			continue
		}
		switch p {
		case page.PanelBoot:
			s.Boot = &BootPanel{endpoints: opts.Upstream.Endpoints(), collections: collections}
		case page.PanelPosts:
			s.Posts = &PostsPanel{loader: opts.Loader}
		case page.PanelSystem:
			s.System = &SystemPanel{
				upstream:    opts.Upstream,
				collections: collections,
				parallel:    opts.Parallel,
				logger:      logger.Named("system"),
			}
		case page.PanelRuntime:
			s.Runtime = &RuntimePanel{upstream: opts.Upstream, logger: logger.Named("runtime")}
		case page.PanelChat:
			s.Chat = &ChatPanel{}
		}
	}
	return s
}

// Shell returns the page shell panels render into.
func (s *Site) Shell() *page.Shell { return s.shell }

// Endpoints returns the resolved upstream base URLs.
func (s *Site) Endpoints() config.EndpointsConfig { return s.upstream.Endpoints() }

// Bootstrap runs the full sequence against the upstream services. It
// always completes: failures show up as fallback posts and down rows.
func (s *Site) Bootstrap(ctx context.Context) *Snapshot {
	snap := &Snapshot{}
	if s.Boot != nil {
		snap.Boot = s.Boot.Lines()
	}
	if s.Posts != nil {
		snap.Posts = s.Posts.Load(ctx)
	}
	if s.System != nil {
		snap.System = s.System.Rows(ctx)
	}
	if s.Runtime != nil {
		v := s.Runtime.Refresh(ctx)
		snap.Runtime = &v
	}
	if s.Chat != nil {
		snap.Chat = s.Chat.Notice()
	}
	snap.RenderedAt = time.Now().UTC().Format(time.RFC3339)
	return snap
}

func (s *Site) cacheKey() string {
	ep := s.upstream.Endpoints()
	return cache.Key("bootstrap", ep.LLM, ep.RAG, ep.Audio, s.loader.Source())
}

// Cached returns a recent snapshot when the cache holds one, bootstrapping
// otherwise. The runtime busy flag is always live.
func (s *Site) Cached(ctx context.Context) *Snapshot {
	if s.cache == nil {
		return s.Bootstrap(ctx)
	}

	key := s.cacheKey()
	if data, ok := s.cache.Get(ctx, key); ok {
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err == nil {
			s.recordCache(true)
			s.applyLive(&snap)
			return &snap
		}
		s.logger.Warn("discarding unreadable cached snapshot")
	}
	s.recordCache(false)

	snap := s.Bootstrap(ctx)
	s.store(ctx, key, snap)
	return snap
}

// Refresh re-runs the bootstrap, bypassing and then repopulating the cache.
func (s *Site) Refresh(ctx context.Context) *Snapshot {
	s.Invalidate(ctx)
	snap := s.Bootstrap(ctx)
	if s.cache != nil {
		s.store(ctx, s.cacheKey(), snap)
	}
	return snap
}

// Invalidate drops the cached snapshot.
func (s *Site) Invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Delete(ctx, s.cacheKey())
	}
}

func (s *Site) store(ctx context.Context, key string, snap *Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		s.logger.Warn("encoding snapshot for cache", zap.Error(err))
		return
	}
	s.cache.Set(ctx, key, data)
}

func (s *Site) recordCache(hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.RecordCacheHit()
	} else {
		s.metrics.RecordCacheMiss()
	}
}

func (s *Site) applyLive(snap *Snapshot) {
	if s.Runtime != nil && snap.Runtime != nil {
		snap.Runtime.Busy = s.Runtime.Busy()
		snap.Runtime.Message = s.Runtime.Message()
	}
}

// Render writes a snapshot into a fresh copy of the shell.
func (s *Site) Render(snap *Snapshot) (string, error) {
	doc, err := s.shell.Document()
	if err != nil {
		return "", err
	}
	if s.Boot != nil {
		if err := doc.WriteBoot(snap.Boot); err != nil {
			return "", err
		}
	}
	if s.Posts != nil && snap.Posts != nil {
		if err := doc.WritePosts(snap.Posts.Posts, snap.Posts.Projects, snap.Posts.GeneratedAt); err != nil {
			return "", err
		}
	}
	if s.System != nil {
		if err := doc.WriteSystem(snap.System); err != nil {
			return "", err
		}
	}
	if s.Runtime != nil && snap.Runtime != nil {
		if err := doc.WriteRuntime(*snap.Runtime); err != nil {
			return "", err
		}
	}
	if s.Chat != nil {
		doc.WriteChat(snap.Chat)
	}
	return doc.HTML()
}

// Page renders the cached (or fresh) snapshot.
func (s *Site) Page(ctx context.Context) (string, error) {
	return s.Render(s.Cached(ctx))
}

// SystemRows probes the status table directly.
func (s *Site) SystemRows(ctx context.Context) ([]status.SystemRow, error) {
	if s.System == nil {
		return nil, ErrPanelSkipped
	}
	return s.System.Rows(ctx), nil
}

// RuntimeView probes the runtime panel directly.
func (s *Site) RuntimeView(ctx context.Context) (panel.RuntimeView, error) {
	if s.Runtime == nil {
		return panel.RuntimeView{}, ErrPanelSkipped
	}
	return s.Runtime.Refresh(ctx), nil
}

// Models returns the model catalog options.
func (s *Site) Models(ctx context.Context) ([]panel.OptionView, bool, error) {
	if s.Runtime == nil {
		return nil, false, ErrPanelSkipped
	}
	opts, ok := s.Runtime.Models(ctx)
	return opts, ok, nil
}

// LoadModel runs a load through the runtime panel and drops the cached snapshot.
func (s *Site) LoadModel(ctx context.Context, modelID string, force bool) (ActionResult, error) {
	if s.Runtime == nil {
		return ActionResult{}, ErrPanelSkipped
	}
	res, err := s.Runtime.Load(ctx, modelID, force)
	if err == nil {
		s.Invalidate(ctx)
	}
	return res, err
}

// UnloadModel runs an unload through the runtime panel and drops the cached snapshot.
func (s *Site) UnloadModel(ctx context.Context, force bool) (ActionResult, error) {
	if s.Runtime == nil {
		return ActionResult{}, ErrPanelSkipped
	}
	res, err := s.Runtime.Unload(ctx, force)
	if err == nil {
		s.Invalidate(ctx)
	}
	return res, err
}

// NoteRuntime shows msg inline in the runtime panel. Cached snapshots pick it
// up on their next read.
func (s *Site) NoteRuntime(msg string) {
	if s.Runtime != nil {
		s.Runtime.SetMessage(msg)
	}
}

// SendChat forwards to the chat panel.
func (s *Site) SendChat(ctx context.Context, message string) (string, error) {
	if s.Chat == nil {
		return "", ErrPanelSkipped
	}
	reply, err := s.Chat.Send(ctx, message)
	if err != nil {
		return "", fmt.Errorf("sending chat message: %w", err)
	}
	return reply, nil
}
