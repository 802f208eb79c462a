package main

import (
	"time"

	"go.uber.org/zap"

	"github.com/llamawrapper/sitepanel/internal/cache"
	"github.com/llamawrapper/sitepanel/internal/config"
	"github.com/llamawrapper/sitepanel/internal/metrics"
	"github.com/llamawrapper/sitepanel/internal/page"
	"github.com/llamawrapper/sitepanel/internal/posts"
	"github.com/llamawrapper/sitepanel/internal/probe"
	"github.com/llamawrapper/sitepanel/internal/site"
)

// stack is everything a command needs to bootstrap the page.
type stack struct {
	shell   *page.Shell
	loader  *posts.Loader
	cache   cache.Store      // nil if disabled
	metrics *metrics.Metrics // nil if disabled
	site    *site.Site
}

func newStack(cfg *config.Config, logger *zap.Logger, serving bool) (*stack, error) {
	shell, err := page.Load(cfg.Page.Shell)
	if err != nil {
		return nil, err
	}
	endpoints := cfg.ResolveEndpoints(shell.Endpoints())

	st := &stack{shell: shell}
	if serving && cfg.Metrics.Enabled {
		st.metrics = metrics.New()
	}

	opts := []probe.Option{
		probe.WithTimeout(time.Duration(cfg.Probe.TimeoutMs) * time.Millisecond),
		probe.WithLogger(logger),
	}
	if st.metrics != nil {
		opts = append(opts, probe.WithRecorder(st.metrics))
	}
	prober := probe.New(opts...)
	st.loader = posts.NewLoader(cfg.Page.PostsSource, prober, logger)

	if serving {
		st.cache, err = cache.New(cfg.Cache, logger)
		if err != nil {
			return nil, err
		}
	}

	st.site = site.New(site.Options{
		Shell:       shell,
		Upstream:    probe.NewUpstream(prober, endpoints),
		Loader:      st.loader,
		Collections: cfg.Collections,
		Parallel:    cfg.Probe.Parallel,
		Cache:       st.cache,
		Metrics:     st.metrics,
		Logger:      logger,
	})

	for _, p := range page.Panels {
		if missing := shell.Missing(p); len(missing) > 0 {
			logger.Info("panel disabled by page shell", zap.String("panel", string(p)), zap.Strings("missing", missing))
		}
	}
	logger.Info("upstream endpoints",
		zap.String("llm", endpoints.LLM),
		zap.String("rag", endpoints.RAG),
		zap.String("audio", endpoints.Audio))
	return st, nil
}

func (st *stack) Close() {
	if st.cache != nil {
		st.cache.Close()
	}
}
