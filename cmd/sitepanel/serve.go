package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/llamawrapper/sitepanel/internal/admin"
	"github.com/llamawrapper/sitepanel/internal/api"
	"github.com/llamawrapper/sitepanel/internal/config"
	"github.com/llamawrapper/sitepanel/internal/dashboard"
	"github.com/llamawrapper/sitepanel/internal/middleware"
	"github.com/llamawrapper/sitepanel/internal/poller"
)

var watchContent bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the page, posts.json and the status endpoints",
	Long: `serve renders the page shell with posts and live service status and exposes
the JSON endpoints behind it. With --watch the content directory is rebuilt into
posts.json whenever a markdown file changes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVarP(&watchContent, "watch", "w", false, "rebuild posts.json when content changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	st, err := newStack(cfg, logger, true)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Poll.IntervalSec > 0 {
		p := poller.New(st.site, st.metrics, time.Duration(cfg.Poll.IntervalSec)*time.Second, logger)
		go p.Run(ctx)
		logger.Info("background refresh enabled", zap.Int("interval_sec", cfg.Poll.IntervalSec))
	}

	if watchContent {
		stop, err := watch(ctx, cfg, st, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	mux := http.NewServeMux()
	api.NewHandler(st.site, st.loader, st.cache, st.metrics, logger).RegisterRoutes(mux)
	admin.NewHandler(st.site, st.metrics, logger).RegisterRoutes(mux)
	dash := dashboard.NewHandler(st.site, st.metrics, cfg.Dashboard.Password, logger)
	if cfg.Auth.Enabled {
		dash.SetAdminKeys(cfg.Auth.AdminKeys)
	}
	dash.RegisterRoutes(mux)
	if st.metrics != nil {
		mux.HandleFunc("/metrics", st.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = middleware.CORS(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.RequestID(handler)
	if cfg.RateLimit.Enabled {
		handler = middleware.RateLimit(cfg.RateLimit)(handler)
	}
	if cfg.Auth.Enabled {
		// The page's own login form posts to "/" and carries no admin key.
		handler = middleware.Auth(cfg.Auth, "/")(handler)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Only the dashboard password and the snapshot pick up a reload; listen
	// address, endpoints and middleware need a restart.
	reload := func() error {
		next, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		dash.SetPassword(next.Dashboard.Password)
		st.site.Refresh(ctx)
		return nil
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

		for sig := range sigCh {
			switch sig {
			case syscall.SIGHUP:
				logger.Info("received SIGHUP, reloading configuration")
				if err := reload(); err != nil {
					logger.Error("config reload failed", zap.Error(err))
				}
			case syscall.SIGINT, syscall.SIGTERM:
				logger.Info("shutting down gracefully")
				cancel()

				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer shutdownCancel()
				server.Shutdown(shutdownCtx)
				return
			}
		}
	}()

	logger.Info("sitepanel listening", zap.String("addr", cfg.ListenAddr))
	logger.Info("routes",
		zap.Strings("page", []string{"GET /", "GET /login", "POST /refresh"}),
		zap.Strings("api", []string{"GET /posts.json", "GET /api/bootstrap", "GET /api/system", "GET /api/runtime", "GET /api/models", "GET /health"}),
		zap.Strings("actions", []string{"POST /api/runtime/load", "POST /api/runtime/unload", "POST /api/refresh", "POST /api/chat"}),
		zap.Bool("metrics", st.metrics != nil))

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
