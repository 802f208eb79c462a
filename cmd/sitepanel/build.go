package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/llamawrapper/sitepanel/internal/config"
	"github.com/llamawrapper/sitepanel/internal/posts"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build posts.json from the markdown content directory",
	Long: `build reads every markdown file under the content directory (default
./content), takes id, title, summary, tags, project, voice_id and published_at
from the front matter, and writes the sorted snapshot (default ./public/posts.json).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runBuild(appConfig, logger)
		return err
	},
}

// runBuild writes the snapshot and returns how many posts it holds.
func runBuild(cfg *config.Config, logger *zap.Logger) (int, error) {
	payload, err := posts.NewBuilder(cfg.Content.Dir, logger).Build()
	if err != nil {
		return 0, fmt.Errorf("building posts: %w", err)
	}
	if err := posts.WriteSnapshot(cfg.Content.Output, payload); err != nil {
		return 0, fmt.Errorf("writing snapshot: %w", err)
	}
	logger.Info("wrote posts snapshot",
		zap.String("path", cfg.Content.Output),
		zap.Int("posts", len(payload.Posts)))
	return len(payload.Posts), nil
}
