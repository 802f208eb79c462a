package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/llamawrapper/sitepanel/internal/config"
	"github.com/llamawrapper/sitepanel/internal/logging"
)

var (
	cfgFile   string
	appConfig *config.Config
	logger    = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "sitepanel",
	Short: "Static site panel for a local inference, retrieval and audio stack",
	Long: `sitepanel builds posts.json from markdown content and serves a page that
shows those posts next to live status of the local llm, rag and audio services.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initialize()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "path to configuration file (missing file means defaults)")
	rootCmd.AddCommand(buildCmd, serveCmd, statusCmd)
}

func initialize() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	l, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	appConfig = cfg
	logger = l
	if cfg.ConfigPath() != "" {
		logger.Debug("using config file", zap.String("path", cfg.ConfigPath()))
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
