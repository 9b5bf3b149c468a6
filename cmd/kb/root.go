package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thesandybridge/kb-index/internal/config"
	"github.com/thesandybridge/kb-index/pkg/utils"
)

var version = "dev"

var (
	configPath string
	debugFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "kb",
	Short: "Index a directory into a vector store and ask it questions",
	Long: `kb keeps a vector store in sync with a local directory and answers
natural-language questions against it, optionally synthesizing an answer
with a chat model. Sessions keep a short history for follow-up questions.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default <user config dir>/kb-index/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
}

// loadConfig loads the config file, creating it with defaults on first use, and returns
// the path that was loaded.
func loadConfig() (*config.Config, string, error) {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, "", err
		}
	}
	cfg, created, err := config.LoadOrCreate(path)
	if err != nil {
		return nil, "", err
	}
	if created {
		fmt.Println(noticeStyle.Render("Created default config at " + path))
	}
	if debugFlag {
		cfg.Debug = true
	}
	return cfg, path, nil
}

// newLogger returns the process logger. Interactive commands only log when debugging;
// long-running ones always do.
func newLogger(cfg *config.Config, longRunning bool) (*zap.Logger, error) {
	if !cfg.Debug && !longRunning {
		return zap.NewNop(), nil
	}
	return utils.NewLogger(cfg.Debug)
}
