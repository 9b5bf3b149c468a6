package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thesandybridge/kb-index/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Index a directory, then re-index files as they change",
	Long: `Watch runs a full index of the directory and then re-indexes files shortly
after they are created or written. Deleted files are logged; their chunks stay
in the vector store.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	return watcher.Run(ctx, components.Indexer, args[0], watcher.WithLogger(logger))
}
