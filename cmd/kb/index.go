package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/thesandybridge/kb-index/internal/indexer"
)

var indexCmd = &cobra.Command{
	Use:   "index <path>",
	Short: "Index a file or directory into the vector store",
	Long: `Index walks the path, keeps files with an allowed extension that are not
excluded by .gitignore or .kbignore, and syncs each changed file: new chunks are
embedded and stored, chunks that disappeared are deleted. Unchanged files are
skipped without any remote call.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var bar *pterm.ProgressbarPrinter
	var chunks atomic.Int64
	progress := func(path string, done, total int) {
		if bar == nil {
			return
		}
		bar.UpdateTitle(fmt.Sprintf("Indexing (%d chunks embedded)", chunks.Load()))
		bar.Increment()
	}
	components, err := initializeComponents(cfg, logger,
		indexer.WithProgress(progress),
		indexer.WithChunkProgress(func() { chunks.Add(1) }))
	if err != nil {
		return err
	}
	defer components.Close()

	root, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	files, err := components.Indexer.Walker().Walk(root)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println(noticeStyle.Render("No indexable files under " + root))
		return nil
	}

	bar, _ = pterm.DefaultProgressbar.WithTotal(len(files)).WithTitle("Indexing").Start()
	stats, err := components.Indexer.IndexFiles(ctx, files)
	if bar != nil {
		_, _ = bar.Stop()
	}

	printStats(stats)
	if err != nil {
		return fmt.Errorf("indexing incomplete: %w", err)
	}
	fmt.Println(successStyle.Render("Indexing complete."))
	return nil
}

func printStats(s indexer.Stats) {
	fmt.Printf("Files: %d seen, %d indexed, %d unchanged, %d failed\n",
		s.FilesSeen, s.FilesIndexed, s.FilesSkipped, s.FilesFailed)
	fmt.Println(dimStyle.Render(fmt.Sprintf("Chunks: %d added, %d unchanged, %d deleted, %d failed",
		s.ChunksAdded, s.ChunksUnchanged, s.ChunksDeleted, s.ChunksFailed)))
}
