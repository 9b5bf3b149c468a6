package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/thesandybridge/kb-index/internal/query"
	"github.com/thesandybridge/kb-index/internal/render"
)

var (
	queryTopK    int
	queryFormat  string
	querySession string
)

var queryCmd = &cobra.Command{
	Use:   "query <question...>",
	Short: "Search the index, or ask the chat model with --format smart",
	Long: `Query embeds the question and returns the closest chunks as json, markdown or
pretty output. With --format smart the chunks are sent to the chat model together
with the recent turns of the active session, and the answer is cached so that a
near-identical question is answered without another search.

--session new starts a new session; --session <id> switches to an existing one.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVar(&queryTopK, "top-k", 0, "number of chunks to retrieve (default from config)")
	queryCmd.Flags().StringVar(&queryFormat, "format", "", "output format: json, markdown, pretty or smart (default from config)")
	queryCmd.Flags().StringVar(&querySession, "session", "", `session to use: "new" or a session id`)
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	formatName := queryFormat
	if formatName == "" {
		formatName = cfg.Query.Format
	}
	format, err := query.ParseFormat(formatName)
	if err != nil {
		return err
	}
	topK := queryTopK
	if topK <= 0 {
		topK = cfg.Query.TopK
	}

	logger, err := newLogger(cfg, false)
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

	var spinner *pterm.SpinnerPrinter
	if format == query.FormatSmart {
		spinner, _ = pterm.DefaultSpinner.WithStyle(pterm.NewStyle(pterm.FgCyan)).
			WithRemoveWhenDone(true).Start("Thinking...")
	}
	resp, err := components.Engine.Run(ctx, query.Request{
		Query:   strings.Join(args, " "),
		TopK:    topK,
		Format:  format,
		Session: querySession,
	})
	if spinner != nil {
		_ = spinner.Stop()
	}
	if err != nil {
		return err
	}

	if resp.Answer == "" && resp.SessionCreated {
		fmt.Fprintln(os.Stderr, noticeStyle.Render("Created session: "+resp.SessionID))
	}
	return render.New(os.Stdout, cfg.SyntaxTheme).Response(resp)
}
