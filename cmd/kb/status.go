package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thesandybridge/kb-index/internal/config"
	"github.com/thesandybridge/kb-index/internal/render"
	"github.com/thesandybridge/kb-index/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the local index state, query cache and sessions",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// statusPaths returns local files besides the snapshots that count toward disk usage.
func statusPaths(cfg *config.Config) []string {
	if cfg.VectorStore.Backend == config.BackendSQLite {
		return []string{cfg.VectorStore.SQLitePath}
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := state.NewStore(cfg.StateDir).Status(statusPaths(cfg)...)
	if err != nil {
		return err
	}
	fmt.Printf("State directory:  %s\n", cfg.StateDir)
	fmt.Printf("Vector store:     %s (%s)\n", cfg.VectorStore.Backend, cfg.VectorStore.Collection)
	fmt.Printf("Indexed files:    %d (%d chunks)\n", st.Files, st.Chunks)
	fmt.Printf("Cached answers:   %d\n", st.CachedAnswers)
	active := "none"
	if st.ActiveSession != "" {
		active = render.ShortID(st.ActiveSession)
	}
	fmt.Printf("Sessions:         %d (active: %s)\n", st.Sessions, active)
	fmt.Println(dimStyle.Render(fmt.Sprintf("Disk usage:       %d bytes", st.DiskUsageBytes)))
	return nil
}
