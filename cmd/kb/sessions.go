package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/thesandybridge/kb-index/internal/render"
	"github.com/thesandybridge/kb-index/internal/state"
)

var (
	sessionsList   bool
	sessionsClear  bool
	sessionsSwitch string
	sessionsNew    bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List, switch, create or clear query sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().BoolVar(&sessionsList, "list", false, "list sessions")
	sessionsCmd.Flags().BoolVar(&sessionsClear, "clear", false, "delete the active session")
	sessionsCmd.Flags().StringVar(&sessionsSwitch, "switch", "", "make the session with this id active")
	sessionsCmd.Flags().BoolVar(&sessionsNew, "new", false, "create a new session and make it active")
	sessionsCmd.MarkFlagsMutuallyExclusive("clear", "switch", "new")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	snapshots := state.NewStore(cfg.StateDir)
	sessions, err := snapshots.LoadSessions()
	if err != nil {
		return err
	}

	switch {
	case sessionsClear:
		id, err := sessions.ClearActive()
		if errors.Is(err, state.ErrNoActiveSession) {
			fmt.Println(noticeStyle.Render("No active session to clear"))
			return nil
		}
		if err != nil {
			return err
		}
		if err := snapshots.SaveSessions(sessions); err != nil {
			return err
		}
		fmt.Println(successStyle.Render("Cleared session: " + id))
		return nil
	case sessionsSwitch != "":
		if err := sessions.SetActiveSession(sessionsSwitch); err != nil {
			return err
		}
		if err := snapshots.SaveSessions(sessions); err != nil {
			return err
		}
		fmt.Println(successStyle.Render("Switched to session: " + sessionsSwitch))
		return nil
	case sessionsNew:
		id := sessions.CreateSession()
		if err := snapshots.SaveSessions(sessions); err != nil {
			return err
		}
		fmt.Println(successStyle.Render("Created new session: " + id))
		return nil
	}

	return render.New(os.Stdout, cfg.SyntaxTheme).Sessions(sessions.ListSessions(), sessions.ActiveID())
}
