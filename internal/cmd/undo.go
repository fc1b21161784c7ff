package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Digital-Shane/media-sidecar/internal/log"
	"github.com/Digital-Shane/media-sidecar/internal/tui/theme"
	undotui "github.com/Digital-Shane/media-sidecar/internal/tui/undo"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var undoCmd = &cobra.Command{
	Use:   "undo [session-id]",
	Short: "Remove the sidecars and posters written by a previous run",
	Long: `Remove every file a previous run wrote. Without an argument the most recent
session is undone; otherwise pass a session id or a unique prefix of one.

Use --list to show recent sessions, or --interactive to browse them and pick
one. Media files are never touched.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUndoCommand,
}

var (
	listSessions bool
	listLimit    int
	interactive  bool
)

func runUndoCommand(cmd *cobra.Command, args []string) error {
	dir, err := log.DefaultSessionDir()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if listSessions {
		summaries, err := log.ListSessions(dir, listLimit)
		if err != nil {
			return fmt.Errorf("failed to read log sessions: %w", err)
		}
		if len(summaries) == 0 {
			fmt.Fprintln(out, "No sessions found.")
			return nil
		}
		for _, s := range summaries {
			md := s.Session.Metadata
			fmt.Fprintf(out, "%s  %-14s %-8s %d written, %d unmatched, %d failed\n",
				shortID(md.SessionID), s.RelativeTime, commandName(md.CommandArgs),
				md.Processed, md.Unmatched, md.Failed)
		}
		return nil
	}

	if interactive {
		return runInteractiveUndo(cmd, dir)
	}

	id := ""
	if len(args) > 0 {
		id = args[0]
	}
	session, path, err := log.FindSession(dir, id)
	if errors.Is(err, log.ErrNoSessions) && id == "" {
		fmt.Fprintln(out, "No sessions found to undo.")
		return nil
	}
	if err != nil {
		return err
	}

	successful, failed, errs := log.UndoSession(session)
	fmt.Fprintf(out, "Undid session %s: %d file(s) removed, %d failed\n",
		shortID(session.Metadata.SessionID), successful, failed)
	for _, e := range errs {
		fmt.Fprintf(cmd.ErrOrStderr(), "  %v\n", e)
	}
	if failed > 0 {
		return fmt.Errorf("%d file(s) could not be removed; session log kept at %s", failed, path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove session log: %w", err)
	}
	return nil
}

func runInteractiveUndo(cmd *cobra.Command, dir string) error {
	summaries, err := log.ListSessions(dir, listLimit)
	if err != nil {
		return fmt.Errorf("failed to read log sessions: %w", err)
	}
	if len(summaries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions found to undo.")
		return nil
	}

	th := theme.Default()
	tree := undotui.NewSessionTree(summaries, th)
	if _, err := tree.SetFocusedID(cmd.Context(), summaries[0].Session.Metadata.SessionID); err != nil {
		return err
	}
	model := undotui.NewUndoModel(tree, undotui.WithTheme(th))
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return err
	}

	undone, successful, failed, ok := model.Result()
	if !ok {
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Undid session %s: %d file(s) removed, %d failed\n",
		shortID(undone.Session.Metadata.SessionID), successful, failed)
	if failed > 0 {
		return fmt.Errorf("%d file(s) could not be removed; session log kept at %s", failed, undone.FilePath)
	}
	return os.Remove(undone.FilePath)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func commandName(args []string) string {
	if len(args) == 0 {
		return "?"
	}
	return strings.TrimSpace(args[0])
}

func init() {
	undoCmd.Flags().BoolVarP(&listSessions, "list", "l", false, "List recent sessions instead of undoing")
	undoCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Browse sessions and choose one to undo")
	undoCmd.Flags().IntVar(&listLimit, "limit", 10, "Number of sessions to list (0 for all)")
	rootCmd.AddCommand(undoCmd)
}
