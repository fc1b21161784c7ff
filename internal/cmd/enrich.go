package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Digital-Shane/media-sidecar/internal/core"
	"github.com/Digital-Shane/media-sidecar/internal/tui/progress"
	"github.com/Digital-Shane/media-sidecar/internal/tui/theme"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich [dir]",
	Short: "Write sidecars and posters for every media file under a directory",
	Long: `Walk the directory (the current one by default) and enrich every movie and
episode file found. Files are handled one at a time in directory order. Files
that are not video, or that OMDb does not know, are skipped and left
untouched.

The OMDb API key comes from --api-key, then the OMDB_API_KEY environment
variable, then the config file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEnrichCommand,
}

var (
	apiKey       string
	timeout      time.Duration
	showProgress bool
)

func runEnrichCommand(cmd *cobra.Command, args []string) error {
	root := rootArg(args)
	if err := requireDir(root); err != nil {
		return err
	}

	env, err := loadRuntime(cmd, showProgress)
	if err != nil {
		return err
	}
	key := resolveAPIKey(apiKey, env.cfg)
	if key == "" {
		return missingKeyError()
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	session := env.startSession("enrich", os.Args[1:])
	defer env.endSession(session)

	cfg := env.enrichConfig(key, timeout)
	cfg.Session = session

	var summary core.Summary
	if showProgress {
		summary, err = runWithProgress(ctx, root, cfg)
	} else {
		summary, err = core.Enrich(ctx, root, cfg)
	}
	if err != nil && !isCanceled(err) {
		return err
	}

	printSummary(cmd.OutOrStdout(), summary)
	if summary.Failed > 0 {
		return fmt.Errorf("%d file(s) failed", summary.Failed)
	}
	return nil
}

// runWithProgress runs the enrichment behind the progress screen.
func runWithProgress(ctx context.Context, root string, cfg core.EnrichConfig) (core.Summary, error) {
	model := progress.NewEnrichProgressModel(root, func(runCtx context.Context, observer func(core.Event)) (core.Summary, error) {
		runCtx, cancel := context.WithCancel(runCtx)
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()

		cfg.Observer = observer
		return core.Enrich(runCtx, root, cfg)
	}, theme.Default())

	_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && !isCanceled(err) && !errors.Is(err, tea.ErrProgramKilled) {
		return core.Summary{}, err
	}
	return model.Wait()
}

func requireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("media directory does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("media directory %s is not a directory", path)
	}
	return nil
}

func addLookupFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&apiKey, "api-key", "", "OMDb API key (overrides OMDB_API_KEY and the config file)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-request OMDb timeout, for example 5s (default from config)")
}

func init() {
	addLookupFlags(enrichCmd)
	enrichCmd.Flags().BoolVarP(&showProgress, "progress", "p", false, "Show a full-screen progress view")
	rootCmd.AddCommand(enrichCmd)
}
