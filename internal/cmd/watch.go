package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/Digital-Shane/media-sidecar/internal/core"
	"github.com/Digital-Shane/media-sidecar/internal/watch"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Enrich media files as they are added to a directory",
	Long: `Watch the directory (the current one by default) and its subdirectories,
and enrich each new movie or episode file once it stops changing. Directories
moved into the tree are scanned as well.

Use --initial to enrich everything already present before watching. Press
Ctrl-C to stop.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatchCommand,
}

var initialScan bool

func runWatchCommand(cmd *cobra.Command, args []string) error {
	root := rootArg(args)
	if err := requireDir(root); err != nil {
		return err
	}

	env, err := loadRuntime(cmd, false)
	if err != nil {
		return err
	}
	key := resolveAPIKey(apiKey, env.cfg)
	if key == "" {
		return missingKeyError()
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	session := env.startSession("watch", os.Args[1:])
	defer env.endSession(session)

	proc, err := core.NewPipeline(env.enrichConfig(key, timeout))
	if err != nil {
		return err
	}
	runner := core.NewRunner(proc,
		core.WithLogger(env.logger),
		core.WithSessionLog(session),
	)

	if initialScan {
		summary, err := runner.Run(ctx, root)
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), summary)
		if summary.Canceled {
			return nil
		}
	}

	w, err := watch.New(root, func(ctx context.Context, path string) {
		res, err := runner.ProcessFile(ctx, path)
		if err == nil && res.Outcome == core.OutcomeProcessed {
			fmt.Fprintf(cmd.OutOrStdout(), "enriched %s\n", path)
		}
	}, watch.Config{Debounce: env.cfg.WatchDebounce(), Logger: env.logger})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl-C to stop)\n", root)
	return w.Run(ctx)
}

func init() {
	addLookupFlags(watchCmd)
	watchCmd.Flags().BoolVar(&initialScan, "initial", false, "Enrich existing files before watching")
	rootCmd.AddCommand(watchCmd)
}
