package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "media-sidecar",
	Short: "Write OMDb metadata sidecars and posters next to media files",
	Long: `media-sidecar walks a media library and, for every movie or TV episode it
recognizes by file name, looks the title up in OMDb and writes two files next
to the media file: a "<name>.txt" sidecar with one "key : value" line per
field, and a "<name>.jpg" poster when one is available.

Runs are recorded so the generated files can be removed again with "undo".`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

var (
	logLevel  string
	noLogFile bool
)

func init() {
	// Global flags for all commands
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (default from config)")
	rootCmd.PersistentFlags().BoolVar(&noLogFile, "no-log-file", false, "Do not write the rotating log file or the session log")
}
