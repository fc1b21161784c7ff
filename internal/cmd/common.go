package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Digital-Shane/media-sidecar/internal/config"
	"github.com/Digital-Shane/media-sidecar/internal/core"
	"github.com/Digital-Shane/media-sidecar/internal/log"
	"github.com/Digital-Shane/media-sidecar/internal/provider"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// EnvAPIKey supplies the OMDb API key when --api-key is not given.
const EnvAPIKey = "OMDB_API_KEY"

// runtimeEnv is what every command needs once config and logging are set up.
type runtimeEnv struct {
	cfg        *config.Config
	logger     zerolog.Logger
	sessionDir string
	logging    bool
}

// loadRuntime loads the config file and builds the logger. When quietConsole
// is set nothing is logged to the terminal, which keeps full-screen views
// readable.
func loadRuntime(cmd *cobra.Command, quietConsole bool) (*runtimeEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.LogLevel
	if logLevel != "" {
		if !log.ValidLevel(logLevel) {
			return nil, fmt.Errorf("invalid --log-level %q: must be debug, info, warn or error", logLevel)
		}
		level = logLevel
	}

	env := &runtimeEnv{cfg: cfg, logging: cfg.EnableLogging && !noLogFile}

	opts := log.Options{Level: level}
	if !quietConsole {
		opts.Console = cmd.ErrOrStderr()
	}
	if env.logging {
		if file, err := log.DefaultLogFile(); err == nil {
			opts.File = file
		}
		if dir, err := log.DefaultSessionDir(); err == nil {
			env.sessionDir = dir
		}
	}
	env.logger = log.New(opts)
	return env, nil
}

// resolveAPIKey picks the credential from the flag, then the environment,
// then the config file.
func resolveAPIKey(flagValue string, cfg *config.Config) string {
	if key := strings.TrimSpace(flagValue); key != "" {
		return key
	}
	if key := strings.TrimSpace(os.Getenv(EnvAPIKey)); key != "" {
		return key
	}
	if cfg != nil {
		return strings.TrimSpace(cfg.OMDBAPIKey)
	}
	return ""
}

// missingKeyError explains every way to supply a key.
func missingKeyError() error {
	return fmt.Errorf("%w: pass --api-key, set %s, or run \"media-sidecar config set omdb_api_key <key>\"",
		provider.ErrMissingCredential, EnvAPIKey)
}

// enrichConfig builds the pipeline settings for a run.
func (env *runtimeEnv) enrichConfig(apiKey string, timeout time.Duration) core.EnrichConfig {
	requestTimeout := env.cfg.RequestTimeout()
	if timeout > 0 {
		requestTimeout = timeout
	}
	return core.EnrichConfig{
		APIKey:            apiKey,
		BaseURL:           env.cfg.OMDBBaseURL,
		RequestTimeout:    requestTimeout,
		PosterTimeout:     env.cfg.PosterTimeout(),
		RequestsPerSecond: env.cfg.RequestsPerSecond,
		Logger:            env.logger,
	}
}

// startSession opens the session log for a command, or returns nil when
// logging is disabled. Old session logs are pruned first.
func (env *runtimeEnv) startSession(command string, args []string) *log.Session {
	if !env.logging || env.sessionDir == "" {
		return nil
	}
	if removed, err := log.CleanupOldLogs(env.sessionDir, env.cfg.LogRetentionDays); err != nil {
		env.logger.Warn().Err(err).Msg("failed to prune old session logs")
	} else if removed > 0 {
		env.logger.Debug().Int("removed", removed).Msg("pruned old session logs")
	}

	session, err := log.StartSession(env.sessionDir, command, args)
	if err != nil {
		env.logger.Warn().Err(err).Msg("session logging disabled")
		return nil
	}
	return session
}

// endSession saves the session log and reports where it went.
func (env *runtimeEnv) endSession(session *log.Session) {
	path, err := session.End()
	if err != nil {
		env.logger.Warn().Err(err).Msg("failed to save session log")
		return
	}
	if path != "" {
		env.logger.Debug().Str("session", session.ID()).Str("file", path).Msg("session log saved")
	}
}

// signalContext is canceled on Ctrl-C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// printSummary writes the closing report of a run.
func printSummary(w io.Writer, s core.Summary) {
	fmt.Fprintf(w, "Processed %d of %d files in %s\n", s.Processed, s.Total, s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  unmatched:   %d\n", s.Unmatched)
	fmt.Fprintf(w, "  unsupported: %d\n", s.Unsupported)
	fmt.Fprintf(w, "  failed:      %d\n", s.Failed)
	if s.Canceled {
		fmt.Fprintln(w, "Run canceled before all files were visited.")
	}
}

// rootArg returns the directory argument, defaulting to the working directory.
func rootArg(args []string) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0]
	}
	return "."
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
