package poster

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Digital-Shane/media-sidecar/internal/media"
	"github.com/Digital-Shane/media-sidecar/internal/provider"
	"github.com/cavaliergopher/grab/v3"
	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout bounds a single poster download.
	DefaultTimeout = 10 * time.Second

	partSuffix = ".part"
	userAgent  = "media-sidecar"
)

// Config configures a Fetcher.
type Config struct {
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Fetcher downloads catalog posters next to media files.
type Fetcher struct {
	client  *grab.Client
	timeout time.Duration
	logger  zerolog.Logger
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Fetcher{
		client: &grab.Client{
			UserAgent:  userAgent,
			HTTPClient: httpClient,
		},
		timeout: timeout,
		logger:  cfg.Logger.With().Str("component", "poster").Logger(),
	}
}

// Fetch saves the poster of rec as <base>.jpg and returns that path. It
// returns "" when the record has no poster or the download fails; failures
// are logged and never returned.
func (f *Fetcher) Fetch(ctx context.Context, rec *provider.Record, base string) string {
	if rec == nil {
		return ""
	}
	src := strings.TrimSpace(rec.Poster)
	if src == "" || strings.EqualFold(src, "N/A") {
		return ""
	}

	dst := media.PosterPath(base)
	logger := f.logger.With().Str("url", src).Str("path", dst).Logger()

	if err := f.download(ctx, src, dst); err != nil {
		logger.Warn().Err(err).Msg("poster download failed")
		return ""
	}

	logger.Debug().Msg("poster saved")
	return dst
}

// download writes src to dst through a temporary file so a failed transfer
// never leaves a truncated poster behind.
func (f *Fetcher) download(ctx context.Context, src, dst string) error {
	part := dst + partSuffix
	_ = os.Remove(part)

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := grab.NewRequest(part, src)
	if err != nil {
		return err
	}
	req.NoResume = true
	req = req.WithContext(ctx)

	resp := f.client.Do(req)
	if err := resp.Err(); err != nil {
		_ = os.Remove(part)
		if errors.Is(err, context.DeadlineExceeded) {
			return errors.New("poster download timed out after " + f.timeout.String())
		}
		return err
	}

	if err := os.Rename(part, dst); err != nil {
		_ = os.Remove(part)
		return err
	}
	return nil
}
