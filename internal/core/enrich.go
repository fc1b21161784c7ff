package core

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Digital-Shane/media-sidecar/internal/log"
	"github.com/Digital-Shane/media-sidecar/internal/poster"
	"github.com/Digital-Shane/media-sidecar/internal/provider/omdb"
	"github.com/Digital-Shane/media-sidecar/internal/sidecar"
	"github.com/rs/zerolog"
)

// EnrichConfig carries everything a run needs besides the root directory.
type EnrichConfig struct {
	APIKey            string
	BaseURL           string
	RequestTimeout    time.Duration
	PosterTimeout     time.Duration
	RequestsPerSecond float64

	Logger   zerolog.Logger
	Observer func(Event)
	Session  *log.Session

	// HTTPClient is shared by the catalog client and the poster fetcher
	// when set.
	HTTPClient *http.Client
}

// NewPipeline builds a Processor backed by OMDb, the poster fetcher and the
// sidecar writer. A missing API key is returned as
// provider.ErrMissingCredential.
func NewPipeline(cfg EnrichConfig) (*Processor, error) {
	client, err := omdb.New(omdb.Config{
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		Timeout:           cfg.RequestTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		HTTPClient:        cfg.HTTPClient,
		Logger:            cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create OMDb client: %w", err)
	}

	posters := poster.New(poster.Config{
		Timeout:    cfg.PosterTimeout,
		HTTPClient: cfg.HTTPClient,
		Logger:     cfg.Logger,
	})

	return NewProcessor(client, posters, sidecar.Writer{}, cfg.Logger), nil
}

// Enrich writes sidecars and posters for every media file under root.
func Enrich(ctx context.Context, root string, cfg EnrichConfig) (Summary, error) {
	proc, err := NewPipeline(cfg)
	if err != nil {
		return Summary{}, err
	}

	runner := NewRunner(proc,
		WithLogger(cfg.Logger),
		WithObserver(cfg.Observer),
		WithSessionLog(cfg.Session),
	)
	return runner.Run(ctx, root)
}
