package core

import (
	"context"
	"fmt"

	"github.com/Digital-Shane/media-sidecar/internal/log"
	"github.com/Digital-Shane/media-sidecar/internal/media"
	"github.com/Digital-Shane/media-sidecar/internal/provider"
	"github.com/rs/zerolog"
)

// Lookup finds catalog records. Absence is the only failure signal.
type Lookup interface {
	LookupTitle(ctx context.Context, title string, isSeries bool) (*provider.Record, bool)
	LookupEpisode(ctx context.Context, seriesID string, season, episode int) (*provider.Record, bool)
}

// PosterFetcher saves a record's poster next to a media file and returns its
// path, or "" when nothing was saved.
type PosterFetcher interface {
	Fetch(ctx context.Context, rec *provider.Record, base string) string
}

// SidecarWriter stores the sidecar for a record and returns its path.
type SidecarWriter interface {
	Write(rec *provider.Record, base, posterPath string) (string, error)
}

// FileProcessor enriches a single file.
type FileProcessor interface {
	Process(ctx context.Context, path string) (Result, error)
}

// Outcome classifies what happened to one file.
type Outcome string

const (
	OutcomeProcessed   Outcome = log.OutcomeProcessed
	OutcomeUnsupported Outcome = log.OutcomeUnsupported
	OutcomeUnmatched   Outcome = log.OutcomeUnmatched
	OutcomeFailed      Outcome = log.OutcomeFailed
)

// Result describes the handling of one file.
type Result struct {
	Path        string
	Outcome     Outcome
	Identity    media.Identity
	Record      *provider.Record
	SidecarPath string
	PosterPath  string
}

// Processor runs the enrichment steps for one media file: interpret the
// name, look it up, fetch the poster and write the sidecar.
type Processor struct {
	lookup  Lookup
	posters PosterFetcher
	writer  SidecarWriter
	logger  zerolog.Logger
}

// NewProcessor wires the pipeline capabilities together.
func NewProcessor(lookup Lookup, posters PosterFetcher, writer SidecarWriter, logger zerolog.Logger) *Processor {
	return &Processor{
		lookup:  lookup,
		posters: posters,
		writer:  writer,
		logger:  logger.With().Str("component", "processor").Logger(),
	}
}

// Process enriches the file at path. Unsupported and unmatched files are not
// errors; only a failed sidecar write is returned as one.
func (p *Processor) Process(ctx context.Context, path string) (Result, error) {
	res := Result{Path: path}
	logger := p.logger.With().Str("path", path).Logger()

	id, ok := media.Parse(path)
	if !ok {
		res.Outcome = OutcomeUnsupported
		logger.Debug().Msg("skipped: not a media file")
		return res, nil
	}
	res.Identity = id

	rec, ok := p.find(ctx, id)
	if !ok || rec == nil {
		res.Outcome = OutcomeUnmatched
		event := logger.Info().Str("title", id.Title)
		if id.IsEpisode() {
			event = event.Int("season", id.Season).Int("episode", id.Episode)
		}
		event.Msg("skipped: no catalog match")
		return res, nil
	}
	res.Record = rec

	base := media.BasePath(path)
	res.PosterPath = p.posters.Fetch(ctx, rec, base)

	sidecarPath, err := p.writer.Write(rec, base, res.PosterPath)
	if err != nil {
		res.Outcome = OutcomeFailed
		return res, fmt.Errorf("process %s: %w", path, err)
	}
	res.SidecarPath = sidecarPath
	res.Outcome = OutcomeProcessed

	logger.Info().
		Str("title", rec.Title).
		Str("imdb_id", rec.ImdbID).
		Bool("poster", res.PosterPath != "").
		Msg("processed")
	return res, nil
}

// find resolves an identity to a record. Episodes need the series first so
// the episode can be requested by series id.
func (p *Processor) find(ctx context.Context, id media.Identity) (*provider.Record, bool) {
	if !id.IsEpisode() {
		return p.lookup.LookupTitle(ctx, id.Title, false)
	}

	series, ok := p.lookup.LookupTitle(ctx, id.Title, true)
	if !ok || series == nil || series.ImdbID == "" {
		return nil, false
	}
	return p.lookup.LookupEpisode(ctx, series.ImdbID, id.Season, id.Episode)
}
