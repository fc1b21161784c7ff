package provider

import (
	"errors"
	"fmt"
)

// MediaType represents the kind of catalog entry a record describes
type MediaType string

const (
	MediaTypeMovie   MediaType = "movie"
	MediaTypeSeries  MediaType = "series"
	MediaTypeEpisode MediaType = "episode"
)

// ParseMediaType maps a catalog "Type" value onto a MediaType. Unknown values
// come back empty.
func ParseMediaType(s string) MediaType {
	switch MediaType(s) {
	case MediaTypeMovie, MediaTypeSeries, MediaTypeEpisode:
		return MediaType(s)
	default:
		return ""
	}
}

// IsEpisodic reports whether the type belongs to a TV series.
func (t MediaType) IsEpisodic() bool {
	return t == MediaTypeSeries || t == MediaTypeEpisode
}

// Record is the metadata returned by a successful catalog lookup. A record is
// built fresh for each lookup and never shared between files.
type Record struct {
	Title      string
	Year       string
	ImdbID     string // identifier of the item itself
	SeriesID   string // parent series identifier, episodes only
	Plot       string
	Rated      string
	ImdbRating string
	Type       MediaType
	Poster     string // URL, or "N/A" when the catalog has none

	Genres    []string
	Directors []string
	Writers   []string
	Actors    []string
}

// ProgramID returns the series identifier when set, otherwise the item
// identifier.
func (r *Record) ProgramID() string {
	if r.SeriesID != "" {
		return r.SeriesID
	}
	return r.ImdbID
}

// IsEpisode reports whether the record describes a single TV episode.
func (r *Record) IsEpisode() bool {
	return r.Type == MediaTypeEpisode
}

// ErrMissingCredential is returned when no catalog API key is configured.
var ErrMissingCredential = errors.New("missing OMDb API key")

// Error codes carried by ProviderError.
const (
	CodeNotFound       = "NOT_FOUND"
	CodeAuthFailed     = "AUTH_FAILED"
	CodeRateLimited    = "RATE_LIMITED"
	CodeHTTPStatus     = "HTTP_STATUS"
	CodeTransport      = "TRANSPORT"
	CodeTimeout        = "TIMEOUT"
	CodeDecode         = "DECODE"
	CodeInvalidRequest = "INVALID_REQUEST"
)

// ProviderError represents an error from a provider
type ProviderError struct {
	Provider string
	Code     string
	Message  string
	Status   int // HTTP status when known
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsCode reports whether err is a ProviderError with the given code.
func IsCode(err error, code string) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Code == code
	}
	return false
}
