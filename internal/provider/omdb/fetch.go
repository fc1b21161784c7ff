package omdb

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Digital-Shane/media-sidecar/internal/provider"
	"github.com/Digital-Shane/omdb"
	"github.com/valyala/fastjson"
)

// notAvailable is the catalog's marker for an absent value.
const notAvailable = "N/A"

// LookupTitle searches the catalog by title, restricted to series when
// isSeries is set and to movies otherwise.
func (c *Client) LookupTitle(ctx context.Context, title string, isSeries bool) (*provider.Record, bool) {
	title = strings.TrimSpace(title)
	searchType := string(provider.MediaTypeMovie)
	if isSeries {
		searchType = string(provider.MediaTypeSeries)
	}
	logger := c.logger.With().Str("title", title).Str("type", searchType).Logger()

	if title == "" {
		c.logMiss(&provider.ProviderError{
			Provider: providerName,
			Code:     provider.CodeInvalidRequest,
			Message:  "title lookup requires a title",
		}, logger.Warn())
		return nil, false
	}

	rec, err := c.fetch(ctx, map[string]string{
		"t":    title,
		"type": searchType,
		"plot": "short",
	})
	if err != nil {
		c.logMiss(err, c.missEvent(err).Str("title", title).Str("type", searchType))
		return nil, false
	}

	logger.Debug().Str("imdb_id", rec.ImdbID).Msg("title matched")
	return rec, true
}

// LookupEpisode fetches one episode of the series identified by seriesID.
// A response lacking either the series or the episode identifier is treated
// as a miss.
func (c *Client) LookupEpisode(ctx context.Context, seriesID string, season, episode int) (*provider.Record, bool) {
	seriesID = strings.TrimSpace(seriesID)
	logger := c.logger.With().Str("series_id", seriesID).Int("season", season).Int("episode", episode).Logger()

	if seriesID == "" || season <= 0 || episode <= 0 {
		c.logMiss(&provider.ProviderError{
			Provider: providerName,
			Code:     provider.CodeInvalidRequest,
			Message:  "episode lookup requires a series id and positive season and episode numbers",
		}, logger.Warn())
		return nil, false
	}

	rec, err := c.fetch(ctx, map[string]string{
		"i":       seriesID,
		"Season":  strconv.Itoa(season),
		"Episode": strconv.Itoa(episode),
	})
	if err == nil && (rec.SeriesID == "" || rec.ImdbID == "") {
		err = &provider.ProviderError{
			Provider: providerName,
			Code:     provider.CodeNotFound,
			Message:  "episode response is missing its identifiers",
		}
	}
	if err != nil {
		c.logMiss(err, c.missEvent(err).Str("series_id", seriesID).Int("season", season).Int("episode", episode))
		return nil, false
	}

	// Episode lookups by series id always describe an episode, even when the
	// response omits Type.
	rec.Type = provider.MediaTypeEpisode

	logger.Debug().Str("imdb_id", rec.ImdbID).Msg("episode matched")
	return rec, true
}

func (c *Client) fetch(ctx context.Context, params map[string]string) (*provider.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, c.transportError(err)
	}

	body, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}
	return decodeRecord(body)
}

// decodeRecord turns a catalog response body into a Record. Only bodies with
// Response "True" are accepted.
func decodeRecord(body []byte) (*provider.Record, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(body)
	if err != nil {
		return nil, &provider.ProviderError{
			Provider: providerName,
			Code:     provider.CodeDecode,
			Message:  "invalid JSON response",
			Err:      err,
		}
	}
	if v.Type() != fastjson.TypeObject {
		return nil, &provider.ProviderError{
			Provider: providerName,
			Code:     provider.CodeDecode,
			Message:  fmt.Sprintf("expected a JSON object, got %s", v.Type()),
		}
	}

	str := func(key string) string {
		return strings.TrimSpace(string(v.GetStringBytes(key)))
	}

	if !strings.EqualFold(str("Response"), "True") {
		return nil, mapError(str("Error"))
	}

	return &provider.Record{
		Title:      str("Title"),
		Year:       str("Year"),
		ImdbID:     identifier(str("imdbID")),
		SeriesID:   identifier(str("seriesID")),
		Plot:       str("Plot"),
		Rated:      str("Rated"),
		ImdbRating: str("imdbRating"),
		Type:       provider.ParseMediaType(strings.ToLower(str("Type"))),
		Poster:     str("Poster"),
		Genres:     splitList(str("Genre")),
		Directors:  splitList(str("Director")),
		Writers:    splitList(str("Writer")),
		Actors:     splitList(str("Actors")),
	}, nil
}

// identifier drops the catalog's "N/A" marker so missing ids compare empty.
func identifier(s string) string {
	if s == notAvailable {
		return ""
	}
	return s
}

// splitList splits a comma separated catalog value, preserving order and
// dropping blanks, "N/A" and duplicates.
func splitList(s string) []string {
	if s == "" || s == notAvailable {
		return nil
	}
	var out []string
	seen := make(map[string]struct{})
	for _, item := range omdb.SplitAndTrim(s) {
		item = strings.TrimSpace(item)
		if item == "" || item == notAvailable {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
