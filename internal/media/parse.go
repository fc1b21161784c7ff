package media

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Filename interpretation for the enrichment pipeline.
//
// A media path is reduced to an Identity: the title to look up plus, for TV
// episodes, the season and episode numbers. Nothing here touches the
// filesystem; the same path always yields the same Identity.
var (
	// videoRe is the allow-list of container extensions considered media.
	videoRe = regexp.MustCompile(`(?i)\.(mkv|mp4|m4v|avi|mov|webm|flv|wmv|mpg)$`)

	// releaseTagsRe strips resolution, codec, source and audio tags as whole words.
	releaseTagsRe = regexp.MustCompile(`(?i)\b(?:UHD|1080p|2160p|Blu[- ]?ray|HEVC|HDR|Atmos|WEB|DVDRip|H264|H265)\b`)

	// episodeRe matches "<title> S02E05"; season and episode are two digits.
	episodeRe = regexp.MustCompile(`(?i)(.*?)\s*S(\d{2})E(\d{2})`)

	// movieRe matches "<title> 2010"; the year must start with 19 or 20.
	movieRe = regexp.MustCompile(`^(.+?)\b(?:19|20)\d{2}\b`)
)

const (
	// SidecarExt is appended to the media base path for the description file.
	SidecarExt = ".txt"
	// PosterExt is appended to the media base path for the cover image.
	PosterExt = ".jpg"

	appleDoublePrefix = "._"
)

// Identity is what a filename says about its content before any lookup.
// Season and Episode are both zero for movies and both positive for episodes.
type Identity struct {
	Title   string
	Season  int
	Episode int
}

// IsEpisode reports whether the identity carries season and episode numbers.
func (id Identity) IsEpisode() bool {
	return id.Season > 0 && id.Episode > 0
}

// IsVideo reports whether filename has an extension from the media allow-list.
func IsVideo(filename string) bool {
	return videoRe.MatchString(filename)
}

// BasePath returns path with its final extension removed. Sidecar and poster
// files are named by appending their own extension to this value.
func BasePath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// SidecarPath returns the description file path for a media base path.
func SidecarPath(base string) string {
	return base + SidecarExt
}

// PosterPath returns the cover image path for a media base path.
func PosterPath(base string) string {
	return base + PosterExt
}

// Parse interprets the file name of path. The boolean is false when the file
// is not a supported media container, when it is a macOS "._" resource fork,
// or when nothing usable remains of the name once release tags are removed.
//
// Episode detection wins over movie detection; a name matching neither is
// still returned as a movie title.
func Parse(path string) (Identity, bool) {
	name := filepath.Base(path)
	if !IsVideo(name) || strings.HasPrefix(name, appleDoublePrefix) {
		return Identity{}, false
	}

	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = CleanName(name)
	if name == "" {
		return Identity{}, false
	}

	if m := episodeRe.FindStringSubmatch(name); m != nil {
		season, _ := strconv.Atoi(m[2])
		episode, _ := strconv.Atoi(m[3])
		title := collapseSpaces(m[1])
		if season > 0 && episode > 0 {
			if title == "" {
				return Identity{}, false
			}
			return Identity{Title: title, Season: season, Episode: episode}, true
		}
	}

	if m := movieRe.FindStringSubmatch(name); m != nil {
		if title := collapseSpaces(m[1]); title != "" {
			return Identity{Title: title}, true
		}
	}

	return Identity{Title: name}, true
}

// CleanName turns separator dots into spaces and removes release tags.
func CleanName(name string) string {
	name = strings.ReplaceAll(name, ".", " ")
	name = releaseTagsRe.ReplaceAllString(name, "")
	return collapseSpaces(name)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
