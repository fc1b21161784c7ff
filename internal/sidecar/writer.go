package sidecar

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Digital-Shane/media-sidecar/internal/media"
	"github.com/Digital-Shane/media-sidecar/internal/provider"
)

const (
	// Separator sits between a key and its value on every line.
	Separator = " : "
	// NotAvailable stands in for any missing scalar value.
	NotAvailable = "N/A"
)

// Sidecar keys in file order.
const (
	KeyTitle       = "title"
	KeyMovieYear   = "movieYear"
	KeyProgramID   = "programId"
	KeySeriesID    = "seriesId"
	KeyEpisodeID   = "episodeId"
	KeyDescription = "description"
	KeyIsEpisode   = "isEpisode"
	KeyIsEpisodic  = "isEpisodic"
	KeyGenre       = "vProgramGenre"
	KeyDirector    = "vDirector"
	KeyWriter      = "vWriter"
	KeyActor       = "vActor"
	KeyMPAARating  = "mpaaRating"
	KeyStarRating  = "starRating"
	KeyImage       = "image"
)

// Writer writes sidecars to disk. The zero value is ready to use.
type Writer struct{}

// Write implements the sidecar capability used by the processor.
func (Writer) Write(rec *provider.Record, base, posterPath string) (string, error) {
	return Write(rec, base, posterPath)
}

// Encode renders rec as sidecar text. posterPath is the saved poster, or ""
// when none was saved.
func Encode(rec *provider.Record, posterPath string) []byte {
	var b bytes.Buffer
	line := func(key, value string) {
		b.WriteString(key)
		b.WriteString(Separator)
		b.WriteString(value)
		b.WriteByte('\n')
	}
	scalar := func(key, value string) {
		line(key, scalarValue(value))
	}
	list := func(key string, values []string) {
		for _, v := range values {
			if v = flatten(v); v != "" {
				line(key, v)
			}
		}
	}

	programID := rec.ProgramID()
	scalar(KeyTitle, rec.Title)
	scalar(KeyMovieYear, rec.Year)
	scalar(KeyProgramID, programID)
	scalar(KeySeriesID, programID)
	if rec.IsEpisode() {
		scalar(KeyEpisodeID, rec.ImdbID)
	}
	scalar(KeyDescription, rec.Plot)
	line(KeyIsEpisode, strconv.FormatBool(rec.IsEpisode()))
	line(KeyIsEpisodic, strconv.FormatBool(rec.Type.IsEpisodic()))
	list(KeyGenre, rec.Genres)
	list(KeyDirector, rec.Directors)
	list(KeyWriter, rec.Writers)
	list(KeyActor, rec.Actors)
	scalar(KeyMPAARating, rec.Rated)
	scalar(KeyStarRating, rec.ImdbRating)

	image := NotAvailable
	if posterPath != "" {
		image = filepath.Base(posterPath)
	}
	line(KeyImage, image)

	return b.Bytes()
}

// Write encodes rec and stores it atomically as <base>.txt, replacing any
// previous sidecar. It returns the sidecar path.
func Write(rec *provider.Record, base, posterPath string) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("write sidecar for %s: nil record", base)
	}
	path := media.SidecarPath(base)
	if err := writeFileAtomic(path, Encode(rec, posterPath), 0o644); err != nil {
		return "", fmt.Errorf("write sidecar %s: %w", path, err)
	}
	return path, nil
}

func scalarValue(v string) string {
	if v = flatten(v); v == "" {
		return NotAvailable
	}
	return v
}

// flatten keeps a value on one line so the key : value framing survives.
func flatten(v string) string {
	if strings.ContainsAny(v, "\r\n") {
		v = strings.Join(strings.Fields(v), " ")
	}
	return strings.TrimSpace(v)
}

// writeFileAtomic writes data to a temporary file in the destination
// directory and renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if fi, err := os.Lstat(path); err == nil && fi.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	ok = true

	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry; failures are ignored since not every
// platform supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
