package log

import (
	"fmt"
	"os"

	"github.com/Digital-Shane/media-sidecar/internal/media"
)

type UndoResult struct {
	Entry   Entry
	Path    string
	Success bool
	Error   error
}

// UndoEntry removes the sidecar and poster an entry wrote. Artifacts that are
// already gone count as undone. Paths that do not belong to the entry's media
// file are refused.
func UndoEntry(e Entry) []UndoResult {
	base := media.BasePath(e.Path)
	expected := map[string]string{
		e.Sidecar: media.SidecarPath(base),
		e.Poster:  media.PosterPath(base),
	}

	var results []UndoResult
	for _, path := range e.Artifacts() {
		result := UndoResult{Entry: e, Path: path}

		if want := expected[path]; want != path {
			result.Error = fmt.Errorf("cannot undo %s: not an artifact of %s", path, e.Path)
			results = append(results, result)
			continue
		}

		info, err := os.Lstat(path)
		switch {
		case os.IsNotExist(err):
			result.Success = true
		case err != nil:
			result.Error = fmt.Errorf("failed to stat %s: %w", path, err)
		case !info.Mode().IsRegular():
			result.Error = fmt.Errorf("cannot undo %s: not a regular file", path)
		default:
			if err := os.Remove(path); err != nil {
				result.Error = fmt.Errorf("failed to remove %s: %w", path, err)
			} else {
				result.Success = true
			}
		}
		results = append(results, result)
	}
	return results
}

// UndoSession removes every artifact recorded in session, newest entry first.
func UndoSession(session *LogSession) (successful int, failed int, errors []error) {
	if session == nil {
		return 0, 0, nil
	}
	for i := len(session.Entries) - 1; i >= 0; i-- {
		for _, result := range UndoEntry(session.Entries[i]) {
			if result.Success {
				successful++
				continue
			}
			failed++
			if result.Error != nil {
				errors = append(errors, result.Error)
			}
		}
	}
	return successful, failed, errors
}
