package pipeline

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/banshee-data/radarloop/internal/fsutil"
	"github.com/banshee-data/radarloop/internal/monitoring"
	"github.com/banshee-data/radarloop/internal/render"
)

// Cleanup deletes workDir and every rendered frame in outputDir. A missing
// workDir is an error: by the time cleanup runs the directory must exist.
func Cleanup(fsys fsutil.FileSystem, workDir, outputDir string) error {
	if !fsys.Exists(workDir) {
		return &Error{Kind: CleanupError, ID: workDir, Err: fs.ErrNotExist}
	}
	if err := fsys.RemoveAll(workDir); err != nil {
		return &Error{Kind: CleanupError, ID: workDir, Err: err}
	}

	pattern := filepath.Join(outputDir, render.FramePattern)
	frames, err := fsys.Glob(pattern)
	if err != nil {
		return &Error{Kind: CleanupError, ID: pattern, Err: err}
	}
	for _, f := range frames {
		if err := fsys.Remove(f); err != nil {
			return &Error{Kind: CleanupError, ID: f, Err: fmt.Errorf("remove frame: %w", err)}
		}
	}
	monitoring.Logf("cleanup removed %s and %d frames", workDir, len(frames))
	return nil
}
