// Package scansync materialises a selection of remote scans in a local
// working directory.
package scansync

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/radarloop/internal/catalog"
	"github.com/banshee-data/radarloop/internal/fsutil"
	"github.com/banshee-data/radarloop/internal/monitoring"
	"github.com/banshee-data/radarloop/internal/security"
)

// Fetcher copies one remote object to a local path byte for byte.
type Fetcher interface {
	Fetch(ctx context.Context, key, dest string) error
}

// FetchError names the key whose transfer failed.
type FetchError struct {
	Key string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.Key, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// ResetError reports a failure to clear or recreate the working directory.
type ResetError struct {
	Dir string
	Err error
}

func (e *ResetError) Error() string { return fmt.Sprintf("reset %s: %v", e.Dir, e.Err) }
func (e *ResetError) Unwrap() error { return e.Err }

// Synchronizer resets a working directory and fetches keys into it.
type Synchronizer struct {
	fetcher Fetcher
	fs      fsutil.FileSystem
	// Workers bounds concurrent transfers; values below 2 fetch sequentially.
	Workers int
}

// New returns a Synchronizer using fetcher and fsys (the OS filesystem when nil).
func New(fetcher Fetcher, fsys fsutil.FileSystem) *Synchronizer {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &Synchronizer{fetcher: fetcher, fs: fsys}
}

// Sync destroys workDir if present, recreates it and fetches every key into
// it under the key's trailing path segment. Sequential syncs fetch in key
// order. The first failed transfer aborts the sync and is returned as a
// *FetchError; no retry is attempted. On success the directory holds exactly
// len(keys) files.
func (s *Synchronizer) Sync(ctx context.Context, keys []string, workDir string) error {
	dests, err := destinations(keys, workDir)
	if err != nil {
		return err
	}
	if err := s.reset(workDir); err != nil {
		return err
	}

	if s.Workers < 2 {
		for i, key := range keys {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.fetch(ctx, key, dests[i]); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Workers)
	for i, key := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return s.fetch(gctx, key, dests[i])
		})
	}
	return g.Wait()
}

func (s *Synchronizer) fetch(ctx context.Context, key, dest string) error {
	if err := s.fetcher.Fetch(ctx, key, dest); err != nil {
		return &FetchError{Key: key, Err: err}
	}
	monitoring.Logf("downloaded %s", catalog.BaseName(key))
	return nil
}

func (s *Synchronizer) reset(workDir string) error {
	if s.fs.Exists(workDir) {
		if err := s.fs.RemoveAll(workDir); err != nil {
			return &ResetError{Dir: workDir, Err: err}
		}
	}
	if err := s.fs.MkdirAll(workDir, 0o755); err != nil {
		return &ResetError{Dir: workDir, Err: err}
	}
	return nil
}

// destinations maps keys to local paths and rejects two keys that would
// land on the same file, which would leave fewer files than keys.
func destinations(keys []string, workDir string) ([]string, error) {
	seen := make(map[string]string, len(keys))
	dests := make([]string, len(keys))
	for i, key := range keys {
		name := catalog.BaseName(key)
		dest, err := security.ScanPath(workDir, name)
		if err != nil {
			return nil, &FetchError{Key: key, Err: err}
		}
		if prev, ok := seen[name]; ok {
			return nil, &FetchError{Key: key, Err: fmt.Errorf("file name %q also used by %s", name, prev)}
		}
		seen[name] = key
		dests[i] = dest
	}
	return dests, nil
}
