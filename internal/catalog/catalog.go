// Package catalog decides which scan files are genuine observations.
//
// Remote object listings and local working directories are reduced to the
// same shape (name, size) and filtered with one predicate, so a scan that was
// truncated in transit is rejected locally exactly as a placeholder would be
// rejected remotely.
package catalog

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/banshee-data/radarloop/internal/fsutil"
)

// DefaultThresholdBytes separates real volume scans from outage placeholders.
const DefaultThresholdBytes int64 = 400000

// DateLayout is the layout of the date segment in remote object keys.
const DateLayout = "2006/01/02"

// Entry is one (name, size) pair from a remote or local listing.
type Entry struct {
	Name      string
	SizeBytes int64
}

// Filter returns the names of entries strictly larger than thresholdBytes,
// sorted ascending. The input slice is not modified.
func Filter(entries []Entry, thresholdBytes int64) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.SizeBytes > thresholdBytes {
			names = append(names, e.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Latest returns the last n keys of an ascending key list, i.e. the n most
// recent scans. n <= 0 yields an empty slice; n larger than the list returns
// all of it. The result never aliases keys.
func Latest(keys []string, n int) []string {
	if n <= 0 {
		return []string{}
	}
	if n > len(keys) {
		n = len(keys)
	}
	return append([]string(nil), keys[len(keys)-n:]...)
}

// Prefix builds the object key prefix for a site on a UTC date,
// e.g. "l2_data/2024/05/17/Corozal".
func Prefix(root string, date time.Time, site string) string {
	return path.Join(root, date.UTC().Format(DateLayout), site)
}

// LocalEntries lists the regular files directly inside dir with their sizes.
// Entry names are full paths (dir joined with the file name).
func LocalEntries(fsys fsutil.FileSystem, dir string) ([]Entry, error) {
	infos, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		entries = append(entries, Entry{Name: filepath.Join(dir, info.Name()), SizeBytes: info.Size()})
	}
	return entries, nil
}

// BaseName is the trailing path segment of an object key, used as the local file name.
func BaseName(key string) string {
	return path.Base(key)
}
