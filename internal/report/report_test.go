package report

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/radarloop/internal/catalog"
	"github.com/banshee-data/radarloop/internal/fsutil"
)

func readFile(t *testing.T, fsys fsutil.FileSystem, name string) string {
	t.Helper()
	f, err := fsys.Open(name)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(data)
}

func TestCatalogReport(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.MkdirAll("out", 0o755))
	r := New("Corozal", 400000, "out", mfs)

	entries := []catalog.Entry{
		{Name: "l2_data/2024/05/17/Corozal/COR03.RAW", SizeBytes: 300},
		{Name: "l2_data/2024/05/17/Corozal/COR02.RAW", SizeBytes: 500002},
		{Name: "l2_data/2024/05/17/Corozal/COR01.RAW", SizeBytes: 500001},
	}
	selected := []string{"l2_data/2024/05/17/Corozal/COR02.RAW"}

	require.NoError(t, r.Report(time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC), entries, selected))
	assert.Equal(t, "out/Corozal_catalog.html", r.Path())

	html := readFile(t, mfs, r.Path())
	assert.Contains(t, html, "Radar Corozal catalog 2024/05/17")
	assert.Contains(t, html, "objects=3 selected=1 threshold=400000 bytes")
	assert.Contains(t, html, "threshold")
	for _, c := range []string{selectedColor, keptColor, rejectedColor} {
		assert.Contains(t, html, c)
	}

	// Bars follow key order.
	i1 := strings.Index(html, `"COR01.RAW"`)
	i2 := strings.Index(html, `"COR02.RAW"`)
	i3 := strings.Index(html, `"COR03.RAW"`)
	require.True(t, i1 >= 0 && i2 >= 0 && i3 >= 0)
	assert.Less(t, i1, i2)
	assert.Less(t, i2, i3)

	assert.Equal(t, "l2_data/2024/05/17/Corozal/COR03.RAW", entries[0].Name, "input is not reordered")
}

func TestCatalogReport_EmptyListing(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	r := New("Corozal", 400000, ".", mfs)

	require.NoError(t, r.Report(time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC), nil, nil))
	assert.Contains(t, readFile(t, mfs, "Corozal_catalog.html"), "objects=0 selected=0")
}

func TestCatalogReport_WriteFailure(t *testing.T) {
	r := New("Corozal", 400000, "missing", fsutil.NewMemoryFileSystem())
	assert.ErrorContains(t, r.Report(time.Now(), nil, nil), "write catalog report")
}
