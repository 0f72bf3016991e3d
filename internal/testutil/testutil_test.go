package testutil

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/radarloop/internal/fsutil"
)

func TestWriteSized(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	path := WriteSized(t, mfs, "Corozal", "a.RAW", 400001)

	info, err := mfs.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 400001, info.Size())
}

func TestSweep(t *testing.T) {
	s := Sweep(time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC), 42)
	require.NoError(t, s.Validate())
	assert.InDelta(t, 239.5, s.MaxRangeKm(), 1e-9)

	f, err := s.Field("reflectivity")
	require.NoError(t, err)
	assert.Equal(t, 42.0, f.Data[10][90])
	assert.True(t, math.IsNaN(f.Data[10][10]), "outside the ring is NaN")
}
