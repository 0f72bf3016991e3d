package catalog

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/radarloop/internal/fsutil"
)

func TestFilter_Scenario(t *testing.T) {
	entries := []Entry{
		{Name: "a", SizeBytes: 100},
		{Name: "b", SizeBytes: 500001},
		{Name: "c", SizeBytes: 500002},
		{Name: "d", SizeBytes: 300},
	}
	assert.Equal(t, []string{"b", "c"}, Filter(entries, 400000))
}

func TestFilter_ThresholdBoundary(t *testing.T) {
	entries := []Entry{
		{Name: "equal", SizeBytes: DefaultThresholdBytes},
		{Name: "above", SizeBytes: DefaultThresholdBytes + 1},
		{Name: "below", SizeBytes: DefaultThresholdBytes - 1},
	}
	assert.Equal(t, []string{"above"}, Filter(entries, DefaultThresholdBytes))
}

func TestFilter_EmptyInputs(t *testing.T) {
	assert.Empty(t, Filter(nil, 0))
	assert.NotNil(t, Filter(nil, 0))
	assert.Empty(t, Filter([]Entry{}, 10))
}

func TestFilter_MaxObservedSizeYieldsNothing(t *testing.T) {
	entries := []Entry{{"x", 10}, {"y", 99}, {"z", 42}}
	assert.Empty(t, Filter(entries, 99))
}

func TestFilter_MatchesSetDefinition(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	entries := make([]Entry, 200)
	for i := range entries {
		entries[i] = Entry{
			Name:      fmt.Sprintf("l2_data/2024/05/17/Corozal/COR%06d.RAW", rng.Intn(1000000)),
			SizeBytes: rng.Int63n(2 * DefaultThresholdBytes),
		}
	}

	var want []string
	for _, e := range entries {
		if e.SizeBytes > DefaultThresholdBytes {
			want = append(want, e.Name)
		}
	}
	sort.Strings(want)

	if diff := cmp.Diff(want, Filter(entries, DefaultThresholdBytes)); diff != "" {
		t.Errorf("Filter mismatch (-want +got):\n%s", diff)
	}
}

func TestFilter_ShuffleInvariant(t *testing.T) {
	entries := make([]Entry, 60)
	for i := range entries {
		entries[i] = Entry{Name: fmt.Sprintf("k%03d", i), SizeBytes: int64(i) * 10000}
	}
	sorted := Filter(entries, 250000)

	shuffled := append([]Entry(nil), entries...)
	rand.New(rand.NewSource(42)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	before := append([]Entry(nil), shuffled...)

	assert.Equal(t, sorted, Filter(shuffled, 250000))
	assert.Equal(t, before, shuffled, "input must not be reordered")
}

func TestLatest(t *testing.T) {
	keys := make([]string, 50)
	for i := range keys {
		keys[i] = fmt.Sprintf("k%02d", i)
	}

	got := Latest(keys, 40)
	require.Len(t, got, 40)
	assert.Equal(t, "k10", got[0])
	assert.Equal(t, "k49", got[39])

	got[0] = "mutated"
	assert.Equal(t, "k10", keys[10], "result must not alias input")

	assert.Len(t, Latest(keys[:45], 37), 37)
	assert.Equal(t, "k08", Latest(keys[:45], 37)[0])
	assert.Equal(t, keys[:3], Latest(keys[:3], 40))
	assert.Empty(t, Latest(keys, 0))
	assert.Empty(t, Latest(nil, 5))
}

func TestPrefix(t *testing.T) {
	date := time.Date(2024, 5, 17, 23, 59, 0, 0, time.FixedZone("COT", -5*3600))
	assert.Equal(t, "l2_data/2024/05/18/Corozal", Prefix("l2_data", date, "Corozal"))
}

func TestLocalEntries(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.MkdirAll("Corozal/sub", 0o755))
	require.NoError(t, mfs.WriteFile("Corozal/b", make([]byte, 12), 0o644))
	require.NoError(t, mfs.WriteFile("Corozal/a", make([]byte, 3), 0o644))

	entries, err := LocalEntries(mfs, "Corozal")
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Name: filepath.Join("Corozal", "a"), SizeBytes: 3},
		{Name: filepath.Join("Corozal", "b"), SizeBytes: 12},
	}, entries)

	_, err = LocalEntries(mfs, "missing")
	assert.Error(t, err)
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "COR240517000004.RAW7ABC", BaseName("l2_data/2024/05/17/Corozal/COR240517000004.RAW7ABC"))
	assert.Equal(t, "b", BaseName("b"))
}
