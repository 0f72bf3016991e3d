// Package sigmet reads IRIS/Sigmet RAW product files, the volume scan format
// written by the Colombian national radar network.
//
// A file is a sequence of 6144-byte records. Record 0 is the product header,
// record 1 the ingest header (site, volume time, range geometry and the set of
// recorded data types) and the rest carry run-length compressed rays grouped
// by sweep. Rays of the different data types are interleaved.
package sigmet

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/radarloop/internal/fsutil"
	"github.com/banshee-data/radarloop/internal/radar"
	"github.com/banshee-data/radarloop/internal/units"
)

var (
	// ErrTruncated means the file ended before the data it announced.
	ErrTruncated = errors.New("sigmet: truncated file")
	// ErrBadHeader means a record header did not have the expected structure.
	ErrBadHeader = errors.New("sigmet: bad header")
)

// File is a parsed RAW product: volume metadata plus every sweep.
type File struct {
	Site      string
	Latitude  float64
	Longitude float64
	// VolumeStart is the ingest volume start time in UTC.
	VolumeStart time.Time
	// TZWest is the recorded time zone in minutes west of GMT.
	TZWest int

	// RangeM holds gate centre ranges in metres.
	RangeM    []float64
	DataTypes []DataType
	Sweeps    []*SweepData
}

// SweepData is one decoded elevation.
type SweepData struct {
	Number     int
	Start      time.Time
	FixedAngle float64
	Azimuth    []float64
	Elevation  []float64
	// Moments holds [ray][gate] values per data type; NaN marks no data.
	Moments map[DataType][][]float64
}

type ingestDataHeader struct {
	start      time.Time
	sweep      int
	raysSweep  int
	raysWrite  int
	fixedAngle float64
	bitsPerBin int
	dataType   DataType
}

// Parse decodes a whole RAW file held in memory.
func Parse(data []byte) (*File, error) {
	if len(data) < 2*RecordSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least two records", ErrTruncated, len(data))
	}
	if len(data)%RecordSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of records", ErrTruncated, len(data))
	}
	if id := i16(data, 0); id != structProductHeader {
		return nil, fmt.Errorf("%w: record 0 structure id %d, want %d", ErrBadHeader, id, structProductHeader)
	}
	ing := data[RecordSize : 2*RecordSize]
	if id := i16(ing, 0); id != structIngestHeader {
		return nil, fmt.Errorf("%w: record 1 structure id %d, want %d", ErrBadHeader, id, structIngestHeader)
	}

	f := &File{
		Site:      cstring(ing[offSiteName : offSiteName+16]),
		Latitude:  bin4(u32(ing, offLatitude)),
		Longitude: bin4(u32(ing, offLongitude)),
		TZWest:    int(i16(ing, offTZRecorded)),
	}
	f.VolumeStart = ymds(ing, offVolumeStart, f.TZWest)
	f.DataTypes = dataTypes(ing)
	if len(f.DataTypes) == 0 {
		return nil, fmt.Errorf("%w: no data types recorded", ErrBadHeader)
	}

	firstBin := float64(i32(ing, offTaskRangeInfo))
	nbins := int(i16(ing, offTaskRangeInfo+10))
	step := float64(i32(ing, offTaskRangeInfo+16))
	if nbins <= 0 {
		return nil, fmt.Errorf("%w: %d output bins", ErrBadHeader, nbins)
	}
	f.RangeM = rangeAxis(units.CentimetersToMeters(firstBin), units.CentimetersToMeters(step), nbins)

	streams, headers, err := sweepStreams(data[2*RecordSize:], len(f.DataTypes), f.TZWest)
	if err != nil {
		return nil, err
	}
	if want := int(i16(ing, offSweepCount)); want > 0 && len(streams) > want {
		streams, headers = streams[:want], headers[:want]
	}
	for i, stream := range streams {
		sw, err := decodeSweep(stream, headers[i], nbins)
		if err != nil {
			return nil, fmt.Errorf("sweep %d: %w", i+1, err)
		}
		f.Sweeps = append(f.Sweeps, sw)
	}
	if len(f.Sweeps) == 0 {
		return nil, fmt.Errorf("%w: no sweeps", ErrTruncated)
	}
	return f, nil
}

func rangeAxis(first, step float64, n int) []float64 {
	r := make([]float64, n)
	if n == 1 {
		r[0] = first
		return r
	}
	return floats.Span(r, first, first+float64(n-1)*step)
}

// dataTypes lists the recorded types in ascending code order from the DSP
// data mask (word 0 covers types 0-31, words 1-4 the rest).
func dataTypes(ing []byte) []DataType {
	words := []uint32{
		u32(ing, offDataMask),
		u32(ing, offDataMask+8),
		u32(ing, offDataMask+12),
		u32(ing, offDataMask+16),
		u32(ing, offDataMask+20),
	}
	var types []DataType
	for w, mask := range words {
		for mask != 0 {
			b := bits.TrailingZeros32(mask)
			types = append(types, DataType(w*32+b))
			mask &^= 1 << b
		}
	}
	return types
}

// sweepStreams splits data records into one compressed stream per sweep.
// The first record of a sweep carries one ingest data header per data type.
func sweepStreams(recs []byte, ndt, tzWest int) ([][]byte, [][]ingestDataHeader, error) {
	var (
		streams [][]byte
		headers [][]ingestDataHeader
		current = -1
	)
	for off := 0; off+RecordSize <= len(recs); off += RecordSize {
		rec := recs[off : off+RecordSize]
		sweep := int(i16(rec, 2))
		if sweep <= 0 {
			break
		}
		body := rec[recordHeaderSize:]
		if sweep != current {
			need := ndt * ingestDataHeaderSize
			if need > len(body) {
				return nil, nil, fmt.Errorf("%w: %d data types do not fit a record", ErrBadHeader, ndt)
			}
			hdrs := make([]ingestDataHeader, ndt)
			for j := range hdrs {
				h := body[j*ingestDataHeaderSize:]
				hdrs[j] = ingestDataHeader{
					start:      ymds(h, 12, tzWest),
					sweep:      int(i16(h, 24)),
					raysSweep:  int(i16(h, 26)),
					raysWrite:  int(i16(h, 32)),
					fixedAngle: signedBin2(u16(h, 34)),
					bitsPerBin: int(i16(h, 36)),
					dataType:   DataType(u16(h, 38)),
				}
			}
			streams = append(streams, append([]byte(nil), body[need:]...))
			headers = append(headers, hdrs)
			current = sweep
			continue
		}
		streams[len(streams)-1] = append(streams[len(streams)-1], body...)
	}
	return streams, headers, nil
}

func decodeSweep(stream []byte, hdrs []ingestDataHeader, nbins int) (*SweepData, error) {
	h0 := hdrs[0]
	nrays := h0.raysWrite
	if nrays <= 0 {
		nrays = h0.raysSweep
	}
	if nrays <= 0 {
		return nil, fmt.Errorf("%w: sweep announces no rays", ErrBadHeader)
	}

	sw := &SweepData{
		Number:     h0.sweep,
		Start:      h0.start,
		FixedAngle: h0.fixedAngle,
		Azimuth:    make([]float64, nrays),
		Elevation:  make([]float64, nrays),
		Moments:    make(map[DataType][][]float64, len(hdrs)),
	}
	for _, h := range hdrs {
		sw.Moments[h.dataType] = make([][]float64, nrays)
	}
	for i := range sw.Azimuth {
		sw.Azimuth[i] = math.NaN()
		sw.Elevation[i] = math.NaN()
	}

	pos := 0
	for ray := 0; ray < nrays; ray++ {
		for _, h := range hdrs {
			words, next, err := unpackRay(stream, pos)
			if err != nil {
				return nil, fmt.Errorf("ray %d %s: %w", ray, h.dataType, err)
			}
			pos = next
			sw.Moments[h.dataType][ray] = rayValues(words, h, nbins)
			if len(words) >= rayHeaderWords && math.IsNaN(sw.Azimuth[ray]) {
				sw.Azimuth[ray], sw.Elevation[ray] = rayAngles(words)
			}
		}
	}
	return sw, nil
}

// unpackRay expands one run-length compressed ray starting at byte pos.
// 0x8000|n introduces n literal words, 1 ends the ray, any other n stands
// for n zero words.
func unpackRay(stream []byte, pos int) ([]uint16, int, error) {
	var out []uint16
	for {
		if pos+2 > len(stream) {
			return nil, pos, ErrTruncated
		}
		w := u16(stream, pos)
		pos += 2
		switch {
		case w == 1:
			return out, pos, nil
		case w&0x8000 != 0:
			n := int(w & 0x7fff)
			if pos+2*n > len(stream) {
				return nil, pos, ErrTruncated
			}
			for k := 0; k < n; k++ {
				out = append(out, u16(stream, pos+2*k))
			}
			pos += 2 * n
		default:
			for k := 0; k < int(w); k++ {
				out = append(out, 0)
			}
		}
	}
}

// rayAngles returns the centre azimuth and elevation from a ray header.
func rayAngles(words []uint16) (az, el float64) {
	azStart, azEnd := bin2(words[0]), bin2(words[2])
	if azEnd < azStart {
		azEnd += 360
	}
	az = math.Mod((azStart+azEnd)/2, 360)
	el = (signedBin2(words[1]) + signedBin2(words[3])) / 2
	return az, el
}

func rayValues(words []uint16, h ingestDataHeader, nbins int) []float64 {
	out := make([]float64, nbins)
	for i := range out {
		out[i] = math.NaN()
	}
	if len(words) < rayHeaderWords {
		return out
	}
	n := int(int16(words[4]))
	if n > nbins {
		n = nbins
	}
	data := words[rayHeaderWords:]
	for i := 0; i < n; i++ {
		var raw uint16
		if h.bitsPerBin == 16 {
			if i >= len(data) {
				break
			}
			raw = data[i]
		} else {
			if i/2 >= len(data) {
				break
			}
			raw = (data[i/2] >> (8 * uint(i%2))) & 0xff
		}
		out[i] = convert(h.dataType, raw)
	}
	return out
}

// Sweep converts sweep i to the pipeline's representation. The observation
// time is the first sweep's start, truncated to the second.
func (f *File) Sweep(i int) (*radar.Sweep, error) {
	if i < 0 || i >= len(f.Sweeps) {
		return nil, fmt.Errorf("sweep %d out of range (file has %d)", i, len(f.Sweeps))
	}
	sd := f.Sweeps[i]
	observed := f.Sweeps[0].Start
	if observed.IsZero() {
		observed = f.VolumeStart
	}

	s := &radar.Sweep{
		Site:       f.Site,
		Latitude:   f.Latitude,
		Longitude:  f.Longitude,
		ObservedAt: observed.UTC().Truncate(time.Second),
		Elevation:  sd.FixedAngle,
		Azimuth:    sd.Azimuth,
		RangeM:     f.RangeM,
		Fields:     make(map[string]*radar.Field),
	}
	for _, t := range f.DataTypes {
		name, unit := fieldName(t)
		if name == "" {
			continue
		}
		// Types are ascending, so a 2-byte type replaces its 1-byte counterpart.
		s.Fields[name] = &radar.Field{Name: name, Units: unit, Data: sd.Moments[t]}
	}
	return s, nil
}

// Decoder implements radar.Decoder for RAW files.
type Decoder struct {
	FS fsutil.FileSystem
	// SweepIndex selects the elevation handed to the renderer; 0 is the lowest.
	SweepIndex int
}

// Decode reads and parses the file at path and returns the selected sweep.
func (d Decoder) Decode(path string) (*radar.Sweep, error) {
	fsys := d.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	r, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	s, err := f.Sweep(d.SweepIndex)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return s, nil
}
