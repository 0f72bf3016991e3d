package sigmet

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/radarloop/internal/radar"
)

// RecordSize is the fixed size of every record in a RAW product file.
const RecordSize = 6144

// Structure identifiers found in the leading structure_header of records 0 and 1.
const (
	structProductHeader = 27
	structIngestHeader  = 23
)

// Byte offsets within record 1 (ingest_header).
const (
	offIngestConfig  = 12
	offSweepCount    = offIngestConfig + 82
	offVolumeStart   = offIngestConfig + 88
	offSiteName      = offIngestConfig + 150
	offTZRecorded    = offIngestConfig + 166
	offLatitude      = offIngestConfig + 168
	offLongitude     = offIngestConfig + 172
	offTaskConfig    = offIngestConfig + 480
	offTaskDSPInfo   = offTaskConfig + 12 + 120
	offDataMask      = offTaskDSPInfo + 4
	offTaskRangeInfo = offTaskDSPInfo + 320 + 320
)

// Sizes of the per-record and per-sweep headers in data records.
const (
	recordHeaderSize     = 12
	ingestDataHeaderSize = 76
	rayHeaderWords       = 6
)

// ymds_time flag bits carried in the milliseconds word.
const (
	ymdsMillisMask = 0x3ff
	ymdsUTC        = 1 << 11
)

// DataType is an IRIS data type code.
type DataType uint16

// Data types with a known conversion.
const (
	DBExtendedHeader DataType = 0
	DBTotalPower     DataType = 1
	DBReflectivity   DataType = 2
	DBZDR            DataType = 5
	DBTotalPower2    DataType = 8
	DBReflectivity2  DataType = 9
)

func (t DataType) String() string {
	switch t {
	case DBExtendedHeader:
		return "DB_XHDR"
	case DBTotalPower:
		return "DB_DBT"
	case DBReflectivity:
		return "DB_DBZ"
	case DBZDR:
		return "DB_ZDR"
	case DBTotalPower2:
		return "DB_DBT2"
	case DBReflectivity2:
		return "DB_DBZ2"
	}
	return "DB_" + strconv.Itoa(int(t))
}

var le = binary.LittleEndian

func i16(b []byte, off int) int16  { return int16(le.Uint16(b[off:])) }
func u16(b []byte, off int) uint16 { return le.Uint16(b[off:]) }
func i32(b []byte, off int) int32  { return int32(le.Uint32(b[off:])) }
func u32(b []byte, off int) uint32 { return le.Uint32(b[off:]) }

// bin2 converts a 16-bit binary angle to degrees in [0, 360).
func bin2(v uint16) float64 { return float64(v) * 360 / 65536 }

// bin4 converts a 32-bit binary angle to degrees in [-180, 180).
func bin4(v uint32) float64 {
	deg := float64(v) * 360 / 4294967296
	if deg >= 180 {
		deg -= 360
	}
	return deg
}

// signedBin2 converts a 16-bit binary angle to degrees in [-180, 180).
func signedBin2(v uint16) float64 {
	deg := bin2(v)
	if deg >= 180 {
		deg -= 360
	}
	return deg
}

func cstring(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}

// ymds decodes a 12-byte ymds_time. Times not flagged as UTC are shifted by
// tzWest minutes west of GMT. Py-ART ignores both the flag and the zone; this
// departure is intentional so local-time volumes still yield UTC.
func ymds(b []byte, off int, tzWest int) time.Time {
	secs := i32(b, off)
	msw := u16(b, off+4)
	year, month, day := int(i16(b, off+6)), int(i16(b, off+8)), int(i16(b, off+10))
	if year == 0 {
		return time.Time{}
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).
		Add(time.Duration(secs) * time.Second).
		Add(time.Duration(msw&ymdsMillisMask) * time.Millisecond)
	if msw&ymdsUTC == 0 {
		t = t.Add(time.Duration(tzWest) * time.Minute)
	}
	return t
}

// convert maps a raw bin value to a physical value, NaN for no data.
func convert(t DataType, raw uint16) float64 {
	switch t {
	case DBTotalPower, DBReflectivity:
		if raw == 0 || raw == 255 {
			return math.NaN()
		}
		return (float64(raw) - 64) / 2
	case DBZDR:
		if raw == 0 || raw == 255 {
			return math.NaN()
		}
		return (float64(raw) - 128) / 16
	case DBTotalPower2, DBReflectivity2:
		if raw == 0 || raw == 65535 {
			return math.NaN()
		}
		return (float64(raw) - 32768) / 100
	}
	return math.NaN()
}

// fieldName is the sweep field a data type populates; empty for types that
// are read for framing only.
func fieldName(t DataType) (name, unit string) {
	switch t {
	case DBTotalPower, DBTotalPower2:
		return radar.TotalPower, "dBZ"
	case DBReflectivity, DBReflectivity2:
		return radar.Reflectivity, "dBZ"
	case DBZDR:
		return radar.DifferentialReflectivity, "dB"
	}
	return "", ""
}
