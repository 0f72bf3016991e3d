package sigmet

import (
	"encoding/binary"
	"math"
	"time"
)

// Test encoder producing RAW files the decoder must accept.

type testRay struct {
	azStart, azEnd float64
	el             float64
	raw            map[DataType][]uint16
	empty          bool
}

type testSweep struct {
	number int
	angle  float64
	start  time.Time
	rays   []testRay
}

type testVolume struct {
	site        string
	lat, lon    float64
	tzWest      int
	utc         bool
	volumeStart time.Time
	firstBinCm  int32
	stepCm      int32
	nbins       int
	types       []DataType
	bits        map[DataType]int
	sweeps      []testSweep
}

func put16(b []byte, off int, v uint16) { binary.LittleEndian.PutUint16(b[off:], v) }
func put32(b []byte, off int, v uint32) { binary.LittleEndian.PutUint32(b[off:], v) }

func encBin2(deg float64) uint16 {
	deg = math.Mod(deg+360, 360)
	return uint16(int(math.Round(deg/360*65536)) % 65536)
}

func encBin4(deg float64) uint32 {
	deg = math.Mod(deg+360, 360)
	return uint32(uint64(math.Round(deg/360*4294967296)) % 4294967296)
}

func (v testVolume) putYMDS(b []byte, off int, t time.Time) {
	var flags uint16
	if v.utc {
		t = t.UTC()
		flags = ymdsUTC
	} else {
		t = t.UTC().Add(-time.Duration(v.tzWest) * time.Minute)
	}
	secs := t.Hour()*3600 + t.Minute()*60 + t.Second()
	put32(b, off, uint32(secs))
	put16(b, off+4, uint16(t.Nanosecond()/int(time.Millisecond))|flags)
	put16(b, off+6, uint16(t.Year()))
	put16(b, off+8, uint16(t.Month()))
	put16(b, off+10, uint16(t.Day()))
}

func (v testVolume) bitsFor(t DataType) int {
	if b, ok := v.bits[t]; ok {
		return b
	}
	if t == DBTotalPower2 || t == DBReflectivity2 {
		return 16
	}
	return 8
}

// compress run-length encodes words and appends the end-of-ray code.
func compress(words []uint16) []uint16 {
	var out []uint16
	i := 0
	for i < len(words) {
		if words[i] == 0 {
			j := i
			for j < len(words) && words[j] == 0 && j-i < 0x7fff {
				j++
			}
			if j-i >= 2 {
				out = append(out, uint16(j-i))
				i = j
				continue
			}
		}
		j := i
		for j < len(words) && j-i < 0x7fff {
			if words[j] == 0 && j+1 < len(words) && words[j+1] == 0 {
				break
			}
			j++
		}
		out = append(out, 0x8000|uint16(j-i))
		out = append(out, words[i:j]...)
		i = j
	}
	return append(out, 1)
}

func (v testVolume) rayWords(r testRay, t DataType) []uint16 {
	if r.empty {
		return nil
	}
	raw := r.raw[t]
	words := []uint16{
		encBin2(r.azStart), encBin2(r.el), encBin2(r.azEnd), encBin2(r.el),
		uint16(len(raw)), 0,
	}
	if v.bitsFor(t) == 16 {
		return append(words, raw...)
	}
	for i := 0; i < len(raw); i += 2 {
		w := raw[i] & 0xff
		if i+1 < len(raw) {
			w |= (raw[i+1] & 0xff) << 8
		}
		words = append(words, w)
	}
	return words
}

func (v testVolume) encode() []byte {
	rec0 := make([]byte, RecordSize)
	put16(rec0, 0, structProductHeader)

	rec1 := make([]byte, RecordSize)
	put16(rec1, 0, structIngestHeader)
	put16(rec1, offSweepCount, uint16(len(v.sweeps)))
	v.putYMDS(rec1, offVolumeStart, v.volumeStart)
	copy(rec1[offSiteName:offSiteName+16], v.site)
	put16(rec1, offTZRecorded, uint16(int16(v.tzWest)))
	put32(rec1, offLatitude, encBin4(v.lat))
	put32(rec1, offLongitude, encBin4(v.lon))
	for _, t := range v.types {
		w := int(t) / 32
		off := offDataMask
		if w > 0 {
			off = offDataMask + 8 + 4*(w-1)
		}
		put32(rec1, off, binary.LittleEndian.Uint32(rec1[off:])|1<<(uint(t)%32))
	}
	put32(rec1, offTaskRangeInfo, uint32(v.firstBinCm))
	put32(rec1, offTaskRangeInfo+4, uint32(v.firstBinCm+int32(v.nbins-1)*v.stepCm))
	put16(rec1, offTaskRangeInfo+10, uint16(v.nbins))
	put32(rec1, offTaskRangeInfo+16, uint32(v.stepCm))

	out := append(rec0, rec1...)
	recNo := 2
	for _, sw := range v.sweeps {
		var stream []byte
		for _, r := range sw.rays {
			for _, t := range v.types {
				for _, w := range compress(v.rayWords(r, t)) {
					stream = binary.LittleEndian.AppendUint16(stream, w)
				}
			}
		}

		first := true
		for first || len(stream) > 0 {
			rec := make([]byte, RecordSize)
			put16(rec, 0, uint16(recNo))
			put16(rec, 2, uint16(sw.number))
			body := rec[recordHeaderSize:]
			if first {
				for j, t := range v.types {
					h := body[j*ingestDataHeaderSize:]
					v.putYMDS(h, 12, sw.start)
					put16(h, 24, uint16(sw.number))
					put16(h, 26, uint16(len(sw.rays)))
					put16(h, 32, uint16(len(sw.rays)))
					put16(h, 34, encBin2(sw.angle))
					put16(h, 36, uint16(v.bitsFor(t)))
					put16(h, 38, uint16(t))
				}
				body = body[len(v.types)*ingestDataHeaderSize:]
				first = false
			}
			n := copy(body, stream)
			stream = stream[n:]
			out = append(out, rec...)
			recNo++
		}
	}
	return out
}

// corozalVolume builds a volume with three 8-bit types and two sweeps of
// 360 one-degree rays. Gates 0-9 of every 50 carry no data.
func corozalVolume() testVolume {
	start := time.Date(2024, 5, 17, 12, 0, 4, 250*int(time.Millisecond), time.UTC)
	v := testVolume{
		site:        "COROZAL",
		lat:         9.3172,
		lon:         -75.2933,
		utc:         true,
		volumeStart: start.Add(-2 * time.Second),
		firstBinCm:  12500,
		stepCm:      25000,
		nbins:       200,
		types:       []DataType{DBTotalPower, DBReflectivity, DBZDR},
	}
	for s := 0; s < 2; s++ {
		sw := testSweep{number: s + 1, angle: 0.5 + float64(s), start: start.Add(time.Duration(s) * 30 * time.Second)}
		for r := 0; r < 360; r++ {
			ray := testRay{azStart: float64(r), azEnd: float64(r + 1), el: sw.angle, raw: map[DataType][]uint16{}}
			for _, t := range v.types {
				raw := make([]uint16, v.nbins)
				for g := range raw {
					if g%50 < 10 {
						continue
					}
					raw[g] = uint16(65 + (r+g+int(t))%100)
				}
				ray.raw[t] = raw
			}
			sw.rays = append(sw.rays, ray)
		}
		v.sweeps = append(v.sweeps, sw)
	}
	return v
}
