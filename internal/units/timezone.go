package units

import (
	"fmt"
	"time"
)

// FrameLayout names rendered frames: every date and time separator becomes an
// underscore so the name sorts chronologically and is safe on any filesystem.
const FrameLayout = "2006_01_02_15_04_05"

// TitleLayout is the timestamp shown in frame titles.
const TitleLayout = "2006/01/02 15:04:05"

// Offset is a site's fixed offset from UTC. The radar sites publish in local
// standard time without daylight saving, so a fixed zone is exact.
type Offset time.Duration

// OffsetHours builds an Offset from fractional hours, e.g. -5 or 5.5.
func OffsetHours(h float64) Offset {
	return Offset(time.Duration(h * float64(time.Hour)).Round(time.Minute))
}

// ValidOffset reports whether o lies within the range of real time zones.
func ValidOffset(o Offset) bool {
	d := time.Duration(o)
	return d >= -12*time.Hour && d <= 14*time.Hour
}

// Label renders the offset as "UTC", "UTC-5" or "UTC+5:30".
func (o Offset) Label() string {
	d := time.Duration(o)
	if d == 0 {
		return "UTC"
	}
	sign := "+"
	if d < 0 {
		sign = "-"
		d = -d
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	if m == 0 {
		return fmt.Sprintf("UTC%s%d", sign, h)
	}
	return fmt.Sprintf("UTC%s%d:%02d", sign, h, m)
}

// Location is a fixed zone named after Label.
func (o Offset) Location() *time.Location {
	return time.FixedZone(o.Label(), int(time.Duration(o)/time.Second))
}

// Local converts t to site local time.
func (o Offset) Local(t time.Time) time.Time {
	return t.In(o.Location())
}

// FrameName is the file stem of the frame observed at local time t.
func FrameName(local time.Time) string {
	return local.Format(FrameLayout)
}

// TitleStamp is the title timestamp with the zone label appended,
// e.g. "2024/05/17 07:04:05 UTC-5".
func (o Offset) TitleStamp(t time.Time) string {
	return o.Local(t).Format(TitleLayout) + " " + o.Label()
}
