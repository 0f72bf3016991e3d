package units

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOffsetLabel(t *testing.T) {
	tests := []struct {
		hours float64
		want  string
	}{
		{-5, "UTC-5"},
		{0, "UTC"},
		{5.5, "UTC+5:30"},
		{-3.5, "UTC-3:30"},
		{14, "UTC+14"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, OffsetHours(tt.hours).Label())
		})
	}
}

func TestOffsetLocal(t *testing.T) {
	utc := time.Date(2024, 5, 17, 3, 4, 5, 0, time.UTC)
	local := OffsetHours(-5).Local(utc)

	assert.True(t, local.Equal(utc))
	assert.Equal(t, 22, local.Hour())
	assert.Equal(t, 16, local.Day())
	_, secs := local.Zone()
	assert.Equal(t, -5*3600, secs)
}

func TestFrameName(t *testing.T) {
	utc := time.Date(2024, 5, 17, 12, 4, 5, 0, time.UTC)
	assert.Equal(t, "2024_05_17_07_04_05", FrameName(OffsetHours(-5).Local(utc)))
}

func TestTitleStamp(t *testing.T) {
	utc := time.Date(2024, 5, 17, 12, 4, 5, 0, time.UTC)
	assert.Equal(t, "2024/05/17 07:04:05 UTC-5", OffsetHours(-5).TitleStamp(utc))
}

func TestValidOffset(t *testing.T) {
	assert.True(t, ValidOffset(OffsetHours(-5)))
	assert.True(t, ValidOffset(OffsetHours(14)))
	assert.False(t, ValidOffset(OffsetHours(-13)))
	assert.False(t, ValidOffset(OffsetHours(15)))
}
