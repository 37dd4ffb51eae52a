package source

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mine-monitor/internal/models"
)

var fixedNow = func() time.Time { return time.Unix(1_700_000_000, 0) }

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  models.Reading
	}{
		{
			name:  "json with timestamp",
			frame: `{"pressure": 42.5, "temperature": 21, "vibration": 3.2, "timestamp": 1699999999.5}`,
			want:  models.Reading{Pressure: 42.5, Temperature: 21, Vibration: 3.2, Timestamp: 1699999999.5},
		},
		{
			name:  "json stamped on arrival",
			frame: `{"pressure": 1, "temperature": 2, "vibration": 3}`,
			want:  models.Reading{Pressure: 1, Temperature: 2, Vibration: 3, Timestamp: 1_700_000_000},
		},
		{
			name:  "csv",
			frame: "10.5, 30.25 ,4\r\n",
			want:  models.Reading{Pressure: 10.5, Temperature: 30.25, Vibration: 4, Timestamp: 1_700_000_000},
		},
		{
			name:  "csv with timestamp",
			frame: "1,2,3,99",
			want:  models.Reading{Pressure: 1, Temperature: 2, Vibration: 3, Timestamp: 99},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeFrame([]byte(tt.frame), fixedNow)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeFrameRejectsMalformed(t *testing.T) {
	frames := []string{
		"",
		"   ",
		`{"pressure": 1, "temperature": 2}`,
		`{"pressure": "high"}`,
		`{broken`,
		"1,2",
		"1,2,3,4,5",
		"a,b,c",
		"NaN,1,2",
		strings.Repeat("1", MaxFrameSize+1),
	}

	for _, f := range frames {
		_, err := DecodeFrame([]byte(f), fixedNow)
		assert.ErrorIs(t, err, ErrDecode, "frame %q", f)
	}
}

func TestLineSplitter(t *testing.T) {
	var s lineSplitter

	lines, dropped := s.feed([]byte("1,2,3\n4,5"))
	assert.Equal(t, [][]byte{[]byte("1,2,3")}, lines)
	assert.Zero(t, dropped)

	lines, _ = s.feed([]byte(",6\r\n\n"))
	assert.Equal(t, [][]byte{[]byte("4,5,6")}, lines)

	lines, dropped = s.feed([]byte(strings.Repeat("x", MaxFrameSize+10)))
	assert.Empty(t, lines)
	assert.Zero(t, dropped)

	lines, dropped = s.feed([]byte("tail\n7,8,9\n"))
	assert.Equal(t, [][]byte{[]byte("7,8,9")}, lines)
	assert.Equal(t, 1, dropped)
}
