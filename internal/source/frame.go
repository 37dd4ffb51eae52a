package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"mine-monitor/internal/models"
)

// MaxFrameSize caps a single frame; longer lines are malformed
const MaxFrameSize = 4096

type jsonFrame struct {
	Pressure    *float64 `json:"pressure"`
	Temperature *float64 `json:"temperature"`
	Vibration   *float64 `json:"vibration"`
	Timestamp   *float64 `json:"timestamp"`
}

// DecodeFrame parses one frame. JSON objects and CSV lines "p,t,v[,ts]" are
// accepted. A frame without a timestamp is stamped with now.
func DecodeFrame(frame []byte, now func() time.Time) (models.Reading, error) {
	frame = bytes.TrimSpace(frame)

	if len(frame) == 0 {
		return models.Reading{}, fmt.Errorf("%w: empty frame", ErrDecode)
	}

	if len(frame) > MaxFrameSize {
		return models.Reading{}, fmt.Errorf("%w: frame of %d bytes exceeds %d", ErrDecode, len(frame), MaxFrameSize)
	}

	var (
		r   models.Reading
		err error
	)

	if frame[0] == '{' {
		r, err = decodeJSON(frame, now)
	} else {
		r, err = decodeCSV(string(frame), now)
	}

	if err != nil {
		return models.Reading{}, err
	}

	for _, v := range []float64{r.Pressure, r.Temperature, r.Vibration, r.Timestamp} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return models.Reading{}, fmt.Errorf("%w: non-finite value", ErrDecode)
		}
	}

	return r, nil
}

func decodeJSON(frame []byte, now func() time.Time) (models.Reading, error) {
	var f jsonFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return models.Reading{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if f.Pressure == nil || f.Temperature == nil || f.Vibration == nil {
		return models.Reading{}, fmt.Errorf("%w: partial frame", ErrDecode)
	}

	r := models.Reading{
		Pressure:    *f.Pressure,
		Temperature: *f.Temperature,
		Vibration:   *f.Vibration,
	}

	if f.Timestamp != nil {
		r.Timestamp = *f.Timestamp
	} else {
		r.Timestamp = models.ToTimestamp(now())
	}

	return r, nil
}

func decodeCSV(line string, now func() time.Time) (models.Reading, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 3 && len(fields) != 4 {
		return models.Reading{}, fmt.Errorf("%w: expected 3 or 4 fields, got %d", ErrDecode, len(fields))
	}

	values := make([]float64, len(fields))

	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return models.Reading{}, fmt.Errorf("%w: field %d: %v", ErrDecode, i, err)
		}

		values[i] = v
	}

	r := models.Reading{
		Pressure:    values[0],
		Temperature: values[1],
		Vibration:   values[2],
	}

	if len(values) == 4 {
		r.Timestamp = values[3]
	} else {
		r.Timestamp = models.ToTimestamp(now())
	}

	return r, nil
}

// lineSplitter accumulates bytes and yields complete newline-terminated lines.
// A line that grows past MaxFrameSize is discarded up to its terminator.
type lineSplitter struct {
	buf      []byte
	overflow bool
}

// feed appends chunk and returns the complete lines plus the number of
// oversize lines that were dropped
func (s *lineSplitter) feed(chunk []byte) (lines [][]byte, dropped int) {
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			s.appendPartial(chunk)
			return lines, dropped
		}

		s.appendPartial(chunk[:i])
		chunk = chunk[i+1:]

		if s.overflow {
			dropped++
		} else if line := bytes.TrimRight(s.buf, "\r"); len(line) > 0 {
			lines = append(lines, append([]byte(nil), line...))
		}

		s.buf = s.buf[:0]
		s.overflow = false
	}

	return lines, dropped
}

func (s *lineSplitter) appendPartial(b []byte) {
	if s.overflow {
		return
	}

	if len(s.buf)+len(b) > MaxFrameSize {
		s.overflow = true
		s.buf = s.buf[:0]

		return
	}

	s.buf = append(s.buf, b...)
}
