package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mine-monitor/internal/models"
)

type fakeSink struct {
	saved []models.Reading
	full  bool
}

func (f *fakeSink) SaveReading(r models.Reading) bool {
	if f.full {
		return false
	}

	f.saved = append(f.saved, r)

	return true
}

func TestCollectorWritePath(t *testing.T) {
	buf, err := NewRingBuffer(3, nil)
	require.NoError(t, err)

	sink := &fakeSink{}
	c := NewCollector(buf, NewBus(), sink)

	var seen []models.Reading
	_, err = c.Bus().Subscribe("observer", func(r models.Reading) error {
		// the buffer is written before fan-out
		latest, ok := c.Latest()
		assert.True(t, ok)
		assert.Equal(t, r, latest)

		seen = append(seen, r)

		return nil
	})
	require.NoError(t, err)

	for i := 1; i <= 4; i++ {
		c.OnReading(reading(float64(i)))
	}

	assert.Len(t, seen, 4)
	assert.Len(t, sink.saved, 4)
	assert.Len(t, c.Snapshot(0), 3)

	c.SetConnected(true)
	stats := c.Stats()
	assert.True(t, stats.ConnectionStatus)
	assert.Equal(t, uint64(4), stats.TotalSamples)
	assert.Equal(t, 3, stats.Buffered)
}

func TestCollectorKeepsIngestingWhenSinkIsFull(t *testing.T) {
	buf, err := NewRingBuffer(10, nil)
	require.NoError(t, err)

	c := NewCollector(buf, NewBus(), &fakeSink{full: true})

	for i := 0; i < 5; i++ {
		c.OnReading(reading(float64(i)))
	}

	assert.Equal(t, 5, c.Stats().Buffered)
	assert.Equal(t, uint64(5), c.Stats().PersistDropped)
}
