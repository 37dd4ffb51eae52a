package aggregator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mine-monitor/internal/models"
)

func TestBusFailingConsumerIsIsolated(t *testing.T) {
	bus := NewBus()

	var got []float64

	_, err := bus.Subscribe("broken", func(models.Reading) error { return errors.New("disk on fire") })
	require.NoError(t, err)

	_, err = bus.Subscribe("panicky", func(models.Reading) error { panic("boom") })
	require.NoError(t, err)

	_, err = bus.Subscribe("healthy", func(r models.Reading) error {
		got = append(got, r.Timestamp)
		return nil
	})
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NotPanics(t, func() { bus.Publish(reading(float64(i))) })
	}

	assert.Equal(t, []float64{1, 2, 3}, got)

	broken, ok := bus.Stats("broken")
	require.True(t, ok)
	assert.Equal(t, uint64(3), broken.Failed)

	panicky, _ := bus.Stats("panicky")
	assert.Equal(t, uint64(3), panicky.Failed)

	healthy, _ := bus.Stats("healthy")
	assert.Equal(t, uint64(3), healthy.Delivered)
	assert.Equal(t, uint64(3), bus.AllStats().TotalPublished)
}

func TestBusChannelSubscriberDropsWhenFull(t *testing.T) {
	bus := NewBus()
	ch := make(chan models.Reading, 2)

	_, err := bus.SubscribeChan("slow", ch)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		bus.Publish(reading(float64(i)))
	}

	stats, _ := bus.Stats("slow")
	assert.Equal(t, uint64(2), stats.Delivered)
	assert.Equal(t, uint64(3), stats.Dropped)

	assert.InDelta(t, 1.0, (<-ch).Timestamp, 1e-9)
	assert.InDelta(t, 2.0, (<-ch).Timestamp, 1e-9)
}

func TestBusSubscribeErrors(t *testing.T) {
	bus := NewBus()
	noop := func(models.Reading) error { return nil }

	h, err := bus.Subscribe("a", noop)
	require.NoError(t, err)
	assert.Equal(t, "a", h.Name())

	_, err = bus.Subscribe("a", noop)
	assert.ErrorIs(t, err, ErrSubscriberExists)

	_, err = bus.Subscribe("nil", nil)
	assert.ErrorIs(t, err, ErrNilConsumer)

	require.NoError(t, bus.Unsubscribe(h))
	assert.ErrorIs(t, bus.Unsubscribe(h), ErrSubscriberNotFound)

	require.NoError(t, bus.Close())

	_, err = bus.Subscribe("b", noop)
	assert.ErrorIs(t, err, ErrBusClosed)
	assert.NotPanics(t, func() { bus.Publish(reading(1)) })
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()

	calls := 0
	h, err := bus.Subscribe("counter", func(models.Reading) error {
		calls++
		return nil
	})
	require.NoError(t, err)

	bus.Publish(reading(1))
	require.NoError(t, bus.Unsubscribe(h))
	bus.Publish(reading(2))

	assert.Equal(t, 1, calls)
}
