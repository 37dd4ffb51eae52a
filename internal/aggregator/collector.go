package aggregator

import (
	"log"
	"sync/atomic"
	"time"

	"mine-monitor/internal/models"
)

// ReadingSink is the non-blocking persistence path for readings
type ReadingSink interface {
	SaveReading(models.Reading) bool
}

// CollectorStats are the liveness figures shown by the status API
type CollectorStats struct {
	TotalSamples     uint64  `json:"total_samples"`
	LastUpdate       float64 `json:"last_update"`
	DataRate         float64 `json:"data_rate"`
	ConnectionStatus bool    `json:"connection_status"`
	Buffered         int     `json:"buffered"`
	Capacity         int     `json:"capacity"`
	PersistDropped   uint64  `json:"persist_dropped"`
}

// Collector owns the single write path from a source: buffer, then
// persistence, then fan-out. OnReading is meant to be called from one
// producer goroutine.
type Collector struct {
	buffer *RingBuffer
	bus    *Bus
	sink   ReadingSink

	connected      atomic.Bool
	persistDropped atomic.Uint64
}

// NewCollector wires a buffer and bus to an optional sink
func NewCollector(buffer *RingBuffer, bus *Bus, sink ReadingSink) *Collector {
	return &Collector{
		buffer: buffer,
		bus:    bus,
		sink:   sink,
	}
}

// OnReading is the source callback
func (c *Collector) OnReading(r models.Reading) {
	c.buffer.Push(r)

	if c.sink != nil && !c.sink.SaveReading(r) {
		if n := c.persistDropped.Add(1); n == 1 || n%100 == 0 {
			log.Printf("Collector: persistence queue full, %d readings not saved", n)
		}
	}

	c.bus.Publish(r)
}

// Restore seeds the buffer with stored history. Restored readings are
// neither persisted again nor published.
func (c *Collector) Restore(rs []models.Reading) {
	c.buffer.Restore(rs)
}

// Capacity is the buffer capacity
func (c *Collector) Capacity() int {
	return c.buffer.Cap()
}

// Bus returns the fan-out bus
func (c *Collector) Bus() *Bus {
	return c.bus
}

// Snapshot returns up to max recent readings in arrival order
func (c *Collector) Snapshot(max int) []models.Reading {
	return c.buffer.Snapshot(max)
}

// Window returns readings from the trailing duration
func (c *Collector) Window(d time.Duration) []models.Reading {
	return c.buffer.Window(d)
}

// Latest returns the newest buffered reading
func (c *Collector) Latest() (models.Reading, bool) {
	return c.buffer.Latest()
}

// SetConnected records the source connection status
func (c *Collector) SetConnected(v bool) {
	c.connected.Store(v)
}

// Connected reports the last recorded connection status
func (c *Collector) Connected() bool {
	return c.connected.Load()
}

// Stats merges buffer figures with the connection status
func (c *Collector) Stats() CollectorStats {
	b := c.buffer.Stats()

	return CollectorStats{
		TotalSamples:     b.TotalSamples,
		LastUpdate:       b.LastUpdate,
		DataRate:         b.DataRate,
		ConnectionStatus: c.connected.Load(),
		Buffered:         b.Buffered,
		Capacity:         b.Capacity,
		PersistDropped:   c.persistDropped.Load(),
	}
}
