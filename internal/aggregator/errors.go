package aggregator

import "errors"

var (
	ErrInvalidCapacity    = errors.New("invalid buffer capacity")
	ErrSubscriberExists   = errors.New("subscriber name already exists")
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrBusClosed          = errors.New("bus is closed")
	ErrNilConsumer        = errors.New("consumer cannot be nil")
)
