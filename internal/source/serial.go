package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"

	"mine-monitor/internal/models"
)

const defaultSerialReadTimeout = 200 * time.Millisecond

// Port is the subset of a serial port the adapter needs
type Port interface {
	io.ReadCloser
	SetReadTimeout(t time.Duration) error
}

// PortOpener opens a named port at a baud rate
type PortOpener func(name string, baudRate int) (Port, error)

// OpenSerialPort opens a real serial device with 8N1 framing
func OpenSerialPort(name string, baudRate int) (Port, error) {
	return serial.Open(name, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

// SerialConfig describes the hardware link
type SerialConfig struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
	Open        PortOpener       // defaults to OpenSerialPort
	Clock       func() time.Time // stamps frames without a timestamp
}

// Serial reads newline-delimited frames from a serial link. It owns the port
// handle exclusively between Connect and Disconnect.
type Serial struct {
	cfg SerialConfig

	mu   sync.Mutex
	port Port

	loop Loop
}

// NewSerial creates an adapter; nothing is opened until Connect
func NewSerial(cfg SerialConfig) *Serial {
	if cfg.Open == nil {
		cfg.Open = OpenSerialPort
	}

	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultSerialReadTimeout
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Serial{cfg: cfg}
}

// Name identifies the source in logs
func (s *Serial) Name() string {
	return "Serial"
}

// Connect opens the port. Connecting twice is a no-op.
func (s *Serial) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port != nil {
		return nil
	}

	port, err := s.cfg.Open(s.cfg.Port, s.cfg.BaudRate)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrConnection, s.cfg.Port, err)
	}

	// the loop polls its stop channel between timed-out reads
	if err := port.SetReadTimeout(s.cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("%w: set read timeout on %s: %v", ErrConnection, s.cfg.Port, err)
	}

	s.port = port

	log.Printf("Serial: connected to %s at %d baud", s.cfg.Port, s.cfg.BaudRate)

	return nil
}

// StartReceiving launches the read loop
func (s *Serial) StartReceiving(onReading func(models.Reading)) error {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()

	if port == nil {
		return ErrNotConnected
	}

	s.loop.Start(func(stop <-chan struct{}) {
		s.readLoop(port, stop, onReading)
	})

	return nil
}

func (s *Serial) readLoop(port Port, stop <-chan struct{}, onReading func(models.Reading)) {
	var (
		splitter lineSplitter
		chunk    = make([]byte, 512)
	)

	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := port.Read(chunk)
		if n > 0 {
			lines, dropped := splitter.feed(chunk[:n])

			for i := 0; i < dropped; i++ {
				log.Printf("Serial: dropping frame: %v: line exceeds %d bytes", ErrDecode, MaxFrameSize)
			}

			for _, line := range lines {
				r, derr := DecodeFrame(line, s.cfg.Clock)
				if derr != nil {
					log.Printf("Serial: dropping frame: %v", derr)
					continue
				}

				Deliver(s.Name(), onReading, r)
			}
		}

		if err != nil {
			select {
			case <-stop:
				// closed underneath us by Disconnect
			default:
				if !errors.Is(err, io.EOF) {
					log.Printf("Serial: read failed, link lost: %v", err)
				} else {
					log.Printf("Serial: port closed by device")
				}

				s.dropPort(port)
			}

			return
		}
	}
}

// dropPort releases a port that failed while it is still the current one
func (s *Serial) dropPort(port Port) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == port {
		_ = port.Close()
		s.port = nil
	}
}

// StopReceiving stops the read loop
func (s *Serial) StopReceiving() {
	if !s.loop.Stop() {
		log.Printf("Serial: receive loop did not stop within %v", DefaultJoinTimeout)
	}
}

// Disconnect stops receiving and always releases the port
func (s *Serial) Disconnect() error {
	s.StopReceiving()

	s.mu.Lock()
	port := s.port
	s.port = nil
	s.mu.Unlock()

	if port == nil {
		return nil
	}

	if err := port.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.cfg.Port, err)
	}

	log.Printf("Serial: disconnected from %s", s.cfg.Port)

	return nil
}

// IsConnected reports whether the port is open
func (s *Serial) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.port != nil
}
