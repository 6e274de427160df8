package motion

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.bug.st/serial"
)

// Serial reads CSV samples, one per line, from an IMU attached to a serial
// port.
type Serial struct {
	port      io.ReadCloser
	scan      *bufio.Scanner
	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func OpenSerial(portName string, baud int) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: %w", err)
	}
	slog.Info("opened serial imu", "port", portName, "baud", baud, "module", "motion")
	return NewSerial(port), nil
}

func NewSerial(r io.ReadCloser) *Serial {
	return &Serial{port: r, scan: bufio.NewScanner(r)}
}

// Read blocks until the next line arrives. A malformed line is returned as an
// ErrParse error so the caller can drop that sample and continue. Once the
// port reaches EOF, fails or is closed, every Read returns an error wrapping
// io.EOF.
func (s *Serial) Read() (Vector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.scan.Scan() {
		if err := s.scan.Err(); err != nil {
			return Vector{}, fmt.Errorf("serial: %w: %w", io.EOF, err)
		}
		return Vector{}, fmt.Errorf("serial: %w", io.EOF)
	}
	return ParseVector(s.scan.Text())
}

// Close closes the port, unblocking a pending Read. It may be called more
// than once.
func (s *Serial) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.port.Close()
	})
	return s.closeErr
}
