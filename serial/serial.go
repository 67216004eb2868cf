// Package serial provides the serial-port collaborator for the transport
// engine: a small Port interface, a production implementation backed by
// go.bug.st/serial, and an in-memory loopback pair for tests.
//
// The E22-400T22U USB bridge presents a fixed line discipline of 8 data
// bits, no parity, one stop bit and no flow control; only the baud rate
// is configurable.
package serial

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-lora/logger"
)

// DefaultBaudRate matches the E22 factory setting.
const DefaultBaudRate = 9600

var (
	// ErrPortClosed indicates that the port has been closed.
	ErrPortClosed = errors.New("serial port closed")
)

// Port is a byte-oriented serial link. Write pushes bytes out;
// ReadAvailable drains the bytes received so far without blocking.
// OnReadable registers a callback fired when new bytes arrive.
type Port interface {
	Write(p []byte) (int, error)
	ReadAvailable() ([]byte, error)
	OnReadable(fn func())
	Close() error
}

type portConfig struct {
	baudRate int
	logger   logger.Logger
}

func defaultPortConfig() *portConfig {
	return &portConfig{
		baudRate: DefaultBaudRate,
		logger:   logger.GetLogger(),
	}
}

// PortOption is a functional option for opening a port.
type PortOption interface {
	apply(*portConfig) error
}

type portOptFunc func(*portConfig) error

func (f portOptFunc) apply(cfg *portConfig) error { return f(cfg) }

// WithBaudRate sets the line speed. The E22 accepts 1200 to 115200 baud.
func WithBaudRate(baud int) PortOption {
	return portOptFunc(func(cfg *portConfig) error {
		if baud < 1200 || baud > 115200 {
			return fmt.Errorf("serial: baud rate %d out of range [1200, 115200]", baud)
		}
		cfg.baudRate = baud

		return nil
	})
}

// WithPortLogger sets the logger used by the port.
func WithPortLogger(l logger.Logger) PortOption {
	return portOptFunc(func(cfg *portConfig) error {
		if l == nil {
			return fmt.Errorf("serial: logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
