package worker

import (
	"fmt"

	"github.com/arloliu/go-lora/logger"
	"github.com/arloliu/go-lora/lora"
	"github.com/arloliu/go-lora/serial"
)

type config struct {
	baudRate   int
	logger     logger.Logger
	engineOpts []lora.Option
}

func defaultConfig() *config {
	return &config{
		baudRate: serial.DefaultBaudRate,
		logger:   logger.GetLogger(),
	}
}

// Option is a functional option for OpenPort.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithBaudRate sets the serial line speed.
func WithBaudRate(baud int) Option {
	return optFunc(func(cfg *config) error {
		if baud <= 0 {
			return fmt.Errorf("worker: baud rate %d is not positive", baud)
		}
		cfg.baudRate = baud

		return nil
	})
}

// WithLogger sets the logger used by the worker, the port and the engine.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return fmt.Errorf("worker: logger is nil")
		}
		cfg.logger = l

		return nil
	})
}

// WithEngineOptions forwards options to the transport engine, for example
// lora.WithAckTimeout or lora.WithMaxRetries.
func WithEngineOptions(opts ...lora.Option) Option {
	return optFunc(func(cfg *config) error {
		cfg.engineOpts = append(cfg.engineOpts, opts...)
		return nil
	})
}
