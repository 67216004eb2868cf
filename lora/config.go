package lora

import (
	"fmt"
	"time"

	"github.com/arloliu/go-lora/logger"
)

const (
	// DefaultAckTimeout is the default wait for a chunk acknowledgement
	// before retransmission.
	DefaultAckTimeout = 1 * time.Second

	// DefaultMaxRetries is the default number of retransmissions of a
	// chunk before the send is abandoned.
	DefaultMaxRetries = 5
)

// Timeout and retry range limits.
const (
	MinAckTimeout = 10 * time.Millisecond
	MaxAckTimeout = 60 * time.Second

	MaxRetryLimit = 31
)

type config struct {
	ackTimeout time.Duration
	maxRetries int
	logger     logger.Logger
}

func defaultConfig() *config {
	return &config{
		ackTimeout: DefaultAckTimeout,
		maxRetries: DefaultMaxRetries,
		logger:     logger.GetLogger(),
	}
}

// Option is a functional option for configuring an Engine.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithAckTimeout sets the wait for a chunk acknowledgement before the
// chunk is retransmitted. Must be in [10ms, 60s].
func WithAckTimeout(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d < MinAckTimeout || d > MaxAckTimeout {
			return fmt.Errorf("lora: ack timeout %v out of range [%v, %v]", d, MinAckTimeout, MaxAckTimeout)
		}
		cfg.ackTimeout = d

		return nil
	})
}

// WithMaxRetries sets the number of retransmissions of a chunk before the
// send fails. Must be in [0, 31].
func WithMaxRetries(n int) Option {
	return optFunc(func(cfg *config) error {
		if n < 0 || n > MaxRetryLimit {
			return fmt.Errorf("lora: retry limit %d out of range [0, %d]", n, MaxRetryLimit)
		}
		cfg.maxRetries = n

		return nil
	})
}

// WithLogger sets the logger used by the engine.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return fmt.Errorf("lora: logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
