package serial

import (
	"errors"
	"io"
	"sync"
	"time"

	bugst "go.bug.st/serial"

	"github.com/arloliu/go-lora/logger"
)

// readTimeout bounds each pump read so Close is observed promptly.
const readTimeout = 100 * time.Millisecond

// SystemPort is the production Port over a real serial device.
//
// A pump goroutine reads the device with a short timeout, accumulates
// arriving bytes into an internal buffer and fires the readable callback.
type SystemPort struct {
	mu         sync.Mutex
	port       bugst.Port
	buf        []byte
	onReadable func()
	closed     bool

	logger logger.Logger
	done   chan struct{}
	wg     sync.WaitGroup
}

var _ Port = (*SystemPort)(nil)

// Open opens the serial device with 8 data bits, no parity, one stop bit
// and no flow control, then starts the read pump.
func Open(name string, opts ...PortOption) (*SystemPort, error) {
	cfg := defaultPortConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	mode := &bugst.Mode{
		BaudRate: cfg.baudRate,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}
	port, err := bugst.Open(name, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()
		return nil, err
	}

	p := &SystemPort{
		port:   port,
		logger: cfg.logger,
		done:   make(chan struct{}),
	}

	p.logger.Info("serial port opened", "port", name, "baud", cfg.baudRate)

	p.wg.Add(1)
	go p.pump()

	return p, nil
}

func (p *SystemPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrPortClosed
	}
	port := p.port
	p.mu.Unlock()

	return port.Write(data)
}

// ReadAvailable drains and returns the bytes received so far.
func (p *SystemPort) ReadAvailable() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPortClosed
	}

	data := p.buf
	p.buf = nil

	return data, nil
}

// OnReadable registers the callback fired from the pump goroutine when
// new bytes have been buffered. Only one callback is kept.
func (p *SystemPort) OnReadable(fn func()) {
	p.mu.Lock()
	p.onReadable = fn
	p.mu.Unlock()
}

// Close stops the pump and closes the device. It is idempotent.
func (p *SystemPort) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.done)
	err := p.port.Close()
	p.wg.Wait()

	return err
}

func (p *SystemPort) pump() {
	defer p.wg.Done()

	readBuf := make([]byte, 512)
	for {
		select {
		case <-p.done:
			return
		default:
		}

		n, err := p.port.Read(readBuf)
		if n > 0 {
			p.mu.Lock()
			p.buf = append(p.buf, readBuf[:n]...)
			fn := p.onReadable
			p.mu.Unlock()

			if fn != nil {
				fn()
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				continue
			}

			select {
			case <-p.done:
			default:
				p.logger.Error("serial read pump stopped", "error", err)
			}

			return
		}
	}
}
