// Package worker provides the application-facing facade over the
// transport engine. It owns the serial port and timer lifetimes, forwards
// packet sends, and fans engine events out to subscribed listeners.
package worker

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-lora/logger"
	"github.com/arloliu/go-lora/lora"
	"github.com/arloliu/go-lora/serial"
)

var (
	// ErrPortAlreadyOpen indicates that OpenPort was called while a port
	// is open.
	ErrPortAlreadyOpen = errors.New("port already open")

	// ErrTransportNotReady indicates that no port is open.
	ErrTransportNotReady = errors.New("transport not ready")
)

// Listener receives facade events. Nil callbacks are skipped. Callbacks
// may be invoked from the serial read pump or timer goroutines and must
// not block.
type Listener struct {
	// PortOpened reports the outcome of an OpenPort call.
	PortOpened func(ok bool, errMsg string)
	// PacketSent reports the terminal outcome of a SendPacket call.
	PacketSent func(ok bool)
	// PacketReceived delivers a fully reassembled inbound packet.
	PacketReceived func(data []byte)
	// SendProgress reports acknowledged outbound bytes.
	SendProgress func(sent, total int)
	// ReceiveProgress reports reassembled inbound bytes.
	ReceiveProgress func(received, estimate int)
	// Error reports surfaced transport errors.
	Error func(msg string)
}

// Worker drives one serial port and one transport engine.
type Worker struct {
	mu     sync.Mutex
	port   serial.Port
	engine *lora.Engine
	logger logger.Logger

	listeners  *xsync.MapOf[uint64, Listener]
	listenerID atomic.Uint64
}

// New creates a worker with no port open.
func New() *Worker {
	return &Worker{
		logger:    logger.GetLogger(),
		listeners: xsync.NewMapOf[uint64, Listener](),
	}
}

// Subscribe registers a listener and returns its registration id.
func (w *Worker) Subscribe(l Listener) uint64 {
	id := w.listenerID.Add(1)
	w.listeners.Store(id, l)

	return id
}

// Unsubscribe removes a previously registered listener.
func (w *Worker) Unsubscribe(id uint64) {
	w.listeners.Delete(id)
}

// OpenPort opens the named serial device, builds the engine and timer and
// wires the event flow. The outcome is also reported through the
// listeners' PortOpened callback.
func (w *Worker) OpenPort(name string, opts ...Option) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.port != nil {
		w.notifyPortOpened(false, ErrPortAlreadyOpen.Error())
		return ErrPortAlreadyOpen
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			w.notifyPortOpened(false, err.Error())
			return err
		}
	}
	w.logger = cfg.logger

	port, err := serial.Open(name,
		serial.WithBaudRate(cfg.baudRate),
		serial.WithPortLogger(cfg.logger),
	)
	if err != nil {
		w.logger.Error("failed to open serial port", "port", name, "error", err)
		w.notifyPortOpened(false, err.Error())

		return err
	}

	if err := w.bind(port, cfg); err != nil {
		_ = port.Close()
		w.notifyPortOpened(false, err.Error())

		return err
	}

	w.notifyPortOpened(true, "")

	return nil
}

// bind builds the engine and timer for an already-open port and wires the
// readable notification. Split from OpenPort so tests can drive the
// worker over an in-memory pipe.
func (w *Worker) bind(port serial.Port, cfg *config) error {
	var engine *lora.Engine
	timer := lora.NewTimer(func() { engine.OnTimeout() })

	engineOpts := append([]lora.Option{lora.WithLogger(cfg.logger)}, cfg.engineOpts...)
	engine, err := lora.New(port, timer, w.engineEvents(), engineOpts...)
	if err != nil {
		return err
	}

	port.OnReadable(engine.OnReadable)

	w.port = port
	w.engine = engine

	return nil
}

// Bind attaches the worker to an already-open port, typically one end of
// serial.Pipe.
func (w *Worker) Bind(port serial.Port, opts ...Option) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.port != nil {
		return ErrPortAlreadyOpen
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return err
		}
	}
	w.logger = cfg.logger

	if err := w.bind(port, cfg); err != nil {
		return err
	}

	w.notifyPortOpened(true, "")

	return nil
}

// ClosePort destroys the engine and closes the port. It is idempotent.
func (w *Worker) ClosePort() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.port == nil {
		return
	}

	// the engine must be torn down before its port disappears
	w.engine.Close()
	if err := w.port.Close(); err != nil {
		w.logger.Warn("serial port close failed", "error", err)
	}

	w.engine = nil
	w.port = nil
}

// SendPacket forwards data to the transport engine.
func (w *Worker) SendPacket(data []byte) error {
	w.mu.Lock()
	engine := w.engine
	w.mu.Unlock()

	if engine == nil {
		return ErrTransportNotReady
	}

	return engine.SendPacket(data)
}

// Metrics returns the engine's counters, or nil when no port is open.
func (w *Worker) Metrics() *lora.Metrics {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.engine == nil {
		return nil
	}

	return w.engine.Metrics()
}

func (w *Worker) engineEvents() lora.Events {
	return lora.Events{
		PacketSent: func(ok bool) {
			w.listeners.Range(func(_ uint64, l Listener) bool {
				if l.PacketSent != nil {
					l.PacketSent(ok)
				}
				return true
			})
		},
		PacketReceived: func(data []byte) {
			w.listeners.Range(func(_ uint64, l Listener) bool {
				if l.PacketReceived != nil {
					l.PacketReceived(data)
				}
				return true
			})
		},
		SendProgress: func(sent, total int) {
			w.listeners.Range(func(_ uint64, l Listener) bool {
				if l.SendProgress != nil {
					l.SendProgress(sent, total)
				}
				return true
			})
		},
		ReceiveProgress: func(received, estimate int) {
			w.listeners.Range(func(_ uint64, l Listener) bool {
				if l.ReceiveProgress != nil {
					l.ReceiveProgress(received, estimate)
				}
				return true
			})
		},
		Error: func(err error) {
			w.listeners.Range(func(_ uint64, l Listener) bool {
				if l.Error != nil {
					l.Error(err.Error())
				}
				return true
			})
		},
	}
}

func (w *Worker) notifyPortOpened(ok bool, errMsg string) {
	w.listeners.Range(func(_ uint64, l Listener) bool {
		if l.PortOpened != nil {
			l.PortOpened(ok, errMsg)
		}
		return true
	})
}
