package serial

import "sync"

// PipePort is one end of an in-memory loopback pair. Bytes written to one
// end become readable on the other. It is used by tests; no real device is
// involved.
type PipePort struct {
	mu         sync.Mutex
	peer       *PipePort
	buf        []byte
	onReadable func()
	closed     bool
}

var _ Port = (*PipePort)(nil)

// Pipe returns a connected pair of in-memory ports.
func Pipe() (*PipePort, *PipePort) {
	a := &PipePort{}
	b := &PipePort{}
	a.peer = b
	b.peer = a

	return a, b
}

// Write delivers data to the peer's read buffer and fires the peer's
// readable callback from a fresh goroutine, mirroring how a device
// notification arrives independently of the writer.
func (p *PipePort) Write(data []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrPortClosed
	}
	peer := p.peer
	p.mu.Unlock()

	peer.mu.Lock()
	if peer.closed {
		peer.mu.Unlock()
		return 0, ErrPortClosed
	}
	peer.buf = append(peer.buf, data...)
	fn := peer.onReadable
	peer.mu.Unlock()

	if fn != nil {
		go fn()
	}

	return len(data), nil
}

func (p *PipePort) ReadAvailable() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPortClosed
	}

	data := p.buf
	p.buf = nil

	return data, nil
}

func (p *PipePort) OnReadable(fn func()) {
	p.mu.Lock()
	p.onReadable = fn
	p.mu.Unlock()
}

func (p *PipePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.buf = nil
	p.mu.Unlock()

	return nil
}
