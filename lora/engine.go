package lora

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/arloliu/go-lora/logger"
)

// Port is the byte link the engine drives. Write pushes a frame toward
// the radio; ReadAvailable drains whatever bytes have arrived so far
// without blocking. serial.Port satisfies this interface.
type Port interface {
	Write(p []byte) (int, error)
	ReadAvailable() ([]byte, error)
}

const senderIdle = -1

// reassembly tracks the receive side of one inbound packet.
//
// After a packet is delivered the chunk map is retained with done set,
// so retransmissions of the delivered packet are recognised and
// re-acknowledged without a duplicate delivery.
type reassembly struct {
	total         int
	received      int
	recvBytes     int
	expectedSize  int // -1 until the final chunk arrives
	chunks        map[byte][]byte
	packetAckSent bool
	done          bool
}

// Engine is the framing and reliable-delivery core. It fragments outbound
// packets into acknowledged DATA frames, retransmits on timeout, and
// reassembles inbound chunks into packets.
//
// All entry points serialise on an internal mutex; event callbacks run
// after the lock is released.
type Engine struct {
	mu      sync.Mutex
	port    Port
	timer   Timer
	events  Events
	cfg     *config
	logger  logger.Logger
	metrics Metrics

	closed bool

	// sender state, valid while cursor != senderIdle
	chunks     []Chunk
	cursor     int
	retries    int
	totalBytes int
	sentBytes  int

	rx   reassembly
	scan scanner

	emits []func()
}

// New binds an engine to an already-open port and a fresh timer.
// The timer's fire callback must invoke OnTimeout.
func New(port Port, timer Timer, events Events, opts ...Option) (*Engine, error) {
	if port == nil {
		return nil, ErrPortNil
	}
	if timer == nil {
		return nil, ErrTimerNil
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	e := &Engine{
		port:   port,
		timer:  timer,
		events: events,
		cfg:    cfg,
		logger: cfg.logger,
		cursor: senderIdle,
	}
	e.resetReceiver()

	return e, nil
}

// SendPacket fragments data into chunks and begins transmitting them in
// stop-and-wait fashion. It primes the sender state and returns without
// waiting for acknowledgements; the terminal outcome is reported through
// Events.PacketSent.
//
// Only one packet may be in flight: a second call before the first
// completes returns ErrTransportBusy.
func (e *Engine) SendPacket(data []byte) error {
	e.mu.Lock()
	err := e.sendPacketLocked(data)
	emits := e.takeEmits()
	e.mu.Unlock()

	runEmits(emits)

	return err
}

// OnReadable drains the port and advances the state machines with any
// complete frames found in the inbound byte stream. The port's readable
// notification should be wired to this method.
func (e *Engine) OnReadable() {
	e.mu.Lock()
	e.onReadableLocked()
	emits := e.takeEmits()
	e.mu.Unlock()

	runEmits(emits)
}

// OnTimeout services a fire of the retransmission timer. The production
// timer calls this from its own goroutine.
func (e *Engine) OnTimeout() {
	e.mu.Lock()
	e.onTimeoutLocked()
	emits := e.takeEmits()
	e.mu.Unlock()

	runEmits(emits)
}

// Close stops the timer and abandons any in-flight send and reassembly
// without emitting terminal events. The engine cannot be reused.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	e.closed = true
	e.timer.Stop()
	e.resetSender()
	e.resetReceiver()
	e.scan.reset()
}

// Metrics returns the engine's counters.
func (e *Engine) Metrics() *Metrics {
	return &e.metrics
}

func (e *Engine) sendPacketLocked(data []byte) error {
	if e.closed {
		return ErrEngineClosed
	}
	if e.cursor != senderIdle {
		return ErrTransportBusy
	}
	if len(data) > MaxPacketSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrPacketTooLarge, len(data), MaxPacketSize)
	}

	e.chunks = SplitPacket(data)
	e.cursor = 0
	e.retries = 0
	e.totalBytes = len(data)
	e.sentBytes = 0

	e.logger.Debug("packet send started", "bytes", len(data), "chunks", len(e.chunks))

	if err := e.transmitChunk(); err != nil {
		e.failSend(err)
		return err
	}

	return nil
}

func (e *Engine) onReadableLocked() {
	if e.closed {
		return
	}

	data, err := e.port.ReadAvailable()
	if err != nil {
		e.logger.Warn("serial read failed", "error", err)
		return
	}
	if len(data) == 0 {
		return
	}

	frames, stats := e.scan.push(data)
	e.metrics.CRCRejectCount.Add(stats.crcRejects)
	e.metrics.ResyncDropCount.Add(stats.resyncDrops)
	if stats.crcRejects > 0 || stats.resyncDrops > 0 || stats.unknownDrops > 0 {
		e.logger.Debug("stream resynchronised",
			"crcRejects", stats.crcRejects,
			"droppedBytes", stats.resyncDrops,
			"unknownFrames", stats.unknownDrops,
		)
	}

	for _, f := range frames {
		e.metrics.incFrameRecvCount()
		e.dispatch(f)
	}
}

func (e *Engine) onTimeoutLocked() {
	if e.closed || e.cursor == senderIdle {
		// stale fire from a cancelled timer
		return
	}

	if e.retries >= e.cfg.maxRetries {
		e.failSend(fmt.Errorf("%w: chunk %d after %d retries", ErrSendTimeout, e.cursor, e.retries))
		return
	}

	e.retries++
	e.metrics.incFrameRetryCount()
	e.logger.Debug("ack timeout, retransmitting chunk", "seq", e.cursor, "retry", e.retries)

	if err := e.transmitChunk(); err != nil {
		e.failSend(err)
	}
}

func (e *Engine) dispatch(f *Frame) {
	switch f.Type {
	case FrameData:
		e.handleData(f)
	case FrameAck:
		e.handleChunkAck(f.Seq)
	case FramePacketAck:
		e.handlePacketAck()
	case FrameNack:
		// reserved, ignored on receipt
		e.logger.Debug("NACK frame ignored", "seq", f.Seq)
	}
}

// transmitChunk writes the chunk at the cursor as a DATA frame and arms
// the ack timer.
func (e *Engine) transmitChunk() error {
	c := e.chunks[e.cursor]
	data := EncodeFrame(&Frame{Type: FrameData, Seq: c.Seq, Total: c.Total, Payload: c.Payload})
	if _, err := e.port.Write(data); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	e.metrics.incFrameSendCount()
	e.timer.Start(e.cfg.ackTimeout)

	return nil
}

func (e *Engine) handleChunkAck(seq byte) {
	if e.cursor == senderIdle {
		e.logger.Debug("unexpected chunk ACK ignored", "seq", seq)
		return
	}

	cur := e.chunks[e.cursor]
	if seq != cur.Seq {
		e.logger.Debug("stale chunk ACK ignored", "seq", seq, "expected", cur.Seq)
		return
	}

	e.timer.Stop()
	e.sentBytes += len(cur.Payload)
	e.emitSendProgress(e.sentBytes, e.totalBytes)

	if e.cursor+1 < len(e.chunks) {
		e.cursor++
		e.retries = 0
		if err := e.transmitChunk(); err != nil {
			e.failSend(err)
		}

		return
	}

	// final chunk acknowledged, the send is complete; a trailing
	// PACKET_ACK from the peer is treated as confirmation only
	e.metrics.incPacketSendCount()
	e.resetSender()
	e.logger.Debug("packet send complete")
	e.emitPacketSent(true)
}

func (e *Engine) handlePacketAck() {
	// the send already completed on the final chunk ACK
	e.logger.Debug("packet ACK received")
}

func (e *Engine) handleData(f *Frame) {
	if f.Total == 0 || f.Seq >= f.Total {
		e.logger.Debug("DATA frame with invalid header dropped", "seq", f.Seq, "total", f.Total)
		return
	}

	if e.rx.total != 0 && int(f.Total) != e.rx.total {
		e.logger.Debug("chunk count changed, restarting reassembly", "old", e.rx.total, "new", f.Total)
		e.resetReceiver()
	}
	if e.rx.total == 0 {
		e.startReassembly(int(f.Total))
	}

	if existing, ok := e.rx.chunks[f.Seq]; ok {
		if e.rx.done && !bytes.Equal(existing, f.Payload) {
			// the previous packet was delivered, this chunk opens a new one
			e.startReassembly(int(f.Total))
		} else {
			// retransmitted chunk, our ACK was likely lost
			e.logger.Debug("duplicate chunk re-acknowledged", "seq", f.Seq)
			e.writeControl(FrameAck, f.Seq, f.Total)

			return
		}
	}

	e.rx.chunks[f.Seq] = f.Payload
	e.rx.received++
	e.rx.recvBytes += len(f.Payload)
	if int(f.Seq) == e.rx.total-1 {
		e.rx.expectedSize = (e.rx.total-1)*MaxChunkPayload + len(f.Payload)
	}

	estimate := e.rx.total * MaxChunkPayload
	if e.rx.expectedSize >= 0 {
		estimate = e.rx.expectedSize
	}
	e.emitReceiveProgress(e.rx.recvBytes, estimate)

	e.writeControl(FrameAck, f.Seq, f.Total)

	if e.rx.received == e.rx.total {
		e.completeReassembly()
	}
}

func (e *Engine) completeReassembly() {
	packet := make([]byte, 0, e.rx.recvBytes)
	for i := 0; i < e.rx.total; i++ {
		packet = append(packet, e.rx.chunks[byte(i)]...)
	}

	e.metrics.incPacketRecvCount()
	e.logger.Debug("packet reassembled", "bytes", len(packet), "chunks", e.rx.total)
	e.emitPacketReceived(packet)

	if !e.rx.packetAckSent {
		e.writeControl(FramePacketAck, 0, 0)
		e.rx.packetAckSent = true
	}
	e.rx.done = true
}

// writeControl encodes and writes a payload-free frame. Write failures
// are logged only; the peer recovers by retransmission.
func (e *Engine) writeControl(ftype FrameType, seq, total byte) {
	data := EncodeFrame(&Frame{Type: ftype, Seq: seq, Total: total})
	if _, err := e.port.Write(data); err != nil {
		e.logger.Warn("control frame write failed", "type", fmt.Sprintf("%#02x", byte(ftype)), "error", err)
		return
	}

	e.metrics.incFrameSendCount()
}

func (e *Engine) failSend(err error) {
	e.timer.Stop()
	e.resetSender()
	e.logger.Error("packet send failed", "error", err)
	e.emitError(err)
	e.emitPacketSent(false)
}

func (e *Engine) resetSender() {
	e.chunks = nil
	e.cursor = senderIdle
	e.retries = 0
	e.totalBytes = 0
	e.sentBytes = 0
}

func (e *Engine) resetReceiver() {
	e.rx = reassembly{expectedSize: -1}
}

func (e *Engine) startReassembly(total int) {
	e.rx = reassembly{
		total:        total,
		expectedSize: -1,
		chunks:       make(map[byte][]byte, total),
	}
}

func (e *Engine) emitPacketSent(ok bool) {
	if fn := e.events.PacketSent; fn != nil {
		e.emits = append(e.emits, func() { fn(ok) })
	}
}

func (e *Engine) emitPacketReceived(data []byte) {
	if fn := e.events.PacketReceived; fn != nil {
		e.emits = append(e.emits, func() { fn(data) })
	}
}

func (e *Engine) emitSendProgress(sent, total int) {
	if fn := e.events.SendProgress; fn != nil {
		e.emits = append(e.emits, func() { fn(sent, total) })
	}
}

func (e *Engine) emitReceiveProgress(received, estimate int) {
	if fn := e.events.ReceiveProgress; fn != nil {
		e.emits = append(e.emits, func() { fn(received, estimate) })
	}
}

func (e *Engine) emitError(err error) {
	if fn := e.events.Error; fn != nil {
		e.emits = append(e.emits, func() { fn(err) })
	}
}

func (e *Engine) takeEmits() []func() {
	emits := e.emits
	e.emits = nil

	return emits
}

func runEmits(emits []func()) {
	for _, fn := range emits {
		fn()
	}
}
