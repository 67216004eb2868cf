package lora

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-lora/logger"
)

// fakePort records writes and serves queued inbound bytes.
type fakePort struct {
	writes   [][]byte
	inbox    []byte
	writeErr error
	readErr  error
}

func (p *fakePort) Write(data []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.writes = append(p.writes, append([]byte(nil), data...))

	return len(data), nil
}

func (p *fakePort) ReadAvailable() ([]byte, error) {
	if p.readErr != nil {
		return nil, p.readErr
	}
	data := p.inbox
	p.inbox = nil

	return data, nil
}

// feed queues raw bytes and delivers the readable notification.
func (p *fakePort) feed(e *Engine, data []byte) {
	p.inbox = append(p.inbox, data...)
	e.OnReadable()
}

// fakeTimer is a manually fired Timer for deterministic tests.
type fakeTimer struct {
	running bool
	starts  int
	last    time.Duration
}

func (t *fakeTimer) Start(d time.Duration) {
	t.running = true
	t.starts++
	t.last = d
}

func (t *fakeTimer) Stop() { t.running = false }

// fire simulates the timeout expiring.
func (t *fakeTimer) fire(e *Engine) {
	if !t.running {
		return
	}
	t.running = false
	e.OnTimeout()
}

// eventRecorder captures every engine event in order.
type eventRecorder struct {
	sent     []bool
	received [][]byte
	sendProg [][2]int
	recvProg [][2]int
	errs     []error
}

func (r *eventRecorder) events() Events {
	return Events{
		PacketSent:      func(ok bool) { r.sent = append(r.sent, ok) },
		PacketReceived:  func(data []byte) { r.received = append(r.received, data) },
		SendProgress:    func(sent, total int) { r.sendProg = append(r.sendProg, [2]int{sent, total}) },
		ReceiveProgress: func(recv, est int) { r.recvProg = append(r.recvProg, [2]int{recv, est}) },
		Error:           func(err error) { r.errs = append(r.errs, err) },
	}
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *fakePort, *fakeTimer, *eventRecorder) {
	t.Helper()

	port := &fakePort{}
	timer := &fakeTimer{}
	rec := &eventRecorder{}

	opts = append([]Option{WithLogger(logger.NewSlog(logger.ErrorLevel))}, opts...)
	engine, err := New(port, timer, rec.events(), opts...)
	require.NoError(t, err)

	return engine, port, timer, rec
}

func ackFrame(seq, total byte) []byte {
	return EncodeFrame(&Frame{Type: FrameAck, Seq: seq, Total: total})
}

func dataFrame(seq, total byte, payload []byte) []byte {
	return EncodeFrame(&Frame{Type: FrameData, Seq: seq, Total: total, Payload: payload})
}

func TestNew(t *testing.T) {
	t.Run("nil port", func(t *testing.T) {
		_, err := New(nil, &fakeTimer{}, Events{})
		assert.ErrorIs(t, err, ErrPortNil)
	})

	t.Run("nil timer", func(t *testing.T) {
		_, err := New(&fakePort{}, nil, Events{})
		assert.ErrorIs(t, err, ErrTimerNil)
	})

	t.Run("invalid option", func(t *testing.T) {
		_, err := New(&fakePort{}, &fakeTimer{}, Events{}, WithAckTimeout(time.Hour))
		assert.Error(t, err)
	})
}

// Short round trip: a 2-byte packet is carried by one DATA frame and the
// send completes on its ACK.
func TestSendSingleChunkRoundTrip(t *testing.T) {
	require := require.New(t)

	engine, port, timer, rec := newTestEngine(t)

	require.NoError(engine.SendPacket([]byte("Hi")))

	require.Len(port.writes, 1)
	header := []byte{0x10, 0x00, 0x01, 0x02, 'H', 'i'}
	require.Equal(append(header, CRC8(header)), port.writes[0])
	require.True(timer.running)

	port.feed(engine, ackFrame(0, 1))

	require.False(timer.running)
	require.Equal([][2]int{{2, 2}}, rec.sendProg)
	require.Equal([]bool{true}, rec.sent)
	require.Empty(rec.errs)
	require.Equal(uint64(1), engine.Metrics().PacketSendCount.Load())
}

// Receive side of the same exchange: the DATA frame is ACKed, delivered,
// and confirmed with a PACKET_ACK.
func TestReceiveSingleChunk(t *testing.T) {
	require := require.New(t)

	engine, port, _, rec := newTestEngine(t)

	port.feed(engine, dataFrame(0, 1, []byte("Hi")))

	require.Equal([][]byte{[]byte("Hi")}, rec.received)
	require.Len(port.writes, 2)
	require.Equal(ackFrame(0, 1), port.writes[0])

	packetAck := []byte{0x50, 0x00, 0x00, 0x00}
	require.Equal(append(packetAck, CRC8(packetAck)), port.writes[1])
	require.Equal([][2]int{{2, 2}}, rec.recvProg)
	require.Equal(uint64(1), engine.Metrics().PacketRecvCount.Load())
}

// A packet of exactly MaxChunkPayload bytes still fits one frame.
func TestSendChunkBoundary(t *testing.T) {
	require := require.New(t)

	engine, port, _, _ := newTestEngine(t)

	packet := []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	require.Len(packet, MaxChunkPayload)
	require.NoError(engine.SendPacket(packet))

	require.Len(port.writes, 1)
	frame, err := DecodeFrame(port.writes[0])
	require.NoError(err)
	require.Equal(byte(0), frame.Seq)
	require.Equal(byte(1), frame.Total)
	require.Len(frame.Payload, MaxChunkPayload)
}

// One byte over the boundary splits into two frames; the second is only
// written after the first is acknowledged.
func TestSendTwoChunksStopAndWait(t *testing.T) {
	require := require.New(t)

	engine, port, _, rec := newTestEngine(t)

	packet := append([]byte("ABCDEFGHIJKLMNOPQRSTUVWXYZ"), 'A')
	require.NoError(engine.SendPacket(packet))

	require.Len(port.writes, 1)
	first, err := DecodeFrame(port.writes[0])
	require.NoError(err)
	require.Equal(byte(0), first.Seq)
	require.Equal(byte(2), first.Total)
	require.Len(first.Payload, MaxChunkPayload)

	port.feed(engine, ackFrame(0, 2))

	require.Len(port.writes, 2)
	second, err := DecodeFrame(port.writes[1])
	require.NoError(err)
	require.Equal(byte(1), second.Seq)
	require.Equal(byte(2), second.Total)
	require.Equal([]byte{'A'}, second.Payload)

	port.feed(engine, ackFrame(1, 2))

	require.Equal([][2]int{{26, 27}, {27, 27}}, rec.sendProg)
	require.Equal([]bool{true}, rec.sent)
}

// A lost ACK triggers one identical retransmission; the late ACK then
// completes the send.
func TestSendRetransmission(t *testing.T) {
	require := require.New(t)

	engine, port, timer, rec := newTestEngine(t)

	packet := bytes.Repeat([]byte{'r'}, MaxChunkPayload)
	require.NoError(engine.SendPacket(packet))
	require.Len(port.writes, 1)

	timer.fire(engine)

	require.Len(port.writes, 2)
	require.Equal(port.writes[0], port.writes[1])
	require.Equal(uint64(1), engine.Metrics().FrameRetryCount.Load())

	port.feed(engine, ackFrame(0, 1))

	require.Equal([]bool{true}, rec.sent)
	require.Empty(rec.errs)
}

// With every ACK suppressed the chunk is written MaxRetries+1 times in
// total, then the send fails and the engine returns to idle.
func TestSendRetryExhaustion(t *testing.T) {
	require := require.New(t)

	engine, port, timer, rec := newTestEngine(t)

	require.NoError(engine.SendPacket(bytes.Repeat([]byte{'x'}, MaxChunkPayload)))

	for i := 0; i < DefaultMaxRetries; i++ {
		timer.fire(engine)
	}
	require.Len(port.writes, DefaultMaxRetries+1)

	timer.fire(engine)

	require.Len(port.writes, DefaultMaxRetries+1)
	require.Len(rec.errs, 1)
	require.ErrorIs(rec.errs[0], ErrSendTimeout)
	require.Equal([]bool{false}, rec.sent)

	// the engine is idle again and accepts a new send
	require.NoError(engine.SendPacket([]byte("next")))
}

// Junk ahead of a valid DATA frame is skipped by the scanner.
func TestReceiveResynchronisation(t *testing.T) {
	require := require.New(t)

	engine, port, _, rec := newTestEngine(t)

	wire := append([]byte{0xAB}, dataFrame(0, 1, []byte("Hi"))...)
	port.feed(engine, wire)

	require.Equal([][]byte{[]byte("Hi")}, rec.received)
	require.Equal(ackFrame(0, 1), port.writes[0])
	require.Equal(uint64(1), engine.Metrics().ResyncDropCount.Load())
	require.Equal(uint64(1), engine.Metrics().CRCRejectCount.Load())
}

// A duplicated DATA frame is re-acknowledged but delivered only once.
func TestReceiveDuplicateData(t *testing.T) {
	require := require.New(t)

	engine, port, _, rec := newTestEngine(t)

	wire := dataFrame(0, 1, []byte("Hi"))
	port.feed(engine, wire)
	port.feed(engine, wire)

	require.Len(rec.received, 1)

	// ACK, PACKET_ACK, then the duplicate's identical ACK
	require.Len(port.writes, 3)
	require.Equal(port.writes[0], port.writes[2])
	require.Equal(ackFrame(0, 1), port.writes[2])
	require.Equal(uint64(1), engine.Metrics().PacketRecvCount.Load())
}

func TestReceiveMultiChunk(t *testing.T) {
	require := require.New(t)

	engine, port, _, rec := newTestEngine(t)

	first := bytes.Repeat([]byte{'a'}, MaxChunkPayload)
	port.feed(engine, dataFrame(0, 2, first))

	// final chunk size unknown, the estimate assumes full chunks
	require.Equal([][2]int{{26, 52}}, rec.recvProg)
	require.Empty(rec.received)

	port.feed(engine, dataFrame(1, 2, []byte{'b'}))

	require.Equal([][2]int{{26, 52}, {27, 27}}, rec.recvProg)
	require.Len(rec.received, 1)
	require.Equal(append(first, 'b'), rec.received[0])
}

// A duplicate of a mid-assembly chunk is re-ACKed without double count.
func TestReceiveDuplicateMidAssembly(t *testing.T) {
	require := require.New(t)

	engine, port, _, rec := newTestEngine(t)

	chunk := dataFrame(0, 2, bytes.Repeat([]byte{'a'}, MaxChunkPayload))
	port.feed(engine, chunk)
	port.feed(engine, chunk)

	require.Empty(rec.received)
	require.Len(port.writes, 2)
	require.Equal(port.writes[0], port.writes[1])

	port.feed(engine, dataFrame(1, 2, []byte{'b'}))
	require.Len(rec.received, 1)
	require.Len(rec.received[0], MaxChunkPayload+1)
}

// A changed Total abandons the assembly in favour of the new packet.
func TestReceiveTotalMismatchRestartsReassembly(t *testing.T) {
	require := require.New(t)

	engine, port, _, rec := newTestEngine(t)

	port.feed(engine, dataFrame(0, 3, []byte("stale")))
	port.feed(engine, dataFrame(0, 2, []byte("fresh-")))
	port.feed(engine, dataFrame(1, 2, []byte("packet")))

	require.Equal([][]byte{[]byte("fresh-packet")}, rec.received)
}

// Out-of-range and malformed DATA headers are dropped without state
// changes.
func TestReceiveInvalidDataHeaders(t *testing.T) {
	require := require.New(t)

	engine, port, _, rec := newTestEngine(t)

	port.feed(engine, dataFrame(2, 2, []byte("seq out of range")))
	port.feed(engine, dataFrame(0, 0, []byte("zero total")))

	require.Empty(rec.received)
	require.Empty(port.writes)
}

func TestSendBusy(t *testing.T) {
	require := require.New(t)

	engine, _, _, _ := newTestEngine(t)

	require.NoError(engine.SendPacket([]byte("first")))
	require.ErrorIs(engine.SendPacket([]byte("second")), ErrTransportBusy)
}

func TestSendPacketTooLarge(t *testing.T) {
	engine, port, _, _ := newTestEngine(t)

	err := engine.SendPacket(make([]byte, MaxPacketSize+1))
	assert.ErrorIs(t, err, ErrPacketTooLarge)
	assert.Empty(t, port.writes)
}

func TestSendWriteFailure(t *testing.T) {
	require := require.New(t)

	engine, port, timer, rec := newTestEngine(t)
	port.writeErr = assert.AnError

	err := engine.SendPacket([]byte("doomed"))
	require.ErrorIs(err, ErrWriteFailed)
	require.Len(rec.errs, 1)
	require.ErrorIs(rec.errs[0], ErrWriteFailed)
	require.Equal([]bool{false}, rec.sent)
	require.False(timer.running)

	// the engine recovered to idle
	port.writeErr = nil
	require.NoError(engine.SendPacket([]byte("ok")))
}

// An ACK for a chunk other than the one in flight is ignored.
func TestStaleChunkAckIgnored(t *testing.T) {
	require := require.New(t)

	engine, port, _, rec := newTestEngine(t)

	packet := append(bytes.Repeat([]byte{'z'}, MaxChunkPayload), 'z')
	require.NoError(engine.SendPacket(packet))

	port.feed(engine, ackFrame(0, 2))
	require.Len(port.writes, 2)

	// duplicate ack for the completed chunk must not advance anything
	port.feed(engine, ackFrame(0, 2))
	require.Len(port.writes, 2)
	require.Len(rec.sendProg, 1)
}

// A trailing PACKET_ACK after completion is accepted without effect, as
// are NACK frames.
func TestControlFramesIgnored(t *testing.T) {
	require := require.New(t)

	engine, port, _, rec := newTestEngine(t)

	require.NoError(engine.SendPacket([]byte("Hi")))
	port.feed(engine, ackFrame(0, 1))
	require.Equal([]bool{true}, rec.sent)

	port.feed(engine, EncodeFrame(&Frame{Type: FramePacketAck, Seq: 0, Total: 0}))
	port.feed(engine, EncodeFrame(&Frame{Type: FrameNack, Seq: 0, Total: 1}))

	require.Len(port.writes, 1)
	require.Equal([]bool{true}, rec.sent)
	require.Empty(rec.errs)
}

func TestClose(t *testing.T) {
	require := require.New(t)

	engine, port, timer, rec := newTestEngine(t)

	require.NoError(engine.SendPacket([]byte("in flight")))
	engine.Close()

	require.False(timer.running)
	// no terminal events for the abandoned send
	require.Empty(rec.sent)
	require.Empty(rec.errs)

	require.ErrorIs(engine.SendPacket([]byte("after close")), ErrEngineClosed)

	// inbound notifications after close are ignored
	port.feed(engine, dataFrame(0, 1, []byte("late")))
	require.Empty(rec.received)

	engine.Close() // idempotent
}

func TestEmptyPacketRoundTrip(t *testing.T) {
	require := require.New(t)

	sender, sPort, _, sRec := newTestEngine(t)
	receiver, rPort, _, rRec := newTestEngine(t)

	require.NoError(sender.SendPacket(nil))
	require.Len(sPort.writes, 1)

	frame, err := DecodeFrame(sPort.writes[0])
	require.NoError(err)
	require.Equal(byte(1), frame.Total)
	require.Empty(frame.Payload)

	rPort.feed(receiver, sPort.writes[0])
	require.Len(rRec.received, 1)
	require.Empty(rRec.received[0])

	sPort.feed(sender, rPort.writes[0])
	require.Equal([]bool{true}, sRec.sent)
	require.Equal([][2]int{{0, 0}}, sRec.sendProg)
}

func TestEngineLoopback(t *testing.T) {
	require := require.New(t)

	a, aPort, _, aRec := newTestEngine(t)
	b, bPort, _, bRec := newTestEngine(t)

	// shuttle moves pending writes from one engine's port into the other
	shuttle := func() {
		for {
			moved := false
			if len(aPort.writes) > 0 {
				for _, w := range aPort.writes {
					bPort.feed(b, w)
				}
				aPort.writes = nil
				moved = true
			}
			if len(bPort.writes) > 0 {
				for _, w := range bPort.writes {
					aPort.feed(a, w)
				}
				bPort.writes = nil
				moved = true
			}
			if !moved {
				return
			}
		}
	}

	packet := bytes.Repeat([]byte("lorem ipsum "), 20) // 240 bytes, 10 chunks
	require.NoError(a.SendPacket(packet))
	shuttle()

	require.Equal([]bool{true}, aRec.sent)
	require.Equal([][]byte{packet}, bRec.received)
	require.Equal(uint64(10), a.Metrics().FrameSendCount.Load())
	require.Equal(uint64(1), b.Metrics().PacketRecvCount.Load())
}
