package lora

import (
	"sync/atomic"
)

// Metrics contains atomic counters for a transport engine.
// Counters can be used as the value of a prometheus CounterFunc.
type Metrics struct {
	// FrameSendCount indicates the number of frames written to the port.
	FrameSendCount atomic.Uint64
	// FrameRecvCount indicates the number of valid frames extracted from
	// the inbound byte stream.
	FrameRecvCount atomic.Uint64
	// FrameRetryCount indicates the total number of chunk retransmissions.
	FrameRetryCount atomic.Uint64

	// CRCRejectCount indicates the number of frame candidates rejected by
	// the CRC check.
	CRCRejectCount atomic.Uint64
	// ResyncDropCount indicates the number of bytes dropped while
	// resynchronising on a frame boundary.
	ResyncDropCount atomic.Uint64

	// PacketSendCount indicates the number of packets fully acknowledged.
	PacketSendCount atomic.Uint64
	// PacketRecvCount indicates the number of packets fully reassembled
	// and delivered.
	PacketRecvCount atomic.Uint64
}

func (m *Metrics) incFrameSendCount() {
	m.FrameSendCount.Add(1)
}

func (m *Metrics) incFrameRecvCount() {
	m.FrameRecvCount.Add(1)
}

func (m *Metrics) incFrameRetryCount() {
	m.FrameRetryCount.Add(1)
}

func (m *Metrics) incPacketSendCount() {
	m.PacketSendCount.Add(1)
}

func (m *Metrics) incPacketRecvCount() {
	m.PacketRecvCount.Add(1)
}
