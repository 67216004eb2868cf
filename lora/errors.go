package lora

import "errors"

var (
	// ErrFrameTooShort indicates that a frame image is shorter than the
	// minimum frame size (header plus CRC).
	ErrFrameTooShort = errors.New("frame too short")

	// ErrFrameLengthMismatch indicates that the length byte in the frame
	// header does not match the number of bytes provided.
	ErrFrameLengthMismatch = errors.New("frame length mismatch")

	// ErrCRCMismatch indicates that the trailing CRC byte does not match
	// the checksum computed over the frame header and payload.
	ErrCRCMismatch = errors.New("frame CRC mismatch")

	// ErrUnknownFrameType indicates that the frame type byte is not one of
	// the defined frame types.
	ErrUnknownFrameType = errors.New("unknown frame type")
)

var (
	// ErrTransportBusy indicates that a packet send is already in progress.
	// Only one packet may be in flight per direction.
	ErrTransportBusy = errors.New("transport busy, send already in progress")

	// ErrPacketTooLarge indicates that a packet cannot be represented by the
	// one-byte chunk count of the wire format.
	ErrPacketTooLarge = errors.New("packet too large")

	// ErrWriteFailed indicates that a serial port write failed.
	ErrWriteFailed = errors.New("serial write failed")

	// ErrSendTimeout indicates that a chunk was retransmitted up to the
	// retry limit without receiving an acknowledgement.
	ErrSendTimeout = errors.New("send timeout, retry limit exceeded")

	// ErrEngineClosed indicates that the engine has been closed.
	ErrEngineClosed = errors.New("engine closed")
)

var (
	// ErrPortNil indicates that a nil serial port was provided.
	ErrPortNil = errors.New("serial port is nil")

	// ErrTimerNil indicates that a nil timer was provided.
	ErrTimerNil = errors.New("timer is nil")
)
