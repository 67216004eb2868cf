package lora

import "github.com/arloliu/go-lora/internal/util"

// FrameType identifies the role of a frame on the wire.
type FrameType byte

const (
	// FrameData carries one chunk of application payload.
	FrameData FrameType = 0x10
	// FrameAck acknowledges a single DATA frame by sequence number.
	FrameAck FrameType = 0x20
	// FrameNack is reserved. It is never emitted and ignored on receipt.
	FrameNack FrameType = 0x30
	// FramePacketAck acknowledges a fully reassembled packet.
	FramePacketAck FrameType = 0x50
)

const (
	// MaxChunkPayload is the maximum number of payload bytes in one frame.
	MaxChunkPayload = 26

	// frameHeaderSize covers the Type, Seq, Total and Len bytes.
	frameHeaderSize = 4

	// MinFrameSize is the wire size of a frame with an empty payload.
	MinFrameSize = frameHeaderSize + 1

	// MaxFrameSize is the wire size of a frame with a full payload.
	MaxFrameSize = frameHeaderSize + MaxChunkPayload + 1
)

// Frame is a single wire frame:
//
//	[Type][Seq][Total][Len][Payload...][CRC]
//
// Seq is the zero-based chunk index and Total the chunk count of the packet
// the frame belongs to. ACK frames echo the Seq of the DATA frame they
// acknowledge and carry no payload.
type Frame struct {
	Type    FrameType
	Seq     byte
	Total   byte
	Payload []byte
}

// EncodeFrame serializes f into its wire form. The payload is truncated to
// MaxChunkPayload bytes; the trailing CRC is computed over the header and
// payload bytes.
func EncodeFrame(f *Frame) []byte {
	payload := f.Payload
	if len(payload) > MaxChunkPayload {
		payload = payload[:MaxChunkPayload]
	}

	buf := make([]byte, 0, frameHeaderSize+len(payload)+1)
	buf = append(buf, byte(f.Type), f.Seq, f.Total, byte(len(payload)))
	buf = append(buf, payload...)
	buf = append(buf, CRC8(buf))

	return buf
}

// DecodeFrame parses a complete frame image and validates its length byte,
// CRC and frame type. The returned frame owns a copy of the payload.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < MinFrameSize {
		return nil, ErrFrameTooShort
	}

	payloadLen := int(data[3])
	if payloadLen > MaxChunkPayload || len(data) != frameHeaderSize+payloadLen+1 {
		return nil, ErrFrameLengthMismatch
	}

	if CRC8(data[:len(data)-1]) != data[len(data)-1] {
		return nil, ErrCRCMismatch
	}

	ftype := FrameType(data[0])
	switch ftype {
	case FrameData, FrameAck, FrameNack, FramePacketAck:
	default:
		return nil, ErrUnknownFrameType
	}

	payload := util.CloneSlice(data[frameHeaderSize:frameHeaderSize+payloadLen], 0)

	return &Frame{Type: ftype, Seq: data[1], Total: data[2], Payload: payload}, nil
}
