package lora

import "errors"

// scanner recovers frame boundaries from the raw inbound byte stream.
//
// Bytes accumulate until a complete, valid frame sits at the head of the
// buffer. When a candidate fails the length or CRC check the buffer
// advances by a single byte and scanning retries, so a valid frame
// embedded after line noise is still found. A candidate with a valid CRC
// but an unknown frame type is consumed whole and dropped.
type scanner struct {
	buf []byte
}

type scanStats struct {
	crcRejects   uint64
	resyncDrops  uint64
	unknownDrops uint64
}

// push appends data to the accumulator and greedily extracts every
// complete frame currently available.
func (s *scanner) push(data []byte) ([]*Frame, scanStats) {
	var (
		frames []*Frame
		stats  scanStats
	)

	s.buf = append(s.buf, data...)

	for len(s.buf) >= MinFrameSize {
		payloadLen := int(s.buf[3])
		if payloadLen > MaxChunkPayload {
			// the length byte cannot open a frame here
			s.advance(&stats)
			continue
		}

		frameSize := frameHeaderSize + payloadLen + 1
		if len(s.buf) < frameSize {
			// incomplete tail, wait for more bytes
			break
		}

		frame, err := DecodeFrame(s.buf[:frameSize])
		switch {
		case err == nil:
			frames = append(frames, frame)
			s.buf = s.buf[frameSize:]
		case errors.Is(err, ErrUnknownFrameType):
			// checksummed but unrecognised, consume and drop silently
			stats.unknownDrops++
			s.buf = s.buf[frameSize:]
		default:
			stats.crcRejects++
			s.advance(&stats)
		}
	}

	if len(s.buf) == 0 {
		s.buf = nil
	}

	return frames, stats
}

func (s *scanner) advance(stats *scanStats) {
	s.buf = s.buf[1:]
	stats.resyncDrops++
}

func (s *scanner) reset() {
	s.buf = nil
}
