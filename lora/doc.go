// Package lora implements a reliable-delivery transport for the Ebyte
// E22-400T22U USB LoRa module, treating the module's serial bridge as a
// lossy byte pipe.
//
// Application packets are fragmented into chunks of up to 26 bytes, each
// carried by a DATA frame and confirmed by a per-chunk ACK in stop-and-wait
// fashion. Unacknowledged chunks are retransmitted on a single-shot timer
// until a retry limit is reached. The receive side reassembles chunks by
// sequence number and confirms the whole packet with a PACKET_ACK frame.
//
// # Frame Format
//
// Every frame is 5 to 31 bytes on the wire:
//
//	[Type][Seq][Total][Len][Payload...][CRC]
//
//   - Type — DATA (0x10), ACK (0x20), NACK (0x30, reserved), PACKET_ACK (0x50)
//   - Seq — zero-based chunk index
//   - Total — chunk count of the packet
//   - Len — payload byte count, at most 26
//   - CRC — CRC-8 (poly 0x31) over the header and payload
//
// Frame boundaries are recovered from the raw byte stream by a scanning
// accumulator: when a candidate frame fails the length or CRC check the
// scanner advances one byte and retries, so the engine resynchronises after
// line noise. A checksummed frame of unknown type is skipped whole.
//
// # Concurrency
//
// The engine is event driven. Its three entry points (SendPacket,
// OnReadable, OnTimeout) serialise on an internal mutex, so it may be
// driven by a serial read pump goroutine and the timer goroutine at the
// same time. Event callbacks run outside the lock and may re-enter the
// engine.
package lora
