package lora

// Events is the callback set the engine reports through. Nil callbacks are
// skipped. Callbacks are invoked outside the engine lock, after the state
// transition that produced them has completed, so they may call back into
// the engine.
type Events struct {
	// PacketSent reports the terminal outcome of a SendPacket call:
	// true when every chunk was acknowledged, false on write failure or
	// retry exhaustion.
	PacketSent func(ok bool)

	// PacketReceived delivers a fully reassembled inbound packet.
	// The slice is owned by the callee.
	PacketReceived func(data []byte)

	// SendProgress reports acknowledged outbound bytes against the packet
	// size. Emitted once per acknowledged chunk.
	SendProgress func(sent, total int)

	// ReceiveProgress reports reassembled inbound bytes against the best
	// current estimate of the packet size. The estimate is exact once the
	// final chunk has arrived.
	ReceiveProgress func(received, estimate int)

	// Error reports send failures and other surfaced transport errors.
	Error func(err error)
}
