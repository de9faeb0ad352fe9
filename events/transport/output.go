package transport

import "senabot/core"

type TransportAudioInputEvent struct {
	AudioChunk core.AudioChunk
}

func (e *TransportAudioInputEvent) GetId() string {
	return "transport.audio_input"
}

// ClientConnectedEvent is emitted once the telephony stream's start message
// has been received and the call identifiers are known.
type ClientConnectedEvent struct {
	StreamID string
	CallID   string
}

func (e *ClientConnectedEvent) GetId() string {
	return "transport.client_connected"
}

func (e *ClientConnectedEvent) ControlEvent() {}

type ClientDisconnectedEvent struct {
	Reason string
}

func (e *ClientDisconnectedEvent) GetId() string {
	return "transport.client_disconnected"
}

func (e *ClientDisconnectedEvent) ControlEvent() {}

// FlushPlayoutEvent tells the transport output to discard any audio the
// provider has buffered but not yet played. Fired on confirmed interruption.
type FlushPlayoutEvent struct {
	Turn uint64
}

func (e *FlushPlayoutEvent) GetId() string {
	return "transport.flush_playout"
}

func (e *FlushPlayoutEvent) ControlEvent() {}
