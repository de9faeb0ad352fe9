package protocol

// Plivo bidirectional audio stream messages. Inbound frames arrive as JSON
// text messages on the websocket; media payloads are base64-encoded μ-law.

// InboundMessage is the envelope for every message Plivo sends on the stream.
type InboundMessage struct {
	Event          string        `json:"event"`
	SequenceNumber int64         `json:"sequenceNumber,omitempty"`
	StreamID       string        `json:"streamId,omitempty"`
	Start          *StartPayload `json:"start,omitempty"`
	Media          *MediaPayload `json:"media,omitempty"`
}

const (
	EventStart = "start"
	EventMedia = "media"
	EventStop  = "stop"
)

// StartPayload carries the call identifiers delivered when the stream opens.
type StartPayload struct {
	StreamID    string       `json:"streamId"`
	CallID      string       `json:"callId"`
	AccountID   string       `json:"accountId,omitempty"`
	Tracks      []string     `json:"tracks,omitempty"`
	MediaFormat *MediaFormat `json:"mediaFormat,omitempty"`
}

type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
}

type MediaPayload struct {
	Track     string `json:"track"`
	Timestamp string `json:"timestamp"`
	Payload   string `json:"payload"` // base64-encoded audio
}

// TrackInbound is the caller's audio; outbound echoes are ignored.
const TrackInbound = "inbound"

// PlayAudioMessage delivers synthesized audio back to the caller.
type PlayAudioMessage struct {
	Event string         `json:"event"`
	Media PlayAudioMedia `json:"media"`
}

type PlayAudioMedia struct {
	ContentType string `json:"contentType"`
	SampleRate  int    `json:"sampleRate"`
	Payload     string `json:"payload"` // base64-encoded audio
}

const ContentTypeMulaw = "audio/x-mulaw"

// ClearAudioMessage discards everything queued in Plivo's playout buffer.
// Sent when the caller interrupts the bot mid-reply.
type ClearAudioMessage struct {
	Event    string `json:"event"`
	StreamID string `json:"streamId"`
}

// CheckpointMessage asks Plivo to notify once all audio sent before it has
// been played out.
type CheckpointMessage struct {
	Event    string `json:"event"`
	StreamID string `json:"streamId"`
	Name     string `json:"name"`
}
