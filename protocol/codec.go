package protocol

import (
	"encoding/base64"
	"fmt"

	"github.com/bytedance/sonic"
)

// ParseInbound decodes one frame from the Plivo stream.
func ParseInbound(data []byte) (*InboundMessage, error) {
	var msg InboundMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("protocol: parse inbound frame: %w", err)
	}
	if msg.Event == "" {
		return nil, fmt.Errorf("protocol: inbound frame missing event field")
	}
	return &msg, nil
}

// DecodeMediaPayload extracts the raw audio bytes from a media frame.
func DecodeMediaPayload(media *MediaPayload) ([]byte, error) {
	if media == nil {
		return nil, fmt.Errorf("protocol: media frame missing payload")
	}
	raw, err := base64.StdEncoding.DecodeString(media.Payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: decode media payload: %w", err)
	}
	return raw, nil
}

// MarshalPlayAudio builds a playAudio frame from raw μ-law bytes.
func MarshalPlayAudio(audio []byte, sampleRate int) ([]byte, error) {
	msg := PlayAudioMessage{
		Event: "playAudio",
		Media: PlayAudioMedia{
			ContentType: ContentTypeMulaw,
			SampleRate:  sampleRate,
			Payload:     base64.StdEncoding.EncodeToString(audio),
		},
	}
	data, err := sonic.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal playAudio: %w", err)
	}
	return data, nil
}

// MarshalClearAudio builds a clearAudio frame for the given stream.
func MarshalClearAudio(streamID string) ([]byte, error) {
	data, err := sonic.Marshal(ClearAudioMessage{Event: "clearAudio", StreamID: streamID})
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal clearAudio: %w", err)
	}
	return data, nil
}

// MarshalCheckpoint builds a checkpoint frame for the given stream.
func MarshalCheckpoint(streamID, name string) ([]byte, error) {
	data, err := sonic.Marshal(CheckpointMessage{Event: "checkpoint", StreamID: streamID, Name: name})
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal checkpoint: %w", err)
	}
	return data, nil
}
