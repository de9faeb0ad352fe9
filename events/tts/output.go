package tts

import "senabot/core"

type TTSOutputEvent struct {
	AudioChunk core.AudioChunk
	Turn       uint64
}

func (e *TTSOutputEvent) GetId() string {
	return "tts.output"
}

type TTSSpeakingStartedEvent struct {
	Turn uint64
}

func (e *TTSSpeakingStartedEvent) GetId() string {
	return "tts.speaking_started"
}

func (e *TTSSpeakingStartedEvent) ControlEvent() {}

type TTSSpeakingEndedEvent struct {
	Turn uint64
}

func (e *TTSSpeakingEndedEvent) GetId() string {
	return "tts.speaking_ended"
}

func (e *TTSSpeakingEndedEvent) ControlEvent() {}

// TTSSpeakEvent triggers the TTS to immediately speak the given text,
// bypassing the normal LLM chunk accumulation pipeline.
type TTSSpeakEvent struct {
	Text string
	Turn uint64
}

func (e *TTSSpeakEvent) GetId() string {
	return "tts.speak"
}
