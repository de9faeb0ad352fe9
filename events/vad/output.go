package vad

import "senabot/core"

type VADUserSpeechChunkEvent struct {
	AudioChunk core.AudioChunk
}

func (e *VADUserSpeechChunkEvent) GetId() string {
	return "vad.user_speech.chunk"
}

type VADSilenceChunkEvent struct {
	AudioChunk core.AudioChunk
}

func (e *VADSilenceChunkEvent) GetId() string {
	return "vad.silence.chunk"
}

type VadUserSpeechStartedEvent struct {
}

func (e *VadUserSpeechStartedEvent) GetId() string {
	return "vad.user_speech.started"
}

type VadUserSpeechEndedEvent struct {
}

func (e *VadUserSpeechEndedEvent) GetId() string {
	return "vad.user_speech.ended"
}

// VadInterruptionSuspectedEvent fires as soon as user speech is detected while
// the bot is speaking. Downstream stages stop forwarding output but keep it
// cached until the interruption is either confirmed or dismissed as a false
// positive.
type VadInterruptionSuspectedEvent struct {
}

func (e *VadInterruptionSuspectedEvent) GetId() string {
	return "vad.interruption.suspected"
}

func (e *VadInterruptionSuspectedEvent) ControlEvent() {}

// VadInterruptionDetectedEvent confirms the interruption after the debounce
// window of sustained speech. The live turn is cancelled across all stages.
type VadInterruptionDetectedEvent struct {
}

func (e *VadInterruptionDetectedEvent) GetId() string {
	return "vad.interruption.detected"
}

func (e *VadInterruptionDetectedEvent) ControlEvent() {}
