package stt

import "senabot/core"

// STTConfig describes the audio format the transcription service expects.
// Inbound chunks are converted to this format before being sent.
type STTConfig struct {
	SampleRate  int                      `json:"sample_rate"`
	Channels    int                      `json:"channels"`
	AudioFormat core.AudioEncodingFormat `json:"audio_format"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() STTConfig {
	return STTConfig{
		SampleRate:  16000,
		Channels:    1,
		AudioFormat: core.PCM,
	}
}
