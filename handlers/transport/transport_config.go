package transport

import "senabot/core"

type TransportConfig struct {
	OutSampleRate  int                      `json:"out_sample_rate"`
	OutChannels    int                      `json:"out_channels"`
	OutAudioFormat core.AudioEncodingFormat `json:"out_audio_format"`
}

// DefaultConfig returns the telephony output format: 8 kHz mono μ-law.
func DefaultConfig() TransportConfig {
	return TransportConfig{
		OutSampleRate:  8000,
		OutChannels:    1,
		OutAudioFormat: core.ULAW,
	}
}
