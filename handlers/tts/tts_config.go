package tts

// TTSConfig carries the handler-side knobs for speech synthesis.
type TTSConfig struct {
	// Queue depth for synthesized audio between the service and the handler.
	AudioQueueSize int `json:"audio_queue_size"`

	// When true the normalizer strips markdown markup and unspeakable symbols
	// before text reaches the synthesizer.
	NormalizeText bool `json:"normalize_text"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() TTSConfig {
	return TTSConfig{
		AudioQueueSize: 64,
		NormalizeText:  true,
	}
}
