package vad

type VADConfig struct {
	// Minimum confidence for a chunk to count as speech.
	MinConfidence float32 `json:"min_confidence"`

	// Consecutive speech chunks before user speech is considered started.
	ActivationChunks int `json:"activation_chunks"`

	// Consecutive silence chunks before user speech is considered ended.
	HangoverChunks int `json:"hangover_chunks"`

	// Additional sustained speech chunks before a suspected interruption is
	// confirmed. Filters out coughs and backchannel noises.
	ConfirmChunks int `json:"confirm_chunks"`

	// When false the bot is never interrupted; user speech during bot speech
	// is classified but produces no interruption events.
	AllowInterruptions bool `json:"allow_interruptions"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() VADConfig {
	return VADConfig{
		MinConfidence:      0.7,
		ActivationChunks:   2,
		HangoverChunks:     12,
		ConfirmChunks:      5,
		AllowInterruptions: true,
	}
}
