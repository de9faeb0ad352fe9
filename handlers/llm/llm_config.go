package llm

// LLMConfig carries the handler-side knobs; model parameters live in the
// service configuration.
type LLMConfig struct {
	// Queue depth for streamed chunks between the service and the handler.
	ChunkQueueSize int `json:"chunk_queue_size"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() LLMConfig {
	return LLMConfig{
		ChunkQueueSize: 64,
	}
}
