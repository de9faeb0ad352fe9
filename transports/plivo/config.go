package plivo

// Config holds the configuration for the Plivo websocket stream server.
type Config struct {
	// HTTP server port the stream endpoint listens on.
	Port int `json:"port"`

	// Websocket endpoint path the Plivo Stream element connects to.
	Path string `json:"path"`

	// Read buffer size for websocket connections (bytes).
	ReadBufferSize int `json:"read_buffer_size"`

	// Write buffer size for websocket connections (bytes).
	WriteBufferSize int `json:"write_buffer_size"`

	// Maximum inbound message size (bytes).
	MaxMessageSize int64 `json:"max_message_size"`

	// Audio sample rate of the stream (Hz). Plivo telephony streams are 8 kHz.
	AudioSampleRate int `json:"audio_sample_rate"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Port:            8765,
		Path:            "/ws",
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		MaxMessageSize:  65536,
		AudioSampleRate: 8000,
	}
}
