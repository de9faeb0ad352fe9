package factories

import (
	"fmt"

	"senabot/core"
	contexthandler "senabot/handlers/context"
	llmhandler "senabot/handlers/llm"
	stthandler "senabot/handlers/stt"
	ttshandler "senabot/handlers/tts"
	vadhandler "senabot/handlers/vad"

	"github.com/bytedance/sonic"
)

// SessionTTSConfig bundles TTS handler config with primary and optional
// fallback service factory configs.
type SessionTTSConfig struct {
	HandlerConfig ttshandler.TTSConfig `json:"handler"`
	// ServiceConfig selects and configures the primary TTS provider.
	ServiceConfig TTSFactoryConfig `json:"service"`
	// FallbackServiceConfigs is an ordered list of fallback providers tried
	// if the primary fails.
	FallbackServiceConfigs []TTSFactoryConfig `json:"fallbacks,omitempty"`
}

// BuildHandler constructs a TTSHandler with primary and fallback services
// wired up.
func (c SessionTTSConfig) BuildHandler(logger *core.Logger) (*ttshandler.TTSHandler, error) {
	primary, err := BuildTTSService(c.ServiceConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("tts primary service: %w", err)
	}
	var backups []core.IService
	for i, fbCfg := range c.FallbackServiceConfigs {
		fb, err := BuildTTSService(fbCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("tts fallback[%d]: %w", i, err)
		}
		backups = append(backups, fb)
	}
	return ttshandler.NewTTSHandler(primary, backups, c.HandlerConfig, logger), nil
}

// SessionSTTConfig bundles STT handler config with primary and optional
// fallback service factory configs.
type SessionSTTConfig struct {
	HandlerConfig          stthandler.STTConfig `json:"handler"`
	ServiceConfig          STTFactoryConfig     `json:"service"`
	FallbackServiceConfigs []STTFactoryConfig   `json:"fallbacks,omitempty"`
}

// BuildHandler constructs an STTHandler with primary and fallback services
// wired up.
func (c SessionSTTConfig) BuildHandler(logger *core.Logger) (*stthandler.STTHandler, error) {
	primary, err := BuildSTTService(c.ServiceConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("stt primary service: %w", err)
	}
	var backups []core.IService
	for i, fbCfg := range c.FallbackServiceConfigs {
		fb, err := BuildSTTService(fbCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("stt fallback[%d]: %w", i, err)
		}
		backups = append(backups, fb)
	}
	return stthandler.NewSTTHandler(primary, backups, c.HandlerConfig, logger), nil
}

// SessionLLMConfig bundles LLM handler config with primary and optional
// fallback service factory configs.
type SessionLLMConfig struct {
	HandlerConfig          llmhandler.LLMConfig `json:"handler"`
	ServiceConfig          LLMFactoryConfig     `json:"service"`
	FallbackServiceConfigs []LLMFactoryConfig   `json:"fallbacks,omitempty"`
}

// BuildHandler constructs an LLMHandler with primary and fallback services
// wired up.
func (c SessionLLMConfig) BuildHandler(logger *core.Logger) (*llmhandler.LLMHandler, error) {
	primary, err := BuildLLMService(c.ServiceConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("llm primary service: %w", err)
	}
	var backups []core.IService
	for i, fbCfg := range c.FallbackServiceConfigs {
		fb, err := BuildLLMService(fbCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("llm fallback[%d]: %w", i, err)
		}
		backups = append(backups, fb)
	}
	return llmhandler.NewLLMHandler(primary, backups, c.HandlerConfig, logger), nil
}

// SessionVADConfig bundles VAD handler config with the detector config.
type SessionVADConfig struct {
	HandlerConfig vadhandler.VADConfig `json:"handler"`
	ServiceConfig VADFactoryConfig     `json:"service"`
}

// BuildHandler constructs a VADHandler.
func (c SessionVADConfig) BuildHandler(logger *core.Logger) (*vadhandler.VADHandler, error) {
	service, err := BuildVADService(c.ServiceConfig)
	if err != nil {
		return nil, fmt.Errorf("vad service: %w", err)
	}
	return vadhandler.NewVADHandler(service, nil, c.HandlerConfig, logger), nil
}

// SessionConfig is the top-level configuration for a complete voice session
// pipeline.
type SessionConfig struct {
	TTS     SessionTTSConfig             `json:"tts"`
	STT     SessionSTTConfig             `json:"stt"`
	LLM     SessionLLMConfig             `json:"llm"`
	VAD     SessionVADConfig             `json:"vad"`
	Context contexthandler.ContextConfig `json:"context"`
}

// DefaultSessionConfig returns a SessionConfig pre-filled with handler
// defaults for every component. Populate the ServiceConfig fields before
// calling BuildHandlers.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		TTS: SessionTTSConfig{HandlerConfig: ttshandler.DefaultConfig()},
		STT: SessionSTTConfig{HandlerConfig: stthandler.DefaultConfig()},
		LLM: SessionLLMConfig{HandlerConfig: llmhandler.DefaultConfig()},
		VAD: SessionVADConfig{HandlerConfig: vadhandler.DefaultConfig()},
	}
}

// SessionConfigFromJSON parses a JSON blob into a SessionConfig, starting
// from DefaultSessionConfig so fields absent from the JSON retain their
// defaults.
func SessionConfigFromJSON(data []byte) (SessionConfig, error) {
	cfg := DefaultSessionConfig()
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return SessionConfig{}, fmt.Errorf("session config: %w", err)
	}
	return cfg, nil
}

// APIKeys holds API credentials for all supported service providers. Pass to
// SessionConfig.InjectAPIKeys after loading from JSON so secrets never live
// in config files.
type APIKeys struct {
	OpenAI     string
	Groq       string
	Together   string
	DeepSeek   string
	OpenRouter string
	Mistral    string
	Deepgram   string
	Gladia     string
	Cartesia   string
}

// InjectAPIKeys applies API credentials to all configured service providers
// (primary and fallbacks) in the SessionConfig.
func (c *SessionConfig) InjectAPIKeys(keys APIKeys) {
	injectSTTKeys(&c.STT.ServiceConfig, keys)
	for i := range c.STT.FallbackServiceConfigs {
		injectSTTKeys(&c.STT.FallbackServiceConfigs[i], keys)
	}

	injectLLMKeys(&c.LLM.ServiceConfig, keys)
	for i := range c.LLM.FallbackServiceConfigs {
		injectLLMKeys(&c.LLM.FallbackServiceConfigs[i], keys)
	}

	injectTTSKeys(&c.TTS.ServiceConfig, keys)
	for i := range c.TTS.FallbackServiceConfigs {
		injectTTSKeys(&c.TTS.FallbackServiceConfigs[i], keys)
	}
}

func injectSTTKeys(cfg *STTFactoryConfig, keys APIKeys) {
	if cfg.DeepgramConfig != nil && cfg.DeepgramConfig.APIKey == "" {
		cfg.DeepgramConfig.APIKey = keys.Deepgram
	}
	if cfg.GladiaConfig != nil && cfg.GladiaConfig.APIKey == "" {
		cfg.GladiaConfig.APIKey = keys.Gladia
	}
}

func injectLLMKeys(cfg *LLMFactoryConfig, keys APIKeys) {
	if cfg.OpenAIConfig != nil && cfg.OpenAIConfig.APIKey == "" {
		cfg.OpenAIConfig.APIKey = keys.OpenAI
	}
	if cfg.GroqConfig != nil && cfg.GroqConfig.APIKey == "" {
		cfg.GroqConfig.APIKey = keys.Groq
	}
	if cfg.TogetherConfig != nil && cfg.TogetherConfig.APIKey == "" {
		cfg.TogetherConfig.APIKey = keys.Together
	}
	if cfg.DeepSeekConfig != nil && cfg.DeepSeekConfig.APIKey == "" {
		cfg.DeepSeekConfig.APIKey = keys.DeepSeek
	}
	if cfg.OpenRouterConfig != nil && cfg.OpenRouterConfig.APIKey == "" {
		cfg.OpenRouterConfig.APIKey = keys.OpenRouter
	}
	if cfg.MistralConfig != nil && cfg.MistralConfig.APIKey == "" {
		cfg.MistralConfig.APIKey = keys.Mistral
	}
}

func injectTTSKeys(cfg *TTSFactoryConfig, keys APIKeys) {
	if cfg.CartesiaConfig != nil && cfg.CartesiaConfig.APIKey == "" {
		cfg.CartesiaConfig.APIKey = keys.Cartesia
	}
}

// SessionHandlers holds all constructed handlers ready to be assembled into a
// runner pipeline.
//
// Typical pipeline order:
//
//	TransportInput → VAD → STT → ContextManager.GetUserContextAggregator()
//	  → LLM → ContextManager.GetAssistantContextAggregator() → TTS
//	  → ActivityControl → TransportOutput
type SessionHandlers struct {
	TTS *ttshandler.TTSHandler
	STT *stthandler.STTHandler
	LLM *llmhandler.LLMHandler
	VAD *vadhandler.VADHandler
	// ContextManager manages conversation state. Call
	// GetUserContextAggregator and GetAssistantContextAggregator to obtain
	// the two pipeline handlers.
	ContextManager *contexthandler.ContextManager
}

// BuildHandlers constructs all handlers described by the SessionConfig.
func (c SessionConfig) BuildHandlers(logger *core.Logger) (*SessionHandlers, error) {
	ttsHandler, err := c.TTS.BuildHandler(logger)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	sttHandler, err := c.STT.BuildHandler(logger)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	llmHandler, err := c.LLM.BuildHandler(logger)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	vadHandler, err := c.VAD.BuildHandler(logger)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	ctxMgr := contexthandler.NewContextManager(c.Context, logger)

	return &SessionHandlers{
		TTS:            ttsHandler,
		STT:            sttHandler,
		LLM:            llmHandler,
		VAD:            vadHandler,
		ContextManager: ctxMgr,
	}, nil
}
