package factories

import (
	"errors"

	"senabot/core"
	stthandler "senabot/handlers/stt"
	deepgramstt "senabot/services/deepgram/stt"
	gladiastt "senabot/services/gladia/stt"
)

// STTFactoryConfig holds provider-specific configs for STT service
// construction. Set exactly one provider config; the rest should be left nil.
type STTFactoryConfig struct {
	DeepgramConfig *deepgramstt.Config `json:"deepgram,omitempty"`
	GladiaConfig   *gladiastt.Config   `json:"gladia,omitempty"`
}

// BuildSTTService constructs an ISTTService from the given factory config.
// Exactly one provider config must be non-nil.
func BuildSTTService(config STTFactoryConfig, logger *core.Logger) (stthandler.ISTTService, error) {
	if config.DeepgramConfig != nil {
		return deepgramstt.NewDeepgramSTTService(*config.DeepgramConfig, logger), nil
	}
	if config.GladiaConfig != nil {
		return gladiastt.NewGladiaSTTService(*config.GladiaConfig, logger), nil
	}
	return nil, errors.New("STTFactoryConfig: no provider config specified")
}
