package factories

import (
	"errors"

	"senabot/core"
	ttshandler "senabot/handlers/tts"
	cartesiatts "senabot/services/cartesia/tts"
)

// TTSFactoryConfig holds provider-specific configs for TTS service
// construction. Set exactly one provider config; the rest should be left nil.
type TTSFactoryConfig struct {
	CartesiaConfig *cartesiatts.Config `json:"cartesia,omitempty"`
}

// BuildTTSService constructs a TTSService from the given factory config.
// Exactly one provider config must be non-nil.
func BuildTTSService(config TTSFactoryConfig, logger *core.Logger) (ttshandler.TTSService, error) {
	if config.CartesiaConfig != nil {
		return cartesiatts.NewCartesiaTTSService(*config.CartesiaConfig, logger), nil
	}
	return nil, errors.New("TTSFactoryConfig: no provider config specified")
}
