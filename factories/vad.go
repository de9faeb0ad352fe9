package factories

import (
	vadhandler "senabot/handlers/vad"
	energyvad "senabot/services/energy/vad"
)

// VADFactoryConfig holds provider-specific configs for VAD service
// construction.
type VADFactoryConfig struct {
	EnergyConfig *energyvad.Config `json:"energy,omitempty"`
}

// BuildVADService constructs a VADService from the given factory config.
// When no provider is configured the energy detector with default settings
// is used.
func BuildVADService(config VADFactoryConfig) (vadhandler.VADService, error) {
	if config.EnergyConfig != nil {
		return energyvad.NewEnergyVADService(*config.EnergyConfig), nil
	}
	return energyvad.NewEnergyVADService(energyvad.DefaultConfig()), nil
}
