package factories

import (
	"errors"
	"fmt"

	"senabot/core"
	"senabot/handlers/transport"
	"senabot/transports/plivo"

	"github.com/bytedance/sonic"
)

// TransportFactoryConfig selects and configures the transport provider.
// Set exactly one provider config; the rest should be left nil.
type TransportFactoryConfig struct {
	PlivoConfig *plivo.Config `json:"plivo,omitempty"`
}

// DefaultTransportFactoryConfig returns a config with the Plivo provider on
// its default port and path.
func DefaultTransportFactoryConfig() TransportFactoryConfig {
	return TransportFactoryConfig{
		PlivoConfig: plivo.DefaultConfig(),
	}
}

// TransportFactoryConfigFromJSON parses a JSON blob into a
// TransportFactoryConfig, detecting the provider from the JSON keys.
func TransportFactoryConfigFromJSON(data []byte) (TransportFactoryConfig, error) {
	cfg := TransportFactoryConfig{}
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return TransportFactoryConfig{}, fmt.Errorf("transport config: %w", err)
	}
	if cfg.PlivoConfig == nil {
		return DefaultTransportFactoryConfig(), nil
	}
	return cfg, nil
}

// GetProvider constructs the configured transport provider.
func (c TransportFactoryConfig) GetProvider(logger *core.Logger) (transport.ITransportProvider, error) {
	if c.PlivoConfig != nil {
		return plivo.NewPlivoTransportProvider(c.PlivoConfig, logger), nil
	}
	return nil, errors.New("TransportFactoryConfig: no provider config specified")
}
