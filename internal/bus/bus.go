// Package bus provides event bus implementations for TruthLens.
package bus

import (
	"fmt"

	"github.com/truthlens/truthlens/internal/domain"
)

// New creates a new event bus based on configuration.
// "channel" keeps events inside the process; "nats" distributes them.
// "none" disables eventing and returns a nil bus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil

	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		b, err := NewNATSBus(cfg)
		if err != nil {
			return nil, err
		}
		return b, nil

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
