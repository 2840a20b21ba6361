package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/flowlet-io/flowlet/pkg/eventbus"
	"github.com/flowlet-io/flowlet/pkg/eventbus/gochannel"
	"github.com/flowlet-io/flowlet/pkg/eventbus/kafka"
)

// NewEventBus creates the run lifecycle event bus. The gochannel provider
// is in-process and suits single-binary deployments; kafka requires
// KAFKA_BROKERS.
func NewEventBus(provider, serviceName string, logger *slog.Logger) eventbus.EventBus {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, serviceName)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "", "gochannel":
		pub, sub := gochannel.CreateChannel(wmLogger)

		return eventbus.NewWatermillEventBus(pub, sub)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
