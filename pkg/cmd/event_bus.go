package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/fieldflow/fieldflow/pkg/channels/gochannel"
	"github.com/fieldflow/fieldflow/pkg/channels/kafka"
	"github.com/fieldflow/fieldflow/pkg/eventbus"
)

// NewEventBus creates an event bus on the given topic. The "kafka" provider
// reads brokers from KAFKA_BROKERS; "gochannel" is in-process only and
// suited to single-binary deployments and tests.
func NewEventBus(topic, provider, serviceName string, logger *slog.Logger) eventbus.EventBus {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, serviceName)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(topic, pub, sub)
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			panic(fmt.Errorf("failed to create in-memory pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(topic, pub, sub)
	default:
		panic("unsupported event bus provider: " + provider)
	}
}
