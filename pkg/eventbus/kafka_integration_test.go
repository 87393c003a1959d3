//go:build integration
// +build integration

package eventbus

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	kafkachannel "github.com/fieldflow/fieldflow/pkg/channels/kafka"
	"github.com/fieldflow/fieldflow/pkg/events"
)

func TestKafkaEventBusRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Kafka integration test in short mode")
	}

	ctx := context.Background()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("test-cluster"),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, container.Terminate(context.Background()))
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	t.Setenv("KAFKA_BROKERS", brokers[0])

	logger := watermill.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	pub, sub, err := kafkachannel.CreateChannel(logger, "eventbus-test")
	require.NoError(t, err)

	bus := NewWatermillEventBus(events.RecordEventsTopic, pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	received := make(chan *events.RecordChanged, 1)

	err = bus.Handle(events.RecordUpdatedEvent, func(_ context.Context, event any) error {
		if changed, ok := event.(*events.RecordChanged); ok {
			received <- changed
		}

		return nil
	})
	require.NoError(t, err)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	require.NoError(t, bus.Subscribe(subCtx))

	event := events.RecordChanged{
		BaseEvent:    events.BaseEvent{ID: "evt-1", Type: events.RecordUpdatedEvent, Timestamp: time.Now().UTC()},
		RecordID:     "deal-1",
		RecordType:   "deal",
		RecordData:   map[string]any{"status": "closed"},
		PreviousData: map[string]any{"status": "open"},
	}
	require.NoError(t, bus.Publish(ctx, "deal-1", event))

	select {
	case got := <-received:
		assert.Equal(t, "deal-1", got.RecordID)
		assert.Equal(t, "deal", got.RecordType)
	case <-time.After(60 * time.Second):
		t.Fatal("timed out waiting for event from Kafka")
	}
}
