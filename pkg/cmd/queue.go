package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/durgasflow/durgasflow/pkg/channels/gochannel"
	"github.com/durgasflow/durgasflow/pkg/channels/kafka"
	"github.com/durgasflow/durgasflow/pkg/dispatch"
)

// Queue is the task backend of a process and, for consumers, the subscriber
// workers read from. Subscriber is nil for the inline backend.
type Queue struct {
	Provider   string
	Backend    dispatch.Backend
	Subscriber message.Subscriber
}

// Close releases the publisher and the subscriber.
func (q Queue) Close() error {
	if err := q.Backend.Close(); err != nil {
		return err
	}

	if q.Subscriber != nil {
		return q.Subscriber.Close()
	}

	return nil
}

// NewQueue creates the task queue. "inline" runs tasks in the caller,
// "gochannel" queues to workers of the same process, "kafka" queues to
// worker processes. A consumer gets a subscriber in the consumer group of
// serviceName.
func NewQueue(provider, serviceName string, consume bool, logger *slog.Logger) Queue {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "inline":
		return Queue{Provider: "inline", Backend: dispatch.NewInlineBackend(logger)}
	case "gochannel":
		pub, sub := gochannel.CreateChannel(wmLogger)

		return Queue{Provider: provider, Backend: dispatch.NewWatermillBackend(pub), Subscriber: sub}
	case "kafka":
		brokers, err := kafka.Brokers()
		if err != nil {
			panic(err)
		}

		if !consume {
			pub, err := kafka.CreatePublisher(wmLogger, brokers)
			if err != nil {
				panic(fmt.Errorf("failed to create Kafka publisher: %w", err))
			}

			return Queue{Provider: provider, Backend: dispatch.NewWatermillBackend(pub)}
		}

		pub, sub, err := kafka.CreateChannel(wmLogger, serviceName, brokers)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return Queue{Provider: provider, Backend: dispatch.NewWatermillBackend(pub), Subscriber: sub}
	default:
		panic("Unsupported queue provider: " + provider)
	}
}

// NewDeduplicator claims task names in Redis when redisURL is set and in
// process memory otherwise.
func NewDeduplicator(redisURL string, logger *slog.Logger) dispatch.Deduplicator {
	if redisURL == "" {
		logger.Warn("REDIS_URL not set, task deduplication is per process")

		return dispatch.NewMemoryDeduplicator(dispatch.DefaultDedupTTL)
	}

	d, err := dispatch.NewRedisDeduplicatorFromURL(redisURL, time.Hour)
	if err != nil {
		panic(err)
	}

	return d
}
