//go:build integration

package containers

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaContainer is a single-node broker speaking the Kafka protocol.
type KafkaContainer struct {
	Container *kafka.KafkaContainer
	Brokers   string
}

func startKafka(ctx context.Context) (*KafkaContainer, error) {
	container, err := kafka.Run(ctx,
		"confluentinc/confluent-local:7.6.1",
		kafka.WithClusterID("registry-test"),
	)
	if err != nil {
		return nil, err
	}
	brokers, err := container.Brokers(ctx)
	if err != nil || len(brokers) == 0 {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("brokers: %v", err)
	}
	return &KafkaContainer{Container: container, Brokers: brokers[0]}, nil
}

// ReadRecords consumes topic from the earliest offset until n records have
// arrived. It returns what it has read so far if timeout passes first.
func (k *KafkaContainer) ReadRecords(ctx context.Context, topic string, n int, timeout time.Duration) ([]*kgo.Record, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(k.Brokers),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	records := make([]*kgo.Record, 0, n)
	for len(records) < n {
		fetches := client.PollRecords(ctx, n-len(records))
		if err := ctx.Err(); err != nil {
			return records, fmt.Errorf("got %d of %d records: %w", len(records), n, err)
		}
		records = append(records, fetches.Records()...)
	}
	return records, nil
}
