package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Admin wraps a kadm client for broker health and topic provisioning.
type Admin struct {
	client  *kgo.Client
	adm     *kadm.Client
	timeout time.Duration
}

// NewAdmin creates an admin client for brokers.
func NewAdmin(brokers string) (*Admin, error) {
	seeds := SplitBrokers(brokers)
	if len(seeds) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	client, err := kgo.NewClient(kgo.SeedBrokers(seeds...))
	if err != nil {
		return nil, fmt.Errorf("create kafka admin client: %w", err)
	}
	return &Admin{client: client, adm: kadm.NewClient(client), timeout: 5 * time.Second}, nil
}

// Check verifies that the cluster answers a metadata request with at least one
// broker.
func (a *Admin) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	brokers, err := a.adm.ListBrokers(ctx)
	if err != nil {
		return fmt.Errorf("kafka unreachable: %w", err)
	}
	if len(brokers) == 0 {
		return fmt.Errorf("kafka reported no brokers")
	}
	return nil
}

// EnsureTopic creates topic if it does not exist yet.
func (a *Admin) EnsureTopic(ctx context.Context, topic string, partitions int32, replicationFactor int16) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resps, err := a.adm.CreateTopics(ctx, partitions, replicationFactor, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, resp := range resps {
		if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", resp.Topic, resp.Err)
		}
	}
	return nil
}

// Name returns the check name for health reporting.
func (a *Admin) Name() string {
	return "kafka"
}

func (a *Admin) Close() {
	a.client.Close()
}
