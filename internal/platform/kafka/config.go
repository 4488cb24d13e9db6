package kafka

import (
	"strings"
	"time"
)

// ProducerConfig holds configuration for the registry event producer.
type ProducerConfig struct {
	Brokers         string
	ClientID        string
	Acks            string
	Retries         int
	DeliveryTimeout time.Duration
	// DefaultTopic receives messages that do not name a topic.
	DefaultTopic string
}

// DefaultProducerConfig returns settings that favour durability: registry events
// are published from the outbox, so latency matters less than acknowledgement.
func DefaultProducerConfig(brokers, topic string) ProducerConfig {
	return ProducerConfig{
		Brokers:         brokers,
		ClientID:        "credregistry",
		Acks:            "all",
		Retries:         3,
		DeliveryTimeout: 30 * time.Second,
		DefaultTopic:    topic,
	}
}

// SplitBrokers parses a comma separated broker list, dropping blanks.
func SplitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
