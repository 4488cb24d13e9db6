//go:build integration

// Package containers starts the backing services integration tests run
// against. Each service is started at most once per test binary and shared by
// every suite in it; Ryuk removes the containers when the process exits.
package containers

import (
	"context"
	"sync"
	"testing"
	"time"
)

const startTimeout = 2 * time.Minute

// fixture starts a container on first use and hands the same instance (or the
// same startup error) to every later caller.
type fixture[T any] struct {
	once sync.Once
	val  T
	err  error
}

func (f *fixture[T]) get(tb testing.TB, name string, start func(context.Context) (T, error)) T {
	tb.Helper()
	f.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()
		f.val, f.err = start(ctx)
	})
	if f.err != nil {
		tb.Fatalf("start %s container: %v", name, f.err)
	}
	return f.val
}

var (
	postgresFixture fixture[*PostgresContainer]
	kafkaFixture    fixture[*KafkaContainer]
	redisFixture    fixture[*RedisContainer]
)

// Postgres returns the shared, migrated Postgres container.
func Postgres(tb testing.TB) *PostgresContainer {
	tb.Helper()
	return postgresFixture.get(tb, "postgres", startPostgres)
}

// Kafka returns the shared Kafka-compatible broker.
func Kafka(tb testing.TB) *KafkaContainer {
	tb.Helper()
	return kafkaFixture.get(tb, "kafka", startKafka)
}

// Redis returns the shared Redis container.
func Redis(tb testing.TB) *RedisContainer {
	tb.Helper()
	return redisFixture.get(tb, "redis", startRedis)
}
