package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v5"
	"github.com/dnwe/otelsarama"

	"github.com/drblury/kafkaport/internal/runtime/logging"
)

// Factories are variables so tests can avoid a live cluster.
var (
	NewClientFactory = func(brokers []string, cfg *sarama.Config) (sarama.Client, error) {
		return sarama.NewClient(brokers, cfg)
	}
	newClusterAdminFromClient = func(client sarama.Client) (clusterAdmin, error) {
		return sarama.NewClusterAdminFromClient(client)
	}
	NewAsyncProducerFactory = func(client sarama.Client) (sarama.AsyncProducer, error) {
		return sarama.NewAsyncProducerFromClient(client)
	}
)

// Connect opens a sarama client, retrying with exponential backoff until
// maxElapsed passes. A zero maxElapsed tries once. Configuration errors are
// not retried.
func Connect(ctx context.Context, brokers []string, cfg *sarama.Config, maxElapsed time.Duration, log logging.ServiceLogger) (sarama.Client, error) {
	attempt := 0
	op := func() (sarama.Client, error) {
		attempt++
		client, err := NewClientFactory(brokers, cfg)
		if err == nil {
			return client, nil
		}
		var cfgErr sarama.ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	opts := []backoff.RetryOption{backoff.WithBackOff(backoff.NewExponentialBackOff())}
	if maxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(maxElapsed))
	} else {
		opts = append(opts, backoff.WithMaxTries(1))
	}
	if log != nil {
		opts = append(opts, backoff.WithNotify(func(err error, next time.Duration) {
			log.Info("Kafka cluster not reachable, retrying", logging.LogFields{
				"brokers":  brokers,
				"attempt":  attempt,
				"retry_in": next.String(),
				"error":    err.Error(),
			})
		}))
	}

	client, err := backoff.Retry(ctx, op, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to %v: %w", brokers, err)
	}
	return client, nil
}

// OpenAdmin connects and wraps the client in a SaramaAdmin.
func OpenAdmin(ctx context.Context, brokers []string, cfg *sarama.Config, connectTimeout, requestTimeout time.Duration, log logging.ServiceLogger) (*SaramaAdmin, error) {
	client, err := Connect(ctx, brokers, cfg, connectTimeout, log)
	if err != nil {
		return nil, err
	}
	admin, err := NewSaramaAdmin(client, requestTimeout)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return admin, nil
}

// OpenProducer connects and wraps an async producer in a SaramaProducer.
func OpenProducer(ctx context.Context, brokers []string, cfg *sarama.Config, connectTimeout time.Duration, log logging.ServiceLogger) (*SaramaProducer, error) {
	client, err := Connect(ctx, brokers, cfg, connectTimeout, log)
	if err != nil {
		return nil, err
	}
	producer, err := NewAsyncProducerFactory(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("create producer: %w", err)
	}
	// Each record gets a producer span and its trace context in the headers.
	sp := NewSaramaProducer(otelsarama.WrapAsyncProducer(cfg, producer))
	sp.client = client
	return sp, nil
}
