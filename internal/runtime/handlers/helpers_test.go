package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	errspkg "github.com/drblury/kafkaport/internal/runtime/errors"
	"github.com/drblury/kafkaport/internal/runtime/kafka"
	loggingpkg "github.com/drblury/kafkaport/internal/runtime/logging"
	"github.com/drblury/kafkaport/internal/runtime/term"
)

type recordingOutput struct {
	replies []term.Term
	err     error
}

func (o *recordingOutput) Reply(response term.Term) error {
	if o.err != nil {
		return o.err
	}
	o.replies = append(o.replies, response)
	return nil
}

type noopLogger struct{}

func (noopLogger) With(loggingpkg.LogFields) loggingpkg.ServiceLogger { return noopLogger{} }
func (noopLogger) Debug(string, loggingpkg.LogFields)                 {}
func (noopLogger) Info(string, loggingpkg.LogFields)                  {}
func (noopLogger) Error(string, error, loggingpkg.LogFields)          {}
func (noopLogger) Trace(string, loggingpkg.LogFields)                 {}

// fakeCluster is an in-memory cluster backing both capability fakes.
type fakeCluster struct {
	partitions map[string]int32
	endOffsets map[kafka.TopicPartition]int64
	committed  map[string]map[kafka.TopicPartition]int64
	failWith   error
	closed     bool
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		partitions: map[string]int32{},
		endOffsets: map[kafka.TopicPartition]int64{},
		committed:  map[string]map[kafka.TopicPartition]int64{},
	}
}

func (c *fakeCluster) ListTopics(context.Context) ([]string, error) {
	if c.failWith != nil {
		return nil, c.failWith
	}
	topics := make([]string, 0, len(c.partitions))
	for topic := range c.partitions {
		topics = append(topics, topic)
	}
	return topics, nil
}

func (c *fakeCluster) DescribeTopics(_ context.Context, topics []string) (map[string][]int32, error) {
	if c.failWith != nil {
		return nil, c.failWith
	}
	out := make(map[string][]int32, len(topics))
	for _, topic := range topics {
		n, ok := c.partitions[topic]
		if !ok {
			return nil, fmt.Errorf("topic %s: This server does not host this topic-partition.", topic)
		}
		ids := make([]int32, n)
		for i := range ids {
			ids[i] = int32(i)
		}
		out[topic] = ids
	}
	return out, nil
}

func (c *fakeCluster) ListOffsets(_ context.Context, specs map[kafka.TopicPartition]kafka.OffsetSpec) (map[kafka.TopicPartition]int64, error) {
	if c.failWith != nil {
		return nil, c.failWith
	}
	out := make(map[kafka.TopicPartition]int64, len(specs))
	for tp, spec := range specs {
		if spec != kafka.OffsetSpecLatest {
			return nil, errors.New("unexpected offset spec")
		}
		out[tp] = c.endOffsets[tp]
	}
	return out, nil
}

func (c *fakeCluster) ListConsumerGroupOffsets(_ context.Context, group string, partitions []kafka.TopicPartition) ([]kafka.OffsetResult, error) {
	if c.failWith != nil {
		return nil, c.failWith
	}
	out := make([]kafka.OffsetResult, 0, len(partitions))
	for _, tp := range partitions {
		offset, ok := c.committed[group][tp]
		out = append(out, kafka.OffsetResult{TopicPartition: tp, Offset: offset, Committed: ok})
	}
	return out, nil
}

func (c *fakeCluster) Close() error {
	c.closed = true
	return nil
}

// fakeProducer acknowledges records when Flush runs.
type fakeProducer struct {
	mu        sync.Mutex
	pending   []kafka.ProducerRecord
	delivered []kafka.ProducerRecord
	flushErr  error
	flushes   int
	closed    bool
}

func (p *fakeProducer) Send(ctx context.Context, rec kafka.ProducerRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("producer is closed")
	}
	p.pending = append(p.pending, rec)
	return nil
}

func (p *fakeProducer) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushes++
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", errspkg.ErrInterrupted, ctx.Err())
	}
	if p.flushErr != nil {
		p.pending = nil
		return p.flushErr
	}
	p.delivered = append(p.delivered, p.pending...)
	p.pending = nil
	return nil
}

func (p *fakeProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func cmd(name string, args ...term.Term) Command {
	c, err := DecodeCommand(term.Tuple{term.Atom(name), term.List(args), term.Atom("ref")})
	if err != nil {
		panic(err)
	}
	return c
}

func tp(topic string, partition int32) term.Tuple {
	return term.Tuple{term.Binary(topic), term.Int(partition)}
}
