// Package kafka adapts the sarama client to the small capability interfaces the
// port handlers consume.
package kafka

import (
	"context"
	"fmt"
)

// TopicPartition addresses a single partition of a topic. It is comparable and
// is used as a map key.
type TopicPartition struct {
	Topic     string
	Partition int32
}

func (tp TopicPartition) String() string {
	return fmt.Sprintf("%s-%d", tp.Topic, tp.Partition)
}

// OffsetSpec selects which log offset a listing resolves to.
type OffsetSpec int

const (
	OffsetSpecLatest OffsetSpec = iota
	OffsetSpecEarliest
)

func (s OffsetSpec) String() string {
	switch s {
	case OffsetSpecLatest:
		return "latest"
	case OffsetSpecEarliest:
		return "earliest"
	default:
		return fmt.Sprintf("OffsetSpec(%d)", int(s))
	}
}

// OffsetResult is the committed offset of a consumer group for one partition.
// Committed is false when the group never committed an offset there, which is
// distinct from a committed offset of zero.
type OffsetResult struct {
	TopicPartition TopicPartition
	Offset         int64
	Committed      bool
}

// ProducerRecord is a single record submitted to the producer. Nil Partition
// and TimestampMillis mean unset; nil Key and Value are sent as null.
type ProducerRecord struct {
	Topic           string
	Partition       *int32
	TimestampMillis *int64
	Key             []byte
	Value           []byte
}

// Admin is the administrative capability the admin handlers depend on. Every
// call blocks until the cluster answered or ctx is done.
type Admin interface {
	ListTopics(ctx context.Context) ([]string, error)
	DescribeTopics(ctx context.Context, topics []string) (map[string][]int32, error)
	ListOffsets(ctx context.Context, specs map[TopicPartition]OffsetSpec) (map[TopicPartition]int64, error)
	ListConsumerGroupOffsets(ctx context.Context, groupID string, partitions []TopicPartition) ([]OffsetResult, error)
	Close() error
}

// Producer is the capability the producer handlers depend on.
type Producer interface {
	// Send enqueues rec and returns without waiting for the acknowledgement.
	Send(ctx context.Context, rec ProducerRecord) error
	// Flush blocks until every record submitted so far was acknowledged or
	// failed, returning the first delivery error since the previous Flush.
	Flush(ctx context.Context) error
	Close() error
}
