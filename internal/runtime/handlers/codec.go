package handlers

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	errspkg "github.com/drblury/kafkaport/internal/runtime/errors"
	"github.com/drblury/kafkaport/internal/runtime/kafka"
	"github.com/drblury/kafkaport/internal/runtime/term"
)

// EncodeTopicPartition renders tp as {<<Topic>>, Partition}.
func EncodeTopicPartition(tp kafka.TopicPartition) term.Tuple {
	return term.Tuple{term.Binary(tp.Topic), term.Int(tp.Partition)}
}

// DecodeTopicPartition accepts {Topic, Partition} with the topic as a binary,
// charlist or atom.
func DecodeTopicPartition(t term.Term) (kafka.TopicPartition, error) {
	tuple, err := term.ToTuple(t, 2)
	if err != nil {
		return kafka.TopicPartition{}, err
	}
	topic, err := term.ToString(tuple[0])
	if err != nil {
		return kafka.TopicPartition{}, fmt.Errorf("topic: %w", err)
	}
	partition, err := term.ToInt32(tuple[1])
	if err != nil {
		return kafka.TopicPartition{}, fmt.Errorf("partition: %w", err)
	}
	return kafka.TopicPartition{Topic: topic, Partition: partition}, nil
}

func decodeTopicPartitions(t term.Term) ([]kafka.TopicPartition, error) {
	list, err := term.ToList(t)
	if err != nil {
		return nil, err
	}
	out := make([]kafka.TopicPartition, 0, len(list))
	for _, item := range list {
		tp, err := DecodeTopicPartition(item)
		if err != nil {
			return nil, err
		}
		out = append(out, tp)
	}
	return out, nil
}

func compareTopicPartitions(a, b kafka.TopicPartition) int {
	if c := strings.Compare(a.Topic, b.Topic); c != 0 {
		return c
	}
	return cmp.Compare(a.Partition, b.Partition)
}

func encodeTopics(topics []string) term.Term {
	return term.Strings(topics)
}

func encodePartitionsByTopic(described map[string][]int32) term.Term {
	topics := make([]string, 0, len(described))
	for topic := range described {
		topics = append(topics, topic)
	}
	slices.Sort(topics)

	out := make(term.Map, 0, len(topics))
	for _, topic := range topics {
		partitions := make(term.List, 0, len(described[topic]))
		for _, p := range described[topic] {
			partitions = append(partitions, term.Int(p))
		}
		out = append(out, term.Pair{Key: term.Binary(topic), Value: partitions})
	}
	return out
}

func encodeOffsets(offsets map[kafka.TopicPartition]int64) term.Term {
	keys := make([]kafka.TopicPartition, 0, len(offsets))
	for tp := range offsets {
		keys = append(keys, tp)
	}
	slices.SortFunc(keys, compareTopicPartitions)

	out := make(term.Map, 0, len(keys))
	for _, tp := range keys {
		out = append(out, term.Pair{Key: EncodeTopicPartition(tp), Value: term.Long(offsets[tp])})
	}
	return out
}

// encodeCommittedOffsets maps partitions without a commit to the nil atom.
func encodeCommittedOffsets(results []kafka.OffsetResult) term.Term {
	sorted := slices.Clone(results)
	slices.SortFunc(sorted, func(a, b kafka.OffsetResult) int {
		return compareTopicPartitions(a.TopicPartition, b.TopicPartition)
	})

	out := make(term.Map, 0, len(sorted))
	for i, r := range sorted {
		if i > 0 && sorted[i-1].TopicPartition == r.TopicPartition {
			continue
		}
		var value term.Term = term.Nil
		if r.Committed {
			value = term.Long(r.Offset)
		}
		out = append(out, term.Pair{Key: EncodeTopicPartition(r.TopicPartition), Value: value})
	}
	return out
}

// Record map keys. Atom and binary keys are both accepted.
const (
	recordTopic     = "topic"
	recordPartition = "partition"
	recordTimestamp = "timestamp"
	recordKey       = "key"
	recordValue     = "value"
)

// DecodeRecord reads a producer record map. Missing or nil fields are unset;
// topic is required.
func DecodeRecord(t term.Term) (kafka.ProducerRecord, error) {
	m, err := term.ToMap(t)
	if err != nil {
		return kafka.ProducerRecord{}, err
	}

	var rec kafka.ProducerRecord
	topic, ok := m.Lookup(recordTopic)
	if !ok || term.IsNil(topic) {
		return rec, fmt.Errorf("record: %s is required", recordTopic)
	}
	if rec.Topic, err = term.ToString(topic); err != nil {
		return rec, fmt.Errorf("record %s: %w", recordTopic, err)
	}
	if rec.Topic == "" {
		return rec, fmt.Errorf("record: %s is required", recordTopic)
	}

	if v, ok := m.Lookup(recordPartition); ok && !term.IsNil(v) {
		p, err := term.ToInt32(v)
		if err != nil {
			return rec, fmt.Errorf("record %s: %w", recordPartition, err)
		}
		rec.Partition = &p
	}
	if v, ok := m.Lookup(recordTimestamp); ok && !term.IsNil(v) {
		ts, err := term.ToInt64(v)
		if err != nil {
			return rec, fmt.Errorf("record %s: %w", recordTimestamp, err)
		}
		rec.TimestampMillis = &ts
	}
	if v, ok := m.Lookup(recordKey); ok {
		if rec.Key, err = term.ToBytes(v); err != nil {
			return rec, fmt.Errorf("record %s: %w", recordKey, err)
		}
	}
	if v, ok := m.Lookup(recordValue); ok {
		if rec.Value, err = term.ToBytes(v); err != nil {
			return rec, fmt.Errorf("record %s: %w", recordValue, err)
		}
	}
	return rec, nil
}

// arg returns the i-th argument of cmd or a malformed-command error.
func arg(cmd Command, i int) (term.Term, error) {
	if i >= len(cmd.Args) {
		return nil, fmt.Errorf("%w: %s expects at least %d argument(s), got %d", errspkg.ErrMalformedCommand, cmd.Name, i+1, len(cmd.Args))
	}
	return cmd.Args[i], nil
}

func malformed(cmd Command, err error) error {
	return fmt.Errorf("%w: %s: %w", errspkg.ErrMalformedCommand, cmd.Name, err)
}
