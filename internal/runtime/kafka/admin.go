package kafka

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/IBM/sarama"
)

// Topics the JVM admin client leaves out of a default listing.
var internalTopics = map[string]struct{}{
	"__consumer_offsets":  {},
	"__transaction_state": {},
}

// clusterAdmin is the part of sarama.ClusterAdmin the adapter uses.
type clusterAdmin interface {
	DescribeTopics(topics []string) ([]*sarama.TopicMetadata, error)
	ListConsumerGroupOffsets(group string, topicPartitions map[string][]int32) (*sarama.OffsetFetchResponse, error)
	Close() error
}

// metadataClient is the part of sarama.Client the adapter uses.
type metadataClient interface {
	RefreshMetadata(topics ...string) error
	Topics() ([]string, error)
	GetOffset(topic string, partitionID int32, time int64) (int64, error)
}

// SaramaAdmin implements Admin on a sarama cluster admin and the client it was
// built from. Every call runs under await, so a cancelled context interrupts
// the wait and the optional request timeout turns a slow call into a
// *TimeoutError. Calls share one slot: a timed out call still occupies the
// cluster connection until sarama returns, and the next call queues behind it.
type SaramaAdmin struct {
	admin   clusterAdmin
	client  metadataClient
	timeout time.Duration
	slot    chan struct{}
}

// NewSaramaAdmin builds an admin adapter sharing client for metadata and
// offset lookups. Closing the adapter closes both.
func NewSaramaAdmin(client sarama.Client, timeout time.Duration) (*SaramaAdmin, error) {
	admin, err := newClusterAdminFromClient(client)
	if err != nil {
		return nil, fmt.Errorf("create cluster admin: %w", err)
	}
	return newSaramaAdmin(admin, client, timeout), nil
}

func newSaramaAdmin(admin clusterAdmin, client metadataClient, timeout time.Duration) *SaramaAdmin {
	return &SaramaAdmin{admin: admin, client: client, timeout: timeout, slot: make(chan struct{}, 1)}
}

// ListTopics refreshes cluster metadata and lists the topic names in it. This
// is a single metadata round trip; the cluster admin listing also describes
// every topic's configs.
func (a *SaramaAdmin) ListTopics(ctx context.Context) ([]string, error) {
	return await(ctx, a.timeout, a.slot, func() ([]string, error) {
		if err := a.client.RefreshMetadata(); err != nil {
			return nil, err
		}
		topics, err := a.client.Topics()
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(topics))
		for _, name := range topics {
			if _, internal := internalTopics[name]; internal {
				continue
			}
			names = append(names, name)
		}
		sort.Strings(names)
		return names, nil
	})
}

// DescribeTopics returns the partition ids of exactly the named topics. Any
// per-topic error fails the whole call.
func (a *SaramaAdmin) DescribeTopics(ctx context.Context, topics []string) (map[string][]int32, error) {
	return await(ctx, a.timeout, a.slot, func() (map[string][]int32, error) {
		if len(topics) == 0 {
			return map[string][]int32{}, nil
		}
		metadata, err := a.admin.DescribeTopics(topics)
		if err != nil {
			return nil, err
		}
		out := make(map[string][]int32, len(metadata))
		for _, tm := range metadata {
			if tm == nil || !slices.Contains(topics, tm.Name) {
				continue
			}
			if tm.Err != sarama.ErrNoError {
				return nil, fmt.Errorf("topic %s: %w", tm.Name, tm.Err)
			}
			partitions := make([]int32, 0, len(tm.Partitions))
			for _, pm := range tm.Partitions {
				partitions = append(partitions, pm.ID)
			}
			slices.Sort(partitions)
			out[tm.Name] = partitions
		}
		for _, topic := range topics {
			if _, ok := out[topic]; !ok {
				return nil, fmt.Errorf("topic %s: %w", topic, sarama.ErrUnknownTopicOrPartition)
			}
		}
		return out, nil
	})
}

// ListOffsets resolves each partition's offset for its spec, one request per
// partition. The first failure aborts the call.
func (a *SaramaAdmin) ListOffsets(ctx context.Context, specs map[TopicPartition]OffsetSpec) (map[TopicPartition]int64, error) {
	return await(ctx, a.timeout, a.slot, func() (map[TopicPartition]int64, error) {
		out := make(map[TopicPartition]int64, len(specs))
		for tp, spec := range specs {
			var at int64
			switch spec {
			case OffsetSpecLatest:
				at = sarama.OffsetNewest
			case OffsetSpecEarliest:
				at = sarama.OffsetOldest
			default:
				return nil, fmt.Errorf("%s: unsupported offset spec %s", tp, spec)
			}
			offset, err := a.client.GetOffset(tp.Topic, tp.Partition, at)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", tp, err)
			}
			out[tp] = offset
		}
		return out, nil
	})
}

// ListConsumerGroupOffsets reports the committed offsets of groupID for the
// given partitions. Partitions without a commit come back with Committed false.
func (a *SaramaAdmin) ListConsumerGroupOffsets(ctx context.Context, groupID string, partitions []TopicPartition) ([]OffsetResult, error) {
	return await(ctx, a.timeout, a.slot, func() ([]OffsetResult, error) {
		request := make(map[string][]int32)
		for _, tp := range partitions {
			request[tp.Topic] = append(request[tp.Topic], tp.Partition)
		}
		resp, err := a.admin.ListConsumerGroupOffsets(groupID, request)
		if err != nil {
			return nil, err
		}
		if resp.Err != sarama.ErrNoError {
			return nil, fmt.Errorf("group %s: %w", groupID, resp.Err)
		}

		results := make([]OffsetResult, 0, len(partitions))
		for _, tp := range partitions {
			result := OffsetResult{TopicPartition: tp}
			block := resp.GetBlock(tp.Topic, tp.Partition)
			if block != nil {
				if block.Err != sarama.ErrNoError {
					return nil, fmt.Errorf("%s: %w", tp, block.Err)
				}
				if block.Offset >= 0 {
					result.Offset = block.Offset
					result.Committed = true
				}
			}
			results = append(results, result)
		}
		return results, nil
	})
}

func (a *SaramaAdmin) Close() error {
	return a.admin.Close()
}
