package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

// unassignedPartition marks a message whose record did not name a partition.
// Metadata is not usable for this: the tracing wrapper replaces it.
const unassignedPartition int32 = -1

type recordPartitioner struct {
	fallback sarama.Partitioner
}

func newRecordPartitioner(topic string) sarama.Partitioner {
	return &recordPartitioner{fallback: sarama.NewHashPartitioner(topic)}
}

func (p *recordPartitioner) Partition(msg *sarama.ProducerMessage, numPartitions int32) (int32, error) {
	if msg.Partition == unassignedPartition {
		return p.fallback.Partition(msg, numPartitions)
	}
	if msg.Partition < 0 || msg.Partition >= numPartitions {
		return -1, sarama.ErrInvalidPartition
	}
	return msg.Partition, nil
}

func (p *recordPartitioner) RequiresConsistency() bool {
	return true
}

// SaramaProducer implements Producer on a sarama.AsyncProducer. Two drain
// goroutines consume acknowledgements and failures; the in-flight WaitGroup
// is what Flush waits on.
type SaramaProducer struct {
	producer sarama.AsyncProducer
	// client, when set, is closed after the producer; sarama leaves that to
	// the caller of NewAsyncProducerFromClient.
	client sarama.Client

	inflight sync.WaitGroup
	drained  sync.WaitGroup

	mu       sync.Mutex
	firstErr error
	closed   bool
}

// NewSaramaProducer takes ownership of p. The producer must be configured with
// Return.Successes and Return.Errors enabled.
func NewSaramaProducer(p sarama.AsyncProducer) *SaramaProducer {
	sp := &SaramaProducer{producer: p}
	sp.drained.Add(2)
	go sp.drainSuccesses()
	go sp.drainErrors()
	return sp
}

func (p *SaramaProducer) drainSuccesses() {
	defer p.drained.Done()
	for range p.producer.Successes() {
		p.inflight.Done()
	}
}

func (p *SaramaProducer) drainErrors() {
	defer p.drained.Done()
	for perr := range p.producer.Errors() {
		p.recordError(perr)
		p.inflight.Done()
	}
}

func (p *SaramaProducer) recordError(perr *sarama.ProducerError) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.firstErr != nil {
		return
	}
	if perr.Msg != nil {
		p.firstErr = fmt.Errorf("deliver to %s: %w", perr.Msg.Topic, perr.Err)
		return
	}
	p.firstErr = perr.Err
}

// Send enqueues rec. It blocks only while the producer's input buffer is full.
func (p *SaramaProducer) Send(ctx context.Context, rec ProducerRecord) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return errors.New("producer is closed")
	}

	msg := &sarama.ProducerMessage{Topic: rec.Topic, Partition: unassignedPartition}
	if rec.Key != nil {
		msg.Key = sarama.ByteEncoder(rec.Key)
	}
	if rec.Value != nil {
		msg.Value = sarama.ByteEncoder(rec.Value)
	}
	if rec.Partition != nil {
		msg.Partition = *rec.Partition
	}
	if rec.TimestampMillis != nil {
		msg.Timestamp = time.UnixMilli(*rec.TimestampMillis)
	}

	p.inflight.Add(1)
	select {
	case p.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		p.inflight.Done()
		return ctx.Err()
	}
}

// Flush waits until every record sent so far was acknowledged or failed and
// returns the first delivery error since the previous Flush.
func (p *SaramaProducer) Flush(ctx context.Context) error {
	_, err := await(ctx, 0, nil, func() (struct{}, error) {
		p.inflight.Wait()
		return struct{}{}, nil
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err, p.firstErr = p.firstErr, nil
	return err
}

// Close shuts the producer down, waiting for outstanding records.
func (p *SaramaProducer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.producer.AsyncClose()
	p.drained.Wait()

	var clientErr error
	if p.client != nil {
		clientErr = p.client.Close()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.firstErr, clientErr)
}
