package handlers

import (
	"context"
	"fmt"

	"github.com/drblury/kafkaport/internal/runtime/config"
	errspkg "github.com/drblury/kafkaport/internal/runtime/errors"
	"github.com/drblury/kafkaport/internal/runtime/kafka"
	loggingpkg "github.com/drblury/kafkaport/internal/runtime/logging"
)

// ProducerHandlers serves send and stop. send never replies; delivery failures
// surface when stop flushes.
type ProducerHandlers struct {
	producer     kafka.Producer
	logger       loggingpkg.ServiceLogger
	flushFailure config.FlushFailurePolicy
}

func NewProducerHandlers(producer kafka.Producer, logger loggingpkg.ServiceLogger, flushFailure config.FlushFailurePolicy) (*ProducerHandlers, error) {
	if producer == nil {
		return nil, errspkg.ErrClientRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if flushFailure == "" {
		flushFailure = config.FlushFailureAbort
	}
	return &ProducerHandlers{producer: producer, logger: logger, flushFailure: flushFailure}, nil
}

func (h *ProducerHandlers) Handle(ctx context.Context, cmd Command, _ Output) (Outcome, error) {
	switch cmd.Kind {
	case CommandSend:
		return h.send(ctx, cmd)
	case CommandStop:
		return h.stop(ctx)
	case CommandListTopics, CommandDescribeTopics, CommandListEndOffsets, CommandListConsumerGroupOffsets, CommandUnknown:
		return Continue(), fmt.Errorf("%w: %q is not a producer command", errspkg.ErrUnknownCommand, cmd.Name)
	default:
		return Continue(), fmt.Errorf("%w: %q", errspkg.ErrUnknownCommand, cmd.Name)
	}
}

func (h *ProducerHandlers) send(ctx context.Context, cmd Command) (Outcome, error) {
	raw, err := arg(cmd, 0)
	if err != nil {
		return Continue(), err
	}
	rec, err := DecodeRecord(raw)
	if err != nil {
		return Continue(), malformed(cmd, err)
	}
	if err := h.producer.Send(ctx, rec); err != nil {
		return Continue(), fmt.Errorf("send to %s: %w", rec.Topic, err)
	}
	return Continue(), nil
}

func (h *ProducerHandlers) stop(ctx context.Context) (Outcome, error) {
	err := h.producer.Flush(ctx)
	if err == nil {
		return Exit(0), nil
	}
	if h.flushFailure == config.FlushFailureBestEffort && !kafka.IsInterrupted(err) {
		h.logger.Error("Flush failed, shutting down anyway", err, loggingpkg.LogFields{"policy": string(h.flushFailure)})
		return Exit(0), nil
	}
	return Continue(), fmt.Errorf("flush: %w", err)
}

// Close releases the producer. Records still queued are delivered first.
func (h *ProducerHandlers) Close() error {
	return h.producer.Close()
}
