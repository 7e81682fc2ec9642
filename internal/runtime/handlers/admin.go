package handlers

import (
	"context"
	"fmt"

	errspkg "github.com/drblury/kafkaport/internal/runtime/errors"
	"github.com/drblury/kafkaport/internal/runtime/kafka"
	loggingpkg "github.com/drblury/kafkaport/internal/runtime/logging"
	"github.com/drblury/kafkaport/internal/runtime/term"
)

// AdminHandlers serves the administrative commands. Cluster failures become
// {error, Message} replies; only an interrupted wait is returned as an error.
type AdminHandlers struct {
	admin  kafka.Admin
	logger loggingpkg.ServiceLogger
}

func NewAdminHandlers(admin kafka.Admin, logger loggingpkg.ServiceLogger) (*AdminHandlers, error) {
	if admin == nil {
		return nil, errspkg.ErrClientRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	return &AdminHandlers{admin: admin, logger: logger}, nil
}

func (h *AdminHandlers) Handle(ctx context.Context, cmd Command, out Output) (Outcome, error) {
	switch cmd.Kind {
	case CommandStop:
		return Exit(0), nil
	case CommandListTopics:
		topics, err := h.admin.ListTopics(ctx)
		return reply(h.logger, cmd, out, term.From(topics, err), encodeTopics)
	case CommandDescribeTopics:
		return h.describeTopics(ctx, cmd, out)
	case CommandListEndOffsets:
		return h.listEndOffsets(ctx, cmd, out)
	case CommandListConsumerGroupOffsets:
		return h.listConsumerGroupOffsets(ctx, cmd, out)
	case CommandSend, CommandUnknown:
		return Continue(), fmt.Errorf("%w: %q is not an admin command", errspkg.ErrUnknownCommand, cmd.Name)
	default:
		return Continue(), fmt.Errorf("%w: %q", errspkg.ErrUnknownCommand, cmd.Name)
	}
}

func (h *AdminHandlers) describeTopics(ctx context.Context, cmd Command, out Output) (Outcome, error) {
	raw, err := arg(cmd, 0)
	if err != nil {
		return Continue(), err
	}
	topics, err := term.ToStrings(raw)
	if err != nil {
		return Continue(), malformed(cmd, err)
	}
	described, err := h.admin.DescribeTopics(ctx, topics)
	return reply(h.logger, cmd, out, term.From(described, err), encodePartitionsByTopic)
}

func (h *AdminHandlers) listEndOffsets(ctx context.Context, cmd Command, out Output) (Outcome, error) {
	raw, err := arg(cmd, 0)
	if err != nil {
		return Continue(), err
	}
	partitions, err := decodeTopicPartitions(raw)
	if err != nil {
		return Continue(), malformed(cmd, err)
	}
	specs := make(map[kafka.TopicPartition]kafka.OffsetSpec, len(partitions))
	for _, tp := range partitions {
		specs[tp] = kafka.OffsetSpecLatest
	}
	offsets, err := h.admin.ListOffsets(ctx, specs)
	return reply(h.logger, cmd, out, term.From(offsets, err), encodeOffsets)
}

func (h *AdminHandlers) listConsumerGroupOffsets(ctx context.Context, cmd Command, out Output) (Outcome, error) {
	rawGroup, err := arg(cmd, 0)
	if err != nil {
		return Continue(), err
	}
	rawPartitions, err := arg(cmd, 1)
	if err != nil {
		return Continue(), err
	}
	groupID, err := term.ToString(rawGroup)
	if err != nil {
		return Continue(), malformed(cmd, err)
	}
	partitions, err := decodeTopicPartitions(rawPartitions)
	if err != nil {
		return Continue(), malformed(cmd, err)
	}
	results, err := h.admin.ListConsumerGroupOffsets(ctx, groupID, partitions)
	return reply(h.logger, cmd, out, term.From(results, err), encodeCommittedOffsets)
}

// Close releases the admin client.
func (h *AdminHandlers) Close() error {
	return h.admin.Close()
}

// reply writes the encoded result. An interrupted wait is not an operation
// error: it is returned so the loop terminates, and nothing is written.
func reply[T any](logger loggingpkg.ServiceLogger, cmd Command, out Output, result term.Result[T], encode func(T) term.Term) (Outcome, error) {
	if _, err := result.Value(); err != nil {
		if kafka.IsInterrupted(err) {
			return Continue(), fmt.Errorf("%s: %w", cmd.Name, err)
		}
		logger.Info("Command failed", loggingpkg.LogFields{"command": cmd.Name, "error": err.Error()})
	}
	if err := out.Reply(term.Encode(result, encode)); err != nil {
		return Continue(), fmt.Errorf("%s: write reply: %w", cmd.Name, err)
	}
	return Continue(), nil
}
