package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/kafkaport/internal/runtime/config"
	errspkg "github.com/drblury/kafkaport/internal/runtime/errors"
	"github.com/drblury/kafkaport/internal/runtime/term"
)

func record(topic, value string) term.Map {
	return term.Map{
		{Key: term.Atom("topic"), Value: term.Binary(topic)},
		{Key: term.Atom("value"), Value: term.Binary(value)},
	}
}

func TestProducerStopFlushesPendingSends(t *testing.T) {
	producer := &fakeProducer{}
	h, err := NewProducerHandlers(producer, noopLogger{}, config.FlushFailureAbort)
	require.NoError(t, err)

	out := &recordingOutput{}
	ctx := context.Background()
	for _, v := range []string{"a", "b", "c"} {
		outcome, err := h.Handle(ctx, cmd("send", record("orders", v)), out)
		require.NoError(t, err)
		_, exit := outcome.ExitCode()
		assert.False(t, exit)
	}
	assert.Len(t, producer.pending, 3)
	assert.Empty(t, out.replies, "send never replies")

	outcome, err := h.Handle(ctx, cmd("stop"), out)
	require.NoError(t, err)
	code, exit := outcome.ExitCode()
	assert.True(t, exit)
	assert.Equal(t, 0, code)
	assert.Len(t, producer.delivered, 3)
	assert.Empty(t, out.replies)
}

func TestProducerStopAbortsOnFlushFailure(t *testing.T) {
	producer := &fakeProducer{flushErr: errors.New("kafka: Failed to deliver 1 messages.")}
	h, err := NewProducerHandlers(producer, noopLogger{}, "")
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), cmd("send", record("orders", "a")), &recordingOutput{})
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), cmd("stop"), &recordingOutput{})
	assert.ErrorContains(t, err, "Failed to deliver")
}

func TestProducerStopBestEffort(t *testing.T) {
	producer := &fakeProducer{flushErr: errors.New("kafka: Failed to deliver 1 messages.")}
	h, err := NewProducerHandlers(producer, noopLogger{}, config.FlushFailureBestEffort)
	require.NoError(t, err)

	outcome, err := h.Handle(context.Background(), cmd("stop"), &recordingOutput{})
	require.NoError(t, err)
	code, exit := outcome.ExitCode()
	assert.True(t, exit)
	assert.Equal(t, 0, code)
}

func TestProducerStopInterruptedIsFatalEvenBestEffort(t *testing.T) {
	h, err := NewProducerHandlers(&fakeProducer{}, noopLogger{}, config.FlushFailureBestEffort)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.Handle(ctx, cmd("stop"), &recordingOutput{})
	assert.ErrorIs(t, err, errspkg.ErrInterrupted)
}

func TestProducerRejectsAdminCommands(t *testing.T) {
	h, err := NewProducerHandlers(&fakeProducer{}, noopLogger{}, config.FlushFailureAbort)
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), cmd("list_topics"), &recordingOutput{})
	assert.ErrorIs(t, err, errspkg.ErrUnknownCommand)
}

func TestProducerSendMalformedRecord(t *testing.T) {
	h, err := NewProducerHandlers(&fakeProducer{}, noopLogger{}, config.FlushFailureAbort)
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), cmd("send"), &recordingOutput{})
	assert.ErrorIs(t, err, errspkg.ErrMalformedCommand)
	_, err = h.Handle(context.Background(), cmd("send", term.Binary("orders")), &recordingOutput{})
	assert.ErrorIs(t, err, errspkg.ErrMalformedCommand)
}

func TestProducerSendAfterCloseFails(t *testing.T) {
	producer := &fakeProducer{}
	h, err := NewProducerHandlers(producer, noopLogger{}, config.FlushFailureAbort)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	_, err = h.Handle(context.Background(), cmd("send", record("orders", "a")), &recordingOutput{})
	assert.ErrorContains(t, err, "producer is closed")
}
