package runtime

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	configpkg "github.com/drblury/kafkaport/internal/runtime/config"
	errspkg "github.com/drblury/kafkaport/internal/runtime/errors"
	handlerspkg "github.com/drblury/kafkaport/internal/runtime/handlers"
	loggingpkg "github.com/drblury/kafkaport/internal/runtime/logging"
	"github.com/drblury/kafkaport/internal/runtime/term"
	transportpkg "github.com/drblury/kafkaport/internal/runtime/transport"
)

type scriptedHandlers struct {
	seen     []string
	closed   int
	closeErr error
	handle   func(ctx context.Context, cmd handlerspkg.Command, out handlerspkg.Output) (handlerspkg.Outcome, error)
}

func (s *scriptedHandlers) Handle(ctx context.Context, cmd handlerspkg.Command, out handlerspkg.Output) (handlerspkg.Outcome, error) {
	s.seen = append(s.seen, cmd.Name)
	if s.handle != nil {
		return s.handle(ctx, cmd, out)
	}
	switch cmd.Kind {
	case handlerspkg.CommandStop:
		return handlerspkg.Exit(0), nil
	case handlerspkg.CommandListTopics:
		return handlerspkg.Continue(), out.Reply(term.OkTuple(term.List{term.Binary("orders")}))
	case handlerspkg.CommandDescribeTopics:
		return handlerspkg.Continue(), out.Reply(term.ErrorTuple("unknown topic ghost"))
	default:
		return handlerspkg.Continue(), nil
	}
}

func (s *scriptedHandlers) Close() error {
	s.closed++
	return s.closeErr
}

func testLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(loggingpkg.NewHandlerLogger(io.Discard, slog.LevelError, "text"))
}

func frameOf(t *testing.T, value term.Term) []byte {
	t.Helper()
	payload, err := term.Marshal(value)
	require.NoError(t, err)
	buf := make([]byte, 4, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	return append(buf, payload...)
}

func commandFrame(t *testing.T, name string, ref term.Term, args ...term.Term) []byte {
	t.Helper()
	if args == nil {
		args = term.List{}
	}
	return frameOf(t, term.Tuple{term.Atom(name), term.List(args), ref})
}

func replies(t *testing.T, out []byte) []term.Term {
	t.Helper()
	var decoded []term.Term
	for len(out) > 0 {
		require.GreaterOrEqual(t, len(out), 4)
		size := binary.BigEndian.Uint32(out)
		require.GreaterOrEqual(t, len(out)-4, int(size))
		value, err := term.Unmarshal(out[4 : 4+size])
		require.NoError(t, err)
		decoded = append(decoded, value)
		out = out[4+size:]
	}
	return decoded
}

type portHarness struct {
	port     *Port
	handlers *scriptedHandlers
	out      *bytes.Buffer
	metrics  *CommandMetrics
}

func newHarness(t *testing.T, in io.Reader, h *scriptedHandlers) portHarness {
	t.Helper()
	out := &bytes.Buffer{}
	tr, err := transportpkg.NewPortTransport(in, out, watermill.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	metrics := NewCommandMetrics(prometheus.NewRegistry())
	require.NoError(t, metrics.Register())

	port, err := NewPort(configpkg.VariantAdmin, h, tr, testLogger(), PortDependencies{Metrics: metrics})
	require.NoError(t, err)
	return portHarness{port: port, handlers: h, out: out, metrics: metrics}
}

func (h portHarness) count(command, outcome string) float64 {
	return testutil.ToFloat64(h.metrics.commandsTotal.WithLabelValues("admin", command, outcome))
}

func TestPortRepliesInOrderAndStops(t *testing.T) {
	var in bytes.Buffer
	in.Write(commandFrame(t, "list_topics", term.Binary("r1")))
	in.Write(commandFrame(t, "describe_topics", term.Binary("r2"), term.List{term.Binary("ghost")}))
	in.Write(commandFrame(t, "stop", term.Binary("r3")))
	in.Write(commandFrame(t, "list_topics", term.Binary("r4")))

	h := newHarness(t, &in, &scriptedHandlers{})
	code := h.port.Run(context.Background())

	assert.Equal(t, ExitOK, code)
	assert.Equal(t, []string{"list_topics", "describe_topics", "stop"}, h.handlers.seen)
	assert.Equal(t, 1, h.handlers.closed)

	got := replies(t, h.out.Bytes())
	require.Len(t, got, 2)
	assert.True(t, term.Equal(term.Tuple{term.Atom("reply"), term.Binary("r1"), term.OkTuple(term.List{term.Binary("orders")})}, got[0]), term.Format(got[0]))
	assert.True(t, term.Equal(term.Tuple{term.Atom("reply"), term.Binary("r2"), term.ErrorTuple("unknown topic ghost")}, got[1]), term.Format(got[1]))

	assert.Equal(t, 1.0, h.count("list_topics", OutcomeOK))
	assert.Equal(t, 1.0, h.count("describe_topics", OutcomeError))
	assert.Equal(t, 1.0, h.count("stop", OutcomeExit))
}

func TestPortTwoTupleCommandRepliesWithNilRef(t *testing.T) {
	in := bytes.NewReader(frameOf(t, term.Tuple{term.Atom("list_topics"), term.List{}}))
	h := newHarness(t, in, &scriptedHandlers{})

	assert.Equal(t, ExitOK, h.port.Run(context.Background()))
	got := replies(t, h.out.Bytes())
	require.Len(t, got, 1)
	reply := got[0].(term.Tuple)
	assert.True(t, term.Equal(term.Nil, reply[1]))
}

func TestPortSendProducesNoFrame(t *testing.T) {
	var in bytes.Buffer
	for i := 0; i < 3; i++ {
		in.Write(commandFrame(t, "send", term.Nil, term.Map{{Key: term.Atom("topic"), Value: term.Binary("orders")}}))
	}
	in.Write(commandFrame(t, "stop", term.Nil))

	h := newHarness(t, &in, &scriptedHandlers{})
	assert.Equal(t, ExitOK, h.port.Run(context.Background()))
	assert.Empty(t, h.out.Bytes())
	assert.Equal(t, 3.0, h.count("send", OutcomeNoReply))
}

func TestPortUnknownCommandIsFatal(t *testing.T) {
	var in bytes.Buffer
	in.Write(commandFrame(t, "list_brokers", term.Binary("r1")))
	in.Write(commandFrame(t, "list_topics", term.Binary("r2")))

	h := newHarness(t, &in, &scriptedHandlers{})
	assert.Equal(t, ExitFailure, h.port.Run(context.Background()))
	assert.Empty(t, h.handlers.seen)
	assert.Empty(t, h.out.Bytes())
	assert.Equal(t, 1, h.handlers.closed)
	assert.Equal(t, 1.0, h.count("unknown", OutcomeFatal))
}

func TestPortUndecodableFrameIsFatal(t *testing.T) {
	payload := []byte{1, 2, 3}
	frame := binary.BigEndian.AppendUint32(nil, uint32(len(payload)))
	frame = append(frame, payload...)

	h := newHarness(t, bytes.NewReader(frame), &scriptedHandlers{})
	assert.Equal(t, ExitFailure, h.port.Run(context.Background()))
	assert.Empty(t, h.handlers.seen)
}

func TestPortHandlerErrorIsFatal(t *testing.T) {
	var in bytes.Buffer
	in.Write(commandFrame(t, "list_topics", term.Binary("r1")))
	in.Write(commandFrame(t, "list_topics", term.Binary("r2")))

	h := newHarness(t, &in, &scriptedHandlers{
		handle: func(context.Context, handlerspkg.Command, handlerspkg.Output) (handlerspkg.Outcome, error) {
			return handlerspkg.Continue(), fmt.Errorf("list_topics: %w", errspkg.ErrInterrupted)
		},
	})
	assert.Equal(t, ExitFailure, h.port.Run(context.Background()))
	assert.Equal(t, []string{"list_topics"}, h.handlers.seen)
	assert.Empty(t, h.out.Bytes())
	assert.Equal(t, 1.0, h.count("list_topics", OutcomeFatal))
}

func TestPortExitCodeFromHandler(t *testing.T) {
	h := newHarness(t, bytes.NewReader(commandFrame(t, "stop", term.Nil)), &scriptedHandlers{
		handle: func(context.Context, handlerspkg.Command, handlerspkg.Output) (handlerspkg.Outcome, error) {
			return handlerspkg.Exit(3), nil
		},
	})
	assert.Equal(t, 3, h.port.Run(context.Background()))
}

func TestPortEndOfStreamIsGraceful(t *testing.T) {
	h := newHarness(t, bytes.NewReader(nil), &scriptedHandlers{})
	assert.Equal(t, ExitOK, h.port.Run(context.Background()))
	assert.Equal(t, 1, h.handlers.closed)
}

func TestPortTruncatedStreamFails(t *testing.T) {
	frame := commandFrame(t, "list_topics", term.Nil)
	h := newHarness(t, bytes.NewReader(frame[:len(frame)-2]), &scriptedHandlers{})
	assert.Equal(t, ExitFailure, h.port.Run(context.Background()))
	assert.Equal(t, 1, h.handlers.closed)
}

func TestPortCancelledWhileIdle(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	h := newHarness(t, r, &scriptedHandlers{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() { done <- h.port.Run(ctx) }()

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, ExitOK, code)
	case <-time.After(5 * time.Second):
		t.Fatal("port did not stop after cancellation")
	}
	assert.Equal(t, 1, h.handlers.closed)
}

func TestPortCloseErrorDoesNotChangeExitCode(t *testing.T) {
	h := newHarness(t, bytes.NewReader(commandFrame(t, "stop", term.Nil)), &scriptedHandlers{closeErr: errors.New("close failed")})
	assert.Equal(t, ExitOK, h.port.Run(context.Background()))
}

func TestPortTracesCommands(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	var in bytes.Buffer
	in.Write(commandFrame(t, "list_topics", term.Nil))
	in.Write(commandFrame(t, "stop", term.Nil))

	out := &bytes.Buffer{}
	tr, err := transportpkg.NewPortTransport(&in, out, nil)
	require.NoError(t, err)
	port, err := NewPort(configpkg.VariantAdmin, &scriptedHandlers{}, tr, testLogger(), PortDependencies{Tracer: provider.Tracer("test")})
	require.NoError(t, err)

	require.Equal(t, ExitOK, port.Run(context.Background()))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	for i, want := range []string{"list_topics", "stop"} {
		assert.Equal(t, spanName, spans[i].Name())
		assert.Contains(t, spans[i].Attributes(), attribute.String("command.name", want))
	}
}

func TestNewPortValidatesDependencies(t *testing.T) {
	tr, err := transportpkg.NewPortTransport(bytes.NewReader(nil), io.Discard, nil)
	require.NoError(t, err)

	_, err = NewPort(configpkg.VariantAdmin, nil, tr, testLogger(), PortDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrClientRequired)

	_, err = NewPort(configpkg.VariantAdmin, &scriptedHandlers{}, transportpkg.Transport{}, testLogger(), PortDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrTransportRequired)

	_, err = NewPort(configpkg.VariantAdmin, &scriptedHandlers{}, tr, nil, PortDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrLoggerRequired)
}

func TestPortRecoversHandlerPanic(t *testing.T) {
	h := newHarness(t, bytes.NewReader(commandFrame(t, "list_topics", term.Nil)), &scriptedHandlers{
		handle: func(context.Context, handlerspkg.Command, handlerspkg.Output) (handlerspkg.Outcome, error) {
			panic("nil topic metadata")
		},
	})
	assert.Equal(t, ExitFailure, h.port.Run(context.Background()))
	assert.Equal(t, 1, h.handlers.closed)
	assert.Equal(t, 1.0, h.count("list_topics", OutcomeFatal))
}

func TestPortRunsCustomHooks(t *testing.T) {
	var in bytes.Buffer
	in.Write(commandFrame(t, "list_topics", term.Nil))
	in.Write(commandFrame(t, "stop", term.Nil))

	tr, err := transportpkg.NewPortTransport(&in, io.Discard, nil)
	require.NoError(t, err)

	var started []string
	var done []CommandInfo
	port, err := NewPort(configpkg.VariantProducer, &scriptedHandlers{}, tr, testLogger(), PortDependencies{
		Hooks: CommandHooks{
			OnCommandStart: func(info CommandInfo) { started = append(started, info.Command) },
			OnCommandDone:  func(info CommandInfo) { done = append(done, info) },
		},
	})
	require.NoError(t, err)
	require.Equal(t, ExitOK, port.Run(context.Background()))

	assert.Equal(t, []string{"list_topics", "stop"}, started)
	require.Len(t, done, 2)
	assert.Equal(t, "producer", done[0].Variant)
	assert.Equal(t, OutcomeOK, done[0].Outcome)
	assert.Equal(t, OutcomeExit, done[1].Outcome)
	assert.NotEmpty(t, done[0].FrameID)
}
