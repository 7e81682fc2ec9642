package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	configpkg "github.com/drblury/kafkaport/internal/runtime/config"
	errspkg "github.com/drblury/kafkaport/internal/runtime/errors"
	handlerspkg "github.com/drblury/kafkaport/internal/runtime/handlers"
	idspkg "github.com/drblury/kafkaport/internal/runtime/ids"
	loggingpkg "github.com/drblury/kafkaport/internal/runtime/logging"
	"github.com/drblury/kafkaport/internal/runtime/term"
	transportpkg "github.com/drblury/kafkaport/internal/runtime/transport"
)

// Exit statuses returned by Port.Run.
const (
	ExitOK      = 0
	ExitFailure = 1
)

const (
	tracerName = "github.com/drblury/kafkaport"
	spanName   = "kafkaport.command"
)

var replyTag = term.Atom("reply")

// PortDependencies holds the optional collaborators of a Port.
type PortDependencies struct {
	// Metrics records every handled command when set.
	Metrics *CommandMetrics
	// Hooks run after the built-in logging and metrics hooks.
	Hooks CommandHooks
	// Tracer defaults to the global OpenTelemetry provider.
	Tracer trace.Tracer
}

// Port runs the dispatch loop: one command at a time, in arrival order, each
// answered by at most one reply frame.
type Port struct {
	variant   configpkg.Variant
	handlers  handlerspkg.Handlers
	transport transportpkg.Transport
	logger    loggingpkg.ServiceLogger
	hooks     CommandHooks
	tracer    trace.Tracer
}

// NewPort wires a handler set to a transport.
func NewPort(variant configpkg.Variant, h handlerspkg.Handlers, tr transportpkg.Transport, logger loggingpkg.ServiceLogger, deps PortDependencies) (*Port, error) {
	if h == nil {
		return nil, errspkg.ErrClientRequired
	}
	if tr.Publisher == nil || tr.Subscriber == nil {
		return nil, errspkg.ErrTransportRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	logger = logger.With(loggingpkg.LogFields{"variant": string(variant)})

	hooks := LoggingHooks(logger)
	if deps.Metrics != nil {
		hooks = hooks.Merge(deps.Metrics.Hooks())
	}
	hooks = hooks.Merge(deps.Hooks)

	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Port{
		variant:   variant,
		handlers:  h,
		transport: tr,
		logger:    logger,
		hooks:     hooks,
		tracer:    tracer,
	}, nil
}

// Run handles commands until stop, the end of the inbound stream, a cancelled
// ctx or a fatal error, and returns the process exit status. The handler set
// is closed before Run returns.
func (p *Port) Run(ctx context.Context) (code int) {
	defer func() {
		if err := p.handlers.Close(); err != nil {
			p.logger.Error("Failed to release Kafka client", err, nil)
		}
	}()

	messages, err := p.transport.Subscriber.Subscribe(ctx, transportpkg.Topic)
	if err != nil {
		p.logger.Error("Failed to subscribe to port stream", err, nil)
		return ExitFailure
	}

	p.logger.Debug("Port ready", nil)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Context cancelled while idle, stopping", nil)
			return ExitOK
		case msg, ok := <-messages:
			if !ok {
				return p.streamEnded()
			}
			if code, stop := p.dispatch(ctx, msg); stop {
				return code
			}
		}
	}
}

func (p *Port) streamEnded() int {
	if reporter, ok := p.transport.Subscriber.(interface{ Err() error }); ok {
		if err := reporter.Err(); err != nil {
			p.logger.Error("Inbound stream failed", err, nil)
			return ExitFailure
		}
	}
	p.logger.Info("Inbound stream closed, stopping", nil)
	return ExitOK
}

// dispatch handles one frame. The frame is acked only once the handler has
// returned, so the next frame is never read before this reply was written.
func (p *Port) dispatch(ctx context.Context, msg *message.Message) (int, bool) {
	info := CommandInfo{
		Variant:   string(p.variant),
		FrameID:   msg.UUID,
		StartedAt: time.Now(),
	}

	cmd, err := decodeFrame(msg.Payload)
	info.Command = cmd.Kind.String()
	if err != nil {
		msg.Nack()
		info.Duration = time.Since(info.StartedAt)
		p.hooks.fail(info, err)
		return ExitFailure, true
	}
	p.hooks.start(info)

	out := &replyOutput{publisher: p.transport.Publisher, ref: cmd.Ref}
	var outcome handlerspkg.Outcome
	handle := func(m *message.Message) ([]*message.Message, error) {
		var err error
		outcome, err = p.handlers.Handle(m.Context(), cmd, out)
		return nil, err
	}

	msg.SetContext(ctx)
	_, err = p.traced(cmd, middleware.Recoverer(handle))(msg)
	info.Duration = time.Since(info.StartedAt)
	if err != nil {
		msg.Nack()
		p.hooks.fail(info, err)
		return ExitFailure, true
	}
	msg.Ack()

	if code, exit := outcome.ExitCode(); exit {
		info.Outcome = OutcomeExit
		p.hooks.done(info)
		return code, true
	}
	info.Outcome = out.outcome()
	p.hooks.done(info)
	return ExitOK, false
}

// traced wraps command handling with an OpenTelemetry span.
func (p *Port) traced(cmd handlerspkg.Command, h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		ctx, span := p.tracer.Start(msg.Context(), spanName)
		defer span.End()
		msg.SetContext(ctx)

		span.SetAttributes(
			attribute.String("command.name", cmd.Name),
			attribute.String("port.variant", string(p.variant)),
			attribute.String("message.uuid", msg.UUID),
		)
		msgs, err := h(msg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return msgs, err
	}
}

func decodeFrame(payload []byte) (handlerspkg.Command, error) {
	t, err := term.Unmarshal(payload)
	if err != nil {
		return handlerspkg.Command{}, fmt.Errorf("%w: %w", errspkg.ErrMalformedCommand, err)
	}
	return handlerspkg.DecodeCommand(t)
}

// replyOutput publishes {reply, Ref, Response} frames.
type replyOutput struct {
	publisher message.Publisher
	ref       term.Term
	replied   bool
	failed    bool
}

func (o *replyOutput) Reply(response term.Term) error {
	if o.replied {
		return errors.New("command already replied")
	}
	payload, err := term.Marshal(term.Tuple{replyTag, o.ref, response})
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	if err := o.publisher.Publish(transportpkg.Topic, message.NewMessage(idspkg.NewFrameID(), payload)); err != nil {
		return err
	}
	o.replied = true
	if tuple, ok := response.(term.Tuple); ok && len(tuple) > 0 && term.Equal(tuple[0], term.Err) {
		o.failed = true
	}
	return nil
}

func (o *replyOutput) outcome() string {
	switch {
	case !o.replied:
		return OutcomeNoReply
	case o.failed:
		return OutcomeError
	default:
		return OutcomeOK
	}
}
