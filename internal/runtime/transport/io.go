package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/kafkaport/internal/runtime/ids"
)

// MaxFrameSize bounds a single frame. Larger length prefixes are treated as a
// corrupt stream.
const MaxFrameSize = 64 << 20

const headerSize = 4

// ErrFrameTooLarge reports a length prefix above MaxFrameSize.
var ErrFrameTooLarge = errors.New("transport: frame exceeds maximum size")

var (
	PortPublisherFactory = func(w io.Writer, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return NewPortPublisher(w, logger), nil
	}
	PortSubscriberFactory = func(r io.Reader, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return NewPortSubscriber(r, logger), nil
	}
)

// PortPublisher writes every message payload as one frame: a 4-byte big-endian
// length followed by the payload. The topic is ignored; a port has a single
// outbound stream.
type PortPublisher struct {
	mu     sync.Mutex
	w      *bufio.Writer
	logger watermill.LoggerAdapter
	closed bool
}

func NewPortPublisher(w io.Writer, logger watermill.LoggerAdapter) *PortPublisher {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &PortPublisher{w: bufio.NewWriter(w), logger: logger}
}

func (p *PortPublisher) Publish(_ string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("transport: publisher closed")
	}

	for _, msg := range messages {
		if len(msg.Payload) > MaxFrameSize {
			return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(msg.Payload))
		}
		var header [headerSize]byte
		binary.BigEndian.PutUint32(header[:], uint32(len(msg.Payload)))
		if _, err := p.w.Write(header[:]); err != nil {
			return err
		}
		if _, err := p.w.Write(msg.Payload); err != nil {
			return err
		}
		p.logger.Trace("Frame written", watermill.LogFields{"uuid": msg.UUID, "size": len(msg.Payload)})
	}
	return p.w.Flush()
}

func (p *PortPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.w.Flush()
}

// PortSubscriber reads frames from the inbound stream. The next frame is read
// only after the previous message was acked, which keeps request handling
// strictly sequential. A nack stops the subscription.
//
// Reads cannot be interrupted; a cancelled context is observed between frames.
type PortSubscriber struct {
	r      *bufio.Reader
	logger watermill.LoggerAdapter

	mu         sync.Mutex
	subscribed bool
	err        error
	closing    chan struct{}
	closeOnce  sync.Once
}

func NewPortSubscriber(r io.Reader, logger watermill.LoggerAdapter) *PortSubscriber {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &PortSubscriber{r: bufio.NewReader(r), logger: logger, closing: make(chan struct{})}
}

// Subscribe may be called once; the inbound stream cannot be shared.
func (s *PortSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribed {
		return nil, errors.New("transport: port stream already subscribed")
	}
	s.subscribed = true

	out := make(chan *message.Message)
	go s.run(ctx, topic, out)
	return out, nil
}

func (s *PortSubscriber) run(ctx context.Context, topic string, out chan<- *message.Message) {
	defer close(out)
	logFields := watermill.LogFields{"topic": topic}

	for {
		payload, err := readFrame(s.r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Debug("Inbound stream closed", logFields)
			} else {
				s.setErr(err)
				s.logger.Error("Failed to read frame", err, logFields)
			}
			return
		}

		msg := message.NewMessage(ids.NewFrameID(), payload)
		msg.SetContext(ctx)

		select {
		case out <- msg:
		case <-ctx.Done():
			return
		case <-s.closing:
			return
		}

		select {
		case <-msg.Acked():
		case <-msg.Nacked():
			s.logger.Info("Frame nacked, stopping", watermill.LogFields{"uuid": msg.UUID})
			return
		case <-ctx.Done():
			return
		case <-s.closing:
			return
		}
	}
}

// Err returns the read error that ended the subscription. A clean end of
// stream is not an error.
func (s *PortSubscriber) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *PortSubscriber) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *PortSubscriber) Close() error {
	s.closeOnce.Do(func() { close(s.closing) })
	return nil
}

// readFrame returns io.EOF only when the stream ends on a frame boundary.
func readFrame(r io.Reader) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("transport: truncated frame header: %w", err)
		}
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("transport: truncated frame body: %w", err)
	}
	return payload, nil
}
