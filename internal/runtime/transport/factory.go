// Package transport moves port frames between the owning process and the
// dispatch loop as watermill messages.
package transport

import (
	"io"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Topic names the single logical stream of a port.
const Topic = "port"

// Transport combines a publisher and subscriber pair produced by a factory.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes both sides, subscriber first.
func (t Transport) Close() error {
	var subErr, pubErr error
	if t.Subscriber != nil {
		subErr = t.Subscriber.Close()
	}
	if t.Publisher != nil {
		pubErr = t.Publisher.Close()
	}
	if subErr != nil {
		return subErr
	}
	return pubErr
}

// NewPortTransport frames in and out, normally os.Stdin and os.Stdout.
func NewPortTransport(in io.Reader, out io.Writer, logger watermill.LoggerAdapter) (Transport, error) {
	pub, err := PortPublisherFactory(out, logger)
	if err != nil {
		return Transport{}, err
	}
	sub, err := PortSubscriberFactory(in, logger)
	if err != nil {
		_ = pub.Close()
		return Transport{}, err
	}
	return Transport{Publisher: pub, Subscriber: sub}, nil
}
