package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// subjectPrefix namespaces every channel on the broker.
const subjectPrefix = "fundreq.channel."

// NATSTransport publishes channel messages to a NATS broker so peer instances
// and the hosted relay can fan them out to their own subscribers.
type NATSTransport struct {
	conn *nats.Conn
}

// NewNATSTransport connects to the broker.
func NewNATSTransport(url string) (*NATSTransport, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSTransport{conn: conn}, nil
}

// channelSubject maps "user:123" to "fundreq.channel.user.123". NATS subject
// tokens cannot contain the channel separator.
func channelSubject(channel string) string {
	return subjectPrefix + strings.Replace(channel, ":", ".", 1)
}

// subjectChannel is the inverse of channelSubject.
func subjectChannel(subject string) string {
	return strings.Replace(strings.TrimPrefix(subject, subjectPrefix), ".", ":", 1)
}

// Publish sends the payload on the channel's subject.
func (t *NATSTransport) Publish(_ context.Context, channel string, payload []byte) error {
	return t.conn.Publish(channelSubject(channel), payload)
}

// SubscribeAll invokes handle for every channel message published by any
// instance, including this one. The local hub dedupes by version, so the echo
// is harmless.
func (t *NATSTransport) SubscribeAll(handle func(channel string, payload []byte)) (*nats.Subscription, error) {
	return t.conn.Subscribe(subjectPrefix+">", func(msg *nats.Msg) {
		handle(subjectChannel(msg.Subject), msg.Data)
	})
}

// Close drains and closes the connection.
func (t *NATSTransport) Close() {
	_ = t.conn.Drain()
}
