package notify

import (
	"context"
	"errors"
	"sync"
)

var errPublishFailed = errors.New("publish failed")

// ChannelTransport pushes an encoded envelope to one named channel. The
// in-process websocket hub, NATS and Redis pub/sub all implement it, so the
// engine and publisher never depend on a live broker.
type ChannelTransport interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// MemoryTransport records published messages. It backs tests and the
// single-instance development mode.
type MemoryTransport struct {
	mu       sync.Mutex
	messages map[string][][]byte

	// FailFirst makes the first n publishes fail, for retry tests.
	FailFirst int
	failures  int
}

// NewMemoryTransport creates an empty MemoryTransport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{messages: make(map[string][][]byte)}
}

// Publish appends the payload under the channel name.
func (t *MemoryTransport) Publish(_ context.Context, channel string, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failures < t.FailFirst {
		t.failures++
		return errPublishFailed
	}

	copied := make([]byte, len(payload))
	copy(copied, payload)
	t.messages[channel] = append(t.messages[channel], copied)
	return nil
}

// Messages returns everything published to a channel so far.
func (t *MemoryTransport) Messages(channel string) [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.messages[channel]...)
}

// Channels returns the names of all channels that received at least one
// message.
func (t *MemoryTransport) Channels() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.messages))
	for name := range t.messages {
		names = append(names, name)
	}
	return names
}
