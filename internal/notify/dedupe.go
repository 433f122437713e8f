package notify

import (
	"context"
	"encoding/json"
	"sync"
)

// VersionGate implements consumer-side idempotence: an envelope is applied
// only when its version is greater than the last version already applied for
// that request. Duplicate and out-of-order deliveries from the transport are
// discarded, so at-least-once delivery is safe.
type VersionGate struct {
	mu      sync.Mutex
	applied map[string]int64
}

// NewVersionGate creates an empty gate.
func NewVersionGate() *VersionGate {
	return &VersionGate{applied: make(map[string]int64)}
}

// Apply records (requestID, version) and reports whether the consumer should
// process it. Returns false for anything at or below the high-water mark.
func (g *VersionGate) Apply(requestID string, version int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if version <= g.applied[requestID] {
		return false
	}
	g.applied[requestID] = version
	return true
}

// Relay forwards broker-delivered envelopes into a local transport (the
// websocket hub), gated by version so redelivered messages are dropped before
// they reach subscribers.
type Relay struct {
	gate *VersionGate
	dest ChannelTransport
}

// NewRelay creates a Relay targeting dest.
func NewRelay(dest ChannelTransport) *Relay {
	return &Relay{gate: NewVersionGate(), dest: dest}
}

// Handle processes one raw message from the broker. Payloads that do not
// parse as envelopes are dropped.
func (r *Relay) Handle(channel string, payload []byte) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return
	}
	if !r.gate.Apply(dedupeKey(channel, env.RequestID), env.Version) {
		return
	}
	_ = r.dest.Publish(context.Background(), channel, payload)
}

// dedupeKey scopes the high-water mark per channel so the owner and role
// copies of the same event both pass the gate once.
func dedupeKey(channel, requestID string) string {
	return channel + "|" + requestID
}
