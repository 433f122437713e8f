// Package notify turns committed transitions into versioned notification
// events and delivers them to channels and adapters off the critical path.
package notify

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/scholarfin/be-fund-requests/internal/repository"
)

// EnvelopeType is the single message type on the subscription protocol.
const EnvelopeType = "financial-request.updated"

// Message kinds distinguish the owner-facing update from the queue update
// sent to the role that now holds the request.
const (
	KindOwnerUpdate = "owner_update"
	KindQueueUpdate = "queue_update"
)

// Event is the transient value object built after a transition commits.
type Event struct {
	ID         string            `json:"id"`
	RequestID  string            `json:"request_id"`
	OwnerID    string            `json:"owner_id"`
	Status     repository.Status `json:"status"`
	Version    int64             `json:"version"`
	Actor      string            `json:"actor"`
	Remarks    *string           `json:"remarks,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// NewEvent builds an event for a committed transition. The version it carries
// is the post-transition version, which consumers use to discard duplicates
// and out-of-order deliveries.
func NewEvent(req *repository.FinancialRequest, actor string, remarks *string) Event {
	return Event{
		ID:         ulid.Make().String(),
		RequestID:  req.ID,
		OwnerID:    req.OwnerID,
		Status:     req.Status,
		Version:    req.Version,
		Actor:      actor,
		Remarks:    remarks,
		OccurredAt: req.UpdatedAt,
	}
}

// Envelope is the wire message pushed to subscribers on every target channel.
type Envelope struct {
	Type       string            `json:"type"`
	Kind       string            `json:"kind"`
	RequestID  string            `json:"request_id"`
	Status     repository.Status `json:"status"`
	Version    int64             `json:"version"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// OwnerChannel names the per-user channel for a request owner.
func OwnerChannel(ownerID string) string {
	return fmt.Sprintf("user:%s", ownerID)
}

// RoleChannel names the shared channel for one approver role.
func RoleChannel(role string) string {
	return fmt.Sprintf("role:%s", role)
}
