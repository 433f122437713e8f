package notify

import (
	"github.com/scholarfin/be-fund-requests/internal/repository"
)

// Target pairs one channel name with the envelope to push there.
type Target struct {
	Channel  string
	Envelope Envelope
}

// holdingRole maps each pending stage to the role whose queue now holds the
// request.
func holdingRole(status repository.Status) (string, bool) {
	switch status {
	case repository.StatusPendingBudget:
		return repository.RoleBudget, true
	case repository.StatusPendingAccounting:
		return repository.RoleAccounting, true
	case repository.StatusPendingCashier:
		return repository.RoleCashier, true
	}
	return "", false
}

// Route computes the channels an event must reach. The owner channel always
// receives an owner update; when the new status is a pending stage the role
// channel that now holds the request additionally receives a queue update.
// Terminal states target the owner channel only.
func Route(event Event) []Target {
	owner := Envelope{
		Type:       EnvelopeType,
		Kind:       KindOwnerUpdate,
		RequestID:  event.RequestID,
		Status:     event.Status,
		Version:    event.Version,
		OccurredAt: event.OccurredAt,
	}
	targets := []Target{{Channel: OwnerChannel(event.OwnerID), Envelope: owner}}

	if role, ok := holdingRole(event.Status); ok {
		queue := owner
		queue.Kind = KindQueueUpdate
		targets = append(targets, Target{Channel: RoleChannel(role), Envelope: queue})
	}

	return targets
}
