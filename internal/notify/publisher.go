package notify

import (
	"context"
	"encoding/json"

	"github.com/scholarfin/be-fund-requests/internal/logger"
	"github.com/scholarfin/be-fund-requests/internal/repository"
)

// Publisher fans a committed transition out to every target channel on every
// transport, and invokes the delivery adapters. All delivery happens on the
// worker pool; Publish itself only routes and enqueues.
type Publisher struct {
	transports []ChannelTransport
	adapters   []DeliveryAdapter
	worker     *Worker
	log        *logger.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(transports []ChannelTransport, adapters []DeliveryAdapter, worker *Worker, log *logger.Logger) *Publisher {
	return &Publisher{
		transports: transports,
		adapters:   adapters,
		worker:     worker,
		log:        log,
	}
}

// Publish routes the event and enqueues one delivery job per channel per
// transport, plus the adapter calls. req is the post-transition snapshot the
// adapters render from. Called only after the transition has committed.
func (p *Publisher) Publish(ctx context.Context, event Event, req *repository.FinancialRequest) {
	targets := Route(event)

	for _, target := range targets {
		payload, err := json.Marshal(target.Envelope)
		if err != nil {
			p.log.Error().Err(err).
				Str("channel", target.Channel).
				Msg("failed to marshal notification envelope")
			continue
		}

		for _, transport := range p.transports {
			t, channel := transport, target.Channel
			p.worker.enqueue(job{
				channel:   channel,
				requestID: event.RequestID,
				version:   event.Version,
				run: func(ctx context.Context) error {
					return t.Publish(ctx, channel, payload)
				},
			})
		}
	}

	snapshot := *req
	for _, adapter := range p.adapters {
		a := adapter
		p.worker.enqueue(job{
			channel:   OwnerChannel(event.OwnerID),
			requestID: event.RequestID,
			version:   event.Version,
			run: func(ctx context.Context) error {
				return a.NotifyOwner(ctx, &snapshot, event.Status, event.Remarks)
			},
		})

		if role, ok := holdingRole(event.Status); ok {
			p.worker.enqueue(job{
				channel:   RoleChannel(role),
				requestID: event.RequestID,
				version:   event.Version,
				run: func(ctx context.Context) error {
					return a.NotifyRoleQueue(ctx, &snapshot, role)
				},
			})
		}
	}

	p.log.Debug().
		Str("request_id", event.RequestID).
		Int64("version", event.Version).
		Int("channels", len(targets)).
		Msg("notification event published")
}
