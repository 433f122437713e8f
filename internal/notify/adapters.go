package notify

import (
	"context"

	"github.com/scholarfin/be-fund-requests/internal/logger"
	"github.com/scholarfin/be-fund-requests/internal/repository"
)

// DeliveryAdapter is the contract for external delivery collaborators such as
// the mail sender. Rendering is the collaborator's concern; failures are
// non-fatal and handled by the delivery worker.
type DeliveryAdapter interface {
	// NotifyOwner tells the request owner their request changed.
	NotifyOwner(ctx context.Context, req *repository.FinancialRequest, newStatus repository.Status, remarks *string) error
	// NotifyRoleQueue tells a role that a new item entered its queue.
	NotifyRoleQueue(ctx context.Context, req *repository.FinancialRequest, role string) error
}

// MailSender is the outbound mail collaborator. The real implementation lives
// outside this service.
type MailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// MailAdapter delivers owner and queue notifications through a MailSender.
// Recipient resolution uses the owner id directly; the mail system owns the
// id-to-address mapping.
type MailAdapter struct {
	sender MailSender
}

// NewMailAdapter creates a MailAdapter.
func NewMailAdapter(sender MailSender) *MailAdapter {
	return &MailAdapter{sender: sender}
}

// NotifyOwner sends the owner a status-change mail.
func (a *MailAdapter) NotifyOwner(ctx context.Context, req *repository.FinancialRequest, newStatus repository.Status, remarks *string) error {
	body := "Your request \"" + req.Title + "\" is now " + string(newStatus) + "."
	if remarks != nil && *remarks != "" {
		body += " Remarks: " + *remarks
	}
	return a.sender.Send(ctx, req.OwnerID, "Financial request update", body)
}

// NotifyRoleQueue sends the role queue address a new-item mail.
func (a *MailAdapter) NotifyRoleQueue(ctx context.Context, req *repository.FinancialRequest, role string) error {
	body := "Request \"" + req.Title + "\" is awaiting action from " + role + "."
	return a.sender.Send(ctx, role, "New item in your approval queue", body)
}

// LogAdapter is a no-op DeliveryAdapter that only logs. It stands in when no
// mail collaborator is configured.
type LogAdapter struct {
	log *logger.Logger
}

// NewLogAdapter creates a LogAdapter.
func NewLogAdapter(log *logger.Logger) *LogAdapter {
	return &LogAdapter{log: log}
}

// NotifyOwner logs the owner notification.
func (a *LogAdapter) NotifyOwner(_ context.Context, req *repository.FinancialRequest, newStatus repository.Status, _ *string) error {
	a.log.Info().
		Str("request_id", req.ID).
		Str("owner_id", req.OwnerID).
		Str("status", string(newStatus)).
		Msg("owner notification")
	return nil
}

// NotifyRoleQueue logs the queue notification.
func (a *LogAdapter) NotifyRoleQueue(_ context.Context, req *repository.FinancialRequest, role string) error {
	a.log.Info().
		Str("request_id", req.ID).
		Str("role", role).
		Msg("role queue notification")
	return nil
}
