package service

import (
	"context"

	"github.com/psds-microservice/ticket-tracker/internal/model"
)

// TicketFilter narrows ListTickets. Zero values mean "any".
type TicketFilter struct {
	OrganizationID string
	ProjectID      string
	Status         model.TicketStatus
	AssigneeID     string
	Limit          int
	Offset         int
}

// TicketStore persists tickets and their attachments. Every method that
// returns tickets returns attachment metadata only; payload bytes come from
// GetTicketAttachment.
type TicketStore interface {
	CreateTicket(ctx context.Context, t *model.Ticket) error
	GetTicket(ctx context.Context, id string) (*model.Ticket, error)
	ListTickets(ctx context.Context, f TicketFilter) ([]model.Ticket, int64, error)
	// UpdateTicket loads the ticket under a write lock and hands it to mutate.
	// When mutate returns nil the scalar fields and todos are written back;
	// otherwise nothing is written and mutate's error is returned.
	UpdateTicket(ctx context.Context, id string, mutate func(*model.Ticket) error) (*model.Ticket, error)
	// DeleteTicket removes the ticket, its attachments and its review log.
	DeleteTicket(ctx context.Context, id string) error
	AddTicketAttachments(ctx context.Context, ticketID string, atts []model.Attachment) error
	DeleteTicketAttachment(ctx context.Context, ticketID, attachmentID string) error
	GetTicketAttachment(ctx context.Context, ticketID, attachmentID string) (*model.Attachment, error)
}

// ProjectStore persists the projects tickets are filed under.
type ProjectStore interface {
	CreateProject(ctx context.Context, p *model.Project) error
	GetProject(ctx context.Context, id string) (*model.Project, error)
	ListProjects(ctx context.Context, organizationID string) ([]model.Project, error)
}

// ReviewStore persists the per-ticket review log.
type ReviewStore interface {
	// EnsureReview returns the ticket's review, creating an empty one if needed.
	EnsureReview(ctx context.Context, ticketID string) (*model.Review, error)
	// AppendComment adds c at the end of the ticket's log, creating the review
	// on first use. c.ID, c.CreatedAt and attachment ids are set by the caller.
	AppendComment(ctx context.Context, ticketID string, c *model.Comment) (*model.Review, error)
	GetCommentAttachment(ctx context.Context, ticketID, commentID, attachmentID string) (*model.Attachment, error)
}

// Store is the persistence collaborator of the services.
type Store interface {
	ProjectStore
	TicketStore
	ReviewStore
	// InTx runs fn against a Store bound to one transaction. Backends without
	// multi-document transactions run fn directly.
	InTx(ctx context.Context, fn func(Store) error) error
}
