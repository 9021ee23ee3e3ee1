package service

import (
	"context"
	"errors"
	"html"
	"strings"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/psds-microservice/ticket-tracker/internal/authz"
	"github.com/psds-microservice/ticket-tracker/internal/errs"
	"github.com/psds-microservice/ticket-tracker/internal/model"
)

// ReviewServicer is what the HTTP layer needs from the review log.
type ReviewServicer interface {
	GetLog(ctx context.Context, p model.Principal, ticketID string) (*model.Review, error)
	ListComments(ctx context.Context, p model.Principal, ticketID string) ([]model.Comment, error)
	AppendComment(ctx context.Context, p model.Principal, ticketID string, in CommentInput) (*model.Comment, error)
	CommentAndTransition(ctx context.Context, p model.Principal, ticketID string, in CommentInput, to string) (*model.Ticket, *model.Comment, error)
	FetchAttachment(ctx context.Context, p model.Principal, ticketID, commentID, attachmentID string) (*model.Attachment, error)
}

// CommentInput is a new log entry. StatusChange, when set, only annotates the
// comment; it does not move the ticket.
type CommentInput struct {
	Text         string
	Files        []Upload
	StatusChange *StatusChangeInput
}

type StatusChangeInput struct {
	From string
	To   string
}

// ReviewService owns the append-only collaboration log of each ticket.
type ReviewService struct {
	tickets *TicketService
	store   Store
	policy  *bluemonday.Policy
}

func NewReviewService(store Store, tickets *TicketService) *ReviewService {
	return &ReviewService{
		tickets: tickets,
		store:   store,
		policy:  bluemonday.StrictPolicy(),
	}
}

// GetLog returns the ticket's review, creating an empty one on first access.
// Attachment payloads are stripped.
func (s *ReviewService) GetLog(ctx context.Context, p model.Principal, ticketID string) (*model.Review, error) {
	if _, err := s.tickets.load(ctx, s.store, p, ticketID); err != nil {
		return nil, err
	}
	r, err := s.store.EnsureReview(ctx, ticketID)
	if err != nil {
		return nil, s.tickets.storeErr("ensure review", err)
	}
	r.StripPayloads()
	if r.Comments == nil {
		r.Comments = []model.Comment{}
	}
	return r, nil
}

// ListComments returns the log in insertion order without attachment bytes.
func (s *ReviewService) ListComments(ctx context.Context, p model.Principal, ticketID string) ([]model.Comment, error) {
	r, err := s.GetLog(ctx, p, ticketID)
	if err != nil {
		return nil, err
	}
	return r.Comments, nil
}

func (s *ReviewService) AppendComment(ctx context.Context, p model.Principal, ticketID string, in CommentInput) (*model.Comment, error) {
	c, err := s.buildComment(p, in)
	if err != nil {
		return nil, err
	}
	t, err := s.tickets.load(ctx, s.store, p, ticketID)
	if err != nil {
		return nil, err
	}
	if !authz.Can(p, authz.ActionAddComment, t) {
		return nil, errs.Forbidden("not authorized to %s", describe(authz.ActionAddComment))
	}
	if _, err := s.store.AppendComment(ctx, t.ID, c); err != nil {
		return nil, s.tickets.storeErr("append comment", err)
	}
	stripComment(c)
	return c, nil
}

// CommentAndTransition moves the ticket to status `to` and logs a status-change
// comment recording the actual previous status, in one transaction when the
// store supports it.
func (s *ReviewService) CommentAndTransition(ctx context.Context, p model.Principal, ticketID string, in CommentInput, to string) (*model.Ticket, *model.Comment, error) {
	st, err := parseStatus(to)
	if err != nil {
		return nil, nil, err
	}
	in.StatusChange = nil
	c, err := s.buildComment(p, in)
	if err != nil {
		return nil, nil, err
	}
	var ticket *model.Ticket
	err = s.store.InTx(ctx, func(tx Store) error {
		t, from, err := s.tickets.setStatus(ctx, tx, p, ticketID, st)
		if err != nil {
			return err
		}
		// setStatus already checked UpdateTicket; commenting needs its own grant.
		if !authz.Can(p, authz.ActionAddComment, t) {
			return errs.Forbidden("not authorized to %s", describe(authz.ActionAddComment))
		}
		c.IsStatusChange = true
		c.StatusChange = &model.StatusChange{From: from, To: st}
		if _, err := tx.AppendComment(ctx, t.ID, c); err != nil {
			return s.tickets.storeErr("append comment", err)
		}
		ticket = t
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	stripComment(c)
	return ticket, c, nil
}

// FetchAttachment returns a comment attachment including its payload.
func (s *ReviewService) FetchAttachment(ctx context.Context, p model.Principal, ticketID, commentID, attachmentID string) (*model.Attachment, error) {
	if _, err := s.tickets.load(ctx, s.store, p, ticketID); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(commentID); err != nil {
		return nil, errs.NotFound("comment not found")
	}
	if _, err := uuid.Parse(attachmentID); err != nil {
		return nil, errs.NotFound("attachment not found")
	}
	a, err := s.store.GetCommentAttachment(ctx, ticketID, commentID, attachmentID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.NotFound("attachment not found")
		}
		return nil, s.tickets.storeErr("get comment attachment", err)
	}
	return a, nil
}

const maxSanitizePasses = 4

// sanitize strips markup and decodes entities until the text is stable, so
// entity-encoded tags cannot come back as live markup after decoding. Input
// that keeps changing is stored in its escaped form.
func (s *ReviewService) sanitize(text string) string {
	for i := 0; i < maxSanitizePasses; i++ {
		clean := html.UnescapeString(s.policy.Sanitize(text))
		if clean == text {
			return clean
		}
		text = clean
	}
	return s.policy.Sanitize(text)
}

// buildComment validates input and produces a comment ready to append.
func (s *ReviewService) buildComment(p model.Principal, in CommentInput) (*model.Comment, error) {
	text := strings.TrimSpace(s.sanitize(in.Text))
	if text == "" {
		return nil, errs.Validation("comment text is required")
	}
	now := s.tickets.now()
	c := &model.Comment{
		ID:          uuid.NewString(),
		Text:        text,
		AuthorID:    p.ID,
		Attachments: []model.Attachment{},
		CreatedAt:   now,
	}
	if len(in.Files) > 0 {
		atts, err := buildAttachments(in.Files, s.tickets.limits.CommentAttachmentMaxBytes, now)
		if err != nil {
			return nil, err
		}
		c.Attachments = atts
	}
	if in.StatusChange != nil {
		from, err := parseStatus(in.StatusChange.From)
		if err != nil {
			return nil, err
		}
		to, err := parseStatus(in.StatusChange.To)
		if err != nil {
			return nil, err
		}
		c.IsStatusChange = true
		c.StatusChange = &model.StatusChange{From: from, To: to}
	}
	return c, nil
}

func stripComment(c *model.Comment) {
	for i := range c.Attachments {
		c.Attachments[i].Payload = nil
	}
}
