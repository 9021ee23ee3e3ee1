// Package memstore is an in-process service.Store used for local runs
// (STORE_DRIVER=memory) and tests. Data lives only as long as the process.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/psds-microservice/ticket-tracker/internal/errs"
	"github.com/psds-microservice/ticket-tracker/internal/model"
	"github.com/psds-microservice/ticket-tracker/internal/service"
)

// Store guards one data set with a single mutex. Every call, including a
// whole InTx, runs under it; holding the lock while a mutate callback runs
// plays the role of the row lock in the SQL store.
type Store struct {
	mu sync.Mutex
	d  *data
}

var _ service.Store = (*Store)(nil)

func New() *Store {
	return &Store{d: &data{
		projects: map[string]model.Project{},
		tickets:  map[string]model.Ticket{},
		reviews:  map[string]model.Review{},
	}}
}

// InTx runs fn against a private copy of the data and publishes it only if fn
// succeeds. Plain calls wait until the transaction ends.
func (s *Store) InTx(ctx context.Context, fn func(service.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.d.clone()
	if err := fn(work); err != nil {
		return err
	}
	s.d = work
	return nil
}

func (s *Store) CreateProject(ctx context.Context, p *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.CreateProject(ctx, p)
}

func (s *Store) GetProject(ctx context.Context, id string) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.GetProject(ctx, id)
}

func (s *Store) ListProjects(ctx context.Context, organizationID string) ([]model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.ListProjects(ctx, organizationID)
}

func (s *Store) CreateTicket(ctx context.Context, t *model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.CreateTicket(ctx, t)
}

func (s *Store) GetTicket(ctx context.Context, id string) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.GetTicket(ctx, id)
}

func (s *Store) ListTickets(ctx context.Context, f service.TicketFilter) ([]model.Ticket, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.ListTickets(ctx, f)
}

func (s *Store) UpdateTicket(ctx context.Context, id string, mutate func(*model.Ticket) error) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.UpdateTicket(ctx, id, mutate)
}

func (s *Store) DeleteTicket(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.DeleteTicket(ctx, id)
}

func (s *Store) AddTicketAttachments(ctx context.Context, ticketID string, atts []model.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.AddTicketAttachments(ctx, ticketID, atts)
}

func (s *Store) DeleteTicketAttachment(ctx context.Context, ticketID, attachmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.DeleteTicketAttachment(ctx, ticketID, attachmentID)
}

func (s *Store) GetTicketAttachment(ctx context.Context, ticketID, attachmentID string) (*model.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.GetTicketAttachment(ctx, ticketID, attachmentID)
}

func (s *Store) EnsureReview(ctx context.Context, ticketID string) (*model.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.EnsureReview(ctx, ticketID)
}

func (s *Store) AppendComment(ctx context.Context, ticketID string, c *model.Comment) (*model.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.AppendComment(ctx, ticketID, c)
}

func (s *Store) GetCommentAttachment(ctx context.Context, ticketID, commentID, attachmentID string) (*model.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.GetCommentAttachment(ctx, ticketID, commentID, attachmentID)
}

// data is the unlocked store state. It satisfies service.Store so a
// transaction can hand its working copy to fn directly.
type data struct {
	projects map[string]model.Project
	tickets  map[string]model.Ticket
	reviews  map[string]model.Review // by ticket id
}

// InTx on the working copy is already inside the outer transaction.
func (d *data) InTx(_ context.Context, fn func(service.Store) error) error {
	return fn(d)
}

func (d *data) clone() *data {
	return &data{
		projects: cloneProjects(d.projects),
		tickets:  cloneTickets(d.tickets),
		reviews:  cloneReviews(d.reviews),
	}
}

func (d *data) CreateProject(_ context.Context, p *model.Project) error {
	d.projects[p.ID] = *p
	return nil
}

func (d *data) GetProject(_ context.Context, id string) (*model.Project, error) {
	p, ok := d.projects[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &p, nil
}

func (d *data) ListProjects(_ context.Context, organizationID string) ([]model.Project, error) {
	out := []model.Project{}
	for _, p := range d.projects {
		if p.OrganizationID == organizationID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (d *data) CreateTicket(_ context.Context, t *model.Ticket) error {
	d.tickets[t.ID] = cloneTicket(*t)
	return nil
}

func (d *data) GetTicket(_ context.Context, id string) (*model.Ticket, error) {
	t, ok := d.tickets[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	out := metadataOnly(t)
	return &out, nil
}

func (d *data) ListTickets(_ context.Context, f service.TicketFilter) ([]model.Ticket, int64, error) {
	var all []model.Ticket
	for _, t := range d.tickets {
		if f.OrganizationID != "" && t.OrganizationID != f.OrganizationID {
			continue
		}
		if f.ProjectID != "" && t.ProjectID != f.ProjectID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.AssigneeID != "" && !t.IsAssignee(f.AssigneeID) {
			continue
		}
		all = append(all, metadataOnly(t))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	if f.Offset > 0 {
		if f.Offset >= len(all) {
			all = nil
		} else {
			all = all[f.Offset:]
		}
	}
	if f.Limit > 0 && f.Limit < len(all) {
		all = all[:f.Limit]
	}
	if all == nil {
		all = []model.Ticket{}
	}
	return all, total, nil
}

func (d *data) UpdateTicket(_ context.Context, id string, mutate func(*model.Ticket) error) (*model.Ticket, error) {
	cur, ok := d.tickets[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	work := cloneTicket(cur)
	if err := mutate(&work); err != nil {
		return nil, err
	}
	// Attachments are owned by the attachment methods.
	work.Attachments = cur.Attachments
	d.tickets[id] = cloneTicket(work)
	out := metadataOnly(work)
	return &out, nil
}

func (d *data) DeleteTicket(_ context.Context, id string) error {
	if _, ok := d.tickets[id]; !ok {
		return errs.ErrNotFound
	}
	delete(d.tickets, id)
	delete(d.reviews, id)
	return nil
}

func (d *data) AddTicketAttachments(_ context.Context, ticketID string, atts []model.Attachment) error {
	t, ok := d.tickets[ticketID]
	if !ok {
		return errs.ErrNotFound
	}
	t = cloneTicket(t)
	t.Attachments = append(t.Attachments, cloneAttachments(atts)...)
	d.tickets[ticketID] = t
	return nil
}

func (d *data) DeleteTicketAttachment(_ context.Context, ticketID, attachmentID string) error {
	t, ok := d.tickets[ticketID]
	if !ok {
		return errs.ErrNotFound
	}
	t = cloneTicket(t)
	for i, a := range t.Attachments {
		if a.ID == attachmentID {
			t.Attachments = append(t.Attachments[:i], t.Attachments[i+1:]...)
			d.tickets[ticketID] = t
			return nil
		}
	}
	return errs.ErrNotFound
}

func (d *data) GetTicketAttachment(_ context.Context, ticketID, attachmentID string) (*model.Attachment, error) {
	t, ok := d.tickets[ticketID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	for _, a := range t.Attachments {
		if a.ID == attachmentID {
			out := cloneAttachments([]model.Attachment{a})[0]
			return &out, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (d *data) EnsureReview(_ context.Context, ticketID string) (*model.Review, error) {
	r := d.ensure(ticketID)
	out := cloneReview(r)
	return &out, nil
}

func (d *data) AppendComment(_ context.Context, ticketID string, c *model.Comment) (*model.Review, error) {
	if _, ok := d.tickets[ticketID]; !ok {
		return nil, errs.ErrNotFound
	}
	r := cloneReview(d.ensure(ticketID))
	nc := *c
	nc.ReviewID = r.ID
	nc.Position = len(r.Comments)
	nc.Attachments = cloneAttachments(c.Attachments)
	for i := range nc.Attachments {
		id := nc.ID
		nc.Attachments[i].CommentID = &id
	}
	r.Comments = append(r.Comments, nc)
	r.UpdatedAt = nc.CreatedAt
	d.reviews[ticketID] = r
	out := cloneReview(r)
	return &out, nil
}

func (d *data) GetCommentAttachment(_ context.Context, ticketID, commentID, attachmentID string) (*model.Attachment, error) {
	r, ok := d.reviews[ticketID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	for _, c := range r.Comments {
		if c.ID != commentID {
			continue
		}
		for _, a := range c.Attachments {
			if a.ID == attachmentID {
				out := cloneAttachments([]model.Attachment{a})[0]
				return &out, nil
			}
		}
	}
	return nil, errs.ErrNotFound
}

func (d *data) ensure(ticketID string) model.Review {
	if r, ok := d.reviews[ticketID]; ok {
		return r
	}
	now := time.Now().UTC()
	r := model.Review{
		ID:        uuid.NewString(),
		TicketID:  ticketID,
		Comments:  []model.Comment{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	d.reviews[ticketID] = r
	return r
}

func metadataOnly(t model.Ticket) model.Ticket {
	out := cloneTicket(t)
	out.StripPayloads()
	return out
}

func cloneTicket(t model.Ticket) model.Ticket {
	out := t
	out.Todos = append([]model.Todo{}, t.Todos...)
	out.Attachments = cloneAttachments(t.Attachments)
	return out
}

func cloneAttachments(in []model.Attachment) []model.Attachment {
	out := make([]model.Attachment, len(in))
	for i, a := range in {
		out[i] = a
		if a.Payload != nil {
			out[i].Payload = append([]byte(nil), a.Payload...)
		}
	}
	return out
}

func cloneReview(r model.Review) model.Review {
	out := r
	out.Comments = make([]model.Comment, len(r.Comments))
	for i, c := range r.Comments {
		out.Comments[i] = c
		out.Comments[i].Attachments = cloneAttachments(c.Attachments)
	}
	return out
}

func cloneProjects(in map[string]model.Project) map[string]model.Project {
	out := make(map[string]model.Project, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneTickets(in map[string]model.Ticket) map[string]model.Ticket {
	out := make(map[string]model.Ticket, len(in))
	for k, v := range in {
		out[k] = cloneTicket(v)
	}
	return out
}

func cloneReviews(in map[string]model.Review) map[string]model.Review {
	out := make(map[string]model.Review, len(in))
	for k, v := range in {
		out[k] = cloneReview(v)
	}
	return out
}
