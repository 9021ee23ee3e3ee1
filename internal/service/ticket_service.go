package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/psds-microservice/ticket-tracker/internal/authz"
	"github.com/psds-microservice/ticket-tracker/internal/errs"
	"github.com/psds-microservice/ticket-tracker/internal/lifecycle"
	"github.com/psds-microservice/ticket-tracker/internal/model"
	"go.uber.org/zap"
)

// TicketServicer is what the HTTP layer needs from the ticket service.
type TicketServicer interface {
	Create(ctx context.Context, p model.Principal, in CreateTicketInput) (*model.Ticket, error)
	Get(ctx context.Context, p model.Principal, id string) (*model.Ticket, error)
	List(ctx context.Context, p model.Principal, f ListFilter) ([]model.Ticket, int64, error)
	Update(ctx context.Context, p model.Principal, id string, patch TicketPatch) (*model.Ticket, error)
	SetStatus(ctx context.Context, p model.Principal, id, status string) (*model.Ticket, error)
	SetExpressLink(ctx context.Context, p model.Principal, id, link string) (*model.Ticket, error)
	Delete(ctx context.Context, p model.Principal, id string) error

	AddTodo(ctx context.Context, p model.Principal, id, text string) (*model.Ticket, error)
	ToggleTodo(ctx context.Context, p model.Principal, id string, index int) (*model.Ticket, error)
	DeleteTodo(ctx context.Context, p model.Principal, id string, index int) (*model.Ticket, error)
	SuggestTodos(ctx context.Context, p model.Principal, id string) ([]string, error)

	AddAttachments(ctx context.Context, p model.Principal, id string, files []Upload) (*model.Ticket, []model.Attachment, error)
	DeleteAttachment(ctx context.Context, p model.Principal, id, attachmentID string) (*model.Ticket, error)
	FetchAttachment(ctx context.Context, p model.Principal, id, attachmentID string) (*model.Attachment, error)
}

// Suggester produces checklist lines for a ticket. Implementations call an
// external service and may fail; failures are never retried.
type Suggester interface {
	SuggestChecklist(ctx context.Context, title, description string) ([]string, error)
}

// Config wires optional collaborators into the services.
type Config struct {
	Transitions lifecycle.Transitions
	Limits      Limits
	Suggester   Suggester
	Logger      *zap.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

type TicketService struct {
	store       Store
	transitions lifecycle.Transitions
	limits      Limits
	suggester   Suggester
	log         *zap.Logger
	now         func() time.Time
}

func NewTicketService(store Store, cfg Config) *TicketService {
	s := &TicketService{
		store:       store,
		transitions: cfg.Transitions,
		limits:      cfg.Limits.WithDefaults(),
		suggester:   cfg.Suggester,
		log:         cfg.Logger,
		now:         cfg.Now,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
	}
	return s
}

type CreateTicketInput struct {
	ProjectID   string
	Title       string
	Description *string
	AssigneeID  *string
	Status      string
}

// ListFilter is the caller-visible part of TicketFilter; the organization is
// always taken from the principal.
type ListFilter struct {
	ProjectID  string
	Status     string
	AssigneeID string
	Limit      int
	Offset     int
}

// TicketPatch is a partial update. A nil field is left untouched; an empty
// AssigneeID or Description clears the value.
type TicketPatch struct {
	Title       *string
	Description *string
	AssigneeID  *string
	Status      *string
}

func (p TicketPatch) empty() bool {
	return p.Title == nil && p.Description == nil && p.AssigneeID == nil && p.Status == nil
}

func (s *TicketService) Create(ctx context.Context, p model.Principal, in CreateTicketInput) (*model.Ticket, error) {
	if !authz.Can(p, authz.ActionCreateTicket, nil) {
		return nil, errs.Forbidden("only admins and managers can create tickets")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, errs.Validation("title is required")
	}
	status := model.TicketStatusOpen
	if in.Status != "" {
		st, err := parseStatus(in.Status)
		if err != nil {
			return nil, err
		}
		status = st
	}
	project, err := s.store.GetProject(ctx, strings.TrimSpace(in.ProjectID))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.NotFound("project not found")
		}
		return nil, s.storeErr("get project", err)
	}
	if !authz.ProjectInScope(p, project) {
		return nil, errs.NotFound("project not found")
	}

	now := s.now()
	t := &model.Ticket{
		ID:             uuid.NewString(),
		ProjectID:      project.ID,
		OrganizationID: p.OrganizationID,
		Title:          title,
		Description:    nonEmpty(in.Description),
		Status:         status,
		AssigneeID:     nonEmpty(in.AssigneeID),
		CreatedBy:      p.ID,
		Todos:          []model.Todo{},
		Attachments:    []model.Attachment{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateTicket(ctx, t); err != nil {
		return nil, s.storeErr("create ticket", err)
	}
	return t, nil
}

func (s *TicketService) Get(ctx context.Context, p model.Principal, id string) (*model.Ticket, error) {
	t, err := s.load(ctx, s.store, p, id)
	if err != nil {
		return nil, err
	}
	t.StripPayloads()
	return t, nil
}

func (s *TicketService) List(ctx context.Context, p model.Principal, f ListFilter) ([]model.Ticket, int64, error) {
	if !p.HasOrganization() {
		return []model.Ticket{}, 0, nil
	}
	filter := TicketFilter{
		OrganizationID: p.OrganizationID,
		ProjectID:      f.ProjectID,
		AssigneeID:     f.AssigneeID,
		Limit:          f.Limit,
		Offset:         f.Offset,
	}
	if f.Status != "" {
		st, err := parseStatus(f.Status)
		if err != nil {
			return nil, 0, err
		}
		filter.Status = st
	}
	// Designers only ever see their own assignments.
	if p.Role == model.RoleDesigner {
		filter.AssigneeID = p.ID
	}
	items, total, err := s.store.ListTickets(ctx, filter)
	if err != nil {
		return nil, 0, s.storeErr("list tickets", err)
	}
	for i := range items {
		items[i].StripPayloads()
	}
	return items, total, nil
}

func (s *TicketService) Update(ctx context.Context, p model.Principal, id string, patch TicketPatch) (*model.Ticket, error) {
	if patch.empty() {
		return nil, errs.Validation("no changes provided")
	}
	var newStatus model.TicketStatus
	if patch.Status != nil {
		st, err := parseStatus(*patch.Status)
		if err != nil {
			return nil, err
		}
		newStatus = st
	}
	var title string
	if patch.Title != nil {
		title = strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, errs.Validation("title cannot be empty")
		}
	}
	return s.mutate(ctx, s.store, p, id, authz.ActionUpdateTicket, func(t *model.Ticket) error {
		if p.Role == model.RoleDesigner && (patch.Title != nil || patch.AssigneeID != nil) {
			return errs.Forbidden("designers can only change status and description")
		}
		if patch.Status != nil {
			if err := s.checkTransition(t.Status, newStatus); err != nil {
				return err
			}
			t.Status = newStatus
		}
		if patch.Title != nil {
			t.Title = title
		}
		if patch.Description != nil {
			t.Description = nonEmpty(patch.Description)
		}
		if patch.AssigneeID != nil {
			t.AssigneeID = nonEmpty(patch.AssigneeID)
		}
		return nil
	})
}

func (s *TicketService) SetStatus(ctx context.Context, p model.Principal, id, status string) (*model.Ticket, error) {
	st, err := parseStatus(status)
	if err != nil {
		return nil, err
	}
	t, _, err := s.setStatus(ctx, s.store, p, id, st)
	return t, err
}

// setStatus moves the ticket to st inside store (which may be a transaction)
// and returns the status it had before.
func (s *TicketService) setStatus(ctx context.Context, store Store, p model.Principal, id string, st model.TicketStatus) (*model.Ticket, model.TicketStatus, error) {
	var from model.TicketStatus
	t, err := s.mutate(ctx, store, p, id, authz.ActionUpdateTicket, func(t *model.Ticket) error {
		if err := s.checkTransition(t.Status, st); err != nil {
			return err
		}
		from = t.Status
		t.Status = st
		return nil
	})
	return t, from, err
}

func (s *TicketService) SetExpressLink(ctx context.Context, p model.Principal, id, link string) (*model.Ticket, error) {
	link = strings.TrimSpace(link)
	return s.mutate(ctx, s.store, p, id, authz.ActionUpdateExpressLink, func(t *model.Ticket) error {
		t.ExpressProjectLink = nonEmpty(&link)
		return nil
	})
}

func (s *TicketService) Delete(ctx context.Context, p model.Principal, id string) error {
	t, err := s.load(ctx, s.store, p, id)
	if err != nil {
		return err
	}
	if !authz.Can(p, authz.ActionDeleteTicket, t) {
		return errs.Forbidden("only admins can delete tickets")
	}
	if err := s.store.DeleteTicket(ctx, t.ID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.ErrTicketNotFound
		}
		return s.storeErr("delete ticket", err)
	}
	return nil
}

// load fetches a ticket and applies the scope guard. Malformed ids, missing
// tickets and tickets of other organizations all yield the same NotFound.
func (s *TicketService) load(ctx context.Context, store Store, p model.Principal, id string) (*model.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errs.ErrTicketNotFound
	}
	t, err := store.GetTicket(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, s.storeErr("get ticket", err)
	}
	if !authz.InScope(p, t) {
		return nil, errs.ErrTicketNotFound
	}
	return t, nil
}

// mutate runs scope guard, policy check and fn against the locked ticket,
// then refreshes UpdatedAt. Organization and project are restored after fn so
// no mutation path can move a ticket.
func (s *TicketService) mutate(ctx context.Context, store Store, p model.Principal, id string, action authz.Action, fn func(*model.Ticket) error) (*model.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errs.ErrTicketNotFound
	}
	t, err := store.UpdateTicket(ctx, id, func(t *model.Ticket) error {
		if !authz.InScope(p, t) {
			return errs.ErrTicketNotFound
		}
		if !authz.Can(p, action, t) {
			return errs.Forbidden("not authorized to %s", describe(action))
		}
		orgID, projectID := t.OrganizationID, t.ProjectID
		if err := fn(t); err != nil {
			return err
		}
		t.OrganizationID, t.ProjectID = orgID, projectID
		t.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		var domain *errs.Error
		if errors.As(err, &domain) {
			return nil, err
		}
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, s.storeErr("update ticket", err)
	}
	t.StripPayloads()
	return t, nil
}

func (s *TicketService) checkTransition(from, to model.TicketStatus) error {
	if !s.transitions.Allowed(from, to) {
		return errs.Validation("status cannot move from %s to %s", from, to)
	}
	return nil
}

// storeErr logs a persistence failure and returns it for a 500 response.
func (s *TicketService) storeErr(op string, err error) error {
	s.log.Error("store failure", zap.String("op", op), zap.Error(err))
	return err
}

func parseStatus(v string) (model.TicketStatus, error) {
	st := model.TicketStatus(strings.TrimSpace(v))
	if !st.Valid() {
		return "", errs.Validation("invalid status %q: must be one of Open, InProgress, Review, Done", v)
	}
	return st, nil
}

func nonEmpty(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

var actionVerbs = map[authz.Action]string{
	authz.ActionUpdateTicket:      "edit this ticket",
	authz.ActionToggleTodo:        "toggle checklist items",
	authz.ActionAddTodo:           "add checklist items",
	authz.ActionDeleteTodo:        "delete checklist items",
	authz.ActionAddAttachment:     "add attachments",
	authz.ActionDeleteAttachment:  "delete attachments",
	authz.ActionAddComment:        "comment on this ticket",
	authz.ActionUpdateExpressLink: "update the express link",
}

func describe(a authz.Action) string {
	if v, ok := actionVerbs[a]; ok {
		return v
	}
	return string(a)
}
