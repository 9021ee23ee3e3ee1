package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/psds-microservice/ticket-tracker/internal/authz"
	"github.com/psds-microservice/ticket-tracker/internal/errs"
	"github.com/psds-microservice/ticket-tracker/internal/model"
)

const ProjectStatusActive = "active"

type ProjectServicer interface {
	Create(ctx context.Context, p model.Principal, name, description string) (*model.Project, error)
	Get(ctx context.Context, p model.Principal, id string) (*model.Project, error)
	List(ctx context.Context, p model.Principal) ([]model.Project, error)
}

type ProjectService struct {
	tickets *TicketService
	store   Store
}

func NewProjectService(store Store, tickets *TicketService) *ProjectService {
	return &ProjectService{tickets: tickets, store: store}
}

func (s *ProjectService) Create(ctx context.Context, p model.Principal, name, description string) (*model.Project, error) {
	if !authz.Can(p, authz.ActionCreateProject, nil) {
		return nil, errs.Forbidden("only admins and managers can create projects")
	}
	if !p.HasOrganization() {
		return nil, errs.Validation("join an organization before creating projects")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errs.Validation("project name is required")
	}
	now := s.tickets.now()
	pr := &model.Project{
		ID:             uuid.NewString(),
		OrganizationID: p.OrganizationID,
		Name:           name,
		Description:    strings.TrimSpace(description),
		CreatedBy:      p.ID,
		Status:         ProjectStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateProject(ctx, pr); err != nil {
		return nil, s.tickets.storeErr("create project", err)
	}
	return pr, nil
}

func (s *ProjectService) Get(ctx context.Context, p model.Principal, id string) (*model.Project, error) {
	pr, err := s.store.GetProject(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.NotFound("project not found")
		}
		return nil, s.tickets.storeErr("get project", err)
	}
	if !authz.ProjectInScope(p, pr) {
		return nil, errs.NotFound("project not found")
	}
	return pr, nil
}

// List returns the organization's projects; a principal without an
// organization gets an empty list.
func (s *ProjectService) List(ctx context.Context, p model.Principal) ([]model.Project, error) {
	if !p.HasOrganization() {
		return []model.Project{}, nil
	}
	items, err := s.store.ListProjects(ctx, p.OrganizationID)
	if err != nil {
		return nil, s.tickets.storeErr("list projects", err)
	}
	return items, nil
}
