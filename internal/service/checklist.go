package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/psds-microservice/ticket-tracker/internal/authz"
	"github.com/psds-microservice/ticket-tracker/internal/errs"
	"github.com/psds-microservice/ticket-tracker/internal/model"
	"go.uber.org/zap"
)

// ErrCompletedTodo is returned when deleting a checked checklist item.
var ErrCompletedTodo = &errs.Error{Kind: errs.ErrConflict, Message: "Cannot delete completed checklist items"}

const maxTodoText = 500

func (s *TicketService) AddTodo(ctx context.Context, p model.Principal, id, text string) (*model.Ticket, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errs.Validation("checklist item text is required")
	}
	if len(text) > maxTodoText {
		return nil, errs.Validation("checklist item text is longer than %d characters", maxTodoText)
	}
	return s.mutate(ctx, s.store, p, id, authz.ActionAddTodo, func(t *model.Ticket) error {
		t.Todos = append(t.Todos, model.Todo{ID: uuid.NewString(), Text: text})
		return nil
	})
}

func (s *TicketService) ToggleTodo(ctx context.Context, p model.Principal, id string, index int) (*model.Ticket, error) {
	return s.mutate(ctx, s.store, p, id, authz.ActionToggleTodo, func(t *model.Ticket) error {
		if err := checkIndex(t, index); err != nil {
			return err
		}
		t.Todos[index].IsCompleted = !t.Todos[index].IsCompleted
		return nil
	})
}

func (s *TicketService) DeleteTodo(ctx context.Context, p model.Principal, id string, index int) (*model.Ticket, error) {
	return s.mutate(ctx, s.store, p, id, authz.ActionDeleteTodo, func(t *model.Ticket) error {
		if err := checkIndex(t, index); err != nil {
			return err
		}
		if t.Todos[index].IsCompleted {
			return ErrCompletedTodo
		}
		t.Todos = append(t.Todos[:index:index], t.Todos[index+1:]...)
		return nil
	})
}

// SuggestTodos asks the suggestion collaborator for checklist lines. The
// result is not stored; callers add the lines they keep with AddTodo.
func (s *TicketService) SuggestTodos(ctx context.Context, p model.Principal, id string) ([]string, error) {
	t, err := s.load(ctx, s.store, p, id)
	if err != nil {
		return nil, err
	}
	if !authz.Can(p, authz.ActionAddTodo, t) {
		return nil, errs.Forbidden("not authorized to %s", describe(authz.ActionAddTodo))
	}
	if s.suggester == nil {
		return nil, errs.Upstream(errSuggesterDisabled)
	}
	desc := ""
	if t.Description != nil {
		desc = *t.Description
	}
	items, err := s.suggester.SuggestChecklist(ctx, t.Title, desc)
	if err != nil {
		s.log.Warn("checklist suggestion failed", zap.String("ticket_id", t.ID), zap.Error(err))
		return nil, errs.Upstream(err)
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out, nil
}

func checkIndex(t *model.Ticket, index int) error {
	if index < 0 || index >= len(t.Todos) {
		return errs.Validation("checklist index %d out of range", index)
	}
	return nil
}
