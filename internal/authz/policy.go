// Package authz decides who may do what to a ticket.
//
// The rules are a flat table keyed by action. Roles do not inherit from each
// other: every action lists exactly the roles it admits, so the matrix can be
// read top to bottom.
package authz

import "github.com/psds-microservice/ticket-tracker/internal/model"

type Action string

const (
	ActionCreateProject     Action = "CreateProject"
	ActionCreateTicket      Action = "CreateTicket"
	ActionUpdateTicket      Action = "UpdateTicket"
	ActionDeleteTicket      Action = "DeleteTicket"
	ActionToggleTodo        Action = "ToggleTodo"
	ActionAddTodo           Action = "AddTodo"
	ActionDeleteTodo        Action = "DeleteTodo"
	ActionAddAttachment     Action = "AddAttachment"
	ActionDeleteAttachment  Action = "DeleteAttachment"
	ActionAddComment        Action = "AddComment"
	ActionUpdateExpressLink Action = "UpdateExpressLink"
)

// grant says how a role obtains an action.
type grant int

const (
	deny grant = iota
	always
	ifAssigned
)

type rule map[model.Role]grant

var rules = map[Action]rule{
	ActionCreateProject:     {model.RoleAdmin: always, model.RoleManager: always},
	ActionCreateTicket:      {model.RoleAdmin: always, model.RoleManager: always},
	ActionAddTodo:           {model.RoleAdmin: always, model.RoleManager: always},
	ActionDeleteTodo:        {model.RoleAdmin: always, model.RoleManager: always},
	ActionAddAttachment:     {model.RoleAdmin: always, model.RoleManager: always},
	ActionDeleteAttachment:  {model.RoleAdmin: always, model.RoleManager: always},
	ActionDeleteTicket:      {model.RoleAdmin: always},
	ActionUpdateTicket:      {model.RoleAdmin: always, model.RoleManager: always, model.RoleDesigner: ifAssigned},
	ActionToggleTodo:        {model.RoleAdmin: always, model.RoleManager: always, model.RoleDesigner: ifAssigned},
	ActionAddComment:        {model.RoleAdmin: always, model.RoleManager: always, model.RoleDesigner: ifAssigned},
	ActionUpdateExpressLink: {model.RoleDesigner: ifAssigned},
}

// Can reports whether p may perform action on ticket. ticket may be nil for
// actions that do not depend on assignment (CreateTicket); assignment-gated
// grants are denied when ticket is nil.
func Can(p model.Principal, action Action, ticket *model.Ticket) bool {
	r, ok := rules[action]
	if !ok {
		return false
	}
	switch r[p.Role] {
	case always:
		return true
	case ifAssigned:
		return ticket != nil && ticket.IsAssignee(p.ID)
	default:
		return false
	}
}
