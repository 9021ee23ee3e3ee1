package authz_test

import (
	"testing"

	"github.com/psds-microservice/ticket-tracker/internal/authz"
	"github.com/psds-microservice/ticket-tracker/internal/model"
)

func ptr(s string) *string { return &s }

var allActions = []authz.Action{
	authz.ActionCreateProject,
	authz.ActionCreateTicket,
	authz.ActionUpdateTicket,
	authz.ActionDeleteTicket,
	authz.ActionToggleTodo,
	authz.ActionAddTodo,
	authz.ActionDeleteTodo,
	authz.ActionAddAttachment,
	authz.ActionDeleteAttachment,
	authz.ActionAddComment,
	authz.ActionUpdateExpressLink,
}

func TestCan_Matrix(t *testing.T) {
	ticket := &model.Ticket{ID: "t1", OrganizationID: "org-a", AssigneeID: ptr("designer-1")}

	admin := model.Principal{ID: "admin-1", Role: model.RoleAdmin, OrganizationID: "org-a"}
	manager := model.Principal{ID: "manager-1", Role: model.RoleManager, OrganizationID: "org-a"}
	assigned := model.Principal{ID: "designer-1", Role: model.RoleDesigner, OrganizationID: "org-a"}
	other := model.Principal{ID: "designer-2", Role: model.RoleDesigner, OrganizationID: "org-a"}

	// want: admin, manager, assigned designer, unassigned designer
	tests := []struct {
		action authz.Action
		want   [4]bool
	}{
		{authz.ActionCreateProject, [4]bool{true, true, false, false}},
		{authz.ActionCreateTicket, [4]bool{true, true, false, false}},
		{authz.ActionAddTodo, [4]bool{true, true, false, false}},
		{authz.ActionDeleteTodo, [4]bool{true, true, false, false}},
		{authz.ActionAddAttachment, [4]bool{true, true, false, false}},
		{authz.ActionDeleteAttachment, [4]bool{true, true, false, false}},
		{authz.ActionDeleteTicket, [4]bool{true, false, false, false}},
		{authz.ActionUpdateTicket, [4]bool{true, true, true, false}},
		{authz.ActionToggleTodo, [4]bool{true, true, true, false}},
		{authz.ActionAddComment, [4]bool{true, true, true, false}},
		{authz.ActionUpdateExpressLink, [4]bool{false, false, true, false}},
	}
	principals := []model.Principal{admin, manager, assigned, other}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			for i, p := range principals {
				if got := authz.Can(p, tt.action, ticket); got != tt.want[i] {
					t.Errorf("Can(%s/%s, %s) = %v, want %v", p.Role, p.ID, tt.action, got, tt.want[i])
				}
			}
		})
	}
}

func TestCan_EveryActionHasARule(t *testing.T) {
	admin := model.Principal{ID: "a", Role: model.RoleAdmin}
	designer := model.Principal{ID: "d", Role: model.RoleDesigner}
	ticket := &model.Ticket{AssigneeID: ptr("d")}
	for _, a := range allActions {
		if !authz.Can(admin, a, ticket) && !authz.Can(designer, a, ticket) {
			t.Errorf("action %s is granted to nobody", a)
		}
	}
}

func TestCan_UnassignedTicketDeniesDesigner(t *testing.T) {
	designer := model.Principal{ID: "designer-1", Role: model.RoleDesigner, OrganizationID: "org-a"}
	ticket := &model.Ticket{ID: "t1", OrganizationID: "org-a"}
	for _, a := range []authz.Action{authz.ActionUpdateTicket, authz.ActionToggleTodo, authz.ActionAddComment, authz.ActionUpdateExpressLink} {
		if authz.Can(designer, a, ticket) {
			t.Errorf("designer allowed %s on unassigned ticket", a)
		}
	}
	if authz.Can(designer, authz.ActionUpdateTicket, nil) {
		t.Error("designer allowed UpdateTicket with nil ticket")
	}
}

func TestCan_UnknownRoleAndAction(t *testing.T) {
	ticket := &model.Ticket{AssigneeID: ptr("x")}
	if authz.Can(model.Principal{ID: "x", Role: "GUEST"}, authz.ActionUpdateTicket, ticket) {
		t.Error("unknown role must be denied")
	}
	if authz.Can(model.Principal{ID: "x", Role: model.RoleAdmin}, authz.Action("Explode"), ticket) {
		t.Error("unknown action must be denied")
	}
}

func TestInScope(t *testing.T) {
	ticket := &model.Ticket{OrganizationID: "org-a"}
	tests := []struct {
		name string
		p    model.Principal
		t    *model.Ticket
		want bool
	}{
		{"same org", model.Principal{OrganizationID: "org-a"}, ticket, true},
		{"other org", model.Principal{OrganizationID: "org-b"}, ticket, false},
		{"no org", model.Principal{}, ticket, false},
		{"no org, no-org ticket", model.Principal{}, &model.Ticket{}, false},
		{"nil ticket", model.Principal{OrganizationID: "org-a"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := authz.InScope(tt.p, tt.t); got != tt.want {
				t.Errorf("InScope = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProjectInScope(t *testing.T) {
	pr := &model.Project{OrganizationID: "org-a"}
	if !authz.ProjectInScope(model.Principal{OrganizationID: "org-a"}, pr) {
		t.Error("same org project must be in scope")
	}
	if authz.ProjectInScope(model.Principal{OrganizationID: "org-b"}, pr) {
		t.Error("other org project must be out of scope")
	}
}
