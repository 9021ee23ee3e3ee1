package authz

import "github.com/psds-microservice/ticket-tracker/internal/model"

// InScope reports whether the ticket belongs to the principal's organization.
// A principal without an organization is never in scope.
func InScope(p model.Principal, t *model.Ticket) bool {
	return t != nil && p.HasOrganization() && t.OrganizationID == p.OrganizationID
}

// ProjectInScope is InScope for projects.
func ProjectInScope(p model.Principal, pr *model.Project) bool {
	return pr != nil && p.HasOrganization() && pr.OrganizationID == p.OrganizationID
}
