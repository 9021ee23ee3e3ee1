package model

import "strings"

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleManager  Role = "MANAGER"
	RoleDesigner Role = "DESIGNER"
)

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleManager:
		return RoleManager, true
	case RoleDesigner:
		return RoleDesigner, true
	}
	return "", false
}

// Principal is the authenticated caller. An empty OrganizationID means the
// user has not joined an organization yet.
type Principal struct {
	ID             string `json:"id"`
	Role           Role   `json:"role"`
	OrganizationID string `json:"organization_id,omitempty"`
}

func (p Principal) HasOrganization() bool {
	return p.OrganizationID != ""
}
