package domain

import "time"

// Team represents a collaborative group owning projects.
type Team struct {
	ID          string
	Name        string
	OwnerID     string
	MaxProjects int
	MaxMembers  int
	CreatedAt   time.Time
}

// Member roles.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// TeamMember links a user to a team with a role.
type TeamMember struct {
	TeamID    string
	UserID    string
	Role      string
	CreatedAt time.Time
}
