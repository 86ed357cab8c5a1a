package models

import "time"

// Role is a member's standing within a family
type Role string

const (
	RoleOwner  Role = "owner"
	RoleParent Role = "parent"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleParent, RoleMember, RoleViewer:
		return true
	}
	return false
}

// Family is the tenant that owns children, artworks and sharing resources
type Family struct {
	ID        int64
	Name      string
	CreatedBy *int64 // nil once the creating account is gone
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FamilyMember represents the relationship between a user and a family
type FamilyMember struct {
	ID       int64
	FamilyID int64
	UserID   int64
	Role     Role
	JoinedAt time.Time
}
