package farmusers

import "github.com/proeftuin/agrigate/internal/authz"

// Assignment ties a user and a role to a farm scope. A global scope encodes
// a site-wide grant, used for the built-in system administrator.
type Assignment struct {
	ID       int64
	Scope    authz.Scope
	UserID   int64
	RoleID   int64
	RoleName string
}

// Member is an assignment joined with user details for listing a farm's
// membership.
type Member struct {
	UserID   int64
	Email    string
	RoleID   int64
	RoleName string
}
