package auth

import "smartattendance/internal/model"

// Identity is the authenticated caller of a request. It is passed explicitly
// to every attendance operation.
type Identity struct {
	UserID string
	Role   string
}

// HasRole reports whether the identity holds any of roles.
func (i Identity) HasRole(roles ...string) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

// IsStaff is true for faculty, incharges and admins.
func (i Identity) IsStaff() bool {
	return i.HasRole(model.RoleFaculty, model.RoleIncharge, model.RoleAdmin)
}
