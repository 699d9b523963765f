package enums

import "fmt"

// UserRole is the platform role attached to each account.
type UserRole string

const (
	UserRoleParent       UserRole = "parent"
	UserRoleChild        UserRole = "child"
	UserRolePsychologist UserRole = "psychologist"
	UserRoleDoctor       UserRole = "doctor"
	UserRoleAdmin        UserRole = "admin"
	UserRoleSuperAdmin   UserRole = "super_admin"
)

var validUserRoles = []UserRole{
	UserRoleParent,
	UserRoleChild,
	UserRolePsychologist,
	UserRoleDoctor,
	UserRoleAdmin,
	UserRoleSuperAdmin,
}

// IsValid reports whether the value matches the canonical user role enum.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsProvider reports whether the role may be booked for appointments.
func (r UserRole) IsProvider() bool {
	return r == UserRolePsychologist || r == UserRoleDoctor
}

// IsAdmin reports whether the role carries administrative privileges.
func (r UserRole) IsAdmin() bool {
	return r == UserRoleAdmin || r == UserRoleSuperAdmin
}

// ParseUserRole converts the raw string to UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
