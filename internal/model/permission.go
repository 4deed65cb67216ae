package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionSessionsRead allows listing and inspecting live exam sessions.
	PermissionSessionsRead Permission = "sessions:read"

	// PermissionSessionsOverride allows force-submitting or aborting a student's session.
	PermissionSessionsOverride Permission = "sessions:override"
)

// AllPermissions lists every permission an admin token may carry.
var AllPermissions = []Permission{
	PermissionSessionsRead,
	PermissionSessionsOverride,
}

// IsKnown reports whether p is a defined permission.
func (p Permission) IsKnown() bool {
	for _, known := range AllPermissions {
		if p == known {
			return true
		}
	}
	return false
}
