package domain

// Role enumerates staff roles issued by the identity provider.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleControlRoom Role = "control_room"
	RoleDoctor      Role = "doctor"
	RoleNurse       Role = "nurse"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleControlRoom, RoleDoctor, RoleNurse:
		return true
	}
	return false
}

// Session is the authenticated caller, passed explicitly into every core call.
type Session struct {
	ActorID string
	Role    Role
	OrgID   string
}
