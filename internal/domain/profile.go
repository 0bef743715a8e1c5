package domain

import "time"

// Profile mirrors an identity provider account for a staff member.
type Profile struct {
	ID        string
	FullName  string
	Role      Role
	OrgID     string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
