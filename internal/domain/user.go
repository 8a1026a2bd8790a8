package domain

import "time"

// Role is the explicit role column stored on every user at creation time.
type Role string

const (
	RoleSuperAdmin     Role = "super_admin"
	RoleAdmin          Role = "admin"
	RoleModerator      Role = "moderator"
	RoleSupport        Role = "support"
	RoleContentManager Role = "content_manager"
	RoleClient         Role = "client"
)

// AdministrativeRoles lists every staff role recognised by the platform.
var AdministrativeRoles = []Role{
	RoleSuperAdmin,
	RoleAdmin,
	RoleModerator,
	RoleSupport,
	RoleContentManager,
}

// IsAdministrative reports whether r is any recognised staff role.
func (r Role) IsAdministrative() bool {
	for _, candidate := range AdministrativeRoles {
		if r == candidate {
			return true
		}
	}
	return false
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleClient || r.IsAdministrative()
}

// AdminStatus represents lifecycle states of a staff profile.
type AdminStatus string

const (
	AdminStatusActive    AdminStatus = "active"
	AdminStatusSuspended AdminStatus = "suspended"
	AdminStatusPending   AdminStatus = "pending"
)

// WorkingHours is a wall-clock shift window in "HH:MM" form.
type WorkingHours struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// AdminProfile holds staff specific attributes.
type AdminProfile struct {
	ID           string
	UserID       string
	Role         Role
	Title        string
	Status       AdminStatus
	WorkingHours *WorkingHours
	CreatedAt    time.Time
}

// ClientProfile holds client specific attributes.
type ClientProfile struct {
	ID         string
	UserID     string
	Company    string
	ClientType string
}

// User is an identity record. At most one of AdminProfile or ClientProfile is
// expected to be populated.
type User struct {
	ID            string
	Username      string
	Firstname     string
	Lastname      string
	Email         string
	AvatarURL     *string
	Role          Role
	AdminProfile  *AdminProfile
	ClientProfile *ClientProfile
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsStaff reports whether the user carries a staff profile.
func (u *User) IsStaff() bool {
	return u != nil && u.AdminProfile != nil
}

// DisplayRole resolves the role shown to chat participants: client profile
// first, then the staff profile role, then the generic support tier.
func (u *User) DisplayRole() Role {
	switch {
	case u.ClientProfile != nil:
		return RoleClient
	case u.AdminProfile != nil:
		return u.AdminProfile.Role
	default:
		return RoleSupport
	}
}

// SenderKind returns the tagged-union discriminator used for message senders.
func (u *User) SenderKind() SenderKind {
	if u.ClientProfile != nil || (u.AdminProfile == nil && u.Role == RoleClient) {
		return SenderKindClient
	}
	return SenderKindStaff
}
