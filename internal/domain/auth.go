package domain

// Principal is the authenticated caller as asserted by the identity provider.
// The role claim is trusted verbatim.
type Principal struct {
	UserID string
	Role   Role
}

// IsClient reports whether the caller authenticated as a client.
func (p Principal) IsClient() bool {
	return p.Role == RoleClient
}
