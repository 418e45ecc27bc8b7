package identity

// RoleAdmin is the role claim that bypasses the entitlement check and unlocks
// admin-only routes.
const RoleAdmin = "admin"

// Principal is the request-scoped identity derived from the provider's
// introspection response. It lives for exactly one request and is never
// persisted by the gateway.
type Principal struct {
	ID    string
	Email string
	Role  string
	Token string // raw bearer token, never logged
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
