package agenda

import "context"

// Role is the caller's role as resolved by the authentication collaborator.
type Role string

const (
	RoleTechnician Role = "technician"
	RoleAdmin      Role = "admin"
)

// Principal is the resolved caller: who the current technician is and
// whether they administer the fleet.
type Principal struct {
	TechnicianID string `json:"technician_id"`
	Role         Role   `json:"role"`
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanActFor reports whether the caller may mutate the agenda of owner.
func (p Principal) CanActFor(owner string) bool {
	return p.IsAdmin() || (p.TechnicianID != "" && p.TechnicianID == owner)
}

type principalKey struct{}

// WithPrincipal returns a context carrying the resolved caller.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller, or false if none was resolved.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
