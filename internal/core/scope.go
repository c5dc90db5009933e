package core

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// Role is the capability level of a caller, read from the users relation.
type Role string

// Elevated reports whether the role may read and delete across all owners.
func (r Role) Elevated() bool { return r == RoleAdmin }

// Scope bounds a ledger read or delete to a single owner, or to every owner.
// It is computed once per call and passed down to the store, so role checks
// never have to be re-derived inside storage code.
type Scope struct {
	Owner int64
	All   bool
}

// ScopeSelf restricts an operation to the given owner's rows.
func ScopeSelf(owner int64) Scope { return Scope{Owner: owner} }

// ScopeAll spans every owner's rows.
func ScopeAll() Scope { return Scope{All: true} }

// ScopeFor computes the effective access scope for a caller. A non-elevated
// caller asking for the all-owners view is silently narrowed to its own rows
// rather than rejected; snapshot operations stay owner-scoped for everyone.
func ScopeFor(owner int64, role Role, includeAll bool) Scope {
	if includeAll && role.Elevated() {
		return ScopeAll()
	}
	return ScopeSelf(owner)
}
