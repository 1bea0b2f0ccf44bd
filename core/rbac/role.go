package rbac

import "github.com/trezcool/pesantren/core"

// Role is a role tag drawn from the canonical matrix.
type Role string

// Roles
const (
	Admin     Role = "admin"
	Guru      Role = "guru"
	Bendahara Role = "bendahara"
	Pengasuh  Role = "pengasuh"
	Musyrif   Role = "musyrif"
	Wali      Role = "wali"
	Ota       Role = "ota"
	Pengurus  Role = "pengurus"

	// Guest is the zero-privilege role used whenever no real role can be determined.
	Guest Role = "guest"
)

func (r Role) String() string { return string(r) }

// Valid reports whether r is a role of the matrix. Guest is not.
func (r Role) Valid() bool {
	_, ok := catalogue.roles[r]
	return ok
}

func (r Role) Label() string {
	if def, ok := catalogue.roles[r]; ok {
		return def.Label
	}
	return "Tamu"
}

// Dashboard returns the landing path of the role, "" for unknown roles.
func (r Role) Dashboard() string {
	return catalogue.roles[r].Dashboard
}

// ScopeKind returns what the role's scope identifier refers to ("halaqoh", "santri", "ota"), if any.
func (r Role) ScopeKind() string {
	return catalogue.roles[r].Scope
}

// Parse cleans and lowers s and returns the matching Role.
func Parse(s string) (Role, bool) {
	r := Role(core.CleanString(s, true /* lower */))
	return r, r.Valid()
}

// AllRoles returns every role in matrix order.
func AllRoles() []Role {
	all := make([]Role, len(catalogue.order))
	copy(all, catalogue.order)
	return all
}

// AdminSuperset returns the roles an admin may switch into, in matrix order.
func AdminSuperset() []Role {
	all := make([]Role, len(catalogue.superset))
	copy(all, catalogue.superset)
	return all
}

// Contains reports whether role is in roles.
func Contains(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// ContainsAny reports whether any of wanted is in roles.
func ContainsAny(roles []Role, wanted ...Role) bool {
	for _, w := range wanted {
		if Contains(roles, w) {
			return true
		}
	}
	return false
}

// Effective returns the roles an identity may switch into given its assigned roles.
// Unknown tags and duplicates are dropped, order is kept.
// Holding Admin yields exactly the admin superset.
func Effective(assigned []Role) []Role {
	if Contains(assigned, Admin) {
		return AdminSuperset()
	}
	effective := make([]Role, 0, len(assigned))
	for _, r := range assigned {
		if r.Valid() && !Contains(effective, r) {
			effective = append(effective, r)
		}
	}
	return effective
}

// Keeps reports whether an identity acting as active may go on doing so once assigned is its new set of roles.
func Keeps(assigned []Role, active Role) bool {
	return Contains(Effective(assigned), active)
}
