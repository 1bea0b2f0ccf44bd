package profile

import "github.com/trezcool/pesantren/core/rbac"

// shape is the stored form of a profile's roles, classified once when a Record is read.
type shape interface {
	assigned() []rbac.Role
}

type (
	// multiRole: the roles array holds at least one known tag.
	multiRole struct{ tags []rbac.Role }

	// legacyRole: no usable roles array, a known singular role.
	legacyRole struct{ tag rbac.Role }

	// unassigned: nothing usable at all.
	unassigned struct{}
)

func (s multiRole) assigned() []rbac.Role  { return s.tags }
func (s legacyRole) assigned() []rbac.Role { return []rbac.Role{s.tag} }
func (unassigned) assigned() []rbac.Role   { return nil }

func classify(rec Record) shape {
	tags := make([]rbac.Role, 0, len(rec.Roles))
	for _, s := range rec.Roles {
		if r, ok := rbac.Parse(s); ok {
			tags = append(tags, r)
		}
	}
	if len(tags) > 0 {
		return multiRole{tags: tags}
	}
	if rec.Role != nil {
		if r, ok := rbac.Parse(*rec.Role); ok {
			return legacyRole{tag: r}
		}
	}
	return unassigned{}
}

// Normalize resolves the roles of rec and the role it acts with.
// The active role is the stored one when it is one of the resolved roles, the first resolved role otherwise.
// A record without any known role resolves to guest.
func Normalize(rec Record) Resolution {
	roles := rbac.Effective(classify(rec).assigned())
	if len(roles) == 0 {
		return GuestResolution()
	}

	active := roles[0]
	if rec.ActiveRole != nil {
		if r, ok := rbac.Parse(*rec.ActiveRole); ok && rbac.Contains(roles, r) {
			active = r
		}
	}
	return Resolution{Roles: roles, ActiveRole: active}
}
