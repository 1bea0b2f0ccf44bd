package rbac

import "sort"

// Subject is an identity as seen by the permission table: the role it acts with right now
// and every role it may switch into.
type Subject struct {
	Active   Role
	Assigned []Role
}

// NewSubject returns a Subject acting as active. An active role that is not a matrix role is Guest.
func NewSubject(active Role, assigned []Role) Subject {
	if !active.Valid() {
		active = Guest
	}
	return Subject{Active: active, Assigned: assigned}
}

// CanAccess reports whether the active role may open module.
// The lookup goes through the module flag ("keuangan" -> "canAccessKeuangan"); unknown modules are denied.
func (s Subject) CanAccess(module string) bool {
	return CanAccess(s.Active, module)
}

// HasPermission reports whether the active role may perform action on resource.
// Unknown actions and resources are denied.
func (s Subject) HasPermission(action Action, resource string) bool {
	return HasPermission(s.Active, action, resource)
}

// HasRole reports whether any of roles is the active role or one of the assigned roles.
// Use it for affordances about what the identity could do, eg. showing the role switcher.
func (s Subject) HasRole(roles ...Role) bool {
	return s.CanAccessWithActiveRole(roles...) || ContainsAny(s.Assigned, roles...)
}

// CanAccessWithActiveRole reports whether the active role is one of roles.
func (s Subject) CanAccessWithActiveRole(roles ...Role) bool {
	return s.Active != Guest && Contains(roles, s.Active)
}

// Modules returns every module flag with its value for the active role.
func (s Subject) Modules() map[string]bool {
	return Modules(s.Active)
}

// Grants returns, for every resource, the actions the active role may perform on it.
func (s Subject) Grants() map[string][]Action {
	grants := make(map[string][]Action, len(catalogue.resources))
	for _, resource := range catalogue.resources {
		allowed := make([]Action, 0, len(actions))
		for _, a := range actions {
			if s.HasPermission(a, resource) {
				allowed = append(allowed, a)
			}
		}
		grants[resource] = allowed
	}
	return grants
}

// CanSwitch reports whether the identity holds another role with a dashboard to switch into.
func (s Subject) CanSwitch() bool {
	others := make([]Role, 0, len(catalogue.order))
	for _, r := range catalogue.order {
		if r != s.Active && r.Dashboard() != "" {
			others = append(others, r)
		}
	}
	return s.HasRole(others...)
}

// CanAccess reports whether role may open module.
func CanAccess(role Role, module string) bool {
	return catalogue.flags[role][moduleFlag(module)]
}

// HasPermission reports whether role may perform action on resource.
func HasPermission(role Role, action Action, resource string) bool {
	return catalogue.grants[action][resource][role]
}

// Modules returns every module flag with its value for role.
func Modules(role Role) map[string]bool {
	flags := make(map[string]bool, len(catalogue.moduleOf))
	for flag := range catalogue.moduleOf {
		flags[flag] = catalogue.flags[role][flag]
	}
	return flags
}

// ResourceNames returns the names of every resource of the CRUD table, sorted.
func ResourceNames() []string {
	names := make([]string, len(catalogue.resources))
	copy(names, catalogue.resources)
	return names
}

// ModuleNames returns the names of every module, sorted.
func ModuleNames() []string {
	names := make([]string, 0, len(catalogue.moduleOf))
	for _, module := range catalogue.moduleOf {
		names = append(names, module)
	}
	sort.Strings(names)
	return names
}
