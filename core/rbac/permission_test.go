package rbac

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanAccessKeuangan(t *testing.T) {
	allowed := map[Role]bool{Admin: true, Bendahara: true, Pengasuh: true}
	for _, r := range append(AllRoles(), Guest, Role("kyai")) {
		s := NewSubject(r, []Role{r})
		assert.Equalf(t, allowed[r], s.CanAccess("Keuangan"), "role %q", r)
		assert.Equalf(t, allowed[r], s.CanAccess("keuangan"), "role %q", r)
	}
}

func TestCanAccessUnknownModule(t *testing.T) {
	s := NewSubject(Admin, AdminSuperset())
	assert.False(t, s.CanAccess("perpustakaan"))
	assert.False(t, s.CanAccess(""))
	assert.False(t, s.CanAccess("KEUANGAN"))
}

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		action   Action
		resource string
		want     bool
	}{
		{name: "bendahara creates pembayaran", role: Bendahara, action: Create, resource: "pembayaran", want: true},
		{name: "guru creates pembayaran", role: Guru, action: Create, resource: "pembayaran"},
		{name: "wali reads nilai", role: Wali, action: Read, resource: "nilai", want: true},
		{name: "wali updates nilai", role: Wali, action: Update, resource: "nilai"},
		{name: "musyrif updates hafalan", role: Musyrif, action: Update, resource: "hafalan", want: true},
		{name: "admin deletes pengguna", role: Admin, action: Delete, resource: "pengguna", want: true},
		{name: "unknown action", role: Admin, action: Action("archive"), resource: "santri"},
		{name: "unknown resource", role: Admin, action: Read, resource: "perpustakaan"},
		{name: "guest", role: Guest, action: Read, resource: "santri"},
		{name: "unknown role", role: Role("kyai"), action: Read, resource: "santri"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSubject(tt.role, []Role{tt.role})
			assert.Equal(t, tt.want, s.HasPermission(tt.action, tt.resource))
		})
	}
}

func TestHasPermissionDeniesEverythingUndefined(t *testing.T) {
	for _, r := range append(AllRoles(), Guest) {
		for _, a := range []Action{Create, Read, Update, Delete, "archive"} {
			assert.Falsef(t, HasPermission(r, a, "undefined"), "%s %s", r, a)
		}
	}
}

func TestHasRoleVsActiveRole(t *testing.T) {
	s := NewSubject(Guru, []Role{Guru, Musyrif})

	assert.True(t, s.HasRole(Musyrif), "assigned role counts for HasRole")
	assert.False(t, s.CanAccessWithActiveRole(Musyrif), "only the active role counts")
	assert.True(t, s.CanAccessWithActiveRole(Guru, Admin))
	assert.False(t, s.HasRole(Bendahara))

	guest := NewSubject(Guest, nil)
	assert.False(t, guest.HasRole(Guest))
	assert.False(t, guest.CanAccessWithActiveRole(Guest))
}

func TestNewSubjectRejectsUnknownActive(t *testing.T) {
	assert.Equal(t, Guest, NewSubject(Role("kyai"), nil).Active)
}

func TestModules(t *testing.T) {
	flags := NewSubject(Bendahara, []Role{Bendahara}).Modules()
	assert.Len(t, flags, len(ModuleNames()))
	assert.True(t, flags["canAccessKeuangan"])
	assert.False(t, flags["canAccessPengguna"])

	for flag, ok := range Modules(Guest) {
		assert.Falsef(t, ok, "guest has %s", flag)
	}
}

func TestGrants(t *testing.T) {
	grants := NewSubject(Bendahara, []Role{Bendahara}).Grants()
	assert.Len(t, grants, len(ResourceNames()))
	assert.Equal(t, []Action{Create, Read, Update}, grants["tagihan"])
	assert.Empty(t, grants["nilai"])

	for resource, allowed := range NewSubject(Guest, nil).Grants() {
		assert.Emptyf(t, allowed, "guest may act on %s", resource)
	}
}

func TestResourceNamesSorted(t *testing.T) {
	names := ResourceNames()
	assert.True(t, sort.StringsAreSorted(names))
	assert.Contains(t, names, "santri")
}

func TestCanSwitch(t *testing.T) {
	tests := []struct {
		name string
		sub  Subject
		want bool
	}{
		{name: "guest", sub: NewSubject(Guest, nil)},
		{name: "single role", sub: NewSubject(Guru, []Role{Guru})},
		{name: "two roles", sub: NewSubject(Guru, []Role{Guru, Musyrif}), want: true},
		{name: "admin superset", sub: NewSubject(Admin, AdminSuperset()), want: true},
		{name: "unknown extra tag", sub: NewSubject(Wali, []Role{Wali, "kyai"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sub.CanSwitch())
		})
	}
}
