package profile

import (
	"io"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/pesantren/core"
	"github.com/trezcool/pesantren/core/rbac"
)

// Record is a profile row as stored. Older rows only carry the singular Role,
// newer ones the Roles array. Either may be missing.
type Record struct {
	ID         string    `db:"id"`
	Name       string    `db:"name"`
	Username   *string   `db:"username"`
	Role       *string   `db:"role"`
	Roles      []string  `db:"roles"`
	ActiveRole *string   `db:"active_role"`
	ScopeID    *string   `db:"scope_id"`
	AvatarPath *string   `db:"avatar_path"`
	CreatedAt  time.Time `db:"created_at"` // UTC
	UpdatedAt  time.Time `db:"updated_at"` // UTC
}

// Resolution is what the permission table needs to know about an identity.
type Resolution struct {
	Roles      []rbac.Role `json:"roles"`
	ActiveRole rbac.Role   `json:"active_role"`
}

// GuestResolution is the resolution of an identity whose profile could not be determined.
func GuestResolution() Resolution {
	return Resolution{Roles: []rbac.Role{}, ActiveRole: rbac.Guest}
}

func (r Resolution) IsGuest() bool { return r.ActiveRole == rbac.Guest }

// Subject returns the permission table view of r.
func (r Resolution) Subject() rbac.Subject {
	return rbac.NewSubject(r.ActiveRole, r.Roles)
}

type Profile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	Resolution
	ScopeID   string    `json:"scope_id,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SwitchResult is the outcome of a successful role switch.
type SwitchResult struct {
	Role    rbac.Role `json:"role"`
	ScopeID string    `json:"scope_id"`
}

// NewProfile contains information needed to create the profile of a new identity.
type NewProfile struct {
	ID       string   `json:"-"`
	Name     string   `json:"name" validate:"required,max=120"`
	Username string   `json:"username" validate:"omitempty,min=3,max=32,alphanum_"`
	Roles    []string `json:"roles" validate:"omitempty,dive,roletag"`
}

func (np *NewProfile) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	np.Username = core.CleanString(np.Username, true /* lower */)
	for i, r := range np.Roles {
		np.Roles[i] = core.CleanString(r, true /* lower */)
	}
	return validate.Struct(np)
}

// UpdateProfile defines what an identity may change on its own profile.
type UpdateProfile struct {
	Name     string `json:"name" validate:"omitempty,max=120"`
	Username string `json:"username" validate:"omitempty,min=3,max=32,alphanum_"`
}

func (up *UpdateProfile) Validate(orig Profile, validate *validator.Validate) error {
	if name := core.CleanString(up.Name); name != "" {
		up.Name = name
	} else {
		up.Name = orig.Name
	}
	if uname := core.CleanString(up.Username, true /* lower */); uname != "" {
		up.Username = uname
	} else {
		up.Username = orig.Username
	}
	return validate.Struct(up)
}

// UpdateRoles is the payload of an admin elevation.
type UpdateRoles struct {
	Roles []string `json:"roles" validate:"required,min=1,dive,roletag"`
}

func (ur *UpdateRoles) Validate(validate *validator.Validate) error {
	for i, r := range ur.Roles {
		ur.Roles[i] = core.CleanString(r, true /* lower */)
	}
	return validate.Struct(ur)
}

// Avatar is an uploaded avatar image.
type Avatar struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}
