package echoapi

import (
	"mime/multipart"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/pesantren/core"
	"github.com/trezcool/pesantren/core/auth"
	"github.com/trezcool/pesantren/core/profile"
	"github.com/trezcool/pesantren/core/rbac"
	"github.com/trezcool/pesantren/core/session"
)

const (
	nextParam   = "next"
	avatarField = "avatar"
)

type (
	LoginResponse struct {
		Tokens   auth.TokenPair   `json:"tokens"`
		Session  session.Snapshot `json:"session"`
		Redirect string           `json:"redirect"`
	}

	RefreshRequest struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	SwitchRoleRequest struct {
		Role string `json:"role" validate:"required"`
	}

	ActivityRequest struct {
		Kind string `json:"kind" validate:"required,oneof=pointer keyboard scroll touch"`
	}

	ActivityResponse struct {
		Reset        bool   `json:"reset"`
		IdleDeadline string `json:"idle_deadline"`
	}

	MeResponse struct {
		session.Snapshot
		Dashboard string `json:"dashboard"`
	}

	PermissionsResponse struct {
		ActiveRole rbac.Role       `json:"active_role"`
		Roles      []rbac.Role     `json:"roles"`
		CanSwitch  bool            `json:"can_switch"`
		Modules    map[string]bool `json:"modules"`
		// Grants lists the actions allowed per resource, eg. {"nilai": ["create", "read", "update"]}.
		Grants map[string][]rbac.Action `json:"grants"`
	}

	NewUserRequest struct {
		auth.NewAccount
		Roles []string `json:"roles" validate:"omitempty,dive,roletag"`
	}

	NewUserResponse struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
)

func (rr *RefreshRequest) Validate(validate *validator.Validate) error {
	rr.RefreshToken = strings.TrimSpace(rr.RefreshToken)
	return validate.Struct(rr)
}

func (sr *SwitchRoleRequest) Validate(validate *validator.Validate) error {
	sr.Role = core.CleanString(sr.Role, true /* lower */)
	return validate.Struct(sr)
}

func (ar *ActivityRequest) Validate(validate *validator.Validate) error {
	ar.Kind = core.CleanString(ar.Kind, true /* lower */)
	return validate.Struct(ar)
}

func (nr *NewUserRequest) Validate(validate *validator.Validate) error {
	for i, r := range nr.Roles {
		nr.Roles[i] = core.CleanString(r, true /* lower */)
	}
	if err := nr.NewAccount.Validate(validate); err != nil {
		return err
	}
	return validate.Struct(nr)
}

// bindNext returns the post-login destination of the request, if it is a local path.
func bindNext(ctx echo.Context) string {
	next := ctx.QueryParam(nextParam)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return ""
	}
	if u, err := url.Parse(next); err != nil || u.IsAbs() || u.Host != "" {
		return ""
	}
	return next
}

// bindAvatar reads the uploaded avatar of a multipart request. The returned file must be closed.
func bindAvatar(ctx echo.Context) (profile.Avatar, multipart.File, error) {
	fh, err := ctx.FormFile(avatarField)
	if err != nil {
		return profile.Avatar{}, nil, core.NewValidationError(err, core.FieldError{Field: avatarField, Error: "kolom ini wajib diisi"})
	}
	f, err := fh.Open()
	if err != nil {
		return profile.Avatar{}, nil, errors.Wrap(err, "opening avatar")
	}
	av := profile.Avatar{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Size:        fh.Size,
		Body:        f,
	}
	return av, f, nil
}
