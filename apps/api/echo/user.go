package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/pesantren/core/auth"
	"github.com/trezcool/pesantren/core/profile"
	"github.com/trezcool/pesantren/core/rbac"
	"github.com/trezcool/pesantren/core/session"
)

type userApi struct {
	authSvc  auth.Service
	profiles profile.Service
	sessions *session.Manager
	validate *validator.Validate
}

func registerUsersAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps ServerDeps) {
	api := userApi{
		authSvc:  deps.AuthSvc,
		profiles: deps.ProfileSvc,
		sessions: deps.Sessions,
		validate: deps.Validate,
	}

	// admin endpoints
	ug := g.Group("/users", append(authed, activeRoleMiddleware(rbac.Admin), moduleMiddleware("pengguna"))...)
	ug.POST("", api.create)
	ug.GET("/roles", api.queryRoles)
	ug.GET("/:id", api.retrieve)
	ug.PUT("/:id/roles", api.setRoles)
}

// Handlers

func (api *userApi) create(ctx echo.Context) error {
	var data NewUserRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUserRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	identity, err := api.authSvc.Register(ctx.Request().Context(), data.NewAccount, data.Roles...)
	if err != nil {
		return errors.Wrap(err, "registering user")
	}
	return ctx.JSON(http.StatusCreated, NewUserResponse{ID: identity.ID, Email: identity.Email})
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	type role struct {
		Tag       rbac.Role `json:"tag"`
		Label     string    `json:"label"`
		Dashboard string    `json:"dashboard"`
	}
	all := rbac.AllRoles()
	roles := make([]role, 0, len(all))
	for _, r := range all {
		roles = append(roles, role{Tag: r, Label: r.Label(), Dashboard: r.Dashboard()})
	}
	return ctx.JSON(http.StatusOK, roles)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	p, err := api.profiles.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding profile")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *userApi) setRoles(ctx echo.Context) error {
	var data profile.UpdateRoles
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRoles")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	snap := getContextSnapshot(ctx)
	p, err := api.profiles.SetRoles(ctx.Request().Context(), snap.Resolution().Subject(), snap.User.ID, ctx.Param("id"), data.Roles)
	if err != nil {
		return errors.Wrap(err, "setting roles")
	}
	api.sessions.Reload(ctx.Request().Context(), p.ID)
	return ctx.JSON(http.StatusOK, p)
}
