package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/pesantren/core/profile"
	"github.com/trezcool/pesantren/core/rbac"
	"github.com/trezcool/pesantren/core/session"
)

type meApi struct {
	profiles profile.Service
	sessions *session.Manager
	validate *validator.Validate
}

func registerMeAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps ServerDeps) {
	api := meApi{
		profiles: deps.ProfileSvc,
		sessions: deps.Sessions,
		validate: deps.Validate,
	}

	mg := g.Group("/me", authed...)
	mg.GET("", api.retrieve)
	mg.PUT("", api.update)
	mg.POST("/role", api.switchRole)
	mg.POST("/activity", api.activity)
	mg.PUT("/avatar", api.setAvatar)
	mg.DELETE("/avatar", api.removeAvatar)
	mg.GET("/permissions", api.permissions)
}

// Handlers

func (api *meApi) retrieve(ctx echo.Context) error {
	snap := getContextSnapshot(ctx)
	if snap.Loading {
		return loading(ctx)
	}
	return ctx.JSON(http.StatusOK, MeResponse{
		Snapshot:  snap,
		Dashboard: snap.Resolution().ActiveRole.Dashboard(),
	})
}

func (api *meApi) update(ctx echo.Context) error {
	snap := getContextSnapshot(ctx)
	orig, err := api.profiles.Get(ctx.Request().Context(), snap.User.ID)
	if err != nil {
		return errors.Wrap(err, "finding profile")
	}

	var data profile.UpdateProfile
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProfile")
	}
	if err = data.Validate(orig, api.validate); err != nil {
		return err
	}

	p, err := api.profiles.Update(ctx.Request().Context(), orig.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating profile")
	}
	api.sessions.Reload(ctx.Request().Context(), p.ID)
	return ctx.JSON(http.StatusOK, p)
}

func (api *meApi) switchRole(ctx echo.Context) error {
	var data SwitchRoleRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SwitchRoleRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	snap := getContextSnapshot(ctx)
	res, err := api.sessions.SwitchRole(ctx.Request().Context(), snap.ID, data.Role)
	if err != nil {
		return errors.Wrap(err, "switching role")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *meApi) activity(ctx echo.Context) error {
	var data ActivityRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ActivityRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	snap := getContextSnapshot(ctx)
	reset, err := api.sessions.Activity(snap.ID, session.ActivityKind(data.Kind))
	if err != nil {
		return errors.Wrap(err, "recording activity")
	}

	var deadline string
	if d := api.sessions.IdleDeadline(snap.ID); !d.IsZero() {
		deadline = d.UTC().Format(time.RFC3339)
	}
	return ctx.JSON(http.StatusOK, ActivityResponse{Reset: reset, IdleDeadline: deadline})
}

func (api *meApi) setAvatar(ctx echo.Context) error {
	av, f, err := bindAvatar(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	snap := getContextSnapshot(ctx)
	p, err := api.profiles.SetAvatar(ctx.Request().Context(), snap.User.ID, av)
	if err != nil {
		return errors.Wrap(err, "setting avatar")
	}
	api.sessions.Reload(ctx.Request().Context(), p.ID)
	return ctx.JSON(http.StatusOK, p)
}

func (api *meApi) removeAvatar(ctx echo.Context) error {
	snap := getContextSnapshot(ctx)
	p, err := api.profiles.RemoveAvatar(ctx.Request().Context(), snap.User.ID)
	if err != nil {
		return errors.Wrap(err, "removing avatar")
	}
	api.sessions.Reload(ctx.Request().Context(), p.ID)
	return ctx.JSON(http.StatusOK, p)
}

func (api *meApi) permissions(ctx echo.Context) error {
	res := getContextSnapshot(ctx).Resolution()
	sub := res.Subject()
	roles := res.Roles
	if roles == nil {
		roles = []rbac.Role{}
	}
	return ctx.JSON(http.StatusOK, PermissionsResponse{
		ActiveRole: sub.Active,
		Roles:      roles,
		CanSwitch:  sub.CanSwitch(),
		Modules:    sub.Modules(),
		Grants:     sub.Grants(),
	})
}

func loading(ctx echo.Context) error {
	ctx.Response().Header().Set("Retry-After", "1")
	return ctx.JSON(http.StatusAccepted, echo.Map{"state": "LOADING"})
}
