package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/pesantren/core/auth"
	"github.com/trezcool/pesantren/core/session"
)

type authApi struct {
	svc        auth.Service
	sessions   *session.Manager
	validate   *validator.Validate
	translator ut.Translator
}

func registerAuthAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps ServerDeps) {
	api := authApi{
		svc:        deps.AuthSvc,
		sessions:   deps.Sessions,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/login", api.login)
	ag.POST("/signup", api.signup)
	ag.POST("/refresh", api.refresh)
	ag.POST("/password-reset", api.requestPasswordReset)
	ag.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authed endpoints
	sg := ag.Group("", authed...)
	sg.POST("/logout", api.logout)
	sg.PUT("/password", api.changePassword)
}

// Handlers

func (api *authApi) login(ctx echo.Context) error {
	var data auth.Credentials
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Credentials")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sess, tokens, err := api.svc.SignIn(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "signing in")
	}
	return ctx.JSON(http.StatusOK, api.loginResponse(ctx, sess, tokens))
}

func (api *authApi) signup(ctx echo.Context) error {
	var data auth.NewAccount
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAccount")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sess, tokens, err := api.svc.SignUp(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "signing up")
	}
	return ctx.JSON(http.StatusCreated, api.loginResponse(ctx, sess, tokens))
}

// loginResponse sends the user back where they were going, or to the dashboard of their active role.
func (api *authApi) loginResponse(ctx echo.Context, sess auth.Session, tokens auth.TokenPair) LoginResponse {
	snap := api.sessions.Session(ctx.Request().Context(), sess)
	redirect := bindNext(ctx)
	if redirect == "" {
		redirect = snap.Resolution().ActiveRole.Dashboard()
	}
	if redirect == "" {
		redirect = "/"
	}
	return LoginResponse{Tokens: tokens, Session: snap, Redirect: redirect}
}

func (api *authApi) refresh(ctx echo.Context) error {
	var data RefreshRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RefreshRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sess, tokens, err := api.svc.Refresh(ctx.Request().Context(), data.RefreshToken)
	if err != nil {
		return errors.Wrap(err, "refreshing session")
	}
	snap, _ := api.sessions.Snapshot(sess.ID)
	return ctx.JSON(http.StatusOK, LoginResponse{Tokens: tokens, Session: snap})
}

func (api *authApi) logout(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.SignOut(ctx.Request().Context(), sess, ""); err != nil {
		// the session is cleared anyway
		ctx.Logger().Errorf("%+v", errors.Wrap(err, "signing out"))
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *authApi) changePassword(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var data auth.PasswordChange
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordChange")
	}

	var name, username string
	if snap := getContextSnapshot(ctx); snap.Profile != nil {
		name, username = snap.Profile.Name, snap.Profile.Username
	}
	if err = data.Validate(api.validate, name, username, sess.Email); err != nil {
		return err
	}

	if err = api.svc.UpdatePassword(ctx.Request().Context(), sess, data); err != nil {
		return errors.Wrap(err, "updating password")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *authApi) requestPasswordReset(ctx echo.Context) error {
	var data auth.PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "requesting password reset")
	}
	// whether the account exists or not
	return ctx.NoContent(http.StatusAccepted)
}

func (api *authApi) confirmPasswordReset(ctx echo.Context) error {
	var data auth.PasswordResetConfirm
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetConfirm")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.svc.ConfirmPasswordReset(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.NoContent(http.StatusNoContent)
}
