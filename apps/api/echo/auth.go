package echoapi

import (
	"net/http"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/pesantren/core"
	"github.com/trezcool/pesantren/core/auth"
	"github.com/trezcool/pesantren/core/session"
)

const (
	contextTokenKey    = "sessionToken"
	contextSessionKey  = "session"
	contextSnapshotKey = "snapshot"
	contextNoticeKey   = "notice"
)

// errAnonymousToken marks a token the optional JWT middleware could not accept.
var errAnonymousToken = errors.New("anonymous token")

// newJWTConfig returns the JWT auth middleware config.
// An optional config lets requests without token through and reports bad tokens as errAnonymousToken.
func newJWTConfig(conf *core.Config, optional bool) middleware.JWTConfig {
	cfg := middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: auth.SigningMethod.Alg(),
		ContextKey:    contextTokenKey,
		Claims:        new(auth.Claims),
	}
	if optional {
		cfg.Skipper = func(ctx echo.Context) bool {
			return ctx.Request().Header.Get(echo.HeaderAuthorization) == ""
		}
		cfg.ErrorHandlerWithContext = func(error, echo.Context) error {
			return errAnonymousToken
		}
	}
	return cfg
}

// optionalJWT authenticates requests carrying a valid token. Invalid or expired tokens carry on anonymously.
func optionalJWT(conf *core.Config) echo.MiddlewareFunc {
	withJWT := middleware.JWTWithConfig(newJWTConfig(conf, true))
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		h := withJWT(next)
		return func(ctx echo.Context) error {
			if err := h(ctx); err != errAnonymousToken {
				return err
			}
			return next(ctx)
		}
	}
}

func getContextClaims(ctx echo.Context) (auth.Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*auth.Claims); ok {
			return *claims, nil
		}
	}
	return auth.Claims{}, errUnauthorized
}

func getContextSession(ctx echo.Context) (auth.Session, error) {
	if sess, ok := ctx.Get(contextSessionKey).(auth.Session); ok {
		return sess, nil
	}
	return auth.Session{}, errUnauthorized
}

// getContextSnapshot returns the session state of the request, anonymous when there is none.
func getContextSnapshot(ctx echo.Context) session.Snapshot {
	if snap, ok := ctx.Get(contextSnapshotKey).(session.Snapshot); ok {
		return snap
	}
	return session.Snapshot{}
}

// sessionMiddleware checks the token claims against the denylist and attaches the session state to the context.
// A session the idle monitor ended answers its notice, once.
// Optional requests carry on anonymously when their session is gone.
func sessionMiddleware(authSvc auth.Service, sessions *session.Manager, optional bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				if optional {
					return next(ctx)
				}
				return err
			}

			req := ctx.Request()
			sess, err := authSvc.Verify(req.Context(), &claims)
			if err != nil {
				if !auth.IsAuthError(err) {
					return errors.Wrap(err, "verifying session")
				}
				notice, noticed := sessions.TakeNotice(claims.SessionID)
				if optional {
					if noticed {
						ctx.Set(contextNoticeKey, notice)
					}
					return next(ctx)
				}
				if noticed {
					return echo.NewHTTPError(http.StatusUnauthorized, echo.Map{
						"error":    notice.Message,
						"redirect": notice.Redirect,
					})
				}
				return err
			}

			snap := sessions.Session(req.Context(), sess)
			if !snap.Authenticated() && !optional {
				return errUnauthorized
			}
			ctx.Set(contextSessionKey, sess)
			ctx.Set(contextSnapshotKey, snap)
			return next(ctx)
		}
	}
}
