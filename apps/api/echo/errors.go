package echoapi

import (
	"net/http"

	"github.com/dgrijalva/jwt-go"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/pesantren/core"
	"github.com/trezcool/pesantren/core/auth"
	"github.com/trezcool/pesantren/core/profile"
	"github.com/trezcool/pesantren/core/session"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound  = echo.NewHTTPError(http.StatusNotFound, "not found")

	authErrorCodes = map[error]int{
		auth.ErrInvalidCredentials: http.StatusBadRequest,
		auth.ErrAccountDisabled:    http.StatusForbidden,
		auth.ErrEmailExists:        http.StatusBadRequest,
		auth.ErrNotFound:           http.StatusNotFound,
		auth.ErrInvalidToken:       http.StatusUnauthorized,
		auth.ErrTokenExpired:       http.StatusUnauthorized,
		auth.ErrSessionRevoked:     http.StatusUnauthorized,
		auth.ErrRefreshFailed:      http.StatusUnauthorized,
		auth.ErrWrongPassword:      http.StatusBadRequest,
		auth.ErrInvalidResetLink:   http.StatusBadRequest,
	}

	domainErrorCodes = map[error]int{
		profile.ErrNotFound:        http.StatusNotFound,
		profile.ErrUsernameExists:  http.StatusBadRequest,
		profile.ErrInvalidRole:     http.StatusBadRequest,
		profile.ErrRoleNotAssigned: http.StatusBadRequest,
		profile.ErrForbidden:       http.StatusForbidden,
		profile.ErrAvatarsDisabled: http.StatusNotImplemented,
		session.ErrNoSession:       http.StatusUnauthorized,
	}
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if isExpiredJWT(origErr.Internal) {
				code = http.StatusUnauthorized
				message, _ = auth.Translate(translator, auth.ErrTokenExpired)
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			if c, ok := authErrorCodes[cause]; ok {
				code = c
				message, _ = auth.Translate(translator, cause)
				break
			}
			if c, ok := domainErrorCodes[cause]; ok {
				code = c
				message = cause.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var person core.Person
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				person.ID = claims.Subject
				person.Email = claims.Email
			}
			if logger != nil {
				logger.Error(msg, errors.Wrap(err, msg), person)
			}

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

func isExpiredJWT(err error) bool {
	vErr, ok := err.(*jwt.ValidationError)
	return ok && vErr.Errors == jwt.ValidationErrorExpired
}
