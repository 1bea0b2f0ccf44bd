// Package audit records account activity (logins, role switches, idle timeouts...).
// Writing an audit entry never fails nor blocks the action being audited.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/trezcool/pesantren/core"
)

// Actions
const (
	ActionSignIn         = "login"
	ActionSignUp         = "signup"
	ActionSignOut        = "logout"
	ActionSwitchRole     = "switch_role"
	ActionUpdateProfile  = "update_profile"
	ActionUpdateRoles    = "update_roles"
	ActionChangePassword = "change_password"

	ActionRequestPasswordReset = "request_password_reset"
	ActionResetPassword        = "reset_password"

	ReasonIdleTimeout = "idle timeout"
)

var writeTimeout = 2 * time.Second

type (
	Event struct {
		IdentityID string
		Action     string
		Details    map[string]interface{}
	}

	// Writer persists activity entries, eg. through the `log_activity` database function.
	Writer interface {
		WriteActivity(ctx context.Context, ev Event) error
	}

	Logger struct {
		w      Writer
		logger core.Logger
	}
)

func NewLogger(w Writer, logger core.Logger) *Logger {
	return &Logger{w: w, logger: logger}
}

// Log writes an activity entry. Failures are logged and swallowed.
func (l *Logger) Log(ctx context.Context, identityID, action string, details map[string]interface{}) {
	if l == nil || l.w == nil {
		return
	}
	if details == nil {
		details = map[string]interface{}{}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	ev := Event{IdentityID: identityID, Action: action, Details: details}
	if err := l.w.WriteActivity(ctx, ev); err != nil && l.logger != nil {
		l.logger.Warn(fmt.Sprintf("writing activity %q: %v", action, err), err, core.Person{ID: identityID})
	}
}
