// Package auth authenticates identities and manages their sessions: sign in/up/out, token refresh,
// password changes. Every session state change is broadcast to the listeners registered with OnAuthStateChange.
package auth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/pesantren/core"
	"github.com/trezcool/pesantren/core/audit"
	"github.com/trezcool/pesantren/core/profile"
)

var NowFunc = time.Now // mockable

// ReasonRefreshFailed is the sign out reason of a session whose refresh failed.
const ReasonRefreshFailed = "refresh failed"

type (
	Repository interface {
		CreateIdentity(ctx context.Context, identity Identity) (Identity, error)
		GetIdentityByID(ctx context.Context, id string) (Identity, error)
		GetIdentityByEmail(ctx context.Context, email string) (Identity, error)
		// ResolveUsernameToEmail returns the email of the identity owning the profile username.
		ResolveUsernameToEmail(ctx context.Context, username string) (string, error)
		// UpdateIdentity saves the password hash and active flag.
		UpdateIdentity(ctx context.Context, identity Identity) (Identity, error)
		SetLastLogin(ctx context.Context, id string, at time.Time) error
		DeleteIdentity(ctx context.Context, id string) error
	}

	Service interface {
		SignIn(ctx context.Context, cred Credentials) (Session, TokenPair, error)
		SignUp(ctx context.Context, na NewAccount) (Session, TokenPair, error)
		// Register creates an identity and its profile without starting a session.
		Register(ctx context.Context, na NewAccount, roles ...string) (Identity, error)
		SignOut(ctx context.Context, sess Session, reason string) error
		GetSession(ctx context.Context, accessToken string) (Session, error)
		// Verify checks access token claims already validated by a JWT middleware against the denylist.
		Verify(ctx context.Context, claims *Claims) (Session, error)
		Refresh(ctx context.Context, refreshToken string) (Session, TokenPair, error)
		UpdatePassword(ctx context.Context, sess Session, pc PasswordChange) error
		ResetPassword(ctx context.Context, login, pwd string) error
		RequestPasswordReset(ctx context.Context, req PasswordResetRequest) error
		ConfirmPasswordReset(ctx context.Context, rc PasswordResetConfirm) error
		OnAuthStateChange(l Listener) (unsubscribe func())
	}

	service struct {
		repo     Repository
		profiles profile.Service
		revoker  Revoker
		mailSvc  core.EmailService
		audit    *audit.Logger
		logger   core.Logger
		tokens   tokenIssuer
		resets   resetTokens
		events   broadcaster
		appName  string
		frontURL string
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	profiles profile.Service,
	revoker Revoker,
	mailSvc core.EmailService,
	auditLog *audit.Logger,
	logger core.Logger,
	conf *core.Config,
) Service {
	return &service{
		repo:     repo,
		profiles: profiles,
		revoker:  revoker,
		mailSvc:  mailSvc,
		audit:    auditLog,
		logger:   logger,
		tokens:   newTokenIssuer(conf),
		resets:   newResetTokens(conf),
		appName:  conf.AppName,
		frontURL: conf.FrontendBaseURL,
	}
}

func (svc *service) OnAuthStateChange(l Listener) func() {
	return svc.events.subscribe(l)
}

// lookup finds the identity signing in with login, an email or a profile username.
func (svc *service) lookup(ctx context.Context, login string) (Identity, error) {
	login = core.CleanString(login, true /* lower */)
	if login == "" {
		return Identity{}, ErrNotFound
	}

	email := login
	if !strings.Contains(login, "@") {
		var err error
		if email, err = svc.repo.ResolveUsernameToEmail(ctx, login); err != nil {
			return Identity{}, err
		}
	}
	return svc.repo.GetIdentityByEmail(ctx, email)
}

func (svc *service) SignIn(ctx context.Context, cred Credentials) (Session, TokenPair, error) {
	identity, err := svc.lookup(ctx, cred.Login)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Session{}, TokenPair{}, ErrInvalidCredentials
		}
		return Session{}, TokenPair{}, errors.Wrap(err, "finding identity")
	}
	if err = identity.CheckPassword(cred.Password); err != nil {
		return Session{}, TokenPair{}, ErrInvalidCredentials
	}
	if !identity.IsActive {
		return Session{}, TokenPair{}, ErrAccountDisabled
	}

	if err = svc.repo.SetLastLogin(ctx, identity.ID, NowFunc().UTC()); err != nil {
		return Session{}, TokenPair{}, errors.Wrap(err, "setting last login")
	}
	return svc.startSession(ctx, identity, audit.ActionSignIn)
}

func (svc *service) startSession(ctx context.Context, identity Identity, action string) (Session, TokenPair, error) {
	sess := svc.tokens.newSession(identity, "", time.Time{})
	tokens, err := svc.tokens.issue(sess)
	if err != nil {
		return Session{}, TokenPair{}, err
	}

	svc.audit.Log(ctx, identity.ID, action, map[string]interface{}{"session": sess.ID})
	svc.events.emit(ctx, Event{Type: SignedIn, Session: sess})
	return sess, tokens, nil
}

func (svc *service) Register(ctx context.Context, na NewAccount, roles ...string) (Identity, error) {
	if _, err := svc.repo.GetIdentityByEmail(ctx, na.Email); err == nil {
		return Identity{}, core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	} else if errors.Cause(err) != ErrNotFound {
		return Identity{}, errors.Wrap(err, "checking email uniqueness")
	}
	if err := svc.profiles.CheckUniqueness(ctx, na.Username); err != nil {
		return Identity{}, err
	}

	now := NowFunc().UTC()
	identity := Identity{
		ID:        uuid.NewString(),
		Email:     na.Email,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := identity.SetPassword(na.Password); err != nil {
		return Identity{}, errors.Wrap(err, "hashing password")
	}
	identity, err := svc.repo.CreateIdentity(ctx, identity)
	if err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return Identity{}, core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
		}
		return Identity{}, errors.Wrap(err, "creating identity")
	}

	np := profile.NewProfile{ID: identity.ID, Name: na.Name, Username: na.Username, Roles: roles}
	if _, err = svc.profiles.Create(ctx, np); err != nil {
		if dErr := svc.repo.DeleteIdentity(ctx, identity.ID); dErr != nil && svc.logger != nil {
			svc.logger.Error(fmt.Sprintf("deleting identity without profile: %v", dErr), dErr, core.Person{ID: identity.ID})
		}
		return Identity{}, err
	}
	return identity, nil
}

func (svc *service) SignUp(ctx context.Context, na NewAccount) (Session, TokenPair, error) {
	identity, err := svc.Register(ctx, na)
	if err != nil {
		return Session{}, TokenPair{}, err
	}
	svc.sendMail(identity, na.Name, "Selamat datang di "+svc.appName, fmt.Sprintf(
		"Assalamu'alaikum %s,\n\nAkun Anda telah dibuat. Admin akan menetapkan peran Anda.\n\n%s\n", na.Name, svc.frontURL,
	))
	return svc.startSession(ctx, identity, audit.ActionSignUp)
}

// SignOut ends sess. The session is cleared for every listener even when it could not be denylisted.
func (svc *service) SignOut(ctx context.Context, sess Session, reason string) error {
	err := svc.revoker.Revoke(ctx, sess.ID, svc.revokeUntil(sess))

	details := map[string]interface{}{"session": sess.ID}
	if reason != "" {
		details["reason"] = reason
	}
	svc.audit.Log(ctx, sess.IdentityID, audit.ActionSignOut, details)
	svc.events.emit(ctx, Event{Type: SignedOut, Session: sess, Reason: reason})
	return errors.Wrap(err, "revoking session")
}

func (svc *service) revokeUntil(sess Session) time.Time {
	if sess.RefreshExpiresAt.IsZero() {
		return NowFunc().Add(svc.tokens.refreshDelta)
	}
	return sess.RefreshExpiresAt
}

func (svc *service) GetSession(ctx context.Context, accessToken string) (Session, error) {
	claims, err := svc.tokens.parse(accessToken, KindAccess)
	if err != nil {
		return Session{}, err
	}
	return svc.Verify(ctx, claims)
}

func (svc *service) Verify(ctx context.Context, claims *Claims) (Session, error) {
	if claims == nil || claims.Kind != KindAccess || claims.SessionID == "" || claims.Subject == "" {
		return Session{}, ErrInvalidToken
	}
	revoked, err := svc.revoker.IsRevoked(ctx, claims.SessionID)
	if err != nil {
		return Session{}, errors.Wrap(err, "checking revocation")
	}
	if revoked {
		return Session{}, ErrSessionRevoked
	}
	return claims.Session(svc.tokens.refreshDelta), nil
}

// Refresh issues new tokens for the session of refreshToken.
// When that fails, the session is signed out and ErrRefreshFailed returned.
func (svc *service) Refresh(ctx context.Context, refreshToken string) (Session, TokenPair, error) {
	claims, err := svc.tokens.parse(refreshToken, KindRefresh)
	if err != nil {
		if claims != nil {
			svc.failRefresh(ctx, claims)
		}
		return Session{}, TokenPair{}, errors.Wrap(ErrRefreshFailed, err.Error())
	}

	fail := func(cause error) (Session, TokenPair, error) {
		svc.failRefresh(ctx, claims)
		return Session{}, TokenPair{}, errors.Wrap(ErrRefreshFailed, cause.Error())
	}

	revoked, err := svc.revoker.IsRevoked(ctx, claims.SessionID)
	if err != nil {
		return Session{}, TokenPair{}, errors.Wrap(err, "checking revocation")
	}
	if revoked {
		// already signed out: nothing to clear
		return Session{}, TokenPair{}, errors.Wrap(ErrRefreshFailed, ErrSessionRevoked.Error())
	}

	identity, err := svc.repo.GetIdentityByID(ctx, claims.Subject)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return fail(err)
		}
		return Session{}, TokenPair{}, errors.Wrap(err, "finding identity")
	}
	if !identity.IsActive {
		return fail(ErrAccountDisabled)
	}

	sess := svc.tokens.newSession(identity, claims.SessionID, time.Unix(claims.OrigIssuedAt, 0).UTC())
	tokens, err := svc.tokens.issue(sess)
	if err != nil {
		return Session{}, TokenPair{}, err
	}
	svc.events.emit(ctx, Event{Type: TokenRefreshed, Session: sess})
	return sess, tokens, nil
}

func (svc *service) failRefresh(ctx context.Context, claims *Claims) {
	sess := claims.Session(svc.tokens.refreshDelta)
	if err := svc.SignOut(ctx, sess, ReasonRefreshFailed); err != nil && svc.logger != nil {
		svc.logger.Warn(fmt.Sprintf("signing out after failed refresh: %v", err), err, core.Person{ID: sess.IdentityID})
	}
}

func (svc *service) UpdatePassword(ctx context.Context, sess Session, pc PasswordChange) error {
	identity, err := svc.repo.GetIdentityByID(ctx, sess.IdentityID)
	if err != nil {
		return errors.Wrap(err, "finding identity")
	}
	if err = identity.CheckPassword(pc.Current); err != nil {
		return ErrWrongPassword
	}
	if err = svc.setPassword(ctx, identity, pc.Password); err != nil {
		return err
	}

	svc.audit.Log(ctx, identity.ID, audit.ActionChangePassword, nil)
	svc.sendMail(identity, pc.name, "Kata sandi Anda telah diubah",
		"Kata sandi akun Anda baru saja diubah. Jika ini bukan Anda, segera hubungi admin.\n")
	svc.events.emit(ctx, Event{Type: UserUpdated, Session: sess})
	return nil
}

func (svc *service) ResetPassword(ctx context.Context, login, pwd string) error {
	identity, err := svc.lookup(ctx, login)
	if err != nil {
		return err
	}
	return svc.setPassword(ctx, identity, pwd)
}

func (svc *service) setPassword(ctx context.Context, identity Identity, pwd string) error {
	if err := identity.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	identity.UpdatedAt = NowFunc().UTC()
	if _, err := svc.repo.UpdateIdentity(ctx, identity); err != nil {
		return errors.Wrap(err, "updating identity")
	}
	return nil
}

func (svc *service) sendMail(identity Identity, name, subject, body string) {
	if svc.mailSvc == nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: name, Address: identity.Email}},
		Subject: subject,
		Body:    body,
	})
}
