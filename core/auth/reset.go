package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/pesantren/core"
	"github.com/trezcool/pesantren/core/audit"
)

var (
	resetSalt  = []byte("pesantren.core.auth.reset")
	b32NoPad   = base32.StdEncoding.WithPadding(base32.NoPadding)
	day        = 24 * time.Hour
	resetEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// PasswordResetRequest asks for a password reset link to be mailed.
type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (r *PasswordResetRequest) Validate(validate *validator.Validate) error {
	r.Email = core.CleanString(r.Email, true /* lower */)
	return validate.Struct(r)
}

// PasswordResetConfirm sets a new password with the uid and token of a reset link.
type PasswordResetConfirm struct {
	UID             string `json:"uid" validate:"required"`
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (rc *PasswordResetConfirm) Validate(validate *validator.Validate) error {
	rc.UID = strings.TrimSpace(rc.UID)
	rc.Token = strings.TrimSpace(rc.Token)
	return validate.Struct(rc)
}

// resetTokens makes single use password reset tokens: a token is bound to the password hash and
// last login of the identity, so it stops working once either changes.
type resetTokens struct {
	key     []byte
	timeout time.Duration
}

func newResetTokens(conf *core.Config) resetTokens {
	key := sha256.Sum256(append(append([]byte{}, resetSalt...), conf.SecretKey...))
	return resetTokens{key: key[:], timeout: conf.Server.PasswordResetTimeoutDelta}
}

func encodeUID(identity Identity) string {
	return base64.RawURLEncoding.EncodeToString([]byte(identity.ID))
}

func decodeUID(uid string) (string, error) {
	id, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(id), nil
}

func daysSinceEpoch(t time.Time) int {
	return int(math.Ceil(t.Sub(resetEpoch).Hours() / 24))
}

func (rt resetTokens) make(identity Identity) string {
	return rt.makeWithTimestamp(identity, daysSinceEpoch(NowFunc()))
}

func (rt resetTokens) verify(identity Identity, token string) error {
	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return ErrInvalidResetLink
	}
	data, err := b32NoPad.DecodeString(parts[0])
	if err != nil {
		return ErrInvalidResetLink
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return ErrInvalidResetLink
	}

	// tampered
	if subtle.ConstantTimeCompare([]byte(rt.makeWithTimestamp(identity, ts)), []byte(token)) == 0 {
		return ErrInvalidResetLink
	}
	// expired
	if daysSinceEpoch(NowFunc())-ts > int(rt.timeout/day) {
		return ErrInvalidResetLink
	}
	return nil
}

func (rt resetTokens) makeWithTimestamp(identity Identity, ts int) string {
	var val bytes.Buffer
	val.WriteString(identity.ID)
	val.Write(identity.PasswordHash)
	if identity.LastLogin != nil {
		val.WriteString(identity.LastLogin.UTC().String())
	}
	val.WriteString(strconv.Itoa(ts))

	h := hmac.New(sha256.New, rt.key)
	_, _ = h.Write(val.Bytes())
	return b32NoPad.EncodeToString([]byte(strconv.Itoa(ts))) + "-" + base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// RequestPasswordReset mails a reset link to the active identity owning email.
// Unknown or disabled accounts are silently ignored.
func (svc *service) RequestPasswordReset(ctx context.Context, req PasswordResetRequest) error {
	identity, err := svc.repo.GetIdentityByEmail(ctx, req.Email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil
		}
		return errors.Wrap(err, "finding identity")
	}
	if !identity.IsActive {
		return nil
	}

	q := make(url.Values)
	q.Set("uid", encodeUID(identity))
	q.Set("token", svc.resets.make(identity))
	link := strings.TrimRight(svc.frontURL, "/") + "/reset-password?" + q.Encode()

	svc.sendMail(identity, "", "Atur ulang kata sandi "+svc.appName, fmt.Sprintf(
		"Seseorang meminta pengaturan ulang kata sandi akun Anda.\n\n%s\n\nTautan ini berlaku %d hari. Abaikan email ini jika bukan Anda.\n",
		link, int(svc.resets.timeout/day),
	))
	svc.audit.Log(ctx, identity.ID, audit.ActionRequestPasswordReset, nil)
	return nil
}

// ConfirmPasswordReset sets the new password of the identity a reset link was made for.
func (svc *service) ConfirmPasswordReset(ctx context.Context, rc PasswordResetConfirm) error {
	id, err := decodeUID(rc.UID)
	if err != nil {
		return ErrInvalidResetLink
	}
	identity, err := svc.repo.GetIdentityByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return ErrInvalidResetLink
		}
		return errors.Wrap(err, "finding identity")
	}
	if err = svc.resets.verify(identity, rc.Token); err != nil {
		return err
	}
	if err = svc.setPassword(ctx, identity, rc.Password); err != nil {
		return err
	}
	svc.audit.Log(ctx, identity.ID, audit.ActionResetPassword, nil)
	return nil
}
