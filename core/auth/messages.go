package auth

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/pkg/errors"
)

var (
	// errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrEmailExists        = errors.New("an account with this email already exists")
	ErrNotFound           = errors.New("identity not found")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrRefreshFailed      = errors.New("session could not be refreshed")
	ErrWrongPassword      = errors.New("current password is incorrect")
	ErrInvalidResetLink   = errors.New("invalid or expired password reset link")
)

type message struct {
	key    string
	id, en string
}

// user facing messages of the auth failures
var messages = map[error]message{
	ErrInvalidCredentials: {key: "auth.invalid_credentials", id: "Email/username atau kata sandi salah", en: "Invalid email/username or password"},
	ErrAccountDisabled:    {key: "auth.account_disabled", id: "Akun Anda dinonaktifkan, hubungi admin", en: "Your account is disabled, contact an administrator"},
	ErrEmailExists:        {key: "auth.email_exists", id: "Email sudah terdaftar", en: "This email is already registered"},
	ErrInvalidToken:       {key: "auth.invalid_token", id: "Sesi tidak valid, silakan masuk kembali", en: "Invalid session, please sign in again"},
	ErrTokenExpired:       {key: "auth.token_expired", id: "Sesi Anda telah berakhir, silakan masuk kembali", en: "Your session has expired, please sign in again"},
	ErrSessionRevoked:     {key: "auth.session_revoked", id: "Anda telah keluar, silakan masuk kembali", en: "You have signed out, please sign in again"},
	ErrRefreshFailed:      {key: "auth.refresh_failed", id: "Sesi Anda tidak dapat diperpanjang, silakan masuk kembali", en: "Your session could not be renewed, please sign in again"},
	ErrWrongPassword:      {key: "auth.wrong_password", id: "Kata sandi saat ini salah", en: "The current password is incorrect"},
	ErrInvalidResetLink:   {key: "auth.invalid_reset_link", id: "Tautan atur ulang kata sandi tidak valid atau kedaluwarsa", en: "The password reset link is invalid or has expired"},
}

// RegisterTranslations adds the auth failure messages to translator, in its locale ("id" unless "en").
func RegisterTranslations(translator ut.Translator) error {
	for _, m := range messages {
		text := m.id
		if translator.Locale() == "en" {
			text = m.en
		}
		if err := translator.Add(m.key, text, true); err != nil {
			return errors.Wrapf(err, "adding %s", m.key)
		}
	}
	return nil
}

// Translate returns the user facing message of an auth failure. ok is false when err is not one.
func Translate(translator ut.Translator, err error) (msg string, ok bool) {
	m, ok := messages[errors.Cause(err)]
	if !ok {
		return "", false
	}
	if translator != nil {
		if s, tErr := translator.T(m.key); tErr == nil {
			return s, true
		}
	}
	return m.id, true
}

// IsAuthError reports whether err is an auth failure with a user facing message.
func IsAuthError(err error) bool {
	_, ok := messages[errors.Cause(err)]
	return ok
}
