package auth

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/pesantren/core"
)

// Identity is an account of the authentication provider.
type Identity struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash []byte     `db:"password_hash" json:"-"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"` // UTC
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"` // UTC
	LastLogin    *time.Time `db:"last_login" json:"last_login"` // UTC
}

func (i *Identity) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	i.PasswordHash = hash
	return nil
}

func (i *Identity) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(i.PasswordHash, []byte(pwd))
}

// Session is an authenticated session. Its ID is shared by the access and refresh tokens issued for it.
type Session struct {
	ID               string    `json:"id"`
	IdentityID       string    `json:"identity_id"`
	Email            string    `json:"email"`
	IssuedAt         time.Time `json:"issued_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Credentials: Login is an email or a username.
type Credentials struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (c *Credentials) Validate(validate *validator.Validate) error {
	c.Login = core.CleanString(c.Login, true /* lower */)
	return validate.Struct(c)
}

// NewAccount contains information needed to sign up.
type NewAccount struct {
	Name            string `json:"name" validate:"required,max=120"`
	Username        string `json:"username" validate:"omitempty,min=3,max=32,alphanum_"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (na *NewAccount) Validate(validate *validator.Validate) error {
	na.Name = core.CleanString(na.Name)
	na.Username = core.CleanString(na.Username, true /* lower */)
	na.Email = core.CleanString(na.Email, true /* lower */)
	return validate.Struct(na)
}

type PasswordChange struct {
	Current         string `json:"current_password" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`

	// user attributes the password must not resemble
	name, username, email string
}

// Validate applies the password policy, the new password must not resemble the given user attributes.
func (pc *PasswordChange) Validate(validate *validator.Validate, name, username, email string) error {
	pc.name, pc.username, pc.email = name, username, email
	return validate.Struct(pc)
}
