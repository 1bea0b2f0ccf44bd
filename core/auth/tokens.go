package auth

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/pesantren/core"
)

// Token kinds
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// SigningMethod is the JWT signing algorithm of every token.
var SigningMethod = jwt.SigningMethodHS256

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	SessionID    string `json:"sid"`
	Kind         string `json:"kind"`
	Email        string `json:"email,omitempty"`
	OrigIssuedAt int64  `json:"oriat,omitempty"`
}

// Session returns the session the claims were issued for.
func (c *Claims) Session(refreshDelta time.Duration) Session {
	orig := time.Unix(c.OrigIssuedAt, 0).UTC()
	return Session{
		ID:               c.SessionID,
		IdentityID:       c.Subject,
		Email:            c.Email,
		IssuedAt:         orig,
		ExpiresAt:        time.Unix(c.ExpiresAt, 0).UTC(),
		RefreshExpiresAt: orig.Add(refreshDelta),
	}
}

type tokenIssuer struct {
	key          []byte
	issuer       string
	accessDelta  time.Duration
	refreshDelta time.Duration
}

func newTokenIssuer(conf *core.Config) tokenIssuer {
	return tokenIssuer{
		key:          []byte(conf.SecretKey),
		issuer:       conf.AppName,
		accessDelta:  conf.Server.JWTExpirationDelta,
		refreshDelta: conf.Server.JWTRefreshExpirationDelta,
	}
}

// newSession starts a session for identity. origIat is kept across refreshes.
func (ti tokenIssuer) newSession(identity Identity, sid string, origIat time.Time) Session {
	now := NowFunc().UTC()
	if sid == "" {
		sid = uuid.NewString()
	}
	if origIat.IsZero() {
		origIat = now
	}
	return Session{
		ID:               sid,
		IdentityID:       identity.ID,
		Email:            identity.Email,
		IssuedAt:         origIat,
		ExpiresAt:        now.Add(ti.accessDelta),
		RefreshExpiresAt: origIat.Add(ti.refreshDelta),
	}
}

func (ti tokenIssuer) claims(sess Session, kind string, exp time.Time) *Claims {
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			Issuer:    ti.issuer,
			Subject:   sess.IdentityID,
			ExpiresAt: exp.Unix(),
			IssuedAt:  NowFunc().Unix(),
		},
		SessionID:    sess.ID,
		Kind:         kind,
		Email:        sess.Email,
		OrigIssuedAt: sess.IssuedAt.Unix(),
	}
}

// issue signs the access and refresh tokens of sess.
func (ti tokenIssuer) issue(sess Session) (TokenPair, error) {
	access, err := ti.sign(ti.claims(sess, KindAccess, sess.ExpiresAt))
	if err != nil {
		return TokenPair{}, errors.Wrap(err, "signing access token")
	}
	refresh, err := ti.sign(ti.claims(sess, KindRefresh, sess.RefreshExpiresAt))
	if err != nil {
		return TokenPair{}, errors.Wrap(err, "signing refresh token")
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: sess.ExpiresAt}, nil
}

func (ti tokenIssuer) sign(claims *Claims) (string, error) {
	return jwt.NewWithClaims(SigningMethod, claims).SignedString(ti.key)
}

// parse checks the signature, expiry and kind of token.
// The claims of an expired token are returned along with ErrTokenExpired.
func (ti tokenIssuer) parse(token, kind string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != SigningMethod.Alg() {
			return nil, ErrInvalidToken
		}
		return ti.key, nil
	})
	if err != nil {
		if vErr, ok := err.(*jwt.ValidationError); ok && vErr.Errors == jwt.ValidationErrorExpired {
			if claims.Kind == kind && claims.SessionID != "" {
				return claims, ErrTokenExpired
			}
		}
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind || claims.SessionID == "" || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
