package auth

import (
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_tokenIssuer(t *testing.T) {
	ti := tokenIssuer{key: []byte("secret"), issuer: "Pesantren", accessDelta: time.Hour, refreshDelta: 24 * time.Hour}
	identity := Identity{ID: "u1", Email: "u1@pesantren.test"}

	sess := ti.newSession(identity, "", time.Time{})
	assert.NotEmpty(t, sess.ID)
	tokens, err := ti.issue(sess)
	require.NoError(t, err)

	claims, err := ti.parse(tokens.AccessToken, KindAccess)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, claims.SessionID)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "Pesantren", claims.Issuer)
	assert.Equal(t, sess.RefreshExpiresAt.Unix(), claims.Session(ti.refreshDelta).RefreshExpiresAt.Unix())

	_, err = ti.parse(tokens.AccessToken, KindRefresh)
	assert.Equal(t, ErrInvalidToken, err)
	_, err = ti.parse(tokens.RefreshToken, KindRefresh)
	assert.NoError(t, err)

	other := ti
	other.key = []byte("other")
	_, err = other.parse(tokens.AccessToken, KindAccess)
	assert.Equal(t, ErrInvalidToken, err)

	// refreshing keeps the session
	again := ti.newSession(identity, sess.ID, sess.IssuedAt)
	assert.Equal(t, sess.ID, again.ID)
	assert.Equal(t, sess.RefreshExpiresAt, again.RefreshExpiresAt)
}

func Test_tokenIssuer_parseExpired(t *testing.T) {
	ti := tokenIssuer{key: []byte("secret"), accessDelta: time.Minute, refreshDelta: time.Hour}
	sess := ti.newSession(Identity{ID: "u1"}, "s1", time.Now().Add(-2*time.Hour))
	sess.ExpiresAt = time.Now().Add(-time.Minute)
	tokens, err := ti.issue(sess)
	require.NoError(t, err)

	claims, err := ti.parse(tokens.RefreshToken, KindRefresh)
	assert.Equal(t, ErrTokenExpired, err)
	require.NotNil(t, claims)
	assert.Equal(t, "s1", claims.SessionID)

	_, err = ti.parse(tokens.AccessToken, KindAccess)
	assert.Equal(t, ErrTokenExpired, err)
}

func Test_tokenIssuer_parseRejectsOtherAlgorithms(t *testing.T) {
	ti := tokenIssuer{key: []byte("secret")}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{SessionID: "s1", Kind: KindAccess, StandardClaims: jwt.StandardClaims{Subject: "u1"}})
	ss, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ti.parse(ss, KindAccess)
	assert.Equal(t, ErrInvalidToken, err)
}
