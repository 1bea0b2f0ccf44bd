package auth

import (
	"testing"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/id"
	ut "github.com/go-playground/universal-translator"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	uni := ut.New(id.New(), id.New(), en.New())
	idTrans, _ := uni.GetTranslator("id")
	enTrans, _ := uni.GetTranslator("en")
	require.NoError(t, RegisterTranslations(idTrans))
	require.NoError(t, RegisterTranslations(enTrans))

	msg, ok := Translate(idTrans, errors.Wrap(ErrInvalidCredentials, "signing in"))
	assert.True(t, ok)
	assert.Equal(t, "Email/username atau kata sandi salah", msg)

	msg, ok = Translate(enTrans, ErrRefreshFailed)
	assert.True(t, ok)
	assert.Equal(t, "Your session could not be renewed, please sign in again", msg)

	msg, ok = Translate(nil, ErrTokenExpired)
	assert.True(t, ok)
	assert.Equal(t, messages[ErrTokenExpired].id, msg)

	_, ok = Translate(idTrans, errors.New("boom"))
	assert.False(t, ok)
	assert.False(t, IsAuthError(errors.New("boom")))
	assert.True(t, IsAuthError(ErrSessionRevoked))
}
