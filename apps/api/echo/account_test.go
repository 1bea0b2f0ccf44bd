package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/pesantren/core/rbac"
)

func Test_authApi_login(t *testing.T) {
	app := setup(t)
	app.createUser(t, "Ustadz Ahmad", "ahmad", "ahmad@pesantren.id", "guru", "musyrif")

	runHTTPTests(t, app, []httpTest{
		{
			name:     "empty",
			method:   http.MethodPost,
			path:     "/v1/auth/login",
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"login":"kolom ini wajib diisi","password":"kolom ini wajib diisi"}`),
		},
		{
			name:     "wrong password",
			method:   http.MethodPost,
			path:     "/v1/auth/login",
			body:     []byte(`{"login":"ahmad@pesantren.id","password":"salah"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error":"Email/username atau kata sandi salah"}`),
		},
		{
			name:     "unknown username",
			method:   http.MethodPost,
			path:     "/v1/auth/login",
			body:     []byte(`{"login":"budi","password":"salah"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error":"Email/username atau kata sandi salah"}`),
		},
	})

	t.Run("by username, to the dashboard", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/auth/login", marshallObj(t, map[string]string{
			"login": " Ahmad ", "password": testPassword,
		}))
		app.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res LoginResponse
		decode(t, rec, &res)
		assert.NotEmpty(t, res.Tokens.AccessToken)
		assert.NotEmpty(t, res.Tokens.RefreshToken)
		assert.Equal(t, "/guru", res.Redirect)
		require.NotNil(t, res.Session.Profile)
		assert.Equal(t, []rbac.Role{rbac.Guru, rbac.Musyrif}, res.Session.Profile.Roles)
		assert.Equal(t, rbac.Guru, res.Session.Profile.ActiveRole)
	})

	t.Run("back to the requested page", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/auth/login?next=%2Fguru%2Fnilai", marshallObj(t, map[string]string{
			"login": "ahmad@pesantren.id", "password": testPassword,
		}))
		app.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res LoginResponse
		decode(t, rec, &res)
		assert.Equal(t, "/guru/nilai", res.Redirect)
	})

	t.Run("foreign next is ignored", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/auth/login?next=%2F%2Fevil.example", marshallObj(t, map[string]string{
			"login": "ahmad@pesantren.id", "password": testPassword,
		}))
		app.do(req, rec)
		var res LoginResponse
		decode(t, rec, &res)
		assert.Equal(t, "/guru", res.Redirect)
	})
}

func Test_authApi_signup(t *testing.T) {
	app := setup(t)
	app.createUser(t, "Ustadz Ahmad", "ahmad", "ahmad@pesantren.id")

	t.Run("weak password", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/auth/signup", marshallObj(t, map[string]string{
			"name": "Budi", "email": "budi@pesantren.id", "password": "12345678", "password_confirm": "12345678",
		}))
		app.do(req, rec)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var fields map[string]string
		decode(t, rec, &fields)
		assert.Contains(t, fields, "password")
	})

	t.Run("email taken", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/auth/signup", marshallObj(t, map[string]string{
			"name": "Ahmad", "email": "ahmad@pesantren.id", "password": testPassword, "password_confirm": testPassword,
		}))
		app.do(req, rec)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var fields map[string]string
		decode(t, rec, &fields)
		assert.Contains(t, fields, "email")
	})

	t.Run("guest until roles are assigned", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/auth/signup", marshallObj(t, map[string]string{
			"name": "Budi", "username": "budi", "email": "budi@pesantren.id", "password": testPassword, "password_confirm": testPassword,
		}))
		app.do(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var res LoginResponse
		decode(t, rec, &res)
		require.NotNil(t, res.Session.Profile)
		assert.Equal(t, rbac.Guest, res.Session.Profile.ActiveRole)
		assert.Empty(t, res.Session.Profile.Roles)
		assert.Equal(t, "/", res.Redirect)
	})
}

func Test_authApi_refresh(t *testing.T) {
	app := setup(t)
	_, tokens := app.createUser(t, "Ustadz Ahmad", "ahmad", "ahmad@pesantren.id", "guru")

	runHTTPTests(t, app, []httpTest{
		{
			name:     "garbage",
			method:   http.MethodPost,
			path:     "/v1/auth/refresh",
			body:     []byte(`{"refresh_token":"not.a.token"}`),
			wantCode: http.StatusUnauthorized,
			wantData: []byte(`{"error":"Sesi Anda tidak dapat diperpanjang, silakan masuk kembali"}`),
		},
		{
			name:     "access token is not a refresh token",
			method:   http.MethodPost,
			path:     "/v1/auth/refresh",
			body:     marshallObj(t, map[string]string{"refresh_token": tokens.AccessToken}),
			wantCode: http.StatusUnauthorized,
		},
	})

	t.Run("ok", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/auth/refresh", marshallObj(t, map[string]string{
			"refresh_token": tokens.RefreshToken,
		}))
		app.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res LoginResponse
		decode(t, rec, &res)
		assert.NotEmpty(t, res.Tokens.AccessToken)
		assert.True(t, res.Session.Authenticated())
	})
}

func Test_authApi_logout(t *testing.T) {
	app := setup(t)
	_, tokens := app.createUser(t, "Ustadz Ahmad", "ahmad", "ahmad@pesantren.id", "guru")

	runHTTPTests(t, app, []httpTest{
		{
			name:     "no token",
			method:   http.MethodPost,
			path:     "/v1/auth/logout",
			wantCode: http.StatusUnauthorized,
			wantData: []byte(`{"error":"missing or malformed jwt"}`),
		},
		{
			name:     "ok",
			method:   http.MethodPost,
			path:     "/v1/auth/logout",
			token:    tokens.AccessToken,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "signed out",
			method:   http.MethodGet,
			path:     "/v1/me",
			token:    tokens.AccessToken,
			wantCode: http.StatusUnauthorized,
			wantData: []byte(`{"error":"Anda telah keluar, silakan masuk kembali"}`),
		},
		{
			name:     "refresh after sign out",
			method:   http.MethodPost,
			path:     "/v1/auth/refresh",
			body:     marshallObj(t, map[string]string{"refresh_token": tokens.RefreshToken}),
			wantCode: http.StatusUnauthorized,
		},
	})
}

func Test_authApi_changePassword(t *testing.T) {
	app := setup(t)
	_, tokens := app.createUser(t, "Ustadz Ahmad", "ahmad", "ahmad@pesantren.id", "guru")

	runHTTPTests(t, app, []httpTest{
		{
			name:     "wrong current password",
			method:   http.MethodPut,
			path:     "/v1/auth/password",
			body:     []byte(`{"current_password":"salah","password":"Tahfidz!Quran30","password_confirm":"Tahfidz!Quran30"}`),
			token:    tokens.AccessToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error":"Kata sandi saat ini salah"}`),
		},
		{
			name:     "ok",
			method:   http.MethodPut,
			path:     "/v1/auth/password",
			body:     marshallObj(t, map[string]string{"current_password": testPassword, "password": "Tahfidz!Quran30", "password_confirm": "Tahfidz!Quran30"}),
			token:    tokens.AccessToken,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "old password no longer works",
			method:   http.MethodPost,
			path:     "/v1/auth/login",
			body:     marshallObj(t, map[string]string{"login": "ahmad", "password": testPassword}),
			wantCode: http.StatusBadRequest,
		},
	})
}

func Test_authApi_passwordReset(t *testing.T) {
	app := setup(t)
	app.createUser(t, "Ustadzah Aisyah", "aisyah", "aisyah@pesantren.id", "guru")

	runHTTPTests(t, app, []httpTest{
		{
			name:     "request: invalid email",
			method:   http.MethodPost,
			path:     "/v1/auth/password-reset",
			body:     []byte(`{"email":"aisyah"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "request: unknown email",
			method:   http.MethodPost,
			path:     "/v1/auth/password-reset",
			body:     []byte(`{"email":"ghost@pesantren.id"}`),
			wantCode: http.StatusAccepted,
		},
		{
			name:     "request: ok",
			method:   http.MethodPost,
			path:     "/v1/auth/password-reset",
			body:     []byte(`{"email":" Aisyah@pesantren.id "}`),
			wantCode: http.StatusAccepted,
		},
		{
			name:     "confirm: empty",
			method:   http.MethodPost,
			path:     "/v1/auth/password-reset-confirm",
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "confirm: weak password",
			method:   http.MethodPost,
			path:     "/v1/auth/password-reset-confirm",
			body:     []byte(`{"uid":"dTE","token":"x-y","password":"12345678","password_confirm":"12345678"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "confirm: invalid link",
			method:   http.MethodPost,
			path:     "/v1/auth/password-reset-confirm",
			body:     []byte(`{"uid":"dTE","token":"x-y","password":"Tahfidz!Quran30","password_confirm":"Tahfidz!Quran30"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error":"Tautan atur ulang kata sandi tidak valid atau kedaluwarsa"}`),
		},
	})
}
