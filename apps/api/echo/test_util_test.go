package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/pesantren/core"
	"github.com/trezcool/pesantren/core/audit"
	"github.com/trezcool/pesantren/core/auth"
	"github.com/trezcool/pesantren/core/guard"
	"github.com/trezcool/pesantren/core/metrics"
	"github.com/trezcool/pesantren/core/profile"
	"github.com/trezcool/pesantren/core/session"
	inmemdb "github.com/trezcool/pesantren/storage/database/inmem"
)

const testPassword = "Bismillah#2024"

type testApp struct {
	srv     *Server
	conf    *core.Config
	db      *inmemdb.DB
	authSvc auth.Service
	clock   *session.ManualClock
}

func setup(t *testing.T) testApp {
	t.Helper()
	conf := core.DefaultConfig()
	conf.Debug = false
	conf.TestMode = true

	validate, translator := core.NewValidator("id")
	profile.InitValidators(validate, translator)
	auth.InitValidators(validate, translator)
	require.NoError(t, auth.RegisterTranslations(translator))

	db := inmemdb.NewDB()
	auditLog := audit.NewLogger(inmemdb.NewActivityWriter(db), nil)
	profileSvc := profile.NewService(
		inmemdb.NewProfileRepository(db), inmemdb.NewScopeResolver(db), nil, auditLog, nil, conf,
	)
	authSvc := auth.NewService(
		inmemdb.NewIdentityRepository(db), profileSvc, auth.NewMemoryRevoker(), nil, auditLog, nil, conf,
	)

	clock := session.NewManualClock(time.Now())
	sessions := session.NewManager(session.NewStore(), authSvc, profileSvc, clock, conf.Session, nil)
	t.Cleanup(sessions.Close)

	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg))

	srv := NewServer(ServerDeps{
		Conf:       conf,
		AuthSvc:    authSvc,
		ProfileSvc: profileSvc,
		Sessions:   sessions,
		Guard:      guard.New(conf.Session, clock),
		Validate:   validate,
		Translator: translator,
		Gatherer:   reg,
	})
	return testApp{srv: srv, conf: conf, db: db, authSvc: authSvc, clock: clock}
}

// createUser registers an account and signs it in, returning its identity id and access token.
func (app testApp) createUser(t *testing.T, name, username, email string, roles ...string) (string, auth.TokenPair) {
	t.Helper()
	ctx := context.Background()
	identity, err := app.authSvc.Register(ctx, auth.NewAccount{
		Name:     name,
		Username: username,
		Email:    email,
		Password: testPassword,
	}, roles...)
	require.NoError(t, err)

	_, tokens, err := app.authSvc.SignIn(ctx, auth.Credentials{Login: email, Password: testPassword})
	require.NoError(t, err)
	return identity.ID, tokens
}

func (app testApp) do(req *http.Request, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	app.srv.ServeHTTP(rec, req)
	return rec
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app testApp, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, app.do(req, rec))
		})
	}
}
