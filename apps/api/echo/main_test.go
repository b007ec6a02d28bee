package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/maktaba/apps/api/echo"
	"github.com/trezcool/maktaba/core/ai"
	"github.com/trezcool/maktaba/core/session"
	"github.com/trezcool/maktaba/core/user"
	"github.com/trezcool/maktaba/tests"
)

const strongPwd = "Sup3r-Secr3t!"

var (
	errMissingToken  = httpErr{Error: "missing or malformed jwt"}
	errLoginRequired = httpErr{Error: "login required"}
	errForbidden     = httpErr{Error: "permission denied"}
	errNotFound      = httpErr{Error: "not found"}
)

type testApp struct {
	*testutil.Env
	srv *Server
}

func setup(t *testing.T, model ...ai.Model) testApp {
	t.Helper()
	var m ai.Model
	if len(model) > 0 {
		m = model[0]
	}
	env := testutil.NewEnv(t, m)
	srv := NewServer(Deps{
		Conf:           env.Conf,
		Validate:       env.Validate,
		Translator:     env.Translator,
		Bus:            env.Bus,
		Sessions:       env.Sessions,
		Users:          env.Users,
		Library:        env.Library,
		Feed:           env.Feed,
		Chat:           env.Chat,
		Remarks:        env.Remarks,
		Assistant:      env.Assistant,
		Tutor:          env.Tutor,
		Uploads:        env.Uploads,
		DisableReqLogs: true,
	})
	t.Cleanup(func() { _ = srv.Close() })
	return testApp{Env: env, srv: srv}
}

// serve runs a request through the app.
func (app testApp) serve(req *http.Request, rec *httptest.ResponseRecorder) {
	app.srv.ServeHTTP(rec, req)
}

type httpErr struct {
	Error string `json:"error"`
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

// getToken logs usr in: it begins a session and returns a token bound to it.
func getToken(t *testing.T, app testApp, usr user.User) string {
	t.Helper()
	ident := app.Sessions.Begin(session.Principal{
		UserID:  usr.ID,
		Name:    usr.Name,
		Email:   usr.Email,
		IsAdmin: usr.IsAdmin(),
	})
	token, err := GenerateToken(app.Conf, GetUserClaims(app.Conf, usr, ident.ID))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHttpTests(t *testing.T, app testApp, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			if tt.wantCode == 0 {
				tt.wantCode = http.StatusOK
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			app.serve(req, rec)
			checkCodeAndData(t, tt, rec)
		})
	}
}
