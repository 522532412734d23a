package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/jun/notabl/backend/internal/adapter"
	"github.com/jun/notabl/backend/internal/adapter/memory"
	"github.com/jun/notabl/backend/internal/auth"
	"github.com/jun/notabl/backend/internal/config"
	"github.com/jun/notabl/backend/internal/crypto"
	"github.com/jun/notabl/backend/internal/model"
	"github.com/jun/notabl/backend/internal/ws"
)

const (
	testSecret   = "test-secret"
	originSecret = "origin-secret"
	testFrontend = "http://localhost:3000"
)

func newTestApp(t *testing.T, devMode bool) *App {
	t.Helper()
	authService := auth.NewAuthService(&oauth2.Config{ClientID: "id"}, nil, "UserTokens", crypto.NewMockEncryptor())
	app := New(Deps{
		Config: config.Config{
			DevMode:          devMode,
			FrontendURL:      testFrontend,
			InlineProcessing: true,
		},
		Storage:          memory.NewProvider(nil, ""),
		AuthService:      authService,
		JWTSecret:        testSecret,
		APIGatewaySecret: originSecret,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, app.Shutdown(ctx))
	})
	return app
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.IssueSessionToken(testSecret, auth.Identity{UserID: userID}, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func call(t *testing.T, app *App, method, path, body string) events.APIGatewayProxyResponse {
	t.Helper()
	resp, err := app.HandleRequest(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Body:       body,
		Headers: map[string]string{
			"Authorization": bearer(t, "user-1"),
			"Content-Type":  "application/json",
		},
	})
	require.NoError(t, err)
	return resp
}

func TestHandleRequest_Preflight(t *testing.T) {
	app := newTestApp(t, false)

	resp, err := app.HandleRequest(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodOptions, Path: "/api/notes"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, testFrontend, resp.Headers["Access-Control-Allow-Origin"])
	assert.Equal(t, "true", resp.Headers["Access-Control-Allow-Credentials"])
	assert.Contains(t, resp.Headers["Access-Control-Allow-Headers"], "If-Match")
}

func TestHandleRequest_OriginVerify(t *testing.T) {
	app := newTestApp(t, false)
	req := events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodGet,
		Path:       "/api/folders",
		Headers:    map[string]string{"Authorization": bearer(t, "user-1")},
	}

	resp, err := app.HandleRequest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req.Headers["x-origin-verify"] = originSecret
	resp, err = app.HandleRequest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleRequest_NotFound(t *testing.T) {
	app := newTestApp(t, true)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/unknown"},
		{http.MethodPut, "/notes"},
		{http.MethodGet, "/notes/a/b/c"},
		{http.MethodGet, "/sync/check"},
		{http.MethodPost, "/folders/x"},
	} {
		resp := call(t, app, tc.method, tc.path, "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "%s %s", tc.method, tc.path)
		assert.Equal(t, testFrontend, resp.Headers["Access-Control-Allow-Origin"])
	}
}

func TestHandleRequest_NoteRoutes(t *testing.T) {
	app := newTestApp(t, true)

	resp := call(t, app, http.MethodPost, "/api/folders", `{"name":"Work"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Body)
	var folder model.Folder
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &folder))

	resp = call(t, app, http.MethodPost, "/api/notes", `{"title":"Plan","content":"# Plan","folderId":"`+folder.ID+`"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Body)
	var note model.Note
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &note))

	routes := []struct {
		method, path, body string
		status             int
	}{
		{http.MethodGet, "/notes?folderId=" + folder.ID, "", http.StatusOK},
		{http.MethodGet, "/notes/" + note.ID, "", http.StatusOK},
		{http.MethodPatch, "/notes/" + note.ID, `{"starred":true}`, http.StatusOK},
		{http.MethodGet, "/starred", "", http.StatusOK},
		{http.MethodGet, "/notes/" + note.ID + "/html", "", http.StatusOK},
		{http.MethodGet, "/notes/" + note.ID + "/download", "", http.StatusOK},
		{http.MethodPost, "/notes/" + note.ID + "/export", "", http.StatusNotImplemented},
		{http.MethodPost, "/notes/" + note.ID + "/copy", "", http.StatusCreated},
		{http.MethodPut, "/notes/" + note.ID, `{"content":"updated"}`, http.StatusOK},
		{http.MethodPost, "/sync/check", `{"noteId":"` + note.ID + `","etag":"old"}`, http.StatusOK},
		{http.MethodPost, "/sync/push", `{"changes":[]}`, http.StatusOK},
		{http.MethodPost, "/notes/import", `{"markdown":"# Imported"}`, http.StatusCreated},
		{http.MethodPatch, "/folders/" + folder.ID, `{"name":"Job"}`, http.StatusOK},
		{http.MethodDelete, "/folders/" + folder.ID, "", http.StatusNoContent},
		{http.MethodPost, "/notes/" + note.ID + "/delete", "", http.StatusNoContent},
		{http.MethodDelete, "/notes/" + note.ID, "", http.StatusNotFound},
		{http.MethodGet, "/auth/user", "", http.StatusOK},
	}
	for _, r := range routes {
		path := r.path
		query := map[string]string{}
		if p, q, ok := strings.Cut(path, "?"); ok {
			k, v, _ := strings.Cut(q, "=")
			path, query[k] = p, v
		}
		resp, err := app.HandleRequest(context.Background(), events.APIGatewayProxyRequest{
			HTTPMethod:            r.method,
			Path:                  "/api" + path,
			Body:                  r.body,
			QueryStringParameters: query,
			Headers: map[string]string{
				"Authorization": bearer(t, "user-1"),
				"Content-Type":  "application/json",
			},
		})
		require.NoError(t, err)
		assert.Equal(t, r.status, resp.StatusCode, "%s %s: %s", r.method, r.path, resp.Body)
	}

	resp = call(t, app, http.MethodGet, "/search", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleRequest_ProcessingRoutes(t *testing.T) {
	app := newTestApp(t, true)

	resp := call(t, app, http.MethodPost, "/processing", `{"sourceType":"pdf"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
	var job model.Job
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &job))
	assert.Equal(t, model.StatusCompleted, job.Status)
	assert.NotEmpty(t, job.NoteID)

	resp = call(t, app, http.MethodGet, "/processing/"+job.ID, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = call(t, app, http.MethodGet, "/processing", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = call(t, app, http.MethodDelete, "/processing/"+job.ID, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// No transcript API configured.
	resp = call(t, app, http.MethodPost, "/transcript", `{"url":"https://youtu.be/dQw4w9WgXcQ"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"API configuration error"}`, resp.Body)
}

func TestServeHTTP_DemoSession(t *testing.T) {
	app := newTestApp(t, true)
	srv := httptest.NewServer(app)
	defer srv.Close()

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(srv.URL + "/api/auth/demo-login")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == auth.SessionCookie {
			session = c
		}
	}
	require.NotNil(t, session, "expected session cookie")

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/notes", nil)
	require.NoError(t, err)
	req.AddCookie(session)
	resp, err = client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var notes []model.Note
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&notes))
	require.Len(t, notes, 1)
	assert.Equal(t, "Welcome to Notabl!", notes[0].Title)
	assert.Equal(t, testFrontend, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServeHTTP_WebsocketDisabledWithoutHub(t *testing.T) {
	app := newTestApp(t, true)
	app.hub = nil
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeHTTP_WebsocketChecksOrigin(t *testing.T) {
	app := newTestApp(t, false)
	app.hub = ws.NewHub()
	go app.hub.Run()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
	req.Header.Set("Authorization", bearer(t, "user-1"))
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Past the origin check the session is verified before upgrading.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/ws", nil)
	req.Header.Set("X-Origin-Verify", originSecret)
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHybridProvider_RoutesDemoUsers(t *testing.T) {
	primary := memory.NewProvider(nil, "")
	demo := memory.NewProvider(nil, "")
	h := &HybridProvider{primary: primary, demo: demo}
	ctx := context.Background()

	demoUser := model.DemoUserPrefix + "1"
	storage, err := h.GetAdapter(ctx, demoUser)
	require.NoError(t, err)
	_, err = storage.CreateNote(ctx, adapter.NoteInput{Title: "demo note"})
	require.NoError(t, err)

	fromDemo, err := demo.GetAdapter(ctx, demoUser)
	require.NoError(t, err)
	count, err := fromDemo.CountNotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	fromPrimary, err := primary.GetAdapter(ctx, demoUser)
	require.NoError(t, err)
	count, err = fromPrimary.CountNotes(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
