package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jun/notabl/backend/internal/adapter/googledrive"
	"github.com/jun/notabl/backend/internal/adapter/memory"
	"github.com/jun/notabl/backend/internal/auth"
	"github.com/jun/notabl/backend/internal/handler"
	"github.com/jun/notabl/backend/internal/model"
)

const (
	testUserID    = "test-user-123"
	testJWTSecret = "test-secret"
)

func makeToken(userID string) string {
	signed, _ := auth.IssueSessionToken(testJWTSecret, auth.Identity{UserID: userID}, time.Hour)
	return signed
}

func makeRequest(method, path, body string) events.APIGatewayProxyRequest {
	return makeUserRequest(testUserID, method, path, body)
}

func makeUserRequest(userID, method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Body:       body,
		Headers: map[string]string{
			"Authorization": "Bearer " + makeToken(userID),
			"Content-Type":  "application/json",
		},
		PathParameters:        map[string]string{},
		QueryStringParameters: map[string]string{},
	}
}

func withID(req events.APIGatewayProxyRequest, id string) events.APIGatewayProxyRequest {
	req.PathParameters["id"] = id
	return req
}

func decode[T any](t *testing.T, resp events.APIGatewayProxyResponse) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(resp.Body), &v); err != nil {
		t.Fatalf("Failed to unmarshal %q: %v", resp.Body, err)
	}
	return v
}

func expectStatus(t *testing.T, resp events.APIGatewayProxyResponse, err error, status int) {
	t.Helper()
	if err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}
	if resp.StatusCode != status {
		t.Fatalf("Expected %d, got %d: %s", status, resp.StatusCode, resp.Body)
	}
}

func newNoteHandler(exporter handler.Exporter) *handler.NoteHandler {
	return handler.NewNoteHandler(memory.NewProvider(nil, ""), testJWTSecret, nil, exporter)
}

func createNote(t *testing.T, h *handler.NoteHandler, body string) model.Note {
	t.Helper()
	resp, err := h.CreateNote(context.Background(), makeRequest("POST", "/notes", body))
	expectStatus(t, resp, err, http.StatusCreated)
	return decode[model.Note](t, resp)
}

func TestNoteHandler_CreateAndList(t *testing.T) {
	h := newNoteHandler(nil)
	ctx := context.Background()

	created := createNote(t, h, `{"title":"Groceries","content":"- milk"}`)
	if created.ID == "" || created.ETag == "" {
		t.Fatalf("Expected ID and ETag, got %+v", created)
	}
	if created.FolderID != model.ReservedFolderID {
		t.Errorf("Expected folder %s, got %s", model.ReservedFolderID, created.FolderID)
	}
	if created.SourceType != model.SourceText {
		t.Errorf("Expected source type text, got %s", created.SourceType)
	}

	resp, err := h.ListNotes(ctx, makeRequest("GET", "/notes", ""))
	expectStatus(t, resp, err, http.StatusOK)
	notes := decode[[]model.Note](t, resp)
	if len(notes) != 1 || notes[0].ID != created.ID {
		t.Errorf("Expected the created note, got %+v", notes)
	}
}

func TestNoteHandler_CreateDefaults(t *testing.T) {
	h := newNoteHandler(nil)

	audio := createNote(t, h, `{"sourceType":"audio"}`)
	if audio.Title != "Transcript Summary" {
		t.Errorf("Expected audio default title, got %q", audio.Title)
	}
	text := createNote(t, h, `{"title":"  "}`)
	if text.Title != "New Note" {
		t.Errorf("Expected default title, got %q", text.Title)
	}
}

func TestNoteHandler_CreateValidation(t *testing.T) {
	h := newNoteHandler(nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"empty body", "", http.StatusBadRequest},
		{"malformed", "{", http.StatusBadRequest},
		{"unknown source", `{"sourceType":"video"}`, http.StatusBadRequest},
		{"title too long", `{"title":"` + strings.Repeat("a", 256) + `"}`, http.StatusBadRequest},
		{"unknown folder", `{"title":"x","folderId":"folder-missing"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := h.CreateNote(ctx, makeRequest("POST", "/notes", tt.body))
			expectStatus(t, resp, err, tt.status)
		})
	}
}

func TestNoteHandler_Unauthorized(t *testing.T) {
	h := newNoteHandler(nil)
	req := makeRequest("GET", "/notes", "")
	req.Headers = map[string]string{}

	resp, err := h.ListNotes(context.Background(), req)
	expectStatus(t, resp, err, http.StatusUnauthorized)
	if body := decode[map[string]string](t, resp); body["error"] != "Unauthorized" {
		t.Errorf("Unexpected body %v", body)
	}
}

func TestNoteHandler_GetSetsETag(t *testing.T) {
	h := newNoteHandler(nil)
	created := createNote(t, h, `{"title":"a"}`)

	resp, err := h.GetNote(context.Background(), withID(makeRequest("GET", "/notes/"+created.ID, ""), created.ID))
	expectStatus(t, resp, err, http.StatusOK)
	if got := resp.Headers["ETag"]; got != `"`+created.ETag+`"` {
		t.Errorf("Expected ETag header %q, got %q", created.ETag, got)
	}

	resp, err = h.GetNote(context.Background(), withID(makeRequest("GET", "/notes/missing", ""), "missing"))
	expectStatus(t, resp, err, http.StatusNotFound)
}

func TestNoteHandler_UpdateWithIfMatch(t *testing.T) {
	h := newNoteHandler(nil)
	ctx := context.Background()
	created := createNote(t, h, `{"title":"draft","content":"v1"}`)

	req := withID(makeRequest("PUT", "/notes/"+created.ID, `{"content":"v2"}`), created.ID)
	req.Headers["If-Match"] = `"` + created.ETag + `"`
	resp, err := h.UpdateNote(ctx, req)
	expectStatus(t, resp, err, http.StatusOK)
	updated := decode[model.Note](t, resp)
	if updated.Content != "v2" || updated.Title != "draft" {
		t.Errorf("Unexpected note after update: %+v", updated)
	}
	if updated.ETag == created.ETag {
		t.Error("Expected a new ETag after update")
	}

	// The old version is stale now.
	stale := withID(makeRequest("PUT", "/notes/"+created.ID, `{"content":"v3"}`), created.ID)
	stale.Headers["If-Match"] = created.ETag
	resp, err = h.UpdateNote(ctx, stale)
	expectStatus(t, resp, err, http.StatusPreconditionFailed)

	// Without If-Match the write is forced.
	forced := withID(makeRequest("PUT", "/notes/"+created.ID, `{"content":"v4"}`), created.ID)
	resp, err = h.UpdateNote(ctx, forced)
	expectStatus(t, resp, err, http.StatusOK)

	empty := withID(makeRequest("PUT", "/notes/"+created.ID, `{}`), created.ID)
	resp, err = h.UpdateNote(ctx, empty)
	expectStatus(t, resp, err, http.StatusBadRequest)
}

func TestNoteHandler_PatchStarred(t *testing.T) {
	h := newNoteHandler(nil)
	ctx := context.Background()
	created := createNote(t, h, `{"title":"star me"}`)
	createNote(t, h, `{"title":"leave me"}`)

	resp, err := h.PatchNote(ctx, withID(makeRequest("PATCH", "/notes/"+created.ID, `{"starred":true}`), created.ID))
	expectStatus(t, resp, err, http.StatusOK)
	if !decode[model.Note](t, resp).Starred {
		t.Error("Expected note to be starred")
	}

	resp, err = h.ListStarredNotes(ctx, makeRequest("GET", "/starred", ""))
	expectStatus(t, resp, err, http.StatusOK)
	starred := decode[[]model.Note](t, resp)
	if len(starred) != 1 || starred[0].ID != created.ID {
		t.Errorf("Expected only the starred note, got %+v", starred)
	}

	stale := withID(makeRequest("PATCH", "/notes/"+created.ID, `{"starred":false}`), created.ID)
	stale.Headers["If-Match"] = "outdated"
	resp, err = h.PatchNote(ctx, stale)
	expectStatus(t, resp, err, http.StatusPreconditionFailed)
}

func TestNoteHandler_PatchMovesNote(t *testing.T) {
	provider := memory.NewProvider(nil, "")
	h := handler.NewNoteHandler(provider, testJWTSecret, nil, nil)
	ctx := context.Background()

	storage, _ := provider.GetAdapter(ctx, testUserID)
	folder, err := storage.CreateFolder(ctx, "Work", "")
	if err != nil {
		t.Fatalf("CreateFolder failed: %v", err)
	}
	created := createNote(t, h, `{"title":"move me"}`)

	resp, err := h.PatchNote(ctx, withID(makeRequest("PATCH", "/notes/"+created.ID, `{"folderId":"`+folder.ID+`"}`), created.ID))
	expectStatus(t, resp, err, http.StatusOK)

	req := makeRequest("GET", "/notes", "")
	req.QueryStringParameters["folderId"] = folder.ID
	resp, err = h.ListNotes(ctx, req)
	expectStatus(t, resp, err, http.StatusOK)
	if notes := decode[[]model.Note](t, resp); len(notes) != 1 {
		t.Errorf("Expected 1 note in folder, got %d", len(notes))
	}

	req.QueryStringParameters["folderId"] = "folder-missing"
	resp, err = h.ListNotes(ctx, req)
	expectStatus(t, resp, err, http.StatusNotFound)
}

func TestNoteHandler_DeleteAndDuplicate(t *testing.T) {
	h := newNoteHandler(nil)
	ctx := context.Background()
	created := createNote(t, h, `{"title":"Original","content":"body"}`)

	resp, err := h.DuplicateNote(ctx, withID(makeRequest("POST", "/notes/"+created.ID+"/copy", ""), created.ID))
	expectStatus(t, resp, err, http.StatusCreated)
	dup := decode[model.Note](t, resp)
	if dup.ID == created.ID || dup.Title != "Original (copy)" || dup.Content != "body" {
		t.Errorf("Unexpected duplicate: %+v", dup)
	}

	resp, err = h.DeleteNote(ctx, withID(makeRequest("DELETE", "/notes/"+created.ID, ""), created.ID))
	expectStatus(t, resp, err, http.StatusNoContent)

	resp, err = h.GetNote(ctx, withID(makeRequest("GET", "/notes/"+created.ID, ""), created.ID))
	expectStatus(t, resp, err, http.StatusNotFound)

	resp, err = h.DeleteNote(ctx, withID(makeRequest("DELETE", "/notes/"+created.ID, ""), created.ID))
	expectStatus(t, resp, err, http.StatusNotFound)
}

func TestNoteHandler_IsolatesUsers(t *testing.T) {
	h := newNoteHandler(nil)
	created := createNote(t, h, `{"title":"private"}`)

	req := withID(makeUserRequest("someone-else", "GET", "/notes/"+created.ID, ""), created.ID)
	resp, err := h.GetNote(context.Background(), req)
	expectStatus(t, resp, err, http.StatusNotFound)
}

func TestNoteHandler_RenderNote(t *testing.T) {
	h := newNoteHandler(nil)
	created := createNote(t, h, `{"title":"Rendered","content":"# Hello\n\n<script>alert(1)</script>\n\n- [x] done"}`)

	resp, err := h.RenderNote(context.Background(), withID(makeRequest("GET", "/notes/"+created.ID+"/html", ""), created.ID))
	expectStatus(t, resp, err, http.StatusOK)
	if !strings.HasPrefix(resp.Headers["Content-Type"], "text/html") {
		t.Errorf("Unexpected content type %q", resp.Headers["Content-Type"])
	}
	if !strings.Contains(resp.Body, "Hello</h1>") {
		t.Errorf("Expected rendered heading, got %s", resp.Body)
	}
	if strings.Contains(resp.Body, "<script>alert(1)</script>") {
		t.Error("Raw HTML must not be rendered")
	}
}

func TestNoteHandler_DownloadAndImport(t *testing.T) {
	h := newNoteHandler(nil)
	ctx := context.Background()
	created := createNote(t, h, `{"title":"Meeting notes","content":"## Agenda\n\n1. Budget","summary":"Weekly sync"}`)

	resp, err := h.DownloadNote(ctx, withID(makeRequest("GET", "/notes/"+created.ID+"/download", ""), created.ID))
	expectStatus(t, resp, err, http.StatusOK)
	if got := resp.Headers["Content-Disposition"]; got != `attachment; filename="Meeting notes.md"` {
		t.Errorf("Unexpected Content-Disposition %q", got)
	}
	if !strings.HasPrefix(resp.Body, "---\n") || !strings.Contains(resp.Body, "title: Meeting notes") {
		t.Errorf("Expected front matter, got %s", resp.Body)
	}

	importReq := makeRequest("POST", "/notes/import", resp.Body)
	importReq.Headers["Content-Type"] = "text/markdown"
	resp, err = h.ImportNote(ctx, importReq)
	expectStatus(t, resp, err, http.StatusCreated)
	imported := decode[model.Note](t, resp)
	if imported.ID == created.ID {
		t.Error("Import must create a new note")
	}
	if imported.Title != "Meeting notes" || imported.Summary != "Weekly sync" || imported.Content != "## Agenda\n\n1. Budget" {
		t.Errorf("Unexpected imported note: %+v", imported)
	}
}

func TestNoteHandler_ImportJSON(t *testing.T) {
	h := newNoteHandler(nil)
	ctx := context.Background()

	resp, err := h.ImportNote(ctx, makeRequest("POST", "/notes/import", `{"markdown":"# From heading\n\ntext"}`))
	expectStatus(t, resp, err, http.StatusCreated)
	if got := decode[model.Note](t, resp).Title; got != "From heading" {
		t.Errorf("Expected title from heading, got %q", got)
	}

	resp, err = h.ImportNote(ctx, makeRequest("POST", "/notes/import", `{"markdown":"  "}`))
	expectStatus(t, resp, err, http.StatusBadRequest)

	bad := makeRequest("POST", "/notes/import", "---\ntitle: [unclosed\n---\nbody")
	bad.Headers["Content-Type"] = "text/markdown"
	resp, err = h.ImportNote(ctx, bad)
	expectStatus(t, resp, err, http.StatusBadRequest)
}

type fakeExporter struct {
	err   error
	notes []model.Note
}

func (f *fakeExporter) Export(_ context.Context, _ string, n model.Note) (*googledrive.ExportResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.notes = append(f.notes, n)
	return &googledrive.ExportResult{FileID: "file-1", Name: n.Title + ".md", Created: true}, nil
}

func TestNoteHandler_ExportNote(t *testing.T) {
	ctx := context.Background()

	t.Run("exported", func(t *testing.T) {
		exporter := &fakeExporter{}
		h := newNoteHandler(exporter)
		created := createNote(t, h, `{"title":"Export me"}`)

		resp, err := h.ExportNote(ctx, withID(makeRequest("POST", "/notes/"+created.ID+"/export", ""), created.ID))
		expectStatus(t, resp, err, http.StatusOK)
		result := decode[googledrive.ExportResult](t, resp)
		if result.FileID != "file-1" || !result.Created {
			t.Errorf("Unexpected result %+v", result)
		}
		if len(exporter.notes) != 1 || exporter.notes[0].ID != created.ID {
			t.Errorf("Expected the note to be exported, got %+v", exporter.notes)
		}
	})

	t.Run("not linked", func(t *testing.T) {
		h := newNoteHandler(&fakeExporter{err: googledrive.ErrNotLinked})
		created := createNote(t, h, `{"title":"x"}`)
		resp, err := h.ExportNote(ctx, withID(makeRequest("POST", "/notes/"+created.ID+"/export", ""), created.ID))
		expectStatus(t, resp, err, http.StatusConflict)
	})

	t.Run("drive failure", func(t *testing.T) {
		h := newNoteHandler(&fakeExporter{err: errors.New("quota exceeded")})
		created := createNote(t, h, `{"title":"x"}`)
		resp, err := h.ExportNote(ctx, withID(makeRequest("POST", "/notes/"+created.ID+"/export", ""), created.ID))
		expectStatus(t, resp, err, http.StatusBadGateway)
	})

	t.Run("demo user", func(t *testing.T) {
		h := newNoteHandler(&fakeExporter{})
		req := withID(makeUserRequest(model.DemoUserPrefix+"1", "POST", "/notes/n/export", ""), "n")
		resp, err := h.ExportNote(ctx, req)
		expectStatus(t, resp, err, http.StatusNotImplemented)
	})

	t.Run("disabled", func(t *testing.T) {
		h := newNoteHandler(nil)
		resp, err := h.ExportNote(ctx, withID(makeRequest("POST", "/notes/n/export", ""), "n"))
		expectStatus(t, resp, err, http.StatusNotImplemented)
	})
}
