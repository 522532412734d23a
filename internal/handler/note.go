package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"github.com/jun/notabl/backend/internal/adapter"
	"github.com/jun/notabl/backend/internal/adapter/googledrive"
	"github.com/jun/notabl/backend/internal/markdown"
	"github.com/jun/notabl/backend/internal/model"
	"github.com/jun/notabl/backend/internal/notefile"
)

// Exporter copies a note to an external destination.
type Exporter interface {
	Export(ctx context.Context, userID string, n model.Note) (*googledrive.ExportResult, error)
}

// NoteHandler handles CRUD operations for notes.
type NoteHandler struct {
	storageProvider adapter.StorageProvider
	jwtSecret       string
	renderer        *markdown.Renderer
	exporter        Exporter
}

// NewNoteHandler creates a new NoteHandler. exporter may be nil, which disables export.
func NewNoteHandler(provider adapter.StorageProvider, jwtSecret string, renderer *markdown.Renderer, exporter Exporter) *NoteHandler {
	if renderer == nil {
		renderer = markdown.NewRenderer()
	}
	return &NoteHandler{storageProvider: provider, jwtSecret: jwtSecret, renderer: renderer, exporter: exporter}
}

func (h *NoteHandler) authorize(ctx context.Context, req events.APIGatewayProxyRequest) (string, adapter.StorageAdapter, *events.APIGatewayProxyResponse) {
	return authorizeStorage(ctx, req, h.storageProvider, h.jwtSecret)
}

// ifMatch returns the If-Match header without quotes or weak prefix.
func ifMatch(req events.APIGatewayProxyRequest) string {
	etag := strings.TrimSpace(getHeader(req, "If-Match"))
	if etag == "*" {
		return ""
	}
	etag = strings.TrimPrefix(etag, "W/")
	return strings.Trim(etag, `"`)
}

func noteResponse(status int, n *model.Note) events.APIGatewayProxyResponse {
	resp := jsonResponse(status, n)
	resp.Headers["ETag"] = `"` + n.ETag + `"`
	return resp
}

// ListNotes lists the notes of a folder. Without folderId every note is listed.
func (h *NoteHandler) ListNotes(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	_, storage, resp := h.authorize(ctx, req)
	if resp != nil {
		return *resp, nil
	}

	notes, err := storage.ListNotes(ctx, req.QueryStringParameters["folderId"])
	if err != nil {
		return storageError("list notes", err), nil
	}
	return jsonResponse(http.StatusOK, notes), nil
}

// CreateNote creates a new note.
func (h *NoteHandler) CreateNote(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	_, storage, resp := h.authorize(ctx, req)
	if resp != nil {
		return *resp, nil
	}

	var input adapter.NoteInput
	if err := decodeBody(req, &input); err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
	}

	note, err := storage.CreateNote(ctx, input)
	if err != nil {
		return storageError("create note", err), nil
	}
	return noteResponse(http.StatusCreated, note), nil
}

// ImportNote creates a note from a Markdown file with optional front matter.
// The body is either the raw file or JSON {"markdown": ..., "folderId": ...}.
func (h *NoteHandler) ImportNote(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	_, storage, resp := h.authorize(ctx, req)
	if resp != nil {
		return *resp, nil
	}

	raw := req.Body
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
		}
		raw = string(decoded)
	}

	folderID := req.QueryStringParameters["folderId"]
	if strings.HasPrefix(getHeader(req, "Content-Type"), "application/json") {
		var payload struct {
			Markdown string `json:"markdown"`
			FolderID string `json:"folderId"`
		}
		if err := decodeBody(events.APIGatewayProxyRequest{Body: raw}, &payload); err != nil {
			return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
		}
		raw = payload.Markdown
		if payload.FolderID != "" {
			folderID = payload.FolderID
		}
	}
	if strings.TrimSpace(raw) == "" {
		return errorResponse(http.StatusBadRequest, "File is empty"), nil
	}

	doc, err := notefile.Unmarshal([]byte(raw))
	if err != nil {
		return errorResponse(http.StatusBadRequest, err.Error()), nil
	}

	note, err := storage.CreateNote(ctx, adapter.NoteInput{
		Title:      doc.Title,
		Content:    doc.Content,
		Summary:    doc.Summary,
		FolderID:   folderID,
		SourceType: doc.SourceType,
		SourceURL:  doc.SourceURL,
	})
	if err != nil {
		return storageError("import note", err), nil
	}
	if doc.Starred {
		if starred, err := storage.SetStarred(ctx, note.ID, true); err == nil {
			note = starred
		}
	}
	return noteResponse(http.StatusCreated, note), nil
}

// GetNote retrieves a note. The ETag header carries its version.
func (h *NoteHandler) GetNote(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	_, storage, resp := h.authorize(ctx, req)
	if resp != nil {
		return *resp, nil
	}

	id := req.PathParameters["id"]
	if id == "" {
		return errorResponse(http.StatusBadRequest, "Missing note ID"), nil
	}

	note, err := storage.GetNote(ctx, id)
	if err != nil {
		return storageError("get note", err), nil
	}
	return noteResponse(http.StatusOK, note), nil
}

// UpdateNote saves a note. With If-Match the write only succeeds on the current version.
func (h *NoteHandler) UpdateNote(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	_, storage, resp := h.authorize(ctx, req)
	if resp != nil {
		return *resp, nil
	}

	id := req.PathParameters["id"]
	if id == "" {
		return errorResponse(http.StatusBadRequest, "Missing note ID"), nil
	}

	var patch adapter.NotePatch
	if err := decodeBody(req, &patch); err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
	}
	if patch.Empty() {
		return errorResponse(http.StatusBadRequest, "No valid fields to update"), nil
	}

	note, err := storage.SaveNote(ctx, id, patch, ifMatch(req))
	if err != nil {
		return storageError("update note", err), nil
	}
	return noteResponse(http.StatusOK, note), nil
}

// PatchNote handles partial updates to a note, including starring.
func (h *NoteHandler) PatchNote(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	_, storage, resp := h.authorize(ctx, req)
	if resp != nil {
		return *resp, nil
	}

	id := req.PathParameters["id"]
	if id == "" {
		return errorResponse(http.StatusBadRequest, "Missing note ID"), nil
	}

	var input struct {
		adapter.NotePatch
		Starred *bool `json:"starred"`
	}
	if err := decodeBody(req, &input); err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
	}
	if input.NotePatch.Empty() && input.Starred == nil {
		return errorResponse(http.StatusBadRequest, "No valid fields to update"), nil
	}

	var note *model.Note
	var err error
	etag := ifMatch(req)
	if !input.NotePatch.Empty() {
		if note, err = storage.SaveNote(ctx, id, input.NotePatch, etag); err != nil {
			return storageError("update note", err), nil
		}
	} else if etag != "" {
		current, err := storage.GetNote(ctx, id)
		if err != nil {
			return storageError("update note", err), nil
		}
		if current.ETag != etag {
			return storageError("update note", adapter.ErrPreconditionFailed), nil
		}
	}
	if input.Starred != nil {
		if note, err = storage.SetStarred(ctx, id, *input.Starred); err != nil {
			return storageError("update starred status", err), nil
		}
	}
	return noteResponse(http.StatusOK, note), nil
}

// DeleteNote deletes a note.
func (h *NoteHandler) DeleteNote(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	_, storage, resp := h.authorize(ctx, req)
	if resp != nil {
		return *resp, nil
	}

	id := req.PathParameters["id"]
	if id == "" {
		return errorResponse(http.StatusBadRequest, "Missing note ID"), nil
	}

	if err := storage.DeleteNote(ctx, id); err != nil {
		return storageError("delete note", err), nil
	}
	return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}, nil
}

// DuplicateNote copies a note into the same folder.
func (h *NoteHandler) DuplicateNote(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	_, storage, resp := h.authorize(ctx, req)
	if resp != nil {
		return *resp, nil
	}

	id := req.PathParameters["id"]
	if id == "" {
		return errorResponse(http.StatusBadRequest, "Missing note ID"), nil
	}

	note, err := storage.DuplicateNote(ctx, id)
	if err != nil {
		return storageError("duplicate note", err), nil
	}
	return noteResponse(http.StatusCreated, note), nil
}

// RenderNote returns the note rendered as an HTML document.
func (h *NoteHandler) RenderNote(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	_, storage, resp := h.authorize(ctx, req)
	if resp != nil {
		return *resp, nil
	}

	note, err := storage.GetNote(ctx, req.PathParameters["id"])
	if err != nil {
		return storageError("get note", err), nil
	}

	page, err := h.renderer.RenderPage(note.Title, []byte(note.Content))
	if err != nil {
		log.Error().Err(err).Str("note_id", note.ID).Msg("render failed")
		return errorResponse(http.StatusInternalServerError, "Failed to render note"), nil
	}
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Body:       string(page),
		Headers: map[string]string{
			"Content-Type": "text/html; charset=utf-8",
		},
	}, nil
}

// DownloadNote returns the note as a Markdown file with front matter.
func (h *NoteHandler) DownloadNote(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	_, storage, resp := h.authorize(ctx, req)
	if resp != nil {
		return *resp, nil
	}

	note, err := storage.GetNote(ctx, req.PathParameters["id"])
	if err != nil {
		return storageError("get note", err), nil
	}

	data, err := notefile.Marshal(*note)
	if err != nil {
		log.Error().Err(err).Str("note_id", note.ID).Msg("marshal note failed")
		return errorResponse(http.StatusInternalServerError, "Failed to export note"), nil
	}
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Body:       string(data),
		Headers: map[string]string{
			"Content-Type":        "text/markdown; charset=utf-8",
			"Content-Disposition": fmt.Sprintf("attachment; filename=%q", notefile.FileName(note.Title)),
			"ETag":                `"` + note.ETag + `"`,
		},
	}, nil
}

// ExportNote writes the note to the user's Google Drive.
func (h *NoteHandler) ExportNote(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, storage, resp := h.authorize(ctx, req)
	if resp != nil {
		return *resp, nil
	}
	if h.exporter == nil || model.IsDemoUser(userID) {
		return errorResponse(http.StatusNotImplemented, "Export is not available for this account"), nil
	}

	note, err := storage.GetNote(ctx, req.PathParameters["id"])
	if err != nil {
		return storageError("get note", err), nil
	}

	result, err := h.exporter.Export(ctx, userID, *note)
	if err != nil {
		if errors.Is(err, googledrive.ErrNotLinked) {
			return errorResponse(http.StatusConflict, "Google Drive is not linked, please sign in again"), nil
		}
		log.Error().Err(err).Str("user_id", userID).Str("note_id", note.ID).Msg("export failed")
		return errorResponse(http.StatusBadGateway, "Failed to export note"), nil
	}
	return jsonResponse(http.StatusOK, result), nil
}

// ListStarredNotes lists all starred notes.
func (h *NoteHandler) ListStarredNotes(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	_, storage, resp := h.authorize(ctx, req)
	if resp != nil {
		return *resp, nil
	}

	notes, err := storage.ListStarred(ctx)
	if err != nil {
		return storageError("list starred notes", err), nil
	}
	return jsonResponse(http.StatusOK, notes), nil
}
