package handler

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jun/notabl/backend/internal/adapter"
	"github.com/jun/notabl/backend/internal/sync"
)

// maxPushChanges bounds a single offline push.
const maxPushChanges = 100

// SyncHandler handles synchronization and conflict detection.
type SyncHandler struct {
	storageProvider adapter.StorageProvider
	jwtSecret       string
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(storageProvider adapter.StorageProvider, jwtSecret string) *SyncHandler {
	return &SyncHandler{storageProvider: storageProvider, jwtSecret: jwtSecret}
}

// CheckConflictRequest represents the request body for conflict checking.
type CheckConflictRequest struct {
	NoteID string `json:"noteId"`
	ETag   string `json:"etag"`
}

// PushRequest carries the changes made while offline.
type PushRequest struct {
	Changes []sync.OfflineChange `json:"changes"`
}

// PushResponse reports the outcome of every pushed change.
type PushResponse struct {
	Results []sync.PushResult `json:"results"`
}

// CheckConflict compares the client's etag of a note with the stored one.
func (h *SyncHandler) CheckConflict(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	_, storage, resp := authorizeStorage(ctx, req, h.storageProvider, h.jwtSecret)
	if resp != nil {
		return *resp, nil
	}

	var input CheckConflictRequest
	if err := decodeBody(req, &input); err != nil || input.NoteID == "" {
		return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
	}

	result, err := sync.Check(ctx, storage, input.NoteID, input.ETag)
	if err != nil {
		return storageError("check conflict", err), nil
	}
	return jsonResponse(http.StatusOK, result), nil
}

// Push applies changes made while offline.
func (h *SyncHandler) Push(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	_, storage, resp := authorizeStorage(ctx, req, h.storageProvider, h.jwtSecret)
	if resp != nil {
		return *resp, nil
	}

	var input PushRequest
	if err := decodeBody(req, &input); err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
	}
	if len(input.Changes) > maxPushChanges {
		return errorResponse(http.StatusRequestEntityTooLarge, "Too many changes"), nil
	}

	results, err := sync.Apply(ctx, storage, input.Changes)
	if err != nil {
		return storageError("push changes", err), nil
	}
	return jsonResponse(http.StatusOK, PushResponse{Results: results}), nil
}
