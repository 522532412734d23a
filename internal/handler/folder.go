package handler

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jun/notabl/backend/internal/adapter"
)

// FolderHandler handles folder management.
type FolderHandler struct {
	storageProvider adapter.StorageProvider
	jwtSecret       string
}

// NewFolderHandler creates a new FolderHandler.
func NewFolderHandler(provider adapter.StorageProvider, jwtSecret string) *FolderHandler {
	return &FolderHandler{storageProvider: provider, jwtSecret: jwtSecret}
}

// ListFolders lists the user's folders, "All notes" first.
func (h *FolderHandler) ListFolders(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	_, storage, resp := authorizeStorage(ctx, req, h.storageProvider, h.jwtSecret)
	if resp != nil {
		return *resp, nil
	}

	folders, err := storage.ListFolders(ctx)
	if err != nil {
		return storageError("list folders", err), nil
	}
	return jsonResponse(http.StatusOK, folders), nil
}

// CreateFolder creates a new folder.
func (h *FolderHandler) CreateFolder(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	_, storage, resp := authorizeStorage(ctx, req, h.storageProvider, h.jwtSecret)
	if resp != nil {
		return *resp, nil
	}

	var payload struct {
		Name     string `json:"name"`
		ParentID string `json:"parentId"`
	}
	if err := decodeBody(req, &payload); err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
	}

	folder, err := storage.CreateFolder(ctx, payload.Name, payload.ParentID)
	if err != nil {
		return storageError("create folder", err), nil
	}
	return jsonResponse(http.StatusCreated, folder), nil
}

// RenameFolder renames a folder.
func (h *FolderHandler) RenameFolder(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	_, storage, resp := authorizeStorage(ctx, req, h.storageProvider, h.jwtSecret)
	if resp != nil {
		return *resp, nil
	}

	id := req.PathParameters["id"]
	if id == "" {
		return errorResponse(http.StatusBadRequest, "Missing folder ID"), nil
	}

	var payload struct {
		Name string `json:"name"`
	}
	if err := decodeBody(req, &payload); err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
	}

	folder, err := storage.RenameFolder(ctx, id, payload.Name)
	if err != nil {
		return storageError("rename folder", err), nil
	}
	return jsonResponse(http.StatusOK, folder), nil
}

// DeleteFolder deletes a folder and moves its notes to "All notes".
// Deleting "All notes" itself succeeds without changing anything.
func (h *FolderHandler) DeleteFolder(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	_, storage, resp := authorizeStorage(ctx, req, h.storageProvider, h.jwtSecret)
	if resp != nil {
		return *resp, nil
	}

	id := req.PathParameters["id"]
	if id == "" {
		return errorResponse(http.StatusBadRequest, "Missing folder ID"), nil
	}

	if err := storage.DeleteFolder(ctx, id); err != nil {
		return storageError("delete folder", err), nil
	}
	return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}, nil
}
