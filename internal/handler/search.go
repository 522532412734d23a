package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jun/notabl/backend/internal/adapter"
)

// SearchHandler handles search requests.
type SearchHandler struct {
	storageProvider adapter.StorageProvider
	jwtSecret       string
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(storageProvider adapter.StorageProvider, jwtSecret string) *SearchHandler {
	return &SearchHandler{
		storageProvider: storageProvider,
		jwtSecret:       jwtSecret,
	}
}

// Search handles GET /search?q=&folderId=
func (h *SearchHandler) Search(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	_, storage, resp := authorizeStorage(ctx, req, h.storageProvider, h.jwtSecret)
	if resp != nil {
		return *resp, nil
	}

	query := strings.TrimSpace(req.QueryStringParameters["q"])
	if query == "" {
		return errorResponse(http.StatusBadRequest, "Query parameter 'q' is required"), nil
	}

	notes, err := storage.SearchNotes(ctx, query, req.QueryStringParameters["folderId"])
	if err != nil {
		return storageError("search notes", err), nil
	}
	return jsonResponse(http.StatusOK, notes), nil
}
