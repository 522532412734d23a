package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"
)

const originHeader = "X-Origin-Verify"

type route func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

func eventsRequest(headers map[string]string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{Headers: headers}
}

func header(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// HandleRequest routes API Gateway requests to the appropriate handler.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	path := req.Path
	method := req.HTTPMethod

	log.Debug().Str("method", method).Str("path", path).Msg("request")

	// CORS Preflight
	if method == http.MethodOptions {
		return app.corsResponse(events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}), nil
	}

	if !app.originAllowed(header(req.Headers, originHeader)) {
		log.Warn().Str("path", path).Msg("missing or invalid X-Origin-Verify header")
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusForbidden,
			Body:       "Forbidden: Access denied",
		}, nil
	}

	// Strip /api prefix if present (for CloudFront proxying)
	path = strings.TrimPrefix(path, "/api")
	if req.PathParameters == nil {
		req.PathParameters = make(map[string]string)
	}

	handle := app.match(method, path, req.PathParameters)
	if handle == nil {
		return app.corsResponse(events.APIGatewayProxyResponse{
			StatusCode: http.StatusNotFound,
			Body:       fmt.Sprintf("Not Found: %s %s", method, path),
		}), nil
	}
	return app.corsResponse(must(handle(ctx, req))), nil
}

// originAllowed reports whether the X-Origin-Verify value lets a request in.
// Only CloudFront knows the secret; dev mode skips the check.
func (app *App) originAllowed(value string) bool {
	return app.cfg.DevMode || value == app.apiGatewaySecret
}

// match resolves the handler of a request. Path parameters are written to params.
func (app *App) match(method, path string, params map[string]string) route {
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch parts[0] {
	case "auth":
		switch {
		case path == "/auth/login" && method == http.MethodGet:
			return app.authHandler.Login
		case path == "/auth/callback" && method == http.MethodGet:
			return app.authHandler.Callback
		case path == "/auth/demo-login" && method == http.MethodGet:
			return app.authHandler.DemoLogin
		case path == "/auth/logout" && method == http.MethodPost:
			return app.authHandler.Logout
		case path == "/auth/user" && method == http.MethodGet:
			return app.authHandler.GetUser
		case path == "/auth/user" && method == http.MethodPatch:
			return app.authHandler.UpdateUser
		}

	case "folders":
		if len(parts) == 1 {
			switch method {
			case http.MethodGet:
				return app.folderHandler.ListFolders
			case http.MethodPost:
				return app.folderHandler.CreateFolder
			}
			return nil
		}
		if len(parts) == 2 {
			params["id"] = parts[1]
			switch method {
			case http.MethodPatch:
				return app.folderHandler.RenameFolder
			case http.MethodDelete:
				return app.folderHandler.DeleteFolder
			}
		}

	case "notes":
		return app.matchNote(method, parts, params)

	case "starred":
		if len(parts) == 1 && method == http.MethodGet {
			return app.noteHandler.ListStarredNotes
		}

	case "search":
		if len(parts) == 1 && method == http.MethodGet {
			return app.searchHandler.Search
		}

	case "sync":
		if method != http.MethodPost || len(parts) != 2 {
			return nil
		}
		switch parts[1] {
		case "check":
			return app.syncHandler.CheckConflict
		case "push":
			return app.syncHandler.Push
		}

	case "transcript":
		if len(parts) == 1 && method == http.MethodPost {
			return app.transcriptHandler.GetTranscript
		}

	case "processing":
		if len(parts) == 1 {
			switch method {
			case http.MethodGet:
				return app.processingHandler.GetStatus
			case http.MethodPost:
				return app.processingHandler.StartProcessing
			}
			return nil
		}
		if len(parts) == 2 {
			params["id"] = parts[1]
			switch method {
			case http.MethodGet:
				return app.processingHandler.GetJob
			case http.MethodDelete:
				return app.processingHandler.CancelJob
			}
		}
	}
	return nil
}

func (app *App) matchNote(method string, parts []string, params map[string]string) route {
	switch len(parts) {
	case 1:
		switch method {
		case http.MethodGet:
			return app.noteHandler.ListNotes
		case http.MethodPost:
			return app.noteHandler.CreateNote
		}
	case 2:
		if parts[1] == "import" {
			if method == http.MethodPost {
				return app.noteHandler.ImportNote
			}
			return nil
		}
		params["id"] = parts[1]
		switch method {
		case http.MethodGet:
			return app.noteHandler.GetNote
		case http.MethodPut:
			return app.noteHandler.UpdateNote
		case http.MethodPatch:
			return app.noteHandler.PatchNote
		case http.MethodDelete:
			return app.noteHandler.DeleteNote
		}
	case 3:
		params["id"] = parts[1]
		switch {
		case parts[2] == "delete" && method == http.MethodPost:
			return app.noteHandler.DeleteNote
		case parts[2] == "copy" && method == http.MethodPost:
			return app.noteHandler.DuplicateNote
		case parts[2] == "html" && method == http.MethodGet:
			return app.noteHandler.RenderNote
		case parts[2] == "download" && method == http.MethodGet:
			return app.noteHandler.DownloadNote
		case parts[2] == "export" && method == http.MethodPost:
			return app.noteHandler.ExportNote
		}
	}
	return nil
}

// corsResponse adds CORS headers to an API Gateway response.
func (app *App) corsResponse(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	resp.Headers["Access-Control-Allow-Origin"] = app.cfg.FrontendURL
	resp.Headers["Access-Control-Allow-Credentials"] = "true"
	resp.Headers["Access-Control-Allow-Methods"] = "GET,POST,PUT,DELETE,OPTIONS,PATCH"
	resp.Headers["Access-Control-Allow-Headers"] = "Content-Type,Authorization,If-Match"
	resp.Headers["Access-Control-Expose-Headers"] = "ETag,Content-Disposition"
	return resp
}

// must unwraps a handler response, ignoring the error.
func must(resp events.APIGatewayProxyResponse, err error) events.APIGatewayProxyResponse {
	if err != nil {
		log.Error().Err(err).Msg("handler error")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return resp
}
