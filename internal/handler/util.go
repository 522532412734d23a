// Package handler implements the API Gateway handlers of the HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"github.com/jun/notabl/backend/internal/adapter"
	"github.com/jun/notabl/backend/internal/auth"
)

// ErrUnauthorized is returned when a request carries no valid session.
var ErrUnauthorized = errors.New("unauthorized")

// getHeader looks up a header case-insensitively.
func getHeader(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// getCookie returns the value of the named cookie from the Cookie header.
func getCookie(req events.APIGatewayProxyRequest, name string) string {
	// Cookie format: session_token=xxx; oauth_state=yyy
	for _, part := range strings.Split(getHeader(req, "Cookie"), ";") {
		part = strings.TrimSpace(part)
		if value, ok := strings.CutPrefix(part, name+"="); ok {
			return value
		}
	}
	return ""
}

// GetClaims extracts and verifies the session token from the Authorization header or session cookie.
func GetClaims(req events.APIGatewayProxyRequest, jwtSecret string) (*auth.Claims, error) {
	tokenString := ""
	if authHeader := getHeader(req, "Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		tokenString = strings.TrimPrefix(authHeader, "Bearer ")
	}
	if tokenString == "" {
		tokenString = getCookie(req, auth.SessionCookie)
	}
	if tokenString == "" {
		return nil, fmt.Errorf("%w: no authorization token found", ErrUnauthorized)
	}

	claims, err := auth.ParseSessionToken(jwtSecret, tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return claims, nil
}

// GetUserID extracts the user ID from the Authorization header or session cookie.
func GetUserID(req events.APIGatewayProxyRequest, jwtSecret string) (string, error) {
	claims, err := GetClaims(req, jwtSecret)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// decodeBody unmarshals the JSON request body into v. An empty body is an error.
func decodeBody(req events.APIGatewayProxyRequest, v any) error {
	if strings.TrimSpace(req.Body) == "" {
		return errors.New("empty request body")
	}
	return json.Unmarshal([]byte(req.Body), v)
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode response")
		return errorResponse(http.StatusInternalServerError, "Internal Server Error")
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// errorResponse returns a JSON body of the form {"error": message}.
func errorResponse(status int, message string) events.APIGatewayProxyResponse {
	return jsonResponse(status, map[string]string{"error": message})
}

func unauthorized() events.APIGatewayProxyResponse {
	return errorResponse(http.StatusUnauthorized, "Unauthorized")
}

func success() events.APIGatewayProxyResponse {
	return jsonResponse(http.StatusOK, map[string]bool{"success": true})
}

// storageError maps adapter errors onto HTTP responses. Unexpected errors are logged.
func storageError(op string, err error) events.APIGatewayProxyResponse {
	switch {
	case errors.Is(err, adapter.ErrNotFound):
		return errorResponse(http.StatusNotFound, "Not found")
	case errors.Is(err, adapter.ErrPreconditionFailed):
		return errorResponse(http.StatusPreconditionFailed, "Precondition Failed: ETag mismatch")
	case errors.Is(err, adapter.ErrInvalidInput):
		return errorResponse(http.StatusBadRequest, strings.TrimPrefix(err.Error(), adapter.ErrInvalidInput.Error()+": "))
	case errors.Is(err, adapter.ErrConflict):
		return errorResponse(http.StatusConflict, "Conflict")
	}
	log.Error().Err(err).Str("op", op).Msg("storage operation failed")
	return errorResponse(http.StatusInternalServerError, fmt.Sprintf("Failed to %s", op))
}

// CookieOptions control the attributes of the cookies set by the API.
type CookieOptions struct {
	DevMode bool
}

// sameSite matches the cross-site setup: the production frontend and API are
// served from different origins behind CloudFront.
func (o CookieOptions) sameSite(lax bool) http.SameSite {
	if lax || o.DevMode {
		return http.SameSiteLaxMode
	}
	return http.SameSiteNoneMode
}

func (o CookieOptions) cookie(name, value string, maxAge int, lax bool) string {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: o.sameSite(lax),
	}
	if maxAge == 0 {
		c.MaxAge = -1
	}
	return c.String()
}

// authorizeStorage resolves the storage adapter of the authenticated user,
// or the response to return instead.
func authorizeStorage(ctx context.Context, req events.APIGatewayProxyRequest, provider adapter.StorageProvider, jwtSecret string) (string, adapter.StorageAdapter, *events.APIGatewayProxyResponse) {
	userID, err := GetUserID(req, jwtSecret)
	if err != nil {
		resp := unauthorized()
		return "", nil, &resp
	}

	storage, err := provider.GetAdapter(ctx, userID)
	if err != nil {
		resp := storageError("get storage adapter", err)
		return "", nil, &resp
	}
	return userID, storage, nil
}
