package app

import (
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

// ServeHTTP adapts plain HTTP requests to the API Gateway router so the
// same routes can be served by the local server. /ws streams processing events.
func (app *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api")
	if path == "/ws" && app.hub != nil {
		app.serveWebsocket(w, r)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	resp, err := app.HandleRequest(r.Context(), toEvent(r, body))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeResponse(w, resp)
}

func (app *App) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	if !app.originAllowed(r.Header.Get(originHeader)) {
		log.Warn().Str("path", r.URL.Path).Msg("missing or invalid X-Origin-Verify header")
		http.Error(w, "Forbidden: Access denied", http.StatusForbidden)
		return
	}
	headers := map[string]string{
		"Cookie":        r.Header.Get("Cookie"),
		"Authorization": r.Header.Get("Authorization"),
	}
	userID, err := app.UserID(headers)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	app.hub.Serve(w, r, userID, app.cfg.FrontendURL)
}

func toEvent(r *http.Request, body []byte) events.APIGatewayProxyRequest {
	headers := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		headers[k] = strings.Join(v, ",")
	}
	// Cookie values are separated by "; ", not commas.
	if cookies, ok := r.Header["Cookie"]; ok {
		headers["Cookie"] = strings.Join(cookies, "; ")
	}

	query := make(map[string]string)
	for k, v := range r.URL.Query() {
		query[k] = v[0]
	}

	req := events.APIGatewayProxyRequest{
		Path:                  r.URL.Path,
		HTTPMethod:            r.Method,
		Headers:               headers,
		MultiValueHeaders:     r.Header,
		QueryStringParameters: query,
		Body:                  string(body),
	}
	if !utf8.Valid(body) {
		req.Body = base64.StdEncoding.EncodeToString(body)
		req.IsBase64Encoded = true
	}
	return req
}

func writeResponse(w http.ResponseWriter, resp events.APIGatewayProxyResponse) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	for k, values := range resp.MultiValueHeaders {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}

	body := []byte(resp.Body)
	if resp.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(resp.Body)
		if err != nil {
			log.Error().Err(err).Msg("invalid base64 response body")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		body = decoded
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(body); err != nil {
		log.Debug().Err(err).Msg("failed to write response")
	}
}
