package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"github.com/jun/notabl/backend/internal/transcript"
)

// TranscriptHandler serves YouTube transcripts.
type TranscriptHandler struct {
	fetcher transcript.Fetcher
}

// NewTranscriptHandler creates a new TranscriptHandler.
func NewTranscriptHandler(fetcher transcript.Fetcher) *TranscriptHandler {
	return &TranscriptHandler{fetcher: fetcher}
}

// transcriptErrors are the messages returned for validation failures.
var transcriptErrors = []struct {
	err     error
	status  int
	message string
}{
	{transcript.ErrMissingAPIKey, http.StatusInternalServerError, "API configuration error"},
	{transcript.ErrMissingURL, http.StatusBadRequest, "YouTube URL is required"},
	{transcript.ErrInvalidURL, http.StatusBadRequest, "Invalid YouTube URL format"},
	{transcript.ErrNoVideoID, http.StatusBadRequest, "Could not extract YouTube video ID"},
	{transcript.ErrNoTranscript, http.StatusInternalServerError, "No transcript data received"},
}

// transcriptError maps a fetch error onto a status and message. Upstream
// failures keep the upstream status and message.
func transcriptError(err error) (int, string) {
	for _, te := range transcriptErrors {
		if errors.Is(err, te.err) {
			return te.status, te.message
		}
	}
	var upstream *transcript.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode, upstream.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "Transcript request timed out"
	}
	return http.StatusInternalServerError, "Failed to fetch transcript"
}

// GetTranscript handles POST /transcript {"url": "..."}.
func (h *TranscriptHandler) GetTranscript(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	// The configuration error takes precedence over request validation.
	c, ok := h.fetcher.(interface{ Configured() bool })
	if h.fetcher == nil || (ok && !c.Configured()) {
		log.Error().Msg("transcript API key is not configured")
		status, message := transcriptError(transcript.ErrMissingAPIKey)
		return errorResponse(status, message), nil
	}

	var input struct {
		URL string `json:"url"`
	}
	if err := decodeBody(req, &input); err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
	}

	result, err := h.fetcher.Fetch(ctx, input.URL)
	if err != nil {
		status, message := transcriptError(err)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("url", input.URL).Msg("transcript request failed")
		}
		return errorResponse(status, message), nil
	}
	return jsonResponse(http.StatusOK, result), nil
}
