package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"github.com/jun/notabl/backend/internal/model"
	"github.com/jun/notabl/backend/internal/pipeline"
)

// Processor runs note processing jobs.
type Processor interface {
	Start(ctx context.Context, userID string, req pipeline.Request) (*model.Job, error)
	Get(userID, jobID string) (*model.Job, error)
	Current(userID string) pipeline.UserStatus
	Cancel(userID, jobID string) error
}

// ProcessingHandler exposes the processing pipeline.
type ProcessingHandler struct {
	processor Processor
	jwtSecret string
}

// NewProcessingHandler creates a new ProcessingHandler.
func NewProcessingHandler(processor Processor, jwtSecret string) *ProcessingHandler {
	return &ProcessingHandler{processor: processor, jwtSecret: jwtSecret}
}

func processingError(err error) events.APIGatewayProxyResponse {
	switch {
	case errors.Is(err, pipeline.ErrBusy):
		return errorResponse(http.StatusConflict, "A note is already being processed")
	case errors.Is(err, pipeline.ErrInvalidRequest):
		if status, message := transcriptError(err); status == http.StatusBadRequest {
			return errorResponse(status, message)
		}
		return errorResponse(http.StatusBadRequest, strings.TrimPrefix(err.Error(), pipeline.ErrInvalidRequest.Error()+": "))
	case errors.Is(err, pipeline.ErrJobNotFound):
		return errorResponse(http.StatusNotFound, "Job not found")
	case errors.Is(err, pipeline.ErrJobFinished):
		return errorResponse(http.StatusConflict, "Job already finished")
	}
	log.Error().Err(err).Msg("processing request failed")
	return errorResponse(http.StatusInternalServerError, "Failed to process request")
}

// StartProcessing starts a job for the source in the body. Jobs that already
// finished (inline mode) are returned with 200, running jobs with 202.
func (h *ProcessingHandler) StartProcessing(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := GetUserID(req, h.jwtSecret)
	if err != nil {
		return unauthorized(), nil
	}

	var input pipeline.Request
	if err := decodeBody(req, &input); err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
	}

	job, err := h.processor.Start(ctx, userID, input)
	if err != nil {
		return processingError(err), nil
	}

	status := http.StatusAccepted
	if job.Status.Terminal() {
		status = http.StatusOK
	}
	return jsonResponse(status, job), nil
}

// GetStatus returns the user's current processing state.
func (h *ProcessingHandler) GetStatus(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := GetUserID(req, h.jwtSecret)
	if err != nil {
		return unauthorized(), nil
	}
	return jsonResponse(http.StatusOK, h.processor.Current(userID)), nil
}

// GetJob returns a job of the user.
func (h *ProcessingHandler) GetJob(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := GetUserID(req, h.jwtSecret)
	if err != nil {
		return unauthorized(), nil
	}

	job, err := h.processor.Get(userID, req.PathParameters["id"])
	if err != nil {
		return processingError(err), nil
	}
	return jsonResponse(http.StatusOK, job), nil
}

// CancelJob cancels a running job of the user.
func (h *ProcessingHandler) CancelJob(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := GetUserID(req, h.jwtSecret)
	if err != nil {
		return unauthorized(), nil
	}

	jobID := req.PathParameters["id"]
	if err := h.processor.Cancel(userID, jobID); err != nil {
		return processingError(err), nil
	}
	return jsonResponse(http.StatusAccepted, map[string]string{"id": jobID, "status": "canceling"}), nil
}
