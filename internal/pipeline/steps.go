package pipeline

import "github.com/jun/notabl/backend/internal/model"

var stepLabels = map[model.SourceType][3]string{
	model.SourceAudio:   {"Processing audio file", "Transcribing audio to text", "Generating note from transcript"},
	model.SourcePDF:     {"Processing PDF file", "Extracting text from PDF", "Generating note from text"},
	model.SourceYouTube: {"Processing YouTube link", "Fetching video transcript", "Generating note from transcript"},
}

// Steps returns the checklist for a job of the given source in status.
// failedAt is the stage a failed job was in; it is ignored unless status is error.
func Steps(source model.SourceType, status, failedAt model.ProcessingStatus) []model.ProcessingStep {
	labels, ok := stepLabels[source]
	if !ok {
		labels = stepLabels[model.SourceAudio]
	}
	steps := []model.ProcessingStep{
		{ID: "processing", Label: labels[0], Status: model.StepPending},
		{ID: "transcribing", Label: labels[1], Status: model.StepPending},
		{ID: "generating", Label: labels[2], Status: model.StepPending},
	}

	stage := status
	if status == model.StatusError {
		stage = failedAt
	}

	switch stage {
	case model.StatusRecording, model.StatusUploading:
		steps[0].Status = model.StepProcessing
	case model.StatusTranscribing:
		steps[0].Status = model.StepCompleted
		steps[1].Status = model.StepProcessing
	case model.StatusGenerating:
		steps[0].Status = model.StepCompleted
		steps[1].Status = model.StepCompleted
		steps[2].Status = model.StepProcessing
	case model.StatusCompleted:
		for i := range steps {
			steps[i].Status = model.StepCompleted
		}
	}

	if status == model.StatusError {
		for i := range steps {
			if steps[i].Status == model.StepProcessing {
				steps[i].Status = model.StepError
				break
			}
		}
	}
	return steps
}
