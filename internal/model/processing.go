package model

import "time"

// ProcessingStatus is the label describing the progress of a processing job.
type ProcessingStatus string

const (
	StatusIdle         ProcessingStatus = "idle"
	StatusRecording    ProcessingStatus = "recording"
	StatusUploading    ProcessingStatus = "uploading"
	StatusTranscribing ProcessingStatus = "transcribing"
	StatusGenerating   ProcessingStatus = "generating"
	StatusCompleted    ProcessingStatus = "completed"
	StatusError        ProcessingStatus = "error"
)

// Terminal reports whether no further stage follows s for a job.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusIdle
}

// Progress returns the percentage shown for s.
func (s ProcessingStatus) Progress() int {
	switch s {
	case StatusRecording:
		return 10
	case StatusUploading:
		return 25
	case StatusTranscribing:
		return 50
	case StatusGenerating:
		return 75
	case StatusCompleted:
		return 100
	}
	return 0
}

// StepStatus is the state of a single ProcessingStep.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepProcessing StepStatus = "processing"
	StepCompleted  StepStatus = "completed"
	StepError      StepStatus = "error"
)

// ProcessingStep is one row of the processing checklist shown to the user.
type ProcessingStep struct {
	ID     string     `json:"id"`
	Label  string     `json:"label"`
	Status StepStatus `json:"status"`
}

// Job is a single run of the processing pipeline for one source.
type Job struct {
	ID         string           `json:"id"`
	UserID     string           `json:"userId"`
	SourceType SourceType       `json:"sourceType"`
	SourceURL  string           `json:"sourceUrl,omitempty"`
	FolderID   string           `json:"folderId"`
	NoteID     string           `json:"noteId,omitempty"`
	Status     ProcessingStatus `json:"status"`
	Progress   int              `json:"progress"`
	Steps      []ProcessingStep `json:"steps"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}
