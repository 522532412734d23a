package model

import (
	"strings"
	"time"
)

const (
	// ReservedFolderID is the per-user "All notes" folder. It always exists and cannot be deleted.
	ReservedFolderID   = "folder-1"
	ReservedFolderName = "All notes"
)

// SourceType describes where a note's content came from.
type SourceType string

const (
	SourceText    SourceType = "text"
	SourceAudio   SourceType = "audio"
	SourcePDF     SourceType = "pdf"
	SourceYouTube SourceType = "youtube"
)

// Valid reports whether s is a known source type.
func (s SourceType) Valid() bool {
	switch s {
	case SourceText, SourceAudio, SourcePDF, SourceYouTube:
		return true
	}
	return false
}

// Plan is the subscription tier shown in the quota display.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

// UnlimitedNotes is the NotesLimit reported for plans without a quota.
const UnlimitedNotes = -1

// NotesLimit returns the advisory note quota for the plan.
func (p Plan) NotesLimit() int {
	if p == PlanPremium {
		return UnlimitedNotes
	}
	return 3
}

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	return p == PlanFree || p == PlanPremium
}

// UserToken represents the user's OAuth2 token and profile stored in DynamoDB.
type UserToken struct {
	UserID                string    `json:"user_id" dynamodbav:"user_id"`
	EncryptedRefreshToken string    `json:"encrypted_refresh_token" dynamodbav:"encrypted_refresh_token"`
	Name                  string    `json:"name" dynamodbav:"name"`
	Email                 string    `json:"email" dynamodbav:"email"`
	Avatar                string    `json:"avatar" dynamodbav:"avatar"`
	Plan                  Plan      `json:"plan" dynamodbav:"plan"`
	UpdatedAt             time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// UserProfile is the profile returned to clients, including the advisory quota counters.
type UserProfile struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Avatar     string `json:"avatar"`
	Plan       Plan   `json:"plan"`
	NotesUsed  int    `json:"notesUsed"`
	NotesLimit int    `json:"notesLimit"`
}

// ProcessingLock guards the single in-flight processing job of a user.
type ProcessingLock struct {
	UserID    string `json:"user_id" dynamodbav:"user_id"`
	JobID     string `json:"job_id" dynamodbav:"job_id"`
	ExpiresAt int64  `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix timestamp)
}

// Note is a unit of user content with a source type and folder assignment.
type Note struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId,omitempty"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	Summary    string     `json:"summary,omitempty"`
	FolderID   string     `json:"folderId"`
	SourceType SourceType `json:"sourceType"`
	SourceURL  string     `json:"sourceUrl,omitempty"`
	Starred    bool       `json:"starred"`
	ETag       string     `json:"etag"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Folder is a named grouping of notes.
type Folder struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	Name      string    `json:"name"`
	ParentID  string    `json:"parentId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Reserved reports whether f is the undeletable "All notes" folder.
func (f Folder) Reserved() bool {
	return f.ID == ReservedFolderID
}

// DemoUserPrefix marks throw-away accounts created by the demo login.
const DemoUserPrefix = "demo-user-"

// IsDemoUser reports whether userID belongs to a demo account.
func IsDemoUser(userID string) bool {
	return strings.HasPrefix(userID, DemoUserPrefix)
}
