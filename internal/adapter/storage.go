package adapter

import (
	"context"

	"github.com/jun/notabl/backend/internal/model"
)

// NoteInput describes a note to create.
type NoteInput struct {
	Title      string           `json:"title"`
	Content    string           `json:"content"`
	Summary    string           `json:"summary"`
	FolderID   string           `json:"folderId"`
	SourceType model.SourceType `json:"sourceType"`
	SourceURL  string           `json:"sourceUrl"`
}

// NotePatch describes a partial update of a note. Nil fields are left unchanged.
type NotePatch struct {
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	Summary  *string `json:"summary"`
	FolderID *string `json:"folderId"`
}

// Empty reports whether the patch changes nothing.
func (p NotePatch) Empty() bool {
	return p.Title == nil && p.Content == nil && p.Summary == nil && p.FolderID == nil
}

// StorageAdapter defines the per-user interface for note and folder persistence.
// This abstraction allows switching between backends (in-memory/DynamoDB, PostgreSQL)
// without changing the handlers or the processing pipeline.
type StorageAdapter interface {
	// EnsureReservedFolder makes sure the "All notes" folder exists and returns it.
	EnsureReservedFolder(ctx context.Context) (*model.Folder, error)

	// ListFolders lists the user's folders, reserved folder first.
	ListFolders(ctx context.Context) ([]model.Folder, error)

	// GetFolder retrieves a folder by its ID.
	GetFolder(ctx context.Context, folderID string) (*model.Folder, error)

	// CreateFolder creates a new folder under parentID (empty for top level).
	CreateFolder(ctx context.Context, name string, parentID string) (*model.Folder, error)

	// RenameFolder renames a folder.
	RenameFolder(ctx context.Context, folderID string, name string) (*model.Folder, error)

	// DeleteFolder deletes a folder, moving its notes to the reserved folder
	// and re-parenting its child folders. Deleting the reserved folder is a no-op.
	DeleteFolder(ctx context.Context, folderID string) error

	// ListNotes lists the notes of a folder. The reserved folder (or "") lists every note.
	ListNotes(ctx context.Context, folderID string) ([]model.Note, error)

	// GetNote retrieves a note by its ID.
	GetNote(ctx context.Context, noteID string) (*model.Note, error)

	// CreateNote creates a new note.
	CreateNote(ctx context.Context, input NoteInput) (*model.Note, error)

	// SaveNote applies a patch to an existing note.
	// It verifies the ETag to prevent overwriting changes (optimistic locking).
	// If etag is empty, it forces an overwrite.
	SaveNote(ctx context.Context, noteID string, patch NotePatch, etag string) (*model.Note, error)

	// DeleteNote deletes a note by its ID.
	DeleteNote(ctx context.Context, noteID string) error

	// DuplicateNote duplicates a note by its ID.
	DuplicateNote(ctx context.Context, noteID string) (*model.Note, error)

	// SetStarred sets the starred status of a note.
	SetStarred(ctx context.Context, noteID string, starred bool) (*model.Note, error)

	// ListStarred lists all starred notes.
	ListStarred(ctx context.Context) ([]model.Note, error)

	// SearchNotes searches note titles and contents, optionally within one folder.
	SearchNotes(ctx context.Context, query string, folderID string) ([]model.Note, error)

	// CountNotes returns the number of notes owned by the user.
	CountNotes(ctx context.Context) (int, error)
}
