package adapter

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jun/notabl/backend/internal/model"
)

const (
	MaxContentSize = 256 * 1024 // 256KB
	MaxTitleLength = 255 // characters
)

// DefaultTitle returns the title given to untitled notes of the source type.
func DefaultTitle(source model.SourceType) string {
	if source == model.SourceAudio {
		return "Transcript Summary"
	}
	return "New Note"
}

// NewETag returns a fresh opaque version string.
func NewETag() string {
	return uuid.New().String()
}

// NewNoteID returns a fresh note ID.
func NewNoteID() string {
	return "note-" + uuid.New().String()
}

// NewFolderID returns a fresh folder ID.
func NewFolderID() string {
	return "folder-" + uuid.New().String()
}

// ValidateTitle checks the length limit shared by note titles and folder names.
func ValidateTitle(title string) error {
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return fmt.Errorf("%w: name too long (max %d characters)", ErrInvalidInput, MaxTitleLength)
	}
	return nil
}

// ValidateContent checks the content size limit.
func ValidateContent(content string) error {
	if len(content) > MaxContentSize {
		return fmt.Errorf("%w: content too large (max %d bytes)", ErrInvalidInput, MaxContentSize)
	}
	return nil
}

// ValidateFolderName checks that a folder name is present and within limits.
func ValidateFolderName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: folder name is required", ErrInvalidInput)
	}
	return ValidateTitle(name)
}

// NormalizeNoteInput applies defaults and validates a NoteInput.
// The folder's existence is checked by the backend.
func NormalizeNoteInput(in NoteInput) (NoteInput, error) {
	if in.SourceType == "" {
		in.SourceType = model.SourceText
	}
	if !in.SourceType.Valid() {
		return in, fmt.Errorf("%w: unknown source type %q", ErrInvalidInput, in.SourceType)
	}
	if strings.TrimSpace(in.Title) == "" {
		in.Title = DefaultTitle(in.SourceType)
	}
	if in.FolderID == "" {
		in.FolderID = model.ReservedFolderID
	}
	if err := ValidateTitle(in.Title); err != nil {
		return in, err
	}
	if err := ValidateContent(in.Content); err != nil {
		return in, err
	}
	return in, nil
}

// NewNote builds a note from a normalized input.
func NewNote(userID string, in NoteInput, now time.Time) model.Note {
	return model.Note{
		ID:         NewNoteID(),
		UserID:     userID,
		Title:      in.Title,
		Content:    in.Content,
		Summary:    in.Summary,
		FolderID:   in.FolderID,
		SourceType: in.SourceType,
		SourceURL:  in.SourceURL,
		ETag:       NewETag(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// ApplyPatch validates p and applies it to n. The folder's existence is checked by the backend.
func ApplyPatch(n *model.Note, p NotePatch, now time.Time) error {
	if p.Title != nil {
		if strings.TrimSpace(*p.Title) == "" {
			return fmt.Errorf("%w: title cannot be empty", ErrInvalidInput)
		}
		if err := ValidateTitle(*p.Title); err != nil {
			return err
		}
		n.Title = *p.Title
	}
	if p.Content != nil {
		if err := ValidateContent(*p.Content); err != nil {
			return err
		}
		n.Content = *p.Content
	}
	if p.Summary != nil {
		n.Summary = *p.Summary
	}
	if p.FolderID != nil {
		n.FolderID = *p.FolderID
		if n.FolderID == "" {
			n.FolderID = model.ReservedFolderID
		}
	}
	n.UpdatedAt = now
	n.ETag = NewETag()
	return nil
}

// CopyTitle returns the title of a duplicated note.
func CopyTitle(title string) string {
	return title + " (copy)"
}

// MatchesQuery reports whether the note's title or content contains query, ignoring case.
func MatchesQuery(n model.Note, query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(n.Title), q) ||
		strings.Contains(strings.ToLower(n.Content), q)
}

// InFolder reports whether the note is listed under folderID.
// The reserved folder lists every note.
func InFolder(n model.Note, folderID string) bool {
	if folderID == "" || folderID == model.ReservedFolderID {
		return true
	}
	return n.FolderID == folderID
}

// SortNotes orders notes newest first.
func SortNotes(notes []model.Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].UpdatedAt.Equal(notes[j].UpdatedAt) {
			return notes[i].ID < notes[j].ID
		}
		return notes[i].UpdatedAt.After(notes[j].UpdatedAt)
	})
}

// SortFolders orders folders with the reserved folder first, then by name.
func SortFolders(folders []model.Folder) {
	sort.SliceStable(folders, func(i, j int) bool {
		if folders[i].Reserved() != folders[j].Reserved() {
			return folders[i].Reserved()
		}
		return strings.ToLower(folders[i].Name) < strings.ToLower(folders[j].Name)
	})
}

// ReservedFolder returns a fresh reserved folder for the user.
func ReservedFolder(userID string, now time.Time) model.Folder {
	return model.Folder{
		ID:        model.ReservedFolderID,
		UserID:    userID,
		Name:      model.ReservedFolderName,
		CreatedAt: now,
	}
}

// IsDescendant reports whether folderID is targetID or lies beneath it.
// parents maps folder IDs to their parent IDs.
func IsDescendant(folderID, targetID string, parents map[string]string) bool {
	seen := make(map[string]bool)
	for current := folderID; current != "" && !seen[current]; current = parents[current] {
		if current == targetID {
			return true
		}
		seen[current] = true
	}
	return false
}
