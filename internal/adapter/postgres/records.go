package postgres

import (
	"time"

	"github.com/jun/notabl/backend/internal/model"
)

// NoteRecord is the notes table row.
type NoteRecord struct {
	UserID     string `gorm:"primaryKey;size:128"`
	ID         string `gorm:"primaryKey;size:64"`
	Title      string `gorm:"size:255;not null"`
	Content    string `gorm:"type:text"`
	Summary    string `gorm:"type:text"`
	FolderID   string `gorm:"size:64;index"`
	SourceType string `gorm:"size:16;not null;default:text"`
	SourceURL  string `gorm:"type:text"`
	Starred    bool   `gorm:"index"`
	ETag       string `gorm:"column:etag;size:64;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false;index"`
}

func (NoteRecord) TableName() string { return "notes" }

// FolderRecord is the folders table row.
type FolderRecord struct {
	UserID    string `gorm:"primaryKey;size:128"`
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:255;not null"`
	ParentID  string `gorm:"size:64;index"`
	CreatedAt time.Time
}

func (FolderRecord) TableName() string { return "folders" }

func noteRecord(n model.Note) NoteRecord {
	return NoteRecord{
		UserID:     n.UserID,
		ID:         n.ID,
		Title:      n.Title,
		Content:    n.Content,
		Summary:    n.Summary,
		FolderID:   n.FolderID,
		SourceType: string(n.SourceType),
		SourceURL:  n.SourceURL,
		Starred:    n.Starred,
		ETag:       n.ETag,
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.UpdatedAt,
	}
}

func (r NoteRecord) toNote() model.Note {
	return model.Note{
		ID:         r.ID,
		UserID:     r.UserID,
		Title:      r.Title,
		Content:    r.Content,
		Summary:    r.Summary,
		FolderID:   r.FolderID,
		SourceType: model.SourceType(r.SourceType),
		SourceURL:  r.SourceURL,
		Starred:    r.Starred,
		ETag:       r.ETag,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func folderRecord(f model.Folder) FolderRecord {
	return FolderRecord{
		UserID:    f.UserID,
		ID:        f.ID,
		Name:      f.Name,
		ParentID:  f.ParentID,
		CreatedAt: f.CreatedAt,
	}
}

func (r FolderRecord) toFolder() model.Folder {
	return model.Folder{
		ID:        r.ID,
		UserID:    r.UserID,
		Name:      r.Name,
		ParentID:  r.ParentID,
		CreatedAt: r.CreatedAt,
	}
}

func toNotes(records []NoteRecord) []model.Note {
	notes := make([]model.Note, 0, len(records))
	for _, r := range records {
		notes = append(notes, r.toNote())
	}
	return notes
}
