package googledrive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jun/notabl/backend/internal/model"
	"github.com/jun/notabl/backend/internal/notefile"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	// RootFolderName is the Drive folder that receives exported notes.
	RootFolderName = "Notabl"

	folderMimeType   = "application/vnd.google-apps.folder"
	markdownMimeType = "text/markdown"

	// noteIDProperty links a Drive file to the note it was exported from.
	noteIDProperty = "notablNoteId"

	fileFields = "id, name, mimeType, modifiedTime, parents, webViewLink"
)

// ErrNotLinked is returned when the user has no Google account linked.
var ErrNotLinked = errors.New("google drive is not linked")

// toDriveName appends .md extension for storage on Google Drive.
func toDriveName(title string) string {
	return notefile.FileName(title)
}

// fromDriveName strips .md extension when returning names to the API.
func fromDriveName(name string) string {
	return notefile.TitleFromFileName(name)
}

// quote escapes a value for a Drive search query.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// ExportResult describes the Drive file a note was written to.
type ExportResult struct {
	FileID       string    `json:"fileId"`
	Name         string    `json:"name"`
	FolderID     string    `json:"folderId"`
	WebViewLink  string    `json:"webViewLink,omitempty"`
	ModifiedTime time.Time `json:"modifiedTime"`
	Created      bool      `json:"created"`
}

// Exporter writes notes as Markdown files into a user's Google Drive.
type Exporter struct {
	service *drive.Service
}

// NewExporter creates a new Exporter.
// client should be an authenticated http.Client with specific user credentials.
func NewExporter(ctx context.Context, client *http.Client, opts ...option.ClientOption) (*Exporter, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %w", err)
	}
	return &Exporter{service: srv}, nil
}

// EnsureRootFolder ensures a top-level folder exists and returns its ID.
func (e *Exporter) EnsureRootFolder(ctx context.Context, name string) (string, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and 'root' in parents and trashed = false", quote(name), folderMimeType)
	r, err := e.service.Files.List().Q(q).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to search for root folder: %w", err)
	}
	if len(r.Files) > 0 {
		return r.Files[0].Id, nil
	}

	f := &drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{"root"},
	}
	res, err := e.service.Files.Create(f).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create root folder: %w", err)
	}
	return res.Id, nil
}

// findNoteFile returns the file previously exported for noteID, or nil.
func (e *Exporter) findNoteFile(ctx context.Context, folderID, noteID string) (*drive.File, error) {
	q := fmt.Sprintf("appProperties has { key='%s' and value='%s' } and '%s' in parents and trashed = false",
		noteIDProperty, quote(noteID), quote(folderID))
	r, err := e.service.Files.List().Q(q).Fields(googleapi.Field("files(" + fileFields + ")")).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to search for note file: %w", err)
	}
	if len(r.Files) == 0 {
		return nil, nil
	}
	return r.Files[0], nil
}

// ExportNote writes the note into folderID. A file exported earlier for the
// same note is overwritten, otherwise a new file is created.
func (e *Exporter) ExportNote(ctx context.Context, folderID string, n model.Note) (*ExportResult, error) {
	content, err := notefile.Marshal(n)
	if err != nil {
		return nil, err
	}

	existing, err := e.findNoteFile(ctx, folderID, n.ID)
	if err != nil {
		return nil, err
	}

	var res *drive.File
	created := existing == nil
	if existing != nil {
		res, err = e.service.Files.Update(existing.Id, &drive.File{Name: toDriveName(n.Title)}).
			Media(bytes.NewReader(content), googleapi.ContentType(markdownMimeType)).
			SupportsAllDrives(true).
			Fields(fileFields).
			Context(ctx).
			Do()
		if err != nil {
			if isNotFound(err) {
				return nil, fmt.Errorf("note file disappeared during export: %w", err)
			}
			return nil, fmt.Errorf("unable to update file: %w", err)
		}
	} else {
		f := &drive.File{
			Name:          toDriveName(n.Title),
			MimeType:      markdownMimeType,
			Parents:       []string{folderID},
			AppProperties: map[string]string{noteIDProperty: n.ID},
		}
		res, err = e.service.Files.Create(f).
			Media(bytes.NewReader(content), googleapi.ContentType(markdownMimeType)).
			SupportsAllDrives(true).
			Fields(fileFields).
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("unable to create file: %w", err)
		}
	}

	modTime, _ := time.Parse(time.RFC3339, res.ModifiedTime)
	return &ExportResult{
		FileID:       res.Id,
		Name:         fromDriveName(res.Name),
		FolderID:     folderID,
		WebViewLink:  res.WebViewLink,
		ModifiedTime: modTime,
		Created:      created,
	}, nil
}

func isNotFound(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == http.StatusNotFound
	}
	return false
}

// ClientSource returns an authenticated Google HTTP client for a user.
type ClientSource interface {
	GetClient(ctx context.Context, userID string) (*http.Client, error)
}

// Provider exports notes to the Drive of the user they belong to.
type Provider struct {
	clients ClientSource
	opts    []option.ClientOption
}

// NewProvider creates a new Google Drive export provider.
func NewProvider(clients ClientSource, opts ...option.ClientOption) *Provider {
	return &Provider{clients: clients, opts: opts}
}

// Export writes the note into the user's Notabl folder.
func (p *Provider) Export(ctx context.Context, userID string, n model.Note) (*ExportResult, error) {
	client, err := p.clients.GetClient(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotLinked, err)
	}

	exporter, err := NewExporter(ctx, client, p.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive exporter: %w", err)
	}

	folderID, err := exporter.EnsureRootFolder(ctx, RootFolderName)
	if err != nil {
		return nil, err
	}
	return exporter.ExportNote(ctx, folderID, n)
}
