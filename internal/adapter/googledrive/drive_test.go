package googledrive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jun/notabl/backend/internal/model"
	"google.golang.org/api/option"
)

func TestToDriveName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"appends .md to plain name", "test", "test.md"},
		{"keeps .md if already present", "test.md", "test.md"},
		{"handles empty string", "", "note.md"},
		{"replaces slashes", "a/b", "a-b.md"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toDriveName(tt.in)
			if got != tt.want {
				t.Errorf("toDriveName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFromDriveName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"strips .md extension", "test.md", "test"},
		{"no-op if no .md", "test", "test"},
		{"strips only trailing .md", "my.md.backup.md", "my.md.backup"},
		{"handles just .md", ".md", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fromDriveName(tt.in)
			if got != tt.want {
				t.Errorf("fromDriveName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestQuote(t *testing.T) {
	if got := quote(`it's a\b`); got != `it\'s a\\b` {
		t.Errorf("quote() = %q", got)
	}
}

// fakeDrive serves the subset of the Drive v3 API used by Exporter.
type fakeDrive struct {
	mu           sync.Mutex
	rootFolderID string
	noteFileID   string
	created      []string
	updated      []string
	uploads      []string
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/files"):
		q := r.URL.Query().Get("q")
		var files []map[string]string
		if strings.Contains(q, folderMimeType) {
			if f.rootFolderID != "" {
				files = append(files, map[string]string{"id": f.rootFolderID})
			}
		} else if f.noteFileID != "" {
			files = append(files, map[string]string{"id": f.noteFileID, "name": "old.md"})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"files": files})

	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/files"):
		if r.URL.Query().Get("uploadType") == "" {
			f.rootFolderID = "folder-created"
			f.created = append(f.created, "folder")
			_ = json.NewEncoder(w).Encode(map[string]string{"id": f.rootFolderID})
			return
		}
		f.noteFileID = "file-created"
		f.created = append(f.created, "file")
		f.uploads = append(f.uploads, string(body))
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":           f.noteFileID,
			"name":         "Hello.md",
			"modifiedTime": "2024-01-02T03:04:05Z",
		})

	case r.Method == http.MethodPatch && strings.Contains(r.URL.Path, "/files/"):
		id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		f.updated = append(f.updated, id)
		f.uploads = append(f.uploads, string(body))
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":           id,
			"name":         "Hello.md",
			"modifiedTime": "2024-01-03T03:04:05Z",
		})

	default:
		http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
	}
}

type staticClients struct {
	client *http.Client
	err    error
}

func (s staticClients) GetClient(_ context.Context, _ string) (*http.Client, error) {
	return s.client, s.err
}

func newTestProvider(t *testing.T, fake *fakeDrive) *Provider {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewProvider(staticClients{client: srv.Client()}, option.WithEndpoint(srv.URL+"/drive/v3/"))
}

func testNote() model.Note {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return model.Note{
		ID:         "note-1",
		Title:      "Hello",
		Content:    "# Hello\n\nworld",
		FolderID:   model.ReservedFolderID,
		SourceType: model.SourceText,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestProvider_ExportCreatesFolderAndFile(t *testing.T) {
	fake := &fakeDrive{}
	p := newTestProvider(t, fake)

	res, err := p.Export(context.Background(), "user1", testNote())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !res.Created || res.FileID != "file-created" || res.FolderID != "folder-created" {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Name != "Hello" {
		t.Errorf("expected name Hello, got %q", res.Name)
	}
	if len(fake.created) != 2 || fake.created[0] != "folder" || fake.created[1] != "file" {
		t.Errorf("expected folder then file creation, got %v", fake.created)
	}
	if len(fake.uploads) != 1 || !strings.Contains(fake.uploads[0], "title: Hello") {
		t.Errorf("upload should carry front matter, got %v", fake.uploads)
	}
}

func TestProvider_ExportUpdatesExistingFile(t *testing.T) {
	fake := &fakeDrive{rootFolderID: "folder-existing", noteFileID: "file-existing"}
	p := newTestProvider(t, fake)

	res, err := p.Export(context.Background(), "user1", testNote())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if res.Created {
		t.Error("expected existing file to be updated")
	}
	if res.FolderID != "folder-existing" || res.FileID != "file-existing" {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(fake.created) != 0 {
		t.Errorf("nothing should be created, got %v", fake.created)
	}
	if len(fake.updated) != 1 || fake.updated[0] != "file-existing" {
		t.Errorf("expected one update of file-existing, got %v", fake.updated)
	}
}

func TestProvider_ExportNotLinked(t *testing.T) {
	p := NewProvider(staticClients{err: errors.New("no refresh token")})

	_, err := p.Export(context.Background(), "user1", testNote())
	if !errors.Is(err, ErrNotLinked) {
		t.Fatalf("expected ErrNotLinked, got %v", err)
	}
}
