package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/jun/notabl/backend/internal/adapter"
)

func TestCheckConflict(t *testing.T) {
	tests := []struct {
		name         string
		localEtag    string
		remoteEtag   string
		wantConflict bool
	}{
		{
			name:         "same ETag, no conflict",
			localEtag:    "abc123",
			remoteEtag:   "abc123",
			wantConflict: false,
		},
		{
			name:         "different ETag, conflict",
			localEtag:    "abc123",
			remoteEtag:   "def456",
			wantConflict: true,
		},
		{
			name:         "only local empty, conflict",
			localEtag:    "",
			remoteEtag:   "abc123",
			wantConflict: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckConflict(tt.localEtag, tt.remoteEtag)
			if got != tt.wantConflict {
				t.Errorf("CheckConflict(%q, %q) = %v, want %v",
					tt.localEtag, tt.remoteEtag, got, tt.wantConflict)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	note, _ := store.CreateNote(ctx, adapter.NoteInput{Title: "n", Content: "v1"})

	res, err := Check(ctx, store, note.ID, note.ETag)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if res.Conflict || res.Note != nil {
		t.Errorf("expected no conflict, got %+v", res)
	}

	res, err = Check(ctx, store, note.ID, "old-etag")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !res.Conflict || res.Note == nil || res.ETag != note.ETag {
		t.Errorf("expected conflict with current note, got %+v", res)
	}

	if _, err := Check(ctx, store, "note-missing", "x"); !errors.Is(err, adapter.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
