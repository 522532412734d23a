package sync

import (
	"context"

	"github.com/jun/notabl/backend/internal/adapter"
	"github.com/jun/notabl/backend/internal/model"
)

// CheckConflict compares local and remote ETag values.
// Returns true if they are different (conflict exists).
func CheckConflict(localEtag, remoteEtag string) bool {
	return localEtag != remoteEtag
}

// CheckResult reports whether a client's copy of a note is stale.
type CheckResult struct {
	NoteID   string      `json:"noteId"`
	Conflict bool        `json:"conflict"`
	ETag     string      `json:"etag"`
	Note     *model.Note `json:"note,omitempty"`
}

// Check compares the client's etag with the stored note. On conflict the
// current note is included so the client can merge.
func Check(ctx context.Context, store adapter.StorageAdapter, noteID, etag string) (*CheckResult, error) {
	note, err := store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	res := &CheckResult{
		NoteID:   noteID,
		Conflict: CheckConflict(etag, note.ETag),
		ETag:     note.ETag,
	}
	if res.Conflict {
		res.Note = note
	}
	return res, nil
}
