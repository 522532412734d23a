package sync

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jun/notabl/backend/internal/adapter"
)

// OfflineChange represents a change made while offline.
type OfflineChange struct {
	NoteID    string `json:"noteId"`
	Content   string `json:"content"`
	BaseETag  string `json:"baseEtag"`
	Timestamp int64  `json:"timestamp"`
}

// NewOfflineChange creates a new offline change against the given base version.
func NewOfflineChange(noteID, content, baseETag string) OfflineChange {
	return OfflineChange{
		NoteID:    noteID,
		Content:   content,
		BaseETag:  baseETag,
		Timestamp: time.Now().Unix(),
	}
}

// Outcome is the per-change result of a push.
type Outcome string

const (
	Applied  Outcome = "applied"
	Conflict Outcome = "conflict"
	Missing  Outcome = "missing"
	Invalid  Outcome = "invalid"
)

// PushResult is reported for every pushed change.
type PushResult struct {
	NoteID string  `json:"noteId"`
	Status Outcome `json:"status"`
	ETag   string  `json:"etag,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Apply writes offline changes oldest first. Each change is saved against its
// base etag; stale, missing and invalid changes are reported, not applied.
// Only storage failures abort the push.
func Apply(ctx context.Context, store adapter.StorageAdapter, changes []OfflineChange) ([]PushResult, error) {
	ordered := make([]OfflineChange, len(changes))
	copy(ordered, changes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp < ordered[j].Timestamp
	})

	results := make([]PushResult, 0, len(ordered))
	for _, ch := range ordered {
		content := ch.Content
		note, err := store.SaveNote(ctx, ch.NoteID, adapter.NotePatch{Content: &content}, ch.BaseETag)
		switch {
		case err == nil:
			results = append(results, PushResult{NoteID: ch.NoteID, Status: Applied, ETag: note.ETag})
		case errors.Is(err, adapter.ErrPreconditionFailed):
			res := PushResult{NoteID: ch.NoteID, Status: Conflict}
			if current, getErr := store.GetNote(ctx, ch.NoteID); getErr == nil {
				res.ETag = current.ETag
			}
			results = append(results, res)
		case errors.Is(err, adapter.ErrNotFound):
			results = append(results, PushResult{NoteID: ch.NoteID, Status: Missing})
		case errors.Is(err, adapter.ErrInvalidInput):
			results = append(results, PushResult{NoteID: ch.NoteID, Status: Invalid, Error: err.Error()})
		default:
			return results, err
		}
		log.Debug().Str("note_id", ch.NoteID).Str("status", string(results[len(results)-1].Status)).Msg("offline change pushed")
	}
	return results, nil
}
