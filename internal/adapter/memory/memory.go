package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jun/notabl/backend/internal/adapter"
	"github.com/jun/notabl/backend/internal/model"
)

// demoTTL bounds how long demo users' items live in DynamoDB.
const demoTTL = 60 * time.Minute

// MemoryAdapter implements adapter.StorageAdapter.
// If client is nil, it uses an in-memory map (for tests and local runs).
// If client is set, it uses DynamoDB (for persistence).
type MemoryAdapter struct {
	store  itemStore
	userID string

	// serializes read-modify-write sequences issued through this adapter
	mu sync.Mutex

	now func() time.Time
}

// NewMemoryAdapter creates an adapter for userID. A nil client selects the in-memory map.
func NewMemoryAdapter(client DynamoAPI, tableName string, userID string) *MemoryAdapter {
	var store itemStore
	if client == nil {
		store = newMapStore()
	} else {
		store = &dynamoStore{client: client, tableName: tableName}
	}
	return &MemoryAdapter{store: store, userID: userID, now: time.Now}
}

func (m *MemoryAdapter) ttl() int64 {
	if model.IsDemoUser(m.userID) {
		return m.now().Add(demoTTL).Unix()
	}
	return 0
}

func (m *MemoryAdapter) noteItem(n model.Note) Item {
	return Item{
		PK:         itemKey(m.userID, n.ID),
		UserID:     m.userID,
		Kind:       kindNote,
		ID:         n.ID,
		Name:       n.Title,
		Content:    n.Content,
		Summary:    n.Summary,
		FolderID:   n.FolderID,
		SourceType: string(n.SourceType),
		SourceURL:  n.SourceURL,
		Starred:    n.Starred,
		ETag:       n.ETag,
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.UpdatedAt,
		TTL:        m.ttl(),
	}
}

func (m *MemoryAdapter) folderItem(f model.Folder) Item {
	return Item{
		PK:        itemKey(m.userID, f.ID),
		UserID:    m.userID,
		Kind:      kindFolder,
		ID:        f.ID,
		Name:      f.Name,
		ParentID:  f.ParentID,
		ETag:      adapter.NewETag(),
		CreatedAt: f.CreatedAt,
		UpdatedAt: m.now(),
		TTL:       m.ttl(),
	}
}

func toNote(item Item) model.Note {
	return model.Note{
		ID:         item.ID,
		UserID:     item.UserID,
		Title:      item.Name,
		Content:    item.Content,
		Summary:    item.Summary,
		FolderID:   item.FolderID,
		SourceType: model.SourceType(item.SourceType),
		SourceURL:  item.SourceURL,
		Starred:    item.Starred,
		ETag:       item.ETag,
		CreatedAt:  item.CreatedAt,
		UpdatedAt:  item.UpdatedAt,
	}
}

func toFolder(item Item) model.Folder {
	return model.Folder{
		ID:        item.ID,
		UserID:    item.UserID,
		Name:      item.Name,
		ParentID:  item.ParentID,
		CreatedAt: item.CreatedAt,
	}
}

func (m *MemoryAdapter) getItem(ctx context.Context, id, kind string) (*Item, error) {
	item, err := m.store.get(ctx, itemKey(m.userID, id))
	if err != nil {
		return nil, err
	}
	if item.Kind != kind {
		return nil, adapter.ErrNotFound
	}
	return item, nil
}

func (m *MemoryAdapter) scanKind(ctx context.Context, kind string) ([]Item, error) {
	items, err := m.store.scan(ctx, m.userID)
	if err != nil {
		return nil, err
	}
	filtered := items[:0]
	for _, item := range items {
		if item.Kind == kind {
			filtered = append(filtered, item)
		}
	}
	return filtered, nil
}

func (m *MemoryAdapter) allNotes(ctx context.Context) ([]model.Note, error) {
	items, err := m.scanKind(ctx, kindNote)
	if err != nil {
		return nil, err
	}
	notes := make([]model.Note, 0, len(items))
	for _, item := range items {
		notes = append(notes, toNote(item))
	}
	return notes, nil
}

func (m *MemoryAdapter) folderExists(ctx context.Context, folderID string) error {
	if _, err := m.getItem(ctx, folderID, kindFolder); err != nil {
		if errors.Is(err, adapter.ErrNotFound) {
			return fmt.Errorf("folder %s: %w", folderID, adapter.ErrNotFound)
		}
		return err
	}
	return nil
}

func (m *MemoryAdapter) EnsureReservedFolder(ctx context.Context) (*model.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, err := m.getItem(ctx, model.ReservedFolderID, kindFolder)
	if err == nil {
		f := toFolder(*item)
		return &f, nil
	}
	if !errors.Is(err, adapter.ErrNotFound) {
		return nil, err
	}

	f := adapter.ReservedFolder(m.userID, m.now())
	if err := m.store.put(ctx, m.folderItem(f), ""); err != nil {
		return nil, err
	}
	return &f, nil
}

func (m *MemoryAdapter) ListFolders(ctx context.Context) ([]model.Folder, error) {
	items, err := m.scanKind(ctx, kindFolder)
	if err != nil {
		return nil, err
	}
	folders := make([]model.Folder, 0, len(items))
	for _, item := range items {
		folders = append(folders, toFolder(item))
	}
	adapter.SortFolders(folders)
	return folders, nil
}

func (m *MemoryAdapter) GetFolder(ctx context.Context, folderID string) (*model.Folder, error) {
	item, err := m.getItem(ctx, folderID, kindFolder)
	if err != nil {
		return nil, err
	}
	f := toFolder(*item)
	return &f, nil
}

func (m *MemoryAdapter) CreateFolder(ctx context.Context, name string, parentID string) (*model.Folder, error) {
	if err := adapter.ValidateFolderName(name); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if parentID != "" {
		if err := m.folderExists(ctx, parentID); err != nil {
			return nil, err
		}
	}

	f := model.Folder{
		ID:        adapter.NewFolderID(),
		UserID:    m.userID,
		Name:      name,
		ParentID:  parentID,
		CreatedAt: m.now(),
	}
	if err := m.store.put(ctx, m.folderItem(f), ""); err != nil {
		return nil, err
	}
	return &f, nil
}

func (m *MemoryAdapter) RenameFolder(ctx context.Context, folderID string, name string) (*model.Folder, error) {
	if err := adapter.ValidateFolderName(name); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	item, err := m.getItem(ctx, folderID, kindFolder)
	if err != nil {
		return nil, err
	}
	f := toFolder(*item)
	f.Name = name
	if err := m.store.put(ctx, m.folderItem(f), ""); err != nil {
		return nil, err
	}
	return &f, nil
}

func (m *MemoryAdapter) DeleteFolder(ctx context.Context, folderID string) error {
	if folderID == model.ReservedFolderID {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	item, err := m.getItem(ctx, folderID, kindFolder)
	if err != nil {
		return err
	}
	deleted := toFolder(*item)

	items, err := m.store.scan(ctx, m.userID)
	if err != nil {
		return err
	}

	now := m.now()
	for _, it := range items {
		switch {
		case it.Kind == kindNote && it.FolderID == folderID:
			n := toNote(it)
			n.FolderID = model.ReservedFolderID
			n.UpdatedAt = now
			n.ETag = adapter.NewETag()
			if err := m.store.put(ctx, m.noteItem(n), ""); err != nil {
				return fmt.Errorf("failed to move note %s: %w", n.ID, err)
			}
		case it.Kind == kindFolder && it.ParentID == folderID:
			child := toFolder(it)
			child.ParentID = deleted.ParentID
			if err := m.store.put(ctx, m.folderItem(child), ""); err != nil {
				return fmt.Errorf("failed to re-parent folder %s: %w", child.ID, err)
			}
		}
	}

	return m.store.remove(ctx, item.PK)
}

func (m *MemoryAdapter) ListNotes(ctx context.Context, folderID string) ([]model.Note, error) {
	if folderID != "" && folderID != model.ReservedFolderID {
		if err := m.folderExists(ctx, folderID); err != nil {
			return nil, err
		}
	}

	all, err := m.allNotes(ctx)
	if err != nil {
		return nil, err
	}

	notes := []model.Note{}
	for _, n := range all {
		if adapter.InFolder(n, folderID) {
			notes = append(notes, n)
		}
	}
	adapter.SortNotes(notes)
	return notes, nil
}

func (m *MemoryAdapter) GetNote(ctx context.Context, noteID string) (*model.Note, error) {
	item, err := m.getItem(ctx, noteID, kindNote)
	if err != nil {
		return nil, err
	}
	n := toNote(*item)
	return &n, nil
}

func (m *MemoryAdapter) CreateNote(ctx context.Context, input adapter.NoteInput) (*model.Note, error) {
	in, err := adapter.NormalizeNoteInput(input)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.folderExists(ctx, in.FolderID); err != nil {
		return nil, err
	}

	n := adapter.NewNote(m.userID, in, m.now())
	if err := m.store.put(ctx, m.noteItem(n), ""); err != nil {
		return nil, err
	}
	return &n, nil
}

func (m *MemoryAdapter) SaveNote(ctx context.Context, noteID string, patch adapter.NotePatch, etag string) (*model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, err := m.getItem(ctx, noteID, kindNote)
	if err != nil {
		return nil, err
	}
	if etag != "" && item.ETag != etag {
		return nil, adapter.ErrPreconditionFailed
	}

	n := toNote(*item)
	if err := adapter.ApplyPatch(&n, patch, m.now()); err != nil {
		return nil, err
	}
	if patch.FolderID != nil {
		if err := m.folderExists(ctx, n.FolderID); err != nil {
			return nil, err
		}
	}

	// The conditional put catches writers outside this process.
	if err := m.store.put(ctx, m.noteItem(n), item.ETag); err != nil {
		return nil, err
	}
	return &n, nil
}

func (m *MemoryAdapter) DeleteNote(ctx context.Context, noteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, err := m.getItem(ctx, noteID, kindNote)
	if err != nil {
		return err
	}
	return m.store.remove(ctx, item.PK)
}

func (m *MemoryAdapter) DuplicateNote(ctx context.Context, noteID string) (*model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, err := m.getItem(ctx, noteID, kindNote)
	if err != nil {
		return nil, err
	}
	src := toNote(*item)

	in := adapter.NoteInput{
		Title:      adapter.CopyTitle(src.Title),
		Content:    src.Content,
		Summary:    src.Summary,
		FolderID:   src.FolderID,
		SourceType: src.SourceType,
		SourceURL:  src.SourceURL,
	}
	if err := adapter.ValidateTitle(in.Title); err != nil {
		in.Title = src.Title
	}

	n := adapter.NewNote(m.userID, in, m.now())
	if err := m.store.put(ctx, m.noteItem(n), ""); err != nil {
		return nil, err
	}
	return &n, nil
}

func (m *MemoryAdapter) SetStarred(ctx context.Context, noteID string, starred bool) (*model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, err := m.getItem(ctx, noteID, kindNote)
	if err != nil {
		return nil, err
	}
	n := toNote(*item)
	n.Starred = starred
	n.ETag = adapter.NewETag()
	if err := m.store.put(ctx, m.noteItem(n), item.ETag); err != nil {
		return nil, err
	}
	return &n, nil
}

func (m *MemoryAdapter) ListStarred(ctx context.Context) ([]model.Note, error) {
	all, err := m.allNotes(ctx)
	if err != nil {
		return nil, err
	}
	notes := []model.Note{}
	for _, n := range all {
		if n.Starred {
			notes = append(notes, n)
		}
	}
	adapter.SortNotes(notes)
	return notes, nil
}

// SearchNotes matches title or content. A folder scope includes its descendant folders.
func (m *MemoryAdapter) SearchNotes(ctx context.Context, query string, folderID string) ([]model.Note, error) {
	items, err := m.store.scan(ctx, m.userID)
	if err != nil {
		return nil, err
	}

	parents := make(map[string]string)
	for _, item := range items {
		if item.Kind == kindFolder {
			parents[item.ID] = item.ParentID
		}
	}

	notes := []model.Note{}
	for _, item := range items {
		if item.Kind != kindNote {
			continue
		}
		n := toNote(item)
		if folderID != "" && folderID != model.ReservedFolderID && !adapter.IsDescendant(n.FolderID, folderID, parents) {
			continue
		}
		if strings.TrimSpace(query) != "" && !adapter.MatchesQuery(n, query) {
			continue
		}
		notes = append(notes, n)
	}
	adapter.SortNotes(notes)
	return notes, nil
}

func (m *MemoryAdapter) CountNotes(ctx context.Context) (int, error) {
	items, err := m.scanKind(ctx, kindNote)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}
