// Package postgres stores notes and folders in PostgreSQL through GORM.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/jun/notabl/backend/internal/adapter"
	"github.com/jun/notabl/backend/internal/model"
)

// Provider implements adapter.StorageProvider on a PostgreSQL database.
type Provider struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to the database at dsn.
func Open(dsn string) (*Provider, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewProvider(db), nil
}

// NewProvider wraps an open GORM connection.
func NewProvider(db *gorm.DB) *Provider {
	return &Provider{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate creates or updates the notes and folders tables.
func (p *Provider) Migrate(ctx context.Context) error {
	if err := p.db.WithContext(ctx).AutoMigrate(&FolderRecord{}, &NoteRecord{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	log.Info().Msg("database schema migrated")
	return nil
}

// Close closes the underlying connection pool.
func (p *Provider) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *Provider) GetAdapter(ctx context.Context, userID string) (adapter.StorageAdapter, error) {
	a := &Adapter{db: p.db, userID: userID, now: p.now}
	if _, err := a.EnsureReservedFolder(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure reserved folder: %w", err)
	}
	return a, nil
}

// Adapter is the per-user view of the database.
type Adapter struct {
	db     *gorm.DB
	userID string
	now    func() time.Time
}

func (a *Adapter) scoped(ctx context.Context) *gorm.DB {
	return a.db.WithContext(ctx).Where("user_id = ?", a.userID)
}

func (a *Adapter) folderExists(tx *gorm.DB, folderID string) error {
	var count int64
	if err := tx.Model(&FolderRecord{}).Where("user_id = ? AND id = ?", a.userID, folderID).Count(&count).Error; err != nil {
		return translate(err, "check folder")
	}
	if count == 0 {
		return fmt.Errorf("folder %s: %w", folderID, adapter.ErrNotFound)
	}
	return nil
}

func (a *Adapter) getNote(tx *gorm.DB, noteID string) (*NoteRecord, error) {
	var rec NoteRecord
	if err := tx.Where("user_id = ? AND id = ?", a.userID, noteID).Take(&rec).Error; err != nil {
		return nil, translate(err, "get note")
	}
	return &rec, nil
}

func (a *Adapter) EnsureReservedFolder(ctx context.Context) (*model.Folder, error) {
	rec := folderRecord(adapter.ReservedFolder(a.userID, a.now()))
	err := a.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec).Error
	if err != nil {
		return nil, translate(err, "create reserved folder")
	}
	return a.GetFolder(ctx, model.ReservedFolderID)
}

func (a *Adapter) ListFolders(ctx context.Context) ([]model.Folder, error) {
	var records []FolderRecord
	if err := a.scoped(ctx).Find(&records).Error; err != nil {
		return nil, translate(err, "list folders")
	}
	folders := make([]model.Folder, 0, len(records))
	for _, r := range records {
		folders = append(folders, r.toFolder())
	}
	adapter.SortFolders(folders)
	return folders, nil
}

func (a *Adapter) GetFolder(ctx context.Context, folderID string) (*model.Folder, error) {
	var rec FolderRecord
	if err := a.scoped(ctx).Where("id = ?", folderID).Take(&rec).Error; err != nil {
		return nil, translate(err, "get folder")
	}
	f := rec.toFolder()
	return &f, nil
}

func (a *Adapter) CreateFolder(ctx context.Context, name string, parentID string) (*model.Folder, error) {
	if err := adapter.ValidateFolderName(name); err != nil {
		return nil, err
	}

	f := model.Folder{
		ID:        adapter.NewFolderID(),
		UserID:    a.userID,
		Name:      name,
		ParentID:  parentID,
		CreatedAt: a.now(),
	}
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if parentID != "" {
			if err := a.folderExists(tx, parentID); err != nil {
				return err
			}
		}
		rec := folderRecord(f)
		return translate(tx.Create(&rec).Error, "create folder")
	})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (a *Adapter) RenameFolder(ctx context.Context, folderID string, name string) (*model.Folder, error) {
	if err := adapter.ValidateFolderName(name); err != nil {
		return nil, err
	}
	res := a.scoped(ctx).Model(&FolderRecord{}).Where("id = ?", folderID).Update("name", name)
	if res.Error != nil {
		return nil, translate(res.Error, "rename folder")
	}
	if res.RowsAffected == 0 {
		return nil, adapter.ErrNotFound
	}
	return a.GetFolder(ctx, folderID)
}

func (a *Adapter) DeleteFolder(ctx context.Context, folderID string) error {
	if folderID == model.ReservedFolderID {
		return nil
	}

	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec FolderRecord
		if err := tx.Where("user_id = ? AND id = ?", a.userID, folderID).Take(&rec).Error; err != nil {
			return translate(err, "get folder")
		}

		err := tx.Model(&NoteRecord{}).
			Where("user_id = ? AND folder_id = ?", a.userID, folderID).
			Updates(map[string]any{
				"folder_id":  model.ReservedFolderID,
				"updated_at": a.now(),
				"etag":       gorm.Expr("md5(random()::text || id)"),
			}).Error
		if err != nil {
			return translate(err, "move notes")
		}

		err = tx.Model(&FolderRecord{}).
			Where("user_id = ? AND parent_id = ?", a.userID, folderID).
			Update("parent_id", rec.ParentID).Error
		if err != nil {
			return translate(err, "re-parent folders")
		}

		return translate(tx.Delete(&rec).Error, "delete folder")
	})
}

func (a *Adapter) ListNotes(ctx context.Context, folderID string) ([]model.Note, error) {
	q := a.scoped(ctx)
	if folderID != "" && folderID != model.ReservedFolderID {
		if err := a.folderExists(a.db.WithContext(ctx), folderID); err != nil {
			return nil, err
		}
		q = q.Where("folder_id = ?", folderID)
	}

	var records []NoteRecord
	if err := q.Order("updated_at DESC, id").Find(&records).Error; err != nil {
		return nil, translate(err, "list notes")
	}
	return toNotes(records), nil
}

func (a *Adapter) GetNote(ctx context.Context, noteID string) (*model.Note, error) {
	rec, err := a.getNote(a.db.WithContext(ctx), noteID)
	if err != nil {
		return nil, err
	}
	n := rec.toNote()
	return &n, nil
}

func (a *Adapter) CreateNote(ctx context.Context, input adapter.NoteInput) (*model.Note, error) {
	in, err := adapter.NormalizeNoteInput(input)
	if err != nil {
		return nil, err
	}

	n := adapter.NewNote(a.userID, in, a.now())
	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := a.folderExists(tx, n.FolderID); err != nil {
			return err
		}
		rec := noteRecord(n)
		return translate(tx.Create(&rec).Error, "create note")
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (a *Adapter) SaveNote(ctx context.Context, noteID string, patch adapter.NotePatch, etag string) (*model.Note, error) {
	var saved model.Note
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := a.getNote(tx, noteID)
		if err != nil {
			return err
		}
		if etag != "" && rec.ETag != etag {
			return adapter.ErrPreconditionFailed
		}

		n := rec.toNote()
		if err := adapter.ApplyPatch(&n, patch, a.now()); err != nil {
			return err
		}
		if patch.FolderID != nil {
			if err := a.folderExists(tx, n.FolderID); err != nil {
				return err
			}
		}

		updated := noteRecord(n)
		res := tx.Model(&NoteRecord{}).
			Where("user_id = ? AND id = ? AND etag = ?", a.userID, noteID, rec.ETag).
			Select("title", "content", "summary", "folder_id", "etag", "updated_at").
			Updates(&updated)
		if res.Error != nil {
			return translate(res.Error, "save note")
		}
		if res.RowsAffected == 0 {
			return adapter.ErrPreconditionFailed
		}
		saved = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (a *Adapter) DeleteNote(ctx context.Context, noteID string) error {
	res := a.scoped(ctx).Where("id = ?", noteID).Delete(&NoteRecord{})
	if res.Error != nil {
		return translate(res.Error, "delete note")
	}
	if res.RowsAffected == 0 {
		return adapter.ErrNotFound
	}
	return nil
}

func (a *Adapter) DuplicateNote(ctx context.Context, noteID string) (*model.Note, error) {
	src, err := a.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}

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

	n := adapter.NewNote(a.userID, in, a.now())
	rec := noteRecord(n)
	if err := a.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, translate(err, "duplicate note")
	}
	return &n, nil
}

func (a *Adapter) SetStarred(ctx context.Context, noteID string, starred bool) (*model.Note, error) {
	res := a.scoped(ctx).Model(&NoteRecord{}).Where("id = ?", noteID).
		Updates(map[string]any{"starred": starred, "etag": adapter.NewETag()})
	if res.Error != nil {
		return nil, translate(res.Error, "star note")
	}
	if res.RowsAffected == 0 {
		return nil, adapter.ErrNotFound
	}
	return a.GetNote(ctx, noteID)
}

func (a *Adapter) ListStarred(ctx context.Context) ([]model.Note, error) {
	var records []NoteRecord
	if err := a.scoped(ctx).Where("starred = ?", true).Order("updated_at DESC, id").Find(&records).Error; err != nil {
		return nil, translate(err, "list starred")
	}
	return toNotes(records), nil
}

// SearchNotes matches title or content. A folder scope includes its descendant folders.
func (a *Adapter) SearchNotes(ctx context.Context, query string, folderID string) ([]model.Note, error) {
	q := a.scoped(ctx)
	if query = strings.TrimSpace(query); query != "" {
		pattern := "%" + escapeLike(query) + "%"
		q = q.Where("(title ILIKE ? OR content ILIKE ?)", pattern, pattern)
	}

	if folderID != "" && folderID != model.ReservedFolderID {
		scope, err := a.folderScope(ctx, folderID)
		if err != nil {
			return nil, err
		}
		if len(scope) == 0 {
			return []model.Note{}, nil
		}
		q = q.Where("folder_id IN ?", scope)
	}

	var records []NoteRecord
	if err := q.Order("updated_at DESC, id").Find(&records).Error; err != nil {
		return nil, translate(err, "search notes")
	}
	return toNotes(records), nil
}

// folderScope returns folderID and the IDs of every folder beneath it.
func (a *Adapter) folderScope(ctx context.Context, folderID string) ([]string, error) {
	var records []FolderRecord
	if err := a.scoped(ctx).Select("id", "parent_id").Find(&records).Error; err != nil {
		return nil, translate(err, "list folders")
	}
	parents := make(map[string]string, len(records))
	for _, r := range records {
		parents[r.ID] = r.ParentID
	}

	scope := []string{}
	for id := range parents {
		if adapter.IsDescendant(id, folderID, parents) {
			scope = append(scope, id)
		}
	}
	return scope, nil
}

func (a *Adapter) CountNotes(ctx context.Context) (int, error) {
	var count int64
	if err := a.scoped(ctx).Model(&NoteRecord{}).Count(&count).Error; err != nil {
		return 0, translate(err, "count notes")
	}
	return int(count), nil
}
