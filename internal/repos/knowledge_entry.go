package repos

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/claimsage/claimsage-backend/internal/platform/dbctx"
	"github.com/claimsage/claimsage-backend/internal/platform/logger"
	"github.com/claimsage/claimsage-backend/internal/types"
)

type KnowledgeEntryRepo interface {
	// Upsert is idempotent on id: content/metadata are refreshed, the stored
	// embedding is replaced wholesale (never partially mutated).
	Upsert(dbc dbctx.Context, entries []*types.KnowledgeEntry) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.KnowledgeEntry, error)
	// ListVisible returns embedded entries visible to the owner: the owner's
	// own entries plus global ones, restricted to the embedding-model tag.
	ListVisible(dbc dbctx.Context, ownerUserID uuid.UUID, embedModel string) ([]*types.KnowledgeEntry, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type knowledgeEntryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKnowledgeEntryRepo(db *gorm.DB, baseLog *logger.Logger) KnowledgeEntryRepo {
	return &knowledgeEntryRepo{db: db, log: baseLog.With("repo", "KnowledgeEntryRepo")}
}

func (r *knowledgeEntryRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *knowledgeEntryRepo) Upsert(dbc dbctx.Context, entries []*types.KnowledgeEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.tx(dbc).WithContext(dbc.Context()).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "content", "embedding", "embed_model", "metadata", "updated_at"}),
		}).
		Create(entries).Error
}

func (r *knowledgeEntryRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.KnowledgeEntry, error) {
	var entry types.KnowledgeEntry
	err := r.tx(dbc).WithContext(dbc.Context()).Where("id = ?", id).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *knowledgeEntryRepo) ListVisible(dbc dbctx.Context, ownerUserID uuid.UUID, embedModel string) ([]*types.KnowledgeEntry, error) {
	var results []*types.KnowledgeEntry
	q := r.tx(dbc).WithContext(dbc.Context()).
		Where("(owner_user_id = ? OR owner_user_id IS NULL)", ownerUserID).
		Where("embedding IS NOT NULL")
	if embedModel != "" {
		q = q.Where("embed_model = ?", embedModel)
	}
	if err := q.
		Order("created_at ASC, id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *knowledgeEntryRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	return r.tx(dbc).WithContext(dbc.Context()).
		Where("id = ?", id).
		Delete(&types.KnowledgeEntry{}).Error
}
