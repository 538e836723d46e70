package repos

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/claimsage/claimsage-backend/internal/platform/dbctx"
	"github.com/claimsage/claimsage-backend/internal/platform/logger"
	"github.com/claimsage/claimsage-backend/internal/types"
)

type DocumentRepo interface {
	Create(dbc dbctx.Context, docs []*types.Document) ([]*types.Document, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error)
	ListByUserID(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Document, error)
	// ListCompletedByUserID returns analyzed documents, most recently uploaded first.
	ListCompletedByUserID(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Document, error)
	MarkProcessing(dbc dbctx.Context, id uuid.UUID) error
	MarkCompleted(dbc dbctx.Context, id uuid.UUID, analysis string, embedModel string) error
	MarkError(dbc dbctx.Context, id uuid.UUID, message string) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: baseLog.With("repo", "DocumentRepo")}
}

func (r *documentRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *documentRepo) Create(dbc dbctx.Context, docs []*types.Document) ([]*types.Document, error) {
	if len(docs) == 0 {
		return []*types.Document{}, nil
	}
	if err := r.tx(dbc).WithContext(dbc.Context()).Create(docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *documentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error) {
	var doc types.Document
	err := r.tx(dbc).WithContext(dbc.Context()).Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepo) ListByUserID(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Document, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var docs []*types.Document
	if err := r.tx(dbc).WithContext(dbc.Context()).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *documentRepo) ListCompletedByUserID(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Document, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	var docs []*types.Document
	if err := r.tx(dbc).WithContext(dbc.Context()).
		Where("user_id = ? AND status = ?", userID, types.DocStatusCompleted).
		Order("created_at DESC").
		Limit(limit).
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *documentRepo) MarkProcessing(dbc dbctx.Context, id uuid.UUID) error {
	return r.tx(dbc).WithContext(dbc.Context()).
		Model(&types.Document{}).
		Where("id = ? AND status = ?", id, types.DocStatusPending).
		Updates(map[string]any{
			"status":     types.DocStatusProcessing,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *documentRepo) MarkCompleted(dbc dbctx.Context, id uuid.UUID, analysis string, embedModel string) error {
	return r.tx(dbc).WithContext(dbc.Context()).
		Model(&types.Document{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        types.DocStatusCompleted,
			"analysis":      analysis,
			"embed_model":   embedModel,
			"error_message": "",
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (r *documentRepo) MarkError(dbc dbctx.Context, id uuid.UUID, message string) error {
	return r.tx(dbc).WithContext(dbc.Context()).
		Model(&types.Document{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        types.DocStatusError,
			"error_message": message,
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (r *documentRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	return r.tx(dbc).WithContext(dbc.Context()).
		Where("id = ?", id).
		Delete(&types.Document{}).Error
}
