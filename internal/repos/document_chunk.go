package repos

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/claimsage/claimsage-backend/internal/platform/dbctx"
	"github.com/claimsage/claimsage-backend/internal/platform/logger"
	"github.com/claimsage/claimsage-backend/internal/types"
)

type DocumentChunkRepo interface {
	// Upsert is idempotent on (document_id, chunk_index): re-running with the
	// same chunk leaves the existing row (and its embedding) untouched.
	Upsert(dbc dbctx.Context, chunks []*types.DocumentChunk) error
	GetByDocumentID(dbc dbctx.Context, documentID uuid.UUID) ([]*types.DocumentChunk, error)
	// GetEmbeddedByUserID returns all chunks with embeddings across the user's
	// documents, restricted to the given embedding-model tag.
	GetEmbeddedByUserID(dbc dbctx.Context, userID uuid.UUID, embedModel string) ([]*types.DocumentChunk, error)
	DeleteByDocumentID(dbc dbctx.Context, documentID uuid.UUID) error
}

type documentChunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentChunkRepo(db *gorm.DB, baseLog *logger.Logger) DocumentChunkRepo {
	return &documentChunkRepo{db: db, log: baseLog.With("repo", "DocumentChunkRepo")}
}

func (r *documentChunkRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *documentChunkRepo) Upsert(dbc dbctx.Context, chunks []*types.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	// Keep batches small because Text is large.
	const batchSize = 100
	return r.tx(dbc).WithContext(dbc.Context()).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}, {Name: "chunk_index"}},
			DoNothing: true,
		}).
		CreateInBatches(chunks, batchSize).Error
}

func (r *documentChunkRepo) GetByDocumentID(dbc dbctx.Context, documentID uuid.UUID) ([]*types.DocumentChunk, error) {
	var results []*types.DocumentChunk
	if err := r.tx(dbc).WithContext(dbc.Context()).
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *documentChunkRepo) GetEmbeddedByUserID(dbc dbctx.Context, userID uuid.UUID, embedModel string) ([]*types.DocumentChunk, error) {
	var results []*types.DocumentChunk
	q := r.tx(dbc).WithContext(dbc.Context()).
		Preload("Document").
		Joins("JOIN document ON document.id = document_chunk.document_id").
		Where("document.user_id = ?", userID).
		Where("document_chunk.embedding IS NOT NULL")
	if embedModel != "" {
		q = q.Where("document_chunk.embed_model = ?", embedModel)
	}
	if err := q.
		Order("document_chunk.created_at ASC, document_chunk.id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *documentChunkRepo) DeleteByDocumentID(dbc dbctx.Context, documentID uuid.UUID) error {
	return r.tx(dbc).WithContext(dbc.Context()).
		Where("document_id = ?", documentID).
		Delete(&types.DocumentChunk{}).Error
}
