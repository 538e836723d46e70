package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DocumentChunk is one bounded slice of a document's extracted text with its
// embedding vector. Chunk indices for a document are contiguous 0..N-1 where
// N == TotalChunks; the embedding is written once and never updated in place.
type DocumentChunk struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID  uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:idx_document_chunk_ordinal,priority:1" json:"document_id"`
	Document    *Document      `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`
	ChunkIndex  int            `gorm:"column:chunk_index;not null;uniqueIndex:idx_document_chunk_ordinal,priority:2" json:"chunk_index"`
	TotalChunks int            `gorm:"column:total_chunks;not null" json:"total_chunks"`
	Text        string         `gorm:"column:text;not null" json:"text"`
	Embedding   datatypes.JSON `gorm:"type:jsonb;column:embedding" json:"embedding,omitempty"`
	EmbedModel  string         `gorm:"column:embed_model" json:"embed_model,omitempty"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
}

func (DocumentChunk) TableName() string { return "document_chunk" }

func (c *DocumentChunk) Vector() []float32 {
	return DecodeVector(c.Embedding)
}
