package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// KnowledgeMeta is the declared shape of knowledge-entry metadata. Unknown
// keys survive round-trips through Extra instead of being silently dropped.
type KnowledgeMeta struct {
	Tags      []string       `json:"tags,omitempty"`
	Source    string         `json:"source,omitempty"`
	Category  string         `json:"category,omitempty"`
	WordCount int            `json:"word_count,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

func (m KnowledgeMeta) ToJSON() datatypes.JSON {
	b, err := json.Marshal(m)
	if err != nil {
		return datatypes.JSON([]byte(`{}`))
	}
	return datatypes.JSON(b)
}

func KnowledgeMetaFromJSON(raw datatypes.JSON) KnowledgeMeta {
	var m KnowledgeMeta
	if len(raw) == 0 {
		return m
	}
	_ = json.Unmarshal(raw, &m)
	return m
}

// KnowledgeEntry is a curated unit of trained knowledge, distinct from
// per-document chunks. OwnerUserID nil means global (visible to all users).
type KnowledgeEntry struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID *uuid.UUID     `gorm:"type:uuid;index" json:"owner_user_id,omitempty"`
	Title       string         `gorm:"column:title;not null" json:"title"`
	Content     string         `gorm:"column:content;not null" json:"content"`
	Embedding   datatypes.JSON `gorm:"type:jsonb;column:embedding" json:"embedding,omitempty"`
	EmbedModel  string         `gorm:"column:embed_model" json:"embed_model,omitempty"`
	Metadata    datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (KnowledgeEntry) TableName() string { return "knowledge_entry" }

func (e *KnowledgeEntry) Vector() []float32 {
	return DecodeVector(e.Embedding)
}

func (e *KnowledgeEntry) IsGlobal() bool {
	return e.OwnerUserID == nil || *e.OwnerUserID == uuid.Nil
}
