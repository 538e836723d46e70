package types

import (
	"time"

	"github.com/google/uuid"
)

// Document classification, by what the uploaded file is to a claim.
const (
	DocTypeExamReport     = "exam_report"     // C&P examination report
	DocTypeRatingDecision = "rating_decision" // VA rating decision letter
	DocTypeDBQ            = "dbq"             // disability benefits questionnaire
	DocTypeOther          = "other"
)

// Document lifecycle. Transitions:
// pending -> processing -> completed
// pending -> processing -> error
const (
	DocStatusPending    = "pending"
	DocStatusProcessing = "processing"
	DocStatusCompleted  = "completed"
	DocStatusError      = "error"
)

type Document struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	User         *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	Name         string    `gorm:"column:name;not null" json:"name"`
	StorageKey   string    `gorm:"column:storage_key;not null" json:"storage_key"`
	SizeBytes    int64     `gorm:"column:size_bytes" json:"size_bytes"`
	MimeType     string    `gorm:"column:mime_type" json:"mime_type"`
	DocType      string    `gorm:"column:doc_type;not null" json:"doc_type"`
	Status       string    `gorm:"column:status;not null;index" json:"status"`
	Analysis     string    `gorm:"column:analysis" json:"analysis,omitempty"`
	ErrorMessage string    `gorm:"column:error_message" json:"error_message,omitempty"`
	// EmbedModel tags which embedding model produced this document's chunk
	// vectors; retrieval never compares vectors across model tags.
	EmbedModel string    `gorm:"column:embed_model" json:"embed_model,omitempty"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

func (Document) TableName() string { return "document" }
