package types

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type ChatSession struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	User          *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	Title         string    `gorm:"column:title;not null" json:"title"`
	LastMessageAt time.Time `gorm:"column:last_message_at;not null" json:"last_message_at"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

func (ChatSession) TableName() string { return "chat_session" }

type ChatMessage struct {
	ID        uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID    `gorm:"type:uuid;not null;index" json:"session_id"`
	Session   *ChatSession `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"session,omitempty"`
	Role      Role         `gorm:"column:role;type:text;not null" json:"role"`
	Content   string       `gorm:"column:content;not null" json:"content"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (ChatMessage) TableName() string { return "chat_message" }
