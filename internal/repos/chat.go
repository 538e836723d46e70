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

type ChatSessionRepo interface {
	Create(dbc dbctx.Context, sessions []*types.ChatSession) ([]*types.ChatSession, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ChatSession, error)
	ListByUserID(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.ChatSession, error)
	TouchLastMessage(dbc dbctx.Context, id uuid.UUID) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type ChatMessageRepo interface {
	Create(dbc dbctx.Context, msgs []*types.ChatMessage) ([]*types.ChatMessage, error)
	// ListBySessionID returns messages in chronological order.
	ListBySessionID(dbc dbctx.Context, sessionID uuid.UUID, limit int) ([]*types.ChatMessage, error)
}

type chatSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatSessionRepo(db *gorm.DB, baseLog *logger.Logger) ChatSessionRepo {
	return &chatSessionRepo{db: db, log: baseLog.With("repo", "ChatSessionRepo")}
}

func (r *chatSessionRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *chatSessionRepo) Create(dbc dbctx.Context, sessions []*types.ChatSession) ([]*types.ChatSession, error) {
	if len(sessions) == 0 {
		return []*types.ChatSession{}, nil
	}
	if err := r.tx(dbc).WithContext(dbc.Context()).Create(sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *chatSessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ChatSession, error) {
	var s types.ChatSession
	err := r.tx(dbc).WithContext(dbc.Context()).Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *chatSessionRepo) ListByUserID(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.ChatSession, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var sessions []*types.ChatSession
	if err := r.tx(dbc).WithContext(dbc.Context()).
		Where("user_id = ?", userID).
		Order("last_message_at DESC").
		Limit(limit).
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *chatSessionRepo) TouchLastMessage(dbc dbctx.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	return r.tx(dbc).WithContext(dbc.Context()).
		Model(&types.ChatSession{}).
		Where("id = ?", id).
		Updates(map[string]any{"last_message_at": now, "updated_at": now}).Error
}

func (r *chatSessionRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	return r.tx(dbc).WithContext(dbc.Context()).
		Where("id = ?", id).
		Delete(&types.ChatSession{}).Error
}

type chatMessageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatMessageRepo(db *gorm.DB, baseLog *logger.Logger) ChatMessageRepo {
	return &chatMessageRepo{db: db, log: baseLog.With("repo", "ChatMessageRepo")}
}

func (r *chatMessageRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *chatMessageRepo) Create(dbc dbctx.Context, msgs []*types.ChatMessage) ([]*types.ChatMessage, error) {
	if len(msgs) == 0 {
		return []*types.ChatMessage{}, nil
	}
	if err := r.tx(dbc).WithContext(dbc.Context()).Create(msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListBySessionID returns the most recent limit messages in chronological
// order. The window keeps the newest turns: prompt assembly must never lose
// the tail of the conversation, however long the session grows.
func (r *chatMessageRepo) ListBySessionID(dbc dbctx.Context, sessionID uuid.UUID, limit int) ([]*types.ChatMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var msgs []*types.ChatMessage
	if err := r.tx(dbc).WithContext(dbc.Context()).
		Where("session_id = ?", sessionID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
