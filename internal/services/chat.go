package services

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/claimsage/claimsage-backend/internal/platform/apperr"
	"github.com/claimsage/claimsage-backend/internal/platform/dbctx"
	"github.com/claimsage/claimsage-backend/internal/platform/logger"
	"github.com/claimsage/claimsage-backend/internal/platform/openai"
	"github.com/claimsage/claimsage-backend/internal/repos"
	"github.com/claimsage/claimsage-backend/internal/retrieval"
	"github.com/claimsage/claimsage-backend/internal/types"
	"github.com/claimsage/claimsage-backend/internal/utils"
)

type ChatConfig struct {
	ContextBudgetTokens int
	HistoryLimit        int
	PriorAnalysesLimit  int
}

func LoadChatConfig(log *logger.Logger) ChatConfig {
	return ChatConfig{
		ContextBudgetTokens: utils.GetEnvAsInt("CONTEXT_BUDGET_TOKENS", DefaultContextBudgetTokens, log),
		HistoryLimit:        utils.GetEnvAsInt("CHAT_HISTORY_LIMIT", 40, log),
		PriorAnalysesLimit:  utils.GetEnvAsInt("CHAT_PRIOR_ANALYSES_LIMIT", maxPriorAnalyses, log),
	}
}

// ChatService owns conversation containers and the streaming reply pipeline.
type ChatService interface {
	CreateSession(dbc dbctx.Context, userID uuid.UUID, title string) (*types.ChatSession, error)
	GetSession(dbc dbctx.Context, userID, sessionID uuid.UUID) (*types.ChatSession, error)
	ListSessions(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.ChatSession, error)
	DeleteSession(dbc dbctx.Context, userID, sessionID uuid.UUID) error
	ListMessages(dbc dbctx.Context, userID, sessionID uuid.UUID, limit int) ([]*types.ChatMessage, error)

	// StreamReply runs retrieval, assembles the bounded context and streams
	// the assistant reply, forwarding each increment to onDelta as received.
	// The finished message is persisted only on clean stream completion.
	StreamReply(dbc dbctx.Context, userID, sessionID uuid.UUID, userMessage string, onDelta func(delta string)) (*types.ChatMessage, error)
}

type chatService struct {
	log       *logger.Logger
	sessions  repos.ChatSessionRepo
	messages  repos.ChatMessageRepo
	docs      repos.DocumentRepo
	ai        openai.Client
	retriever *retrieval.Retriever
	cfg       ChatConfig
}

func NewChatService(
	log *logger.Logger,
	sessions repos.ChatSessionRepo,
	messages repos.ChatMessageRepo,
	docs repos.DocumentRepo,
	ai openai.Client,
	retriever *retrieval.Retriever,
	cfg ChatConfig,
) ChatService {
	if cfg.ContextBudgetTokens <= 0 {
		cfg.ContextBudgetTokens = DefaultContextBudgetTokens
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 40
	}
	if cfg.PriorAnalysesLimit <= 0 {
		cfg.PriorAnalysesLimit = maxPriorAnalyses
	}
	return &chatService{
		log:       log.With("service", "ChatService"),
		sessions:  sessions,
		messages:  messages,
		docs:      docs,
		ai:        ai,
		retriever: retriever,
		cfg:       cfg,
	}
}

func (s *chatService) CreateSession(dbc dbctx.Context, userID uuid.UUID, title string) (*types.ChatSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "New conversation"
	}
	session := &types.ChatSession{
		ID:            uuid.New(),
		UserID:        userID,
		Title:         title,
		LastMessageAt: time.Now(),
	}
	if _, err := s.sessions.Create(dbc, []*types.ChatSession{session}); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *chatService) GetSession(dbc dbctx.Context, userID, sessionID uuid.UUID) (*types.ChatSession, error) {
	session, err := s.sessions.GetByID(dbc, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.UserID != userID {
		return nil, apperr.Newf(apperr.KindNotFound, "chat session %s not found", sessionID)
	}
	return session, nil
}

func (s *chatService) ListSessions(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.ChatSession, error) {
	return s.sessions.ListByUserID(dbc, userID, limit)
}

func (s *chatService) DeleteSession(dbc dbctx.Context, userID, sessionID uuid.UUID) error {
	if _, err := s.GetSession(dbc, userID, sessionID); err != nil {
		return err
	}
	return s.sessions.Delete(dbc, sessionID)
}

func (s *chatService) ListMessages(dbc dbctx.Context, userID, sessionID uuid.UUID, limit int) ([]*types.ChatMessage, error) {
	if _, err := s.GetSession(dbc, userID, sessionID); err != nil {
		return nil, err
	}
	return s.messages.ListBySessionID(dbc, sessionID, limit)
}
