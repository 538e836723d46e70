package app

import (
	"gorm.io/gorm"

	"github.com/claimsage/claimsage-backend/internal/platform/logger"
	"github.com/claimsage/claimsage-backend/internal/repos"
)

type Repos struct {
	User          repos.UserRepo
	Document      repos.DocumentRepo
	DocumentChunk repos.DocumentChunkRepo
	Knowledge     repos.KnowledgeEntryRepo
	ChatSession   repos.ChatSessionRepo
	ChatMessage   repos.ChatMessageRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:          repos.NewUserRepo(db, log),
		Document:      repos.NewDocumentRepo(db, log),
		DocumentChunk: repos.NewDocumentChunkRepo(db, log),
		Knowledge:     repos.NewKnowledgeEntryRepo(db, log),
		ChatSession:   repos.NewChatSessionRepo(db, log),
		ChatMessage:   repos.NewChatMessageRepo(db, log),
	}
}
