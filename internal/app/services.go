package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/claimsage/claimsage-backend/internal/platform/logger"
	"github.com/claimsage/claimsage-backend/internal/realtime"
	"github.com/claimsage/claimsage-backend/internal/retrieval"
	"github.com/claimsage/claimsage-backend/internal/services"
)

type Services struct {
	Token     services.TokenService
	Document  services.DocumentService
	Chat      services.ChatService
	Knowledge services.KnowledgeService
	Searcher  *retrieval.Searcher
	Retriever *retrieval.Retriever
}

func wireServices(
	db *gorm.DB,
	log *logger.Logger,
	cfg Config,
	clients Clients,
	reposet Repos,
	sseHub *realtime.SSEHub,
) (Services, error) {
	log.Info("Wiring services...")

	tokens, err := services.NewTokenService(log)
	if err != nil {
		return Services{}, fmt.Errorf("init token service: %w", err)
	}

	// Events go through the bus when Redis is configured so every replica's
	// hub sees them; otherwise straight to the local hub.
	var emit services.Emitter
	if clients.SSEBus != nil {
		emit = &services.BusEmitter{Bus: clients.SSEBus}
	} else {
		emit = &services.HubEmitter{Hub: sseHub}
	}

	searcher := retrieval.NewSearcher(log, reposet.DocumentChunk, reposet.Knowledge, clients.VectorStore, clients.AI.EmbedModel())
	retriever := retrieval.NewRetriever(log, clients.AI, searcher, cfg.Retrieval)

	docs := services.NewDocumentService(log, db, reposet.Document, reposet.DocumentChunk, clients.AI, searcher, clients.Store, emit, cfg.Document)
	chat := services.NewChatService(log, reposet.ChatSession, reposet.ChatMessage, reposet.Document, clients.AI, retriever, cfg.Chat)
	knowledge := services.NewKnowledgeService(log, reposet.Knowledge, clients.AI, searcher, emit, cfg.Document)

	return Services{
		Token:     tokens,
		Document:  docs,
		Chat:      chat,
		Knowledge: knowledge,
		Searcher:  searcher,
		Retriever: retriever,
	}, nil
}
