package app

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/time/rate"

	"github.com/claimsage/claimsage-backend/internal/clients/pinecone"
	"github.com/claimsage/claimsage-backend/internal/platform/logger"
	"github.com/claimsage/claimsage-backend/internal/platform/openai"
	"github.com/claimsage/claimsage-backend/internal/realtime"
	"github.com/claimsage/claimsage-backend/internal/storage"
)

type Clients struct {
	AI          openai.Client
	VectorStore pinecone.VectorStore
	Store       storage.Store
	SSEBus      realtime.Bus
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	limiter := rate.NewLimiter(rate.Limit(cfg.OpenAI.RequestsPerSec), cfg.OpenAI.Burst)
	ai, err := openai.NewClient(log, cfg.OpenAI, limiter)
	if err != nil {
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}

	vs, err := resolveVectorStore(log, cfg)
	if err != nil {
		return Clients{}, err
	}

	store, err := storage.NewLocalStore(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init document store: %w", err)
	}

	var bus realtime.Bus
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		b, err := realtime.NewRedisBus(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis SSE bus: %w", err)
		}
		bus = b
	}

	return Clients{
		AI:          ai,
		VectorStore: vs,
		Store:       store,
		SSEBus:      bus,
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.SSEBus != nil {
		_ = c.SSEBus.Close()
	}
}
