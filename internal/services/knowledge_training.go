package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/claimsage/claimsage-backend/internal/ingestion"
	"github.com/claimsage/claimsage-backend/internal/platform/apperr"
	"github.com/claimsage/claimsage-backend/internal/platform/dbctx"
	"github.com/claimsage/claimsage-backend/internal/platform/logger"
	"github.com/claimsage/claimsage-backend/internal/platform/openai"
	"github.com/claimsage/claimsage-backend/internal/realtime"
	"github.com/claimsage/claimsage-backend/internal/repos"
	"github.com/claimsage/claimsage-backend/internal/retrieval"
	"github.com/claimsage/claimsage-backend/internal/types"
)

// TrainRecord is one unit of curated knowledge to ingest. A nil OwnerUserID
// makes the entry global (visible to every user).
type TrainRecord struct {
	ID          *uuid.UUID          `json:"id,omitempty"`
	Title       string              `json:"title"`
	Content     string              `json:"content"`
	Metadata    types.KnowledgeMeta `json:"metadata"`
	OwnerUserID *uuid.UUID          `json:"owner_user_id,omitempty"`
}

// TrainResult reports one record's outcome; a batch always returns one result
// per record, never a single all-or-nothing verdict.
type TrainResult struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
	OK    bool      `json:"ok"`
	Error string    `json:"error,omitempty"`
}

type KnowledgeService interface {
	Train(dbc dbctx.Context, records []TrainRecord) []TrainResult
	List(dbc dbctx.Context, owner uuid.UUID) ([]*types.KnowledgeEntry, error)
	Delete(dbc dbctx.Context, id, requester uuid.UUID, isAdmin bool) error
}

type knowledgeService struct {
	log      *logger.Logger
	entries  repos.KnowledgeEntryRepo
	ai       openai.Client
	searcher *retrieval.Searcher
	emit     Emitter
	cfg      DocumentConfig
}

func NewKnowledgeService(
	log *logger.Logger,
	entries repos.KnowledgeEntryRepo,
	ai openai.Client,
	searcher *retrieval.Searcher,
	emit Emitter,
	cfg DocumentConfig,
) KnowledgeService {
	if cfg.MaxChunkTokens <= 0 {
		cfg.MaxChunkTokens = ingestion.DefaultMaxTokens
	}
	if cfg.OverlapTokens < 0 {
		cfg.OverlapTokens = ingestion.DefaultOverlapTokens
	}
	if emit == nil {
		emit = NopEmitter{}
	}
	return &knowledgeService{
		log:      log.With("service", "KnowledgeService"),
		entries:  entries,
		ai:       ai,
		searcher: searcher,
		emit:     emit,
		cfg:      cfg,
	}
}

func (s *knowledgeService) Train(dbc dbctx.Context, records []TrainRecord) []TrainResult {
	results := make([]TrainResult, 0, len(records))
	var trained []*types.KnowledgeEntry

	for _, rec := range records {
		id := uuid.New()
		if rec.ID != nil && *rec.ID != uuid.Nil {
			id = *rec.ID
		}
		res := TrainResult{ID: id, Title: strings.TrimSpace(rec.Title)}

		entry, err := s.trainOne(dbc, id, rec)
		if err != nil {
			res.Error = err.Error()
			s.log.Warn("Knowledge record failed", "entry_id", id, "title", res.Title, "error", err.Error())
		} else {
			res.OK = true
			trained = append(trained, entry)
		}
		results = append(results, res)
	}

	if s.searcher != nil && len(trained) > 0 {
		if err := s.searcher.IndexKnowledge(dbc, trained); err != nil {
			s.log.Warn("ANN indexing of knowledge entries failed", "error", err.Error())
		}
	}
	if len(trained) > 0 {
		s.emit.Emit(dbc.Ctx, realtime.SSEMessage{
			Channel: "admin",
			Event:   realtime.SSEEventKnowledgeTrained,
			Data:    map[string]any{"trained": len(trained), "failed": len(records) - len(trained)},
		})
	}
	return results
}

func (s *knowledgeService) trainOne(dbc dbctx.Context, id uuid.UUID, rec TrainRecord) (*types.KnowledgeEntry, error) {
	title := strings.TrimSpace(rec.Title)
	content := strings.TrimSpace(rec.Content)
	if title == "" {
		return nil, apperr.Newf(apperr.KindInvalidInput, "title required")
	}
	if content == "" {
		return nil, apperr.Newf(apperr.KindInvalidInput, "content required")
	}

	vec, err := s.embedContent(dbc.Ctx, content)
	if err != nil {
		return nil, err
	}

	meta := rec.Metadata
	if meta.WordCount == 0 {
		meta.WordCount = len(strings.Fields(content))
	}

	entry := &types.KnowledgeEntry{
		ID:          id,
		OwnerUserID: rec.OwnerUserID,
		Title:       title,
		Content:     content,
		Embedding:   types.EncodeVector(vec),
		EmbedModel:  s.ai.EmbedModel(),
		Metadata:    meta.ToJSON(),
	}
	if err := s.entries.Upsert(dbc, []*types.KnowledgeEntry{entry}); err != nil {
		return nil, err
	}
	return entry, nil
}

// embedContent embeds the record body directly when it fits the chunk
// budget; oversize bodies are chunked and their vectors mean-pooled into one
// entry-level vector.
func (s *knowledgeService) embedContent(ctx context.Context, content string) ([]float32, error) {
	if openai.EstimateTokens(content) <= s.cfg.MaxChunkTokens {
		vecs, err := s.ai.Embed(ctx, []string{content})
		if err != nil {
			return nil, err
		}
		if len(vecs) != 1 {
			return nil, apperr.Newf(apperr.KindEmbeddingService, "expected 1 embedding, got %d", len(vecs))
		}
		return vecs[0], nil
	}

	segments, err := ingestion.Chunk(content, s.cfg.MaxChunkTokens, s.cfg.OverlapTokens)
	if err != nil {
		return nil, err
	}
	vecs, err := s.ai.Embed(ctx, segments)
	if err != nil {
		return nil, err
	}
	pooled, ok := meanPool(vecs)
	if !ok {
		return nil, apperr.Newf(apperr.KindEmbeddingService, "mean pooling failed: inconsistent vector dimensions")
	}
	return pooled, nil
}

func meanPool(vecs [][]float32) ([]float32, bool) {
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, false
	}
	dim := len(vecs[0])
	sum := make([]float64, dim)
	for _, v := range vecs {
		if len(v) != dim {
			return nil, false
		}
		for i, f := range v {
			sum[i] += float64(f)
		}
	}
	out := make([]float32, dim)
	n := float64(len(vecs))
	for i := range sum {
		out[i] = float32(sum[i] / n)
	}
	return out, true
}

func (s *knowledgeService) List(dbc dbctx.Context, owner uuid.UUID) ([]*types.KnowledgeEntry, error) {
	return s.entries.ListVisible(dbc, owner, "")
}

func (s *knowledgeService) Delete(dbc dbctx.Context, id, requester uuid.UUID, isAdmin bool) error {
	entry, err := s.entries.GetByID(dbc, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return apperr.Newf(apperr.KindNotFound, "knowledge entry %s not found", id)
	}
	if entry.OwnerUserID == nil {
		if !isAdmin {
			return apperr.Newf(apperr.KindNotFound, "knowledge entry %s not found", id)
		}
	} else if *entry.OwnerUserID != requester && !isAdmin {
		return apperr.Newf(apperr.KindNotFound, "knowledge entry %s not found", id)
	}

	if s.searcher != nil {
		if err := s.searcher.DropKnowledge(dbc, id); err != nil {
			s.log.Warn("ANN vector cleanup failed", "entry_id", id, "error", err.Error())
		}
	}
	return s.entries.Delete(dbc, id)
}
