package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/claimsage/claimsage-backend/internal/ingestion"
	"github.com/claimsage/claimsage-backend/internal/platform/apperr"
	"github.com/claimsage/claimsage-backend/internal/platform/dbctx"
	"github.com/claimsage/claimsage-backend/internal/platform/logger"
	"github.com/claimsage/claimsage-backend/internal/platform/openai"
	"github.com/claimsage/claimsage-backend/internal/realtime"
	"github.com/claimsage/claimsage-backend/internal/repos"
	"github.com/claimsage/claimsage-backend/internal/retrieval"
	"github.com/claimsage/claimsage-backend/internal/storage"
	"github.com/claimsage/claimsage-backend/internal/types"
	"github.com/claimsage/claimsage-backend/internal/utils"
)

type DocumentConfig struct {
	MaxChunkTokens     int
	OverlapTokens      int
	Workers            int
	AnalyzeTimeout     time.Duration
	MaxUploadSizeBytes int64
}

func LoadDocumentConfig(log *logger.Logger) DocumentConfig {
	return DocumentConfig{
		MaxChunkTokens:     utils.GetEnvAsInt("CHUNK_MAX_TOKENS", ingestion.DefaultMaxTokens, log),
		OverlapTokens:      utils.GetEnvAsInt("CHUNK_OVERLAP_TOKENS", ingestion.DefaultOverlapTokens, log),
		Workers:            utils.GetEnvAsInt("ANALYSIS_WORKERS", 4, log),
		AnalyzeTimeout:     time.Duration(utils.GetEnvAsInt("ANALYSIS_TIMEOUT_SECONDS", 600, log)) * time.Second,
		MaxUploadSizeBytes: int64(utils.GetEnvAsInt("MAX_UPLOAD_SIZE_MB", 16, log)) << 20,
	}
}

// DocumentService owns the document lifecycle: upload, the analysis pipeline
// (extract -> chunk -> embed -> per-chunk analysis -> combined summary),
// listing and deletion.
type DocumentService interface {
	Upload(dbc dbctx.Context, userID uuid.UUID, name, mimeType, docType string, r io.Reader) (*types.Document, error)
	// Analyze runs the pipeline for a pending document. Pipeline failures are
	// recorded on the document record, not returned; the error return is for
	// infrastructure faults only.
	Analyze(ctx context.Context, documentID uuid.UUID) error
	AnalyzeAsync(documentID uuid.UUID)
	GetByID(dbc dbctx.Context, userID, documentID uuid.UUID) (*types.Document, error)
	List(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Document, error)
	Delete(dbc dbctx.Context, userID, documentID uuid.UUID) error
}

type documentService struct {
	log      *logger.Logger
	db       *gorm.DB
	docs     repos.DocumentRepo
	chunks   repos.DocumentChunkRepo
	ai       openai.Client
	searcher *retrieval.Searcher
	store    storage.Store
	emit     Emitter
	cfg      DocumentConfig
}

func NewDocumentService(
	log *logger.Logger,
	db *gorm.DB,
	docs repos.DocumentRepo,
	chunks repos.DocumentChunkRepo,
	ai openai.Client,
	searcher *retrieval.Searcher,
	store storage.Store,
	emit Emitter,
	cfg DocumentConfig,
) DocumentService {
	if cfg.MaxChunkTokens <= 0 {
		cfg.MaxChunkTokens = ingestion.DefaultMaxTokens
	}
	if cfg.OverlapTokens < 0 {
		cfg.OverlapTokens = ingestion.DefaultOverlapTokens
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.AnalyzeTimeout <= 0 {
		cfg.AnalyzeTimeout = 10 * time.Minute
	}
	if emit == nil {
		emit = NopEmitter{}
	}
	return &documentService{
		log:      log.With("service", "DocumentService"),
		db:       db,
		docs:     docs,
		chunks:   chunks,
		ai:       ai,
		searcher: searcher,
		store:    store,
		emit:     emit,
		cfg:      cfg,
	}
}

func (s *documentService) Upload(dbc dbctx.Context, userID uuid.UUID, name, mimeType, docType string, r io.Reader) (*types.Document, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Newf(apperr.KindInvalidInput, "document name required")
	}
	if !validDocType(docType) {
		docType = types.DocTypeOther
	}
	if r == nil {
		return nil, apperr.Newf(apperr.KindInvalidInput, "document content required")
	}

	docID := uuid.New()
	key := fmt.Sprintf("documents/%s/%s", userID, docID)

	limit := s.cfg.MaxUploadSizeBytes
	if limit <= 0 {
		limit = 16 << 20
	}
	size, err := s.store.Save(dbc.Ctx, key, io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if size > limit {
		_ = s.store.Delete(dbc.Ctx, key)
		return nil, apperr.Newf(apperr.KindInvalidInput, "file exceeds the %d MB upload limit", limit>>20)
	}

	doc := &types.Document{
		ID:         docID,
		UserID:     userID,
		Name:       name,
		StorageKey: key,
		SizeBytes:  size,
		MimeType:   strings.TrimSpace(mimeType),
		DocType:    docType,
		Status:     types.DocStatusPending,
	}
	if _, err := s.docs.Create(dbc, []*types.Document{doc}); err != nil {
		_ = s.store.Delete(dbc.Ctx, key)
		return nil, err
	}
	return doc, nil
}

func validDocType(t string) bool {
	switch t {
	case types.DocTypeExamReport, types.DocTypeRatingDecision, types.DocTypeDBQ, types.DocTypeOther:
		return true
	}
	return false
}

func (s *documentService) AnalyzeAsync(documentID uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.AnalyzeTimeout)
		defer cancel()
		if err := s.Analyze(ctx, documentID); err != nil {
			s.log.Error("Document analysis failed", "document_id", documentID, "error", err.Error())
		}
	}()
}

// chunkOutcome is one worker's result for a single chunk.
type chunkOutcome struct {
	embedded bool
	analysis string
}

func (s *documentService) Analyze(ctx context.Context, documentID uuid.UUID) error {
	dbc := dbctx.From(ctx)

	doc, err := s.docs.GetByID(dbc, documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return apperr.Newf(apperr.KindNotFound, "document %s not found", documentID)
	}
	if doc.Status != types.DocStatusPending {
		s.log.Warn("Skipping analysis; document not pending", "document_id", documentID, "status", doc.Status)
		return nil
	}

	if err := s.docs.MarkProcessing(dbc, documentID); err != nil {
		return err
	}
	s.emitStatus(ctx, doc, types.DocStatusProcessing, "")

	text, extractErr := s.extract(ctx, doc)
	if extractErr != nil {
		return s.fail(dbc, doc, extractErr.Error())
	}

	segments, chunkErr := ingestion.Chunk(text, s.cfg.MaxChunkTokens, s.cfg.OverlapTokens)
	if chunkErr != nil {
		return s.fail(dbc, doc, chunkErr.Error())
	}
	if len(segments) == 0 {
		return s.fail(dbc, doc, "no extractable text found: file is empty or unreadable")
	}

	// Fix each chunk's (index, total) before any write.
	rows := make([]*types.DocumentChunk, len(segments))
	for i, seg := range segments {
		rows[i] = &types.DocumentChunk{
			ID:          uuid.New(),
			DocumentID:  doc.ID,
			ChunkIndex:  i,
			TotalChunks: len(segments),
			Text:        seg,
			EmbedModel:  s.ai.EmbedModel(),
		}
	}

	outcomes := make([]chunkOutcome, len(rows))
	var embedded int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range rows {
		i := i
		g.Go(func() error {
			// Per-chunk failures are recovered locally: log, skip, move on.
			if err := s.processChunk(gctx, doc, rows[i], &outcomes[i]); err != nil {
				s.log.Warn("Chunk processing failed; omitting from retrieval",
					"document_id", doc.ID,
					"chunk_index", rows[i].ChunkIndex,
					"error", err.Error(),
				)
				return nil
			}
			atomic.AddInt64(&embedded, 1)
			return nil
		})
	}
	_ = g.Wait()

	if embedded == 0 {
		return s.fail(dbc, doc, "document analysis failed: no chunk could be embedded")
	}

	if s.searcher != nil {
		var ok []*types.DocumentChunk
		for i, row := range rows {
			if outcomes[i].embedded {
				ok = append(ok, row)
			}
		}
		if err := s.searcher.IndexChunks(dbc, doc.UserID, ok); err != nil {
			s.log.Warn("ANN indexing failed; SQL retrieval remains available",
				"document_id", doc.ID, "error", err.Error())
		}
	}

	summary, sumErr := s.combineAnalyses(ctx, doc, rows, outcomes)
	if sumErr != nil {
		return s.fail(dbc, doc, fmt.Sprintf("summary generation failed: %v", sumErr))
	}

	if err := s.docs.MarkCompleted(dbc, doc.ID, summary, s.ai.EmbedModel()); err != nil {
		return err
	}
	s.emitStatus(ctx, doc, types.DocStatusCompleted, "")
	s.log.Info("Document analysis completed",
		"document_id", doc.ID,
		"chunks", len(rows),
		"embedded", embedded,
	)
	return nil
}

func (s *documentService) extract(ctx context.Context, doc *types.Document) (string, error) {
	rc, err := s.store.Open(ctx, doc.StorageKey)
	if err != nil {
		return "", apperr.Newf(apperr.KindExtraction, "stored file unavailable: %v", err)
	}
	defer rc.Close()
	return ingestion.ExtractText(rc, doc.MimeType)
}

// processChunk embeds one chunk, persists it, and produces its focused
// analysis. Embedding or persistence failure drops the chunk entirely; a
// failed analysis keeps the chunk retrievable but contributes nothing to the
// summary.
func (s *documentService) processChunk(ctx context.Context, doc *types.Document, row *types.DocumentChunk, out *chunkOutcome) error {
	vecs, err := s.ai.Embed(ctx, []string{row.Text})
	if err != nil {
		return err
	}
	if len(vecs) != 1 {
		return fmt.Errorf("expected 1 embedding, got %d", len(vecs))
	}

	row.Embedding = types.EncodeVector(vecs[0])

	dbc := dbctx.From(ctx)
	if err := s.chunks.Upsert(dbc, []*types.DocumentChunk{row}); err != nil {
		return err
	}
	out.embedded = true

	analysis, err := s.ai.GenerateText(ctx, chunkAnalysisSystemPrompt, chunkAnalysisUserPrompt(doc, row))
	if err != nil {
		s.log.Warn("Per-chunk analysis failed; chunk stays retrievable",
			"document_id", doc.ID, "chunk_index", row.ChunkIndex, "error", err.Error())
		return nil
	}
	out.analysis = strings.TrimSpace(analysis)
	return nil
}

func (s *documentService) combineAnalyses(ctx context.Context, doc *types.Document, rows []*types.DocumentChunk, outcomes []chunkOutcome) (string, error) {
	var parts []string
	for i := range rows {
		if outcomes[i].analysis != "" {
			parts = append(parts, fmt.Sprintf("Section %d of %d:\n%s", rows[i].ChunkIndex+1, rows[i].TotalChunks, outcomes[i].analysis))
		}
	}
	if len(parts) == 0 {
		// Every analysis call failed but embeddings exist; fall back to a
		// single-pass summary over the leading text.
		lead := rows[0].Text
		return s.ai.GenerateText(ctx, combineSystemPrompt, combineFallbackPrompt(doc, lead))
	}
	return s.ai.GenerateText(ctx, combineSystemPrompt, combineUserPrompt(doc, parts))
}

func (s *documentService) fail(dbc dbctx.Context, doc *types.Document, message string) error {
	if err := s.docs.MarkError(dbc, doc.ID, message); err != nil {
		return err
	}
	s.emitStatus(dbc.Ctx, doc, types.DocStatusError, message)
	s.log.Warn("Document moved to error", "document_id", doc.ID, "message", message)
	return nil
}

func (s *documentService) emitStatus(ctx context.Context, doc *types.Document, status, message string) {
	data := map[string]any{
		"document_id": doc.ID,
		"status":      status,
	}
	if message != "" {
		data["error_message"] = message
	}
	s.emit.Emit(ctx, realtime.SSEMessage{
		Channel: realtime.UserChannel(doc.UserID),
		Event:   realtime.SSEEventDocumentStatusChanged,
		Data:    data,
	})
}

func (s *documentService) GetByID(dbc dbctx.Context, userID, documentID uuid.UUID) (*types.Document, error) {
	doc, err := s.docs.GetByID(dbc, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.UserID != userID {
		return nil, apperr.Newf(apperr.KindNotFound, "document %s not found", documentID)
	}
	return doc, nil
}

func (s *documentService) List(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Document, error) {
	return s.docs.ListByUserID(dbc, userID, limit)
}

func (s *documentService) Delete(dbc dbctx.Context, userID, documentID uuid.UUID) error {
	doc, err := s.GetByID(dbc, userID, documentID)
	if err != nil {
		return err
	}

	if s.searcher != nil {
		chunks, cErr := s.chunks.GetByDocumentID(dbc, doc.ID)
		if cErr == nil {
			ids := make([]uuid.UUID, 0, len(chunks))
			for _, c := range chunks {
				ids = append(ids, c.ID)
			}
			if dErr := s.searcher.DropChunks(dbc, userID, ids); dErr != nil {
				s.log.Warn("ANN vector cleanup failed", "document_id", doc.ID, "error", dErr.Error())
			}
		}
	}

	// Chunk rows and the document row go together or not at all; a document
	// without its chunks (or the reverse) would corrupt retrieval scoping.
	err = s.db.Transaction(func(tx *gorm.DB) error {
		txc := dbc.WithTx(tx)
		if err := s.chunks.DeleteByDocumentID(txc, doc.ID); err != nil {
			return err
		}
		return s.docs.Delete(txc, doc.ID)
	})
	if err != nil {
		return err
	}
	if err := s.store.Delete(dbc.Ctx, doc.StorageKey); err != nil {
		s.log.Warn("Stored file cleanup failed", "document_id", doc.ID, "error", err.Error())
	}
	return nil
}
