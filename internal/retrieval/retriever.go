package retrieval

import (
	"github.com/google/uuid"

	"github.com/claimsage/claimsage-backend/internal/platform/apperr"
	"github.com/claimsage/claimsage-backend/internal/platform/dbctx"
	"github.com/claimsage/claimsage-backend/internal/platform/logger"
	"github.com/claimsage/claimsage-backend/internal/platform/openai"
	"github.com/claimsage/claimsage-backend/internal/utils"
)

// Default operating values; tunable via config and overridable per call.
const (
	DefaultDocumentThreshold  = 0.78
	DefaultKnowledgeThreshold = 0.80
	DefaultTopK               = 5
)

type Config struct {
	DocumentThreshold  float64
	KnowledgeThreshold float64
	TopK               int
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		DocumentThreshold:  utils.GetEnvAsFloat("RETRIEVAL_DOCUMENT_THRESHOLD", DefaultDocumentThreshold, log),
		KnowledgeThreshold: utils.GetEnvAsFloat("RETRIEVAL_KNOWLEDGE_THRESHOLD", DefaultKnowledgeThreshold, log),
		TopK:               utils.GetEnvAsInt("RETRIEVAL_TOP_K", DefaultTopK, log),
	}
}

// Options override the configured thresholds and topK for a single call.
type Options struct {
	DocumentThreshold  *float64
	KnowledgeThreshold *float64
	TopK               *int
}

// Fragment is one retrieved context piece handed to the context assembler.
type Fragment struct {
	ID         uuid.UUID
	Kind       Kind
	Title      string
	Text       string
	Similarity float64
}

// Retriever embeds a free-text query and searches the owner's document
// chunks plus the visible knowledge base.
type Retriever struct {
	log      *logger.Logger
	ai       openai.Client
	searcher *Searcher
	cfg      Config
}

func NewRetriever(log *logger.Logger, ai openai.Client, searcher *Searcher, cfg Config) *Retriever {
	if cfg.DocumentThreshold <= 0 {
		cfg.DocumentThreshold = DefaultDocumentThreshold
	}
	if cfg.KnowledgeThreshold <= 0 {
		cfg.KnowledgeThreshold = DefaultKnowledgeThreshold
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Retriever{
		log:      log.With("service", "Retriever"),
		ai:       ai,
		searcher: searcher,
		cfg:      cfg,
	}
}

// Retrieve returns context fragments for the query: the owner's document
// chunks first, then knowledge entries (owner's plus global when
// includeGlobal is set). Each scope keeps its own similarity ranking; the two
// result sets are concatenated, never cross-normalized. Retrieval fails open:
// if the query cannot be embedded, or a search scope fails, the conversation
// proceeds with whatever was retrieved (possibly nothing) instead of
// blocking. Scope violations are the exception and always surface.
func (r *Retriever) Retrieve(dbc dbctx.Context, owner uuid.UUID, query string, includeGlobal bool, opts *Options) ([]Fragment, error) {
	docThreshold := r.cfg.DocumentThreshold
	kbThreshold := r.cfg.KnowledgeThreshold
	topK := r.cfg.TopK
	if opts != nil {
		if opts.DocumentThreshold != nil {
			docThreshold = *opts.DocumentThreshold
		}
		if opts.KnowledgeThreshold != nil {
			kbThreshold = *opts.KnowledgeThreshold
		}
		if opts.TopK != nil && *opts.TopK > 0 {
			topK = *opts.TopK
		}
	}

	vecs, err := r.ai.Embed(dbc.Ctx, []string{query})
	if err != nil || len(vecs) != 1 {
		r.log.Warn("Query embedding failed; proceeding with empty context",
			"user_id", owner,
			"error", errString(err),
		)
		return []Fragment{}, nil
	}
	qvec := vecs[0]

	fragments := make([]Fragment, 0, topK*2)

	chunkMatches, err := r.searcher.SearchChunks(dbc, owner, qvec, docThreshold, topK)
	if err != nil {
		if isScopeViolation(err) {
			return nil, err
		}
		r.log.Warn("Document chunk search failed; continuing without personal context",
			"user_id", owner, "error", err.Error())
	}
	for _, m := range chunkMatches {
		fragments = append(fragments, Fragment{
			ID:         m.ID,
			Kind:       m.Kind,
			Text:       m.Text,
			Similarity: m.Similarity,
		})
	}

	kbMatches, err := r.searcher.SearchKnowledge(dbc, owner, includeGlobal, qvec, kbThreshold, topK)
	if err != nil {
		if isScopeViolation(err) {
			return nil, err
		}
		r.log.Warn("Knowledge search failed; continuing without knowledge context",
			"user_id", owner, "error", err.Error())
	}
	for _, m := range kbMatches {
		fragments = append(fragments, Fragment{
			ID:         m.ID,
			Kind:       m.Kind,
			Title:      m.Title,
			Text:       m.Text,
			Similarity: m.Similarity,
		})
	}

	return fragments, nil
}

func isScopeViolation(err error) bool {
	return apperr.IsKind(err, apperr.KindScopeViolation)
}

func errString(err error) string {
	if err == nil {
		return "embedding response shape mismatch"
	}
	return err.Error()
}
