package retrieval

import (
	"github.com/google/uuid"

	"github.com/claimsage/claimsage-backend/internal/clients/pinecone"
	"github.com/claimsage/claimsage-backend/internal/platform/dbctx"
	"github.com/claimsage/claimsage-backend/internal/platform/logger"
	"github.com/claimsage/claimsage-backend/internal/repos"
	"github.com/claimsage/claimsage-backend/internal/types"
)

// Searcher executes scoped similarity searches over stored chunks and
// knowledge entries. Candidates are read from Postgres pre-scoped by owner;
// when a Pinecone store is configured it only narrows the candidate set via
// approximate nearest neighbors, never decides scores — exact cosine and
// threshold checks always run here.
type Searcher struct {
	log        *logger.Logger
	chunks     repos.DocumentChunkRepo
	knowledge  repos.KnowledgeEntryRepo
	vs         pinecone.VectorStore // optional
	embedModel string
}

func NewSearcher(
	log *logger.Logger,
	chunks repos.DocumentChunkRepo,
	knowledge repos.KnowledgeEntryRepo,
	vs pinecone.VectorStore,
	embedModel string,
) *Searcher {
	return &Searcher{
		log:        log.With("service", "Searcher"),
		chunks:     chunks,
		knowledge:  knowledge,
		vs:         vs,
		embedModel: embedModel,
	}
}

// annCandidateFactor oversamples the ANN pre-filter relative to topK so the
// exact re-ranking still has enough candidates after threshold filtering.
const annCandidateFactor = 4

func (s *Searcher) SearchChunks(dbc dbctx.Context, owner uuid.UUID, query []float32, threshold float64, topK int) ([]Match, error) {
	rows, err := s.chunks.GetEmbeddedByUserID(dbc, owner, s.embedModel)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		vec := row.Vector()
		if len(vec) == 0 {
			s.log.Warn("Skipping chunk with undecodable embedding", "chunk_id", row.ID)
			continue
		}
		// Owner comes off the joined document row, not the request, so the
		// scope check in Rank verifies the SQL boundary instead of assuming it.
		var rowOwner *uuid.UUID
		if row.Document != nil {
			o := row.Document.UserID
			rowOwner = &o
		}
		candidates = append(candidates, Candidate{
			ID:          row.ID,
			Kind:        KindDocumentChunk,
			DocumentID:  row.DocumentID,
			Text:        row.Text,
			Vector:      vec,
			OwnerUserID: rowOwner,
			CreatedAt:   row.CreatedAt,
		})
	}

	candidates = s.annNarrow(dbc, "user:"+owner.String(), query, topK, candidates)

	return Rank(candidates, query, Scope{OwnerUserID: owner}, threshold, topK)
}

func (s *Searcher) SearchKnowledge(dbc dbctx.Context, owner uuid.UUID, includeGlobal bool, query []float32, threshold float64, topK int) ([]Match, error) {
	rows, err := s.knowledge.ListVisible(dbc, owner, s.embedModel)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		if row.OwnerUserID == nil && !includeGlobal {
			continue
		}
		vec := row.Vector()
		if len(vec) == 0 {
			s.log.Warn("Skipping knowledge entry with undecodable embedding", "entry_id", row.ID)
			continue
		}
		candidates = append(candidates, Candidate{
			ID:          row.ID,
			Kind:        KindKnowledgeEntry,
			Title:       row.Title,
			Text:        row.Content,
			Vector:      vec,
			OwnerUserID: row.OwnerUserID,
			CreatedAt:   row.CreatedAt,
		})
	}

	candidates = s.annNarrow(dbc, "knowledge", query, topK, candidates)

	return Rank(candidates, query, Scope{OwnerUserID: owner, IncludeGlobal: includeGlobal}, threshold, topK)
}

// annNarrow intersects candidates with Pinecone's nearest-neighbor IDs when a
// vector store is configured. Any ANN failure falls back to the full scoped
// candidate set; retrieval degrades in cost, not in correctness.
func (s *Searcher) annNarrow(dbc dbctx.Context, namespace string, query []float32, topK int, candidates []Candidate) []Candidate {
	if s.vs == nil || len(candidates) == 0 {
		return candidates
	}
	ids, err := s.vs.QueryIDs(dbc.Ctx, namespace, query, topK*annCandidateFactor, nil)
	if err != nil {
		s.log.Warn("ANN pre-filter failed; ranking full candidate set", "namespace", namespace, "error", err.Error())
		return candidates
	}
	if len(ids) == 0 {
		return candidates
	}
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	narrowed := make([]Candidate, 0, len(ids))
	for _, c := range candidates {
		if _, ok := keep[c.ID.String()]; ok {
			narrowed = append(narrowed, c)
		}
	}
	if len(narrowed) == 0 {
		return candidates
	}
	return narrowed
}

// chunkVectorMeta is the metadata written alongside ANN vectors at ingestion.
func chunkVectorMeta(chunk *types.DocumentChunk) map[string]any {
	return map[string]any{
		"document_id": chunk.DocumentID.String(),
		"chunk_index": chunk.ChunkIndex,
		"embed_model": chunk.EmbedModel,
	}
}

// IndexChunks mirrors freshly embedded chunks into the ANN store; a nil
// configured store makes this a no-op.
func (s *Searcher) IndexChunks(dbc dbctx.Context, owner uuid.UUID, chunks []*types.DocumentChunk) error {
	if s.vs == nil || len(chunks) == 0 {
		return nil
	}
	vectors := make([]pinecone.Vector, 0, len(chunks))
	for _, c := range chunks {
		vec := c.Vector()
		if len(vec) == 0 {
			continue
		}
		vectors = append(vectors, pinecone.Vector{
			ID:       c.ID.String(),
			Values:   vec,
			Metadata: chunkVectorMeta(c),
		})
	}
	return s.vs.Upsert(dbc.Ctx, "user:"+owner.String(), vectors)
}

// DropChunks removes a deleted document's vectors from the ANN store.
func (s *Searcher) DropChunks(dbc dbctx.Context, owner uuid.UUID, chunkIDs []uuid.UUID) error {
	if s.vs == nil || len(chunkIDs) == 0 {
		return nil
	}
	ids := make([]string, len(chunkIDs))
	for i, id := range chunkIDs {
		ids[i] = id.String()
	}
	return s.vs.DeleteByIDs(dbc.Ctx, "user:"+owner.String(), ids)
}

// IndexKnowledge mirrors knowledge-entry vectors into the shared knowledge
// namespace.
func (s *Searcher) IndexKnowledge(dbc dbctx.Context, entries []*types.KnowledgeEntry) error {
	if s.vs == nil || len(entries) == 0 {
		return nil
	}
	vectors := make([]pinecone.Vector, 0, len(entries))
	for _, e := range entries {
		vec := e.Vector()
		if len(vec) == 0 {
			continue
		}
		meta := map[string]any{"embed_model": e.EmbedModel}
		if e.OwnerUserID != nil {
			meta["owner_user_id"] = e.OwnerUserID.String()
		}
		vectors = append(vectors, pinecone.Vector{
			ID:       e.ID.String(),
			Values:   vec,
			Metadata: meta,
		})
	}
	return s.vs.Upsert(dbc.Ctx, "knowledge", vectors)
}

// DropKnowledge removes a deleted knowledge entry's vector.
func (s *Searcher) DropKnowledge(dbc dbctx.Context, id uuid.UUID) error {
	if s.vs == nil {
		return nil
	}
	return s.vs.DeleteByIDs(dbc.Ctx, "knowledge", []string{id.String()})
}
