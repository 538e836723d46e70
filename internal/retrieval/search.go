package retrieval

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/claimsage/claimsage-backend/internal/platform/apperr"
)

type Kind string

const (
	KindDocumentChunk  Kind = "document_chunk"
	KindKnowledgeEntry Kind = "knowledge_entry"
)

// Scope is the hard data-isolation boundary of every similarity search:
// candidates must belong to OwnerUserID, or be global (owner absent) when
// IncludeGlobal is set. It is never relaxed implicitly.
type Scope struct {
	OwnerUserID   uuid.UUID
	IncludeGlobal bool
}

// Candidate is a stored row eligible for ranking against a query vector.
type Candidate struct {
	ID          uuid.UUID
	Kind        Kind
	DocumentID  uuid.UUID
	Title       string
	Text        string
	Vector      []float32
	OwnerUserID *uuid.UUID // nil means global
	CreatedAt   time.Time
}

type Match struct {
	Candidate
	Similarity float64
}

// Rank scores candidates against the query vector and returns matches with
// similarity strictly above threshold, ordered by descending similarity with
// ties broken by ascending creation time then id, truncated to topK. A
// candidate outside the scope is an internal invariant failure and fails the
// whole call with a scope-violation error rather than being silently
// filtered. Candidates whose vectors are not comparable to the query
// (dimension mismatch, zero vector) are skipped. An empty result is not an
// error.
func Rank(candidates []Candidate, query []float32, scope Scope, threshold float64, topK int) ([]Match, error) {
	if len(query) == 0 {
		return []Match{}, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if !inScope(c, scope) {
			owner := "global"
			if c.OwnerUserID != nil {
				owner = c.OwnerUserID.String()
			}
			return nil, apperr.Newf(apperr.KindScopeViolation,
				"candidate %s (%s) owned by %s leaked into scope owner=%s include_global=%t",
				c.ID, c.Kind, owner, scope.OwnerUserID, scope.IncludeGlobal)
		}
		sim, ok := CosineSimilarity(query, c.Vector)
		if !ok {
			continue
		}
		if sim > threshold {
			matches = append(matches, Match{Candidate: c, Similarity: sim})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.Before(matches[j].CreatedAt)
		}
		return matches[i].ID.String() < matches[j].ID.String()
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func inScope(c Candidate, scope Scope) bool {
	if c.OwnerUserID == nil {
		return scope.IncludeGlobal
	}
	return *c.OwnerUserID == scope.OwnerUserID
}
