package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/claimsage/claimsage-backend/internal/types"
)

func newDocService(e *testEnv, cfg DocumentConfig) DocumentService {
	return NewDocumentService(e.log, e.db, e.docs, e.chunks, e.ai, e.searcher, e.store, NopEmitter{}, cfg)
}

func uploadDoc(t *testing.T, e *testEnv, svc DocumentService, userID uuid.UUID, content string) *types.Document {
	t.Helper()
	doc, err := svc.Upload(e.dbc(), userID, "exam.txt", "text/plain", types.DocTypeExamReport, strings.NewReader(content))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if doc.Status != types.DocStatusPending {
		t.Fatalf("fresh upload status = %s, want pending", doc.Status)
	}
	return doc
}

func TestAnalyzeCompletesHappyPath(t *testing.T) {
	e := newTestEnv(t)
	user := seedUser(t, e.db)
	svc := newDocService(e, DocumentConfig{})

	e.ai.genFn = func(_ context.Context, system, userPrompt string) (string, error) {
		if strings.Contains(system, "Combine") {
			return "Combined plain-language summary.", nil
		}
		return "Section analysis.", nil
	}

	doc := uploadDoc(t, e, svc, user.ID, "The veteran reports knee pain. The examiner noted limited flexion.")
	if err := svc.Analyze(context.Background(), doc.ID); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	got, err := e.docs.GetByID(e.dbc(), doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.DocStatusCompleted {
		t.Fatalf("status = %s (%s), want completed", got.Status, got.ErrorMessage)
	}
	if got.Analysis != "Combined plain-language summary." {
		t.Fatalf("analysis = %q", got.Analysis)
	}
	if got.EmbedModel != e.ai.EmbedModel() {
		t.Fatalf("embed model tag = %q, want %q", got.EmbedModel, e.ai.EmbedModel())
	}

	chunks, err := e.chunks.GetByDocumentID(e.dbc(), doc.ID)
	if err != nil {
		t.Fatalf("GetByDocumentID: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected persisted chunks")
	}
	for i, c := range chunks {
		if c.ChunkIndex != i {
			t.Fatalf("chunk indices not contiguous: got %d at position %d", c.ChunkIndex, i)
		}
		if c.TotalChunks != len(chunks) {
			t.Fatalf("total_chunks = %d, want %d", c.TotalChunks, len(chunks))
		}
		if len(c.Vector()) == 0 {
			t.Fatalf("chunk %d missing embedding", i)
		}
	}
}

// A file that extracts to empty text moves the document to error with a
// message about unreadable/empty content, and creates zero chunks.
func TestAnalyzeEmptyFileEndsInError(t *testing.T) {
	e := newTestEnv(t)
	user := seedUser(t, e.db)
	svc := newDocService(e, DocumentConfig{})

	doc := uploadDoc(t, e, svc, user.ID, "   \n\t  ")
	if err := svc.Analyze(context.Background(), doc.ID); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	got, _ := e.docs.GetByID(e.dbc(), doc.ID)
	if got.Status != types.DocStatusError {
		t.Fatalf("status = %s, want error", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "empty") && !strings.Contains(got.ErrorMessage, "unreadable") {
		t.Fatalf("error message should reference empty/unreadable content: %q", got.ErrorMessage)
	}

	chunks, _ := e.chunks.GetByDocumentID(e.dbc(), doc.ID)
	if len(chunks) != 0 {
		t.Fatalf("expected zero chunks, got %d", len(chunks))
	}
}

// Half the chunks fail embedding: the document still completes on the
// successful half, and the failed chunks never become retrievable.
func TestAnalyzePartialEmbeddingOutage(t *testing.T) {
	e := newTestEnv(t)
	user := seedUser(t, e.db)
	svc := newDocService(e, DocumentConfig{MaxChunkTokens: 60, OverlapTokens: 0, Workers: 3})

	var paras []string
	for i := 0; i < 10; i++ {
		marker := ""
		if i%2 == 1 {
			marker = "OUTAGE "
		}
		paras = append(paras, fmt.Sprintf(
			"%sParagraph %d describes one distinct medical finding in enough words to stand alone as a chunk of meaningful size for the test.",
			marker, i,
		))
	}
	content := strings.Join(paras, "\n\n")

	e.ai.embedFn = func(_ context.Context, inputs []string) ([][]float32, error) {
		for _, in := range inputs {
			if strings.Contains(in, "OUTAGE") {
				return nil, errors.New("simulated provider outage")
			}
		}
		out := make([][]float32, len(inputs))
		for i := range inputs {
			out[i] = []float32{1, 0, 0}
		}
		return out, nil
	}

	doc := uploadDoc(t, e, svc, user.ID, content)
	if err := svc.Analyze(context.Background(), doc.ID); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	got, _ := e.docs.GetByID(e.dbc(), doc.ID)
	if got.Status != types.DocStatusCompleted {
		t.Fatalf("status = %s (%s), want completed despite partial outage", got.Status, got.ErrorMessage)
	}

	embedded, err := e.chunks.GetEmbeddedByUserID(e.dbc(), user.ID, e.ai.EmbedModel())
	if err != nil {
		t.Fatalf("GetEmbeddedByUserID: %v", err)
	}
	if len(embedded) != 5 {
		t.Fatalf("retrievable chunks = %d, want 5", len(embedded))
	}
	for _, c := range embedded {
		if strings.Contains(c.Text, "OUTAGE") {
			t.Fatalf("failed chunk leaked into retrieval: %q", c.Text[:40])
		}
	}
}

// Every chunk failing embedding is total failure: document goes to error.
func TestAnalyzeTotalEmbeddingOutage(t *testing.T) {
	e := newTestEnv(t)
	user := seedUser(t, e.db)
	svc := newDocService(e, DocumentConfig{})

	e.ai.embedFn = func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("provider down")
	}

	doc := uploadDoc(t, e, svc, user.ID, "Some perfectly normal document text about a rating decision.")
	if err := svc.Analyze(context.Background(), doc.ID); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	got, _ := e.docs.GetByID(e.dbc(), doc.ID)
	if got.Status != types.DocStatusError {
		t.Fatalf("status = %s, want error", got.Status)
	}
}

// Final summarization failure is terminal even when chunks embedded fine.
func TestAnalyzeSummaryFailureEndsInError(t *testing.T) {
	e := newTestEnv(t)
	user := seedUser(t, e.db)
	svc := newDocService(e, DocumentConfig{})

	e.ai.genFn = func(_ context.Context, system, _ string) (string, error) {
		if strings.Contains(system, "Combine") {
			return "", errors.New("completion failed after retries")
		}
		return "Section analysis.", nil
	}

	doc := uploadDoc(t, e, svc, user.ID, "Text that embeds fine but cannot be summarized.")
	if err := svc.Analyze(context.Background(), doc.ID); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	got, _ := e.docs.GetByID(e.dbc(), doc.ID)
	if got.Status != types.DocStatusError {
		t.Fatalf("status = %s, want error", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "summary") {
		t.Fatalf("error message should reference the summary step: %q", got.ErrorMessage)
	}
}

func TestAnalyzeSkipsNonPendingDocument(t *testing.T) {
	e := newTestEnv(t)
	user := seedUser(t, e.db)
	svc := newDocService(e, DocumentConfig{})

	doc := uploadDoc(t, e, svc, user.ID, "content")
	if err := e.docs.MarkProcessing(e.dbc(), doc.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}

	if err := svc.Analyze(context.Background(), doc.ID); err != nil {
		t.Fatalf("Analyze on non-pending doc should be a no-op, got %v", err)
	}
	got, _ := e.docs.GetByID(e.dbc(), doc.ID)
	if got.Status != types.DocStatusProcessing {
		t.Fatalf("status = %s, want untouched processing", got.Status)
	}
}

func TestDeleteRemovesChunksAndRecord(t *testing.T) {
	e := newTestEnv(t)
	user := seedUser(t, e.db)
	svc := newDocService(e, DocumentConfig{})

	doc := uploadDoc(t, e, svc, user.ID, "Deletable content about an exam report.")
	if err := svc.Analyze(context.Background(), doc.ID); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if err := svc.Delete(e.dbc(), user.ID, doc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	got, err := e.docs.GetByID(e.dbc(), doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got != nil {
		t.Fatal("document should be gone")
	}
	chunks, _ := e.chunks.GetByDocumentID(e.dbc(), doc.ID)
	if len(chunks) != 0 {
		t.Fatalf("chunks should cascade away, got %d", len(chunks))
	}
}

func TestDeleteRejectsForeignDocument(t *testing.T) {
	e := newTestEnv(t)
	owner := seedUser(t, e.db)
	other := seedUser(t, e.db)
	svc := newDocService(e, DocumentConfig{})

	doc := uploadDoc(t, e, svc, owner.ID, "private content")
	if err := svc.Delete(e.dbc(), other.ID, doc.ID); err == nil {
		t.Fatal("cross-owner delete must fail")
	}
}
