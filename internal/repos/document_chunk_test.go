package repos

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/claimsage/claimsage-backend/internal/platform/dbctx"
	"github.com/claimsage/claimsage-backend/internal/platform/logger"
	"github.com/claimsage/claimsage-backend/internal/types"
)

func testRepoDB(t *testing.T) (*gorm.DB, *logger.Logger) {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "repo.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&types.User{}, &types.Document{}, &types.DocumentChunk{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db, log
}

func seedDocument(t *testing.T, db *gorm.DB) *types.Document {
	t.Helper()
	user := &types.User{ID: uuid.New(), Email: uuid.New().String() + "@example.com"}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	doc := &types.Document{
		ID:         uuid.New(),
		UserID:     user.ID,
		Name:       "exam.txt",
		StorageKey: "documents/x",
		Status:     types.DocStatusProcessing,
	}
	if err := db.Create(doc).Error; err != nil {
		t.Fatalf("seed document: %v", err)
	}
	return doc
}

func TestChunkUpsertIdempotent(t *testing.T) {
	db, log := testRepoDB(t)
	repo := NewDocumentChunkRepo(db, log)
	dbc := dbctx.Context{Ctx: context.Background()}
	doc := seedDocument(t, db)

	chunks := []*types.DocumentChunk{
		{ID: uuid.New(), DocumentID: doc.ID, ChunkIndex: 0, TotalChunks: 2, Text: "first", Embedding: types.EncodeVector([]float32{1, 0}), EmbedModel: "m1"},
		{ID: uuid.New(), DocumentID: doc.ID, ChunkIndex: 1, TotalChunks: 2, Text: "second", Embedding: types.EncodeVector([]float32{0, 1}), EmbedModel: "m1"},
	}
	if err := repo.Upsert(dbc, chunks); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// Same (document_id, chunk_index) pair again, new row ids: no duplicates,
	// existing rows untouched.
	again := []*types.DocumentChunk{
		{ID: uuid.New(), DocumentID: doc.ID, ChunkIndex: 0, TotalChunks: 2, Text: "first-rewritten", Embedding: types.EncodeVector([]float32{0.5, 0.5}), EmbedModel: "m1"},
	}
	if err := repo.Upsert(dbc, again); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := repo.GetByDocumentID(dbc, doc.ID)
	if err != nil {
		t.Fatalf("GetByDocumentID: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows after re-upsert, got %d", len(got))
	}
	if got[0].Text != "first" {
		t.Fatalf("existing chunk was overwritten: %q", got[0].Text)
	}
	if got[0].ChunkIndex != 0 || got[1].ChunkIndex != 1 {
		t.Fatalf("rows not ordered by chunk_index: %d, %d", got[0].ChunkIndex, got[1].ChunkIndex)
	}
}

func TestGetEmbeddedFiltersByModelTag(t *testing.T) {
	db, log := testRepoDB(t)
	repo := NewDocumentChunkRepo(db, log)
	dbc := dbctx.Context{Ctx: context.Background()}
	doc := seedDocument(t, db)

	chunks := []*types.DocumentChunk{
		{ID: uuid.New(), DocumentID: doc.ID, ChunkIndex: 0, TotalChunks: 2, Text: "old model", Embedding: types.EncodeVector([]float32{1, 0}), EmbedModel: "m1"},
		{ID: uuid.New(), DocumentID: doc.ID, ChunkIndex: 1, TotalChunks: 2, Text: "new model", Embedding: types.EncodeVector([]float32{0, 1}), EmbedModel: "m2"},
	}
	if err := repo.Upsert(dbc, chunks); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := repo.GetEmbeddedByUserID(dbc, doc.UserID, "m2")
	if err != nil {
		t.Fatalf("GetEmbeddedByUserID: %v", err)
	}
	if len(got) != 1 || got[0].Text != "new model" {
		t.Fatalf("model tag filter failed: %+v", got)
	}
}

func TestGetEmbeddedCarriesOwningDocument(t *testing.T) {
	db, log := testRepoDB(t)
	repo := NewDocumentChunkRepo(db, log)
	dbc := dbctx.Context{Ctx: context.Background()}
	doc := seedDocument(t, db)

	chunks := []*types.DocumentChunk{
		{ID: uuid.New(), DocumentID: doc.ID, ChunkIndex: 0, TotalChunks: 1, Text: "scoped", Embedding: types.EncodeVector([]float32{1, 0}), EmbedModel: "m1"},
	}
	if err := repo.Upsert(dbc, chunks); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := repo.GetEmbeddedByUserID(dbc, doc.UserID, "m1")
	if err != nil {
		t.Fatalf("GetEmbeddedByUserID: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
	// Ranking re-verifies ownership off the loaded document row; an absent
	// association would make every result look unscoped.
	if got[0].Document == nil {
		t.Fatalf("owning document not loaded")
	}
	if got[0].Document.UserID != doc.UserID {
		t.Fatalf("owner: want=%s got=%s", doc.UserID, got[0].Document.UserID)
	}
}
