package services

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
	"github.com/claimsage/claimsage-backend/internal/repos"
	"github.com/claimsage/claimsage-backend/internal/retrieval"
	"github.com/claimsage/claimsage-backend/internal/storage"
	"github.com/claimsage/claimsage-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&types.User{},
		&types.Document{},
		&types.DocumentChunk{},
		&types.KnowledgeEntry{},
		&types.ChatSession{},
		&types.ChatMessage{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB) *types.User {
	t.Helper()
	u := &types.User{ID: uuid.New(), Email: uuid.New().String() + "@example.com"}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

// fakeAI is a scriptable stand-in for the completion/embedding provider.
type fakeAI struct {
	embedFn  func(ctx context.Context, inputs []string) ([][]float32, error)
	genFn    func(ctx context.Context, system, user string) (string, error)
	streamFn func(ctx context.Context, system, user string, onDelta func(string)) (string, error)
}

func (f *fakeAI) EmbedModel() string { return "test-embed-1" }

func (f *fakeAI) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if f.embedFn != nil {
		return f.embedFn(ctx, inputs)
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeAI) GenerateText(ctx context.Context, system, user string) (string, error) {
	if f.genFn != nil {
		return f.genFn(ctx, system, user)
	}
	return "analysis text", nil
}

func (f *fakeAI) StreamText(ctx context.Context, system, user string, onDelta func(string)) (string, error) {
	if f.streamFn != nil {
		return f.streamFn(ctx, system, user, onDelta)
	}
	for _, d := range []string{"Hello", " there"} {
		if onDelta != nil {
			onDelta(d)
		}
	}
	return "Hello there", nil
}

type testEnv struct {
	db        *gorm.DB
	log       *logger.Logger
	ai        *fakeAI
	docs      repos.DocumentRepo
	chunks    repos.DocumentChunkRepo
	knowledge repos.KnowledgeEntryRepo
	sessions  repos.ChatSessionRepo
	messages  repos.ChatMessageRepo
	searcher  *retrieval.Searcher
	store     storage.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := testLogger(t)
	db := testDB(t)
	ai := &fakeAI{}

	docs := repos.NewDocumentRepo(db, log)
	chunks := repos.NewDocumentChunkRepo(db, log)
	knowledge := repos.NewKnowledgeEntryRepo(db, log)

	store, err := storage.NewLocalStoreAt(log, t.TempDir())
	if err != nil {
		t.Fatalf("local store: %v", err)
	}

	return &testEnv{
		db:        db,
		log:       log,
		ai:        ai,
		docs:      docs,
		chunks:    chunks,
		knowledge: knowledge,
		sessions:  repos.NewChatSessionRepo(db, log),
		messages:  repos.NewChatMessageRepo(db, log),
		searcher:  retrieval.NewSearcher(log, chunks, knowledge, nil, ai.EmbedModel()),
		store:     store,
	}
}

func (e *testEnv) dbc() dbctx.Context {
	return dbctx.Context{Ctx: context.Background()}
}
