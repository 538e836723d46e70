package app

import (
	"context"
	"errors"
	"testing"

	"github.com/claimsage/claimsage-backend/internal/clients/pinecone"
	"github.com/claimsage/claimsage-backend/internal/platform/logger"
)

type stubVectorStore struct {
	upsertCalls int
}

func (s *stubVectorStore) Upsert(context.Context, string, []pinecone.Vector) error {
	s.upsertCalls++
	return nil
}

func (s *stubVectorStore) QueryIDs(context.Context, string, []float32, int, map[string]any) ([]string, error) {
	return nil, nil
}

func (s *stubVectorStore) DeleteByIDs(context.Context, string, []string) error {
	return nil
}

func testAppLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() { log.Sync() })
	return log
}

func TestResolveVectorStoreNoneDisablesANN(t *testing.T) {
	log := testAppLogger(t)

	called := false
	orig := newPineconeClient
	t.Cleanup(func() { newPineconeClient = orig })
	newPineconeClient = func(_ *logger.Logger, _ pinecone.Config) (pinecone.Client, error) {
		called = true
		return nil, nil
	}

	vs, err := resolveVectorStore(log, Config{VectorProvider: ""})
	if err != nil {
		t.Fatalf("resolveVectorStore: %v", err)
	}
	if vs != nil {
		t.Fatalf("expected nil vector store with no provider")
	}
	if called {
		t.Fatalf("pinecone client init must not run with no provider")
	}
}

func TestResolveVectorStorePineconeWithoutKeyDegrades(t *testing.T) {
	log := testAppLogger(t)
	t.Setenv("PINECONE_API_KEY", "")

	vs, err := resolveVectorStore(log, Config{VectorProvider: "pinecone"})
	if err != nil {
		t.Fatalf("resolveVectorStore: %v", err)
	}
	if vs != nil {
		t.Fatalf("expected nil vector store without an API key")
	}
}

func TestResolveVectorStorePineconeSelected(t *testing.T) {
	log := testAppLogger(t)
	t.Setenv("PINECONE_API_KEY", "pc-test-key")

	origClient := newPineconeClient
	origStore := newPineconeVectorStore
	t.Cleanup(func() {
		newPineconeClient = origClient
		newPineconeVectorStore = origStore
	})

	var captured pinecone.Config
	newPineconeClient = func(_ *logger.Logger, cfg pinecone.Config) (pinecone.Client, error) {
		captured = cfg
		return nil, nil
	}
	stub := &stubVectorStore{}
	newPineconeVectorStore = func(_ *logger.Logger, _ pinecone.Client) (pinecone.VectorStore, error) {
		return stub, nil
	}

	vs, err := resolveVectorStore(log, Config{VectorProvider: "Pinecone"})
	if err != nil {
		t.Fatalf("resolveVectorStore: %v", err)
	}
	if vs == nil {
		t.Fatalf("expected vector store")
	}
	if captured.APIKey != "pc-test-key" {
		t.Fatalf("api key: want=%q got=%q", "pc-test-key", captured.APIKey)
	}
	if err := vs.Upsert(context.Background(), "ns", []pinecone.Vector{{ID: "vec-1", Values: []float32{1, 2, 3}}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if stub.upsertCalls != 1 {
		t.Fatalf("underlying store not called; upsert_calls=%d", stub.upsertCalls)
	}
}

func TestResolveVectorStoreUnknownProvider(t *testing.T) {
	log := testAppLogger(t)

	_, err := resolveVectorStore(log, Config{VectorProvider: "qdrant"})
	if err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	var be *VectorBootstrapError
	if !errors.As(err, &be) {
		t.Fatalf("expected VectorBootstrapError, got %T", err)
	}
	if be.Code != VectorBootstrapInvalidProvider {
		t.Fatalf("code: want=%q got=%q", VectorBootstrapInvalidProvider, be.Code)
	}
}

func TestResolveVectorStoreStoreInitFailure(t *testing.T) {
	log := testAppLogger(t)
	t.Setenv("PINECONE_API_KEY", "pc-test-key")

	origClient := newPineconeClient
	origStore := newPineconeVectorStore
	t.Cleanup(func() {
		newPineconeClient = origClient
		newPineconeVectorStore = origStore
	})

	newPineconeClient = func(_ *logger.Logger, _ pinecone.Config) (pinecone.Client, error) {
		return nil, nil
	}
	boom := errors.New("missing PINECONE_INDEX_NAME")
	newPineconeVectorStore = func(_ *logger.Logger, _ pinecone.Client) (pinecone.VectorStore, error) {
		return nil, boom
	}

	_, err := resolveVectorStore(log, Config{VectorProvider: "pinecone"})
	var be *VectorBootstrapError
	if !errors.As(err, &be) {
		t.Fatalf("expected VectorBootstrapError, got %v", err)
	}
	if be.Code != VectorBootstrapStoreFailed {
		t.Fatalf("code: want=%q got=%q", VectorBootstrapStoreFailed, be.Code)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("cause not preserved through Unwrap")
	}
}
