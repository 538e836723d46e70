package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/claimsage/claimsage-backend/internal/clients/pinecone"
	"github.com/claimsage/claimsage-backend/internal/platform/logger"
	"github.com/claimsage/claimsage-backend/internal/utils"
)

// Swappable in tests.
var (
	newPineconeClient      = pinecone.New
	newPineconeVectorStore = pinecone.NewVectorStore
)

type VectorProvider string

const (
	VectorProviderNone     VectorProvider = ""
	VectorProviderPinecone VectorProvider = "pinecone"
)

type VectorBootstrapCode string

const (
	VectorBootstrapInvalidProvider VectorBootstrapCode = "invalid_provider"
	VectorBootstrapClientFailed    VectorBootstrapCode = "client_init_failed"
	VectorBootstrapStoreFailed     VectorBootstrapCode = "store_init_failed"
)

type VectorBootstrapError struct {
	Code     VectorBootstrapCode
	Provider string
	Cause    error
}

func (e *VectorBootstrapError) Error() string {
	if e == nil {
		return "vector provider bootstrap failed"
	}
	return fmt.Sprintf("vector provider bootstrap failed (code=%s provider=%q): %v", e.Code, e.Provider, e.Cause)
}

func (e *VectorBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveVectorStore selects the ANN pre-filter backend from VECTOR_PROVIDER.
// Retrieval is exact and Postgres-backed either way; a nil store just means
// every candidate is scored in process.
func resolveVectorStore(log *logger.Logger, cfg Config) (pinecone.VectorStore, error) {
	provider := VectorProvider(strings.TrimSpace(strings.ToLower(cfg.VectorProvider)))
	switch provider {
	case VectorProviderNone:
		log.Info("No vector provider configured; ANN pre-filter disabled")
		return nil, nil

	case VectorProviderPinecone:
		apiKey := strings.TrimSpace(os.Getenv("PINECONE_API_KEY"))
		if apiKey == "" {
			log.Warn("PINECONE_API_KEY not set; ANN pre-filter disabled")
			return nil, nil
		}
		pc, err := newPineconeClient(log, pinecone.Config{
			APIKey:  apiKey,
			Timeout: time.Duration(utils.GetEnvAsInt("PINECONE_TIMEOUT_SECONDS", 30, log)) * time.Second,
		})
		if err != nil {
			return nil, &VectorBootstrapError{Code: VectorBootstrapClientFailed, Provider: string(provider), Cause: err}
		}
		vs, err := newPineconeVectorStore(log, pc)
		if err != nil {
			return nil, &VectorBootstrapError{Code: VectorBootstrapStoreFailed, Provider: string(provider), Cause: err}
		}
		log.Info("Vector provider selected", "provider", string(provider))
		return vs, nil

	default:
		return nil, &VectorBootstrapError{
			Code:     VectorBootstrapInvalidProvider,
			Provider: cfg.VectorProvider,
			Cause:    fmt.Errorf("want %q or empty", VectorProviderPinecone),
		}
	}
}
