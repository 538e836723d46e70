package app

import (
	"github.com/claimsage/claimsage-backend/internal/platform/logger"
	"github.com/claimsage/claimsage-backend/internal/platform/openai"
	"github.com/claimsage/claimsage-backend/internal/retrieval"
	"github.com/claimsage/claimsage-backend/internal/services"
	"github.com/claimsage/claimsage-backend/internal/utils"
)

type Config struct {
	Environment    string
	Version        string
	VectorProvider string

	OpenAI    openai.Config
	Retrieval retrieval.Config
	Document  services.DocumentConfig
	Chat      services.ChatConfig
}

func LoadConfig(log *logger.Logger) (Config, error) {
	aiCfg, err := openai.LoadConfig(log)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Environment:    utils.GetEnv("APP_ENV", "development", log),
		Version:        utils.GetEnv("APP_VERSION", "dev", log),
		VectorProvider: utils.GetEnv("VECTOR_PROVIDER", "", log),
		OpenAI:         aiCfg,
		Retrieval:      retrieval.LoadConfig(log),
		Document:       services.LoadDocumentConfig(log),
		Chat:           services.LoadChatConfig(log),
	}, nil
}
