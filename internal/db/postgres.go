package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/claimsage/claimsage-backend/internal/platform/logger"
	"github.com/claimsage/claimsage-backend/internal/types"
	"github.com/claimsage/claimsage-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "claimsage", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	log.Info("Connecting to Postgres...")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		log.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: gdb, log: serviceLog}, nil
}

func (s *PostgresService) DB() *gorm.DB { return s.db }

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := s.db.AutoMigrate(
		&types.User{},
		&types.Document{},
		&types.DocumentChunk{},
		&types.KnowledgeEntry{},
		&types.ChatSession{},
		&types.ChatMessage{},
	); err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}

	s.log.Info("Configuring foreign key relationships for postgres tables...")
	constraints := []struct {
		name string
		stmt string
	}{
		{"fk_document_user_id", `
			ALTER TABLE "document"
			ADD CONSTRAINT "fk_document_user_id"
			FOREIGN KEY ("user_id") REFERENCES "user"("id")
			ON DELETE CASCADE`},
		{"fk_document_chunk_document_id", `
			ALTER TABLE "document_chunk"
			ADD CONSTRAINT "fk_document_chunk_document_id"
			FOREIGN KEY ("document_id") REFERENCES "document"("id")
			ON DELETE CASCADE`},
		{"fk_knowledge_entry_owner_user_id", `
			ALTER TABLE "knowledge_entry"
			ADD CONSTRAINT "fk_knowledge_entry_owner_user_id"
			FOREIGN KEY ("owner_user_id") REFERENCES "user"("id")
			ON DELETE CASCADE`},
		{"fk_chat_session_user_id", `
			ALTER TABLE "chat_session"
			ADD CONSTRAINT "fk_chat_session_user_id"
			FOREIGN KEY ("user_id") REFERENCES "user"("id")
			ON DELETE CASCADE`},
		{"fk_chat_message_session_id", `
			ALTER TABLE "chat_message"
			ADD CONSTRAINT "fk_chat_message_session_id"
			FOREIGN KEY ("session_id") REFERENCES "chat_session"("id")
			ON DELETE CASCADE`},
	}
	for _, c := range constraints {
		var exists bool
		if err := s.db.Raw(
			`SELECT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = ?)`, c.name,
		).Scan(&exists).Error; err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := s.db.Exec(c.stmt).Error; err != nil {
			s.log.Error("Failed to add foreign key constraint", "constraint", c.name, "error", err)
			return err
		}
	}
	return nil
}
