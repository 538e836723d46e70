package app

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	httpserver "github.com/claimsage/claimsage-backend/internal/http"
	httpH "github.com/claimsage/claimsage-backend/internal/http/handlers"
	httpMW "github.com/claimsage/claimsage-backend/internal/http/middleware"
	"github.com/claimsage/claimsage-backend/internal/platform/logger"
	"github.com/claimsage/claimsage-backend/internal/realtime"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health    *httpH.HealthHandler
	Document  *httpH.DocumentHandler
	Chat      *httpH.ChatHandler
	Knowledge *httpH.KnowledgeHandler
	Realtime  *httpH.RealtimeHandler
}

func wireMiddleware(log *logger.Logger, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Token),
	}
}

func wireHandlers(log *logger.Logger, db *gorm.DB, services Services, sseHub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:    httpH.NewHealthHandler(log, db),
		Document:  httpH.NewDocumentHandler(log, services.Document),
		Chat:      httpH.NewChatHandler(log, services.Chat),
		Knowledge: httpH.NewKnowledgeHandler(log, services.Knowledge),
		Realtime:  httpH.NewRealtimeHandler(log, sseHub),
	}
}

func wireRouter(log *logger.Logger, handlers Handlers, middleware Middleware) *gin.Engine {
	return httpserver.NewRouter(httpserver.RouterConfig{
		Log:              log,
		AuthMiddleware:   middleware.Auth,
		HealthHandler:    handlers.Health,
		DocumentHandler:  handlers.Document,
		ChatHandler:      handlers.Chat,
		KnowledgeHandler: handlers.Knowledge,
		RealtimeHandler:  handlers.Realtime,
	})
}
