package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/claimsage/claimsage-backend/internal/http/handlers"
	httpMW "github.com/claimsage/claimsage-backend/internal/http/middleware"
	"github.com/claimsage/claimsage-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	AuthMiddleware *httpMW.AuthMiddleware

	HealthHandler    *httpH.HealthHandler
	DocumentHandler  *httpH.DocumentHandler
	ChatHandler      *httpH.ChatHandler
	KnowledgeHandler *httpH.KnowledgeHandler
	RealtimeHandler  *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(otelgin.Middleware("claimsage-backend"))
	r.Use(httpMW.CORS(cfg.Log))

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		if cfg.RealtimeHandler != nil {
			protected.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
		}

		if cfg.DocumentHandler != nil {
			protected.POST("/documents", cfg.DocumentHandler.Upload)
			protected.GET("/documents", cfg.DocumentHandler.List)
			protected.GET("/documents/:id", cfg.DocumentHandler.Get)
			protected.DELETE("/documents/:id", cfg.DocumentHandler.Delete)
		}

		if cfg.ChatHandler != nil {
			protected.POST("/chat/sessions", cfg.ChatHandler.CreateSession)
			protected.GET("/chat/sessions", cfg.ChatHandler.ListSessions)
			protected.GET("/chat/sessions/:id", cfg.ChatHandler.GetSession)
			protected.GET("/chat/sessions/:id/messages", cfg.ChatHandler.ListMessages)
			protected.DELETE("/chat/sessions/:id", cfg.ChatHandler.DeleteSession)
			protected.POST("/chat/sessions/:id/stream", cfg.ChatHandler.Stream)
		}

		if cfg.KnowledgeHandler != nil {
			protected.GET("/knowledge", cfg.KnowledgeHandler.List)
			protected.DELETE("/knowledge/:id", cfg.KnowledgeHandler.Delete)

			admin := protected.Group("/")
			if cfg.AuthMiddleware != nil {
				admin.Use(cfg.AuthMiddleware.RequireAdmin())
			}
			admin.POST("/knowledge/train", cfg.KnowledgeHandler.Train)
		}
	}

	return r
}
