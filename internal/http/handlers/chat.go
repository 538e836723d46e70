package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/claimsage/claimsage-backend/internal/http/response"
	"github.com/claimsage/claimsage-backend/internal/platform/logger"
	"github.com/claimsage/claimsage-backend/internal/services"
)

type ChatHandler struct {
	log  *logger.Logger
	chat services.ChatService
}

func NewChatHandler(log *logger.Logger, chat services.ChatService) *ChatHandler {
	return &ChatHandler{log: log.With("handler", "ChatHandler"), chat: chat}
}

type createSessionRequest struct {
	Title string `json:"title"`
}

func (h *ChatHandler) CreateSession(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	var req createSessionRequest
	_ = c.ShouldBindJSON(&req)

	session, err := h.chat.CreateSession(dbcFrom(c), userID, req.Title)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondCreated(c, session)
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	sessions, err := h.chat.ListSessions(dbcFrom(c), userID, 100)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"sessions": sessions})
}

func (h *ChatHandler) GetSession(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	session, err := h.chat.GetSession(dbcFrom(c), userID, sessionID)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	messages, err := h.chat.ListMessages(dbcFrom(c), userID, sessionID, 200)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"session": session, "messages": messages})
}

func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	messages, err := h.chat.ListMessages(dbcFrom(c), userID, sessionID, 200)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"messages": messages})
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	if err := h.chat.DeleteSession(dbcFrom(c), userID, sessionID); err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": sessionID})
}

type streamRequest struct {
	Message string `json:"message"`
}

// Stream answers one user message over SSE: `delta` events carry text
// increments as they arrive, `done` carries the persisted message id, and a
// terminal `error` event is distinct from normal completion. Client
// disconnects cancel the upstream completion.
func (h *ChatHandler) Stream(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}

	var req streamRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
		req.Message = c.Query("message")
	}
	if req.Message == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_input", fmt.Errorf("message required"))
		return
	}

	// Resolve the session before committing to an event stream, so bad
	// requests still get a plain HTTP error envelope.
	if _, err := h.chat.GetSession(dbcFrom(c), userID, sessionID); err != nil {
		response.RespondAppError(c, err)
		return
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	writeEvent := func(event string, data any) {
		raw, mErr := json.Marshal(data)
		if mErr != nil {
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, raw)
		w.Flush()
	}

	msg, err := h.chat.StreamReply(dbcFrom(c), userID, sessionID, req.Message, func(delta string) {
		writeEvent("delta", gin.H{"text": delta})
	})
	if err != nil {
		writeEvent("error", gin.H{"message": err.Error()})
		return
	}
	writeEvent("done", gin.H{"message_id": msg.ID, "content": msg.Content})
}
