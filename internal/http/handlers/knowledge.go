package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/claimsage/claimsage-backend/internal/http/response"
	"github.com/claimsage/claimsage-backend/internal/platform/logger"
	"github.com/claimsage/claimsage-backend/internal/requestdata"
	"github.com/claimsage/claimsage-backend/internal/services"
)

type KnowledgeHandler struct {
	log       *logger.Logger
	knowledge services.KnowledgeService
}

func NewKnowledgeHandler(log *logger.Logger, knowledge services.KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{log: log.With("handler", "KnowledgeHandler"), knowledge: knowledge}
}

type trainRequest struct {
	Records []services.TrainRecord `json:"records"`
}

// Train ingests a batch of curated knowledge records; the response always
// carries one result per record.
func (h *KnowledgeHandler) Train(c *gin.Context) {
	var req trainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	if len(req.Records) == 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_input", fmt.Errorf("records required"))
		return
	}

	results := h.knowledge.Train(dbcFrom(c), req.Records)
	response.RespondOK(c, gin.H{"results": results})
}

func (h *KnowledgeHandler) List(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	entries, err := h.knowledge.List(dbcFrom(c), userID)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"entries": entries})
}

func (h *KnowledgeHandler) Delete(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	if err := h.knowledge.Delete(dbcFrom(c), entryID, rd.UserID, rd.IsAdmin); err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": entryID})
}
