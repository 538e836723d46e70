package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/claimsage/claimsage-backend/internal/http/response"
	"github.com/claimsage/claimsage-backend/internal/platform/dbctx"
	"github.com/claimsage/claimsage-backend/internal/platform/logger"
	"github.com/claimsage/claimsage-backend/internal/requestdata"
	"github.com/claimsage/claimsage-backend/internal/services"
)

type DocumentHandler struct {
	log  *logger.Logger
	docs services.DocumentService
}

func NewDocumentHandler(log *logger.Logger, docs services.DocumentService) *DocumentHandler {
	return &DocumentHandler{log: log.With("handler", "DocumentHandler"), docs: docs}
}

func requestUser(c *gin.Context) (uuid.UUID, bool) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		return uuid.Nil, false
	}
	return rd.UserID, true
}

func dbcFrom(c *gin.Context) dbctx.Context {
	return dbctx.From(c.Request.Context())
}

// Upload accepts one multipart file, stores it and kicks off analysis in the
// background; the response carries the pending document record.
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	docType := c.PostForm("doc_type")

	f, err := fileHeader.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	defer f.Close()

	doc, err := h.docs.Upload(dbcFrom(c), userID, fileHeader.Filename, fileHeader.Header.Get("Content-Type"), docType, f)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}

	h.docs.AnalyzeAsync(doc.ID)
	response.RespondCreated(c, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	docs, err := h.docs.List(dbcFrom(c), userID, 100)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"documents": docs})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	doc, err := h.docs.GetByID(dbcFrom(c), userID, docID)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	if err := h.docs.Delete(dbcFrom(c), userID, docID); err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": docID})
}
