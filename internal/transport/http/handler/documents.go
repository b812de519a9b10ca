package handler

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"adjusterhub/internal/app"
	"adjusterhub/internal/apperr"
	"adjusterhub/internal/transport/http/response"
)

var errMissingFile = apperr.WithCode(apperr.KindValidation, 40020, "file field is required")

type DocumentHandler struct {
	documentService *app.DocumentService
}

type AskRequest struct {
	Question    string `json:"question" binding:"required,max=2000"`
	DocumentIDs []uint `json:"document_ids" binding:"max=50"`
	TopK        int    `json:"top_k" binding:"gte=0,lte=20"`
}

func NewDocumentHandler(documentService *app.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// Upload takes a multipart form with file, category and an optional claim_id.
func (h *DocumentHandler) Upload(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		response.Fail(c, errMissingFile)
		return
	}
	input := app.UploadInput{
		Category: c.PostForm("category"),
		FileName: header.Filename,
	}
	if raw := c.PostForm("claim_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			response.Fail(c, errInvalidID)
			return
		}
		claimID := uint(id)
		input.ClaimID = &claimID
	}

	f, err := header.Open()
	if err != nil {
		response.Fail(c, apperr.Wrap(apperr.KindFileUpload, "read upload failed", err))
		return
	}
	defer f.Close()
	input.Content = f

	doc, err := h.documentService.Upload(c.Request.Context(), p, input)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	docs, err := h.documentService.List(p, app.DocumentListFilter{
		Category: c.Query("category"),
		ClaimID:  uint(queryInt(c, "claim_id", 0)),
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) Download(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	doc, f, err := h.documentService.Open(p, id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", doc.MimeType)
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Name}))
	http.ServeContent(c.Writer, c.Request, doc.Name, doc.CreatedAt, f)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.documentService.Delete(p, id); err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, gin.H{"deleted_document_id": id})
}

func (h *DocumentHandler) Ask(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req AskRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.documentService.Ask(c.Request.Context(), p, app.AskInput{
		Question:    req.Question,
		DocumentIDs: req.DocumentIDs,
		TopK:        req.TopK,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, result)
}
