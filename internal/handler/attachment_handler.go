package handler

import (
	"net/http"

	"echallan-backend/internal/middleware"
	"echallan-backend/internal/service"
	"echallan-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type AttachmentHandler struct {
	attachmentService service.AttachmentService
}

func NewAttachmentHandler(attachmentService service.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{attachmentService: attachmentService}
}

func (h *AttachmentHandler) RegisterRoutes(router *gin.RouterGroup) {
	attachments := router.Group("/api/invoices/:id/attachments")
	attachments.Use(middleware.Authenticate())
	{
		attachments.POST("/upload-credential", h.IssueUploadCredential)
		attachments.POST("/confirm", h.ConfirmAttachment)
		attachments.GET("", h.ListAttachments)
	}

	// Single-file view URL lives beside the challan itself.
	router.GET("/api/invoices/:id/view-url", middleware.Authenticate(), h.IssueViewCredential)
}

// IssueUploadCredential hands out a short-lived presigned upload URL
// @Summary      Issue upload credential
// @Description  Returns a presigned PUT URL for attaching a file to a challan; issuing never modifies the challan
// @Tags         attachments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string  true  "Challan ID"
// @Param        payload  body      service.UploadCredentialRequest  true  "Upload Credential Payload"
// @Success      200      {object}  response.Response{data=service.UploadCredentialResponse}
// @Failure      404      {object}  response.Response
// @Failure      502      {object}  response.Response
// @Router       /api/invoices/{id}/attachments/upload-credential [post]
func (h *AttachmentHandler) IssueUploadCredential(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	var req service.UploadCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	cred, err := h.attachmentService.IssueUploadCredential(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, cred))
}

// ConfirmAttachment records an uploaded object key on the challan
// @Summary      Confirm attachment
// @Description  After the client PUTs the file, records the object key on the challan
// @Tags         attachments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string  true  "Challan ID"
// @Param        payload  body      service.ConfirmAttachmentRequest  true  "Confirm Attachment Payload"
// @Success      200      {object}  response.Response{data=service.InvoiceResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/invoices/{id}/attachments/confirm [post]
func (h *AttachmentHandler) ConfirmAttachment(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	var req service.ConfirmAttachmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	invoice, err := h.attachmentService.ConfirmAttachment(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

// ListAttachments enumerates stored files for a challan
// @Summary      List attachments
// @Description  Lists every stored object under the challan's key prefix with read URLs
// @Tags         attachments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Challan ID"
// @Success      200  {object}  response.Response{data=[]service.AttachmentInfo}
// @Failure      404  {object}  response.Response
// @Router       /api/invoices/{id}/attachments [get]
func (h *AttachmentHandler) ListAttachments(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	attachments, err := h.attachmentService.ListAttachments(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, attachments))
}

// IssueViewCredential hands out a short-lived presigned read URL
// @Summary      Issue view credential
// @Description  Returns a presigned GET URL for the challan's confirmed attachment
// @Tags         attachments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Challan ID"
// @Success      200  {object}  response.Response{data=service.ViewCredentialResponse}
// @Failure      400  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/invoices/{id}/view-url [get]
func (h *AttachmentHandler) IssueViewCredential(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	cred, err := h.attachmentService.IssueViewCredential(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, cred))
}
