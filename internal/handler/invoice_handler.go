package handler

import (
	"net/http"

	"echallan-backend/internal/middleware"
	"echallan-backend/internal/service"
	"echallan-backend/pkg/pagination"
	"echallan-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type InvoiceHandler struct {
	invoiceService service.InvoiceService
}

func NewInvoiceHandler(invoiceService service.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService}
}

func (h *InvoiceHandler) RegisterRoutes(router *gin.RouterGroup) {
	invoices := router.Group("/api/invoices")
	invoices.Use(middleware.Authenticate())
	{
		invoices.POST("", h.CreateInvoice)
		invoices.GET("", h.ListInvoices)
		invoices.GET("/stats", h.GetStats)
		invoices.PUT("/:id/payment", h.UpdatePayment)
		invoices.POST("/:id/document", h.GenerateDocument)
	}
}

// CreateInvoice registers a new challan for a truck trip
// @Summary      Create challan
// @Description  Registers a new e-challan; the branch is snapshotted from the creator
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateInvoiceRequest  true  "Create Challan Payload"
// @Success      201      {object}  response.Response{data=service.InvoiceResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/invoices [post]
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	var req service.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	invoice, err := h.invoiceService.Create(c.Request.Context(), actor, req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, invoice))
}

// ListInvoices returns a paginated, branch-scoped list of challans
// @Summary      List challans
// @Description  Retrieves challans visible to the caller, newest activity first
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        payment_status  query     string  false  "Filter by payment status (paid, pending)"
// @Param        trip            query     string  false  "Filter by trip (first trip, second trip)"
// @Param        car_number      query     string  false  "Filter by vehicle number"
// @Param        page            query     int     false  "Page number (default 1)"
// @Param        limit           query     int     false  "Number of items per page (default 20, max 100)"
// @Success      200             {object}  response.Response{data=object}
// @Failure      500             {object}  response.Response
// @Router       /api/invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	params := pagination.Parse(c)
	filter := service.InvoiceFilter{
		PaymentStatus: c.Query("payment_status"),
		Trip:          c.Query("trip"),
		CarNumber:     c.Query("car_number"),
		Page:          params.Page,
		Limit:         params.Limit,
	}

	invoices, total, err := h.invoiceService.List(c.Request.Context(), actor, filter)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"invoices": invoices,
		"total":    total,
		"page":     params.Page,
		"limit":    params.Limit,
	}))
}

// GetStats returns the caller's personal collection totals
// @Summary      Challan statistics
// @Description  Aggregates entry count and collected amounts for challans created by the caller
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=model.InvoiceStats}
// @Failure      500  {object}  response.Response
// @Router       /api/invoices/stats [get]
func (h *InvoiceHandler) GetStats(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	stats, err := h.invoiceService.Stats(c.Request.Context(), actor)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}

// UpdatePayment applies a partial payment update to a challan
// @Summary      Update challan payment
// @Description  Updates payment fields with optimistic concurrency; a concurrent edit yields 409
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string  true  "Challan ID"
// @Param        payload  body      service.UpdatePaymentRequest  true  "Payment Update Payload"
// @Success      200      {object}  response.Response{data=service.InvoiceResponse}
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/invoices/{id}/payment [put]
func (h *InvoiceHandler) UpdatePayment(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	var req service.UpdatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	invoice, err := h.invoiceService.UpdatePayment(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

// GenerateDocument renders the printable challan as a PDF
// @Summary      Generate challan PDF
// @Description  Renders the challan with an embedded verification QR code and streams it as a PDF
// @Tags         invoices
// @Security     BearerAuth
// @Produce      application/pdf
// @Param        id   path  string  true  "Challan ID"
// @Success      200  {file}    file
// @Failure      404  {object}  response.Response
// @Failure      502  {object}  response.Response
// @Router       /api/invoices/{id}/document [post]
func (h *InvoiceHandler) GenerateDocument(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	doc, err := h.invoiceService.GenerateDocument(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	c.Data(http.StatusOK, "application/pdf", doc.PDF)
}
