package handler

import (
	"net/http"

	"echallan-backend/internal/middleware"
	"echallan-backend/internal/model"
	"echallan-backend/internal/service"
	"echallan-backend/pkg/pagination"
	"echallan-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type BranchHandler struct {
	branchService service.BranchService
}

func NewBranchHandler(branchService service.BranchService) *BranchHandler {
	return &BranchHandler{branchService: branchService}
}

func (h *BranchHandler) RegisterRoutes(router *gin.RouterGroup) {
	branches := router.Group("/api/branches")
	branches.Use(middleware.Authenticate(), middleware.RequireRole(model.RoleUltraAdmin))
	{
		branches.POST("", h.CreateBranch)
		branches.GET("", h.ListBranches)
		branches.PUT("/:id", h.UpdateBranch)
		branches.DELETE("/:id", h.DeactivateBranch)
	}

	admin := router.Group("/api/admin")
	admin.Use(middleware.Authenticate(), middleware.RequireRole(model.RoleUltraAdmin))
	{
		admin.GET("/dashboard", h.Dashboard)
	}
}

// CreateBranch registers a new branch office
// @Summary      Create branch
// @Description  Creates a branch; the slug is derived from the name when omitted
// @Tags         branches
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateBranchRequest  true  "Create Branch Payload"
// @Success      201      {object}  response.Response{data=service.BranchResponse}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/branches [post]
func (h *BranchHandler) CreateBranch(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	var req service.CreateBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	branch, err := h.branchService.Create(c.Request.Context(), actor, req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, branch))
}

// ListBranches returns a paginated list of branches
// @Summary      List branches
// @Description  Retrieves branches ordered by name; ultra admin only
// @Tags         branches
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20, max 100)"
// @Success      200    {object}  response.Response{data=object}
// @Failure      403    {object}  response.Response
// @Router       /api/branches [get]
func (h *BranchHandler) ListBranches(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	params := pagination.Parse(c)
	branches, total, err := h.branchService.List(c.Request.Context(), actor, params.Page, params.Limit)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"branches": branches,
		"total":    total,
		"page":     params.Page,
		"limit":    params.Limit,
	}))
}

// UpdateBranch updates branch details or activation state
// @Summary      Update branch
// @Description  Updates name, address, metadata or active flag on a branch
// @Tags         branches
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string  true  "Branch ID"
// @Param        payload  body      service.UpdateBranchRequest  true  "Update Branch Payload"
// @Success      200      {object}  response.Response{data=service.BranchResponse}
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/branches/{id} [put]
func (h *BranchHandler) UpdateBranch(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	var req service.UpdateBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	branch, err := h.branchService.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, branch))
}

// DeactivateBranch retires a branch without deleting historical challans
// @Summary      Deactivate branch
// @Description  Marks the branch inactive; challans keep their branch reference
// @Tags         branches
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Branch ID"
// @Success      200  {object}  response.Response{data=service.BranchResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/branches/{id} [delete]
func (h *BranchHandler) DeactivateBranch(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	branch, err := h.branchService.Deactivate(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, branch))
}

// Dashboard returns fleet-wide administration counts
// @Summary      Admin dashboard
// @Description  Returns branch and user totals for the administration dashboard
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=model.DashboardStats}
// @Failure      403  {object}  response.Response
// @Router       /api/admin/dashboard [get]
func (h *BranchHandler) Dashboard(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	stats, err := h.branchService.Dashboard(c.Request.Context(), actor)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}
