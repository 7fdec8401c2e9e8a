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

type UserHandler struct {
	userService service.UserService
}

func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup) {
	auth := router.Group("/api/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", h.Logout)
		auth.GET("/me", middleware.Authenticate(), h.Me)
	}

	users := router.Group("/api/users")
	users.Use(middleware.Authenticate(), middleware.RequireRole(model.RoleUltraAdmin))
	{
		users.POST("", h.ProvisionUser)
		users.GET("", h.ListUsers)
		users.PUT("/:id", h.UpdateUser)
	}
}

// Register creates a self-service account with the lowest role
// @Summary      Register
// @Description  Creates a new account with the base user role
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RegisterRequest  true  "Register Payload"
// @Success      201      {object}  response.Response{data=service.UserResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/auth/register [post]
func (h *UserHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	user, err := h.userService.Register(c.Request.Context(), req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, user))
}

// Login authenticates and sets token cookies
// @Summary      Login
// @Description  Verifies credentials, sets HttpOnly token cookies and returns the profile
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LoginRequest  true  "Login Payload"
// @Success      200      {object}  response.Response{data=object}
// @Failure      401      {object}  response.Response
// @Router       /api/auth/login [post]
func (h *UserHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	session, err := h.userService.Login(c.Request.Context(), req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	middleware.SetTokenCookies(c, session.Tokens.AccessToken, session.Tokens.RefreshToken)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"user":         session.User,
		"access_token": session.Tokens.AccessToken,
	}))
}

// Refresh rotates the refresh token and issues a fresh session
// @Summary      Refresh session
// @Description  Exchanges a valid refresh token cookie for new tokens
// @Tags         auth
// @Produce      json
// @Success      200  {object}  response.Response{data=object}
// @Failure      401  {object}  response.Response
// @Router       /api/auth/refresh [post]
func (h *UserHandler) Refresh(c *gin.Context) {
	refreshToken, _ := c.Cookie("refresh_token")

	session, err := h.userService.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		middleware.ClearTokenCookies(c)
		c.JSON(response.FromError(err))
		return
	}

	middleware.SetTokenCookies(c, session.Tokens.AccessToken, session.Tokens.RefreshToken)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"user":         session.User,
		"access_token": session.Tokens.AccessToken,
	}))
}

// Logout invalidates the refresh token and clears cookies
// @Summary      Logout
// @Description  Deletes the stored refresh token and clears token cookies
// @Tags         auth
// @Produce      json
// @Success      200  {object}  response.Response
// @Router       /api/auth/logout [post]
func (h *UserHandler) Logout(c *gin.Context) {
	refreshToken, _ := c.Cookie("refresh_token")

	if err := h.userService.Logout(c.Request.Context(), refreshToken); err != nil {
		c.JSON(response.FromError(err))
		return
	}

	middleware.ClearTokenCookies(c)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "logged out"))
}

// Me returns the authenticated user's profile
// @Summary      Current user
// @Description  Returns the profile of the authenticated user
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.UserResponse}
// @Failure      401  {object}  response.Response
// @Router       /api/auth/me [get]
func (h *UserHandler) Me(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	user, err := h.userService.Me(c.Request.Context(), actor)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, user))
}

// ProvisionUser creates a user with an explicit role and branch
// @Summary      Provision user
// @Description  Creates a user account with a role and optional branch assignment; ultra admin only
// @Tags         users
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.ProvisionUserRequest  true  "Provision User Payload"
// @Success      201      {object}  response.Response{data=service.UserResponse}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/users [post]
func (h *UserHandler) ProvisionUser(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	var req service.ProvisionUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	user, err := h.userService.ProvisionUser(c.Request.Context(), actor, req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, user))
}

// ListUsers returns a paginated list of accounts
// @Summary      List users
// @Description  Retrieves every account with branch assignments; ultra admin only
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20, max 100)"
// @Success      200    {object}  response.Response{data=object}
// @Failure      403    {object}  response.Response
// @Router       /api/users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	params := pagination.Parse(c)
	users, total, err := h.userService.ListUsers(c.Request.Context(), actor, params.Page, params.Limit)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"users": users,
		"total": total,
		"page":  params.Page,
		"limit": params.Limit,
	}))
}

// UpdateUser changes role, phone or branch assignment
// @Summary      Update user
// @Description  Updates role, phone or branch assignment for an account; ultra admin only
// @Tags         users
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string  true  "User ID"
// @Param        payload  body      service.UpdateUserRequest  true  "Update User Payload"
// @Success      200      {object}  response.Response{data=service.UserResponse}
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/users/{id} [put]
func (h *UserHandler) UpdateUser(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return
	}

	var req service.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	user, err := h.userService.UpdateUser(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, user))
}
