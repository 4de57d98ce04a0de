package account

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CreateAccountRequest represents the payload for registering an account.
// @Description payload to register a new account
// @Property username  body string true  "unique login name (3-50 characters)"
// @Property email     body string true  "unique email address"
// @Property password  body string true  "password (min 8, upper, lower and digit)"
// @Property full_name body string false "display name"
// @Property role      body string false "ADMIN, TECHNICIAN or VIEWER (default VIEWER)"
type CreateAccountRequest struct {
	Username string  `json:"username" binding:"required,min=3,max=50"`
	Email    string  `json:"email" binding:"required,email"`
	Password string  `json:"password" binding:"required,min=8"`
	FullName *string `json:"full_name" binding:"omitempty,max=200"`
	Role     string  `json:"role"`
}

// UpdateAccountRequest represents the payload to change an account's profile.
// @Description optional profile fields; omitted fields are unchanged
type UpdateAccountRequest struct {
	Email    *string `json:"email" binding:"omitempty,email"`
	FullName *string `json:"full_name" binding:"omitempty,max=200"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
}

// UpdatePasswordRequest represents the payload to update an account's password.
// @Description payload to change password
// @Property password body string true "new password"
type UpdatePasswordRequest struct {
	Password string `json:"password" binding:"required,min=8"`
}

// IDRequest represents a URI ID parameter.
type IDRequest struct {
	ID uint `uri:"id" binding:"required,min=1"`
}

// IDResponse returns a newly created resource ID.
type IDResponse struct {
	ID uint `json:"user_id"`
}

// AccountHandler handles HTTP requests for account administration.
type AccountHandler struct {
	router  *gin.RouterGroup
	service AccountService
	logger  *zap.Logger
}

// NewAccountHandler registers account endpoints on the given router group.
func NewAccountHandler(router *gin.RouterGroup, service AccountService, logger *zap.Logger) *AccountHandler {
	h := &AccountHandler{router: router, service: service, logger: logger}
	h.router.POST("/accounts", h.CreateAccount)
	h.router.GET("/accounts/:id", h.ReadAccountByID)
	h.router.PUT("/accounts/:id", h.UpdateAccount)
	h.router.PUT("/accounts/:id/password", h.UpdatePassword)
	h.router.DELETE("/accounts/:id", h.DeleteAccount)
	return h
}

func (h *AccountHandler) bindID(c *gin.Context) (uint, bool) {
	var uri IDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or missing id"})
		return 0, false
	}
	return uri.ID, true
}

// CreateAccount godoc
// @Summary      Create Account
// @Description  Register a new account (admin only)
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      CreateAccountRequest  true  "Account payload"
// @Success      201      {object}  IDResponse
// @Failure      400      {object}  map[string]string
// @Failure      409      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /accounts [post]
func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid create payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account payload"})
		return
	}
	input := NewAccount{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	}
	if req.Role != "" {
		role, err := ParseRole(req.Role)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
			return
		}
		input.Role = role
	}

	a, err := h.service.CreateAccount(c.Request.Context(), input)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, IDResponse{ID: a.ID})
	case errors.Is(err, ErrUsernameAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "username already registered"})
	case errors.Is(err, ErrEmailAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
	case IsPolicyViolation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidUsername), errors.Is(err, ErrInvalidEmailFormat), errors.Is(err, ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("service.CreateAccount failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create account"})
	}
}

// ReadAccountByID godoc
// @Summary      Get Account by ID
// @Tags         accounts
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      int     true  "Account ID"
// @Success      200      {object}  Account
// @Failure      400      {object}  map[string]string
// @Failure      404      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /accounts/{id} [get]
func (h *AccountHandler) ReadAccountByID(c *gin.Context) {
	id, ok := h.bindID(c)
	if !ok {
		return
	}
	a, err := h.service.ReadAccountByID(c.Request.Context(), id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, a)
	case errors.Is(err, ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
	default:
		h.logger.Error("service.ReadAccountByID failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch account"})
	}
}

// UpdateAccount godoc
// @Summary      Update Account
// @Description  Change email, display name, role or active flag. Deactivation ends all sessions.
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      int                   true  "Account ID"
// @Param        payload  body      UpdateAccountRequest  true  "Profile changes"
// @Success      200      {object}  Account
// @Failure      400      {object}  map[string]string
// @Failure      404      {object}  map[string]string
// @Failure      409      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /accounts/{id} [put]
func (h *AccountHandler) UpdateAccount(c *gin.Context) {
	id, ok := h.bindID(c)
	if !ok {
		return
	}
	var req UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid update payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account payload"})
		return
	}
	update := AccountUpdate{Email: req.Email, FullName: req.FullName, IsActive: req.IsActive}
	if req.Role != nil {
		role, err := ParseRole(*req.Role)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
			return
		}
		update.Role = &role
	}

	a, err := h.service.UpdateAccount(c.Request.Context(), id, update)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, a)
	case errors.Is(err, ErrInvalidEmailFormat), errors.Is(err, ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
	case errors.Is(err, ErrEmailAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
	default:
		h.logger.Error("service.UpdateAccount failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update account"})
	}
}

// UpdatePassword godoc
// @Summary      Update Account Password
// @Description  Change an account's password and revoke all of its refresh tokens
// @Tags         accounts
// @Accept       json
// @Security     BearerAuth
// @Param        id       path      int                    true  "Account ID"
// @Param        payload  body      UpdatePasswordRequest  true  "New password payload"
// @Success      204
// @Failure      400      {object}  map[string]string
// @Failure      404      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /accounts/{id}/password [put]
func (h *AccountHandler) UpdatePassword(c *gin.Context) {
	id, ok := h.bindID(c)
	if !ok {
		return
	}
	var req UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid update password payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid password format"})
		return
	}
	err := h.service.ChangePassword(c.Request.Context(), id, req.Password)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case IsPolicyViolation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
	default:
		h.logger.Error("service.ChangePassword failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update password"})
	}
}

// DeleteAccount godoc
// @Summary      Delete Account
// @Description  Remove an account and its refresh tokens
// @Tags         accounts
// @Security     BearerAuth
// @Param        id       path      int   true  "Account ID"
// @Success      204
// @Failure      400      {object}  map[string]string
// @Failure      404      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /accounts/{id} [delete]
func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	id, ok := h.bindID(c)
	if !ok {
		return
	}
	err := h.service.DeleteAccount(c.Request.Context(), id)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
	default:
		h.logger.Error("service.DeleteAccount failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete account"})
	}
}
