package authentication

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mehmetcc/hospital-equipment-service/internal/account"
)

// LoginRequest carries the credentials for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest carries the refresh token to rotate.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest carries the refresh token to revoke.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// TokenResponse is the wire form of a TokenPair. ExpiresAt is the access token expiry.
type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// LoginResponse is a TokenResponse plus the authenticated account.
type LoginResponse struct {
	TokenResponse
	User *account.Account `json:"user"`
}

func tokenResponse(pair *TokenPair) TokenResponse {
	return TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresAt:    pair.AccessExpiresAt,
	}
}

// AuthHandler exposes login, refresh rotation and logout over HTTP.
type AuthHandler struct {
	router         *gin.RouterGroup
	service        AuthenticationService
	accountService account.AccountService
	logger         *zap.Logger
}

// NewAuthHandler registers auth endpoints on the given router group. loginGuard runs before the
// login handler, typically a rate limiter.
func NewAuthHandler(
	router *gin.RouterGroup,
	service AuthenticationService,
	accountService account.AccountService,
	loginGuard gin.HandlerFunc,
	logger *zap.Logger,
) *AuthHandler {
	h := &AuthHandler{router: router, service: service, accountService: accountService, logger: logger}

	public := h.router.Group("/auth")
	if loginGuard != nil {
		public.POST("/login", loginGuard, h.Login)
	} else {
		public.POST("/login", h.Login)
	}
	public.POST("/refresh", h.Refresh)
	public.POST("/logout", h.Logout)

	protected := h.router.Group("/auth", AuthMiddleware(service, logger))
	protected.POST("/logout-all", h.LogoutEverywhere)
	protected.GET("/me", h.Me)
	return h
}

// bind decodes the JSON body into dst and answers 400 with hint when it does not validate.
func (h *AuthHandler) bind(c *gin.Context, dst any, hint string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.logger.Warn("rejected request body", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": hint})
		return false
	}
	return true
}

func (h *AuthHandler) internalError(c *gin.Context, op string, err error, msg string) {
	h.logger.Error(op+" failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

// Login godoc
// @Summary     Login
// @Description Verify username and password and issue an access/refresh token pair
// @Tags        auth
// @Accept      json
// @Produce     json
// @Param       payload body     LoginRequest true "Login credentials"
// @Success     200     {object} LoginResponse
// @Failure     400     {object} map[string]string
// @Failure     401     {object} map[string]string
// @Failure     429     {object} map[string]string
// @Failure     500     {object} map[string]string
// @Router      /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var body LoginRequest
	if !h.bind(c, &body, "username and password required") {
		return
	}

	session, err := h.service.Login(c.Request.Context(), body.Username, body.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect username or password"})
		return
	}
	if err != nil {
		h.internalError(c, "login", err, "could not login")
		return
	}
	c.JSON(http.StatusOK, LoginResponse{
		TokenResponse: tokenResponse(&session.TokenPair),
		User:          session.Account,
	})
}

// Refresh godoc
// @Summary     Refresh tokens
// @Description Exchange a refresh token for a new pair. The presented token is consumed.
// @Tags        auth
// @Accept      json
// @Produce     json
// @Param       payload body     RefreshRequest true "Refresh token"
// @Success     200     {object} TokenResponse
// @Failure     400     {object} map[string]string
// @Failure     401     {object} map[string]string
// @Failure     500     {object} map[string]string
// @Router      /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var body RefreshRequest
	if !h.bind(c, &body, "refresh_token required") {
		return
	}

	pair, err := h.service.Refresh(c.Request.Context(), body.RefreshToken)
	if errors.Is(err, ErrInvalidToken) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token is invalid, expired or already used"})
		return
	}
	if err != nil {
		h.internalError(c, "refresh", err, "could not refresh tokens")
		return
	}
	c.JSON(http.StatusOK, tokenResponse(pair))
}

// Logout godoc
// @Summary     Logout
// @Description Revoke a refresh token. Unknown and already revoked tokens also answer 204.
// @Tags        auth
// @Accept      json
// @Param       payload body     LogoutRequest true "Refresh token"
// @Success     204
// @Failure     400     {object} map[string]string
// @Failure     500     {object} map[string]string
// @Router      /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	var body LogoutRequest
	if !h.bind(c, &body, "refresh_token required") {
		return
	}

	if err := h.service.Logout(c.Request.Context(), body.RefreshToken); err != nil {
		h.internalError(c, "logout", err, "could not revoke refresh token")
		return
	}
	c.Status(http.StatusNoContent)
}

// LogoutEverywhere godoc
// @Summary     Logout everywhere
// @Description Revoke every refresh token of the authenticated account
// @Tags        auth
// @Security    BearerAuth
// @Success     204
// @Failure     401 {object} map[string]string
// @Failure     500 {object} map[string]string
// @Router      /auth/logout-all [post]
func (h *AuthHandler) LogoutEverywhere(c *gin.Context) {
	claims, ok := ClaimsFromContext(c)
	if !ok {
		challenge(c, "unauthorized")
		return
	}
	if err := h.service.LogoutEverywhere(c.Request.Context(), claims.AccountID); err != nil {
		h.internalError(c, "logout everywhere", err, "could not revoke sessions")
		return
	}
	c.Status(http.StatusNoContent)
}

// Me godoc
// @Summary     Current account
// @Description Fetch the account the access token was issued for
// @Tags        auth
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} account.Account
// @Failure     401 {object} map[string]string
// @Failure     500 {object} map[string]string
// @Router      /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := ClaimsFromContext(c)
	if !ok {
		challenge(c, "unauthorized")
		return
	}

	user, err := h.accountService.ReadAccountByID(c.Request.Context(), claims.AccountID)
	if errors.Is(err, account.ErrAccountNotFound) {
		// deleted after the access token was minted
		challenge(c, "account no longer exists")
		return
	}
	if err != nil {
		h.internalError(c, "read current account", err, "could not fetch account")
		return
	}
	c.JSON(http.StatusOK, user)
}
