package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vartalap/internal/domain"
	"vartalap/internal/service"
)

// AuthHandler expone registro, verificación y sesiones.
type AuthHandler struct {
	logger *zap.Logger
	auth   *service.AuthService
}

func NewAuthHandler(logger *zap.Logger, auth *service.AuthService) *AuthHandler {
	return &AuthHandler{logger: logger, auth: auth}
}

// AuthResponse es la respuesta de signup, verify y login.
type AuthResponse struct {
	User                 domain.Identity    `json:"user"`
	Tokens               *service.TokenPair `json:"tokens,omitempty"`
	VerificationRequired bool               `json:"verification_required,omitempty"`
}

func toAuthResponse(res service.AuthResult) AuthResponse {
	return AuthResponse{
		User:                 res.User.Identity(),
		Tokens:               res.Tokens,
		VerificationRequired: res.VerificationRequired,
	}
}

// SignUp maneja POST /auth/signup.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req struct {
		Email       string `json:"email" binding:"required"`
		Password    string `json:"password" binding:"required"`
		DisplayName string `json:"display_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "signup", err)
		return
	}

	res, err := h.auth.SignUp(c.Request.Context(), service.SignUpInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		writeError(c, h.logger, err, "could not sign up")
		return
	}
	c.JSON(http.StatusCreated, toAuthResponse(res))
}

// Verify maneja POST /auth/verify.
func (h *AuthHandler) Verify(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		Code  string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "verify", err)
		return
	}

	res, err := h.auth.VerifyEmail(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		writeError(c, h.logger, err, "could not verify email")
		return
	}
	c.JSON(http.StatusOK, toAuthResponse(res))
}

// ResendVerification maneja POST /auth/verify/resend.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "resend verification", err)
		return
	}
	if err := h.auth.ResendVerification(c.Request.Context(), req.Email); err != nil {
		writeError(c, h.logger, err, "could not resend verification")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "verification_sent"})
}

// Login maneja POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "login", err)
		return
	}

	res, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.logger, err, "could not login")
		return
	}
	c.JSON(http.StatusOK, toAuthResponse(res))
}

// Refresh maneja POST /auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "refresh", err)
		return
	}
	tokens, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, h.logger, err, "could not refresh session")
		return
	}
	resp := gin.H{"tokens": tokens}
	if claims, err := h.auth.Tokens().ParseAccessToken(tokens.AccessToken); err == nil {
		resp["user"] = claims.Identity()
	}
	c.JSON(http.StatusOK, resp)
}

// Logout maneja POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "logout", err)
		return
	}
	if err := h.auth.SignOut(c.Request.Context(), req.RefreshToken); err != nil {
		writeError(c, h.logger, err, "could not logout")
		return
	}
	c.Status(http.StatusNoContent)
}

// Me maneja GET /me.
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.auth.CurrentUser(c.Request.Context(), ownerID(c))
	if err != nil {
		writeError(c, h.logger, err, "could not load user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user.Identity()})
}
