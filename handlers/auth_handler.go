package handlers

import (
	"net/http"

	"electrafusion-backend/logging"
	"electrafusion-backend/models"
	"electrafusion-backend/session"

	"github.com/gin-gonic/gin"
)

// CredentialsInput login and registration body
type CredentialsInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// SessionResponse is returned after a successful login or registration
type SessionResponse struct {
	User  *models.PublicUser `json:"user"`
	Token string             `json:"token"`
}

type AuthHandler struct {
	sessions *session.Service
}

func NewAuthHandler(sessions *session.Service) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var input CredentialsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		abortInvalidRequest(c, err)
		return
	}

	user, token, err := h.sessions.Authenticate(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}

	logging.For("handlers", "Login").WithField("user_id", user.ID).Info("用户登录")
	c.JSON(http.StatusOK, SessionResponse{User: user, Token: token})
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var input CredentialsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		abortInvalidRequest(c, err)
		return
	}

	user, token, err := h.sessions.Register(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}

	logging.For("handlers", "Register").WithField("user_id", user.ID).Info("新用户注册")
	c.JSON(http.StatusCreated, SessionResponse{User: user, Token: token})
}

// Logout handles POST /api/auth/logout; always succeeds
func (h *AuthHandler) Logout(c *gin.Context) {
	if token := bearerToken(c); token != "" {
		if err := h.sessions.EndSession(c.Request.Context(), token); err != nil {
			abortWithError(c, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

// Session handles GET /api/auth/session
func (h *AuthHandler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": currentUser(c)})
}
