package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"docqa/internal/app"
	"docqa/internal/model"
	"docqa/internal/transport/http/response"
)

type AuthHandler struct {
	authService *app.AuthService
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Email    string `json:"email" binding:"required,email,max=128"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

type userView struct {
	ID          uint   `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	LastLoginAt string `json:"last_login_at,omitempty"`
}

type tokenView struct {
	Token     string   `json:"token"`
	TokenType string   `json:"token_type"`
	User      userView `json:"user"`
}

func NewAuthHandler(authService *app.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.authService.Register(c.Request.Context(), app.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(c, err, "register failed")
		return
	}
	response.OK(c, newTokenView(result))
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.authService.Login(c.Request.Context(), app.LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(c, err, "login failed")
		return
	}
	response.OK(c, newTokenView(result))
}

func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}
	user, err := h.authService.Profile(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, err, "fetch current user failed")
		return
	}
	response.OK(c, newUserView(user))
}

func newTokenView(result *app.AuthResult) tokenView {
	return tokenView{Token: result.Token, TokenType: "Bearer", User: newUserView(result.User)}
}

func newUserView(user *model.User) userView {
	v := userView{ID: user.ID, Username: user.Username, Email: user.Email}
	if user.LastLoginAt != nil {
		v.LastLoginAt = user.LastLoginAt.UTC().Format(time.RFC3339)
	}
	return v
}
