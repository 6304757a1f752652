package handlers

import (
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/medclinic/rag-server/internal/apierr"
  "github.com/medclinic/rag-server/internal/services"
)

type AuthHandler struct {
  authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
  return &AuthHandler{authService: authService}
}

type loginRequest struct {
  Email    string `json:"email" binding:"required"`
  Password string `json:"password" binding:"required"`
}

// POST /api/login
func (h *AuthHandler) Login(c *gin.Context) {
  var req loginRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
    return
  }
  access, refresh, err := h.authService.LoginUser(c.Request.Context(), req.Email, req.Password)
  if err != nil {
    RespondError(c, http.StatusUnauthorized, apierr.CodeUnauthorized, err)
    return
  }
  RespondOK(c, gin.H{
    "access_token":  access,
    "refresh_token": refresh,
  })
}

// POST /api/logout
func (h *AuthHandler) Logout(c *gin.Context) {
  if err := h.authService.LogoutUser(c.Request.Context()); err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, gin.H{"status": "ok"})
}
