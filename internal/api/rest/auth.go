package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenShmInspector/internal/auth"
	"github.com/KevinKickass/OpenShmInspector/internal/types"
	"github.com/gin-gonic/gin"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds
	Role        string `json:"role"`
}

func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("AUTH_400", "Invalid request body", err.Error()))
		return
	}

	token, err := s.authService.Login(req.Username, req.Password, c.ClientIP())
	if err != nil {
		if errors.Is(err, auth.ErrAccountLocked) {
			c.JSON(http.StatusTooManyRequests, types.NewErrorResponse("AUTH_429", "Account locked", err.Error()))
			return
		}
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse("AUTH_401", "Invalid credentials", nil))
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		AccessToken: token.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(token.ExpiresAt).Seconds()),
		Role:        token.Role,
	})
}

func (s *Server) getCurrentUser(c *gin.Context) {
	perms, _ := c.Get("permissions")
	c.JSON(http.StatusOK, gin.H{
		"username":    auth.Username(c),
		"role":        c.GetString("role"),
		"permissions": perms,
	})
}
