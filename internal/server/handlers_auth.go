package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/ree/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type loginRequestPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponsePayload struct {
	Access           string `json:"access"`
	Refresh          string `json:"refresh,omitempty"`
	AccessExpiresIn  int64  `json:"access_expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in,omitempty"`
	TokenType        string `json:"token_type"`
}

type refreshRequestPayload struct {
	Refresh string `json:"refresh"`
}

type setPasswordPayload struct {
	NewPassword string `json:"new_password"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request users.RegistrationRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, detailInvalidBody)
		return
	}
	user, err := h.users.Register(c.Request.Context(), request)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newUserPayload(user))
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Username) == "" || request.Password == "" {
		badRequest(c, "username and password are required.")
		return
	}
	user, err := h.users.Authenticate(c.Request.Context(), request.Username, request.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "No active account found with the given credentials"})
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	pair, err := h.tokens.IssueTokenPair(c.Request.Context(), auth.Subject{UserID: user.ID, Username: user.Username})
	if err != nil {
		h.logger.Error("failed to issue token pair", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "token_issue_failed"})
		return
	}
	c.JSON(http.StatusOK, tokenResponsePayload{
		Access:           pair.AccessToken,
		Refresh:          pair.RefreshToken,
		AccessExpiresIn:  pair.AccessExpiresIn,
		RefreshExpiresIn: pair.RefreshExpiresIn,
		TokenType:        "Bearer",
	})
}

func (h *httpHandler) handleRefresh(c *gin.Context) {
	var request refreshRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Refresh) == "" {
		badRequest(c, "refresh is required.")
		return
	}
	subject, err := h.tokens.ValidateRefreshToken(request.Refresh)
	if err != nil {
		h.logger.Info("refresh token rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Token is invalid or expired"})
		return
	}
	if _, err := h.users.Get(c.Request.Context(), subject.UserID); err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Token is invalid or expired"})
			return
		}
		h.writeError(c, err)
		return
	}
	access, expiresIn, err := h.tokens.IssueAccessToken(c.Request.Context(), subject)
	if err != nil {
		h.logger.Error("failed to issue access token", zap.Uint("user_id", subject.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "token_issue_failed"})
		return
	}
	c.JSON(http.StatusOK, tokenResponsePayload{Access: access, AccessExpiresIn: expiresIn, TokenType: "Bearer"})
}

func (h *httpHandler) handleMe(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserPayload(user))
}

func (h *httpHandler) handleSetPassword(c *gin.Context) {
	var request setPasswordPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, detailInvalidBody)
		return
	}
	if err := h.users.SetPassword(c.Request.Context(), callerID(c), request.NewPassword); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Password has been reset successfully."})
}

func (h *httpHandler) handleDeleteUser(c *gin.Context) {
	targetID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || uint(targetID) != callerID(c) {
		c.JSON(http.StatusForbidden, gin.H{"detail": "You can only delete your own account."})
		return
	}
	if err := h.users.Delete(c.Request.Context(), uint(targetID)); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Account has been deleted successfully."})
}

func parseIDParam(c *gin.Context, name string) (uint, bool) {
	value, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || value == 0 {
		return 0, false
	}
	return uint(value), true
}
