package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/ree/backend/internal/assistant"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/history"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/sharing"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/users"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/validation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	detailInvalidBody     = "Invalid request body."
	detailHistoryNotFound = "History item not found."
	detailAIServiceError  = "AI service error"
	detailInternalError   = "Internal server error."
)

type codedError interface {
	Code() string
}

// writeError maps service failures onto HTTP responses.
func (h *httpHandler) writeError(c *gin.Context, err error) {
	var validationErr *validation.Error
	var inviteErr *sharing.InviteRequiredError
	switch {
	case errors.As(err, &validationErr):
		body := gin.H{"detail": validationErr.Error()}
		for field, message := range validationErr.Fields {
			body[field] = []string{message}
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.As(err, &inviteErr):
		c.JSON(http.StatusForbidden, gin.H{"detail": inviteErr.Error(), "invite": true, "invite_id": inviteErr.InviteID})
	case errors.Is(err, assistant.ErrUpstream):
		c.JSON(http.StatusBadGateway, gin.H{"error": detailAIServiceError})
	case errors.Is(err, sharing.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"detail": sharing.Detail(err)})
	case errors.Is(err, sharing.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": sharing.Detail(err)})
	case errors.Is(err, sharing.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"detail": sharing.Detail(err)})
	case errors.Is(err, notes.ErrNoteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
	case errors.Is(err, history.ErrHistoryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": detailHistoryNotFound})
	case errors.Is(err, users.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "User not found."})
	default:
		body := gin.H{"detail": detailInternalError}
		var coded codedError
		if errors.As(err, &coded) {
			body["code"] = coded.Code()
		}
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, body)
	}
}

func badRequest(c *gin.Context, detail string) {
	c.JSON(http.StatusBadRequest, gin.H{"detail": detail})
}
