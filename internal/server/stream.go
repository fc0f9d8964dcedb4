package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type realtimeEventPayload struct {
	Token        string `json:"token,omitempty"`
	ResourceType string `json:"resourceType,omitempty"`
	InviteID     uint   `json:"inviteId,omitempty"`
	Timestamp    string `json:"timestamp"`
	Source       string `json:"source"`
}

func newRealtimeEventPayload(message RealtimeMessage) realtimeEventPayload {
	timestamp := message.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	return realtimeEventPayload{
		Token:        message.Token,
		ResourceType: message.ResourceType,
		InviteID:     message.InviteID,
		Timestamp:    timestamp.Format(time.RFC3339Nano),
		Source:       realtimeSourceBackend,
	}
}

// handleShareStream pushes share events for the caller as server-sent events until the client goes away.
func (h *httpHandler) handleShareStream(c *gin.Context) {
	userID := callerID(c)
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, userID)
	defer cleanup()

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	h.logger.Debug("share stream opened", zap.Uint("user_id", userID))
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, newRealtimeEventPayload(message))
			return true
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, newRealtimeEventPayload(RealtimeMessage{Timestamp: tick.UTC()}))
			return true
		}
	})
	h.logger.Debug("share stream closed", zap.Uint("user_id", userID))
}
