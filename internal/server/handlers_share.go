package server

import (
	"net/http"
	"strconv"

	"github.com/MarcoPoloResearchLab/ree/backend/internal/assistant"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/sharing"
	"github.com/gin-gonic/gin"
)

type invitePayloadRequest struct {
	Username string `json:"username"`
}

type inviteActionPayload struct {
	Action string `json:"action"`
}

func (h *httpHandler) handleCreateLink(c *gin.Context) {
	var request sharing.CreateLinkRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, detailInvalidBody)
		return
	}
	link, err := h.sharing.CreateLink(c.Request.Context(), callerID(c), request)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newLinkPayload(link.Link, link.Members))
}

func (h *httpHandler) handleListLinks(c *gin.Context) {
	filter := sharing.LinkFilter{
		ResourceType: c.Query("resource_type"),
		SessionID:    c.Query("session_id"),
	}
	if raw := c.Query("note_id"); raw != "" {
		noteID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			badRequest(c, "Invalid note_id.")
			return
		}
		filter.NoteID = uint(noteID)
	}
	links, err := h.sharing.ListLinks(c.Request.Context(), callerID(c), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	payload := make([]linkPayload, 0, len(links))
	for _, link := range links {
		payload = append(payload, newLinkPayload(link.Link, link.Members))
	}
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleLinkDetail(c *gin.Context) {
	detail, err := h.sharing.LinkDetail(c.Request.Context(), callerID(c), c.Param("token"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newLinkDetailPayload(detail))
}

func (h *httpHandler) handleRevokeLink(c *gin.Context) {
	link, recipients, err := h.sharing.RevokeLink(c.Request.Context(), callerID(c), c.Param("token"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.publish(recipients, callerID(c), RealtimeEventShareRevoked, link, 0)
	c.JSON(http.StatusOK, gin.H{"detail": "Share link revoked."})
}

func (h *httpHandler) handleListMembers(c *gin.Context) {
	members, err := h.sharing.ListMembers(c.Request.Context(), callerID(c), c.Param("token"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newMemberPayloads(members))
}

func (h *httpHandler) handleRemoveMember(c *gin.Context) {
	userID, ok := parseIDParam(c, "user_id")
	if !ok {
		h.writeError(c, sharing.ErrUserNotFound)
		return
	}
	if err := h.sharing.RemoveMember(c.Request.Context(), callerID(c), c.Param("token"), userID); err != nil {
		h.writeError(c, err)
		return
	}
	h.realtime.Publish(RealtimeMessage{
		UserID:    userID,
		EventType: RealtimeEventShareRevoked,
		Token:     c.Param("token"),
		Timestamp: h.clock().UTC(),
	})
	c.JSON(http.StatusOK, gin.H{"detail": "Member removed."})
}

func (h *httpHandler) handleSharedChat(c *gin.Context) {
	chat, err := h.sharing.SharedChat(c.Request.Context(), callerID(c), c.Param("token"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": chat.Messages, "permission": chat.Permission})
}

func (h *httpHandler) handlePostSharedChat(c *gin.Context) {
	var post assistant.SessionPost
	if err := c.ShouldBindJSON(&post); err != nil {
		badRequest(c, detailInvalidBody)
		return
	}
	token := c.Param("token")
	reply, err := h.sharing.PostSharedChat(c.Request.Context(), callerID(c), token, post)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.realtime.PublishAll(reply.Recipients, callerID(c), RealtimeMessage{
		EventType:    RealtimeEventShareUpdated,
		Token:        token,
		ResourceType: string(sharing.ResourceChat),
		Timestamp:    h.clock().UTC(),
	})
	c.JSON(http.StatusOK, gin.H{"answer": reply.Reply.Text, "history_id": reply.Reply.HistoryID})
}

func (h *httpHandler) handleSharedNote(c *gin.Context) {
	shared, err := h.sharing.SharedNote(c.Request.Context(), callerID(c), c.Param("token"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"note": newNotePayload(shared.Note), "permission": shared.Permission})
}

func (h *httpHandler) handleUpdateSharedNote(c *gin.Context) {
	var patch notes.NotePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, detailInvalidBody)
		return
	}
	token := c.Param("token")
	shared, err := h.sharing.UpdateSharedNote(c.Request.Context(), callerID(c), token, patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.realtime.PublishAll(shared.Recipients, callerID(c), RealtimeMessage{
		EventType:    RealtimeEventShareUpdated,
		Token:        token,
		ResourceType: string(sharing.ResourceNote),
		Timestamp:    h.clock().UTC(),
	})
	c.JSON(http.StatusOK, gin.H{"note": newNotePayload(shared.Note)})
}

func (h *httpHandler) handleCreateInvite(c *gin.Context) {
	var request invitePayloadRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, detailInvalidBody)
		return
	}
	invite, err := h.sharing.CreateInvite(c.Request.Context(), callerID(c), c.Param("token"), request.Username)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.realtime.Publish(RealtimeMessage{
		UserID:       invite.InvitedUserID,
		EventType:    RealtimeEventShareInvite,
		Token:        invite.ShareToken,
		ResourceType: string(invite.Share.ResourceType),
		InviteID:     invite.ID,
		Timestamp:    h.clock().UTC(),
	})
	c.JSON(http.StatusOK, gin.H{"detail": "Invite sent.", "invite_id": invite.ID})
}

func (h *httpHandler) handleListInvites(c *gin.Context) {
	pending, err := h.sharing.ListPendingInvites(c.Request.Context(), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	payload := make([]invitePayload, 0, len(pending))
	for _, item := range pending {
		payload = append(payload, newInvitePayload(item))
	}
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleRespondInvite(c *gin.Context) {
	inviteID, ok := parseIDParam(c, "id")
	if !ok {
		h.writeError(c, sharing.ErrInviteNotFound)
		return
	}
	var request inviteActionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, detailInvalidBody)
		return
	}
	invite, err := h.sharing.RespondInvite(c.Request.Context(), callerID(c), inviteID, request.Action)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if invite.Status == sharing.InviteAccepted {
		h.publish([]uint{invite.Share.CreatedByID}, callerID(c), RealtimeEventShareUpdated, invite.Share, invite.ID)
		c.JSON(http.StatusOK, gin.H{"detail": "Invite accepted."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Invite declined."})
}

func (h *httpHandler) publish(recipients []uint, actorID uint, eventType string, link sharing.ShareLink, inviteID uint) {
	h.realtime.PublishAll(recipients, actorID, RealtimeMessage{
		EventType:    eventType,
		Token:        link.Token,
		ResourceType: string(link.ResourceType),
		InviteID:     inviteID,
		Timestamp:    h.clock().UTC(),
	})
}
