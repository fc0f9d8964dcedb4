package server

import (
	"encoding/json"
	"time"

	"github.com/MarcoPoloResearchLab/ree/backend/internal/history"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/sharing"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/users"
)

type userPayload struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func newUserPayload(user users.User) userPayload {
	return userPayload{ID: user.ID, Username: user.Username, Email: user.Email}
}

type notePayload struct {
	ID        uint      `json:"id"`
	ClientID  *string   `json:"client_id,omitempty"`
	Title     string    `json:"title"`
	Subject   string    `json:"subject"`
	Category  string    `json:"category"`
	Tags      []string  `json:"tags"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func newNotePayload(note notes.Note) notePayload {
	return notePayload{
		ID:        note.ID,
		ClientID:  note.ClientID,
		Title:     note.Title,
		Subject:   note.Subject,
		Category:  note.Category,
		Tags:      note.TagList(),
		Content:   note.Content,
		CreatedAt: note.CreatedAt,
	}
}

type historyPayload struct {
	ID           uint            `json:"id"`
	Mode         string          `json:"mode"`
	InputData    json.RawMessage `json:"input_data"`
	ResponseText string          `json:"response_text"`
	CreatedAt    time.Time       `json:"created_at"`
}

func newHistoryPayload(record history.ChatHistory) historyPayload {
	return historyPayload{
		ID:           record.ID,
		Mode:         record.Mode,
		InputData:    record.RawInput(),
		ResponseText: record.ResponseText,
		CreatedAt:    record.CreatedAt,
	}
}

type memberPayload struct {
	User    users.Summary `json:"user"`
	Role    string        `json:"role"`
	AddedAt time.Time     `json:"added_at"`
}

func newMemberPayloads(members []sharing.ShareMember) []memberPayload {
	payload := make([]memberPayload, 0, len(members))
	for _, member := range members {
		payload = append(payload, memberPayload{
			User:    member.User.Summary(),
			Role:    member.Role,
			AddedAt: member.AddedAt,
		})
	}
	return payload
}

type linkPayload struct {
	Token        string               `json:"token"`
	ResourceType sharing.ResourceType `json:"resource_type"`
	SessionID    *string              `json:"session_id"`
	Note         *uint                `json:"note"`
	Permission   sharing.Permission   `json:"permission"`
	CreatedAt    time.Time            `json:"created_at"`
	Members      []memberPayload      `json:"members"`
}

func newLinkPayload(link sharing.ShareLink, members []sharing.ShareMember) linkPayload {
	return linkPayload{
		Token:        link.Token,
		ResourceType: link.ResourceType,
		SessionID:    link.SessionID,
		Note:         link.NoteID,
		Permission:   link.Permission,
		CreatedAt:    link.CreatedAt,
		Members:      newMemberPayloads(members),
	}
}

// linkDetailPayload replaces the note id of the link with the note itself.
type linkDetailPayload struct {
	Token        string               `json:"token"`
	ResourceType sharing.ResourceType `json:"resource_type"`
	SessionID    *string              `json:"session_id"`
	Permission   sharing.Permission   `json:"permission"`
	CreatedAt    time.Time            `json:"created_at"`
	Members      []memberPayload      `json:"members"`
	Owner        users.Summary        `json:"owner"`
	Messages     *[]history.Turn      `json:"messages,omitempty"`
	Note         *notePayload         `json:"note,omitempty"`
}

func newLinkDetailPayload(detail sharing.LinkDetail) linkDetailPayload {
	payload := linkDetailPayload{
		Token:        detail.Link.Token,
		ResourceType: detail.Link.ResourceType,
		SessionID:    detail.Link.SessionID,
		Permission:   detail.Link.Permission,
		CreatedAt:    detail.Link.CreatedAt,
		Members:      newMemberPayloads(detail.Members),
		Owner:        detail.Owner,
	}
	switch detail.Link.ResourceType {
	case sharing.ResourceChat:
		messages := detail.Messages
		if messages == nil {
			messages = []history.Turn{}
		}
		payload.Messages = &messages
	case sharing.ResourceNote:
		if detail.Note != nil {
			note := newNotePayload(*detail.Note)
			payload.Note = &note
		}
	}
	return payload
}

type invitePayload struct {
	ID        uint                 `json:"id"`
	Share     linkPayload          `json:"share"`
	InvitedBy users.Summary        `json:"invited_by"`
	Status    sharing.InviteStatus `json:"status"`
	CreatedAt time.Time            `json:"created_at"`
}

func newInvitePayload(pending sharing.PendingInvite) invitePayload {
	invite := pending.Invite
	return invitePayload{
		ID:        invite.ID,
		Share:     newLinkPayload(invite.Share, pending.Members),
		InvitedBy: invite.InvitedBy.Summary(),
		Status:    invite.Status,
		CreatedAt: invite.CreatedAt,
	}
}
