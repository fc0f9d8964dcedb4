package sharing

import (
	"time"

	"github.com/MarcoPoloResearchLab/ree/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/users"
)

type ResourceType string

const (
	ResourceChat ResourceType = "chat"
	ResourceNote ResourceType = "note"
)

func (r ResourceType) valid() bool {
	return r == ResourceChat || r == ResourceNote
}

type Permission string

const (
	PermissionRead   Permission = "read"
	PermissionCollab Permission = "collab"
)

func (p Permission) valid() bool {
	return p == PermissionRead || p == PermissionCollab
}

type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteDeclined InviteStatus = "declined"
	InviteRevoked  InviteStatus = "revoked"
)

const DefaultMemberRole = "collaborator"

// ShareLink points at exactly one chat session or note. Revocation is terminal.
type ShareLink struct {
	Token        string       `gorm:"column:token;primaryKey;size:36"`
	ResourceType ResourceType `gorm:"column:resource_type;size:12;not null;index:idx_share_resource_session,priority:1"`
	SessionID    *string      `gorm:"column:session_id;size:64;index:idx_share_resource_session,priority:2"`
	NoteID       *uint        `gorm:"column:note_id;index"`
	Note         *notes.Note  `gorm:"foreignKey:NoteID;constraint:OnDelete:CASCADE"`
	CreatedByID  uint         `gorm:"column:created_by_id;not null;index"`
	CreatedBy    users.User   `gorm:"foreignKey:CreatedByID;constraint:OnDelete:CASCADE"`
	Permission   Permission   `gorm:"column:permission;size:12;not null;default:read"`
	CreatedAt    time.Time    `gorm:"column:created_at;not null"`
	RevokedAt    *time.Time   `gorm:"column:revoked_at;index"`
}

func (ShareLink) TableName() string {
	return "share_links"
}

// Active reports whether the link has not been revoked.
func (l ShareLink) Active() bool {
	return l.RevokedAt == nil
}

// ShareMember grants accepted collaboration access to a link.
type ShareMember struct {
	ID         uint        `gorm:"column:id;primaryKey;autoIncrement"`
	ShareToken string      `gorm:"column:share_token;size:36;not null;uniqueIndex:uniq_share_member,priority:1"`
	Share      ShareLink   `gorm:"foreignKey:ShareToken;references:Token;constraint:OnDelete:CASCADE"`
	UserID     uint        `gorm:"column:user_id;not null;uniqueIndex:uniq_share_member,priority:2"`
	User       users.User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	AddedByID  *uint       `gorm:"column:added_by_id;index"`
	AddedBy    *users.User `gorm:"foreignKey:AddedByID;constraint:OnDelete:SET NULL"`
	Role       string      `gorm:"column:role;size:20;not null;default:collaborator"`
	AddedAt    time.Time   `gorm:"column:added_at;not null"`
}

func (ShareMember) TableName() string {
	return "share_members"
}

// ShareInvite gates membership behind the invited user's acceptance.
type ShareInvite struct {
	ID            uint         `gorm:"column:id;primaryKey;autoIncrement"`
	ShareToken    string       `gorm:"column:share_token;size:36;not null;uniqueIndex:uniq_share_invite,priority:1"`
	Share         ShareLink    `gorm:"foreignKey:ShareToken;references:Token;constraint:OnDelete:CASCADE"`
	InvitedUserID uint         `gorm:"column:invited_user_id;not null;uniqueIndex:uniq_share_invite,priority:2;index"`
	InvitedUser   users.User   `gorm:"foreignKey:InvitedUserID;constraint:OnDelete:CASCADE"`
	InvitedByID   uint         `gorm:"column:invited_by_id;not null;index"`
	InvitedBy     users.User   `gorm:"foreignKey:InvitedByID;constraint:OnDelete:CASCADE"`
	Status        InviteStatus `gorm:"column:status;size:12;not null;default:pending;index"`
	CreatedAt     time.Time    `gorm:"column:created_at;not null"`
	RespondedAt   *time.Time   `gorm:"column:responded_at"`
}

func (ShareInvite) TableName() string {
	return "share_invites"
}
