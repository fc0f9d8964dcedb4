package sharing

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/ree/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	ActionAccept  = "accept"
	ActionDecline = "decline"
)

// PendingInvite is an invite awaiting the current user's answer with its link and inviter.
type PendingInvite struct {
	Invite  ShareInvite
	Members []ShareMember
}

// CreateInvite invites a user to the caller's link by username. Any existing membership of
// that user is dropped; a terminal invite is reset to pending and a pending one is left alone.
func (s *Service) CreateInvite(ctx context.Context, ownerID uint, token string, username string) (ShareInvite, error) {
	link, err := s.ownedLink(ctx, s.db, token, ownerID)
	if err != nil {
		return ShareInvite{}, err
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return ShareInvite{}, ErrUsernameRequired
	}
	invitee, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, users.ErrUserNotFound) {
		return ShareInvite{}, ErrUserNotFound
	}
	if err != nil {
		return ShareInvite{}, err
	}
	if invitee.ID == ownerID {
		return ShareInvite{}, ErrSelfInvite
	}

	var invite ShareInvite
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("share_token = ? AND user_id = ?", link.Token, invitee.ID).Delete(&ShareMember{}).Error; err != nil {
			s.logError(opCreateInvite, "member_delete_failed", err, zap.String("token", link.Token))
			return newServiceError(opCreateInvite, "member_delete_failed", err)
		}

		fresh := ShareInvite{
			ShareToken:    link.Token,
			InvitedUserID: invitee.ID,
			InvitedByID:   ownerID,
			Status:        InvitePending,
			CreatedAt:     s.clock().UTC(),
		}
		if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
			s.logError(opCreateInvite, "insert_failed", err, zap.String("token", link.Token))
			return newServiceError(opCreateInvite, "insert_failed", err)
		}
		if err := tx.Where("share_token = ? AND invited_user_id = ?", link.Token, invitee.ID).Take(&invite).Error; err != nil {
			s.logError(opCreateInvite, "reload_failed", err, zap.String("token", link.Token))
			return newServiceError(opCreateInvite, "reload_failed", err)
		}
		if invite.Status == InvitePending {
			return nil
		}

		if err := tx.Model(&ShareInvite{}).Where("id = ?", invite.ID).Updates(map[string]any{
			"status":        InvitePending,
			"invited_by_id": ownerID,
			"responded_at":  nil,
		}).Error; err != nil {
			s.logError(opCreateInvite, "reset_failed", err, zap.Uint("invite_id", invite.ID))
			return newServiceError(opCreateInvite, "reset_failed", err)
		}
		invite.Status = InvitePending
		invite.InvitedByID = ownerID
		invite.RespondedAt = nil
		return nil
	})
	if txErr != nil {
		return ShareInvite{}, txErr
	}
	invite.Share = link
	s.logger.Info("share invite sent",
		zap.String("token", link.Token),
		zap.Uint("invite_id", invite.ID),
		zap.Uint("invited_user_id", invitee.ID),
	)
	return invite, nil
}

// ListPendingInvites returns the caller's pending invites on active links, newest first.
func (s *Service) ListPendingInvites(ctx context.Context, userID uint) ([]PendingInvite, error) {
	var invites []ShareInvite
	if err := s.db.WithContext(ctx).
		Joins("JOIN share_links ON share_links.token = share_invites.share_token AND share_links.revoked_at IS NULL").
		Preload("Share").
		Preload("InvitedBy").
		Where("share_invites.invited_user_id = ? AND share_invites.status = ?", userID, InvitePending).
		Order("share_invites.created_at DESC").
		Find(&invites).Error; err != nil {
		s.logError(opListInvites, "query_failed", err, zap.Uint("user_id", userID))
		return nil, newServiceError(opListInvites, "query_failed", err)
	}

	tokens := make([]string, 0, len(invites))
	for _, invite := range invites {
		tokens = append(tokens, invite.ShareToken)
	}
	members, err := s.membersByToken(ctx, opListInvites, tokens...)
	if err != nil {
		return nil, err
	}
	pending := make([]PendingInvite, 0, len(invites))
	for _, invite := range invites {
		pending = append(pending, PendingInvite{Invite: invite, Members: members[invite.ShareToken]})
	}
	return pending, nil
}

// RespondInvite accepts or declines a pending invite addressed to the caller. Accepting
// creates the membership and flips the invite in one transaction.
func (s *Service) RespondInvite(ctx context.Context, userID uint, inviteID uint, action string) (ShareInvite, error) {
	var invite ShareInvite
	err := s.db.WithContext(ctx).Preload("Share").
		Where("id = ? AND invited_user_id = ?", inviteID, userID).
		Take(&invite).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ShareInvite{}, ErrInviteNotFound
	}
	if err != nil {
		s.logError(opRespondInvite, "query_failed", err, zap.Uint("invite_id", inviteID))
		return ShareInvite{}, newServiceError(opRespondInvite, "query_failed", err)
	}
	if invite.Status != InvitePending {
		return ShareInvite{}, ErrInviteHandled
	}

	var next InviteStatus
	switch action {
	case ActionAccept:
		next = InviteAccepted
		if !invite.Share.Active() {
			return ShareInvite{}, ErrShareNotFound
		}
	case ActionDecline:
		next = InviteDeclined
	default:
		return ShareInvite{}, ErrInvalidAction
	}

	respondedAt := s.clock().UTC()
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&ShareInvite{}).
			Where("id = ? AND status = ?", invite.ID, InvitePending).
			Updates(map[string]any{"status": next, "responded_at": respondedAt})
		if result.Error != nil {
			s.logError(opRespondInvite, "update_failed", result.Error, zap.Uint("invite_id", invite.ID))
			return newServiceError(opRespondInvite, "update_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrInviteHandled
		}
		if next != InviteAccepted {
			return nil
		}

		addedBy := invite.InvitedByID
		member := ShareMember{
			ShareToken: invite.ShareToken,
			UserID:     userID,
			AddedByID:  &addedBy,
			Role:       DefaultMemberRole,
			AddedAt:    respondedAt,
		}
		if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error; err != nil {
			s.logError(opRespondInvite, "member_insert_failed", err, zap.Uint("invite_id", invite.ID))
			return newServiceError(opRespondInvite, "member_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return ShareInvite{}, txErr
	}

	invite.Status = next
	invite.RespondedAt = &respondedAt
	s.logger.Info("share invite answered",
		zap.Uint("invite_id", invite.ID),
		zap.String("status", string(next)),
		zap.Uint("user_id", userID),
	)
	return invite, nil
}
