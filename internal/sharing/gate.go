package sharing

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Intent distinguishes reads from writes in access decisions.
type Intent int

const (
	IntentRead Intent = iota
	IntentWrite
)

// Authorize decides whether caller may act on link. Writes through a read link are denied to
// everyone, the owner included; otherwise the owner and accepted members are allowed.
func Authorize(link ShareLink, callerID uint, isMember bool, intent Intent) error {
	if intent == IntentWrite && link.Permission != PermissionCollab {
		return ErrReadOnly
	}
	if link.CreatedByID == callerID || isMember {
		return nil
	}
	return ErrNotAllowed
}

const (
	opActiveLink = "sharing.active_link"
	opMembership = "sharing.membership"
)

// activeLink loads a non-revoked link. Malformed, missing and revoked tokens are indistinguishable.
func (s *Service) activeLink(ctx context.Context, db *gorm.DB, rawToken string) (ShareLink, error) {
	token, err := canonicalToken(rawToken)
	if err != nil {
		return ShareLink{}, err
	}
	var link ShareLink
	err = db.WithContext(ctx).Where("token = ? AND revoked_at IS NULL", token).Take(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ShareLink{}, ErrShareNotFound
	}
	if err != nil {
		s.logError(opActiveLink, "query_failed", err, zap.String("token", token))
		return ShareLink{}, newServiceError(opActiveLink, "query_failed", err)
	}
	return link, nil
}

// ownedLink loads an active link owned by the caller; anything else is not found.
func (s *Service) ownedLink(ctx context.Context, db *gorm.DB, rawToken string, callerID uint) (ShareLink, error) {
	link, err := s.activeLink(ctx, db, rawToken)
	if err != nil {
		return ShareLink{}, err
	}
	if link.CreatedByID != callerID {
		return ShareLink{}, ErrShareNotFound
	}
	return link, nil
}

func (s *Service) isMember(ctx context.Context, db *gorm.DB, token string, userID uint) (bool, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&ShareMember{}).
		Where("share_token = ? AND user_id = ?", token, userID).
		Count(&count).Error; err != nil {
		s.logError(opMembership, "query_failed", err, zap.String("token", token), zap.Uint("user_id", userID))
		return false, newServiceError(opMembership, "query_failed", err)
	}
	return count > 0, nil
}

// authorizedLink loads the active link of the given kind and applies Authorize for the caller.
func (s *Service) authorizedLink(ctx context.Context, rawToken string, kind ResourceType, callerID uint, intent Intent) (ShareLink, error) {
	link, err := s.activeLink(ctx, s.db, rawToken)
	if err != nil {
		return ShareLink{}, err
	}
	if kind != "" && link.ResourceType != kind {
		return ShareLink{}, ErrShareNotFound
	}
	member := false
	if link.CreatedByID != callerID {
		member, err = s.isMember(ctx, s.db, link.Token, callerID)
		if err != nil {
			return ShareLink{}, err
		}
	}
	if err := Authorize(link, callerID, member, intent); err != nil {
		return ShareLink{}, err
	}
	return link, nil
}
