package sharing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/ree/backend/internal/assistant"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/history"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingDependency = errors.New("collaborator service is required")
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew    = "sharing.service.new"
	opCreateLink    = "sharing.create_link"
	opListLinks     = "sharing.list_links"
	opLinkDetail    = "sharing.link_detail"
	opRevokeLink    = "sharing.revoke_link"
	opListMembers   = "sharing.list_members"
	opRemoveMember  = "sharing.remove_member"
	opSharedChat    = "sharing.shared_chat"
	opSharedNote    = "sharing.shared_note"
	opCreateInvite  = "sharing.create_invite"
	opListInvites   = "sharing.list_invites"
	opRespondInvite = "sharing.respond_invite"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: operation + "." + reason, err: cause}
}

type ServiceConfig struct {
	Database  *gorm.DB
	Users     *users.Service
	Notes     *notes.Service
	History   *history.Recorder
	Assistant *assistant.Service
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Service owns share links, their members and invitations.
type Service struct {
	db        *gorm.DB
	users     *users.Service
	notes     *notes.Service
	history   *history.Recorder
	assistant *assistant.Service
	clock     func() time.Time
	logger    *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Users == nil || cfg.Notes == nil || cfg.History == nil || cfg.Assistant == nil {
		return nil, newServiceError(opServiceNew, "missing_dependency", errMissingDependency)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:        cfg.Database,
		users:     cfg.Users,
		notes:     cfg.Notes,
		history:   cfg.History,
		assistant: cfg.Assistant,
		clock:     clock,
		logger:    logger,
	}, nil
}

// CreateLinkRequest describes the resource to share.
type CreateLinkRequest struct {
	ResourceType string `json:"resource_type"`
	Permission   string `json:"permission"`
	SessionID    string `json:"session_id"`
	NoteID       uint   `json:"note_id"`
	HistoryIDs   []uint `json:"history_ids"`
}

// LinkFilter narrows ListLinks; zero fields do not filter.
type LinkFilter struct {
	ResourceType string
	SessionID    string
	NoteID       uint
}

// LinkWithMembers is a link together with its members ordered by join time.
type LinkWithMembers struct {
	Link    ShareLink
	Members []ShareMember
}

// LinkDetail is what an owner or member sees when opening a link.
type LinkDetail struct {
	LinkWithMembers
	Owner    users.Summary
	Messages []history.Turn
	Note     *notes.Note
}

// SharedChat is the replayed conversation behind a chat link.
type SharedChat struct {
	Messages   []history.Turn
	Permission Permission
}

// SharedNote is the note behind a note link.
type SharedNote struct {
	Note       notes.Note
	Permission Permission
	Recipients []uint
}

// SharedReply is the outcome of posting into a shared chat.
type SharedReply struct {
	Reply      assistant.Reply
	Recipients []uint
}

// CreateLink shares a chat session or note owned by the caller. An active link with the same
// resource and permission is returned instead of creating a second one.
func (s *Service) CreateLink(ctx context.Context, ownerID uint, request CreateLinkRequest) (LinkWithMembers, error) {
	resourceType := ResourceType(strings.TrimSpace(request.ResourceType))
	if !resourceType.valid() {
		return LinkWithMembers{}, ErrInvalidResourceType
	}
	permission := Permission(strings.TrimSpace(request.Permission))
	if permission == "" {
		permission = PermissionRead
	}
	if !permission.valid() {
		return LinkWithMembers{}, ErrInvalidPermission
	}

	candidate := ShareLink{
		ResourceType: resourceType,
		CreatedByID:  ownerID,
		Permission:   permission,
	}
	switch resourceType {
	case ResourceChat:
		sessionID := strings.TrimSpace(request.SessionID)
		if sessionID == "" {
			return LinkWithMembers{}, ErrSessionRequired
		}
		if err := s.ensureSession(ctx, ownerID, sessionID, request.HistoryIDs); err != nil {
			return LinkWithMembers{}, err
		}
		candidate.SessionID = &sessionID
	case ResourceNote:
		if request.NoteID == 0 {
			return LinkWithMembers{}, ErrNoteRequired
		}
		note, err := s.notes.GetNote(ctx, ownerID, request.NoteID)
		if errors.Is(err, notes.ErrNoteNotFound) {
			return LinkWithMembers{}, ErrNoteNotFound
		}
		if err != nil {
			return LinkWithMembers{}, err
		}
		candidate.NoteID = &note.ID
	}

	var link ShareLink
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("created_by_id = ? AND resource_type = ? AND permission = ? AND revoked_at IS NULL", ownerID, resourceType, permission)
		if candidate.SessionID != nil {
			query = query.Where("session_id = ?", *candidate.SessionID)
		} else {
			query = query.Where("note_id = ?", *candidate.NoteID)
		}
		err := query.Order("created_at ASC").Take(&link).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logError(opCreateLink, "lookup_failed", err, zap.Uint("user_id", ownerID))
			return newServiceError(opCreateLink, "lookup_failed", err)
		}

		token, err := newToken()
		if err != nil {
			return newServiceError(opCreateLink, "token_failed", err)
		}
		candidate.Token = token
		candidate.CreatedAt = s.clock().UTC()
		if err := tx.Omit(clause.Associations).Create(&candidate).Error; err != nil {
			s.logError(opCreateLink, "insert_failed", err, zap.Uint("user_id", ownerID))
			return newServiceError(opCreateLink, "insert_failed", err)
		}
		link = candidate
		return nil
	})
	if txErr != nil {
		return LinkWithMembers{}, txErr
	}

	members, err := s.membersByToken(ctx, opCreateLink, link.Token)
	if err != nil {
		return LinkWithMembers{}, err
	}
	s.logger.Info("share link ready",
		zap.String("token", link.Token),
		zap.String("resource_type", string(link.ResourceType)),
		zap.String("permission", string(link.Permission)),
		zap.Uint("user_id", ownerID),
	)
	return LinkWithMembers{Link: link, Members: members[link.Token]}, nil
}

func (s *Service) ensureSession(ctx context.Context, ownerID uint, sessionID string, historyIDs []uint) error {
	found, err := s.history.HasSession(ctx, ownerID, sessionID)
	if err != nil {
		return err
	}
	if found {
		return nil
	}
	if len(historyIDs) > 0 {
		if _, err := s.history.TagSession(ctx, ownerID, sessionID, historyIDs); err != nil {
			return err
		}
		found, err = s.history.HasSession(ctx, ownerID, sessionID)
		if err != nil {
			return err
		}
	}
	if !found {
		return ErrSessionNotFound
	}
	return nil
}

// ListLinks returns the caller's active links with their members.
func (s *Service) ListLinks(ctx context.Context, ownerID uint, filter LinkFilter) ([]LinkWithMembers, error) {
	query := s.db.WithContext(ctx).Where("created_by_id = ? AND revoked_at IS NULL", ownerID)
	if filter.ResourceType != "" {
		query = query.Where("resource_type = ?", filter.ResourceType)
	}
	if filter.SessionID != "" {
		query = query.Where("session_id = ?", filter.SessionID)
	}
	if filter.NoteID != 0 {
		query = query.Where("note_id = ?", filter.NoteID)
	}
	var links []ShareLink
	if err := query.Order("created_at DESC").Find(&links).Error; err != nil {
		s.logError(opListLinks, "query_failed", err, zap.Uint("user_id", ownerID))
		return nil, newServiceError(opListLinks, "query_failed", err)
	}

	tokens := make([]string, 0, len(links))
	for _, link := range links {
		tokens = append(tokens, link.Token)
	}
	members, err := s.membersByToken(ctx, opListLinks, tokens...)
	if err != nil {
		return nil, err
	}
	result := make([]LinkWithMembers, 0, len(links))
	for _, link := range links {
		result = append(result, LinkWithMembers{Link: link, Members: members[link.Token]})
	}
	return result, nil
}

// LinkDetail opens a link for its owner or a member. A caller holding a pending invite gets
// an InviteRequiredError so clients can offer acceptance.
func (s *Service) LinkDetail(ctx context.Context, callerID uint, token string) (LinkDetail, error) {
	link, err := s.activeLink(ctx, s.db, token)
	if err != nil {
		return LinkDetail{}, err
	}
	if link.CreatedByID != callerID {
		member, err := s.isMember(ctx, s.db, link.Token, callerID)
		if err != nil {
			return LinkDetail{}, err
		}
		if !member {
			var invite ShareInvite
			err := s.db.WithContext(ctx).
				Where("share_token = ? AND invited_user_id = ? AND status = ?", link.Token, callerID, InvitePending).
				Take(&invite).Error
			if err == nil {
				return LinkDetail{}, &InviteRequiredError{InviteID: invite.ID}
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				s.logError(opLinkDetail, "invite_lookup_failed", err, zap.String("token", link.Token))
				return LinkDetail{}, newServiceError(opLinkDetail, "invite_lookup_failed", err)
			}
			return LinkDetail{}, ErrNotAllowed
		}
	}

	owner, err := s.users.Get(ctx, link.CreatedByID)
	if err != nil {
		return LinkDetail{}, err
	}
	members, err := s.membersByToken(ctx, opLinkDetail, link.Token)
	if err != nil {
		return LinkDetail{}, err
	}
	detail := LinkDetail{
		LinkWithMembers: LinkWithMembers{Link: link, Members: members[link.Token]},
		Owner:           owner.Summary(),
	}

	switch link.ResourceType {
	case ResourceChat:
		detail.Messages, err = s.sessionTurns(ctx, opLinkDetail, link)
		if err != nil {
			return LinkDetail{}, err
		}
	case ResourceNote:
		if link.NoteID != nil {
			note, err := s.notes.FindNote(ctx, *link.NoteID)
			if err == nil {
				detail.Note = &note
			} else if !errors.Is(err, notes.ErrNoteNotFound) {
				return LinkDetail{}, err
			}
		}
	}
	return detail, nil
}

// RevokeLink permanently deactivates a link owned by the caller and reports who had access.
func (s *Service) RevokeLink(ctx context.Context, ownerID uint, token string) (ShareLink, []uint, error) {
	link, err := s.ownedLink(ctx, s.db, token, ownerID)
	if err != nil {
		return ShareLink{}, nil, err
	}
	recipients, err := s.participants(ctx, opRevokeLink, link)
	if err != nil {
		return ShareLink{}, nil, err
	}

	revokedAt := s.clock().UTC()
	result := s.db.WithContext(ctx).Model(&ShareLink{}).
		Where("token = ? AND revoked_at IS NULL", link.Token).
		Update("revoked_at", revokedAt)
	if result.Error != nil {
		s.logError(opRevokeLink, "update_failed", result.Error, zap.String("token", link.Token))
		return ShareLink{}, nil, newServiceError(opRevokeLink, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ShareLink{}, nil, ErrShareNotFound
	}
	link.RevokedAt = &revokedAt
	s.logger.Info("share link revoked", zap.String("token", link.Token), zap.Uint("user_id", ownerID))
	return link, recipients, nil
}

// ListMembers returns the members of a link visible to its owner and members.
func (s *Service) ListMembers(ctx context.Context, callerID uint, token string) ([]ShareMember, error) {
	link, err := s.authorizedLink(ctx, token, "", callerID, IntentRead)
	if err != nil {
		return nil, err
	}
	members, err := s.membersByToken(ctx, opListMembers, link.Token)
	if err != nil {
		return nil, err
	}
	return members[link.Token], nil
}

// RemoveMember drops a member from the caller's link and revokes any invite the user holds for it.
func (s *Service) RemoveMember(ctx context.Context, ownerID uint, token string, userID uint) error {
	link, err := s.ownedLink(ctx, s.db, token, ownerID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("share_token = ? AND user_id = ?", link.Token, userID).Delete(&ShareMember{}).Error; err != nil {
			s.logError(opRemoveMember, "delete_failed", err, zap.String("token", link.Token), zap.Uint("user_id", userID))
			return newServiceError(opRemoveMember, "delete_failed", err)
		}
		if err := tx.Model(&ShareInvite{}).
			Where("share_token = ? AND invited_user_id = ?", link.Token, userID).
			Updates(map[string]any{"status": InviteRevoked, "responded_at": s.clock().UTC()}).Error; err != nil {
			s.logError(opRemoveMember, "invite_update_failed", err, zap.String("token", link.Token), zap.Uint("user_id", userID))
			return newServiceError(opRemoveMember, "invite_update_failed", err)
		}
		return nil
	})
}

// SharedChat replays the conversation behind a chat link for its owner and members.
func (s *Service) SharedChat(ctx context.Context, callerID uint, token string) (SharedChat, error) {
	link, err := s.authorizedLink(ctx, token, ResourceChat, callerID, IntentRead)
	if err != nil {
		return SharedChat{}, err
	}
	turns, err := s.sessionTurns(ctx, opSharedChat, link)
	if err != nil {
		return SharedChat{}, err
	}
	return SharedChat{Messages: turns, Permission: link.Permission}, nil
}

// PostSharedChat adds a message to a collaborative chat session and returns the assistant's answer.
func (s *Service) PostSharedChat(ctx context.Context, callerID uint, token string, post assistant.SessionPost) (SharedReply, error) {
	link, err := s.authorizedLink(ctx, token, ResourceChat, callerID, IntentWrite)
	if err != nil {
		return SharedReply{}, err
	}
	post.Message = strings.TrimSpace(post.Message)
	if post.Message == "" {
		return SharedReply{}, ErrMessageRequired
	}
	recipients, err := s.participants(ctx, opSharedChat, link)
	if err != nil {
		return SharedReply{}, err
	}
	reply, err := s.assistant.SessionReply(ctx, callerID, sessionOf(link), recipients, post)
	if err != nil {
		return SharedReply{}, err
	}
	return SharedReply{Reply: reply, Recipients: recipients}, nil
}

// SharedNote returns the note behind a note link for its owner and members.
func (s *Service) SharedNote(ctx context.Context, callerID uint, token string) (SharedNote, error) {
	link, err := s.authorizedLink(ctx, token, ResourceNote, callerID, IntentRead)
	if err != nil {
		return SharedNote{}, err
	}
	note, err := s.linkedNote(ctx, link)
	if err != nil {
		return SharedNote{}, err
	}
	return SharedNote{Note: note, Permission: link.Permission}, nil
}

// UpdateSharedNote edits the note behind a collaborative note link in place.
func (s *Service) UpdateSharedNote(ctx context.Context, callerID uint, token string, patch notes.NotePatch) (SharedNote, error) {
	link, err := s.authorizedLink(ctx, token, ResourceNote, callerID, IntentWrite)
	if err != nil {
		return SharedNote{}, err
	}
	if _, err := s.linkedNote(ctx, link); err != nil {
		return SharedNote{}, err
	}
	note, err := s.notes.UpdateSharedNote(ctx, *link.NoteID, patch)
	if errors.Is(err, notes.ErrNoteNotFound) {
		return SharedNote{}, ErrShareNotFound
	}
	if err != nil {
		return SharedNote{}, err
	}
	recipients, err := s.participants(ctx, opSharedNote, link)
	if err != nil {
		return SharedNote{}, err
	}
	return SharedNote{Note: note, Permission: link.Permission, Recipients: recipients}, nil
}

func (s *Service) linkedNote(ctx context.Context, link ShareLink) (notes.Note, error) {
	if link.NoteID == nil {
		return notes.Note{}, ErrShareNotFound
	}
	note, err := s.notes.FindNote(ctx, *link.NoteID)
	if errors.Is(err, notes.ErrNoteNotFound) {
		return notes.Note{}, ErrShareNotFound
	}
	return note, err
}

// sessionTurns replays only records written by the link's owner and members.
func (s *Service) sessionTurns(ctx context.Context, operation string, link ShareLink) ([]history.Turn, error) {
	participantIDs, err := s.participants(ctx, operation, link)
	if err != nil {
		return nil, err
	}
	records, err := s.history.SessionRecords(ctx, sessionOf(link), participantIDs)
	if err != nil {
		return nil, err
	}
	return history.ReplayTurns(records), nil
}

func sessionOf(link ShareLink) string {
	if link.SessionID == nil {
		return ""
	}
	return *link.SessionID
}

func (s *Service) membersByToken(ctx context.Context, operation string, tokens ...string) (map[string][]ShareMember, error) {
	grouped := make(map[string][]ShareMember, len(tokens))
	if len(tokens) == 0 {
		return grouped, nil
	}
	var members []ShareMember
	if err := s.db.WithContext(ctx).
		Preload("User").
		Where("share_token IN ?", tokens).
		Order("added_at ASC").
		Order("id ASC").
		Find(&members).Error; err != nil {
		s.logError(operation, "members_query_failed", err)
		return nil, newServiceError(operation, "members_query_failed", err)
	}
	for _, member := range members {
		grouped[member.ShareToken] = append(grouped[member.ShareToken], member)
	}
	return grouped, nil
}

// participants returns the owner followed by every member of the link.
func (s *Service) participants(ctx context.Context, operation string, link ShareLink) ([]uint, error) {
	var memberIDs []uint
	if err := s.db.WithContext(ctx).Model(&ShareMember{}).
		Where("share_token = ?", link.Token).
		Order("added_at ASC").
		Pluck("user_id", &memberIDs).Error; err != nil {
		s.logError(operation, "participants_query_failed", err, zap.String("token", link.Token))
		return nil, newServiceError(operation, "participants_query_failed", err)
	}
	return append([]uint{link.CreatedByID}, memberIDs...), nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("sharing service error", attrs...)
}
