package notes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/ree/backend/internal/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingUserID   = errors.New("user identifier is required")
	noOpLogger         = zap.NewNop()
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
	opServiceNew   = "notes.service.new"
	opListNotes    = "notes.list_notes"
	opCreateNote   = "notes.create_note"
	opGetNote      = "notes.get_note"
	opUpdateNote   = "notes.update_note"
	opDeleteNote   = "notes.delete_note"
	fieldUserID    = "user_id"
	fieldNoteID    = "note_id"
	queryOwnedNote = "id = ? AND user_id = ?"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:     cfg.Database,
		clock:  clock,
		logger: logger,
	}, nil
}

// ListNotes returns the notes owned by the user, newest first.
func (s *Service) ListNotes(ctx context.Context, userID uint) ([]Note, error) {
	if err := s.ready(opListNotes, userID); err != nil {
		return nil, err
	}

	var notes []Note
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&notes).Error; err != nil {
		s.logError(opListNotes, "query_failed", err, zap.Uint(fieldUserID, userID))
		return nil, newServiceError(opListNotes, "query_failed", err)
	}
	return notes, nil
}

// CreateNote stores a new note. When the input carries a client id that the user
// already used, the existing note is overwritten instead so offline clients can retry.
func (s *Service) CreateNote(ctx context.Context, userID uint, input NoteInput) (Note, error) {
	if err := s.ready(opCreateNote, userID); err != nil {
		return Note{}, err
	}
	if err := validation.Struct(input); err != nil {
		return Note{}, err
	}

	clientID := normalizeClientID(input.ClientID)
	var stored Note
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if clientID != nil {
			err := tx.Where("user_id = ? AND client_id = ?", userID, *clientID).Take(&stored).Error
			if err == nil {
				if err := tx.Model(&Note{}).Where("id = ?", stored.ID).Updates(input.Patch().columns()).Error; err != nil {
					s.logError(opCreateNote, "client_update_failed", err, zap.Uint(fieldUserID, userID), zap.Uint(fieldNoteID, stored.ID))
					return newServiceError(opCreateNote, "client_update_failed", err)
				}
				return tx.Where("id = ?", stored.ID).Take(&stored).Error
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				s.logError(opCreateNote, "client_lookup_failed", err, zap.Uint(fieldUserID, userID))
				return newServiceError(opCreateNote, "client_lookup_failed", err)
			}
		}

		stored = Note{
			UserID:    userID,
			ClientID:  clientID,
			Title:     input.Title,
			Subject:   input.Subject,
			Category:  input.Category,
			Tags:      JoinTags(input.Tags),
			Content:   input.Content,
			CreatedAt: s.clock().UTC(),
		}
		if err := tx.Create(&stored).Error; err != nil {
			s.logError(opCreateNote, "insert_failed", err, zap.Uint(fieldUserID, userID))
			return newServiceError(opCreateNote, "insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Note{}, txErr
	}
	return stored, nil
}

// GetNote loads a note owned by the user.
func (s *Service) GetNote(ctx context.Context, userID uint, noteID uint) (Note, error) {
	if err := s.ready(opGetNote, userID); err != nil {
		return Note{}, err
	}
	return s.take(ctx, opGetNote, s.db.WithContext(ctx).Where(queryOwnedNote, noteID, userID))
}

// FindNote loads a note regardless of owner. Callers are responsible for access checks.
func (s *Service) FindNote(ctx context.Context, noteID uint) (Note, error) {
	if s.db == nil {
		s.logError(opGetNote, "missing_database", errMissingDatabase)
		return Note{}, newServiceError(opGetNote, "missing_database", errMissingDatabase)
	}
	return s.take(ctx, opGetNote, s.db.WithContext(ctx).Where("id = ?", noteID))
}

// UpdateNote applies the patch to a note owned by the user.
func (s *Service) UpdateNote(ctx context.Context, userID uint, noteID uint, patch NotePatch) (Note, error) {
	if err := s.ready(opUpdateNote, userID); err != nil {
		return Note{}, err
	}
	return s.applyPatch(ctx, s.db.WithContext(ctx).Where(queryOwnedNote, noteID, userID), noteID, patch)
}

// UpdateSharedNote applies the patch to a note on behalf of a collaborator. Identity and
// ownership are never touched; callers are responsible for access checks.
func (s *Service) UpdateSharedNote(ctx context.Context, noteID uint, patch NotePatch) (Note, error) {
	if s.db == nil {
		s.logError(opUpdateNote, "missing_database", errMissingDatabase)
		return Note{}, newServiceError(opUpdateNote, "missing_database", errMissingDatabase)
	}
	return s.applyPatch(ctx, s.db.WithContext(ctx).Where("id = ?", noteID), noteID, patch)
}

// DeleteNote removes a note owned by the user. Share links pointing at it cascade.
func (s *Service) DeleteNote(ctx context.Context, userID uint, noteID uint) error {
	if err := s.ready(opDeleteNote, userID); err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Where(queryOwnedNote, noteID, userID).Delete(&Note{})
	if result.Error != nil {
		s.logError(opDeleteNote, "delete_failed", result.Error, zap.Uint(fieldUserID, userID), zap.Uint(fieldNoteID, noteID))
		return newServiceError(opDeleteNote, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNoteNotFound
	}
	return nil
}

func (s *Service) applyPatch(ctx context.Context, scope *gorm.DB, noteID uint, patch NotePatch) (Note, error) {
	if err := validation.Struct(patch); err != nil {
		return Note{}, err
	}
	note, err := s.take(ctx, opUpdateNote, scope)
	if err != nil {
		return Note{}, err
	}
	updates := patch.columns()
	if len(updates) == 0 {
		return note, nil
	}
	if err := s.db.WithContext(ctx).Model(&Note{}).Where("id = ?", note.ID).Updates(updates).Error; err != nil {
		s.logError(opUpdateNote, "update_failed", err, zap.Uint(fieldNoteID, noteID))
		return Note{}, newServiceError(opUpdateNote, "update_failed", err)
	}
	return s.take(ctx, opUpdateNote, s.db.WithContext(ctx).Where("id = ?", note.ID))
}

func (s *Service) take(ctx context.Context, operation string, scope *gorm.DB) (Note, error) {
	var note Note
	err := scope.Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, ErrNoteNotFound
	}
	if err != nil {
		s.logError(operation, "query_failed", err)
		return Note{}, newServiceError(operation, "query_failed", err)
	}
	return note, nil
}

func (s *Service) ready(operation string, userID uint) error {
	if s.db == nil {
		s.logError(operation, "missing_database", errMissingDatabase)
		return newServiceError(operation, "missing_database", errMissingDatabase)
	}
	if userID == 0 {
		s.logError(operation, "missing_user_id", errMissingUserID)
		return newServiceError(operation, "missing_user_id", errMissingUserID)
	}
	return nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
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
	s.loggerOrDefault().Error("notes service error", attrs...)
}
