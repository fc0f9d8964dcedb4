package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingUserID   = errors.New("user identifier is required")
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
	opRecorderNew   = "history.recorder.new"
	opRecord        = "history.record"
	opList          = "history.list"
	opDelete        = "history.delete"
	opDeleteAll     = "history.delete_all"
	opHasSession    = "history.has_session"
	opTagSession    = "history.tag_session"
	opSessionRecord = "history.session_records"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: operation + "." + reason, err: cause}
}

type RecorderConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Recorder persists AI interactions and serves them back per user or per chat session.
type Recorder struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opRecorderNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Record stores an interaction. Storage failures are logged and reported as a nil record;
// callers never fail a request because history could not be written.
func (r *Recorder) Record(ctx context.Context, userID uint, mode string, input json.RawMessage, response string) *ChatHistory {
	if userID == 0 {
		r.logError(opRecord, "missing_user_id", errMissingUserID)
		return nil
	}
	raw := string(input)
	if !json.Valid(input) {
		raw = "{}"
	}
	record := ChatHistory{
		UserID:       userID,
		Mode:         mode,
		InputJSON:    raw,
		SessionID:    SessionIDOf(decodeObject(raw)),
		ResponseText: response,
		CreatedAt:    r.clock().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		r.logError(opRecord, "insert_failed", err, zap.Uint("user_id", userID), zap.String("mode", mode))
		return nil
	}
	return &record
}

// List returns the user's records, newest first.
func (r *Recorder) List(ctx context.Context, userID uint) ([]ChatHistory, error) {
	var records []ChatHistory
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&records).Error; err != nil {
		r.logError(opList, "query_failed", err, zap.Uint("user_id", userID))
		return nil, newServiceError(opList, "query_failed", err)
	}
	return records, nil
}

// Delete removes one record owned by the user.
func (r *Recorder) Delete(ctx context.Context, userID, historyID uint) error {
	result := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", historyID, userID).Delete(&ChatHistory{})
	if result.Error != nil {
		r.logError(opDelete, "delete_failed", result.Error, zap.Uint("user_id", userID), zap.Uint("history_id", historyID))
		return newServiceError(opDelete, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrHistoryNotFound
	}
	return nil
}

// DeleteAll removes every record of the user and reports how many were removed.
func (r *Recorder) DeleteAll(ctx context.Context, userID uint) (int64, error) {
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&ChatHistory{})
	if result.Error != nil {
		r.logError(opDeleteAll, "delete_failed", result.Error, zap.Uint("user_id", userID))
		return 0, newServiceError(opDeleteAll, "delete_failed", result.Error)
	}
	return result.RowsAffected, nil
}

// HasSession reports whether the user owns at least one record tagged with the session.
func (r *Recorder) HasSession(ctx context.Context, userID uint, sessionID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&ChatHistory{}).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Count(&count).Error; err != nil {
		r.logError(opHasSession, "query_failed", err, zap.Uint("user_id", userID))
		return false, newServiceError(opHasSession, "query_failed", err)
	}
	return count > 0, nil
}

// TagSession retroactively attaches the session id to the listed records owned by the user.
// Records owned by other users are skipped silently.
func (r *Recorder) TagSession(ctx context.Context, userID uint, sessionID string, historyIDs []uint) (int, error) {
	if len(historyIDs) == 0 {
		return 0, nil
	}
	tagged := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var records []ChatHistory
		if err := tx.Where("user_id = ? AND id IN ?", userID, historyIDs).Find(&records).Error; err != nil {
			r.logError(opTagSession, "query_failed", err, zap.Uint("user_id", userID))
			return newServiceError(opTagSession, "query_failed", err)
		}
		for _, record := range records {
			input := record.Input()
			input[fieldSessionID] = sessionID
			encoded, err := json.Marshal(input)
			if err != nil {
				return newServiceError(opTagSession, "encode_failed", err)
			}
			if err := tx.Model(&ChatHistory{}).Where("id = ?", record.ID).Updates(map[string]any{
				"input_json": string(encoded),
				"session_id": sessionID,
			}).Error; err != nil {
				r.logError(opTagSession, "update_failed", err, zap.Uint("history_id", record.ID))
				return newServiceError(opTagSession, "update_failed", err)
			}
			tagged++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return tagged, nil
}

// SessionRecords returns the session's records written by the given participants, oldest first.
// Records other users tagged with the same session id are never included.
func (r *Recorder) SessionRecords(ctx context.Context, sessionID string, participantIDs []uint) ([]ChatHistory, error) {
	var records []ChatHistory
	if len(participantIDs) == 0 {
		return records, nil
	}
	if err := r.db.WithContext(ctx).
		Preload("User").
		Where("session_id = ? AND user_id IN ?", sessionID, participantIDs).
		Order("created_at ASC").
		Order("id ASC").
		Find(&records).Error; err != nil {
		r.logError(opSessionRecord, "query_failed", err, zap.String("session_id", sessionID))
		return nil, newServiceError(opSessionRecord, "query_failed", err)
	}
	return records, nil
}

func (r *Recorder) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	r.logger.Error("history recorder error", attrs...)
}
