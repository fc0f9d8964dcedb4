package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/ree/backend/internal/history"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/notes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillHistorySessionIDs = "2026-05-01_backfill_history_session_ids"
	migrationNormalizeNoteTags         = "2026-05-02_normalize_note_tags"

	noteTagBatchSize = 200
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillHistorySessionIDs, apply: backfillHistorySessionIDs},
		{name: migrationNormalizeNoteTags, apply: normalizeNoteTags},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Transaction(migration.apply); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillHistorySessionIDs copies input_json.session_id into the indexed column for rows
// written before the column existed.
func backfillHistorySessionIDs(db *gorm.DB) error {
	return db.Model(&history.ChatHistory{}).
		Where("session_id = '' AND json_valid(input_json) AND json_type(input_json, '$.session_id') = 'text'").
		Update("session_id", gorm.Expr("trim(json_extract(input_json, '$.session_id'))")).Error
}

// normalizeNoteTags rewrites stored tags into the trimmed ", " separated form.
func normalizeNoteTags(db *gorm.DB) error {
	var batch []notes.Note
	result := db.Select("id", "tags").Where("tags <> ''").FindInBatches(&batch, noteTagBatchSize, func(_ *gorm.DB, _ int) error {
		for _, note := range batch {
			normalized := notes.JoinTags(notes.SplitTags(note.Tags))
			if normalized == note.Tags {
				continue
			}
			if err := db.Model(&notes.Note{}).Where("id = ?", note.ID).Update("tags", normalized).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return result.Error
}
